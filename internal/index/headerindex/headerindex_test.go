package headerindex

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/internal/wire"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

func putChain(t *testing.T, db store.DB, n int) []chainhash.Hash {
	t.Helper()
	hashes := make([]chainhash.Hash, n)
	var prev chainhash.Hash
	for i := 0; i < n; i++ {
		h := &wire.Header{
			Version:    4,
			PrevBlock:  prev,
			MerkleRoot: chainhash.HashB([]byte{byte(i)}),
			Time:       uint32(1700000000 + i),
			Bits:       0x1d00ffff,
			Solution:   []byte{byte(i)},
		}
		hash := h.Hash()
		entry := Entry{
			Header:    h,
			Height:    int32(i),
			ChainWork: big.NewInt(int64(i) + 1),
		}
		if i > 0 {
			skipHeight := SkipHeight(int32(i))
			sh, ok, err := GetHashAtHeight(db, skipHeight)
			require.NoError(t, err)
			require.True(t, ok)
			entry.SkipHash = sh
		}
		batch := store.NewWriteBatch()
		StagePutHeader(batch, hash, entry)
		StageSetHeightIndex(batch, int32(i), hash)
		require.NoError(t, db.WriteBatch(batch))

		hashes[i] = hash
		prev = hash
	}
	return hashes
}

func TestEntryEncodeDecodeRoundTrip(t *testing.T) {
	db := store.NewMemStore()
	hashes := putChain(t, db, 3)

	entry, ok, err := Get(db, hashes[2])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(2), entry.Height)
	require.Equal(t, big.NewInt(3), entry.ChainWork)
}

func TestFindAncestorAndLowestCommonAncestor(t *testing.T) {
	db := store.NewMemStore()
	hashes := putChain(t, db, 20)

	anc, err := FindAncestor(db, hashes[19], 5)
	require.NoError(t, err)
	require.Equal(t, hashes[5], anc)

	lca, err := LowestCommonAncestor(db, hashes[19], hashes[10])
	require.NoError(t, err)
	require.Equal(t, hashes[10], lca)
}

func TestStatusFlags(t *testing.T) {
	e := Entry{Status: StatusHasHeader | StatusHasBlock}
	require.True(t, e.HasStatus(StatusHasHeader))
	require.True(t, e.HasStatus(StatusHasBlock))
	require.False(t, e.HasStatus(StatusFailedValidation))
}
