package timestampindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	db := store.NewMemStore()
	h1 := chainhash.HashB([]byte("a"))
	h2 := chainhash.HashB([]byte("b"))

	batch := store.NewWriteBatch()
	StagePut(batch, h1, 1000)
	StagePut(batch, h2, 2000)
	require.NoError(t, db.WriteBatch(batch))

	tm, ok, err := GetBlockTime(db, h1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1000), tm)

	hashes, err := HashesFrom(db, 1500)
	require.NoError(t, err)
	require.Equal(t, []chainhash.Hash{h2}, hashes)

	del := store.NewWriteBatch()
	StageDelete(del, h1, 1000)
	require.NoError(t, db.WriteBatch(del))
	_, ok, err = GetBlockTime(db, h1)
	require.NoError(t, err)
	require.False(t, ok)
}
