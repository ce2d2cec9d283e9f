package utxo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/internal/wire"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	db := store.NewMemStore()
	op := wire.OutPoint{Hash: chainhash.HashB([]byte("tx1")), Index: 0}
	entry := Entry{Value: 5000000000, ScriptPubKey: []byte{0x76, 0xa9}, Height: 10, IsCoinbase: true}

	batch := store.NewWriteBatch()
	StagePut(batch, op, entry)
	require.NoError(t, db.WriteBatch(batch))

	got, ok, err := Get(db, op)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry, got)

	del := store.NewWriteBatch()
	StageDelete(del, op)
	require.NoError(t, db.WriteBatch(del))

	_, ok, err = Get(db, op)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCoinbaseMaturity(t *testing.T) {
	e := Entry{IsCoinbase: true, Height: 100}
	require.False(t, e.IsMature(150))
	require.True(t, e.IsMature(200))

	transparent := Entry{IsCoinbase: false, Height: 100}
	require.True(t, transparent.IsMature(101))
}

func TestProvablyUnspendable(t *testing.T) {
	require.True(t, IsProvablyUnspendable([]byte{0x6a, 0x04, 1, 2, 3, 4}))
	require.False(t, IsProvablyUnspendable([]byte{0x76, 0xa9}))
	require.False(t, IsProvablyUnspendable(nil))
}
