package txindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	db := store.NewMemStore()
	txHash := chainhash.HashB([]byte("tx"))
	loc := Location{BlockHash: chainhash.HashB([]byte("block")), Height: 7, TxIndex: 3}

	batch := store.NewWriteBatch()
	StagePut(batch, txHash, loc)
	require.NoError(t, db.WriteBatch(batch))

	got, ok, err := Get(db, txHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, loc, got)

	del := store.NewWriteBatch()
	StageDelete(del, txHash)
	require.NoError(t, db.WriteBatch(del))

	_, ok, err = Get(db, txHash)
	require.NoError(t, err)
	require.False(t, ok)
}
