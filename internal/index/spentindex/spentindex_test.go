package spentindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/internal/wire"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	db := store.NewMemStore()
	op := wire.OutPoint{Hash: chainhash.HashB([]byte("fund")), Index: 1}
	info := Info{TxHash: chainhash.HashB([]byte("spend")), InputIndex: 2, Height: 42}

	batch := store.NewWriteBatch()
	StagePut(batch, op, info)
	require.NoError(t, db.WriteBatch(batch))

	got, ok, err := Get(db, op)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, info, got)

	del := store.NewWriteBatch()
	StageDelete(del, op)
	require.NoError(t, db.WriteBatch(del))

	_, ok, err = Get(db, op)
	require.NoError(t, err)
	require.False(t, ok)
}
