package fluxnode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxd-org/fluxd/internal/params"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/internal/wire"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

func TestUpsertAndUndo(t *testing.T) {
	db := store.NewMemStore()
	collateral := wire.OutPoint{Hash: chainhash.HashB([]byte("c1")), Index: 0}

	e1 := Entry{Collateral: collateral, Tier: params.TierCumulus, PubKey: []byte{1, 2, 3}, SigTime: 100}
	batch := store.NewWriteBatch()
	undo1, err := StageUpsert(db, batch, e1)
	require.NoError(t, err)
	require.False(t, undo1.Present)
	require.NoError(t, db.WriteBatch(batch))

	got, ok, err := Get(db, collateral)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, e1, got)

	e2 := e1
	e2.LastConfirm = 200
	e2.ConfirmCount = 1
	batch2 := store.NewWriteBatch()
	undo2, err := StageUpsert(db, batch2, e2)
	require.NoError(t, err)
	require.True(t, undo2.Present)
	require.Equal(t, e1, undo2.Prev)
	require.NoError(t, db.WriteBatch(batch2))

	got, ok, err = Get(db, collateral)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, e2, got)

	undoBatch := store.NewWriteBatch()
	Apply(undoBatch, undo2)
	require.NoError(t, db.WriteBatch(undoBatch))

	got, ok, err = Get(db, collateral)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, e1, got)
}
