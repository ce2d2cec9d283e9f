package addressindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxd-org/fluxd/internal/params"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/internal/wire"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

func TestCreditDebitBalanceAndUndo(t *testing.T) {
	db := store.NewMemStore()
	addr := Address("addr1")
	op := wire.OutPoint{Hash: chainhash.HashB([]byte("tx1")), Index: 0}

	batch := store.NewWriteBatch()
	require.NoError(t, StageCredit(db, batch, addr, op, 1000, 10, 0, 0, params.SlotNone))
	require.NoError(t, db.WriteBatch(batch))

	bal, err := Balance(db, addr)
	require.NoError(t, err)
	require.Equal(t, int64(1000), bal)

	outs, err := Outpoints(db, addr)
	require.NoError(t, err)
	require.Equal(t, []wire.OutPoint{op}, outs)

	spendBatch := store.NewWriteBatch()
	spendTx := chainhash.HashB([]byte("tx2"))
	require.NoError(t, StageDebit(db, spendBatch, addr, op, 1000, 11, 0, 0, spendTx, params.SlotNone))
	require.NoError(t, db.WriteBatch(spendBatch))

	bal, err = Balance(db, addr)
	require.NoError(t, err)
	require.Equal(t, int64(0), bal)

	outs, err = Outpoints(db, addr)
	require.NoError(t, err)
	require.Empty(t, outs)

	deltas, err := Deltas(db, addr)
	require.NoError(t, err)
	require.Len(t, deltas, 2)
	require.Equal(t, int64(1000), deltas[0].Value)
	require.Equal(t, int64(-1000), deltas[1].Value)

	// Undo the debit: outpoint reappears, balance restored.
	undoBatch := store.NewWriteBatch()
	require.NoError(t, UndoDebit(db, undoBatch, addr, op, 1000, 11, 0, 0, params.SlotNone))
	require.NoError(t, db.WriteBatch(undoBatch))

	bal, err = Balance(db, addr)
	require.NoError(t, err)
	require.Equal(t, int64(1000), bal)
	outs, err = Outpoints(db, addr)
	require.NoError(t, err)
	require.Equal(t, []wire.OutPoint{op}, outs)
}

func TestAddressDeltaMonotoneKeyOrdering(t *testing.T) {
	db := store.NewMemStore()
	addr := Address("addr2")
	batch := store.NewWriteBatch()
	for h := int32(1); h <= 3; h++ {
		op := wire.OutPoint{Hash: chainhash.HashB([]byte{byte(h)}), Index: 0}
		require.NoError(t, StageCredit(db, batch, addr, op, int64(h)*100, h, 0, 0, params.SlotNone))
	}
	require.NoError(t, db.WriteBatch(batch))

	deltas, err := Deltas(db, addr)
	require.NoError(t, err)
	require.Len(t, deltas, 3)
	require.Equal(t, int64(100), deltas[0].Value)
	require.Equal(t, int64(200), deltas[1].Value)
	require.Equal(t, int64(300), deltas[2].Value)
}

func TestBalanceEntryEncodeDecodeRoundTrip(t *testing.T) {
	entries := []BalanceEntry{
		{},
		{Balance: -500, V1Cumulus: 1, V1Nimbus: 2, V1Stratus: 3, V2Cumulus: 4, V2Nimbus: 5, V2Stratus: 6},
		{Balance: 1 << 40},
	}
	for _, e := range entries {
		raw := e.encode()
		got, err := decodeBalanceEntry(raw)
		require.NoError(t, err)
		require.Equal(t, e, got)

		// Any trailing byte after a complete decode is an error.
		_, err = decodeBalanceEntry(append(raw, 0x00))
		require.Error(t, err)
	}
}

func TestCreditDebitTalliesFluxnodeCollateralSlot(t *testing.T) {
	db := store.NewMemStore()
	addr := Address("addr3")
	op := wire.OutPoint{Hash: chainhash.HashB([]byte("collateral")), Index: 0}

	const cumulusV1 = 10_000 * params.Coin

	batch := store.NewWriteBatch()
	require.NoError(t, StageCredit(db, batch, addr, op, cumulusV1, 10, 0, 0, params.SlotV1Cumulus))
	require.NoError(t, db.WriteBatch(batch))

	entry, err := GetBalanceEntry(db, addr)
	require.NoError(t, err)
	require.Equal(t, uint32(1), entry.V1Cumulus)
	require.Equal(t, int64(cumulusV1), entry.Balance)

	spendBatch := store.NewWriteBatch()
	spendTx := chainhash.HashB([]byte("spend"))
	require.NoError(t, StageDebit(db, spendBatch, addr, op, cumulusV1, 11, 0, 0, spendTx, params.SlotV1Cumulus))
	require.NoError(t, db.WriteBatch(spendBatch))

	entry, err = GetBalanceEntry(db, addr)
	require.NoError(t, err)
	require.Equal(t, uint32(0), entry.V1Cumulus)
	require.Equal(t, int64(0), entry.Balance)
}
