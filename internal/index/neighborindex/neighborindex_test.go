package neighborindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

func addrID(t AddressType, b byte) AddressID {
	var a AddressID
	a.Type = t
	a.Hash[0] = b
	return a
}

func TestAddressIDEncodeDecodeRoundTrip(t *testing.T) {
	a := addrID(TypeP2SH, 0x42)
	got, err := DecodeAddressID(a.Encode())
	require.NoError(t, err)
	require.Equal(t, a, got)

	_, err = DecodeAddressID(append(a.Encode(), 0x00))
	require.Error(t, err)
}

func TestStatsSaturatingAdd(t *testing.T) {
	s := Stats{InboundTxCount: 1, OutboundValue: 100}
	s = s.Add(Stats{InboundTxCount: 2, OutboundValue: 50})
	require.Equal(t, uint64(3), s.InboundTxCount)
	require.Equal(t, uint64(150), s.OutboundValue)
	require.EqualValues(t, 3, s.TotalTxCount())
	require.EqualValues(t, 150, s.TotalValue())
}

func TestActiveGenerationDefaultsToZero(t *testing.T) {
	db := store.NewMemStore()

	gen, err := ActiveGeneration(db)
	require.NoError(t, err)
	require.EqualValues(t, 0, gen)

	inactive, err := InactiveGeneration(db)
	require.NoError(t, err)
	require.EqualValues(t, 1, inactive)
}

func TestStageUpsertDeltaAccumulatesAndRanks(t *testing.T) {
	db := store.NewMemStore()
	a := addrID(TypeP2PKH, 0xA0)
	b := addrID(TypeP2PKH, 0xB0)
	c := addrID(TypeP2PKH, 0xC0)

	batch := store.NewWriteBatch()
	_, err := StageUpsertDelta(db, batch, 0, a, b, Stats{OutboundTxCount: 1, OutboundValue: 500})
	require.NoError(t, err)
	_, err = StageUpsertDelta(db, batch, 0, a, c, Stats{OutboundTxCount: 1, OutboundValue: 9000})
	require.NoError(t, err)
	require.NoError(t, db.WriteBatch(batch))

	top, err := TopNeighbors(db, 0, a, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, c, top[0].To)
	require.EqualValues(t, 9000, top[0].Stats.TotalValue())
	require.Equal(t, b, top[1].To)

	// A second delta to the same pair accumulates rather than overwrites,
	// and re-sorts the rank entry under its new total.
	batch2 := store.NewWriteBatch()
	next, err := StageUpsertDelta(db, batch2, 0, a, b, Stats{InboundTxCount: 1, InboundValue: 20000})
	require.NoError(t, err)
	require.NoError(t, db.WriteBatch(batch2))
	require.EqualValues(t, 20500, next.TotalValue())

	top, err = TopNeighbors(db, 0, a, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, b, top[0].To)
	require.Equal(t, c, top[1].To)

	got, ok, err := Get(db, 0, a, b)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, next, got)
}

func TestClearGenerationRemovesOnlyThatGeneration(t *testing.T) {
	db := store.NewMemStore()
	a := addrID(TypeP2PKH, 1)
	keep := addrID(TypeP2PKH, 2)
	drop := addrID(TypeP2PKH, 3)

	seed := store.NewWriteBatch()
	_, err := StageUpsertDelta(db, seed, 0, a, keep, Stats{OutboundTxCount: 1, OutboundValue: 1})
	require.NoError(t, err)
	_, err = StageUpsertDelta(db, seed, 1, a, drop, Stats{OutboundTxCount: 1, OutboundValue: 1})
	require.NoError(t, err)
	require.NoError(t, db.WriteBatch(seed))

	clearBatch, err := ClearGeneration(db, 1)
	require.NoError(t, err)
	require.NoError(t, db.WriteBatch(clearBatch))

	top, err := TopNeighbors(db, 0, a, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, keep, top[0].To)

	top, err = TopNeighbors(db, 1, a, 10)
	require.NoError(t, err)
	require.Empty(t, top)
}

func TestRebuildWritesInactiveThenActivatesAtomically(t *testing.T) {
	db := store.NewMemStore()
	a := addrID(TypeP2PKH, 1)
	oldNeighbor := addrID(TypeP2PKH, 2)
	newNeighbor := addrID(TypeP2PKH, 3)

	seed := store.NewWriteBatch()
	_, err := StageUpsertDelta(db, seed, 0, a, oldNeighbor, Stats{OutboundTxCount: 1, OutboundValue: 100})
	require.NoError(t, err)
	tip0 := chainhash.HashB([]byte("tip0"))
	StageActivateIndex(seed, 0, 10, tip0)
	require.NoError(t, db.WriteBatch(seed))

	top, err := TopNeighbors(db, 0, a, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, oldNeighbor, top[0].To)

	inactive, err := InactiveGeneration(db)
	require.NoError(t, err)
	require.EqualValues(t, 1, inactive)

	build := store.NewWriteBatch()
	_, err = StageUpsertDelta(db, build, inactive, a, newNeighbor, Stats{OutboundTxCount: 1, OutboundValue: 999})
	require.NoError(t, err)
	require.NoError(t, db.WriteBatch(build))

	// The rebuild's writes to the inactive generation must not disturb
	// what ActiveGeneration's TopNeighbors currently sees.
	activeGen, err := ActiveGeneration(db)
	require.NoError(t, err)
	top, err = TopNeighbors(db, activeGen, a, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, oldNeighbor, top[0].To)

	tip1 := chainhash.HashB([]byte("tip1"))
	flip := store.NewWriteBatch()
	StageActivateIndex(flip, inactive, 20, tip1)
	require.NoError(t, db.WriteBatch(flip))

	activeGen, err = ActiveGeneration(db)
	require.NoError(t, err)
	require.EqualValues(t, 1, activeGen)
	top, err = TopNeighbors(db, activeGen, a, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, newNeighbor, top[0].To)

	height, err := ActiveHeight(db)
	require.NoError(t, err)
	require.EqualValues(t, 20, height)
	gotTip, err := ActiveTipHash(db)
	require.NoError(t, err)
	require.Equal(t, tip1, gotTip)
}

func TestBuildStateLifecycle(t *testing.T) {
	db := store.NewMemStore()

	state, err := CurrentBuildState(db)
	require.NoError(t, err)
	require.Equal(t, BuildIdle, state)

	start := store.NewWriteBatch()
	require.NoError(t, StageSetBuildState(start, BuildRunning, 1))
	StageSetBuildStartedAt(start, 1_700_000_000)
	require.NoError(t, db.WriteBatch(start))

	state, err = CurrentBuildState(db)
	require.NoError(t, err)
	require.Equal(t, BuildRunning, state)
	gen, err := BuildGeneration(db)
	require.NoError(t, err)
	require.EqualValues(t, 1, gen)
	startedAt, err := BuildStartedAt(db)
	require.NoError(t, err)
	require.EqualValues(t, 1_700_000_000, startedAt)

	progress := store.NewWriteBatch()
	tip := chainhash.HashB([]byte("progress"))
	StageSetBuildHeight(progress, 500)
	StageSetBuildTipHash(progress, tip)
	require.NoError(t, db.WriteBatch(progress))

	height, err := BuildHeight(db)
	require.NoError(t, err)
	require.EqualValues(t, 500, height)
	gotTip, err := BuildTipHash(db)
	require.NoError(t, err)
	require.Equal(t, tip, gotTip)

	fail := store.NewWriteBatch()
	require.NoError(t, StageSetBuildState(fail, BuildError, 1))
	StageSetBuildError(fail, "rebuild aborted: store unavailable")
	require.NoError(t, db.WriteBatch(fail))

	state, err = CurrentBuildState(db)
	require.NoError(t, err)
	require.Equal(t, BuildError, state)
	msg, err := BuildErrorMessage(db)
	require.NoError(t, err)
	require.Equal(t, "rebuild aborted: store unavailable", msg)
}

func TestStageSetBuildStateRejectsUnknownState(t *testing.T) {
	batch := store.NewWriteBatch()
	err := StageSetBuildState(batch, BuildState(99), 0)
	require.Error(t, err)
}
