// Package addressindex implements the Insight-style per-address indexes:
// which outpoints an address currently holds, the signed value-delta log
// of every touch, and the running balance. The chronological per-address
// tx cursor lives in package addresstxindex.
// Grounded on spec.md's "Address index key layout" design note (big-endian
// height + tx_index so a per-address scan yields chronological order
// without a secondary sort) and on the teacher's internal/chain.BlockStore
// for the column-keyed pointer-record pattern; the teacher itself has no
// address index (it indexes UTXOs only), so the key layout and the three
// record shapes are built fresh from the spec's design notes rather than
// adapted from an existing teacher file.
package addressindex

import (
	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/internal/params"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/internal/wire"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// Address is an opaque address identifier — the hash160 (or equivalent)
// script-matching key the index is partitioned by. Left as raw bytes since
// address derivation/encoding (base58check, bech32) is a wallet concern
// outside this engine's scope.
type Address []byte

// outpointKey: address ‖ txid ‖ index_le(4) — membership / full scan of an
// address's current outpoints.
func outpointKey(addr Address, op wire.OutPoint) []byte {
	e := encoding.NewEncoder()
	e.WriteVarBytes(addr)
	e.WriteHash(op.Hash)
	e.WriteU32LE(op.Index)
	return e.Bytes()
}

// deltaKey: address ‖ height_be(4) ‖ tx_index_be(4) ‖ io_index_le(4) — a
// prefix scan over just `address` yields chronological order because
// height and tx_index are big-endian; io_index is little-endian since
// within-tx ordering carries no chronological meaning, only identity.
func deltaKey(addr Address, height int32, txIndex uint32, ioIndex uint32) []byte {
	e := encoding.NewEncoder()
	e.WriteVarBytes(addr)
	e.WriteU32BE(uint32(height))
	e.WriteU32BE(txIndex)
	e.WriteU32LE(ioIndex)
	return e.Bytes()
}

func balanceKey(addr Address) []byte {
	e := encoding.NewEncoder()
	e.WriteVarBytes(addr)
	return e.Bytes()
}

// Delta is one signed value change to an address's balance.
type Delta struct {
	TxHash chainhash.Hash
	Value  int64 // positive for a received output, negative for a spent one
}

func (d Delta) encode() []byte {
	e := encoding.NewEncoder()
	e.WriteHash(d.TxHash)
	e.WriteI64LE(d.Value)
	return e.Bytes()
}

func decodeDelta(b []byte) (Delta, error) {
	d := encoding.NewDecoder(b)
	var out Delta
	var err error
	if out.TxHash, err = d.ReadHash(); err != nil {
		return Delta{}, err
	}
	if out.Value, err = d.ReadI64LE(); err != nil {
		return Delta{}, err
	}
	if err := d.Finish(); err != nil {
		return Delta{}, err
	}
	return out, nil
}

// BalanceEntry is addr's running transparent balance plus a tally of how
// many of its current outpoints carry exactly one of the six recognized
// fluxnode collateral amounts, split by tier and v1/v2 collateral epoch.
// Grounded on original_source's address_balance.rs AddressBalanceEntry;
// its on-disk `address` field is redundant here since the store already
// keys this column by address, so it is dropped from the encoding.
type BalanceEntry struct {
	Balance                        int64
	V1Cumulus, V1Nimbus, V1Stratus uint32
	V2Cumulus, V2Nimbus, V2Stratus uint32
}

func (e BalanceEntry) encode() []byte {
	enc := encoding.NewEncoder()
	enc.WriteI64LE(e.Balance)
	enc.WriteU32LE(e.V1Cumulus)
	enc.WriteU32LE(e.V1Nimbus)
	enc.WriteU32LE(e.V1Stratus)
	enc.WriteU32LE(e.V2Cumulus)
	enc.WriteU32LE(e.V2Nimbus)
	enc.WriteU32LE(e.V2Stratus)
	return enc.Bytes()
}

func decodeBalanceEntry(b []byte) (BalanceEntry, error) {
	d := encoding.NewDecoder(b)
	var e BalanceEntry
	var err error
	if e.Balance, err = d.ReadI64LE(); err != nil {
		return BalanceEntry{}, err
	}
	if e.V1Cumulus, err = d.ReadU32LE(); err != nil {
		return BalanceEntry{}, err
	}
	if e.V1Nimbus, err = d.ReadU32LE(); err != nil {
		return BalanceEntry{}, err
	}
	if e.V1Stratus, err = d.ReadU32LE(); err != nil {
		return BalanceEntry{}, err
	}
	if e.V2Cumulus, err = d.ReadU32LE(); err != nil {
		return BalanceEntry{}, err
	}
	if e.V2Nimbus, err = d.ReadU32LE(); err != nil {
		return BalanceEntry{}, err
	}
	if e.V2Stratus, err = d.ReadU32LE(); err != nil {
		return BalanceEntry{}, err
	}
	if err := d.Finish(); err != nil {
		return BalanceEntry{}, err
	}
	return e, nil
}

// adjustSlot bumps the counter for slot by delta (+1 on credit, -1 on
// debit); SlotNone is a no-op.
func (e *BalanceEntry) adjustSlot(slot params.FluxnodeCollateralSlot, delta int32) {
	var field *uint32
	switch slot {
	case params.SlotV1Cumulus:
		field = &e.V1Cumulus
	case params.SlotV1Nimbus:
		field = &e.V1Nimbus
	case params.SlotV1Stratus:
		field = &e.V1Stratus
	case params.SlotV2Cumulus:
		field = &e.V2Cumulus
	case params.SlotV2Nimbus:
		field = &e.V2Nimbus
	case params.SlotV2Stratus:
		field = &e.V2Stratus
	default:
		return
	}
	*field = uint32(int64(*field) + int64(delta))
}

// StageCredit records addr receiving value from creating op at (height,
// txIndex, ioIndex): inserts the outpoint, appends a positive delta,
// increments the balance and, if value matches a recognized fluxnode
// collateral amount, that slot's counter.
func StageCredit(db store.DB, batch *store.WriteBatch, addr Address, op wire.OutPoint, value int64, height int32, txIndex, ioIndex uint32, slot params.FluxnodeCollateralSlot) error {
	batch.Put(store.ColumnAddressOutpoint, outpointKey(addr, op), nil)
	batch.Put(store.ColumnAddressDelta, deltaKey(addr, height, txIndex, ioIndex), Delta{TxHash: op.Hash, Value: value}.encode())
	return stageBalanceDelta(db, batch, addr, value, slot, 1)
}

// StageDebit records addr's op being spent at (height, txIndex, ioIndex):
// removes the outpoint, appends a negative delta, decrements the balance
// and the matching collateral slot counter.
func StageDebit(db store.DB, batch *store.WriteBatch, addr Address, op wire.OutPoint, value int64, height int32, txIndex, ioIndex uint32, spendTxHash chainhash.Hash, slot params.FluxnodeCollateralSlot) error {
	batch.Delete(store.ColumnAddressOutpoint, outpointKey(addr, op))
	batch.Put(store.ColumnAddressDelta, deltaKey(addr, height, txIndex, ioIndex), Delta{TxHash: spendTxHash, Value: -value}.encode())
	return stageBalanceDelta(db, batch, addr, -value, slot, -1)
}

// UndoCredit reverses StageCredit (disconnect of a block that created op).
func UndoCredit(db store.DB, batch *store.WriteBatch, addr Address, op wire.OutPoint, value int64, height int32, txIndex, ioIndex uint32, slot params.FluxnodeCollateralSlot) error {
	batch.Delete(store.ColumnAddressOutpoint, outpointKey(addr, op))
	batch.Delete(store.ColumnAddressDelta, deltaKey(addr, height, txIndex, ioIndex))
	return stageBalanceDelta(db, batch, addr, -value, slot, -1)
}

// UndoDebit reverses StageDebit (disconnect of a block that spent op):
// re-inserts the outpoint and removes the negative delta.
func UndoDebit(db store.DB, batch *store.WriteBatch, addr Address, op wire.OutPoint, value int64, height int32, txIndex, ioIndex uint32, slot params.FluxnodeCollateralSlot) error {
	batch.Put(store.ColumnAddressOutpoint, outpointKey(addr, op), nil)
	batch.Delete(store.ColumnAddressDelta, deltaKey(addr, height, txIndex, ioIndex))
	return stageBalanceDelta(db, batch, addr, value, slot, 1)
}

func stageBalanceDelta(db store.DB, batch *store.WriteBatch, addr Address, delta int64, slot params.FluxnodeCollateralSlot, slotDelta int32) error {
	current, err := GetBalanceEntry(db, addr)
	if err != nil {
		return err
	}
	current.Balance += delta
	current.adjustSlot(slot, slotDelta)
	batch.Put(store.ColumnAddressBalance, balanceKey(addr), current.encode())
	return nil
}

// GetBalanceEntry returns addr's full balance record (zero value if
// never touched).
func GetBalanceEntry(db store.DB, addr Address) (BalanceEntry, error) {
	raw, err := db.Get(store.ColumnAddressBalance, balanceKey(addr))
	if err != nil {
		if err == store.ErrNotFound {
			return BalanceEntry{}, nil
		}
		return BalanceEntry{}, err
	}
	return decodeBalanceEntry(raw)
}

// Balance returns addr's current running balance (0 if never touched).
func Balance(db store.DB, addr Address) (int64, error) {
	e, err := GetBalanceEntry(db, addr)
	if err != nil {
		return 0, err
	}
	return e.Balance, nil
}

// Outpoints returns every outpoint currently attributed to addr.
func Outpoints(db store.DB, addr Address) ([]wire.OutPoint, error) {
	prefix := encoding.NewEncoder()
	prefix.WriteVarBytes(addr)
	pairs, err := db.ScanPrefix(store.ColumnAddressOutpoint, prefix.Bytes())
	if err != nil {
		return nil, err
	}
	out := make([]wire.OutPoint, 0, len(pairs))
	for _, p := range pairs {
		rest := p.Key[len(prefix.Bytes()):]
		if len(rest) != chainhash.Size+4 {
			continue
		}
		d := encoding.NewDecoder(rest)
		h, err := d.ReadHash()
		if err != nil {
			return nil, err
		}
		idx, err := d.ReadU32LE()
		if err != nil {
			return nil, err
		}
		out = append(out, wire.OutPoint{Hash: h, Index: idx})
	}
	return out, nil
}

// Deltas returns every delta recorded for addr, in chronological order.
func Deltas(db store.DB, addr Address) ([]Delta, error) {
	prefix := encoding.NewEncoder()
	prefix.WriteVarBytes(addr)
	pairs, err := db.ScanPrefix(store.ColumnAddressDelta, prefix.Bytes())
	if err != nil {
		return nil, err
	}
	out := make([]Delta, 0, len(pairs))
	for _, p := range pairs {
		d, err := decodeDelta(p.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
