// Package utxo implements the UTXO set index: the L2 record of every
// currently-spendable transparent output, keyed by outpoint in
// store.ColumnUtxo. Grounded on the teacher's internal/utxo.Store for the
// Get/Put/Delete contract shape, generalized from the teacher's one-shape
// UTXO (script+token) to this chain's richer entry (coinbase maturity,
// scriptPubKey bytes instead of a typed script, no token field — tokens are
// out of this spec's scope).
package utxo

import (
	"fmt"

	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/internal/wire"
)

// Entry is one unspent transparent output.
type Entry struct {
	Value        int64
	ScriptPubKey []byte
	Height       int32
	IsCoinbase   bool
}

// IsMature reports whether a coinbase entry has cleared CoinbaseMaturity
// confirmations as of spendHeight. Non-coinbase entries are always mature.
func (e Entry) IsMature(spendHeight int32) bool {
	if !e.IsCoinbase {
		return true
	}
	return spendHeight-e.Height >= wire.CoinbaseMaturity
}

func key(op wire.OutPoint) []byte {
	e := encoding.NewEncoder()
	e.WriteHash(op.Hash)
	e.WriteU32LE(op.Index)
	return e.Bytes()
}

// Encode returns the canonical on-disk encoding of e.
func (e Entry) Encode() []byte {
	enc := encoding.NewEncoder()
	enc.WriteI64LE(e.Value)
	enc.WriteVarBytes(e.ScriptPubKey)
	enc.WriteI32LE(e.Height)
	enc.WriteBool(e.IsCoinbase)
	return enc.Bytes()
}

// Decode parses an Entry from its on-disk encoding.
func Decode(b []byte) (Entry, error) {
	d := encoding.NewDecoder(b)
	var e Entry
	var err error
	if e.Value, err = d.ReadI64LE(); err != nil {
		return Entry{}, err
	}
	if e.ScriptPubKey, err = d.ReadVarBytes(); err != nil {
		return Entry{}, err
	}
	if e.Height, err = d.ReadI32LE(); err != nil {
		return Entry{}, err
	}
	if e.IsCoinbase, err = d.ReadBool(); err != nil {
		return Entry{}, err
	}
	if err := d.Finish(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Get looks up the UTXO for op. The bool result is false if op is unspent
// and nonexistent (either never created or already spent).
func Get(db store.DB, op wire.OutPoint) (Entry, bool, error) {
	raw, err := db.Get(store.ColumnUtxo, key(op))
	if err != nil {
		if err == store.ErrNotFound {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("utxo: get %s: %w", op, err)
	}
	e, err := Decode(raw)
	if err != nil {
		return Entry{}, false, fmt.Errorf("utxo: decode %s: %w", op, err)
	}
	return e, true, nil
}

// StagePut stages the creation of op's UTXO entry into batch.
func StagePut(batch *store.WriteBatch, op wire.OutPoint, e Entry) {
	batch.Put(store.ColumnUtxo, key(op), e.Encode())
}

// StageDelete stages the removal of op's UTXO entry into batch (a spend).
func StageDelete(batch *store.WriteBatch, op wire.OutPoint) {
	batch.Delete(store.ColumnUtxo, key(op))
}

// IsProvablyUnspendable reports whether scriptPubKey can never be spent
// (an OP_RETURN data-carrier output), so a UTXO for it should never be
// created — spec.md §4.7 connect step 4.
func IsProvablyUnspendable(scriptPubKey []byte) bool {
	const opReturn = 0x6a
	return len(scriptPubKey) > 0 && scriptPubKey[0] == opReturn
}
