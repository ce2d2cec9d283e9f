// Package spentindex records, for every spent transparent output, which
// transaction/input spent it — the reverse-lookup Insight-style explorers
// need to answer "who spent this output" without scanning every block.
// Grounded on the teacher's internal/chain.BlockStore tx-index pattern
// (hash-keyed pointer records in a dedicated column), generalized from a
// single tx-location pointer to a per-outpoint spender pointer.
package spentindex

import (
	"fmt"

	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/internal/wire"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// Info identifies the transaction and input that spent an output.
type Info struct {
	TxHash     chainhash.Hash
	InputIndex uint32
	Height     int32
}

func key(op wire.OutPoint) []byte {
	e := encoding.NewEncoder()
	e.WriteHash(op.Hash)
	e.WriteU32LE(op.Index)
	return e.Bytes()
}

// Encode returns the canonical on-disk encoding of info.
func (info Info) Encode() []byte {
	e := encoding.NewEncoder()
	e.WriteHash(info.TxHash)
	e.WriteU32LE(info.InputIndex)
	e.WriteI32LE(info.Height)
	return e.Bytes()
}

// Decode parses an Info from its on-disk encoding.
func Decode(b []byte) (Info, error) {
	d := encoding.NewDecoder(b)
	var info Info
	var err error
	if info.TxHash, err = d.ReadHash(); err != nil {
		return Info{}, err
	}
	if info.InputIndex, err = d.ReadU32LE(); err != nil {
		return Info{}, err
	}
	if info.Height, err = d.ReadI32LE(); err != nil {
		return Info{}, err
	}
	if err := d.Finish(); err != nil {
		return Info{}, err
	}
	return info, nil
}

// Get returns spend information for op, or ok=false if op is unspent (or
// unknown).
func Get(db store.DB, op wire.OutPoint) (Info, bool, error) {
	raw, err := db.Get(store.ColumnSpentIndex, key(op))
	if err != nil {
		if err == store.ErrNotFound {
			return Info{}, false, nil
		}
		return Info{}, false, fmt.Errorf("spentindex: get %s: %w", op, err)
	}
	info, err := Decode(raw)
	if err != nil {
		return Info{}, false, err
	}
	return info, true, nil
}

// StagePut stages a spend record for op into batch.
func StagePut(batch *store.WriteBatch, op wire.OutPoint, info Info) {
	batch.Put(store.ColumnSpentIndex, key(op), info.Encode())
}

// StageDelete stages the removal of a spend record (disconnect).
func StageDelete(batch *store.WriteBatch, op wire.OutPoint) {
	batch.Delete(store.ColumnSpentIndex, key(op))
}
