// Package txindex maps a txid to the block that confirmed it, so a node
// can answer "which block has this transaction" without scanning the
// flat-file log. Grounded directly on the teacher's
// internal/chain.BlockStore.GetTxLocation/PutTxIndex pattern.
package txindex

import (
	"fmt"

	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// Location identifies where a confirmed transaction lives.
type Location struct {
	BlockHash chainhash.Hash
	Height    int32
	TxIndex   uint32 // position within the block's transaction list
}

func key(txHash chainhash.Hash) []byte {
	return txHash.Bytes()
}

// Encode returns the canonical on-disk encoding of loc.
func (loc Location) Encode() []byte {
	e := encoding.NewEncoder()
	e.WriteHash(loc.BlockHash)
	e.WriteI32LE(loc.Height)
	e.WriteU32LE(loc.TxIndex)
	return e.Bytes()
}

// Decode parses a Location from its on-disk encoding.
func Decode(b []byte) (Location, error) {
	d := encoding.NewDecoder(b)
	var loc Location
	var err error
	if loc.BlockHash, err = d.ReadHash(); err != nil {
		return Location{}, err
	}
	if loc.Height, err = d.ReadI32LE(); err != nil {
		return Location{}, err
	}
	if loc.TxIndex, err = d.ReadU32LE(); err != nil {
		return Location{}, err
	}
	if err := d.Finish(); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// Get looks up where txHash was confirmed.
func Get(db store.DB, txHash chainhash.Hash) (Location, bool, error) {
	raw, err := db.Get(store.ColumnTxIndex, key(txHash))
	if err != nil {
		if err == store.ErrNotFound {
			return Location{}, false, nil
		}
		return Location{}, false, fmt.Errorf("txindex: get %s: %w", txHash, err)
	}
	loc, err := Decode(raw)
	if err != nil {
		return Location{}, false, err
	}
	return loc, true, nil
}

// StagePut stages a tx-location write into batch.
func StagePut(batch *store.WriteBatch, txHash chainhash.Hash, loc Location) {
	batch.Put(store.ColumnTxIndex, key(txHash), loc.Encode())
}

// StageDelete stages the removal of a tx-location record (disconnect).
func StageDelete(batch *store.WriteBatch, txHash chainhash.Hash) {
	batch.Delete(store.ColumnTxIndex, key(txHash))
}
