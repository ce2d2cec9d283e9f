// Package timestampindex maps block time to block hash so an explorer can
// answer "first block at/after time T" with a prefix scan instead of a
// linear height walk. Grounded on the teacher's internal/chain.BlockStore
// height index (big-endian key for contiguous range scans), generalized
// from height to timestamp ordering per spec.md §6's TimestampIndex/
// BlockTimestamp column pair.
package timestampindex

import (
	"fmt"

	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// timestampKey is big-endian time ‖ big-endian hash, so a prefix/range scan
// over ColumnTimestampIndex yields ascending chronological order even
// across equal timestamps.
func timestampKey(blockTime uint32, hash chainhash.Hash) []byte {
	e := encoding.NewEncoder()
	e.WriteU32BE(blockTime)
	e.WriteHash(hash)
	return e.Bytes()
}

func blockTimeKey(hash chainhash.Hash) []byte {
	return hash.Bytes()
}

// StagePut stages both the forward (time->hash) and reverse (hash->time)
// records for a connected block into batch.
func StagePut(batch *store.WriteBatch, hash chainhash.Hash, blockTime uint32) {
	batch.Put(store.ColumnTimestampIndex, timestampKey(blockTime, hash), nil)
	e := encoding.NewEncoder()
	e.WriteU32LE(blockTime)
	batch.Put(store.ColumnBlockTimestamp, blockTimeKey(hash), e.Bytes())
}

// StageDelete reverses StagePut (disconnect). blockTime must be the value
// previously recorded for hash.
func StageDelete(batch *store.WriteBatch, hash chainhash.Hash, blockTime uint32) {
	batch.Delete(store.ColumnTimestampIndex, timestampKey(blockTime, hash))
	batch.Delete(store.ColumnBlockTimestamp, blockTimeKey(hash))
}

// GetBlockTime returns the timestamp recorded for hash.
func GetBlockTime(db store.DB, hash chainhash.Hash) (uint32, bool, error) {
	raw, err := db.Get(store.ColumnBlockTimestamp, blockTimeKey(hash))
	if err != nil {
		if err == store.ErrNotFound {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("timestampindex: get %s: %w", hash, err)
	}
	d := encoding.NewDecoder(raw)
	v, err := d.ReadU32LE()
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// HashesFrom returns every block hash with timestamp >= fromTime, in
// ascending chronological order, by range-scanning ColumnTimestampIndex.
func HashesFrom(db store.DB, fromTime uint32) ([]chainhash.Hash, error) {
	start := encoding.NewEncoder()
	start.WriteU32BE(fromTime)
	end := []byte{0xff, 0xff, 0xff, 0xff}

	pairs, err := db.ScanRange(store.ColumnTimestampIndex, start.Bytes(), end)
	if err != nil {
		return nil, err
	}
	out := make([]chainhash.Hash, 0, len(pairs))
	for _, p := range pairs {
		if len(p.Key) < 4+chainhash.Size {
			continue
		}
		var h chainhash.Hash
		copy(h[:], p.Key[4:4+chainhash.Size])
		out = append(out, h)
	}
	return out, nil
}
