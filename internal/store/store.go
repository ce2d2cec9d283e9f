// Package store implements the column-partitioned ordered key-value store
// that backs every chainstate index: atomic multi-column batch commit,
// prefix scan, and the write-buffer/journal backpressure contract.
package store

import (
	"errors"
	"fmt"
)

// Column identifies a named partition of the single underlying keyspace.
// The backend has no native column families, so every physical key is
// prefixed with the column's one-byte tag.
type Column uint8

const (
	ColumnBlockIndex Column = iota
	ColumnHeaderIndex
	ColumnHeightIndex
	ColumnBlockHeader
	ColumnTxIndex
	ColumnSpentIndex
	ColumnUtxo
	ColumnAnchorSprout
	ColumnAnchorSapling
	ColumnNullifierSprout
	ColumnNullifierSapling
	ColumnFluxnode
	ColumnFluxnodeKey
	ColumnAddressOutpoint
	ColumnAddressDelta
	ColumnAddressBalance
	ColumnAddressTxTotal
	ColumnAddressTxCheckpoint
	ColumnAddressNeighbor
	ColumnAddressNeighborRank
	ColumnTimestampIndex
	ColumnBlockTimestamp
	ColumnBlockUndo
	ColumnMeta
	ColumnUnconnectedBlock

	numColumns
)

var columnNames = [numColumns]string{
	ColumnBlockIndex:          "block_index",
	ColumnHeaderIndex:         "header_index",
	ColumnHeightIndex:         "height_index",
	ColumnBlockHeader:         "block_header",
	ColumnTxIndex:             "tx_index",
	ColumnSpentIndex:          "spent_index",
	ColumnUtxo:                "utxo",
	ColumnAnchorSprout:        "anchor_sprout",
	ColumnAnchorSapling:       "anchor_sapling",
	ColumnNullifierSprout:     "nullifier_sprout",
	ColumnNullifierSapling:    "nullifier_sapling",
	ColumnFluxnode:            "fluxnode",
	ColumnFluxnodeKey:         "fluxnode_key",
	ColumnAddressOutpoint:     "address_outpoint",
	ColumnAddressDelta:        "address_delta",
	ColumnAddressBalance:      "address_balance",
	ColumnAddressTxTotal:      "address_tx_total",
	ColumnAddressTxCheckpoint: "address_tx_checkpoint",
	ColumnAddressNeighbor:     "address_neighbor",
	ColumnAddressNeighborRank: "address_neighbor_rank",
	ColumnTimestampIndex:      "timestamp_index",
	ColumnBlockTimestamp:      "block_timestamp",
	ColumnBlockUndo:           "block_undo",
	ColumnMeta:                "meta",
	ColumnUnconnectedBlock:    "unconnected_block",
}

// String returns the column's human-readable name.
func (c Column) String() string {
	if int(c) < len(columnNames) {
		return columnNames[c]
	}
	return fmt.Sprintf("column(%d)", c)
}

// ErrNotFound is returned by Get when the key does not exist in the column.
var ErrNotFound = errors.New("store: key not found")

// WriteOp is a single staged mutation within a WriteBatch.
type WriteOp struct {
	Column Column
	Key    []byte
	Value  []byte // nil for a delete
	Delete bool
}

// WriteBatch stages a set of mutations across one or more columns for a
// single atomic commit. It is the only write primitive the store exposes;
// there is no read-your-own-writes transaction API.
type WriteBatch struct {
	ops []WriteOp
}

// NewWriteBatch returns an empty batch.
func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

// Put stages a key/value write in column.
func (b *WriteBatch) Put(column Column, key, value []byte) {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	b.ops = append(b.ops, WriteOp{Column: column, Key: k, Value: v})
}

// Delete stages a key removal in column.
func (b *WriteBatch) Delete(column Column, key []byte) {
	k := append([]byte(nil), key...)
	b.ops = append(b.ops, WriteOp{Column: column, Key: k, Delete: true})
}

// Len returns the number of staged operations.
func (b *WriteBatch) Len() int {
	return len(b.ops)
}

// Ops returns the staged operations in order.
func (b *WriteBatch) Ops() []WriteOp {
	return b.ops
}

// KVPair is a decoded (key, value) pair returned by scans.
type KVPair struct {
	Key   []byte
	Value []byte
}

// PrefixVisitor is invoked for each (key, value) pair matching a prefix
// scan. Returning an error aborts the scan and propagates the error.
type PrefixVisitor func(key, value []byte) error

// DB is the store contract every backend (Badger-backed, in-memory) must
// satisfy.
type DB interface {
	// Get returns the value for key in column, or ErrNotFound.
	Get(column Column, key []byte) ([]byte, error)
	// Has reports whether key exists in column.
	Has(column Column, key []byte) (bool, error)
	// ScanPrefix returns every (key, value) pair in column whose key has
	// the given prefix, in lexicographic key order.
	ScanPrefix(column Column, prefix []byte) ([]KVPair, error)
	// ForEachPrefix streams matching pairs to visit without buffering the
	// full result set.
	ForEachPrefix(column Column, prefix []byte, visit PrefixVisitor) error
	// ScanRange returns every pair in column with start <= key < end.
	ScanRange(column Column, start, end []byte) ([]KVPair, error)
	// WriteBatch commits every staged op atomically: all effects become
	// visible together, or (on failure) none do.
	WriteBatch(batch *WriteBatch) error
	// Stats reports current backpressure telemetry.
	Stats() Stats
	// Close releases backend resources.
	Close() error
}

// Stats is a snapshot of store backpressure telemetry, per the KV Store
// backpressure contract: write-buffer bytes in use, journal bytes on disk,
// and counts of corrective actions taken.
type Stats struct {
	WriteBufferBytes    int64
	WriteBufferLimit    int64
	JournalBytes        int64
	JournalLimit        int64
	MemtableRotations   uint64
	ValueLogGCRuns      uint64
	LastCompactionCount int
}
