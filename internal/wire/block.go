package wire

import (
	"fmt"

	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// Block is a header plus its transaction list, wrapped in the encoding the
// flat-file log stores verbatim (spec.md §4.4/§6 "block wire/on-disk
// format"). Grounded on the teacher's pkg/block.Block for the API shape
// (Header/Transactions fields, Hash() delegates to header).
type Block struct {
	Header       *Header
	Transactions []*Transaction
}

// Hash returns the block's identity: its header hash. A nil header hashes
// to the zero hash, matching the teacher's defensive convention.
func (b *Block) Hash() chainhash.Hash {
	if b.Header == nil {
		return chainhash.ZeroHash
	}
	return b.Header.Hash()
}

// Encode returns the canonical on-disk/wire bytes for b: header followed by
// a CompactSize transaction count and each transaction's encoding.
func (b *Block) Encode() ([]byte, error) {
	if b.Header == nil {
		return nil, fmt.Errorf("wire: block has no header")
	}
	e := encoding.NewEncoder()
	e.WriteBytes(b.Header.Encode())
	e.WriteCompactSize(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		txBytes, err := tx.Encode()
		if err != nil {
			return nil, err
		}
		e.WriteBytes(txBytes)
	}
	return e.Bytes(), nil
}

// DecodeBlock parses a block from b.
func DecodeBlock(b []byte) (*Block, error) {
	d := encoding.NewDecoder(b)
	header, err := decodeHeader(d)
	if err != nil {
		return nil, err
	}
	n, err := d.ReadCompactSize()
	if err != nil {
		return nil, err
	}
	txs := make([]*Transaction, n)
	for i := range txs {
		tx, err := decodeTransaction(d)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return &Block{Header: header, Transactions: txs}, nil
}

// MerkleLeaves returns the block's transaction hashes in wire order, the
// input ComputeMerkleRoot is run over to validate Header.MerkleRoot.
func (b *Block) MerkleLeaves() ([]chainhash.Hash, error) {
	leaves := make([]chainhash.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		h, err := tx.Hash()
		if err != nil {
			return nil, fmt.Errorf("wire: hashing transaction %d: %w", i, err)
		}
		leaves[i] = h
	}
	return leaves, nil
}
