// Package wire implements the on-disk/wire transaction, header, and block
// formats shared by every layer above L0: the single canonical codec that
// headers, transactions, and index values all use (SPEC_FULL.md §4.3/4.4).
//
// Grounded on the teacher's pkg/block and pkg/tx packages for API shape
// (Header/Block/Transaction types, Validate()-returns-error convention,
// builder pattern) and on original_source/fluxd_rust's transaction/header
// encoders for the exact five-shape transaction format and dual-shape
// header format, since the teacher's own formats (single flat Header,
// single Ed25519-signed Transaction) do not cover either.
package wire

import (
	"fmt"

	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// Consensus-wide size/value constants (SPEC_FULL.md §6, unconfigurable at
// runtime).
const (
	MaxBlockSize           = 2_000_000
	MaxBlockSigops         = 20_000
	MaxTxSizeBeforeSapling = 100_000
	CoinbaseMaturity       = 100
	TxExpiryHeightThreshold = 500_000_000
	ProtocolVersion        = 170_020
	SignedMessageMagic     = "Zelcash Signed Message:\n"

	MinBlockVersion    = 4
	MinPonBlockVersion = 100

	MaxMoney = 21_000_000_000 * 100_000_000 // generous upper bound on total supply, base units
)

// OutPoint addresses one transaction output: (txid, index).
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// IsNull reports whether op is the all-zero coinbase marker.
func (op OutPoint) IsNull() bool {
	return op.Hash.IsZero() && op.Index == 0xffffffff
}

func (op OutPoint) encode(e *encoding.Encoder) {
	e.WriteHash(op.Hash)
	e.WriteU32LE(op.Index)
}

func decodeOutPoint(d *encoding.Decoder) (OutPoint, error) {
	h, err := d.ReadHash()
	if err != nil {
		return OutPoint{}, err
	}
	idx, err := d.ReadU32LE()
	if err != nil {
		return OutPoint{}, err
	}
	return OutPoint{Hash: h, Index: idx}, nil
}

// String renders "txid:index" using the display (reversed) hash form.
func (op OutPoint) String() string {
	return fmt.Sprintf("%s:%d", op.Hash.String(), op.Index)
}
