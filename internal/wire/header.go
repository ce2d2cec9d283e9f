package wire

import (
	"errors"

	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// Header is a block header in either of its two wire shapes. The shape is
// selected by Version: version >= MinPonBlockVersion is a PoN header
// (NodesCollateral + BlockSig); below that it is a PoW header (Nonce +
// Solution). Grounded on the teacher's pkg/block.Header for the
// SigningBytes/Hash split, generalized from the teacher's single PoA shape
// to these two mutually exclusive shapes per spec.md §4.4.
type Header struct {
	Version    uint32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Time       uint32
	Bits       uint32

	// PoW fields.
	Nonce    [32]byte
	Solution []byte

	// PoN fields.
	NodesCollateral OutPoint
	BlockSig        []byte
}

// IsPoN reports whether h uses the PoN header shape.
func (h *Header) IsPoN() bool {
	return h.Version >= MinPonBlockVersion
}

// Encode returns the full on-wire encoding, including the PoN signature
// tail if present. This is what a node sends/stores, not what it hashes.
func (h *Header) Encode() []byte {
	e := encoding.NewEncoder()
	h.encodeCommon(e)
	if h.IsPoN() {
		h.NodesCollateral.encode(e)
		e.WriteVarBytes(h.BlockSig)
	} else {
		e.WriteBytes(h.Nonce[:])
		e.WriteVarBytes(h.Solution)
	}
	return e.Bytes()
}

// HashingBytes returns the encoding the header hash is computed over: the
// full PoW encoding, or the PoN encoding with the block_sig tail stripped
// (signatures sign the hash, so they cannot be part of what is hashed).
func (h *Header) HashingBytes() []byte {
	e := encoding.NewEncoder()
	h.encodeCommon(e)
	if h.IsPoN() {
		h.NodesCollateral.encode(e)
	} else {
		e.WriteBytes(h.Nonce[:])
		e.WriteVarBytes(h.Solution)
	}
	return e.Bytes()
}

func (h *Header) encodeCommon(e *encoding.Encoder) {
	e.WriteU32LE(h.Version)
	e.WriteHash(h.PrevBlock)
	e.WriteHash(h.MerkleRoot)
	e.WriteU32LE(h.Time)
	e.WriteU32LE(h.Bits)
}

// Hash returns SHA256d(HashingBytes()), the header's identity.
func (h *Header) Hash() chainhash.Hash {
	return chainhash.HashB(h.HashingBytes())
}

// DecodeHeader parses a header from b, dispatching on the version field to
// select the PoW or PoN tail shape.
func DecodeHeader(b []byte) (*Header, error) {
	d := encoding.NewDecoder(b)
	h, err := decodeHeader(d)
	if err != nil {
		return nil, err
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return h, nil
}

func decodeHeader(d *encoding.Decoder) (*Header, error) {
	var h Header
	var err error
	if h.Version, err = d.ReadU32LE(); err != nil {
		return nil, err
	}
	if h.PrevBlock, err = d.ReadHash(); err != nil {
		return nil, err
	}
	if h.MerkleRoot, err = d.ReadHash(); err != nil {
		return nil, err
	}
	if h.Time, err = d.ReadU32LE(); err != nil {
		return nil, err
	}
	if h.Bits, err = d.ReadU32LE(); err != nil {
		return nil, err
	}

	if h.IsPoN() {
		if h.NodesCollateral, err = decodeOutPoint(d); err != nil {
			return nil, err
		}
		if h.BlockSig, err = d.ReadVarBytes(); err != nil {
			return nil, err
		}
		return &h, nil
	}

	nonce, err := d.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	copy(h.Nonce[:], nonce)
	if h.Solution, err = d.ReadVarBytes(); err != nil {
		return nil, err
	}
	return &h, nil
}

// ErrHeaderShapeMismatch is returned when a header's declared version does
// not agree with the shape expected for the chain's active upgrade at its
// height (checked by internal/validation, not here).
var ErrHeaderShapeMismatch = errors.New("wire: header shape does not match version")
