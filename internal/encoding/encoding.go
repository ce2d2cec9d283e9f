// Package encoding implements the canonical little-endian primitive codec
// and the CompactSize varint format shared by every on-disk record and wire
// structure in the chainstate engine.
package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// ErrTrailingBytes is returned by a Decoder's Finish method when bytes
// remain after a complete decode.
var ErrTrailingBytes = errors.New("encoding: trailing bytes after decode")

// MaxCompactSize is the largest value the CompactSize decoder accepts.
// Values above this are almost certainly a corrupt or hostile length field.
const MaxCompactSize = 0x0200_0000

// Encoder accumulates bytes for a canonical encoding.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the accumulated encoding.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) WriteU8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteU8(1)
	} else {
		e.WriteU8(0)
	}
}

func (e *Encoder) WriteU16LE(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteU32LE(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteI32LE(v int32) {
	e.WriteU32LE(uint32(v))
}

func (e *Encoder) WriteU64LE(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteI64LE(v int64) {
	e.WriteU64LE(uint64(v))
}

func (e *Encoder) WriteU32BE(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// WriteBytes appends raw bytes with no length prefix.
func (e *Encoder) WriteBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// WriteHash appends a Hash in its on-disk (little-endian) byte order.
func (e *Encoder) WriteHash(h chainhash.Hash) {
	e.buf = append(e.buf, h[:]...)
}

// WriteCompactSize appends a CompactSize-encoded unsigned integer.
func (e *Encoder) WriteCompactSize(v uint64) {
	switch {
	case v < 0xfd:
		e.WriteU8(uint8(v))
	case v <= 0xffff:
		e.WriteU8(0xfd)
		e.WriteU16LE(uint16(v))
	case v <= 0xffffffff:
		e.WriteU8(0xfe)
		e.WriteU32LE(uint32(v))
	default:
		e.WriteU8(0xff)
		e.WriteU64LE(v)
	}
}

// WriteVarBytes appends a CompactSize length followed by the bytes.
func (e *Encoder) WriteVarBytes(b []byte) {
	e.WriteCompactSize(uint64(len(b)))
	e.WriteBytes(b)
}

// WriteVarStr appends a var_bytes encoding of a UTF-8 string.
func (e *Encoder) WriteVarStr(s string) {
	e.WriteVarBytes([]byte(s))
}

// Decoder reads a canonical encoding from a byte slice, tracking an offset.
type Decoder struct {
	b   []byte
	off int
}

// NewDecoder wraps b for sequential decoding.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{b: b}
}

// Remaining returns the number of unconsumed bytes.
func (d *Decoder) Remaining() int {
	return len(d.b) - d.off
}

// IsEmpty reports whether all bytes have been consumed.
func (d *Decoder) IsEmpty() bool {
	return d.Remaining() == 0
}

// Finish returns ErrTrailingBytes if bytes remain.
func (d *Decoder) Finish() error {
	if !d.IsEmpty() {
		return ErrTrailingBytes
	}
	return nil
}

func (d *Decoder) need(n int) error {
	if d.Remaining() < n {
		return fmt.Errorf("encoding: need %d bytes, have %d", n, d.Remaining())
	}
	return nil
}

func (d *Decoder) ReadU8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.b[d.off]
	d.off++
	return v, nil
}

func (d *Decoder) ReadBool() (bool, error) {
	v, err := d.ReadU8()
	return v != 0, err
}

func (d *Decoder) ReadU16LE() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.b[d.off:])
	d.off += 2
	return v, nil
}

func (d *Decoder) ReadU32LE() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.b[d.off:])
	d.off += 4
	return v, nil
}

func (d *Decoder) ReadI32LE() (int32, error) {
	v, err := d.ReadU32LE()
	return int32(v), err
}

func (d *Decoder) ReadU64LE() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.b[d.off:])
	d.off += 8
	return v, nil
}

func (d *Decoder) ReadI64LE() (int64, error) {
	v, err := d.ReadU64LE()
	return int64(v), err
}

func (d *Decoder) ReadU32BE() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.b[d.off:])
	d.off += 4
	return v, nil
}

// ReadFixed reads exactly n raw bytes.
func (d *Decoder) ReadFixed(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.b[d.off:d.off+n])
	d.off += n
	return out, nil
}

// ReadHash reads a 32-byte Hash.
func (d *Decoder) ReadHash() (chainhash.Hash, error) {
	raw, err := d.ReadFixed(chainhash.Size)
	if err != nil {
		return chainhash.Hash{}, err
	}
	var h chainhash.Hash
	copy(h[:], raw)
	return h, nil
}

// ReadCompactSize reads a CompactSize integer, rejecting any encoding that
// is not the canonical minimal-length form for its value, and rejecting
// values over MaxCompactSize.
func (d *Decoder) ReadCompactSize() (uint64, error) {
	tag, err := d.ReadU8()
	if err != nil {
		return 0, err
	}
	var v uint64
	switch tag {
	case 0xff:
		v, err = d.ReadU64LE()
		if err != nil {
			return 0, err
		}
		if v <= 0xffffffff {
			return 0, fmt.Errorf("encoding: non-canonical compact size (0xff tag, value %d)", v)
		}
	case 0xfe:
		v32, err2 := d.ReadU32LE()
		if err2 != nil {
			return 0, err2
		}
		v = uint64(v32)
		if v <= 0xffff {
			return 0, fmt.Errorf("encoding: non-canonical compact size (0xfe tag, value %d)", v)
		}
	case 0xfd:
		v16, err2 := d.ReadU16LE()
		if err2 != nil {
			return 0, err2
		}
		v = uint64(v16)
		if v < 0xfd {
			return 0, fmt.Errorf("encoding: non-canonical compact size (0xfd tag, value %d)", v)
		}
	default:
		v = uint64(tag)
	}
	if v > MaxCompactSize {
		return 0, fmt.Errorf("encoding: compact size %d exceeds maximum %d", v, MaxCompactSize)
	}
	return v, nil
}

// ReadVarBytes reads a CompactSize-prefixed byte string.
func (d *Decoder) ReadVarBytes() ([]byte, error) {
	n, err := d.ReadCompactSize()
	if err != nil {
		return nil, err
	}
	return d.ReadFixed(int(n))
}

// ReadVarStr reads a var_bytes payload and validates it as UTF-8.
func (d *Decoder) ReadVarStr() (string, error) {
	b, err := d.ReadVarBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New("encoding: invalid utf-8 in var_str")
	}
	return string(b), nil
}
