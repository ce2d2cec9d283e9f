// Package chainhash provides the 256-bit hash type and double-SHA256
// hashing used throughout the chainstate engine for header hashes, txids,
// and merkle roots.
package chainhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the length of a Hash in bytes.
const Size = 32

// Hash is a 256-bit hash value, stored little-endian on disk and displayed
// big-endian (reversed) in user-facing hex per historical Bitcoin-family
// convention.
type Hash [Size]byte

// ZeroHash is the all-zero hash, used as the coinbase prevout txid sentinel.
var ZeroHash = Hash{}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Bytes returns a copy of h as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// String returns the reversed-byte-order hex encoding, matching the
// historical big-endian display convention for block/tx hashes.
func (h Hash) String() string {
	var reversed Hash
	for i := 0; i < Size; i++ {
		reversed[i] = h[Size-1-i]
	}
	return hex.EncodeToString(reversed[:])
}

// NewHashFromStr parses a reversed-byte-order hex string into a Hash.
func NewHashFromStr(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("chainhash: invalid hex: %w", err)
	}
	if len(b) != Size {
		return Hash{}, fmt.Errorf("chainhash: hash must be %d bytes, got %d", Size, len(b))
	}
	var h Hash
	for i := 0; i < Size; i++ {
		h[i] = b[Size-1-i]
	}
	return h, nil
}

// Compare returns -1, 0, or 1 depending on the lexicographic (little-endian
// byte) ordering of h and other.
func (h Hash) Compare(other Hash) int {
	for i := 0; i < Size; i++ {
		if h[i] != other[i] {
			if h[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// HashB returns SHA256d(b) — double SHA-256, the consensus hash function
// for headers, transactions, and merkle nodes.
func HashB(b []byte) Hash {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return Hash(second)
}

// HashH returns the single-round SHA-256 of b as a raw [32]byte array, for
// callers that need the non-doubled hash (e.g. hash160's inner step).
func HashH(b []byte) [32]byte {
	return sha256.Sum256(b)
}
