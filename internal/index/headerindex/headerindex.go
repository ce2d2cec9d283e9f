// Package headerindex implements the header DAG: every known header (with
// or without its body), its cumulative chainwork, validation status, and a
// skiplist ancestor pointer for O(log n) common-ancestor search during
// reorg. Grounded on the teacher's internal/chain.BlockStore for the
// height<->hash index shape, generalized from the teacher's single linear
// chain (one block per height, no orphan/failed headers) to a header-first
// DAG per spec.md §4.7 ("Header-first acceptance").
package headerindex

import (
	"fmt"
	"math/big"

	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/internal/wire"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// Status is a bitset of what is known/true about a header.
type Status uint8

const (
	// StatusHasHeader is set once the header itself (not necessarily the
	// body) has been accepted and linked into the DAG.
	StatusHasHeader Status = 1 << iota
	// StatusHasBlock is set once the full block has been connected.
	StatusHasBlock
	// StatusFailedValidation is set on a header that failed connect, or
	// that descends from one that did (spec.md testable property 11).
	StatusFailedValidation
)

// Entry is one header's DAG record.
type Entry struct {
	Header    *wire.Header
	Height    int32
	ChainWork *big.Int
	Status    Status
	SkipHash  chainhash.Hash // ancestor at SkipHeight(height); zero at genesis
}

// HasStatus reports whether all bits of flag are set.
func (e Entry) HasStatus(flag Status) bool {
	return e.Status&flag == flag
}

func headerKey(hash chainhash.Hash) []byte {
	return hash.Bytes()
}

func heightKey(height int32) []byte {
	e := encoding.NewEncoder()
	e.WriteU32BE(uint32(height))
	return e.Bytes()
}

// Encode returns the canonical on-disk encoding of e.
func (e Entry) Encode() []byte {
	enc := encoding.NewEncoder()
	enc.WriteVarBytes(e.Header.Encode())
	enc.WriteI32LE(e.Height)
	work := e.ChainWork
	if work == nil {
		work = new(big.Int)
	}
	enc.WriteVarBytes(work.Bytes())
	enc.WriteU8(uint8(e.Status))
	enc.WriteHash(e.SkipHash)
	return enc.Bytes()
}

// Decode parses an Entry from its on-disk encoding.
func Decode(b []byte) (Entry, error) {
	d := encoding.NewDecoder(b)
	var e Entry
	var err error

	headerBytes, err := d.ReadVarBytes()
	if err != nil {
		return Entry{}, err
	}
	e.Header, err = wire.DecodeHeader(headerBytes)
	if err != nil {
		return Entry{}, fmt.Errorf("headerindex: decode header: %w", err)
	}

	if e.Height, err = d.ReadI32LE(); err != nil {
		return Entry{}, err
	}
	workBytes, err := d.ReadVarBytes()
	if err != nil {
		return Entry{}, err
	}
	e.ChainWork = new(big.Int).SetBytes(workBytes)
	status, err := d.ReadU8()
	if err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	if e.SkipHash, err = d.ReadHash(); err != nil {
		return Entry{}, err
	}
	if err := d.Finish(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Get looks up the header entry for hash.
func Get(db store.DB, hash chainhash.Hash) (Entry, bool, error) {
	raw, err := db.Get(store.ColumnHeaderIndex, headerKey(hash))
	if err != nil {
		if err == store.ErrNotFound {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("headerindex: get %s: %w", hash, err)
	}
	e, err := Decode(raw)
	if err != nil {
		return Entry{}, false, fmt.Errorf("headerindex: decode %s: %w", hash, err)
	}
	return e, true, nil
}

// GetHashAtHeight looks up the main-chain hash stored for height.
func GetHashAtHeight(db store.DB, height int32) (chainhash.Hash, bool, error) {
	raw, err := db.Get(store.ColumnHeightIndex, heightKey(height))
	if err != nil {
		if err == store.ErrNotFound {
			return chainhash.Hash{}, false, nil
		}
		return chainhash.Hash{}, false, err
	}
	var h chainhash.Hash
	copy(h[:], raw)
	return h, true, nil
}

// StagePutHeader stages the header entry write into batch.
func StagePutHeader(batch *store.WriteBatch, hash chainhash.Hash, e Entry) {
	batch.Put(store.ColumnHeaderIndex, headerKey(hash), e.Encode())
}

// StageSetHeightIndex stages the height->hash pointer for the main chain.
func StageSetHeightIndex(batch *store.WriteBatch, height int32, hash chainhash.Hash) {
	batch.Put(store.ColumnHeightIndex, heightKey(height), hash.Bytes())
}

// StageDeleteHeightIndex stages the removal of a height->hash pointer
// (disconnect).
func StageDeleteHeightIndex(batch *store.WriteBatch, height int32) {
	batch.Delete(store.ColumnHeightIndex, heightKey(height))
}

// skipOffset computes the height a header at height skips back to, using
// Bitcoin Core's CBlockIndex GetSkipHeight construction for pskip (even
// heights clear their lowest set bit; odd heights clear the two lowest set
// bits of height-1 and add one), generalized from the teacher (which has no
// skiplist at all, since its chain is a single linear sequence with no
// deep-ancestor queries).
func skipOffset(height int32) int32 {
	if height < 2 {
		return 0
	}
	if height&1 != 0 {
		return invertLowestOne(invertLowestOne(height-1)) + 1
	}
	return invertLowestOne(height)
}

func invertLowestOne(n int32) int32 {
	return n & (n - 1)
}

func getAncestorSkipList(height int32) int32 {
	if height <= 0 {
		return 0
	}
	half := height / 2
	if height&1 == 0 {
		if invertLowestOne(height) == invertLowestOne(half)+half {
			return half
		}
	}
	return height - 1
}

// SkipHeight returns the height SkipHash should point at for a header at
// height, per skipOffset.
func SkipHeight(height int32) int32 {
	if height == 0 {
		return 0
	}
	return skipOffset(height)
}

// FindAncestor walks hash's ancestor chain using skip pointers where
// possible to reach targetHeight in O(log n) hops.
func FindAncestor(db store.DB, hash chainhash.Hash, targetHeight int32) (chainhash.Hash, error) {
	cur, ok, err := Get(db, hash)
	if err != nil {
		return chainhash.Hash{}, err
	}
	if !ok {
		return chainhash.Hash{}, fmt.Errorf("headerindex: unknown header %s", hash)
	}
	curHash := hash
	for cur.Height > targetHeight {
		skipHeight := SkipHeight(cur.Height)
		if !cur.SkipHash.IsZero() && skipHeight >= targetHeight {
			curHash = cur.SkipHash
		} else {
			curHash = cur.Header.PrevBlock
		}
		cur, ok, err = Get(db, curHash)
		if err != nil {
			return chainhash.Hash{}, err
		}
		if !ok {
			return chainhash.Hash{}, fmt.Errorf("headerindex: ancestor lookup broke chain at %s", curHash)
		}
	}
	return curHash, nil
}

// LowestCommonAncestor walks both tips down to the height of the shorter
// one, then walks both up in lockstep until the hashes match.
func LowestCommonAncestor(db store.DB, a, b chainhash.Hash) (chainhash.Hash, error) {
	ea, ok, err := Get(db, a)
	if err != nil {
		return chainhash.Hash{}, err
	}
	if !ok {
		return chainhash.Hash{}, fmt.Errorf("headerindex: unknown header %s", a)
	}
	eb, ok, err := Get(db, b)
	if err != nil {
		return chainhash.Hash{}, err
	}
	if !ok {
		return chainhash.Hash{}, fmt.Errorf("headerindex: unknown header %s", b)
	}

	if ea.Height > eb.Height {
		a, err = FindAncestor(db, a, eb.Height)
		if err != nil {
			return chainhash.Hash{}, err
		}
	} else if eb.Height > ea.Height {
		b, err = FindAncestor(db, b, ea.Height)
		if err != nil {
			return chainhash.Hash{}, err
		}
		eb, ok, err = Get(db, b)
		if err != nil {
			return chainhash.Hash{}, err
		}
		if !ok {
			return chainhash.Hash{}, fmt.Errorf("headerindex: unknown header %s", b)
		}
	}

	for a != b {
		ea, ok, err := Get(db, a)
		if err != nil {
			return chainhash.Hash{}, err
		}
		if !ok || ea.Height == 0 {
			return chainhash.Hash{}, fmt.Errorf("headerindex: no common ancestor between %s and %s", a, b)
		}
		a = ea.Header.PrevBlock
		b = eb.Header.PrevBlock
		eb, ok, err = Get(db, b)
		if err != nil {
			return chainhash.Hash{}, err
		}
		if !ok {
			return chainhash.Hash{}, fmt.Errorf("headerindex: broken chain at %s", b)
		}
	}
	return a, nil
}
