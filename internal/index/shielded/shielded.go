// Package shielded tracks the append-only Sprout/Sapling note-commitment
// tree roots ("anchors") each block contributes, and the nullifier sets
// that prevent double-spending a shielded note. Proof verification itself
// is delegated to a separate verifier (out of scope here, per spec.md's
// non-goals); this package only stores and snapshots the state that
// delegated verification and connect/disconnect need. Grounded on
// spec.md §4.7 item 6 ("snapshot prior Sprout+Sapling trees for undo,
// append this block's note commitments, store the new root under its
// hash") — the teacher has no shielded pool at all, so the anchor/
// nullifier record shapes are built fresh from that design note.
package shielded

import (
	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// Pool selects which shielded pool (Sprout or Sapling) an operation
// applies to — each has its own anchor and nullifier column.
type Pool int

const (
	PoolSprout Pool = iota
	PoolSapling
)

func anchorColumn(p Pool) store.Column {
	if p == PoolSprout {
		return store.ColumnAnchorSprout
	}
	return store.ColumnAnchorSapling
}

func nullifierColumn(p Pool) store.Column {
	if p == PoolSprout {
		return store.ColumnNullifierSprout
	}
	return store.ColumnNullifierSapling
}

// CurrentAnchor returns the tree root currently active for pool, tracked
// under the fixed meta-style key "current".
func CurrentAnchor(db store.DB, pool Pool) (chainhash.Hash, bool, error) {
	raw, err := db.Get(anchorColumn(pool), []byte("current"))
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

// StageAppendAnchor records newRoot as pool's current anchor after
// appending this block's note commitments, and also records newRoot in the
// pool's anchor history, so IsKnownAnchor accepts spends referencing any
// root that was ever current, not just the current one (Sprout/Sapling
// spends may reference an older anchor still within the validity window).
func StageAppendAnchor(batch *store.WriteBatch, pool Pool, newRoot chainhash.Hash) {
	batch.Put(anchorColumn(pool), []byte("current"), newRoot.Bytes())
	batch.Put(anchorColumn(pool), newRoot.Bytes(), []byte{1})
}

// StageRestoreAnchor sets pool's current anchor back to prevRoot
// (disconnect). The history entry for the abandoned root is left in
// place — anchors are never deleted, only superseded, matching the
// append-only nature of the commitment tree.
func StageRestoreAnchor(batch *store.WriteBatch, pool Pool, prevRoot chainhash.Hash) {
	batch.Put(anchorColumn(pool), []byte("current"), prevRoot.Bytes())
}

// StageClearAnchor removes pool's current-anchor pointer entirely
// (disconnect of the block that produced pool's very first anchor, so no
// prior anchor exists to restore).
func StageClearAnchor(batch *store.WriteBatch, pool Pool) {
	batch.Delete(anchorColumn(pool), []byte("current"))
}

// IsKnownAnchor reports whether root has ever been pool's current anchor.
func IsKnownAnchor(db store.DB, pool Pool, root chainhash.Hash) (bool, error) {
	return db.Has(anchorColumn(pool), root.Bytes())
}

// HasNullifier reports whether nf has already been spent in pool.
func HasNullifier(db store.DB, pool Pool, nf chainhash.Hash) (bool, error) {
	return db.Has(nullifierColumn(pool), nf.Bytes())
}

// StageAddNullifier marks nf spent in pool.
func StageAddNullifier(batch *store.WriteBatch, pool Pool, nf chainhash.Hash) {
	batch.Put(nullifierColumn(pool), nf.Bytes(), []byte{1})
}

// StageRemoveNullifier reverses StageAddNullifier (disconnect).
func StageRemoveNullifier(batch *store.WriteBatch, pool Pool, nf chainhash.Hash) {
	batch.Delete(nullifierColumn(pool), nf.Bytes())
}

// AppendCommitments folds newly-created note commitments into root using
// the same pairwise SHA256d combine as the transparent merkle tree, giving
// a cheap append-only accumulator. This stands in for the real Pedersen/
// incremental Merkle tree hash used by each pool's actual commitment tree,
// which is pool-specific curve arithmetic outside this package's concern
// (the chainstate engine needs a root to snapshot/restore, not the ability
// to verify tree membership proofs).
func AppendCommitments(root chainhash.Hash, commitments []chainhash.Hash) chainhash.Hash {
	cur := root
	for _, c := range commitments {
		e := encoding.NewEncoder()
		e.WriteHash(cur)
		e.WriteHash(c)
		cur = chainhash.HashB(e.Bytes())
	}
	return cur
}
