// Package addresstxindex maintains a per-address monotone transaction
// touch count plus periodic cursor checkpoints, so an explorer's "last N
// txs for address" query can page backward in O(log total + page) rather
// than scanning every delta. Grounded on original_source's
// crates/chainstate/src/address_tx_index.rs (AddressTxIndex, its
// DEFAULT_CHECKPOINT_INTERVAL, and its total/checkpoint key-value shapes).
package addresstxindex

import (
	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// DefaultCheckpointInterval is how many touches separate two stored
// cursor checkpoints, matching address_tx_index.rs's
// DEFAULT_CHECKPOINT_INTERVAL exactly.
const DefaultCheckpointInterval = 512

// Address is the same opaque script-matching key addressindex uses.
type Address []byte

// Cursor marks the transaction at one checkpoint boundary.
type Cursor struct {
	Height  uint32
	TxIndex uint32
	TxHash  chainhash.Hash
}

func (c Cursor) encode() []byte {
	e := encoding.NewEncoder()
	e.WriteU32LE(c.Height)
	e.WriteU32LE(c.TxIndex)
	e.WriteHash(c.TxHash)
	return e.Bytes()
}

func decodeCursor(b []byte) (Cursor, error) {
	d := encoding.NewDecoder(b)
	var c Cursor
	var err error
	if c.Height, err = d.ReadU32LE(); err != nil {
		return Cursor{}, err
	}
	if c.TxIndex, err = d.ReadU32LE(); err != nil {
		return Cursor{}, err
	}
	if c.TxHash, err = d.ReadHash(); err != nil {
		return Cursor{}, err
	}
	if err := d.Finish(); err != nil {
		return Cursor{}, err
	}
	return c, nil
}

func totalKey(addr Address) []byte {
	e := encoding.NewEncoder()
	e.WriteVarBytes(addr)
	return e.Bytes()
}

// checkpointKey: addr ‖ checkpoint_index_be(4) — big-endian so a
// prefix-scan over addr yields checkpoints in ascending order.
func checkpointKey(addr Address, index uint32) []byte {
	e := encoding.NewEncoder()
	e.WriteVarBytes(addr)
	e.WriteU32BE(index)
	return e.Bytes()
}

// Total returns addr's current monotone touch count (0 if never touched).
func Total(db store.DB, addr Address) (uint64, error) {
	raw, err := db.Get(store.ColumnAddressTxTotal, totalKey(addr))
	if err != nil {
		if err == store.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	d := encoding.NewDecoder(raw)
	total, err := d.ReadU64LE()
	if err != nil {
		return 0, err
	}
	if err := d.Finish(); err != nil {
		return 0, err
	}
	return total, nil
}

// Checkpoint returns the cursor stored at checkpointIndex for addr, if
// one was ever written there.
func Checkpoint(db store.DB, addr Address, checkpointIndex uint32) (Cursor, bool, error) {
	raw, err := db.Get(store.ColumnAddressTxCheckpoint, checkpointKey(addr, checkpointIndex))
	if err != nil {
		if err == store.ErrNotFound {
			return Cursor{}, false, nil
		}
		return Cursor{}, false, err
	}
	c, err := decodeCursor(raw)
	if err != nil {
		return Cursor{}, false, err
	}
	return c, true, nil
}

// Touch is the undo record for one StageTouch call.
type Touch struct {
	Addr            Address
	PriorTotal      uint64
	WroteCheckpoint bool
	CheckpointIndex uint32
}

// StageTouch records one transaction (identified by height, txIndex,
// txHash) touching addr: increments its monotone total, and every
// DefaultCheckpointInterval-th touch writes a cursor checkpoint pointing
// at that transaction.
func StageTouch(db store.DB, batch *store.WriteBatch, addr Address, height int32, txIndex uint32, txHash chainhash.Hash) (Touch, error) {
	prior, err := Total(db, addr)
	if err != nil {
		return Touch{}, err
	}
	total := prior + 1
	e := encoding.NewEncoder()
	e.WriteU64LE(total)
	batch.Put(store.ColumnAddressTxTotal, totalKey(addr), e.Bytes())

	u := Touch{Addr: addr, PriorTotal: prior}
	if total%DefaultCheckpointInterval == 0 {
		idx := uint32(total / DefaultCheckpointInterval)
		cursor := Cursor{Height: uint32(height), TxIndex: txIndex, TxHash: txHash}
		batch.Put(store.ColumnAddressTxCheckpoint, checkpointKey(addr, idx), cursor.encode())
		u.WroteCheckpoint = true
		u.CheckpointIndex = idx
	}
	return u, nil
}

// UndoTouch reverses StageTouch: restores the prior total (deleting the
// total record entirely if addr had never been touched before) and
// removes any checkpoint the touch being undone wrote.
func UndoTouch(batch *store.WriteBatch, u Touch) {
	if u.PriorTotal == 0 {
		batch.Delete(store.ColumnAddressTxTotal, totalKey(u.Addr))
	} else {
		e := encoding.NewEncoder()
		e.WriteU64LE(u.PriorTotal)
		batch.Put(store.ColumnAddressTxTotal, totalKey(u.Addr), e.Bytes())
	}
	if u.WroteCheckpoint {
		batch.Delete(store.ColumnAddressTxCheckpoint, checkpointKey(u.Addr, u.CheckpointIndex))
	}
}
