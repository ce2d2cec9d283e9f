// Package fluxnode implements the fluxnode registry: one entry per
// collateral outpoint recording its tier, owning pubkey, and last-seen
// confirmation, mutated by Start/Confirm transactions and reversible via a
// captured undo record. Grounded on the teacher's internal/chain reward/
// registration handler pattern (RegistrationHandler/DeregistrationHandler
// firing from confirmed-block scanning) generalized from the teacher's
// external sub-chain registry callback into an in-engine KV-backed index,
// since fluxnode registration here is a core indexed data model (spec.md
// §3/§4.7 item 5), not an external notification.
package fluxnode

import (
	"fmt"

	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/internal/params"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/internal/wire"
)

// Entry is one fluxnode's registry record.
type Entry struct {
	Collateral   wire.OutPoint
	Tier         params.FluxnodeTier
	PubKey       []byte
	IP           string
	SigTime      int64
	LastConfirm  int64
	ConfirmCount uint32
}

// Undo captures the prior state of a registry slot so a connect's
// registry mutation can be reversed on disconnect. Present=false means the
// slot did not exist before (a Start transaction created it); disconnect
// should then delete it entirely rather than restore a zero Entry.
type Undo struct {
	Collateral wire.OutPoint
	Present    bool
	Prev       Entry
}

func key(collateral wire.OutPoint) []byte {
	e := encoding.NewEncoder()
	e.WriteHash(collateral.Hash)
	e.WriteU32LE(collateral.Index)
	return e.Bytes()
}

func pubKeyIndexKey(pubKey []byte) []byte {
	e := encoding.NewEncoder()
	e.WriteVarBytes(pubKey)
	return e.Bytes()
}

// Encode returns the canonical on-disk encoding of e.
func (e Entry) Encode() []byte {
	enc := encoding.NewEncoder()
	enc.WriteHash(e.Collateral.Hash)
	enc.WriteU32LE(e.Collateral.Index)
	enc.WriteI32LE(int32(e.Tier))
	enc.WriteVarBytes(e.PubKey)
	enc.WriteVarStr(e.IP)
	enc.WriteI64LE(e.SigTime)
	enc.WriteI64LE(e.LastConfirm)
	enc.WriteU32LE(e.ConfirmCount)
	return enc.Bytes()
}

// Decode parses an Entry from its on-disk encoding.
func Decode(b []byte) (Entry, error) {
	d := encoding.NewDecoder(b)
	var e Entry
	var err error
	if e.Collateral.Hash, err = d.ReadHash(); err != nil {
		return Entry{}, err
	}
	if e.Collateral.Index, err = d.ReadU32LE(); err != nil {
		return Entry{}, err
	}
	tier, err := d.ReadI32LE()
	if err != nil {
		return Entry{}, err
	}
	e.Tier = params.FluxnodeTier(tier)
	if e.PubKey, err = d.ReadVarBytes(); err != nil {
		return Entry{}, err
	}
	if e.IP, err = d.ReadVarStr(); err != nil {
		return Entry{}, err
	}
	if e.SigTime, err = d.ReadI64LE(); err != nil {
		return Entry{}, err
	}
	if e.LastConfirm, err = d.ReadI64LE(); err != nil {
		return Entry{}, err
	}
	if e.ConfirmCount, err = d.ReadU32LE(); err != nil {
		return Entry{}, err
	}
	if err := d.Finish(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Get looks up the registry entry for collateral.
func Get(db store.DB, collateral wire.OutPoint) (Entry, bool, error) {
	raw, err := db.Get(store.ColumnFluxnode, key(collateral))
	if err != nil {
		if err == store.ErrNotFound {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("fluxnode: get %s: %w", collateral, err)
	}
	e, err := Decode(raw)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// StageUpsert stages writing e into the registry, returning the Undo
// needed to reverse this mutation (capturing whatever was there before,
// if anything).
func StageUpsert(db store.DB, batch *store.WriteBatch, e Entry) (Undo, error) {
	prev, existed, err := Get(db, e.Collateral)
	if err != nil {
		return Undo{}, err
	}
	batch.Put(store.ColumnFluxnode, key(e.Collateral), e.Encode())
	batch.Put(store.ColumnFluxnodeKey, pubKeyIndexKey(e.PubKey), key(e.Collateral))
	return Undo{Collateral: e.Collateral, Present: existed, Prev: prev}, nil
}

// Apply reverses u: restores the prior entry, or deletes the slot if it
// did not exist before the mutation being undone.
func Apply(batch *store.WriteBatch, u Undo) {
	if u.Present {
		batch.Put(store.ColumnFluxnode, key(u.Collateral), u.Prev.Encode())
		batch.Put(store.ColumnFluxnodeKey, pubKeyIndexKey(u.Prev.PubKey), key(u.Collateral))
	} else {
		batch.Delete(store.ColumnFluxnode, key(u.Collateral))
	}
}
