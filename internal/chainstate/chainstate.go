package chainstate

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/internal/errs"
	"github.com/fluxd-org/fluxd/internal/flatfile"
	"github.com/fluxd-org/fluxd/internal/index/addressindex"
	"github.com/fluxd-org/fluxd/internal/index/addresstxindex"
	"github.com/fluxd-org/fluxd/internal/index/fluxnode"
	"github.com/fluxd-org/fluxd/internal/index/headerindex"
	"github.com/fluxd-org/fluxd/internal/index/shielded"
	"github.com/fluxd-org/fluxd/internal/index/spentindex"
	"github.com/fluxd-org/fluxd/internal/index/txindex"
	"github.com/fluxd-org/fluxd/internal/index/utxo"
	"github.com/fluxd-org/fluxd/internal/metrics"
	"github.com/fluxd-org/fluxd/internal/params"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/internal/validation"
	"github.com/fluxd-org/fluxd/internal/wire"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// rejectReason maps err to the validation_rejections_total label: the
// errs sentinel it wraps, or "other" if none match.
func rejectReason(err error) string {
	switch {
	case errors.Is(err,errs.ErrAncestorFailed):
		return "ancestor_failed"
	case errors.Is(err,errs.ErrInvalidBlock):
		return "invalid_block"
	case errors.Is(err,errs.ErrInvalidHeader):
		return "invalid_header"
	case errors.Is(err,errs.ErrInvalidTransaction):
		return "invalid_transaction"
	case errors.Is(err,errs.ErrMerkleMismatch):
		return "merkle_mismatch"
	case errors.Is(err,errs.ErrDuplicateInput):
		return "duplicate_input"
	case errors.Is(err,errs.ErrDuplicateTransaction):
		return "duplicate_transaction"
	case errors.Is(err,errs.ErrValueOutOfRange):
		return "value_out_of_range"
	case errors.Is(err,errs.ErrPow):
		return "pow"
	case errors.Is(err,errs.ErrPon):
		return "pon"
	case errors.Is(err,errs.ErrShielded):
		return "shielded"
	case errors.Is(err,errs.ErrFluxnode):
		return "fluxnode"
	default:
		return "other"
	}
}

var metaBestBlockKey = []byte("best_block")

// bestBlock is the on-disk record of the chain tip: the connected block
// whose index state (UTXO set, address index, ...) the store currently
// reflects.
type bestBlock struct {
	Hash      chainhash.Hash
	Height    int32
	ChainWork *big.Int
}

func (b bestBlock) encode() []byte {
	e := encoding.NewEncoder()
	e.WriteHash(b.Hash)
	e.WriteI32LE(b.Height)
	work := b.ChainWork
	if work == nil {
		work = new(big.Int)
	}
	e.WriteVarBytes(work.Bytes())
	return e.Bytes()
}

func decodeBestBlock(raw []byte) (bestBlock, error) {
	d := encoding.NewDecoder(raw)
	var b bestBlock
	var err error
	if b.Hash, err = d.ReadHash(); err != nil {
		return bestBlock{}, err
	}
	if b.Height, err = d.ReadI32LE(); err != nil {
		return bestBlock{}, err
	}
	workBytes, err := d.ReadVarBytes()
	if err != nil {
		return bestBlock{}, err
	}
	b.ChainWork = new(big.Int).SetBytes(workBytes)
	return b, nil
}

// Chain is the chainstate engine: the block connect/disconnect pipeline
// driving the KV store and the block/undo flat-file log. Grounded on the
// teacher's internal/chain.Chain (a mutex-serialized struct wrapping
// storage + a validator, exposing ProcessBlock/Reorg as the only mutating
// entry points), generalized from the teacher's single linear block store
// to a header-first DAG with reorg and a richer index set.
type Chain struct {
	mu sync.Mutex

	db     store.DB
	blocks *flatfile.Store
	undos  *flatfile.Store

	params params.ConsensusParams
	flags  validation.Flags
	deps   validation.Deps
}

// New constructs a Chain over db, with blk/undo flat-file logs already
// opened by the caller (they recover their own append position at Open).
func New(db store.DB, blocks, undos *flatfile.Store, p params.ConsensusParams, flags validation.Flags, deps validation.Deps) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("chainstate: db is nil")
	}
	if blocks == nil || undos == nil {
		return nil, fmt.Errorf("chainstate: flat-file stores are nil")
	}
	return &Chain{db: db, blocks: blocks, undos: undos, params: p, flags: flags, deps: deps}, nil
}

// BestBlock returns the current chain tip, or ok=false if the chain has no
// connected blocks yet.
func (c *Chain) BestBlock() (chainhash.Hash, int32, *big.Int, bool, error) {
	raw, err := c.db.Get(store.ColumnMeta, metaBestBlockKey)
	if err != nil {
		if err == store.ErrNotFound {
			return chainhash.Hash{}, 0, nil, false, nil
		}
		return chainhash.Hash{}, 0, nil, false, fmt.Errorf("%w: read best block: %v", errs.ErrStoreBackend, err)
	}
	b, err := decodeBestBlock(raw)
	if err != nil {
		return chainhash.Hash{}, 0, nil, false, fmt.Errorf("%w: decode best block: %v", errs.ErrDecode, err)
	}
	return b.Hash, b.Height, b.ChainWork, true, nil
}

func stageBestBlock(batch *store.WriteBatch, b bestBlock) {
	batch.Put(store.ColumnMeta, metaBestBlockKey, b.encode())
}

// InsertHeader accepts a header into the DAG without requiring or
// connecting its body, per spec.md §4.7's "header-first acceptance": once
// a header's own parent is known, its height and cumulative chainwork can
// be computed immediately, well ahead of the body arriving. Idempotent:
// inserting an already-known header is a no-op.
func (c *Chain) InsertHeader(h *wire.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertHeaderLocked(h)
}

// markFailed stages StatusFailedValidation on hash's header entry,
// implementing the failure-poisoning rule (spec.md testable property 11):
// once a header is marked failed, every descendant that attempts to
// connect is rejected without re-running validation.
func markFailed(db store.DB, batch *store.WriteBatch, hash chainhash.Hash) error {
	entry, ok, err := headerindex.Get(db, hash)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	entry.Status |= headerindex.StatusFailedValidation
	headerindex.StagePutHeader(batch, hash, entry)
	return nil
}

// Connect validates blk and, if it extends the current best block,
// applies its effects to every index atomically: the UTXO set, the
// spent/tx/address indexes, the fluxnode registry, shielded anchors and
// nullifiers, the block/undo flat-file log, and the header DAG. Grounded
// on spec.md §4.7's nine connect steps and on the teacher's
// internal/chain/processor.go ProcessBlock fast path (verify parent
// linkage, validate, apply, persist, update tip), generalized to the
// richer index set this engine maintains.
func (c *Chain) Connect(blk *wire.Block, blockTime uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(blk, blockTime)
}

// connectLocked is Connect's body, callable while c.mu is already held
// (Reorg connects a whole sequence of blocks under one lock acquisition).
func (c *Chain) connectLocked(blk *wire.Block, blockTime uint32) error {
	if blk == nil || blk.Header == nil {
		return fmt.Errorf("%w: nil block or header", errs.ErrInvalidBlock)
	}
	hash := blk.Hash()

	if err := c.insertHeaderLocked(blk.Header); err != nil {
		return err
	}
	entry, ok, err := headerindex.Get(c.db, hash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: header for %s missing after insert", errs.ErrInvalidBlock, hash)
	}
	if entry.HasStatus(headerindex.StatusHasBlock) {
		return fmt.Errorf("%w: block %s already connected", errs.ErrInvalidBlock, hash)
	}

	if !blk.Header.PrevBlock.IsZero() {
		parentEntry, ok, err := headerindex.Get(c.db, blk.Header.PrevBlock)
		if err != nil {
			return err
		}
		if ok && parentEntry.HasStatus(headerindex.StatusFailedValidation) {
			batch := store.NewWriteBatch()
			if err := markFailed(c.db, batch, hash); err != nil {
				return err
			}
			if err := c.db.WriteBatch(batch); err != nil {
				return fmt.Errorf("%w: poison descendant: %v", errs.ErrStoreBackend, err)
			}
			return errs.ErrAncestorFailed
		}
	}

	bestHash, _, _, haveBest, err := c.BestBlock()
	if err != nil {
		return err
	}
	if haveBest {
		if blk.Header.PrevBlock != bestHash {
			return fmt.Errorf("%w: block %s does not extend current tip %s", errs.ErrInvalidBlock, hash, bestHash)
		}
	} else if !blk.Header.PrevBlock.IsZero() {
		return fmt.Errorf("%w: first connected block must be genesis", errs.ErrInvalidBlock)
	}
	height := entry.Height

	if err := validation.ValidateBlock(blk, height, blockTime, c.params, c.flags, c.deps); err != nil {
		metrics.ValidationRejections.WithLabelValues(rejectReason(err)).Inc()
		batch := store.NewWriteBatch()
		if merr := markFailed(c.db, batch, hash); merr != nil {
			return merr
		}
		if werr := c.db.WriteBatch(batch); werr != nil {
			return fmt.Errorf("%w: record failed validation: %v", errs.ErrStoreBackend, werr)
		}
		return err
	}

	batch := store.NewWriteBatch()
	undo := BlockUndo{BlockHash: hash, Height: height}

	if err := c.applyBlock(batch, &undo, blk, height); err != nil {
		return err
	}

	blockBytes, err := blk.Encode()
	if err != nil {
		return fmt.Errorf("%w: encode block: %v", errs.ErrTransactionEncode, err)
	}
	blockLoc, err := c.blocks.Append(blockBytes)
	if err != nil {
		return fmt.Errorf("%w: append block: %v", errs.ErrFlatFileIO, err)
	}
	undoLoc, err := c.undos.Append(undo.Encode())
	if err != nil {
		return fmt.Errorf("%w: append undo: %v", errs.ErrFlatFileIO, err)
	}
	blockLocBytes := blockLoc.Encode()
	undoLocBytes := undoLoc.Encode()
	batch.Put(store.ColumnBlockIndex, hash.Bytes(), blockLocBytes[:])
	batch.Put(store.ColumnBlockUndo, hash.Bytes(), undoLocBytes[:])

	entry.Status |= headerindex.StatusHasBlock
	headerindex.StagePutHeader(batch, hash, entry)
	headerindex.StageSetHeightIndex(batch, height, hash)

	newWork := new(big.Int).Set(entry.ChainWork)
	stageBestBlock(batch, bestBlock{Hash: hash, Height: height, ChainWork: newWork})

	commitStart := time.Now()
	if err := c.db.WriteBatch(batch); err != nil {
		return fmt.Errorf("%w: commit connect batch: %v", errs.ErrStoreBackend, err)
	}
	metrics.BatchCommitSeconds.Observe(time.Since(commitStart).Seconds())
	metrics.BlocksConnected.Inc()
	return nil
}

// insertHeaderLocked is InsertHeader's body, callable while c.mu is already
// held (Connect always inserts the header it is about to connect).
func (c *Chain) insertHeaderLocked(h *wire.Header) error {
	hash := h.Hash()
	if _, ok, err := headerindex.Get(c.db, hash); err != nil {
		return err
	} else if ok {
		return nil
	}

	var height int32
	work := params.ChainWork(h.Bits)
	var skipHash chainhash.Hash

	if !h.PrevBlock.IsZero() {
		prev, ok, err := headerindex.Get(c.db, h.PrevBlock)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: unknown parent header %s", errs.ErrInvalidHeader, h.PrevBlock)
		}
		height = prev.Height + 1
		work = new(big.Int).Add(prev.ChainWork, work)

		skipHeight := headerindex.SkipHeight(height)
		if skipHeight < height {
			ancestor, err := headerindex.FindAncestor(c.db, h.PrevBlock, skipHeight)
			if err != nil {
				return err
			}
			skipHash = ancestor
		}
	}

	entry := headerindex.Entry{
		Header:    h,
		Height:    height,
		ChainWork: work,
		Status:    headerindex.StatusHasHeader,
		SkipHash:  skipHash,
	}
	batch := store.NewWriteBatch()
	headerindex.StagePutHeader(batch, hash, entry)
	return c.db.WriteBatch(batch)
}

// applyBlock stages every index mutation for connecting blk at height into
// batch, recording undo into *undo as it goes. Grounded on spec.md §4.7
// connect steps 4-6 (spend/create/fluxnode/shielded), generalized from the
// teacher's applyBlockWithUndo (UTXO-only) to this engine's full index set.
func (c *Chain) applyBlock(batch *store.WriteBatch, undo *BlockUndo, blk *wire.Block, height int32) error {
	sproutRoot, sproutOK, err := shielded.CurrentAnchor(c.db, shielded.PoolSprout)
	if err != nil {
		return err
	}
	saplingRoot, saplingOK, err := shielded.CurrentAnchor(c.db, shielded.PoolSapling)
	if err != nil {
		return err
	}
	undo.PrevSprout = anchorSnapshot{Present: sproutOK, Root: sproutRoot}
	undo.PrevSapling = anchorSnapshot{Present: saplingOK, Root: saplingRoot}

	var sproutCommitments, saplingCommitments []chainhash.Hash

	for txIdx, tx := range blk.Transactions {
		txHash, err := tx.Hash()
		if err != nil {
			return fmt.Errorf("%w: hash tx %d: %v", errs.ErrTransactionEncode, txIdx, err)
		}
		isCoinbase := txIdx == 0 && tx.IsCoinbase()
		touchedAddrs := make(map[string]addresstxindex.Address)

		for inIdx, in := range tx.Inputs {
			if in.PrevOut.IsNull() {
				continue
			}
			entry, ok, err := utxo.Get(c.db, in.PrevOut)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: missing utxo %s spent by %s", errs.ErrInvalidTransaction, in.PrevOut, txHash)
			}
			if !isCoinbase {
				if err := verifyTransparentSignature(tx, inIdx, entry.ScriptPubKey); err != nil {
					return err
				}
			}
			utxo.StageDelete(batch, in.PrevOut)
			spentindex.StagePut(batch, in.PrevOut, spentindex.Info{TxHash: txHash, InputIndex: uint32(inIdx), Height: height})
			undo.SpentUTXOs = append(undo.SpentUTXOs, spentUTXO{Op: in.PrevOut, Entry: entry})

			if addr, ok := classifyAddress(entry.ScriptPubKey); ok {
				slot := params.ClassifyFluxnodeCollateral(entry.Value, c.params.Fluxnode)
				if err := addressindex.StageDebit(c.db, batch, addr, in.PrevOut, entry.Value, height, uint32(txIdx), uint32(inIdx), txHash, slot); err != nil {
					return err
				}
				undo.AddressTouch = append(undo.AddressTouch, addressTouch{
					Addr: addr, Op: in.PrevOut, Value: entry.Value,
					TxIndex: uint32(txIdx), IOIndex: uint32(inIdx),
					IsDebit: true, SpendTxHash: txHash,
				})
				touchedAddrs[string(addr)] = addr
			}
		}

		for outIdx, out := range tx.Outputs {
			op := wire.OutPoint{Hash: txHash, Index: uint32(outIdx)}
			if utxo.IsProvablyUnspendable(out.ScriptPubKey) {
				continue
			}
			utxo.StagePut(batch, op, utxo.Entry{
				Value: out.Value, ScriptPubKey: out.ScriptPubKey, Height: height, IsCoinbase: isCoinbase,
			})
			undo.CreatedOutpts = append(undo.CreatedOutpts, op)

			if addr, ok := classifyAddress(out.ScriptPubKey); ok {
				slot := params.ClassifyFluxnodeCollateral(out.Value, c.params.Fluxnode)
				if err := addressindex.StageCredit(c.db, batch, addr, op, out.Value, height, uint32(txIdx), uint32(outIdx), slot); err != nil {
					return err
				}
				undo.AddressTouch = append(undo.AddressTouch, addressTouch{
					Addr: addr, Op: op, Value: out.Value,
					TxIndex: uint32(txIdx), IOIndex: uint32(outIdx),
					IsDebit: false,
				})
				touchedAddrs[string(addr)] = addr
			}
		}

		for _, addr := range touchedAddrs {
			tt, err := addresstxindex.StageTouch(c.db, batch, addr, height, uint32(txIdx), txHash)
			if err != nil {
				return err
			}
			undo.AddressTxTouch = append(undo.AddressTxTouch, tt)
		}

		txindex.StagePut(batch, txHash, txindex.Location{BlockHash: blk.Hash(), Height: height, TxIndex: uint32(txIdx)})

		if tx.IsFluxnodeTx() {
			fu, err := c.applyFluxnodeTx(batch, tx, height)
			if err != nil {
				return err
			}
			if fu != nil {
				undo.FluxnodeUndo = append(undo.FluxnodeUndo, *fu)
			}
		}

		for _, js := range tx.JoinSplits {
			for _, nf := range js.Nullifiers {
				shielded.StageAddNullifier(batch, shielded.PoolSprout, nf)
			}
			sproutCommitments = append(sproutCommitments, js.Commitments[0], js.Commitments[1])
		}
		for _, sp := range tx.ShieldedSpends {
			shielded.StageAddNullifier(batch, shielded.PoolSapling, sp.Nullifier)
		}
		for _, o := range tx.ShieldedOutputs {
			saplingCommitments = append(saplingCommitments, o.NoteCommitment)
		}
	}

	if len(sproutCommitments) > 0 {
		newRoot := shielded.AppendCommitments(sproutRoot, sproutCommitments)
		shielded.StageAppendAnchor(batch, shielded.PoolSprout, newRoot)
		undo.SproutTouched = true
	}
	if len(saplingCommitments) > 0 {
		newRoot := shielded.AppendCommitments(saplingRoot, saplingCommitments)
		shielded.StageAppendAnchor(batch, shielded.PoolSapling, newRoot)
		undo.SaplingTouched = true
	}

	return nil
}

// applyFluxnodeTx stages the registry mutation for a Start/Confirm
// fluxnode transaction, returning the undo record (nil if tx carries
// neither payload, which validation should already have rejected upstream
// for a non-coinbase fluxnode-shaped tx, but is tolerated here defensively
// since applyBlock runs after ValidateBlock has already approved blk).
func (c *Chain) applyFluxnodeTx(batch *store.WriteBatch, tx *wire.Transaction, height int32) (*fluxnode.Undo, error) {
	switch {
	case tx.FluxnodeStart != nil:
		s := tx.FluxnodeStart
		collateralValue := int64(0)
		if collEntry, ok, err := utxo.Get(c.db, s.Collateral); err != nil {
			return nil, err
		} else if ok {
			collateralValue = collEntry.Value
		}
		tier, ok := params.FluxnodeTierFromCollateral(height, collateralValue, c.params.Fluxnode)
		if !ok {
			tier = params.TierCumulus
		}
		entry := fluxnode.Entry{
			Collateral: s.Collateral,
			Tier:       tier,
			PubKey:     s.PubKey,
			SigTime:    s.SigTime,
		}
		fu, err := fluxnode.StageUpsert(c.db, batch, entry)
		if err != nil {
			return nil, err
		}
		return &fu, nil

	case tx.FluxnodeConfirm != nil:
		c0 := tx.FluxnodeConfirm
		prev, _, err := fluxnode.Get(c.db, c0.Collateral)
		if err != nil {
			return nil, err
		}
		prev.Collateral = c0.Collateral
		prev.IP = c0.IP
		prev.LastConfirm = c0.SigTime
		prev.ConfirmCount++
		fu, err := fluxnode.StageUpsert(c.db, batch, prev)
		if err != nil {
			return nil, err
		}
		return &fu, nil
	}
	return nil, nil
}

// Disconnect reverses the most recently connected block (which must be
// hash, i.e. the current tip), restoring every index to its pre-connect
// state from the undo record captured by Connect. The block's header entry
// stays in the header index with StatusHasBlock cleared, and its block and
// undo location records (ColumnBlockIndex, ColumnBlockUndo) are left in
// place. Grounded on the
// teacher's internal/chain/reorg.go revertBlock, generalized to reverse
// the address index, fluxnode registry, and shielded anchors the teacher
// has no equivalent of.
func (c *Chain) Disconnect(hash chainhash.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked(hash)
}

func (c *Chain) disconnectLocked(hash chainhash.Hash) error {
	bestHash, _, _, ok, err := c.BestBlock()
	if err != nil {
		return err
	}
	if !ok || bestHash != hash {
		return fmt.Errorf("%w: %s is not the current tip", errs.ErrInvalidBlock, hash)
	}

	entry, ok, err := headerindex.Get(c.db, hash)
	if err != nil {
		return err
	}
	if !ok || !entry.HasStatus(headerindex.StatusHasBlock) {
		return fmt.Errorf("%w: %s is not connected", errs.ErrInvalidBlock, hash)
	}

	undoBytes, err := c.lookUpUndo(hash)
	if err != nil {
		return err
	}
	undo, err := DecodeBlockUndo(undoBytes)
	if err != nil {
		return fmt.Errorf("%w: decode block undo: %v", errs.ErrDecode, err)
	}

	batch := store.NewWriteBatch()

	for i := len(undo.CreatedOutpts) - 1; i >= 0; i-- {
		utxo.StageDelete(batch, undo.CreatedOutpts[i])
	}
	for i := len(undo.SpentUTXOs) - 1; i >= 0; i-- {
		s := undo.SpentUTXOs[i]
		utxo.StagePut(batch, s.Op, s.Entry)
		spentindex.StageDelete(batch, s.Op)
	}
	for i := len(undo.AddressTouch) - 1; i >= 0; i-- {
		t := undo.AddressTouch[i]
		slot := params.ClassifyFluxnodeCollateral(t.Value, c.params.Fluxnode)
		var err error
		if t.IsDebit {
			err = addressindex.UndoDebit(c.db, batch, t.Addr, t.Op, t.Value, undo.Height, t.TxIndex, t.IOIndex, slot)
		} else {
			err = addressindex.UndoCredit(c.db, batch, t.Addr, t.Op, t.Value, undo.Height, t.TxIndex, t.IOIndex, slot)
		}
		if err != nil {
			return err
		}
	}
	for i := len(undo.AddressTxTouch) - 1; i >= 0; i-- {
		addresstxindex.UndoTouch(batch, undo.AddressTxTouch[i])
	}
	for i := len(undo.FluxnodeUndo) - 1; i >= 0; i-- {
		fluxnode.Apply(batch, undo.FluxnodeUndo[i])
	}
	if undo.SproutTouched {
		if undo.PrevSprout.Present {
			shielded.StageRestoreAnchor(batch, shielded.PoolSprout, undo.PrevSprout.Root)
		} else {
			shielded.StageClearAnchor(batch, shielded.PoolSprout)
		}
	}
	if undo.SaplingTouched {
		if undo.PrevSapling.Present {
			shielded.StageRestoreAnchor(batch, shielded.PoolSapling, undo.PrevSapling.Root)
		} else {
			shielded.StageClearAnchor(batch, shielded.PoolSapling)
		}
	}

	blk, err := c.loadBlock(hash)
	if err != nil {
		return err
	}
	for _, tx := range blk.Transactions {
		txHash, err := tx.Hash()
		if err != nil {
			return err
		}
		txindex.StageDelete(batch, txHash)
	}

	entry.Status &^= headerindex.StatusHasBlock
	headerindex.StagePutHeader(batch, hash, entry)
	headerindex.StageDeleteHeightIndex(batch, entry.Height)

	if entry.Header.PrevBlock.IsZero() {
		batch.Delete(store.ColumnMeta, metaBestBlockKey)
	} else {
		parentEntry, ok, err := headerindex.Get(c.db, entry.Header.PrevBlock)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: parent header %s missing", errs.ErrInvalidHeader, entry.Header.PrevBlock)
		}
		stageBestBlock(batch, bestBlock{Hash: entry.Header.PrevBlock, Height: parentEntry.Height, ChainWork: parentEntry.ChainWork})
	}

	commitStart := time.Now()
	if err := c.db.WriteBatch(batch); err != nil {
		return fmt.Errorf("%w: commit disconnect batch: %v", errs.ErrStoreBackend, err)
	}
	metrics.BatchCommitSeconds.Observe(time.Since(commitStart).Seconds())
	metrics.BlocksDisconnected.Inc()
	return nil
}

// Reorg switches the chain tip from its current best block to the tip of
// blocks, an ordered sequence of full blocks extending from (but not
// including) the fork point to the new tip. Their headers need not already
// be known; Reorg inserts them itself, matching header-first acceptance.
// Grounded on spec.md §4.7's reorg algorithm and the teacher's
// internal/chain/reorg.go Reorg (depth bound via cumulative work / fork
// detection, revert-then-replay), generalized to the wider PoN-era depth
// bound (testable property 8) and to poisoning the whole abandoned tail of
// a new branch that itself fails to connect partway through.
func (c *Chain) Reorg(blocks []*wire.Block, blockTimes []uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reorgLocked(blocks, blockTimes)
}

func (c *Chain) reorgLocked(blocks []*wire.Block, blockTimes []uint32) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%w: reorg requires at least one block", errs.ErrInvalidBlock)
	}
	if len(blocks) != len(blockTimes) {
		return fmt.Errorf("%w: reorg block/time count mismatch", errs.ErrInvalidBlock)
	}
	for _, blk := range blocks {
		if blk == nil || blk.Header == nil {
			return fmt.Errorf("%w: nil block or header in reorg branch", errs.ErrInvalidBlock)
		}
	}

	currentHash, currentHeight, _, haveBest, err := c.BestBlock()
	if err != nil {
		return err
	}
	if !haveBest {
		return fmt.Errorf("%w: no current tip to reorg from", errs.ErrInvalidBlock)
	}

	for _, blk := range blocks {
		if err := c.insertHeaderLocked(blk.Header); err != nil {
			return err
		}
	}

	newTipHash := blocks[len(blocks)-1].Hash()
	lca, err := headerindex.LowestCommonAncestor(c.db, currentHash, newTipHash)
	if err != nil {
		return err
	}
	lcaEntry, ok, err := headerindex.Get(c.db, lca)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: common ancestor %s missing", errs.ErrInvalidHeader, lca)
	}
	if blocks[0].Header.PrevBlock != lca {
		return fmt.Errorf("%w: new branch does not start at common ancestor %s", errs.ErrInvalidBlock, lca)
	}

	depth := currentHeight - lcaEntry.Height
	metrics.Reorgs.Inc()
	metrics.ReorgDepthLast.Set(float64(depth))
	if depth > c.maxReorgDepth(currentHeight) {
		metrics.ValidationRejections.WithLabelValues("reorg_too_deep").Inc()
		return errs.ErrReorgTooDeep
	}

	for currentHash != lca {
		entry, ok, err := headerindex.Get(c.db, currentHash)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: header %s missing mid-reorg", errs.ErrInvalidHeader, currentHash)
		}
		if err := c.disconnectLocked(currentHash); err != nil {
			return err
		}
		currentHash = entry.Header.PrevBlock
	}

	for i, blk := range blocks {
		if err := c.connectLocked(blk, blockTimes[i]); err != nil {
			for j := i; j < len(blocks); j++ {
				failBatch := store.NewWriteBatch()
				if merr := markFailed(c.db, failBatch, blocks[j].Hash()); merr != nil {
					return merr
				}
				if werr := c.db.WriteBatch(failBatch); werr != nil {
					return fmt.Errorf("%w: poison abandoned branch: %v", errs.ErrStoreBackend, werr)
				}
			}
			return err
		}
	}
	return nil
}

// maxReorgDepth returns the depth bound in effect at height: the wide PoN
// activation-window bound while height falls inside
// [Pon activation, Pon activation + PonWindowBlocks), the ordinary bound
// otherwise.
func (c *Chain) maxReorgDepth(height int32) int32 {
	ponHeight := c.params.Upgrades[params.Pon].ActivationHeight
	if ponHeight != params.NoActivationHeight && height >= ponHeight && height < ponHeight+c.params.PonWindowBlocks {
		return c.params.MaxReorgDepthPonWindow
	}
	return c.params.MaxReorgDepth
}

// lookUpUndo locates the BlockUndo bytes for hash via the hash->location
// pointer staged into store.ColumnBlockUndo at Connect time.
func (c *Chain) lookUpUndo(hash chainhash.Hash) ([]byte, error) {
	loc, ok, err := c.undoLocation(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no undo record for block %s", errs.ErrInvalidLocation, hash)
	}
	raw, err := c.undos.Read(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: read undo record: %v", errs.ErrFlatFileIO, err)
	}
	return raw, nil
}

func (c *Chain) undoLocation(hash chainhash.Hash) (flatfile.FileLocation, bool, error) {
	raw, err := c.db.Get(store.ColumnBlockUndo, hash.Bytes())
	if err != nil {
		if err == store.ErrNotFound {
			return flatfile.FileLocation{}, false, nil
		}
		return flatfile.FileLocation{}, false, fmt.Errorf("%w: %v", errs.ErrStoreBackend, err)
	}
	loc, err := flatfile.DecodeFileLocation(raw)
	if err != nil {
		return flatfile.FileLocation{}, false, err
	}
	return loc, true, nil
}

func (c *Chain) blockLocation(hash chainhash.Hash) (flatfile.FileLocation, bool, error) {
	raw, err := c.db.Get(store.ColumnBlockIndex, hash.Bytes())
	if err != nil {
		if err == store.ErrNotFound {
			return flatfile.FileLocation{}, false, nil
		}
		return flatfile.FileLocation{}, false, fmt.Errorf("%w: %v", errs.ErrStoreBackend, err)
	}
	loc, err := flatfile.DecodeFileLocation(raw)
	if err != nil {
		return flatfile.FileLocation{}, false, err
	}
	return loc, true, nil
}

func (c *Chain) loadBlock(hash chainhash.Hash) (*wire.Block, error) {
	loc, ok, err := c.blockLocation(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no block record for %s", errs.ErrInvalidLocation, hash)
	}
	raw, err := c.blocks.Read(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: read block: %v", errs.ErrFlatFileIO, err)
	}
	blk, err := wire.DecodeBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode block: %v", errs.ErrDecode, err)
	}
	return blk, nil
}
