package chainstate

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/require"

	"github.com/fluxd-org/fluxd/internal/errs"
	"github.com/fluxd-org/fluxd/internal/flatfile"
	"github.com/fluxd-org/fluxd/internal/index/addressindex"
	"github.com/fluxd-org/fluxd/internal/index/headerindex"
	"github.com/fluxd-org/fluxd/internal/params"
	"github.com/fluxd-org/fluxd/internal/store"
	"github.com/fluxd-org/fluxd/internal/validation"
	"github.com/fluxd-org/fluxd/internal/wire"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

type fakePow struct{}

func (fakePow) VerifyHeader(h *wire.Header, bits uint32) error { return nil }

type fakePon struct{}

func (fakePon) VerifyHeader(h *wire.Header, height int32, owner []byte) error { return nil }

type fakeFluxnode struct{}

func (fakeFluxnode) LintStart(s *wire.FluxnodeStart, collateral wire.OutPoint) error { return nil }
func (fakeFluxnode) LintConfirm(c *wire.FluxnodeConfirm, owner []byte) error         { return nil }

func testDeps() validation.Deps {
	return validation.Deps{
		Pow:      fakePow{},
		Pon:      fakePon{},
		Shielded: noopShielded{},
		Fluxnode: fakeFluxnode{},
		CollateralOwner: func(wire.OutPoint) ([]byte, error) {
			return []byte("owner-pubkey"), nil
		},
	}
}

type noopShielded struct{}

func (noopShielded) VerifyJoinSplits(tx *wire.Transaction) error          { return nil }
func (noopShielded) VerifySpendsAndOutputs(tx *wire.Transaction) error    { return nil }

// newTestChain builds a Chain over an in-memory store and a temp-dir
// flat-file log pair, ready for Connect/Disconnect/Reorg calls.
func newTestChain(t *testing.T, p params.ConsensusParams) (*Chain, store.DB) {
	t.Helper()
	db := store.NewMemStore()
	blocks, err := flatfile.New(t.TempDir(), "blk", 64<<20)
	require.NoError(t, err)
	undos, err := flatfile.New(t.TempDir(), "undo", 64<<20)
	require.NoError(t, err)
	c, err := New(db, blocks, undos, p, validation.Flags{}, testDeps())
	require.NoError(t, err)
	return c, db
}

func p2pkhScript(b byte) []byte {
	script := make([]byte, 25)
	script[0] = 0x76
	script[1] = 0xa9
	script[2] = 0x14
	for i := 0; i < 20; i++ {
		script[3+i] = b
	}
	script[23] = 0x88
	script[24] = 0xac
	return script
}

// realP2PKHScript generates a fresh secp256k1 keypair and its P2PKH
// scriptPubKey, for tests that need an output a spend can actually sign
// against (ordinary coinbase tests use the fixed p2pkhScript stand-in,
// which has no known private key and so can never be spent once script
// verification is wired in).
func realP2PKHScript(t *testing.T) (*secp256k1.PrivateKey, []byte) {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	h := hash160(priv.PubKey().SerializeCompressed())
	script := make([]byte, 25)
	script[0] = opDup
	script[1] = opHash160
	script[2] = 0x14
	copy(script[3:23], h)
	script[23] = opEqualVerify
	script[24] = opCheckSig
	return priv, script
}

func pushBytes(b []byte) []byte {
	out := make([]byte, 0, len(b)+1)
	out = append(out, byte(len(b)))
	return append(out, b...)
}

// signP2PKH computes tx's SIGHASH_ALL sighash over inIdx and scriptCode,
// signs it with priv, and returns the standard [sig‖sighash_type] [pubkey]
// scriptSig.
func signP2PKH(t *testing.T, tx *wire.Transaction, inIdx int, scriptCode []byte, priv *secp256k1.PrivateKey) []byte {
	t.Helper()
	sighash, err := computeSighash(tx, inIdx, scriptCode, sighashAll)
	require.NoError(t, err)
	sig := ecdsa.Sign(priv, sighash[:])
	sigWithType := append(sig.Serialize(), byte(sighashAll))
	return append(pushBytes(sigWithType), pushBytes(priv.PubKey().SerializeCompressed())...)
}

func coinbaseTx(height int32, addrByte byte, value int64) *wire.Transaction {
	return &wire.Transaction{
		Header: 1,
		Inputs: []wire.TxIn{
			{PrevOut: wire.OutPoint{Hash: chainhash.ZeroHash, Index: 0xffffffff}, ScriptSig: append(wire.MinimalPushHeight(height), 0x00), Sequence: 0xffffffff},
		},
		Outputs: []wire.TxOut{
			{Value: value, ScriptPubKey: p2pkhScript(addrByte)},
		},
	}
}

// buildBlock assembles a header (PoW shape, version 4) over txs, with a
// correct merkle root, extending prev (zero hash for genesis).
func buildBlock(t *testing.T, prev chainhash.Hash, txs []*wire.Transaction, blockTime uint32) *wire.Block {
	t.Helper()
	hashes := make([]chainhash.Hash, len(txs))
	for i, tx := range txs {
		h, err := tx.Hash()
		require.NoError(t, err)
		hashes[i] = h
	}
	root := wire.ComputeMerkleRoot(hashes).Root
	hdr := &wire.Header{
		Version:    4,
		PrevBlock:  prev,
		MerkleRoot: root,
		Time:       blockTime,
		Bits:       0x1d00ffff,
		Solution:   []byte{0x01},
	}
	return &wire.Block{Header: hdr, Transactions: txs}
}

func TestConnectDisconnectIsInvolution(t *testing.T) {
	c, db := newTestChain(t, params.Mainnet())

	priv, spendableScript := realP2PKHScript(t)
	genesisCb := &wire.Transaction{
		Header: 1,
		Inputs: []wire.TxIn{
			{PrevOut: wire.OutPoint{Hash: chainhash.ZeroHash, Index: 0xffffffff}, ScriptSig: append(wire.MinimalPushHeight(0), 0x00), Sequence: 0xffffffff},
		},
		Outputs: []wire.TxOut{
			{Value: 5_000_000_000, ScriptPubKey: spendableScript},
		},
	}
	genesis := buildBlock(t, chainhash.ZeroHash, []*wire.Transaction{genesisCb}, 1000)
	require.NoError(t, c.Connect(genesis, 1000))

	snapshotAfterGenesis := db.(*store.MemStore).Snapshot()

	genesisCbHash, err := genesisCb.Hash()
	require.NoError(t, err)

	block1Cb := coinbaseTx(1, 0xBB, 5_000_000_000)
	spendTx := &wire.Transaction{
		Header: 1,
		Inputs: []wire.TxIn{
			{PrevOut: wire.OutPoint{Hash: genesisCbHash, Index: 0}, Sequence: 0xffffffff},
		},
		Outputs: []wire.TxOut{
			{Value: 4_000_000_000, ScriptPubKey: p2pkhScript(0xCC)},
		},
	}
	spendTx.Inputs[0].ScriptSig = signP2PKH(t, spendTx, 0, spendableScript, priv)
	block1 := buildBlock(t, genesis.Hash(), []*wire.Transaction{block1Cb, spendTx}, 2000)
	require.NoError(t, c.Connect(block1, 2000))

	bestHash, bestHeight, _, ok, err := c.BestBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block1.Hash(), bestHash)
	require.EqualValues(t, 1, bestHeight)

	require.NoError(t, c.Disconnect(block1.Hash()))

	bestHash, bestHeight, _, ok, err = c.BestBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, genesis.Hash(), bestHash)
	require.EqualValues(t, 0, bestHeight)

	snapshotAfterDisconnect := db.(*store.MemStore).Snapshot()
	// Disconnect keeps block1's header entry and its block/undo location
	// records; every other record must match the post-genesis state.
	block1Key := string(block1.Hash().Bytes())
	for _, col := range []store.Column{store.ColumnHeaderIndex, store.ColumnBlockIndex, store.ColumnBlockUndo} {
		_, kept := snapshotAfterDisconnect[col][block1Key]
		require.True(t, kept)
		delete(snapshotAfterDisconnect[col], block1Key)
	}
	require.Equal(t, snapshotAfterGenesis, snapshotAfterDisconnect)
}

func TestConnectRejectsBlockNotExtendingTip(t *testing.T) {
	c, _ := newTestChain(t, params.Mainnet())

	genesisCb := coinbaseTx(0, 0xAA, 5_000_000_000)
	genesis := buildBlock(t, chainhash.ZeroHash, []*wire.Transaction{genesisCb}, 1000)
	require.NoError(t, c.Connect(genesis, 1000))

	orphanCb := coinbaseTx(1, 0xBB, 5_000_000_000)
	orphan := buildBlock(t, chainhash.HashB([]byte("not-the-tip")), []*wire.Transaction{orphanCb}, 2000)
	err := c.Connect(orphan, 2000)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrInvalidBlock)
}

func TestConnectPoisonsDescendantOfFailedAncestor(t *testing.T) {
	c, db := newTestChain(t, params.Mainnet())

	genesisCb := coinbaseTx(0, 0xAA, 5_000_000_000)
	genesis := buildBlock(t, chainhash.ZeroHash, []*wire.Transaction{genesisCb}, 1000)
	require.NoError(t, c.Connect(genesis, 1000))

	badCb := coinbaseTx(1, 0xBB, 5_000_000_000)
	bad := buildBlock(t, genesis.Hash(), []*wire.Transaction{badCb}, 2000)
	bad.Header.MerkleRoot = chainhash.HashB([]byte("corrupt"))
	err := c.Connect(bad, 2000)
	require.Error(t, err)

	entry, ok, err := headerindex.Get(db, bad.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, entry.HasStatus(headerindex.StatusFailedValidation))

	childCb := coinbaseTx(2, 0xCC, 5_000_000_000)
	child := buildBlock(t, bad.Hash(), []*wire.Transaction{childCb}, 3000)
	err = c.Connect(child, 3000)
	require.ErrorIs(t, err, errs.ErrAncestorFailed)

	childEntry, ok, err := headerindex.Get(db, child.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, childEntry.HasStatus(headerindex.StatusFailedValidation))
}

func TestMaxReorgDepthWindow(t *testing.T) {
	p := params.Mainnet()
	c := &Chain{params: p}

	require.EqualValues(t, p.MaxReorgDepth, c.maxReorgDepth(10_000))
	require.Less(t, int32(41), c.maxReorgDepth(2_022_000))
	require.EqualValues(t, p.MaxReorgDepthPonWindow, c.maxReorgDepth(2_022_000))
}

func TestReorgSwitchesTipAndPreservesAddressMonotonicity(t *testing.T) {
	c, db := newTestChain(t, params.Mainnet())

	genesisCb := coinbaseTx(0, 0xAA, 5_000_000_000)
	genesis := buildBlock(t, chainhash.ZeroHash, []*wire.Transaction{genesisCb}, 1000)
	require.NoError(t, c.Connect(genesis, 1000))

	// Original branch: one block paying addr 0xBB.
	origCb := coinbaseTx(1, 0xBB, 5_000_000_000)
	orig := buildBlock(t, genesis.Hash(), []*wire.Transaction{origCb}, 2000)
	require.NoError(t, c.Connect(orig, 2000))

	balBefore, err := addressindex.Balance(db, p2pkhScript(0xBB)[3:23])
	require.NoError(t, err)
	require.EqualValues(t, 5_000_000_000, balBefore)

	// Competing branch of equal height from genesis, paying addr 0xDD
	// instead — Reorg must unwind orig and adopt it.
	altCb := coinbaseTx(1, 0xDD, 5_000_000_000)
	alt := buildBlock(t, genesis.Hash(), []*wire.Transaction{altCb}, 2500)

	require.NoError(t, c.Reorg([]*wire.Block{alt}, []uint32{2500}))

	bestHash, bestHeight, _, ok, err := c.BestBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, alt.Hash(), bestHash)
	require.EqualValues(t, 1, bestHeight)

	balOrigAfter, err := addressindex.Balance(db, p2pkhScript(0xBB)[3:23])
	require.NoError(t, err)
	require.Zero(t, balOrigAfter)

	balAltAfter, err := addressindex.Balance(db, p2pkhScript(0xDD)[3:23])
	require.NoError(t, err)
	require.EqualValues(t, 5_000_000_000, balAltAfter)
}

func TestReorgRejectsTooDeep(t *testing.T) {
	p := params.Mainnet()
	p.MaxReorgDepth = 1
	c, _ := newTestChain(t, p)

	genesisCb := coinbaseTx(0, 0xAA, 5_000_000_000)
	genesis := buildBlock(t, chainhash.ZeroHash, []*wire.Transaction{genesisCb}, 1000)
	require.NoError(t, c.Connect(genesis, 1000))

	cb1 := coinbaseTx(1, 0xBB, 5_000_000_000)
	blk1 := buildBlock(t, genesis.Hash(), []*wire.Transaction{cb1}, 2000)
	require.NoError(t, c.Connect(blk1, 2000))

	cb2 := coinbaseTx(2, 0xCC, 5_000_000_000)
	blk2 := buildBlock(t, blk1.Hash(), []*wire.Transaction{cb2}, 3000)
	require.NoError(t, c.Connect(blk2, 3000))

	// Alt branch forking at genesis, two blocks deep: unwinding blk1+blk2
	// (depth 2) exceeds MaxReorgDepth of 1.
	altCb1 := coinbaseTx(1, 0xDD, 5_000_000_000)
	alt1 := buildBlock(t, genesis.Hash(), []*wire.Transaction{altCb1}, 2500)
	altCb2 := coinbaseTx(2, 0xEE, 5_000_000_000)
	alt2 := buildBlock(t, alt1.Hash(), []*wire.Transaction{altCb2}, 3500)

	err := c.Reorg([]*wire.Block{alt1, alt2}, []uint32{2500, 3500})
	require.ErrorIs(t, err, errs.ErrReorgTooDeep)
}

func TestConnectRejectsAlreadyConnectedBlock(t *testing.T) {
	c, _ := newTestChain(t, params.Mainnet())

	genesisCb := coinbaseTx(0, 0xAA, 5_000_000_000)
	genesis := buildBlock(t, chainhash.ZeroHash, []*wire.Transaction{genesisCb}, 1000)
	require.NoError(t, c.Connect(genesis, 1000))

	cb1 := coinbaseTx(1, 0xBB, 5_000_000_000)
	blk1 := buildBlock(t, genesis.Hash(), []*wire.Transaction{cb1}, 2000)
	require.NoError(t, c.Connect(blk1, 2000))
	require.ErrorIs(t, c.Connect(blk1, 2000), errs.ErrInvalidBlock)

	require.NoError(t, c.Disconnect(blk1.Hash()))
	require.NoError(t, c.Connect(blk1, 2000))

	bestHash, _, _, ok, err := c.BestBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, blk1.Hash(), bestHash)
}
