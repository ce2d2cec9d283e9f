package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxd-org/fluxd/internal/consensus"
	"github.com/fluxd-org/fluxd/internal/params"
	"github.com/fluxd-org/fluxd/internal/wire"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

var errBoom = errors.New("boom")

type fakePow struct{ fail bool }

func (f fakePow) VerifyHeader(h *wire.Header, bits uint32) error {
	if f.fail {
		return errBoom
	}
	return nil
}

type fakePon struct{ fail bool }

func (f fakePon) VerifyHeader(h *wire.Header, height int32, owner []byte) error {
	if f.fail {
		return errBoom
	}
	return nil
}

type fakeFluxnode struct{}

func (fakeFluxnode) LintStart(s *wire.FluxnodeStart, collateral wire.OutPoint) error { return nil }
func (fakeFluxnode) LintConfirm(c *wire.FluxnodeConfirm, owner []byte) error         { return nil }

func testDeps() Deps {
	return Deps{
		Pow:      fakePow{},
		Pon:      fakePon{},
		Shielded: consensus.NoopShieldedVerifier{},
		Fluxnode: fakeFluxnode{},
		CollateralOwner: func(wire.OutPoint) ([]byte, error) {
			return []byte("owner-pubkey"), nil
		},
	}
}

func coinbaseTx(height int32) *wire.Transaction {
	return &wire.Transaction{
		Header: 1,
		Inputs: []wire.TxIn{
			{PrevOut: wire.OutPoint{Hash: chainhash.ZeroHash, Index: 0xffffffff}, ScriptSig: wire.MinimalPushHeight(height), Sequence: 0xffffffff},
		},
		Outputs: []wire.TxOut{
			{Value: 100, ScriptPubKey: []byte{0x76, 0xa9}},
		},
	}
}

func buildBlock(t *testing.T, height int32, txs []*wire.Transaction) *wire.Block {
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
		PrevBlock:  chainhash.ZeroHash,
		MerkleRoot: root,
		Time:       1000,
		Bits:       0x1d00ffff,
		Solution:   []byte{0x01},
	}
	return &wire.Block{Header: hdr, Transactions: txs}
}

func TestValidateBlockHappyPath(t *testing.T) {
	height := int32(30)
	txs := []*wire.Transaction{coinbaseTx(height)}
	blk := buildBlock(t, height, txs)

	err := ValidateBlock(blk, height, 2000, params.Mainnet(), Flags{VerifyShielded: true}, testDeps())
	require.NoError(t, err)
}

func TestValidateBlockRejectsBadCoinbaseHeightCommitment(t *testing.T) {
	height := int32(25)
	cb := coinbaseTx(height)
	cb.Inputs[0].ScriptSig = wire.MinimalPushHeight(height + 1)
	txs := []*wire.Transaction{cb}
	blk := buildBlock(t, height, txs)

	err := ValidateBlock(blk, height, 2000, params.Mainnet(), Flags{}, testDeps())
	require.Error(t, err)
}

func TestValidateBlockRejectsMutatedMerkle(t *testing.T) {
	height := int32(10)
	cb := coinbaseTx(height)
	dup := coinbaseTx(height)
	// cb and dup are identical, so the leaves are [a, a, a]; the second
	// level [h(a,a), h(a,a)] is the even-level terminal duplicate.
	txs := []*wire.Transaction{cb, dup, dup}
	blk := buildBlock(t, height, txs)

	err := ValidateBlock(blk, height, 2000, params.Mainnet(), Flags{}, testDeps())
	require.Error(t, err)
}

func TestIsFinalTxSequenceOverride(t *testing.T) {
	tx := &wire.Transaction{
		LockTime: 999_999_999,
		Inputs:   []wire.TxIn{{Sequence: 0xffffffff}},
	}
	require.True(t, isFinalTx(tx, 1, 1))
}

func TestIsFinalTxHeightThreshold(t *testing.T) {
	tx := &wire.Transaction{
		LockTime: 100,
		Inputs:   []wire.TxIn{{Sequence: 0}},
	}
	require.False(t, isFinalTx(tx, 50, 0))
	require.True(t, isFinalTx(tx, 101, 0))
}

func TestCountLegacySigops(t *testing.T) {
	script := []byte{0xac, 0xae}
	require.Equal(t, 21, countLegacySigops(script))
}
