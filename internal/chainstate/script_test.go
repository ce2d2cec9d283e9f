package chainstate

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/require"

	"github.com/fluxd-org/fluxd/internal/errs"
	"github.com/fluxd-org/fluxd/internal/wire"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

func sampleSpendTx(scriptPubKey []byte) *wire.Transaction {
	return &wire.Transaction{
		Header: 4,
		Inputs: []wire.TxIn{
			{PrevOut: wire.OutPoint{Hash: chainhash.HashB([]byte("prev")), Index: 0}, Sequence: 0xffffffff},
		},
		Outputs: []wire.TxOut{
			{Value: 1_000_000, ScriptPubKey: p2pkhScript(0xEE)},
		},
	}
}

func TestVerifyTransparentSignatureP2PKHValid(t *testing.T) {
	priv, script := realP2PKHScript(t)
	tx := sampleSpendTx(script)
	tx.Inputs[0].ScriptSig = signP2PKH(t, tx, 0, script, priv)

	require.NoError(t, verifyTransparentSignature(tx, 0, script))
}

func TestVerifyTransparentSignatureP2PKHWrongKey(t *testing.T) {
	_, script := realP2PKHScript(t)
	otherPriv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	tx := sampleSpendTx(script)
	tx.Inputs[0].ScriptSig = signP2PKH(t, tx, 0, script, otherPriv)

	err = verifyTransparentSignature(tx, 0, script)
	require.ErrorIs(t, err, errs.ErrInvalidTransaction)
}

func TestVerifyTransparentSignatureP2PKHTamperedOutput(t *testing.T) {
	priv, script := realP2PKHScript(t)
	tx := sampleSpendTx(script)
	tx.Inputs[0].ScriptSig = signP2PKH(t, tx, 0, script, priv)

	// Mutate the output after signing: SIGHASH_ALL commits to it, so
	// verification against the original signature must now fail.
	tx.Outputs[0].Value = 2_000_000

	err := verifyTransparentSignature(tx, 0, script)
	require.ErrorIs(t, err, errs.ErrInvalidTransaction)
}

func TestVerifyTransparentSignatureP2PKHMalformedScriptSig(t *testing.T) {
	_, script := realP2PKHScript(t)
	tx := sampleSpendTx(script)
	tx.Inputs[0].ScriptSig = []byte{0x01}

	err := verifyTransparentSignature(tx, 0, script)
	require.ErrorIs(t, err, errs.ErrInvalidTransaction)
}

func TestVerifyTransparentSignatureBareP2PK(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	pub := priv.PubKey().SerializeCompressed()
	script := append(pushBytes(pub), opCheckSig)

	tx := sampleSpendTx(script)
	sighash, err := computeSighash(tx, 0, script, sighashAll)
	require.NoError(t, err)
	sig := ecdsa.Sign(priv, sighash[:])
	sigWithType := append(sig.Serialize(), byte(sighashAll))
	tx.Inputs[0].ScriptSig = pushBytes(sigWithType)

	require.NoError(t, verifyTransparentSignature(tx, 0, script))
}

func TestVerifyTransparentSignatureSkipsOverwintered(t *testing.T) {
	_, script := realP2PKHScript(t)
	tx := sampleSpendTx(script)
	tx.Header = 3 | (1 << 31)
	tx.Inputs[0].ScriptSig = []byte{0x01} // would fail to parse if checked

	require.NoError(t, verifyTransparentSignature(tx, 0, script))
}

func TestVerifyTransparentSignatureSkipsNonStandardScripts(t *testing.T) {
	tx := sampleSpendTx(nil)
	tx.Inputs[0].ScriptSig = []byte{0x6a} // OP_RETURN-shaped scriptPubKey, not a push

	require.NoError(t, verifyTransparentSignature(tx, 0, []byte{0x6a, 0x04, 'd', 'a', 't', 'a'}))
}

func TestComputeSighashAnyoneCanPayTrimsInputs(t *testing.T) {
	_, script := realP2PKHScript(t)
	tx := &wire.Transaction{
		Header: 4,
		Inputs: []wire.TxIn{
			{PrevOut: wire.OutPoint{Hash: chainhash.HashB([]byte("a")), Index: 0}, Sequence: 1},
			{PrevOut: wire.OutPoint{Hash: chainhash.HashB([]byte("b")), Index: 1}, Sequence: 2},
		},
		Outputs: []wire.TxOut{{Value: 1, ScriptPubKey: script}},
	}

	hashType := sighashAll | sighashAnyoneCanPay
	h1, err := computeSighash(tx, 0, script, hashType)
	require.NoError(t, err)

	// Changing the non-signed input must not change the ANYONECANPAY hash.
	tx.Inputs[1].Sequence = 99
	h2, err := computeSighash(tx, 0, script, hashType)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestComputeSighashRejectsOverwintered(t *testing.T) {
	_, script := realP2PKHScript(t)
	tx := sampleSpendTx(script)
	tx.Header = 3 | (1 << 31)

	_, err := computeSighash(tx, 0, script, sighashAll)
	require.ErrorIs(t, err, errOverwinteredSighashUnsupported)
}
