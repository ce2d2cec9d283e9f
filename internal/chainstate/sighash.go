package chainstate

import (
	"encoding/binary"
	"fmt"

	"github.com/fluxd-org/fluxd/internal/wire"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// Sighash type flags, matching the legacy Bitcoin-family script signature
// scheme described in original_source's crates/script/src/sighash.rs.
const (
	sighashAll          uint32 = 0x01
	sighashNone         uint32 = 0x02
	sighashSingle       uint32 = 0x03
	sighashAnyoneCanPay uint32 = 0x80
	sighashBaseMask     uint32 = 0x1f
)

// errOverwinteredSighashUnsupported marks a transaction whose transparent
// signatures this engine does not verify: ZIP243 replaces the legacy
// sha256d sighash with a blake2b-personalized construction (hash_prevouts,
// hash_sequence, hash_outputs, ..., each under a distinct 16-byte
// personalization string), and golang.org/x/crypto/blake2b's public API
// (New/New256/New512/Sum*) has no hook for supplying that personalization.
// Rather than fabricate an unverified implementation, signature checks
// cover pre-overwinter (v1/v2) transactions only; see DESIGN.md.
var errOverwinteredSighashUnsupported = fmt.Errorf("chainstate: ZIP243 sighash not implemented for overwintered transactions")

// computeSighash reproduces the legacy (pre-ZIP243) Bitcoin-family
// signature hash: a trimmed copy of tx with scriptCode substituted into
// the signing input, double-SHA256'd with the sighash type appended.
// Grounded on original_source's signature_hash_sprout.
func computeSighash(tx *wire.Transaction, inIdx int, scriptCode []byte, hashType uint32) (chainhash.Hash, error) {
	if inIdx < 0 || inIdx >= len(tx.Inputs) {
		return chainhash.Hash{}, fmt.Errorf("chainstate: sighash input %d out of range (have %d)", inIdx, len(tx.Inputs))
	}
	if tx.Overwintered() {
		return chainhash.Hash{}, errOverwinteredSighashUnsupported
	}

	base := hashType & sighashBaseMask
	anyoneCanPay := hashType&sighashAnyoneCanPay != 0

	trimmed := *tx
	trimmed.JoinSplitSig = [64]byte{}

	if anyoneCanPay {
		trimmed.Inputs = []wire.TxIn{{
			PrevOut:   tx.Inputs[inIdx].PrevOut,
			ScriptSig: scriptCode,
			Sequence:  tx.Inputs[inIdx].Sequence,
		}}
	} else {
		ins := make([]wire.TxIn, len(tx.Inputs))
		for i, in := range tx.Inputs {
			seq := in.Sequence
			if i != inIdx && (base == sighashNone || base == sighashSingle) {
				seq = 0
			}
			var script []byte
			if i == inIdx {
				script = scriptCode
			}
			ins[i] = wire.TxIn{PrevOut: in.PrevOut, ScriptSig: script, Sequence: seq}
		}
		trimmed.Inputs = ins
	}

	switch base {
	case sighashNone:
		trimmed.Outputs = nil
	case sighashSingle:
		if inIdx >= len(tx.Outputs) {
			return chainhash.Hash{}, fmt.Errorf("chainstate: SIGHASH_SINGLE has no matching output for input %d", inIdx)
		}
		outs := make([]wire.TxOut, inIdx+1)
		for i := 0; i < inIdx; i++ {
			outs[i] = wire.TxOut{Value: -1}
		}
		outs[inIdx] = tx.Outputs[inIdx]
		trimmed.Outputs = outs
	default:
		trimmed.Outputs = append([]wire.TxOut(nil), tx.Outputs...)
	}

	b, err := trimmed.Encode()
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("chainstate: encode sighash preimage: %w", err)
	}
	var htBytes [4]byte
	binary.LittleEndian.PutUint32(htBytes[:], hashType)
	b = append(b, htBytes[:]...)
	return chainhash.HashB(b), nil
}
