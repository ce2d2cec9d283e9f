package chainstate

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // hash160 needs this exact construction

	"github.com/fluxd-org/fluxd/internal/errs"
	"github.com/fluxd-org/fluxd/internal/wire"
)

const (
	opDup         = 0x76
	opHash160     = 0xa9
	opEqualVerify = 0x88
	opEqual       = 0x87
	opCheckSig    = 0xac
)

// hash160 is SHA256 followed by RIPEMD160, the standard transparent-address
// digest for the Bitcoin/Zcash script family.
func hash160(b []byte) []byte {
	h := sha256.Sum256(b)
	r := ripemd160.New()
	r.Write(h[:])
	return r.Sum(nil)
}

// classifyAddress extracts the address-index key for a transparent output
// script, or reports ok=false for scripts the address index does not track
// (bare multisig, OP_RETURN, anything non-standard). Grounded on spec.md's
// Insight-style address index, which (like zcashd/bitcoind) indexes by the
// hash160 embedded in P2PKH/P2SH scripts, normalizing bare P2PK outputs to
// the hash160 of their pubkey so both script shapes for the same key
// collapse to one address entry.
func classifyAddress(scriptPubKey []byte) ([]byte, bool) {
	switch {
	case len(scriptPubKey) == 25 &&
		scriptPubKey[0] == opDup && scriptPubKey[1] == opHash160 && scriptPubKey[2] == 0x14 &&
		scriptPubKey[23] == opEqualVerify && scriptPubKey[24] == opCheckSig:
		return append([]byte(nil), scriptPubKey[3:23]...), true

	case len(scriptPubKey) == 23 &&
		scriptPubKey[0] == opHash160 && scriptPubKey[1] == 0x14 && scriptPubKey[22] == opEqual:
		return append([]byte(nil), scriptPubKey[2:22]...), true

	case len(scriptPubKey) == 35 && scriptPubKey[0] == 0x21 && scriptPubKey[34] == opCheckSig:
		return hash160(scriptPubKey[1:34]), true

	case len(scriptPubKey) == 67 && scriptPubKey[0] == 0x41 && scriptPubKey[66] == opCheckSig:
		return hash160(scriptPubKey[1:66]), true

	default:
		return nil, false
	}
}

// opPushData1 is OP_PUSHDATA1: the next byte is a length, followed by that
// many bytes of data. Direct pushes (opcodes 1-75) are handled inline.
const opPushData1 = 0x4c

// readPush reads one data push (a direct push of 1-75 bytes, or
// OP_PUSHDATA1) from the front of script, returning the pushed data and
// the remaining bytes.
func readPush(script []byte) (data, rest []byte, ok bool) {
	if len(script) == 0 {
		return nil, nil, false
	}
	op := script[0]
	switch {
	case op >= 1 && op <= 75:
		n := int(op)
		if len(script) < 1+n {
			return nil, nil, false
		}
		return script[1 : 1+n], script[1+n:], true
	case op == opPushData1:
		if len(script) < 2 {
			return nil, nil, false
		}
		n := int(script[1])
		if len(script) < 2+n {
			return nil, nil, false
		}
		return script[2 : 2+n], script[2+n:], true
	default:
		return nil, nil, false
	}
}

// parseTwoPushes parses a scriptSig of exactly two data pushes
// (signature, pubkey), the standard P2PKH spending form.
func parseTwoPushes(scriptSig []byte) (sig, pubKey []byte, ok bool) {
	sig, rest, ok := readPush(scriptSig)
	if !ok {
		return nil, nil, false
	}
	pubKey, rest, ok = readPush(rest)
	if !ok || len(rest) != 0 {
		return nil, nil, false
	}
	return sig, pubKey, true
}

// parseSolePush parses a scriptSig of exactly one data push (a
// signature), the standard bare-P2PK spending form.
func parseSolePush(scriptSig []byte) (sig []byte, ok bool) {
	sig, rest, ok := readPush(scriptSig)
	if !ok || len(rest) != 0 {
		return nil, false
	}
	return sig, true
}

// verifyTransparentSignature checks the CHECKSIG embedded in a standard
// P2PKH or bare-P2PK scriptSig against scriptPubKey, the "verifies
// scripts" step of spec.md's L4 chainstate responsibility. P2SH and
// non-standard scripts (bare multisig, OP_RETURN) are not covered: the
// redeem script a P2SH spend signs over isn't present in scriptPubKey,
// and multisig/non-standard scripts aren't tracked by the address index
// either (see classifyAddress). Overwintered (v3+) transactions are not
// covered: see errOverwinteredSighashUnsupported.
func verifyTransparentSignature(tx *wire.Transaction, inIdx int, scriptPubKey []byte) error {
	if tx.Overwintered() {
		return nil
	}

	switch {
	case len(scriptPubKey) == 25 &&
		scriptPubKey[0] == opDup && scriptPubKey[1] == opHash160 && scriptPubKey[2] == 0x14 &&
		scriptPubKey[23] == opEqualVerify && scriptPubKey[24] == opCheckSig:
		sig, pubKey, ok := parseTwoPushes(tx.Inputs[inIdx].ScriptSig)
		if !ok {
			return fmt.Errorf("%w: non-standard scriptSig for p2pkh input %d", errs.ErrInvalidTransaction, inIdx)
		}
		if !bytes.Equal(hash160(pubKey), scriptPubKey[3:23]) {
			return fmt.Errorf("%w: pubkey does not match p2pkh hash for input %d", errs.ErrInvalidTransaction, inIdx)
		}
		return checkSig(tx, inIdx, scriptPubKey, sig, pubKey)

	case len(scriptPubKey) == 35 && scriptPubKey[0] == 0x21 && scriptPubKey[34] == opCheckSig:
		sig, ok := parseSolePush(tx.Inputs[inIdx].ScriptSig)
		if !ok {
			return fmt.Errorf("%w: non-standard scriptSig for p2pk input %d", errs.ErrInvalidTransaction, inIdx)
		}
		return checkSig(tx, inIdx, scriptPubKey, sig, scriptPubKey[1:34])

	case len(scriptPubKey) == 67 && scriptPubKey[0] == 0x41 && scriptPubKey[66] == opCheckSig:
		sig, ok := parseSolePush(tx.Inputs[inIdx].ScriptSig)
		if !ok {
			return fmt.Errorf("%w: non-standard scriptSig for p2pk input %d", errs.ErrInvalidTransaction, inIdx)
		}
		return checkSig(tx, inIdx, scriptPubKey, sig, scriptPubKey[1:66])

	default:
		return nil
	}
}

// checkSig verifies a DER-encoded ECDSA/secp256k1 signature (with its
// trailing sighash-type byte, per the standard scriptSig encoding) against
// scriptCode and pubKeyBytes.
func checkSig(tx *wire.Transaction, inIdx int, scriptCode, sigWithType, pubKeyBytes []byte) error {
	if len(sigWithType) == 0 {
		return fmt.Errorf("%w: empty signature for input %d", errs.ErrInvalidTransaction, inIdx)
	}
	hashType := uint32(sigWithType[len(sigWithType)-1])
	derSig := sigWithType[:len(sigWithType)-1]

	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return fmt.Errorf("%w: invalid pubkey for input %d: %v", errs.ErrInvalidTransaction, inIdx, err)
	}
	sig, err := ecdsa.ParseDERSignature(derSig)
	if err != nil {
		return fmt.Errorf("%w: invalid signature encoding for input %d: %v", errs.ErrInvalidTransaction, inIdx, err)
	}
	sighash, err := computeSighash(tx, inIdx, scriptCode, hashType)
	if err != nil {
		return fmt.Errorf("%w: sighash for input %d: %v", errs.ErrInvalidTransaction, inIdx, err)
	}
	if !sig.Verify(sighash[:], pubKey) {
		return fmt.Errorf("%w: signature check failed for input %d", errs.ErrInvalidTransaction, inIdx)
	}
	return nil
}
