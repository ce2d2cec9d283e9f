package wire

import (
	"fmt"

	"github.com/fluxd-org/fluxd/internal/encoding"
	"github.com/fluxd-org/fluxd/pkg/chainhash"
)

// Header bit layout: top bit is the "overwintered" flag, low 31 bits the
// transaction version.
const overwinteredFlag uint32 = 1 << 31

// FluxnodeTxType selects the payload shape of a v5/v6 fluxnode transaction.
type FluxnodeTxType uint8

const (
	FluxnodeTxStart   FluxnodeTxType = 1
	FluxnodeTxConfirm FluxnodeTxType = 2
)

// FluxnodeSubVersion selects the collateral-ownership model for a v6
// fluxnode transaction.
type FluxnodeSubVersion uint8

const (
	FluxnodeSubVersionNormal FluxnodeSubVersion = 0
	FluxnodeSubVersionP2SH  FluxnodeSubVersion = 1
)

// TxIn is one transparent transaction input.
type TxIn struct {
	PrevOut   OutPoint
	ScriptSig []byte
	Sequence  uint32
}

// TxOut is one transparent transaction output.
type TxOut struct {
	Value        int64
	ScriptPubKey []byte
}

// JoinSplit is a Sprout joinsplit description. The proof bytes are opaque
// to this layer — shielded proof verification is delegated to the
// shielded module via internal/consensus's ShieldedVerifier interface.
type JoinSplit struct {
	VPubOld      int64
	VPubNew      int64
	Anchor       chainhash.Hash
	Nullifiers   [2]chainhash.Hash
	Commitments  [2]chainhash.Hash
	EphemeralKey [32]byte
	RandomSeed   [32]byte
	MACs         [2][32]byte
	Proof        []byte
	Ciphertexts  [2][]byte
}

// SpendDescription is a Sapling shielded spend.
type SpendDescription struct {
	ValueCommitment [32]byte
	Anchor          chainhash.Hash
	Nullifier       chainhash.Hash
	RandomizedKey   [32]byte
	Proof           []byte
	SpendAuthSig    [64]byte
}

// OutputDescription is a Sapling shielded output.
type OutputDescription struct {
	ValueCommitment [32]byte
	NoteCommitment  chainhash.Hash
	EphemeralKey    [32]byte
	EncCiphertext   []byte
	OutCiphertext   []byte
	Proof           []byte
}

// FluxnodeStart is the payload of a v5/v6 "Start" fluxnode transaction.
type FluxnodeStart struct {
	Collateral       OutPoint
	CollateralPubKey []byte
	PubKey           []byte
	SigTime          int64
	Sig              []byte
}

// FluxnodeConfirm is the payload of a v5/v6 "Confirm" fluxnode
// transaction. UpdateType 0 = initial confirm, 1 = refresh.
type FluxnodeConfirm struct {
	Collateral   OutPoint
	SigTime      int64
	BenchTier    int32
	BenchSigTime int64
	UpdateType   uint8
	IP           string
	Sig          []byte
	BenchSig     []byte
}

// Transaction is a single transaction in one of the five wire shapes
// selected by Version()/Overwintered(): v1/v2 transparent, v3 overwinter,
// v4 sapling, v5/v6 fluxnode.
type Transaction struct {
	Header         uint32
	VersionGroupID uint32

	Inputs       []TxIn
	Outputs      []TxOut
	LockTime     uint32
	ExpiryHeight uint32

	// v2 Sprout joinsplit tail.
	JoinSplits      []JoinSplit
	JoinSplitPubKey [32]byte
	JoinSplitSig    [64]byte

	// v4 Sapling fields.
	ValueBalance    int64
	ShieldedSpends  []SpendDescription
	ShieldedOutputs []OutputDescription
	BindingSig      [64]byte
	HasBindingSig   bool

	// v5/v6 fluxnode fields.
	FluxnodeType    FluxnodeTxType
	FluxnodeStart   *FluxnodeStart
	FluxnodeConfirm *FluxnodeConfirm
	SubVersion      FluxnodeSubVersion
	Delegates       [][]byte
}

// Version returns the low 31 bits of Header.
func (tx *Transaction) Version() int32 {
	return int32(tx.Header &^ overwinteredFlag)
}

// Overwintered reports whether Header's top bit is set.
func (tx *Transaction) Overwintered() bool {
	return tx.Header&overwinteredFlag != 0
}

// IsFluxnodeTx reports whether tx uses the v5/v6 fluxnode shape.
func (tx *Transaction) IsFluxnodeTx() bool {
	v := tx.Version()
	return v == 5 || v == 6
}

// IsCoinbase reports whether tx has the single zero-prevout input that
// marks a coinbase transaction.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].PrevOut.IsNull()
}

// Encode returns the canonical wire encoding for tx, dispatching on
// version/overwintered per SPEC_FULL.md §4.4.
func (tx *Transaction) Encode() ([]byte, error) {
	e := encoding.NewEncoder()
	v := tx.Version()

	switch {
	case !tx.Overwintered() && (v == 1 || v == 2):
		e.WriteU32LE(tx.Header)
		encodeInputs(e, tx.Inputs)
		encodeOutputs(e, tx.Outputs)
		e.WriteU32LE(tx.LockTime)
		if v == 2 {
			tx.encodeJoinSplitTail(e)
		}

	case v == 3:
		e.WriteU32LE(tx.Header)
		e.WriteU32LE(tx.VersionGroupID)
		encodeInputs(e, tx.Inputs)
		encodeOutputs(e, tx.Outputs)
		e.WriteU32LE(tx.LockTime)
		e.WriteU32LE(tx.ExpiryHeight)
		tx.encodeJoinSplitTail(e)

	case v == 4:
		e.WriteU32LE(tx.Header)
		e.WriteU32LE(tx.VersionGroupID)
		encodeInputs(e, tx.Inputs)
		encodeOutputs(e, tx.Outputs)
		e.WriteU32LE(tx.LockTime)
		e.WriteU32LE(tx.ExpiryHeight)
		e.WriteI64LE(tx.ValueBalance)
		encodeSpends(e, tx.ShieldedSpends)
		encodeOutputDescs(e, tx.ShieldedOutputs)
		tx.encodeJoinSplitTail(e)
		e.WriteBool(tx.HasBindingSig)
		if tx.HasBindingSig {
			e.WriteBytes(tx.BindingSig[:])
		}

	case v == 5 || v == 6:
		e.WriteU32LE(tx.Header)
		if v == 6 {
			e.WriteU8(uint8(tx.SubVersion))
		}
		e.WriteU8(uint8(tx.FluxnodeType))
		if err := tx.encodeFluxnodePayload(e); err != nil {
			return nil, err
		}
		if v == 6 {
			e.WriteCompactSize(uint64(len(tx.Delegates)))
			for _, d := range tx.Delegates {
				e.WriteVarBytes(d)
			}
		}

	default:
		return nil, fmt.Errorf("wire: unsupported transaction version %d", v)
	}

	return e.Bytes(), nil
}

func (tx *Transaction) encodeJoinSplitTail(e *encoding.Encoder) {
	e.WriteCompactSize(uint64(len(tx.JoinSplits)))
	for _, js := range tx.JoinSplits {
		e.WriteI64LE(js.VPubOld)
		e.WriteI64LE(js.VPubNew)
		e.WriteHash(js.Anchor)
		e.WriteHash(js.Nullifiers[0])
		e.WriteHash(js.Nullifiers[1])
		e.WriteHash(js.Commitments[0])
		e.WriteHash(js.Commitments[1])
		e.WriteBytes(js.EphemeralKey[:])
		e.WriteBytes(js.RandomSeed[:])
		e.WriteBytes(js.MACs[0][:])
		e.WriteBytes(js.MACs[1][:])
		e.WriteVarBytes(js.Proof)
		e.WriteVarBytes(js.Ciphertexts[0])
		e.WriteVarBytes(js.Ciphertexts[1])
	}
	if len(tx.JoinSplits) > 0 {
		e.WriteBytes(tx.JoinSplitPubKey[:])
		e.WriteBytes(tx.JoinSplitSig[:])
	}
}

func (tx *Transaction) encodeFluxnodePayload(e *encoding.Encoder) error {
	switch tx.FluxnodeType {
	case FluxnodeTxStart:
		s := tx.FluxnodeStart
		if s == nil {
			return fmt.Errorf("wire: fluxnode start payload missing")
		}
		s.Collateral.encode(e)
		e.WriteVarBytes(s.CollateralPubKey)
		e.WriteVarBytes(s.PubKey)
		e.WriteI64LE(s.SigTime)
		e.WriteVarBytes(s.Sig)
	case FluxnodeTxConfirm:
		c := tx.FluxnodeConfirm
		if c == nil {
			return fmt.Errorf("wire: fluxnode confirm payload missing")
		}
		c.Collateral.encode(e)
		e.WriteI64LE(c.SigTime)
		e.WriteI32LE(c.BenchTier)
		e.WriteI64LE(c.BenchSigTime)
		e.WriteU8(c.UpdateType)
		e.WriteVarStr(c.IP)
		e.WriteVarBytes(c.Sig)
		e.WriteVarBytes(c.BenchSig)
	default:
		return fmt.Errorf("wire: unknown fluxnode tx type %d", tx.FluxnodeType)
	}
	return nil
}

func encodeInputs(e *encoding.Encoder, ins []TxIn) {
	e.WriteCompactSize(uint64(len(ins)))
	for _, in := range ins {
		in.PrevOut.encode(e)
		e.WriteVarBytes(in.ScriptSig)
		e.WriteU32LE(in.Sequence)
	}
}

func encodeOutputs(e *encoding.Encoder, outs []TxOut) {
	e.WriteCompactSize(uint64(len(outs)))
	for _, out := range outs {
		e.WriteI64LE(out.Value)
		e.WriteVarBytes(out.ScriptPubKey)
	}
}

func encodeSpends(e *encoding.Encoder, spends []SpendDescription) {
	e.WriteCompactSize(uint64(len(spends)))
	for _, s := range spends {
		e.WriteBytes(s.ValueCommitment[:])
		e.WriteHash(s.Anchor)
		e.WriteHash(s.Nullifier)
		e.WriteBytes(s.RandomizedKey[:])
		e.WriteVarBytes(s.Proof)
		e.WriteBytes(s.SpendAuthSig[:])
	}
}

func encodeOutputDescs(e *encoding.Encoder, outs []OutputDescription) {
	e.WriteCompactSize(uint64(len(outs)))
	for _, o := range outs {
		e.WriteBytes(o.ValueCommitment[:])
		e.WriteHash(o.NoteCommitment)
		e.WriteBytes(o.EphemeralKey[:])
		e.WriteVarBytes(o.EncCiphertext)
		e.WriteVarBytes(o.OutCiphertext)
		e.WriteVarBytes(o.Proof)
	}
}

// Hash returns the transaction's txid: SHA256d over its full encoding.
func (tx *Transaction) Hash() (chainhash.Hash, error) {
	b, err := tx.Encode()
	if err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.HashB(b), nil
}

// DecodeTransaction parses a transaction from b.
func DecodeTransaction(b []byte) (*Transaction, error) {
	d := encoding.NewDecoder(b)
	tx, err := decodeTransaction(d)
	if err != nil {
		return nil, err
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return tx, nil
}

func decodeTransaction(d *encoding.Decoder) (*Transaction, error) {
	var tx Transaction
	var err error
	if tx.Header, err = d.ReadU32LE(); err != nil {
		return nil, err
	}
	v := tx.Version()

	switch {
	case !tx.Overwintered() && (v == 1 || v == 2):
		if tx.Inputs, err = decodeInputs(d); err != nil {
			return nil, err
		}
		if tx.Outputs, err = decodeOutputs(d); err != nil {
			return nil, err
		}
		if tx.LockTime, err = d.ReadU32LE(); err != nil {
			return nil, err
		}
		if v == 2 {
			if err = tx.decodeJoinSplitTail(d); err != nil {
				return nil, err
			}
		}

	case v == 3:
		if tx.VersionGroupID, err = d.ReadU32LE(); err != nil {
			return nil, err
		}
		if tx.Inputs, err = decodeInputs(d); err != nil {
			return nil, err
		}
		if tx.Outputs, err = decodeOutputs(d); err != nil {
			return nil, err
		}
		if tx.LockTime, err = d.ReadU32LE(); err != nil {
			return nil, err
		}
		if tx.ExpiryHeight, err = d.ReadU32LE(); err != nil {
			return nil, err
		}
		if err = tx.decodeJoinSplitTail(d); err != nil {
			return nil, err
		}

	case v == 4:
		if tx.VersionGroupID, err = d.ReadU32LE(); err != nil {
			return nil, err
		}
		if tx.Inputs, err = decodeInputs(d); err != nil {
			return nil, err
		}
		if tx.Outputs, err = decodeOutputs(d); err != nil {
			return nil, err
		}
		if tx.LockTime, err = d.ReadU32LE(); err != nil {
			return nil, err
		}
		if tx.ExpiryHeight, err = d.ReadU32LE(); err != nil {
			return nil, err
		}
		if tx.ValueBalance, err = d.ReadI64LE(); err != nil {
			return nil, err
		}
		if tx.ShieldedSpends, err = decodeSpends(d); err != nil {
			return nil, err
		}
		if tx.ShieldedOutputs, err = decodeOutputDescs(d); err != nil {
			return nil, err
		}
		if err = tx.decodeJoinSplitTail(d); err != nil {
			return nil, err
		}
		if tx.HasBindingSig, err = d.ReadBool(); err != nil {
			return nil, err
		}
		if tx.HasBindingSig {
			raw, err2 := d.ReadFixed(64)
			if err2 != nil {
				return nil, err2
			}
			copy(tx.BindingSig[:], raw)
		}

	case v == 5 || v == 6:
		if v == 6 {
			sv, err2 := d.ReadU8()
			if err2 != nil {
				return nil, err2
			}
			tx.SubVersion = FluxnodeSubVersion(sv)
		}
		t, err2 := d.ReadU8()
		if err2 != nil {
			return nil, err2
		}
		tx.FluxnodeType = FluxnodeTxType(t)
		if err = tx.decodeFluxnodePayload(d); err != nil {
			return nil, err
		}
		if v == 6 {
			n, err2 := d.ReadCompactSize()
			if err2 != nil {
				return nil, err2
			}
			tx.Delegates = make([][]byte, n)
			for i := range tx.Delegates {
				if tx.Delegates[i], err = d.ReadVarBytes(); err != nil {
					return nil, err
				}
			}
		}

	default:
		return nil, fmt.Errorf("wire: unsupported transaction version %d", v)
	}

	return &tx, nil
}

func (tx *Transaction) decodeJoinSplitTail(d *encoding.Decoder) error {
	n, err := d.ReadCompactSize()
	if err != nil {
		return err
	}
	tx.JoinSplits = make([]JoinSplit, n)
	for i := range tx.JoinSplits {
		js := &tx.JoinSplits[i]
		if js.VPubOld, err = d.ReadI64LE(); err != nil {
			return err
		}
		if js.VPubNew, err = d.ReadI64LE(); err != nil {
			return err
		}
		if js.Anchor, err = d.ReadHash(); err != nil {
			return err
		}
		if js.Nullifiers[0], err = d.ReadHash(); err != nil {
			return err
		}
		if js.Nullifiers[1], err = d.ReadHash(); err != nil {
			return err
		}
		if js.Commitments[0], err = d.ReadHash(); err != nil {
			return err
		}
		if js.Commitments[1], err = d.ReadHash(); err != nil {
			return err
		}
		if err = readFixedInto(d, js.EphemeralKey[:]); err != nil {
			return err
		}
		if err = readFixedInto(d, js.RandomSeed[:]); err != nil {
			return err
		}
		if err = readFixedInto(d, js.MACs[0][:]); err != nil {
			return err
		}
		if err = readFixedInto(d, js.MACs[1][:]); err != nil {
			return err
		}
		if js.Proof, err = d.ReadVarBytes(); err != nil {
			return err
		}
		if js.Ciphertexts[0], err = d.ReadVarBytes(); err != nil {
			return err
		}
		if js.Ciphertexts[1], err = d.ReadVarBytes(); err != nil {
			return err
		}
	}
	if n > 0 {
		if err = readFixedInto(d, tx.JoinSplitPubKey[:]); err != nil {
			return err
		}
		if err = readFixedInto(d, tx.JoinSplitSig[:]); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Transaction) decodeFluxnodePayload(d *encoding.Decoder) error {
	var err error
	switch tx.FluxnodeType {
	case FluxnodeTxStart:
		s := &FluxnodeStart{}
		if s.Collateral, err = decodeOutPoint(d); err != nil {
			return err
		}
		if s.CollateralPubKey, err = d.ReadVarBytes(); err != nil {
			return err
		}
		if s.PubKey, err = d.ReadVarBytes(); err != nil {
			return err
		}
		if s.SigTime, err = d.ReadI64LE(); err != nil {
			return err
		}
		if s.Sig, err = d.ReadVarBytes(); err != nil {
			return err
		}
		tx.FluxnodeStart = s
	case FluxnodeTxConfirm:
		c := &FluxnodeConfirm{}
		if c.Collateral, err = decodeOutPoint(d); err != nil {
			return err
		}
		if c.SigTime, err = d.ReadI64LE(); err != nil {
			return err
		}
		if c.BenchTier, err = d.ReadI32LE(); err != nil {
			return err
		}
		if c.BenchSigTime, err = d.ReadI64LE(); err != nil {
			return err
		}
		if c.UpdateType, err = d.ReadU8(); err != nil {
			return err
		}
		if c.IP, err = d.ReadVarStr(); err != nil {
			return err
		}
		if c.Sig, err = d.ReadVarBytes(); err != nil {
			return err
		}
		if c.BenchSig, err = d.ReadVarBytes(); err != nil {
			return err
		}
		tx.FluxnodeConfirm = c
	default:
		return fmt.Errorf("wire: unknown fluxnode tx type %d", tx.FluxnodeType)
	}
	return nil
}

func readFixedInto(d *encoding.Decoder, dst []byte) error {
	raw, err := d.ReadFixed(len(dst))
	if err != nil {
		return err
	}
	copy(dst, raw)
	return nil
}

func decodeInputs(d *encoding.Decoder) ([]TxIn, error) {
	n, err := d.ReadCompactSize()
	if err != nil {
		return nil, err
	}
	ins := make([]TxIn, n)
	for i := range ins {
		if ins[i].PrevOut, err = decodeOutPoint(d); err != nil {
			return nil, err
		}
		if ins[i].ScriptSig, err = d.ReadVarBytes(); err != nil {
			return nil, err
		}
		if ins[i].Sequence, err = d.ReadU32LE(); err != nil {
			return nil, err
		}
	}
	return ins, nil
}

func decodeOutputs(d *encoding.Decoder) ([]TxOut, error) {
	n, err := d.ReadCompactSize()
	if err != nil {
		return nil, err
	}
	outs := make([]TxOut, n)
	for i := range outs {
		if outs[i].Value, err = d.ReadI64LE(); err != nil {
			return nil, err
		}
		if outs[i].ScriptPubKey, err = d.ReadVarBytes(); err != nil {
			return nil, err
		}
	}
	return outs, nil
}

func decodeSpends(d *encoding.Decoder) ([]SpendDescription, error) {
	n, err := d.ReadCompactSize()
	if err != nil {
		return nil, err
	}
	spends := make([]SpendDescription, n)
	for i := range spends {
		s := &spends[i]
		if err = readFixedInto(d, s.ValueCommitment[:]); err != nil {
			return nil, err
		}
		if s.Anchor, err = d.ReadHash(); err != nil {
			return nil, err
		}
		if s.Nullifier, err = d.ReadHash(); err != nil {
			return nil, err
		}
		if err = readFixedInto(d, s.RandomizedKey[:]); err != nil {
			return nil, err
		}
		if s.Proof, err = d.ReadVarBytes(); err != nil {
			return nil, err
		}
		if err = readFixedInto(d, s.SpendAuthSig[:]); err != nil {
			return nil, err
		}
	}
	return spends, nil
}

func decodeOutputDescs(d *encoding.Decoder) ([]OutputDescription, error) {
	n, err := d.ReadCompactSize()
	if err != nil {
		return nil, err
	}
	outs := make([]OutputDescription, n)
	for i := range outs {
		o := &outs[i]
		if err = readFixedInto(d, o.ValueCommitment[:]); err != nil {
			return nil, err
		}
		if o.NoteCommitment, err = d.ReadHash(); err != nil {
			return nil, err
		}
		if err = readFixedInto(d, o.EphemeralKey[:]); err != nil {
			return nil, err
		}
		if o.EncCiphertext, err = d.ReadVarBytes(); err != nil {
			return nil, err
		}
		if o.OutCiphertext, err = d.ReadVarBytes(); err != nil {
			return nil, err
		}
		if o.Proof, err = d.ReadVarBytes(); err != nil {
			return nil, err
		}
	}
	return outs, nil
}
