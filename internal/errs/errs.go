// Package errs defines the tagged error taxonomy shared by validation,
// chainstate, and the index layer: sentinel kinds wrapped with
// fmt.Errorf("%w: ...") context, the same pattern as the teacher's
// internal/chain/processor.go and reorg.go sentinel error blocks,
// generalized to the kinds spec.md §7 names.
package errs

import "errors"

// Structural errors: the block/transaction is malformed independent of
// any consensus engine's opinion.
var (
	ErrInvalidBlock         = errors.New("invalid block")
	ErrInvalidHeader        = errors.New("invalid header")
	ErrInvalidTransaction   = errors.New("invalid transaction")
	ErrMerkleMismatch       = errors.New("merkle root mismatch or mutated tree")
	ErrDuplicateInput       = errors.New("duplicate transaction input")
	ErrDuplicateTransaction = errors.New("duplicate transaction in block")
	ErrValueOutOfRange      = errors.New("value out of range")
)

// Consensus-delegated errors: the source module's error is wrapped
// beneath one of these so callers can tell which verifier rejected the
// block without inspecting message text.
var (
	ErrPow      = errors.New("proof-of-work verification failed")
	ErrPon      = errors.New("proof-of-node verification failed")
	ErrShielded = errors.New("shielded verification failed")
	ErrFluxnode = errors.New("fluxnode payload invalid")
)

// Encoding errors.
var (
	ErrTransactionEncode = errors.New("transaction encoding failed")
	ErrDecode            = errors.New("decoding failed")
)

// Storage/flat-file errors: fatal, never retried inside the core.
var (
	ErrStoreBackend    = errors.New("store backend error")
	ErrFlatFileIO      = errors.New("flat-file io error")
	ErrInvalidLocation = errors.New("invalid flat-file location")
	ErrLengthMismatch  = errors.New("flat-file length mismatch")
)

// AncestorFailed is returned by chainstate when a block's parent header
// is already FAILED_VALIDATION (testable property 11): the child is
// rejected immediately without running §4.6 validation at all.
var ErrAncestorFailed = errors.New("ancestor failed validation")

// ErrReorgTooDeep is returned when a reorg would unwind more blocks than
// the network's current depth bound allows (testable property 8).
var ErrReorgTooDeep = errors.New("reorg exceeds maximum depth")
