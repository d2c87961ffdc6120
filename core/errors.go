package core

import (
	"errors"
	"fmt"
)

// Sentinel error kinds surfaced by the core, per the error taxonomy of
// spec.md §7 (see SPEC_FULL.md §0, "Error handling"). Callers should use errors.Is
// against these, and errors.As against the wrapping types below where
// extra context (height, reason) is carried.
var (
	ErrMalformedTerm          = errors.New("core: malformed RDF term")
	ErrMalformedPayload       = errors.New("core: malformed transaction payload")
	ErrBadSignature           = errors.New("core: signature verification failed")
	ErrIDMismatch             = errors.New("core: transaction id does not match payload hash")
	ErrNotYourTurn            = errors.New("core: proposer is not the active authority")
	ErrBadAuthoritySig        = errors.New("core: block authority signature invalid")
	ErrTimestampOutOfWindow   = errors.New("core: block timestamp violates interval window")
	ErrStoreError             = errors.New("core: triplestore operation failed")
	ErrStoreTimeout           = errors.New("core: triplestore operation timed out")
	ErrChainBroken            = errors.New("core: chain integrity check failed")
	ErrCanonicalizationLimit  = errors.New("core: canonicalization symmetry class exceeds configured limit")
	ErrDuplicateHeight        = errors.New("core: block height already committed")
	ErrEmptyAuthoritySet      = errors.New("core: authority set is empty")
)

// InvalidBlockError carries the specific structural or authority
// violation that rejected a candidate block (spec.md §7 InvalidBlock(reason)).
type InvalidBlockError struct {
	Reason string
	Err    error
}

func (e *InvalidBlockError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("core: invalid block (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("core: invalid block (%s)", e.Reason)
}

func (e *InvalidBlockError) Unwrap() error { return e.Err }

func invalidBlock(reason string, err error) error {
	return &InvalidBlockError{Reason: reason, Err: err}
}

// ChainBrokenError records where validate_full first detected corruption.
type ChainBrokenError struct {
	Height uint64
	Kind   string
	Err    error
}

func (e *ChainBrokenError) Error() string {
	return fmt.Sprintf("core: chain broken at height %d (%s): %v", e.Height, e.Kind, e.Err)
}

func (e *ChainBrokenError) Unwrap() error { return ErrChainBroken }

func chainBroken(height uint64, kind string, err error) error {
	return &ChainBrokenError{Height: height, Kind: kind, Err: err}
}
