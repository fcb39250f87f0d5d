// Package chainerr defines the error taxonomy shared by every core
// component, so callers can branch on the kind of failure without
// string-matching messages.
package chainerr

import "fmt"

// Kind identifies a class of failure from spec §7.
type Kind string

const (
	KindConnectionError      Kind = "connection_error"
	KindTimeout              Kind = "timeout"
	KindRPCError             Kind = "rpc_error"
	KindInvalidInput         Kind = "invalid_input"
	KindInvalidByteSequence  Kind = "invalid_byte_sequence"
	KindNoncontiguousHeader  Kind = "noncontiguous_header"
	KindMissingHeader        Kind = "missing_header"
	KindBurnMismatch         Kind = "burn_mismatch"
	KindNoLeaderCommit       Kind = "no_leader_commit"
	KindAmbiguousCommit      Kind = "ambiguous_commit"
	KindInsufficientBalance  Kind = "insufficient_balance"
	KindInvalidState         Kind = "invalid_state"
	KindConfigError          Kind = "config_error"
)

// Error wraps a Kind with a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind around a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	ce, ok := err.(*Error)
	return ok && ce.Kind == kind
}

// absorbed reports whether a Kind is an operation-level error that should
// be dropped (continue processing the block) rather than surfaced
// (abort the block), per spec §7's propagation policy.
var absorbedKinds = map[Kind]bool{
	KindInvalidInput:        true,
	KindInvalidByteSequence: true,
}

// Absorbed reports whether err should be absorbed (the offending operation
// dropped, block processing continued) rather than surfaced (the block
// aborted, persistent state left unchanged).
func Absorbed(err error) bool {
	ce, ok := err.(*Error)
	if !ok {
		return false
	}
	return absorbedKinds[ce.Kind]
}
