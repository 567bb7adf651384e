// Package errs classifies domain errors into the categories the HTTP layer
// and retry logic care about. Domain packages declare sentinel errors with
// these constructors; callers branch on Kind rather than on message text.
package errs

import "errors"

type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation rejects malformed or out-of-range input before any mutation.
	KindValidation
	// KindState marks an operation illegal for the aggregate's current state.
	KindState
	// KindInvariant marks a mutation that would break a balance or cap invariant.
	KindInvariant
	// KindConflict marks a lost update; the caller should retry with a fresh read.
	KindConflict
	// KindNotFound marks a missing aggregate within the tenant scope.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindState:
		return "state_error"
	case KindInvariant:
		return "invariant_violation"
	case KindConflict:
		return "concurrency_conflict"
	case KindNotFound:
		return "not_found"
	}
	return "unknown_error"
}

// Error carries a kind and the machine-readable name of the violated constraint.
type Error struct {
	Kind       Kind
	Constraint string
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Constraint
}

func Validation(constraint, message string) *Error {
	return &Error{Kind: KindValidation, Constraint: constraint, Message: message}
}

func State(constraint, message string) *Error {
	return &Error{Kind: KindState, Constraint: constraint, Message: message}
}

func Invariant(constraint, message string) *Error {
	return &Error{Kind: KindInvariant, Constraint: constraint, Message: message}
}

func Conflict(constraint, message string) *Error {
	return &Error{Kind: KindConflict, Constraint: constraint, Message: message}
}

func NotFound(constraint, message string) *Error {
	return &Error{Kind: KindNotFound, Constraint: constraint, Message: message}
}

// KindOf returns the classification of err, or KindUnknown for plain errors.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ConstraintOf returns the violated constraint name, or "" for plain errors.
func ConstraintOf(err error) string {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Constraint
	}
	return ""
}
