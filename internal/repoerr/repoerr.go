// Package repoerr defines the repository-wide error taxonomy of spec.md §7:
// a closed set of error Kinds plus a RepositoryError wrapper so callers can
// branch on `errors.As` instead of string matching, mirroring the sentinel +
// wrap pattern steveyegge-beads uses in internal/storage/sqlite/errors.go.
package repoerr

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy entries from spec.md §7.
type Kind int

const (
	KindUnspecified Kind = iota
	KindAccessDenied
	KindNotFound
	KindInvalidItemState
	KindItemExists
	KindConstraintViolation
	KindReferentialIntegrity
	KindVersioning
	KindLock
	KindUnsupportedOperation
	KindRepositoryError
)

func (k Kind) String() string {
	switch k {
	case KindAccessDenied:
		return "AccessDenied"
	case KindNotFound:
		return "NotFound"
	case KindInvalidItemState:
		return "InvalidItemState"
	case KindItemExists:
		return "ItemExists"
	case KindConstraintViolation:
		return "ConstraintViolation"
	case KindReferentialIntegrity:
		return "ReferentialIntegrity"
	case KindVersioning:
		return "Versioning"
	case KindLock:
		return "Lock"
	case KindUnsupportedOperation:
		return "UnsupportedOperation"
	case KindRepositoryError:
		return "RepositoryError"
	default:
		return "Unspecified"
	}
}

// RepositoryError carries a taxonomy Kind alongside the wrapped cause.
type RepositoryError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *RepositoryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// New constructs a RepositoryError of kind k for operation op, wrapping err.
func New(kind Kind, op string, err error) *RepositoryError {
	return &RepositoryError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind carried by err, or KindUnspecified if err is not
// (or does not wrap) a *RepositoryError.
func KindOf(err error) Kind {
	var re *RepositoryError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnspecified
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }

func AccessDenied(op string, err error) error         { return New(KindAccessDenied, op, err) }
func NotFound(op string, err error) error             { return New(KindNotFound, op, err) }
func InvalidItemState(op string, err error) error     { return New(KindInvalidItemState, op, err) }
func ItemExists(op string, err error) error           { return New(KindItemExists, op, err) }
func ConstraintViolation(op string, err error) error  { return New(KindConstraintViolation, op, err) }
func ReferentialIntegrity(op string, err error) error { return New(KindReferentialIntegrity, op, err) }
func Versioning(op string, err error) error           { return New(KindVersioning, op, err) }
func Lock(op string, err error) error                 { return New(KindLock, op, err) }
func UnsupportedOperation(op string, err error) error { return New(KindUnsupportedOperation, op, err) }
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RepositoryError
	if errors.As(err, &re) {
		return err
	}
	return New(KindRepositoryError, op, err)
}
