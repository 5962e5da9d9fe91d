// Package jmerr defines the error taxonomy the engine uses to map
// failures onto CLI exit codes (see cmd/analyze).
package jmerr

import (
	"errors"
	"fmt"
)

// Kind classifies why a run terminated.
type Kind int

const (
	// InputError covers malformed txids and transactions that don't
	// shape up as a CoinJoin (NotACoinJoin, InconsistentBalance).
	InputError Kind = iota
	// NetworkError covers transaction-fetch failures after retries.
	NetworkError
	// SolverError covers a solver crash or a returned assignment that
	// violates a model constraint.
	SolverError
	// TimeLimit covers a per-solve budget exhausted without incumbent.
	TimeLimit
	// Infeasible covers a model proven infeasible.
	Infeasible
	// Cancelled covers a user interrupt.
	Cancelled
	// MemoryLimitExceeded covers the memory ceiling being crossed.
	MemoryLimitExceeded
)

func (k Kind) String() string {
	switch k {
	case InputError:
		return "InputError"
	case NetworkError:
		return "NetworkError"
	case SolverError:
		return "SolverError"
	case TimeLimit:
		return "TimeLimit"
	case Infeasible:
		return "Infeasible"
	case Cancelled:
		return "Cancelled"
	case MemoryLimitExceeded:
		return "MemoryLimitExceeded"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can branch on
// errors.As without string matching.
type Error struct {
	Kind Kind
	Op   string // component that raised it, e.g. "txmodel.New"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err via errors.As, returning ok=false
// if neither err nor anything it wraps is a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
