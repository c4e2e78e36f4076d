// Package errors provides shared sentinel errors used throughout the rosca
// ecosystem. Domain errors carry one of the kind sentinels below so callers
// can branch on the class of failure without knowing every named error.
package errors

import stderrors "errors"

// Error kinds.
var (
	// ErrValidation indicates bad configuration or arguments, rejected
	// before any mutation.
	ErrValidation = stderrors.New("validation error")

	// ErrState indicates the entity is in the wrong lifecycle phase.
	ErrState = stderrors.New("state error")

	// ErrMembership indicates the caller's membership does not permit the call.
	ErrMembership = stderrors.New("membership error")

	// ErrEconomic indicates a failed value movement or missing balance.
	ErrEconomic = stderrors.New("economic error")

	// ErrArithmetic indicates an overflow or a failed internal consistency
	// check. It signals a bug, not misuse.
	ErrArithmetic = stderrors.New("arithmetic error")
)

var (
	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = stderrors.New("not found")

	// ErrClosed indicates the resource has been closed.
	ErrClosed = stderrors.New("closed")

	// ErrInvalidInput indicates the input is invalid.
	ErrInvalidInput = stderrors.New("invalid input")
)

// KindOf returns the kind sentinel err matches, or nil.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrState, ErrMembership, ErrEconomic, ErrArithmetic} {
		if stderrors.Is(err, k) {
			return k
		}
	}
	return nil
}

var kindNames = []struct {
	kind error
	name string
}{
	{ErrValidation, "validation"},
	{ErrState, "state"},
	{ErrMembership, "membership"},
	{ErrEconomic, "economic"},
	{ErrArithmetic, "arithmetic"},
}

// KindName returns the short name of err's kind, such as "membership", or
// "internal" for unclassified errors.
func KindName(err error) string {
	for _, k := range kindNames {
		if stderrors.Is(err, k.kind) {
			return k.name
		}
	}
	return "internal"
}

// KindByName is the inverse of KindName. It returns nil for unknown names.
func KindByName(name string) error {
	for _, k := range kindNames {
		if k.name == name {
			return k.kind
		}
	}
	return nil
}
