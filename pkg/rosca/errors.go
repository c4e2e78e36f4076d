package rosca

import (
	"errors"

	arcerrors "github.com/gezibash/arc-rosca/pkg/errors"
)

// Error is a named failure of a Rosca operation. It matches itself and its
// kind under errors.Is, so callers may test for ErrNotInvited or for the
// broader arcerrors.ErrMembership.
type Error struct {
	Kind error
	Code string
	msg  string
}

var errorsByCode = map[string]*Error{}

func newError(kind error, code, msg string) *Error {
	e := &Error{Kind: kind, Code: code, msg: msg}
	errorsByCode[code] = e
	return e
}

// LookupError returns the named error carrying code. Remote clients use it
// to restore errors.Is matching across the wire.
func LookupError(code string) (*Error, bool) {
	e, ok := errorsByCode[code]
	return e, ok
}

func (e *Error) Error() string { return e.msg }

// Is reports whether target is e's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

// Validation errors.
var (
	ErrAmountNotPositive    = newError(arcerrors.ErrValidation, "ContributionAmountMustBePositive", "amount must be positive")
	ErrFrequencyNotPositive = newError(arcerrors.ErrValidation, "FrequencyMustBePositive", "contribution frequency must be positive")
	ErrThresholdTooHigh     = newError(arcerrors.ErrValidation, "ThresholdTooHigh", "minimum participant threshold exceeds participant count")
	ErrSelfInvited          = newError(arcerrors.ErrValidation, "CantInviteSelf", "creator cannot invite themselves")
	ErrStartByNotFuture     = newError(arcerrors.ErrValidation, "StartByTimestampMustBeFuture", "start-by deadline has passed")
	ErrPositionTooLarge     = newError(arcerrors.ErrValidation, "PositionTooLarge", "position out of range")
	ErrTooManyParticipants  = newError(arcerrors.ErrValidation, "TooManyProposedParticipants", "too many invited participants")
	ErrNameTooLong          = newError(arcerrors.ErrValidation, "NameTooLong", "name too long")
	ErrInvalidAccount       = newError(arcerrors.ErrValidation, "InvalidAccount", "invalid account id")
	ErrInvalidAsset         = newError(arcerrors.ErrValidation, "InvalidAsset", "unsupported payment asset")
)

// State errors.
var (
	ErrRoscaNotFound       = newError(arcerrors.ErrState, "RoscaNotFound", "rosca not found")
	ErrAlreadyActive       = newError(arcerrors.ErrState, "RoscaAlreadyActive", "rosca already active")
	ErrNotActive           = newError(arcerrors.ErrState, "RoscaNotActive", "rosca not active")
	ErrAlreadyCompleted    = newError(arcerrors.ErrState, "RoscaAlreadyCompleted", "rosca already completed")
	ErrStillActive         = newError(arcerrors.ErrState, "RoscaStillActive", "rosca still active")
	ErrThresholdNotMet     = newError(arcerrors.ErrState, "ParticipantThresholdNotMet", "participant threshold not met")
	ErrFinalPayByNotPassed = newError(arcerrors.ErrState, "FinalPayByTimestampMustBePast", "final pay-by deadline has not passed")
	ErrNotStarted          = newError(arcerrors.ErrState, "FinalPayByTimestampNotFound", "rosca was never started")
)

// Membership errors.
var (
	ErrNotInvited            = newError(arcerrors.ErrMembership, "NotInvited", "not invited to this rosca")
	ErrAlreadyJoined         = newError(arcerrors.ErrMembership, "AlreadyJoined", "already joined this rosca")
	ErrNotAParticipant       = newError(arcerrors.ErrMembership, "NotAParticipant", "not a participant in this rosca")
	ErrPositionAlreadyFilled = newError(arcerrors.ErrMembership, "PositionAlreadyFilled", "position already filled")
	ErrAllPositionsFilled    = newError(arcerrors.ErrMembership, "AllPositionsFilled", "all positions filled")
	ErrCantContributeToSelf  = newError(arcerrors.ErrMembership, "CantContributeToSelf", "eligible claimant cannot contribute to themselves")
	ErrAlreadyContributed    = newError(arcerrors.ErrMembership, "AlreadyContributed", "already contributed this round")
)

// Economic errors.
var (
	ErrInsufficientFunds       = newError(arcerrors.ErrEconomic, "InsufficientFunds", "insufficient funds")
	ErrSecurityDepositIsZero   = newError(arcerrors.ErrEconomic, "SecurityDepositIsZero", "security deposit is zero")
	ErrSecurityDepositNotFound = newError(arcerrors.ErrEconomic, "SecurityDepositNotFound", "security deposit not found")
)

// Arithmetic errors. These indicate a bug rather than misuse.
var (
	ErrOverflow     = newError(arcerrors.ErrArithmetic, "ArithmeticOverflow", "arithmetic overflow")
	ErrUnderflow    = newError(arcerrors.ErrArithmetic, "ArithmeticUnderflow", "arithmetic underflow")
	ErrInconsistent = newError(arcerrors.ErrArithmetic, "ArithmeticError", "internal consistency check failed")
)

// ErrorCode returns the code of the named error wrapped in err, or "".
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func addMoment(a, b Moment) (Moment, error) {
	s := a + b
	if s < a {
		return 0, ErrOverflow
	}
	return s, nil
}

func mulMoment(a Moment, n uint64) (Moment, error) {
	if n == 0 || a == 0 {
		return 0, nil
	}
	p := a * Moment(n)
	if p/Moment(n) != a {
		return 0, ErrOverflow
	}
	return p, nil
}

func addBalance(a, b Balance) (Balance, error) {
	s := a + b
	if s < a {
		return 0, ErrOverflow
	}
	return s, nil
}

func subBalance(a, b Balance) (Balance, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}
