package escrow

import "errors"

// Caller-visible error taxonomy for the bounty escrow lifecycle. Every
// precondition violation surfaces as exactly one of these values with zero
// side effects.
var (
	ErrAlreadyInitialized = errors.New("escrow: already initialized")
	ErrNotInitialized     = errors.New("escrow: not initialized")
	ErrBountyExists       = errors.New("escrow: bounty already exists")
	ErrBountyNotFound     = errors.New("escrow: bounty not found")
	ErrFundsNotLocked     = errors.New("escrow: funds not locked")
	ErrDeadlineNotPassed  = errors.New("escrow: deadline not passed")
	ErrUnauthorized       = errors.New("escrow: unauthorized")
	ErrInvalidAmount      = errors.New("escrow: invalid amount")
	ErrInvalidDeadline    = errors.New("escrow: invalid deadline")
)

// Program-variant validation errors.
var (
	ErrProgramExists       = errors.New("escrow: program already exists")
	ErrProgramNotFound     = errors.New("escrow: program not found")
	ErrInsufficientBalance = errors.New("escrow: insufficient program balance")
	ErrLengthMismatch      = errors.New("escrow: recipients and amounts length mismatch")
)

// ErrReentrancy signals a nested invocation of a mutating operation. It is a
// protocol violation rather than a business-rule failure: callers must treat
// it as a fatal abort of the whole invocation, never as a retryable error.
var ErrReentrancy = errors.New("escrow: reentrant invocation detected")
