package scriptvm

import "errors"

var (
	// ErrEvalFalse is returned when a script completes with an empty or
	// false top stack item.
	ErrEvalFalse = errors.New("script evaluated to false")

	// ErrStackUnderflow is returned when an opcode needs more items than
	// the stack holds.
	ErrStackUnderflow = errors.New("stack underflow")

	// ErrVerify is returned by a failing OP_VERIFY or *VERIFY opcode.
	ErrVerify = errors.New("verify failed")

	// ErrUnbalancedConditional is returned for an ELSE or ENDIF without
	// an IF, or a script ending inside a conditional.
	ErrUnbalancedConditional = errors.New("unbalanced conditional")

	// ErrUnsupportedOpcode is returned for any opcode outside the
	// evaluated set.
	ErrUnsupportedOpcode = errors.New("unsupported opcode")

	// ErrNotPushOnly is returned when an unlocking script contains
	// anything but data pushes.
	ErrNotPushOnly = errors.New("unlocking script is not push only")

	// ErrInvalidNumber is returned when a stack item used as a number is
	// too long or not minimally encoded.
	ErrInvalidNumber = errors.New("invalid script number")

	// ErrDivideByZero is returned by OP_DIV and OP_MOD with a zero
	// divisor.
	ErrDivideByZero = errors.New("divide by zero")

	// ErrLockTime is returned when the lock time guard is not satisfied.
	ErrLockTime = errors.New("lock time not satisfied")

	// ErrNoTxContext is returned when an opcode needs the spending
	// transaction and none was configured.
	ErrNoTxContext = errors.New("no transaction context")

	// ErrMalformedScript is returned when a script cannot be tokenized.
	ErrMalformedScript = errors.New("malformed script")
)
