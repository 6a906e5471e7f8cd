package abi

import "fmt"

// ErrorKind classifies plan failures that are not layout failures.
type ErrorKind uint8

const (
	// ErrTooManyArguments: the outgoing argument area exceeds the target's
	// ceiling (only when the descriptor carries one).
	ErrTooManyArguments ErrorKind = iota + 1
	// ErrArgumentCount: extra arguments passed to a non-variadic function,
	// or fewer arguments than named parameters.
	ErrArgumentCount
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTooManyArguments:
		return "TooManyArguments"
	case ErrArgumentCount:
		return "ArgumentCount"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Error is returned by PlanCall/PlanEntry.
type Error struct {
	Kind   ErrorKind
	Need   int64 // stack bytes needed, or arguments supplied
	Limit  int64 // stack ceiling, or parameters declared
	Target string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ErrTooManyArguments:
		return fmt.Sprintf("too many arguments: %d bytes of stack arguments exceed the %s limit of %d", e.Need, e.Target, e.Limit)
	case ErrArgumentCount:
		return fmt.Sprintf("wrong number of arguments: %d supplied, %d declared", e.Need, e.Limit)
	default:
		return fmt.Sprintf("abi error kind=%d", e.Kind)
	}
}
