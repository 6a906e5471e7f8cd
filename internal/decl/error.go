package decl

import (
	"fmt"

	"cabi/internal/source"
)

type ErrorKind uint8

const (
	// ErrDuplicate: a name declared twice in the same namespace.
	ErrDuplicate ErrorKind = iota + 1
	// ErrInvalid: a declaration C does not allow (bad parameter list,
	// function returning an array, empty name).
	ErrInvalid
	// ErrUnknownFunc: a call names a function that was never declared.
	ErrUnknownFunc
)

func (k ErrorKind) String() string {
	switch k {
	case ErrDuplicate:
		return "duplicate declaration"
	case ErrInvalid:
		return "invalid declaration"
	case ErrUnknownFunc:
		return "unknown function"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

type Error struct {
	Kind ErrorKind
	Name string
	Span source.Span
	Prev source.Span // earlier declaration for ErrDuplicate
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("%s of %q", e.Kind, e.Name)
}
