package consteval

import (
	"fmt"

	"cabi/internal/source"
)

type ConstErrKind uint8

const (
	ConstErrOverflow ConstErrKind = iota + 1
	ConstErrDivByZero
	ConstErrNotConstant
	ConstErrSyntax
	ConstErrUnknownType
)

func (k ConstErrKind) String() string {
	switch k {
	case ConstErrOverflow:
		return "overflow"
	case ConstErrDivByZero:
		return "division by zero"
	case ConstErrNotConstant:
		return "not constant"
	case ConstErrSyntax:
		return "syntax"
	case ConstErrUnknownType:
		return "unknown type"
	default:
		return "unknown"
	}
}

// Error reports a failed constant evaluation or a malformed expression.
// Pos is the byte offset inside the expression text; Span is set when the
// expression was parsed with a base span.
type Error struct {
	Kind ConstErrKind
	Pos  int
	Span source.Span
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Msg
}

func syntaxError(pos int, format string, args ...any) *Error {
	return &Error{Kind: ConstErrSyntax, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func errAt(kind ConstErrKind, n Node, format string, args ...any) *Error {
	err := &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
	if n != nil {
		err.Pos = n.Pos()
		err.Span = n.Span()
	}
	return err
}
