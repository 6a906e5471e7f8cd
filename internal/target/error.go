package target

import "fmt"

// ErrorKind classifies target selection failures.
type ErrorKind uint8

const (
	ErrUnsupportedTarget ErrorKind = iota + 1
)

// Error is returned by Select.
type Error struct {
	Kind     ErrorKind
	Selector string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ErrUnsupportedTarget:
		return fmt.Sprintf("unsupported target %q (supported: i386, x86_64)", e.Selector)
	default:
		return fmt.Sprintf("target error %d for %q", e.Kind, e.Selector)
	}
}
