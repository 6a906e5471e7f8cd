package layout

import (
	"fmt"
	"strings"

	"cabi/internal/types"
)

// LayoutErrorKind enumerates types of layout calculation errors.
type LayoutErrorKind uint8

const (
	// LayoutErrIncompleteType: void, function, unsized array, forward-declared
	// record, or a record that contains itself by value.
	LayoutErrIncompleteType LayoutErrorKind = iota + 1
	// LayoutErrInvalidArraySize: negative length, incomplete element, or a
	// size that does not fit in int64.
	LayoutErrInvalidArraySize
)

func (k LayoutErrorKind) String() string {
	switch k {
	case LayoutErrIncompleteType:
		return "IncompleteType"
	case LayoutErrInvalidArraySize:
		return "InvalidArraySize"
	default:
		return fmt.Sprintf("LayoutErrorKind(%d)", k)
	}
}

// LayoutError represents an error during memory layout calculation.
type LayoutError struct {
	Kind   LayoutErrorKind
	Type   types.TypeID
	Name   string         // C spelling of Type
	Cycle  []types.TypeID // for recursive records
	Path   []string       // C spellings of Cycle
	Length int64          // array length for LayoutErrInvalidArraySize
	Err    error          // underlying element failure
}

func (e *LayoutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case LayoutErrIncompleteType:
		if len(e.Path) > 0 {
			return fmt.Sprintf("recursive type %s has infinite size (cycle: %s)", e.Name, strings.Join(e.Path, " -> "))
		}
		return fmt.Sprintf("incomplete type %s", e.Name)
	case LayoutErrInvalidArraySize:
		if e.Err != nil {
			return fmt.Sprintf("invalid array %s: %v", e.Name, e.Err)
		}
		if e.Length < 0 {
			return fmt.Sprintf("negative array length %d in %s", e.Length, e.Name)
		}
		return fmt.Sprintf("array %s is too large", e.Name)
	default:
		return fmt.Sprintf("layout error kind=%d type %s", e.Kind, e.Name)
	}
}

func (e *LayoutError) Unwrap() error {
	if e == nil || e.Err == nil {
		return nil
	}
	return e.Err
}

func (e *LayoutEngine) errorf(kind LayoutErrorKind, t types.TypeID, fill func(*LayoutError)) *LayoutError {
	le := &LayoutError{Kind: kind, Type: t, Name: e.Types.TypeString(t)}
	if fill != nil {
		fill(le)
	}
	for _, id := range le.Cycle {
		le.Path = append(le.Path, e.Types.TypeString(id))
	}
	return le
}
