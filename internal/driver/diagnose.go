package driver

import (
	"errors"

	"cabi/internal/abi"
	"cabi/internal/consteval"
	"cabi/internal/decl"
	"cabi/internal/diag"
	"cabi/internal/layout"
	"cabi/internal/source"
	"cabi/internal/target"
)

// toDiagnostic maps an error from the analysis packages onto a diagnostic.
// at is the declaration being processed; errors that carry a more precise
// span use theirs unless exact is false.
func toDiagnostic(err error, at source.Span, exact bool) diag.Diagnostic {
	var (
		derr *decl.Error
		cerr *consteval.Error
		lerr *layout.LayoutError
		aerr *abi.Error
		terr *target.Error
	)
	code, span := diag.DscInvalid, at
	var notes []diag.Note
	switch {
	case errors.As(err, &derr):
		switch derr.Kind {
		case decl.ErrDuplicate:
			code = diag.DscDuplicateDecl
			if derr.Prev.Len() > 0 {
				notes = append(notes, diag.Note{Span: derr.Prev, Msg: "previous declaration is here"})
			}
		case decl.ErrUnknownFunc:
			code = diag.DscUnknownFunc
		}
		if exact && derr.Span.Len() > 0 {
			span = derr.Span
		}
	case errors.As(err, &cerr):
		code = constCode(cerr.Kind)
		if exact && cerr.Span.Len() > 0 {
			span = cerr.Span
		}
	case errors.As(err, &lerr):
		code = diag.AbiIncompleteType
		if lerr.Kind == layout.LayoutErrInvalidArraySize {
			code = diag.AbiInvalidArraySize
		}
	case errors.As(err, &aerr):
		code = diag.AbiTooManyArguments
		if aerr.Kind == abi.ErrArgumentCount {
			code = diag.DscArgCount
		}
	case errors.As(err, &terr):
		code = diag.AbiUnsupportedTarget
	}
	d := diag.NewError(code, span, err.Error())
	d.Notes = notes
	return d
}

func constCode(k consteval.ConstErrKind) diag.Code {
	switch k {
	case consteval.ConstErrOverflow:
		return diag.CstConstantOverflow
	case consteval.ConstErrDivByZero:
		return diag.CstDivisionByZero
	case consteval.ConstErrNotConstant:
		return diag.CstNotConstant
	case consteval.ConstErrUnknownType:
		return diag.DscUnknownType
	default:
		return diag.CstSyntax
	}
}

// mergeBags folds the per-target bags into one. A diagnostic reported
// identically by every target appears once; the rest are prefixed with the
// triple that produced them.
func mergeBags(dst *diag.Bag, units []*Unit) {
	type key struct {
		code diag.Code
		span source.Span
		msg  string
	}
	seen := make(map[key]int)
	for _, u := range units {
		for _, d := range u.Bag.Items() {
			seen[key{d.Code, d.Primary, d.Message}]++
		}
	}
	emitted := make(map[key]bool)
	for _, u := range units {
		for _, d := range u.Bag.Items() {
			k := key{d.Code, d.Primary, d.Message}
			if seen[k] == len(units) {
				if emitted[k] {
					continue
				}
				emitted[k] = true
			} else {
				d.Message = u.Target.Triple() + ": " + d.Message
			}
			dst.Add(d)
		}
	}
}
