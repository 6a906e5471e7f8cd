package decl

import (
	"fmt"
	"math"

	"cabi/internal/abi"
	"cabi/internal/consteval"
	"cabi/internal/layout"
	"cabi/internal/source"
	"cabi/internal/types"
	"cabi/internal/varargs"
)

// FieldDecl is a struct or union member as written in a description.
type FieldDecl struct {
	Name string
	Type string
	Span source.Span
}

// EnumeratorDecl is one enumerator; an empty Value means previous + 1.
type EnumeratorDecl struct {
	Name  string
	Value string
	Span  source.Span
}

// Declarer enters declarations for one target. Enumerator values and
// array dimensions are folded with that target's widths, so every target
// needs its own Declarer and type table.
type Declarer struct {
	Scope *Scope
	Eval  *consteval.Evaluator
	Types *types.Interner
}

// New builds a declarer over engine's type table and predeclares size_t,
// ptrdiff_t, wchar_t and va_list.
func New(engine *layout.LayoutEngine) *Declarer {
	in := engine.Types
	scope := NewScope(in)
	d := &Declarer{
		Scope: scope,
		Eval:  consteval.New(engine, scope),
		Types: in,
	}
	b := in.Builtins()
	sizeT, ptrdiffT := b.ULong, b.Long
	if engine.Target.PointerSize() == 4 {
		sizeT, ptrdiffT = b.UInt, b.Int
	}
	for _, td := range []struct {
		name string
		t    types.TypeID
	}{
		{"size_t", sizeT},
		{"ptrdiff_t", ptrdiffT},
		{"wchar_t", b.Int},
		{"va_list", varargs.VaListType(in, engine.Target)},
	} {
		_ = scope.define(&Symbol{Name: td.name, Kind: SymbolTypedef, Type: td.t, Builtin: true})
	}
	return d
}

// TypeName parses and resolves a C type name. span locates src in its
// file and seeds error positions.
func (d *Declarer) TypeName(src string, span source.Span) (types.TypeID, error) {
	tn, err := consteval.ParseTypeName(src, d.Scope, span)
	if err != nil {
		return types.NoTypeID, err
	}
	return d.Eval.ResolveType(tn)
}

// Const folds a constant expression.
func (d *Declarer) Const(src string, span source.Span) (consteval.Value, error) {
	x, err := consteval.ParseExpr(src, d.Scope, span)
	if err != nil {
		return consteval.Value{}, err
	}
	return d.Eval.Eval(x)
}

// DeclareRecord declares a struct or union tag, or returns the existing
// type when the same tag was already declared with the same kind.
func (d *Declarer) DeclareRecord(kind types.Kind, tag string, span source.Span) (types.TypeID, error) {
	if tag == "" {
		return types.NoTypeID, &Error{Kind: ErrInvalid, Span: span, Msg: fmt.Sprintf("%s declaration without a tag", kind)}
	}
	if sym, ok := d.Scope.LookupTag(tag); ok {
		if d.Types.KindOf(sym.Type) == kind {
			return sym.Type, nil
		}
		return types.NoTypeID, &Error{
			Kind: ErrDuplicate,
			Name: tag,
			Span: span,
			Prev: sym.Decl,
			Msg:  fmt.Sprintf("%q defined as wrong kind of tag", tag),
		}
	}
	id := d.Types.RegisterRecord(kind, tag, span)
	if err := d.Scope.define(&Symbol{Name: tag, Kind: SymbolTag, Type: id, Decl: span}); err != nil {
		return types.NoTypeID, err
	}
	return id, nil
}

// DefineRecord completes a struct or union. Field types may refer to the
// record itself through pointers; by-value self reference is left for the
// layout engine to reject.
func (d *Declarer) DefineRecord(kind types.Kind, tag string, fields []FieldDecl, span source.Span) (types.TypeID, error) {
	id, err := d.DeclareRecord(kind, tag, span)
	if err != nil {
		return types.NoTypeID, err
	}
	if info, ok := d.Types.RecordInfo(id); ok && info.Complete {
		return types.NoTypeID, &Error{
			Kind: ErrDuplicate,
			Name: tag,
			Span: span,
			Prev: info.Decl,
			Msg:  fmt.Sprintf("redefinition of %s %s", kind, tag),
		}
	}
	seen := make(map[string]source.Span, len(fields))
	out := make([]types.Field, 0, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return types.NoTypeID, &Error{Kind: ErrInvalid, Span: f.Span, Msg: fmt.Sprintf("unnamed member in %s %s", kind, tag)}
		}
		if prev, dup := seen[f.Name]; dup {
			return types.NoTypeID, &Error{
				Kind: ErrDuplicate,
				Name: f.Name,
				Span: f.Span,
				Prev: prev,
				Msg:  fmt.Sprintf("duplicate member %q in %s %s", f.Name, kind, tag),
			}
		}
		seen[f.Name] = f.Span
		t, err := d.TypeName(f.Type, f.Span)
		if err != nil {
			return types.NoTypeID, fmt.Errorf("member %q of %s %s: %w", f.Name, kind, tag, err)
		}
		out = append(out, types.Field{Name: f.Name, Type: t, Decl: f.Span})
	}
	d.Types.SetRecordFields(id, out)
	return id, nil
}

// DeclareEnum defines an enum and its enumerators. Each enumerator is
// visible to the initializers that follow it.
func (d *Declarer) DeclareEnum(tag string, list []EnumeratorDecl, span source.Span) (types.TypeID, error) {
	if tag != "" {
		if sym, ok := d.Scope.LookupTag(tag); ok {
			return types.NoTypeID, &Error{
				Kind: ErrDuplicate,
				Name: tag,
				Span: span,
				Prev: sym.Decl,
				Msg:  fmt.Sprintf("redefinition of enum %s", tag),
			}
		}
	}
	id := d.Types.RegisterEnum(tag, span)
	if tag != "" {
		if err := d.Scope.define(&Symbol{Name: tag, Kind: SymbolTag, Type: id, Decl: span}); err != nil {
			return types.NoTypeID, err
		}
	}
	out := make([]types.Enumerator, 0, len(list))
	next := int64(0)
	for i, en := range list {
		v := next
		switch {
		case en.Value != "":
			x, err := consteval.ParseExpr(en.Value, d.Scope, en.Span)
			if err != nil {
				return types.NoTypeID, err
			}
			if v, err = d.Eval.EvalEnum(x); err != nil {
				return types.NoTypeID, fmt.Errorf("enumerator %s: %w", en.Name, err)
			}
		case i > 0 && out[i-1].Value == math.MaxInt32:
			return types.NoTypeID, &consteval.Error{
				Kind: consteval.ConstErrOverflow,
				Span: en.Span,
				Msg:  fmt.Sprintf("enumerator %s: value %d + 1 is not representable as int", en.Name, out[i-1].Value),
			}
		}
		sym := &Symbol{Name: en.Name, Kind: SymbolEnumerator, Type: d.Types.Builtins().Int, Value: v, Decl: en.Span}
		if err := d.Scope.define(sym); err != nil {
			return types.NoTypeID, err
		}
		out = append(out, types.Enumerator{Name: en.Name, Value: v, Decl: en.Span})
		next = v + 1
	}
	d.Types.SetEnumerators(id, out)
	return id, nil
}

// DeclareTypedef binds name to the type spelled by typ.
func (d *Declarer) DeclareTypedef(name, typ string, span source.Span) (types.TypeID, error) {
	t, err := d.TypeName(typ, span)
	if err != nil {
		return types.NoTypeID, err
	}
	if err := d.Scope.define(&Symbol{Name: name, Kind: SymbolTypedef, Type: t, Decl: span}); err != nil {
		return types.NoTypeID, err
	}
	return t, nil
}

// DeclareFunc declares a prototype. A lone "void" parameter means no
// parameters; array and function parameters are adjusted to pointers.
func (d *Declarer) DeclareFunc(name, result string, params []string, variadic bool, span source.Span) (types.TypeID, error) {
	if result == "" {
		result = "int"
	}
	rt, err := d.TypeName(result, span)
	if err != nil {
		return types.NoTypeID, err
	}
	switch d.Types.KindOf(rt) {
	case types.KindArray, types.KindFunc:
		return types.NoTypeID, &Error{Kind: ErrInvalid, Name: name, Span: span, Msg: fmt.Sprintf("function %s returns %s", name, d.Types.TypeString(rt))}
	}
	ps := make([]types.TypeID, 0, len(params))
	for i, p := range params {
		t, err := d.TypeName(p, span)
		if err != nil {
			return types.NoTypeID, fmt.Errorf("parameter %d of %s: %w", i+1, name, err)
		}
		if d.Types.KindOf(t) == types.KindVoid {
			if len(params) != 1 || variadic {
				return types.NoTypeID, &Error{Kind: ErrInvalid, Name: name, Span: span, Msg: fmt.Sprintf("'void' must be the only parameter of %s", name)}
			}
			continue
		}
		ps = append(ps, abi.Decay(d.Types, t))
	}
	if variadic && len(ps) == 0 {
		return types.NoTypeID, &Error{Kind: ErrInvalid, Name: name, Span: span, Msg: fmt.Sprintf("variadic function %s needs a named parameter", name)}
	}
	fn := d.Types.RegisterFunc(ps, rt, variadic)
	if err := d.Scope.define(&Symbol{Name: name, Kind: SymbolFunction, Type: fn, Decl: span}); err != nil {
		return types.NoTypeID, err
	}
	return fn, nil
}

// Func looks up a declared function.
func (d *Declarer) Func(name string, span source.Span) (*Symbol, error) {
	sym, ok := d.Scope.Lookup(name)
	if !ok || sym.Kind != SymbolFunction {
		return nil, &Error{Kind: ErrUnknownFunc, Name: name, Span: span, Msg: fmt.Sprintf("call to undeclared function %q", name)}
	}
	return sym, nil
}
