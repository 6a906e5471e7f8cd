package decl

import (
	"fmt"

	"cabi/internal/types"
)

// Scope is the file scope of an ABI description: one tag namespace shared
// by struct, union and enum, and one ordinary namespace for typedefs,
// enumerators and functions. It implements consteval.Names.
type Scope struct {
	types    *types.Interner
	tags     map[string]*Symbol
	ordinary map[string]*Symbol
	order    []*Symbol
}

func NewScope(in *types.Interner) *Scope {
	return &Scope{
		types:    in,
		tags:     make(map[string]*Symbol),
		ordinary: make(map[string]*Symbol),
	}
}

// Lookup finds a typedef, enumerator or function.
func (s *Scope) Lookup(name string) (*Symbol, bool) {
	sym, ok := s.ordinary[name]
	return sym, ok
}

// LookupTag finds a struct, union or enum tag regardless of its kind.
func (s *Scope) LookupTag(tag string) (*Symbol, bool) {
	sym, ok := s.tags[tag]
	return sym, ok
}

// Symbols lists user declarations in declaration order.
func (s *Scope) Symbols() []*Symbol {
	out := make([]*Symbol, 0, len(s.order))
	for _, sym := range s.order {
		if !sym.Builtin {
			out = append(out, sym)
		}
	}
	return out
}

func (s *Scope) Typedef(name string) (types.TypeID, bool) {
	sym, ok := s.ordinary[name]
	if !ok || sym.Kind != SymbolTypedef {
		return types.NoTypeID, false
	}
	return sym.Type, true
}

func (s *Scope) Tag(kind types.Kind, tag string) (types.TypeID, bool) {
	sym, ok := s.tags[tag]
	if !ok || s.types.KindOf(sym.Type) != kind {
		return types.NoTypeID, false
	}
	return sym.Type, true
}

func (s *Scope) Enumerator(name string) (int64, bool) {
	sym, ok := s.ordinary[name]
	if !ok || sym.Kind != SymbolEnumerator {
		return 0, false
	}
	return sym.Value, true
}

func (s *Scope) define(sym *Symbol) error {
	ns := s.ordinary
	if sym.Kind == SymbolTag {
		ns = s.tags
	}
	if prev, ok := ns[sym.Name]; ok {
		return &Error{
			Kind: ErrDuplicate,
			Name: sym.Name,
			Span: sym.Decl,
			Prev: prev.Decl,
			Msg:  fmt.Sprintf("%q redeclared as %s (previous %s)", sym.Name, sym.Kind, prev.Kind),
		}
	}
	ns[sym.Name] = sym
	s.order = append(s.order, sym)
	return nil
}
