package decl

import (
	"cabi/internal/source"
	"cabi/internal/types"
)

// SymbolKind classifies the semantic meaning of a symbol.
type SymbolKind uint8

const (
	SymbolInvalid SymbolKind = iota
	SymbolTag
	SymbolTypedef
	SymbolEnumerator
	SymbolFunction
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolTag:
		return "tag"
	case SymbolTypedef:
		return "typedef"
	case SymbolEnumerator:
		return "enumerator"
	case SymbolFunction:
		return "function"
	default:
		return "invalid"
	}
}

// Symbol is one declared name. Value is only meaningful for enumerators.
type Symbol struct {
	Name    string
	Kind    SymbolKind
	Type    types.TypeID
	Value   int64
	Decl    source.Span
	Builtin bool
}
