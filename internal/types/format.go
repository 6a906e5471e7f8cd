package types

import (
	"strconv"
	"strings"
)

// TypeString renders id in C declaration syntax with an empty declarator,
// e.g. "unsigned long", "struct S *", "char [4]", "int (*)[3]".
func (in *Interner) TypeString(id TypeID) string {
	base, decl := in.declarator(id, "")
	if decl == "" {
		return base
	}
	return base + " " + decl
}

// declarator peels derived types off id and returns the base specifier plus
// the declarator text wrapped around inner.
func (in *Interner) declarator(id TypeID, inner string) (base, decl string) {
	tt, ok := in.Lookup(id)
	if !ok {
		return "<invalid>", inner
	}
	switch tt.Kind {
	case KindPointer:
		next := "*" + inner
		if k := in.KindOf(tt.Elem); k == KindArray || k == KindFunc {
			next = "(" + next + ")"
		}
		return in.declarator(tt.Elem, next)
	case KindArray:
		n := ""
		if !tt.Unsized {
			n = strconv.FormatInt(tt.Len, 10)
		}
		return in.declarator(tt.Elem, inner+"["+n+"]")
	case KindFunc:
		info, _ := in.FuncInfo(id)
		if info == nil {
			return "<invalid>", inner
		}
		params := make([]string, 0, len(info.Params)+1)
		for _, p := range info.Params {
			params = append(params, in.TypeString(p))
		}
		if info.Variadic {
			params = append(params, "...")
		}
		if len(params) == 0 {
			params = append(params, "void")
		}
		return in.declarator(info.Result, inner+"("+strings.Join(params, ", ")+")")
	case KindStruct, KindUnion:
		return tt.Kind.String() + " " + in.tagOf(id), inner
	case KindEnum:
		return "enum " + in.tagOf(id), inner
	default:
		return tt.Kind.String(), inner
	}
}

func (in *Interner) tagOf(id TypeID) string {
	if info, ok := in.RecordInfo(id); ok && info.Tag != "" {
		return info.Tag
	}
	if info, ok := in.EnumInfo(id); ok && info.Tag != "" {
		return info.Tag
	}
	return "<anonymous#" + strconv.FormatUint(uint64(id), 10) + ">"
}
