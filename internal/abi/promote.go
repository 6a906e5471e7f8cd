package abi

import "cabi/internal/types"

// Decay applies parameter adjustment: arrays become pointers to their
// element, functions become pointers to themselves.
func Decay(in *types.Interner, t types.TypeID) types.TypeID {
	tt, ok := in.Lookup(t)
	if !ok {
		return t
	}
	switch tt.Kind {
	case types.KindArray:
		return in.PointerTo(tt.Elem)
	case types.KindFunc:
		return in.PointerTo(t)
	default:
		return t
	}
}

// Promote applies the default argument promotions used for variadic
// arguments: integer types narrower than int and enums become int, float
// becomes double. Arrays and functions decay first.
func Promote(in *types.Interner, t types.TypeID) types.TypeID {
	t = Decay(in, t)
	b := in.Builtins()
	switch in.KindOf(t) {
	case types.KindChar, types.KindSChar, types.KindUChar,
		types.KindShort, types.KindUShort, types.KindEnum:
		return b.Int
	case types.KindFloat:
		return b.Double
	default:
		return t
	}
}
