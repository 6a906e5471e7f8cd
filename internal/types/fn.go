package types

import "slices"

// FuncInfo stores metadata for function types.
type FuncInfo struct {
	Params   []TypeID // parameter types (in order)
	Result   TypeID   // return type; Builtins().Void for void
	Variadic bool     // trailing ", ..."
}

// RegisterFunc creates or finds a function type.
func (in *Interner) RegisterFunc(params []TypeID, result TypeID, variadic bool) TypeID {
	for id := TypeID(1); int(id) < len(in.types); id++ {
		tt := in.types[id]
		if tt.Kind != KindFunc || int(tt.Payload) >= len(in.fns) {
			continue
		}
		info := in.fns[tt.Payload]
		if info.Result == result && info.Variadic == variadic && slices.Equal(info.Params, params) {
			return id
		}
	}
	in.fns = append(in.fns, FuncInfo{
		Params:   slices.Clone(params),
		Result:   result,
		Variadic: variadic,
	})
	slot := in.lastSlot(len(in.fns))
	return in.internRaw(Type{Kind: KindFunc, Payload: slot})
}

// FuncInfo retrieves function type metadata by TypeID.
func (in *Interner) FuncInfo(id TypeID) (*FuncInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindFunc {
		return nil, false
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(in.fns) {
		return nil, false
	}
	return &in.fns[tt.Payload], true
}
