package types

import (
	"slices"

	"cabi/internal/source"
)

// Enumerator is one named constant of an enum.
type Enumerator struct {
	Name  string
	Value int64
	Decl  source.Span
}

// EnumInfo stores metadata for an enum type.
type EnumInfo struct {
	Tag         string
	Decl        source.Span
	Enumerators []Enumerator
	Complete    bool
}

// RegisterEnum allocates a new nominal enum type.
func (in *Interner) RegisterEnum(tag string, decl source.Span) TypeID {
	in.enums = append(in.enums, EnumInfo{Tag: tag, Decl: decl})
	slot := in.lastSlot(len(in.enums))
	return in.internRaw(Type{Kind: KindEnum, Payload: slot})
}

// SetEnumerators completes the enum.
func (in *Interner) SetEnumerators(typeID TypeID, list []Enumerator) {
	info := in.enumInfo(typeID)
	if info == nil {
		return
	}
	info.Enumerators = slices.Clone(list)
	info.Complete = true
}

// EnumInfo returns metadata for an enum TypeID.
func (in *Interner) EnumInfo(typeID TypeID) (*EnumInfo, bool) {
	info := in.enumInfo(typeID)
	if info == nil {
		return nil, false
	}
	return info, true
}

func (in *Interner) enumInfo(typeID TypeID) *EnumInfo {
	tt, ok := in.Lookup(typeID)
	if !ok || tt.Kind != KindEnum {
		return nil
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(in.enums) {
		return nil
	}
	return &in.enums[tt.Payload]
}
