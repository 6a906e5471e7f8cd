package types

import (
	"fmt"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for the basic types.
type Builtins struct {
	Invalid    TypeID
	Void       TypeID
	Char       TypeID
	SChar      TypeID
	UChar      TypeID
	Short      TypeID
	UShort     TypeID
	Int        TypeID
	UInt       TypeID
	Long       TypeID
	ULong      TypeID
	LongLong   TypeID
	ULongLong  TypeID
	Float      TypeID
	Double     TypeID
	LongDouble TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
// Records, enums and functions live in side tables addressed by Payload.
type Interner struct {
	types    []Type
	index    map[typeKey]TypeID
	builtins Builtins
	byKind   [KindFunc + 1]TypeID
	records  []RecordInfo
	enums    []EnumInfo
	fns      []FuncInfo
}

// NewInterner constructs an interner seeded with the basic types.
func NewInterner() *Interner {
	in := &Interner{
		index: make(map[typeKey]TypeID, 64),
	}
	// slot 0 of every side table is the invalid sentinel
	in.records = append(in.records, RecordInfo{})
	in.enums = append(in.enums, EnumInfo{})
	in.fns = append(in.fns, FuncInfo{})

	in.builtins.Invalid = in.internRaw(Type{Kind: KindInvalid})
	b := &in.builtins
	for _, slot := range []struct {
		dst  *TypeID
		kind Kind
	}{
		{&b.Void, KindVoid},
		{&b.Char, KindChar},
		{&b.SChar, KindSChar},
		{&b.UChar, KindUChar},
		{&b.Short, KindShort},
		{&b.UShort, KindUShort},
		{&b.Int, KindInt},
		{&b.UInt, KindUInt},
		{&b.Long, KindLong},
		{&b.ULong, KindULong},
		{&b.LongLong, KindLongLong},
		{&b.ULongLong, KindULongLong},
		{&b.Float, KindFloat},
		{&b.Double, KindDouble},
		{&b.LongDouble, KindLongDouble},
	} {
		*slot.dst = in.Intern(Type{Kind: slot.kind})
		in.byKind[slot.kind] = *slot.dst
	}
	return in
}

// Builtins returns TypeIDs for the basic types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Basic returns the TypeID of a basic (non-derived) kind, or NoTypeID.
func (in *Interner) Basic(k Kind) TypeID {
	if int(k) >= len(in.byKind) {
		return NoTypeID
	}
	return in.byKind[k]
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := typeKey(t)
	if id, ok := in.index[key]; ok {
		return id
	}
	return in.internRaw(t)
}

// PointerTo interns T *.
func (in *Interner) PointerTo(elem TypeID) TypeID {
	return in.Intern(MakePointer(elem))
}

// ArrayOf interns T[n].
func (in *Interner) ArrayOf(elem TypeID, n int64) TypeID {
	return in.Intern(MakeArray(elem, n))
}

// internRaw adds the descriptor to the storage without consulting the map.
func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	key := typeKey(t)
	in.index[key] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// KindOf returns the kind of id, KindInvalid for unknown ids.
func (in *Interner) KindOf(id TypeID) Kind {
	tt, _ := in.Lookup(id)
	return tt.Kind
}

// Len returns the number of interned types, the sentinel included.
func (in *Interner) Len() int { return len(in.types) }

type typeKey Type
