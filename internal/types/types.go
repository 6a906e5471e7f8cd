package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates the C89 type kinds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindVoid
	KindChar // plain char, signed on both SysV x86 targets
	KindSChar
	KindUChar
	KindShort
	KindUShort
	KindInt
	KindUInt
	KindLong
	KindULong
	KindLongLong
	KindULongLong
	KindFloat
	KindDouble
	KindLongDouble
	KindEnum
	KindPointer
	KindArray
	KindStruct
	KindUnion
	KindFunc
)

var kindNames = [...]string{
	KindInvalid:    "invalid",
	KindVoid:       "void",
	KindChar:       "char",
	KindSChar:      "signed char",
	KindUChar:      "unsigned char",
	KindShort:      "short",
	KindUShort:     "unsigned short",
	KindInt:        "int",
	KindUInt:       "unsigned int",
	KindLong:       "long",
	KindULong:      "unsigned long",
	KindLongLong:   "long long",
	KindULongLong:  "unsigned long long",
	KindFloat:      "float",
	KindDouble:     "double",
	KindLongDouble: "long double",
	KindEnum:       "enum",
	KindPointer:    "pointer",
	KindArray:      "array",
	KindStruct:     "struct",
	KindUnion:      "union",
	KindFunc:       "function",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// IsInteger reports integer kinds, enums included.
func (k Kind) IsInteger() bool {
	return (k >= KindChar && k <= KindULongLong) || k == KindEnum
}

// IsUnsigned reports unsigned integer kinds.
func (k Kind) IsUnsigned() bool {
	switch k {
	case KindUChar, KindUShort, KindUInt, KindULong, KindULongLong:
		return true
	default:
		return false
	}
}

// IsFloat reports real floating kinds.
func (k Kind) IsFloat() bool {
	return k == KindFloat || k == KindDouble || k == KindLongDouble
}

// IsArithmetic reports integer or floating kinds.
func (k Kind) IsArithmetic() bool { return k.IsInteger() || k.IsFloat() }

// IsScalar reports arithmetic kinds and pointers.
func (k Kind) IsScalar() bool { return k.IsArithmetic() || k == KindPointer }

// IsAggregate reports structs, unions and arrays.
func (k Kind) IsAggregate() bool {
	return k == KindStruct || k == KindUnion || k == KindArray
}

// IsRecord reports structs and unions.
func (k Kind) IsRecord() bool { return k == KindStruct || k == KindUnion }

// Rank is the integer conversion rank: char < short < int < long < long long.
// Enums rank as int. Non-integer kinds return 0.
func (k Kind) Rank() int {
	switch k {
	case KindChar, KindSChar, KindUChar:
		return 1
	case KindShort, KindUShort:
		return 2
	case KindInt, KindUInt, KindEnum:
		return 3
	case KindLong, KindULong:
		return 4
	case KindLongLong, KindULongLong:
		return 5
	default:
		return 0
	}
}

// Signed returns the signed counterpart of an unsigned integer kind.
func (k Kind) Signed() Kind {
	switch k {
	case KindUChar:
		return KindSChar
	case KindUShort:
		return KindShort
	case KindUInt:
		return KindInt
	case KindULong:
		return KindLong
	case KindULongLong:
		return KindLongLong
	default:
		return k
	}
}

// Unsigned returns the unsigned counterpart of a signed integer kind.
func (k Kind) Unsigned() Kind {
	switch k {
	case KindChar, KindSChar:
		return KindUChar
	case KindShort:
		return KindUShort
	case KindInt, KindEnum:
		return KindUInt
	case KindLong:
		return KindULong
	case KindLongLong:
		return KindULongLong
	default:
		return k
	}
}

// Type is a compact descriptor for any C type.
type Type struct {
	Kind    Kind
	Elem    TypeID // pointee or array element
	Len     int64  // array length; may be negative for an invalid declaration
	Unsized bool   // array declared as T[]
	Payload uint32 // record/enum/func info slot
}

// MakePointer describes T *.
func MakePointer(elem TypeID) Type {
	return Type{Kind: KindPointer, Elem: elem}
}

// MakeArray describes T[n]. Length validation is left to layout.
func MakeArray(elem TypeID, n int64) Type {
	return Type{Kind: KindArray, Elem: elem, Len: n}
}

// MakeUnsizedArray describes T[].
func MakeUnsizedArray(elem TypeID) Type {
	return Type{Kind: KindArray, Elem: elem, Unsized: true}
}
