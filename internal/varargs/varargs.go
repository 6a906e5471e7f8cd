// Package varargs models va_start/va_arg for the two SysV targets: the
// initial cursor after the named parameters and the fetch sequence for each
// variadic argument.
package varargs

import (
	"fmt"

	"cabi/internal/abi"
	"cabi/internal/layout"
	"cabi/internal/source"
	"cabi/internal/target"
	"cabi/internal/types"
)

// State mirrors the fields of the x86_64 va_list. On i386 only
// OverflowOffset is meaningful.
type State struct {
	// GPOffset is the byte offset of the next integer slot in the save area;
	// GPLimit means exhausted.
	GPOffset int64
	// FPOffset is the byte offset of the next float slot in the save area;
	// FPLimit means exhausted.
	FPOffset int64
	// OverflowOffset is the offset of the next stack argument from the start
	// of the incoming argument area.
	OverflowOffset int64

	GPLimit int64
	FPLimit int64
}

// Source says where a piece of a variadic argument is read from.
type Source uint8

const (
	FromGP Source = iota
	FromFP
	FromOverflow
)

func (s Source) String() string {
	switch s {
	case FromGP:
		return "gp"
	case FromFP:
		return "fp"
	default:
		return "overflow"
	}
}

// Piece copies Size bytes from Offset in Source into byte Part of the value.
type Piece struct {
	Source Source
	Offset int64
	Part   int64
	Size   int64
}

// Fetch is the result of one va_arg.
type Fetch struct {
	Requested types.TypeID
	Type      types.TypeID // promoted
	Size      int64
	Pieces    []Piece
}

// Start computes the state va_start produces for a function with the given
// entry plan.
func Start(entry abi.EntryPlan) State {
	desc := entry.Target
	st := State{
		OverflowOffset: layout.AlignUp(entry.StackUsed, desc.StackSlotAlign()),
	}
	if !desc.Is64() {
		return st
	}
	st.GPLimit = entry.SaveArea.FPBase
	st.FPLimit = entry.SaveArea.Size
	st.GPOffset = entry.SaveArea.GPBase + int64(entry.IntRegsUsed)*entry.SaveArea.GPSlot
	st.FPOffset = entry.SaveArea.FPBase + int64(entry.FloatRegsUsed)*entry.SaveArea.FPSlot
	return st
}

// Cursor walks the variadic arguments of one activation. The state only ever
// moves forward.
type Cursor struct {
	c     *abi.Classifier
	state State
	save  abi.SaveAreaLayout
}

// NewCursor starts a cursor for entry; entry must be variadic.
func NewCursor(c *abi.Classifier, entry abi.EntryPlan) (*Cursor, error) {
	if !entry.Variadic {
		return nil, fmt.Errorf("va_start in a function without variadic parameters")
	}
	return &Cursor{c: c, state: Start(entry), save: entry.SaveArea}, nil
}

// State returns a snapshot of the cursor.
func (cur *Cursor) State() State { return cur.state }

// Next yields the fetch sequence for the next argument, read as t.
func (cur *Cursor) Next(t types.TypeID) (Fetch, error) {
	promoted := abi.Promote(cur.c.Types, t)
	cls, err := cur.c.Classify(promoted)
	if err != nil {
		return Fetch{}, err
	}
	if cls.Return == abi.ReturnVoid {
		return Fetch{}, &layout.LayoutError{Kind: layout.LayoutErrIncompleteType, Type: t, Name: cur.c.Types.TypeString(t)}
	}
	f := Fetch{Requested: t, Type: promoted, Size: cls.Size}
	desc := cur.c.Target
	st := &cur.state

	if desc.Is64() && cls.Pass == abi.PassInRegisters &&
		st.GPOffset+int64(cls.IntRegs())*cur.save.GPSlot <= st.GPLimit &&
		st.FPOffset+int64(cls.FloatRegs())*cur.save.FPSlot <= st.FPLimit {
		for i, c := range cls.Classes {
			part := int64(i) * 8
			size := min(8, cls.Size-part)
			switch c {
			case abi.ClassInteger:
				f.Pieces = append(f.Pieces, Piece{Source: FromGP, Offset: st.GPOffset, Part: part, Size: size})
				st.GPOffset += cur.save.GPSlot
			case abi.ClassFloat:
				f.Pieces = append(f.Pieces, Piece{Source: FromFP, Offset: st.FPOffset, Part: part, Size: size})
				st.FPOffset += cur.save.FPSlot
			}
		}
		return f, nil
	}

	slot := desc.StackSlotAlign()
	align := slot
	if desc.Is64() && cls.Align > align {
		align = cls.Align
	}
	off := layout.AlignUp(st.OverflowOffset, align)
	f.Pieces = []Piece{{Source: FromOverflow, Offset: off, Size: cls.Size}}
	st.OverflowOffset = off + layout.AlignUp(cls.Size, slot)
	return f, nil
}

// VaListType declares va_list in the type table: struct __va_list_tag[1] on
// x86_64, char * on i386. Call it once per type table.
func VaListType(in *types.Interner, desc target.Descriptor) types.TypeID {
	b := in.Builtins()
	if !desc.Is64() {
		return in.PointerTo(b.Char)
	}
	tag := in.RegisterRecord(types.KindStruct, "__va_list_tag", source.Span{})
	voidPtr := in.PointerTo(b.Void)
	in.SetRecordFields(tag, []types.Field{
		{Name: "gp_offset", Type: b.UInt},
		{Name: "fp_offset", Type: b.UInt},
		{Name: "overflow_arg_area", Type: voidPtr},
		{Name: "reg_save_area", Type: voidPtr},
	})
	return in.ArrayOf(tag, 1)
}
