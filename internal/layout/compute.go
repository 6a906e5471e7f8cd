package layout

import (
	"math"
	"math/bits"

	"fortio.org/safecast"

	"cabi/internal/target"
	"cabi/internal/types"
)

// ScalarOf maps a scalar type kind onto the descriptor table row.
func ScalarOf(k types.Kind) (target.Scalar, bool) {
	switch k {
	case types.KindChar, types.KindSChar, types.KindUChar:
		return target.Char, true
	case types.KindShort, types.KindUShort:
		return target.Short, true
	case types.KindInt, types.KindUInt:
		return target.Int, true
	case types.KindLong, types.KindULong:
		return target.Long, true
	case types.KindLongLong, types.KindULongLong:
		return target.LongLong, true
	case types.KindFloat:
		return target.Float, true
	case types.KindDouble:
		return target.Double, true
	case types.KindLongDouble:
		return target.LongDouble, true
	case types.KindPointer:
		return target.Pointer, true
	case types.KindEnum:
		return target.Enum, true
	default:
		return 0, false
	}
}

func (e *LayoutEngine) computeLayout(id types.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	tt, ok := e.Types.Lookup(id)
	if !ok {
		return TypeLayout{}, e.errorf(LayoutErrIncompleteType, id, nil)
	}

	if s, ok := ScalarOf(tt.Kind); ok {
		return TypeLayout{Size: e.Target.Size(s), Align: e.Target.Align(s)}, nil
	}

	switch tt.Kind {
	case types.KindArray:
		return e.arrayLayout(id, tt, state)
	case types.KindStruct:
		return e.structLayout(id, state)
	case types.KindUnion:
		return e.unionLayout(id, state)
	default:
		// void and function types have no size.
		return TypeLayout{}, e.errorf(LayoutErrIncompleteType, id, nil)
	}
}

func (e *LayoutEngine) arrayLayout(id types.TypeID, tt types.Type, state *layoutState) (TypeLayout, *LayoutError) {
	if tt.Unsized {
		return TypeLayout{}, e.errorf(LayoutErrIncompleteType, id, nil)
	}
	if tt.Len < 0 {
		return TypeLayout{}, e.errorf(LayoutErrInvalidArraySize, id, func(le *LayoutError) {
			le.Length = tt.Len
		})
	}
	elem, err := e.layoutOf(tt.Elem, state)
	if err != nil {
		if len(err.Cycle) > 0 || err.Kind == LayoutErrInvalidArraySize {
			return TypeLayout{}, err
		}
		return TypeLayout{}, e.errorf(LayoutErrInvalidArraySize, id, func(le *LayoutError) {
			le.Length = tt.Len
			le.Err = err
		})
	}
	n, convErr := safecast.Conv[uint64](tt.Len)
	if convErr != nil {
		return TypeLayout{}, e.errorf(LayoutErrInvalidArraySize, id, func(le *LayoutError) {
			le.Length = tt.Len
			le.Err = convErr
		})
	}
	hi, lo := bits.Mul64(n, uint64(elem.Size))
	if hi != 0 || lo > math.MaxInt64 {
		return TypeLayout{}, e.errorf(LayoutErrInvalidArraySize, id, func(le *LayoutError) {
			le.Length = tt.Len
		})
	}
	return TypeLayout{Size: int64(lo), Align: elem.Align}, nil
}

func (e *LayoutEngine) structLayout(id types.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	info, ok := e.Types.RecordInfo(id)
	if !ok || !info.Complete {
		return TypeLayout{}, e.errorf(LayoutErrIncompleteType, id, nil)
	}

	var (
		offset   int64
		maxAlign int64 = 1
	)
	fields := make([]FieldLayout, 0, len(info.Fields))
	for _, f := range info.Fields {
		fl, err := e.layoutOf(f.Type, state)
		if err != nil {
			return TypeLayout{}, err
		}
		offset = alignUp(offset, fl.Align)
		fields = append(fields, FieldLayout{
			Name:   f.Name,
			Type:   f.Type,
			Offset: offset,
			Size:   fl.Size,
			Align:  fl.Align,
		})
		next, carry := bits.Add64(uint64(offset), uint64(fl.Size), 0)
		if carry != 0 || next > math.MaxInt64 {
			return TypeLayout{}, e.errorf(LayoutErrInvalidArraySize, id, nil)
		}
		offset = int64(next)
		maxAlign = max(maxAlign, fl.Align)
	}

	return TypeLayout{
		Size:   alignUp(offset, maxAlign),
		Align:  maxAlign,
		Fields: fields,
	}, nil
}

func (e *LayoutEngine) unionLayout(id types.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	info, ok := e.Types.RecordInfo(id)
	if !ok || !info.Complete {
		return TypeLayout{}, e.errorf(LayoutErrIncompleteType, id, nil)
	}

	var (
		maxSize  int64
		maxAlign int64 = 1
	)
	fields := make([]FieldLayout, 0, len(info.Fields))
	for _, f := range info.Fields {
		fl, err := e.layoutOf(f.Type, state)
		if err != nil {
			return TypeLayout{}, err
		}
		fields = append(fields, FieldLayout{
			Name:  f.Name,
			Type:  f.Type,
			Size:  fl.Size,
			Align: fl.Align,
		})
		maxSize = max(maxSize, fl.Size)
		maxAlign = max(maxAlign, fl.Align)
	}

	return TypeLayout{
		Size:   alignUp(maxSize, maxAlign),
		Align:  maxAlign,
		Fields: fields,
	}, nil
}

// alignUp rounds n up to a multiple of align (align >= 1).
func alignUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// AlignUp is alignUp for other packages laying out stack frames.
func AlignUp(n, align int64) int64 { return alignUp(n, align) }
