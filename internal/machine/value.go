package machine

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"cabi/internal/layout"
	"cabi/internal/types"
)

// Value is a C object: its type and its bytes in target layout.
type Value struct {
	Type  types.TypeID
	Bytes []byte
}

// Codec encodes and decodes values for one target.
type Codec struct {
	Types  *types.Interner
	Layout *layout.LayoutEngine
}

// NewCodec builds a codec on top of a layout engine.
func NewCodec(engine *layout.LayoutEngine) *Codec {
	return &Codec{Types: engine.Types, Layout: engine}
}

// Zero returns the all-zero value of t.
func (c *Codec) Zero(t types.TypeID) (Value, error) {
	l, err := c.Layout.LayoutOf(t)
	if err != nil {
		return Value{}, err
	}
	return Value{Type: t, Bytes: make([]byte, l.Size)}, nil
}

// Int encodes v as an integer, enum or pointer of type t, truncated to the
// target width.
func (c *Codec) Int(t types.TypeID, v int64) (Value, error) {
	k := c.Types.KindOf(t)
	if !k.IsInteger() && k != types.KindPointer {
		return Value{}, fmt.Errorf("cannot encode integer as %s", c.Types.TypeString(t))
	}
	out, err := c.Zero(t)
	if err != nil {
		return Value{}, err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	copy(out.Bytes, buf[:])
	return out, nil
}

// Float encodes v as float, double or long double.
func (c *Codec) Float(t types.TypeID, v float64) (Value, error) {
	out, err := c.Zero(t)
	if err != nil {
		return Value{}, err
	}
	switch c.Types.KindOf(t) {
	case types.KindFloat:
		binary.LittleEndian.PutUint32(out.Bytes, math.Float32bits(float32(v)))
	case types.KindDouble:
		binary.LittleEndian.PutUint64(out.Bytes, math.Float64bits(v))
	case types.KindLongDouble:
		putExtended(out.Bytes, v)
	default:
		return Value{}, fmt.Errorf("cannot encode float as %s", c.Types.TypeString(t))
	}
	return out, nil
}

// Record encodes a struct from its member values in declaration order, or a
// union from the value of one member. Padding is zero.
func (c *Codec) Record(t types.TypeID, members ...Value) (Value, error) {
	l, err := c.Layout.LayoutOf(t)
	if err != nil {
		return Value{}, err
	}
	out := Value{Type: t, Bytes: make([]byte, l.Size)}
	switch k := c.Types.KindOf(t); {
	case k == types.KindUnion:
		if len(members) != 1 {
			return Value{}, fmt.Errorf("union %s takes exactly one member value", c.Types.TypeString(t))
		}
		for _, f := range l.Fields {
			if f.Type == members[0].Type {
				copy(out.Bytes, members[0].Bytes)
				return out, nil
			}
		}
		return Value{}, fmt.Errorf("union %s has no member of type %s", c.Types.TypeString(t), c.Types.TypeString(members[0].Type))
	case k != types.KindStruct:
		return Value{}, fmt.Errorf("%s is not a struct or union", c.Types.TypeString(t))
	}
	if len(members) != len(l.Fields) {
		return Value{}, fmt.Errorf("struct %s has %d members, got %d values", c.Types.TypeString(t), len(l.Fields), len(members))
	}
	for i, f := range l.Fields {
		v, err := c.Convert(members[i], f.Type)
		if err != nil {
			return Value{}, fmt.Errorf("member %s: %w", f.Name, err)
		}
		copy(out.Bytes[f.Offset:f.Offset+f.Size], v.Bytes)
	}
	return out, nil
}

// Field extracts a struct or union member.
func (c *Codec) Field(v Value, name string) (Value, error) {
	l, err := c.Layout.LayoutOf(v.Type)
	if err != nil {
		return Value{}, err
	}
	f, ok := l.Field(name)
	if !ok {
		return Value{}, fmt.Errorf("%s has no member %q", c.Types.TypeString(v.Type), name)
	}
	return Value{Type: f.Type, Bytes: append([]byte(nil), v.Bytes[f.Offset:f.Offset+f.Size]...)}, nil
}

// AsInt decodes an integer, enum or pointer, sign-extending signed kinds.
func (c *Codec) AsInt(v Value) (int64, error) {
	k := c.Types.KindOf(v.Type)
	if !k.IsInteger() && k != types.KindPointer {
		return 0, fmt.Errorf("%s is not an integer", c.Types.TypeString(v.Type))
	}
	var buf [8]byte
	copy(buf[:], v.Bytes)
	u := binary.LittleEndian.Uint64(buf[:])
	width := uint(len(v.Bytes)) * 8
	if width >= 64 || k.IsUnsigned() || k == types.KindPointer {
		return int64(u), nil
	}
	shift := 64 - width
	return int64(u<<shift) >> shift, nil
}

// AsFloat decodes float, double or long double.
func (c *Codec) AsFloat(v Value) (float64, error) {
	switch c.Types.KindOf(v.Type) {
	case types.KindFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(v.Bytes))), nil
	case types.KindDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(v.Bytes)), nil
	case types.KindLongDouble:
		return getExtended(v.Bytes), nil
	default:
		return 0, fmt.Errorf("%s is not a floating type", c.Types.TypeString(v.Type))
	}
}

// Convert performs the C conversion of v to type to for arithmetic and
// pointer types. Identical types are returned unchanged.
func (c *Codec) Convert(v Value, to types.TypeID) (Value, error) {
	if v.Type == to {
		return v, nil
	}
	from, dst := c.Types.KindOf(v.Type), c.Types.KindOf(to)
	switch {
	case from.IsFloat() && dst.IsFloat():
		f, err := c.AsFloat(v)
		if err != nil {
			return Value{}, err
		}
		return c.Float(to, f)
	case from.IsFloat() && dst.IsInteger():
		f, err := c.AsFloat(v)
		if err != nil {
			return Value{}, err
		}
		return c.Int(to, int64(f))
	case (from.IsInteger() || from == types.KindPointer) && dst.IsFloat():
		n, err := c.AsInt(v)
		if err != nil {
			return Value{}, err
		}
		if from.IsUnsigned() {
			return c.Float(to, float64(uint64(n)))
		}
		return c.Float(to, float64(n))
	case (from.IsInteger() || from == types.KindPointer) && (dst.IsInteger() || dst == types.KindPointer):
		n, err := c.AsInt(v)
		if err != nil {
			return Value{}, err
		}
		return c.Int(to, n)
	}
	return Value{}, fmt.Errorf("cannot convert %s to %s", c.Types.TypeString(v.Type), c.Types.TypeString(to))
}

// putExtended stores f as an x87 80-bit extended value in the first ten
// bytes of b.
func putExtended(b []byte, f float64) {
	raw := math.Float64bits(f)
	sign := uint16(raw>>63) << 15
	exp := int((raw >> 52) & 0x7ff)
	frac := raw & (1<<52 - 1)

	var (
		e uint16
		m uint64
	)
	switch {
	case exp == 0 && frac == 0:
	case exp == 0x7ff:
		e, m = 0x7fff, 1<<63|frac<<11
	case exp == 0:
		top := 63 - bits.LeadingZeros64(frac)
		e = uint16(top - 1074 + 16383)
		m = frac << (63 - top)
	default:
		e = uint16(exp - 1023 + 16383)
		m = 1<<63 | frac<<11
	}
	binary.LittleEndian.PutUint64(b[0:8], m)
	binary.LittleEndian.PutUint16(b[8:10], e|sign)
}

func getExtended(b []byte) float64 {
	m := binary.LittleEndian.Uint64(b[0:8])
	se := binary.LittleEndian.Uint16(b[8:10])
	neg := se&0x8000 != 0
	e := int(se & 0x7fff)

	var f float64
	switch {
	case e == 0 && m == 0:
	case e == 0x7fff:
		if m<<1 != 0 {
			return math.NaN()
		}
		f = math.Inf(1)
	default:
		f = math.Ldexp(float64(m), e-16383-63)
	}
	if neg {
		f = -f
	}
	return f
}
