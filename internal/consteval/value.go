package consteval

import (
	"math"
	"strconv"

	"cabi/internal/layout"
	"cabi/internal/types"
)

// Value is a folded integer constant. Bits holds the value truncated to the
// width of Kind; signed kinds are sign-extended to 64 bits.
type Value struct {
	Kind types.Kind
	Bits uint64
}

func (v Value) Int64() int64   { return int64(v.Bits) }
func (v Value) Uint64() uint64 { return v.Bits }

// Unsigned reports whether the value has an unsigned type.
func (v Value) Unsigned() bool { return v.Kind.IsUnsigned() }

func (v Value) String() string {
	if v.Unsigned() {
		return strconv.FormatUint(v.Bits, 10)
	}
	return strconv.FormatInt(int64(v.Bits), 10)
}

// num is an operand during folding. Floating operands only survive as the
// immediate operand of a cast.
type num struct {
	kind types.Kind
	bits uint64
	f    float64
}

func (n num) isFloat() bool { return n.kind.IsFloat() }

func (n num) value() Value { return Value{Kind: n.kind, Bits: n.bits} }

func (e *Evaluator) width(k types.Kind) uint {
	s, ok := layout.ScalarOf(k)
	if !ok {
		return 0
	}
	return e.Target.Bits(s)
}

// normalize truncates x to the width of k and sign-extends signed kinds.
func (e *Evaluator) normalize(k types.Kind, x uint64) uint64 {
	w := e.width(k)
	if w == 0 || w >= 64 {
		return x
	}
	x &= 1<<w - 1
	if !k.IsUnsigned() && x&(1<<(w-1)) != 0 {
		x |= ^uint64(0) << w
	}
	return x
}

func (e *Evaluator) minOf(k types.Kind) int64 {
	return -1 << (e.width(k) - 1)
}

func (e *Evaluator) maxOf(k types.Kind) int64 {
	return 1<<(e.width(k)-1) - 1
}

func (e *Evaluator) umaxOf(k types.Kind) uint64 {
	w := e.width(k)
	if w >= 64 {
		return math.MaxUint64
	}
	return 1<<w - 1
}

func (e *Evaluator) fitsSigned(k types.Kind, v int64) bool {
	return v >= e.minOf(k) && v <= e.maxOf(k)
}

// literalFits reports whether the non-negative value u is representable in k.
func (e *Evaluator) literalFits(k types.Kind, u uint64) bool {
	if k.IsUnsigned() {
		return u <= e.umaxOf(k)
	}
	return u <= uint64(e.maxOf(k))
}

// promote applies the integer promotions. int is wider than short on every
// supported target, so everything below int promotes to int.
func promote(k types.Kind) types.Kind {
	if k == types.KindEnum || (k.IsInteger() && k.Rank() < types.KindInt.Rank()) {
		return types.KindInt
	}
	return k
}

// arithKind computes the usual arithmetic conversions of two operand kinds.
func (e *Evaluator) arithKind(a, b types.Kind) types.Kind {
	if a.IsFloat() || b.IsFloat() {
		return floatMax(a, b)
	}
	a, b = promote(a), promote(b)
	if a == b {
		return a
	}
	if a.IsUnsigned() == b.IsUnsigned() {
		if a.Rank() >= b.Rank() {
			return a
		}
		return b
	}
	u, s := a, b
	if !u.IsUnsigned() {
		u, s = b, a
	}
	switch {
	case u.Rank() >= s.Rank():
		return u
	case e.width(s) > e.width(u):
		return s
	default:
		return s.Unsigned()
	}
}

func floatMax(a, b types.Kind) types.Kind {
	rank := func(k types.Kind) int {
		switch k {
		case types.KindFloat:
			return 1
		case types.KindDouble:
			return 2
		case types.KindLongDouble:
			return 3
		}
		return 0
	}
	if rank(a) >= rank(b) {
		return a
	}
	return b
}

// convert changes the type of an integer operand with C conversion rules:
// truncation to the target width and sign extension for signed kinds.
func (e *Evaluator) convert(n num, to types.Kind) num {
	if to == types.KindEnum {
		to = types.KindInt
	}
	if to.IsFloat() {
		f := n.f
		if !n.isFloat() {
			if n.kind.IsUnsigned() {
				f = float64(n.bits)
			} else {
				f = float64(int64(n.bits))
			}
		}
		if to == types.KindFloat {
			f = float64(float32(f))
		}
		return num{kind: to, f: f}
	}
	return num{kind: to, bits: e.normalize(to, n.bits)}
}

// truncateFloat converts a floating operand to an integer kind, truncating
// toward zero. ok is false when the value is out of range.
func (e *Evaluator) truncateFloat(f float64, to types.Kind) (num, bool) {
	if to == types.KindEnum {
		to = types.KindInt
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return num{}, false
	}
	t := math.Trunc(f)
	w := e.width(to)
	if to.IsUnsigned() {
		if t < 0 || t >= math.Ldexp(1, int(w)) {
			return num{}, false
		}
		return num{kind: to, bits: uint64(t)}, true
	}
	if t < -math.Ldexp(1, int(w-1)) || t >= math.Ldexp(1, int(w-1)) {
		return num{}, false
	}
	return num{kind: to, bits: uint64(int64(t))}, true
}

// sizeKind is the kind of size_t on the target.
func (e *Evaluator) sizeKind() types.Kind {
	if e.width(types.KindUInt) == e.width(types.KindPointer) {
		return types.KindUInt
	}
	return types.KindULong
}

func addOverflows(a, b int64) (int64, bool) {
	r := a + b
	return r, (a >= 0) == (b >= 0) && (r >= 0) != (a >= 0)
}

func subOverflows(a, b int64) (int64, bool) {
	r := a - b
	return r, (a >= 0) != (b >= 0) && (r >= 0) != (a >= 0)
}

func mulOverflows(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	r := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return r, true
	}
	return r, r/b != a
}
