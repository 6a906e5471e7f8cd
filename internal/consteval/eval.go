package consteval

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"cabi/internal/layout"
	"cabi/internal/source"
	"cabi/internal/target"
	"cabi/internal/types"
)

// Names resolves the identifiers a constant expression may mention.
type Names interface {
	Typedef(name string) (types.TypeID, bool)
	Tag(kind types.Kind, tag string) (types.TypeID, bool)
	Enumerator(name string) (int64, bool)
}

// Evaluator folds constant expressions for one target. It shares the type
// table and layout cache of the engine it was built from.
type Evaluator struct {
	Target target.Descriptor
	Types  *types.Interner
	Layout *layout.LayoutEngine
	Names  Names // may be nil
}

func New(engine *layout.LayoutEngine, names Names) *Evaluator {
	return &Evaluator{
		Target: engine.Target,
		Types:  engine.Types,
		Layout: engine,
		Names:  names,
	}
}

// EvalString parses and folds src.
func (e *Evaluator) EvalString(src string) (Value, error) {
	x, err := ParseExpr(src, e.Names, source.Span{})
	if err != nil {
		return Value{}, err
	}
	return e.Eval(x)
}

// Eval folds x to an integer constant.
func (e *Evaluator) Eval(x Expr) (Value, error) {
	n, err := e.eval(x)
	if err != nil {
		return Value{}, err
	}
	if !n.kind.IsInteger() {
		return Value{}, errAt(ConstErrNotConstant, x, "floating constant is not an integer constant expression")
	}
	return n.value(), nil
}

// EvalEnum folds an enumerator initializer, which must be representable
// as int.
func (e *Evaluator) EvalEnum(x Expr) (int64, error) {
	v, err := e.Eval(x)
	if err != nil {
		return 0, err
	}
	if v.Unsigned() {
		if v.Bits > uint64(e.maxOf(types.KindInt)) {
			return 0, errAt(ConstErrOverflow, x, "enumerator value %s is not representable as int", v)
		}
		return int64(v.Bits), nil
	}
	if !e.fitsSigned(types.KindInt, v.Int64()) {
		return 0, errAt(ConstErrOverflow, x, "enumerator value %s is not representable as int", v)
	}
	return v.Int64(), nil
}

func (e *Evaluator) eval(x Expr) (num, error) {
	switch x := x.(type) {
	case *IntLit:
		return e.evalIntLit(x)
	case *FloatLit:
		f, kind, err := floatLiteral(x.Text)
		if err != nil {
			return num{}, errAt(ConstErrSyntax, x, "%v", err)
		}
		return num{kind: kind, f: f}, nil
	case *CharLit:
		v, err := charValue(x.Text)
		if err != nil {
			return num{}, errAt(ConstErrSyntax, x, "%v", err)
		}
		return num{kind: types.KindInt, bits: uint64(v)}, nil
	case *StringLit:
		return num{}, errAt(ConstErrNotConstant, x, "string literal in integer constant expression")
	case *Ident:
		if e.Names != nil {
			if v, ok := e.Names.Enumerator(x.Name); ok {
				return num{kind: types.KindInt, bits: e.normalize(types.KindInt, uint64(v))}, nil
			}
		}
		return num{}, errAt(ConstErrNotConstant, x, "%q is not a constant", x.Name)
	case *Unary:
		return e.evalUnary(x)
	case *Binary:
		return e.evalBinary(x)
	case *Cond:
		return e.evalCond(x)
	case *Cast:
		return e.evalCast(x)
	case *SizeofType:
		t, err := e.ResolveType(x.Of)
		if err != nil {
			return num{}, err
		}
		return e.sizeOf(t, x)
	case *SizeofExpr:
		t, err := e.typeOf(x.X)
		if err != nil {
			return num{}, err
		}
		return e.sizeOf(t, x)
	}
	return num{}, errAt(ConstErrSyntax, x, "unsupported expression")
}

func (e *Evaluator) evalIntLit(x *IntLit) (num, error) {
	lit, err := splitIntLiteral(x.Text)
	if err != nil {
		kind := ConstErrSyntax
		if errors.Is(err, errLiteralTooLarge) {
			kind = ConstErrOverflow
		}
		return num{}, errAt(kind, x, "%v", err)
	}
	for _, k := range lit.candidates() {
		if e.literalFits(k, lit.value) {
			return num{kind: k, bits: e.normalize(k, lit.value)}, nil
		}
	}
	return num{}, errAt(ConstErrOverflow, x, "integer constant %s is too large for its type", x.Text)
}

func floatLiteral(text string) (float64, types.Kind, error) {
	kind := types.KindDouble
	switch {
	case strings.HasSuffix(text, "f") || strings.HasSuffix(text, "F"):
		kind, text = types.KindFloat, text[:len(text)-1]
	case strings.HasSuffix(text, "l") || strings.HasSuffix(text, "L"):
		kind, text = types.KindLongDouble, text[:len(text)-1]
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, kind, fmt.Errorf("malformed floating constant %q", text)
	}
	if kind == types.KindFloat {
		f = float64(float32(f))
	}
	return f, kind, nil
}

func (e *Evaluator) integer(x Expr) (num, error) {
	n, err := e.eval(x)
	if err != nil {
		return num{}, err
	}
	if n.isFloat() {
		return num{}, errAt(ConstErrNotConstant, x, "floating operand in integer constant expression")
	}
	return n, nil
}

func (e *Evaluator) evalUnary(x *Unary) (num, error) {
	switch x.Op {
	case "&", "*":
		return num{}, errAt(ConstErrNotConstant, x, "operator %s in integer constant expression", x.Op)
	case "+", "-":
		// the operand of a cast may be a negated floating constant
		n, err := e.eval(x.X)
		if err != nil {
			return num{}, err
		}
		if n.isFloat() {
			if x.Op == "-" {
				n.f = -n.f
			}
			return n, nil
		}
		n = e.convert(n, promote(n.kind))
		if x.Op == "+" {
			return n, nil
		}
		if n.kind.IsUnsigned() {
			return num{kind: n.kind, bits: e.normalize(n.kind, -n.bits)}, nil
		}
		if int64(n.bits) == e.minOf(n.kind) {
			return num{}, errAt(ConstErrOverflow, x, "integer overflow in -%s", n.value())
		}
		return num{kind: n.kind, bits: e.normalize(n.kind, uint64(-int64(n.bits)))}, nil
	case "~":
		n, err := e.integer(x.X)
		if err != nil {
			return num{}, err
		}
		n = e.convert(n, promote(n.kind))
		return num{kind: n.kind, bits: e.normalize(n.kind, ^n.bits)}, nil
	case "!":
		n, err := e.eval(x.X)
		if err != nil {
			return num{}, err
		}
		if (n.isFloat() && n.f == 0) || (!n.isFloat() && n.bits == 0) {
			return e.boolean(true), nil
		}
		return e.boolean(false), nil
	}
	return num{}, errAt(ConstErrSyntax, x, "unknown operator %s", x.Op)
}

func (e *Evaluator) boolean(b bool) num {
	if b {
		return num{kind: types.KindInt, bits: 1}
	}
	return num{kind: types.KindInt}
}

func (e *Evaluator) evalBinary(x *Binary) (num, error) {
	switch x.Op {
	case "&&", "||":
		l, err := e.integer(x.X)
		if err != nil {
			return num{}, err
		}
		decided := (x.Op == "&&" && l.bits == 0) || (x.Op == "||" && l.bits != 0)
		if decided {
			// the right operand is not evaluated but must still be constant
			if _, err := e.typeOf(x.Y); err != nil {
				return num{}, err
			}
			return e.boolean(x.Op == "||"), nil
		}
		r, err := e.integer(x.Y)
		if err != nil {
			return num{}, err
		}
		return e.boolean(r.bits != 0), nil
	case "<<", ">>":
		return e.evalShift(x)
	}

	l, err := e.integer(x.X)
	if err != nil {
		return num{}, err
	}
	r, err := e.integer(x.Y)
	if err != nil {
		return num{}, err
	}
	k := e.arithKind(l.kind, r.kind)
	l, r = e.convert(l, k), e.convert(r, k)
	unsigned := k.IsUnsigned()
	a, b := int64(l.bits), int64(r.bits)

	switch x.Op {
	case "==":
		return e.boolean(l.bits == r.bits), nil
	case "!=":
		return e.boolean(l.bits != r.bits), nil
	case "<":
		return e.boolean(less(l.bits, r.bits, unsigned)), nil
	case ">":
		return e.boolean(less(r.bits, l.bits, unsigned)), nil
	case "<=":
		return e.boolean(!less(r.bits, l.bits, unsigned)), nil
	case ">=":
		return e.boolean(!less(l.bits, r.bits, unsigned)), nil
	case "&":
		return num{kind: k, bits: l.bits & r.bits}, nil
	case "|":
		return num{kind: k, bits: l.bits | r.bits}, nil
	case "^":
		return num{kind: k, bits: l.bits ^ r.bits}, nil
	case "/", "%":
		if r.bits == 0 {
			return num{}, errAt(ConstErrDivByZero, x, "division by zero in constant expression")
		}
		if unsigned {
			if x.Op == "/" {
				return num{kind: k, bits: l.bits / r.bits}, nil
			}
			return num{kind: k, bits: l.bits % r.bits}, nil
		}
		if x.Op == "%" {
			return num{kind: k, bits: uint64(a % b)}, nil
		}
		if a == e.minOf(k) && b == -1 {
			return num{}, errAt(ConstErrOverflow, x, "integer overflow in %s / -1", l.value())
		}
		return num{kind: k, bits: uint64(a / b)}, nil
	case "+", "-", "*":
		if unsigned {
			var u uint64
			switch x.Op {
			case "+":
				u = l.bits + r.bits
			case "-":
				u = l.bits - r.bits
			default:
				u = l.bits * r.bits
			}
			return num{kind: k, bits: e.normalize(k, u)}, nil
		}
		var s int64
		var overflow bool
		switch x.Op {
		case "+":
			s, overflow = addOverflows(a, b)
		case "-":
			s, overflow = subOverflows(a, b)
		default:
			s, overflow = mulOverflows(a, b)
		}
		if overflow || !e.fitsSigned(k, s) {
			return num{}, errAt(ConstErrOverflow, x, "integer overflow in %s %s %s", l.value(), x.Op, r.value())
		}
		return num{kind: k, bits: uint64(s)}, nil
	}
	return num{}, errAt(ConstErrSyntax, x, "unknown operator %s", x.Op)
}

func less(a, b uint64, unsigned bool) bool {
	if unsigned {
		return a < b
	}
	return int64(a) < int64(b)
}

func (e *Evaluator) evalShift(x *Binary) (num, error) {
	l, err := e.integer(x.X)
	if err != nil {
		return num{}, err
	}
	r, err := e.integer(x.Y)
	if err != nil {
		return num{}, err
	}
	l = e.convert(l, promote(l.kind))
	r = e.convert(r, promote(r.kind))
	w := uint64(e.width(l.kind))
	if !r.kind.IsUnsigned() && int64(r.bits) < 0 {
		return num{}, errAt(ConstErrOverflow, x, "negative shift count %s", r.value())
	}
	if r.bits >= w {
		return num{}, errAt(ConstErrOverflow, x, "shift count %s >= width of %s", r.value(), l.kind)
	}
	c := r.bits
	if x.Op == ">>" {
		if l.kind.IsUnsigned() {
			return num{kind: l.kind, bits: l.bits >> c}, nil
		}
		return num{kind: l.kind, bits: uint64(int64(l.bits) >> c)}, nil
	}
	if l.kind.IsUnsigned() {
		return num{kind: l.kind, bits: e.normalize(l.kind, l.bits<<c)}, nil
	}
	a := int64(l.bits)
	if a < 0 || a > e.maxOf(l.kind)>>c {
		return num{}, errAt(ConstErrOverflow, x, "integer overflow in %s << %s", l.value(), r.value())
	}
	return num{kind: l.kind, bits: uint64(a << c)}, nil
}

func (e *Evaluator) evalCond(x *Cond) (num, error) {
	c, err := e.integer(x.C)
	if err != nil {
		return num{}, err
	}
	tThen, err := e.typeOf(x.Then)
	if err != nil {
		return num{}, err
	}
	tElse, err := e.typeOf(x.Else)
	if err != nil {
		return num{}, err
	}
	kThen, kElse := e.Types.KindOf(tThen), e.Types.KindOf(tElse)
	if !kThen.IsArithmetic() || !kElse.IsArithmetic() {
		return num{}, errAt(ConstErrNotConstant, x, "conditional operands are not arithmetic")
	}
	k := e.arithKind(kThen, kElse)
	chosen := x.Else
	if c.bits != 0 {
		chosen = x.Then
	}
	n, err := e.eval(chosen)
	if err != nil {
		return num{}, err
	}
	if n.isFloat() && !k.IsFloat() {
		return num{}, errAt(ConstErrNotConstant, chosen, "floating operand in integer constant expression")
	}
	return e.convert(n, k), nil
}

func (e *Evaluator) evalCast(x *Cast) (num, error) {
	t, err := e.ResolveType(x.To)
	if err != nil {
		return num{}, err
	}
	k := e.Types.KindOf(t)
	if !k.IsArithmetic() {
		return num{}, errAt(ConstErrNotConstant, x, "cast to %s in integer constant expression", e.Types.TypeString(t))
	}
	n, err := e.eval(x.X)
	if err != nil {
		return num{}, err
	}
	if n.isFloat() && k.IsInteger() {
		out, ok := e.truncateFloat(n.f, k)
		if !ok {
			return num{}, errAt(ConstErrOverflow, x, "floating constant out of range of %s", e.Types.TypeString(t))
		}
		return e.convert(out, k), nil
	}
	return e.convert(n, k), nil
}

func (e *Evaluator) sizeOf(t types.TypeID, at Node) (num, error) {
	if e.Types.KindOf(t) == types.KindFunc {
		return num{}, errAt(ConstErrNotConstant, at, "sizeof applied to function type %s", e.Types.TypeString(t))
	}
	size, err := e.Layout.SizeOf(t)
	if err != nil {
		return num{}, fmt.Errorf("sizeof(%s): %w", e.Types.TypeString(t), err)
	}
	k := e.sizeKind()
	if uint64(size) > e.umaxOf(k) {
		return num{}, errAt(ConstErrOverflow, at, "size of %s does not fit size_t", e.Types.TypeString(t))
	}
	return num{kind: k, bits: uint64(size)}, nil
}

// typeOf computes the static type of x without folding it. Only
// identifiers are checked for constness.
func (e *Evaluator) typeOf(x Expr) (types.TypeID, error) {
	basic := e.Types.Basic
	switch x := x.(type) {
	case *IntLit:
		n, err := e.evalIntLit(x)
		if err != nil {
			return 0, err
		}
		return basic(n.kind), nil
	case *FloatLit:
		_, kind, err := floatLiteral(x.Text)
		if err != nil {
			return 0, errAt(ConstErrSyntax, x, "%v", err)
		}
		return basic(kind), nil
	case *CharLit:
		return basic(types.KindInt), nil
	case *StringLit:
		b, err := decodeQuoted(x.Text)
		if err != nil {
			return 0, errAt(ConstErrSyntax, x, "%v", err)
		}
		return e.Types.ArrayOf(basic(types.KindChar), int64(len(b))+1), nil
	case *Ident:
		if e.Names != nil {
			if _, ok := e.Names.Enumerator(x.Name); ok {
				return basic(types.KindInt), nil
			}
		}
		return 0, errAt(ConstErrNotConstant, x, "%q is not a constant", x.Name)
	case *Unary:
		t, err := e.typeOf(x.X)
		if err != nil {
			return 0, err
		}
		switch x.Op {
		case "!":
			return basic(types.KindInt), nil
		case "&":
			return e.Types.PointerTo(t), nil
		case "*":
			tt := e.Types.MustLookup(t)
			if tt.Kind != types.KindPointer && tt.Kind != types.KindArray {
				return 0, errAt(ConstErrNotConstant, x, "indirection of non-pointer type %s", e.Types.TypeString(t))
			}
			return tt.Elem, nil
		}
		return basic(promote(e.Types.KindOf(t))), nil
	case *Binary:
		return e.binaryType(x)
	case *Cond:
		tThen, err := e.typeOf(x.Then)
		if err != nil {
			return 0, err
		}
		tElse, err := e.typeOf(x.Else)
		if err != nil {
			return 0, err
		}
		kThen, kElse := e.Types.KindOf(tThen), e.Types.KindOf(tElse)
		if kThen.IsArithmetic() && kElse.IsArithmetic() {
			return basic(e.arithKind(kThen, kElse)), nil
		}
		return e.decay(tThen), nil
	case *Cast:
		return e.ResolveType(x.To)
	case *SizeofType, *SizeofExpr:
		return basic(e.sizeKind()), nil
	}
	return 0, errAt(ConstErrSyntax, x, "unsupported expression")
}

func (e *Evaluator) binaryType(x *Binary) (types.TypeID, error) {
	basic := e.Types.Basic
	tx, err := e.typeOf(x.X)
	if err != nil {
		return 0, err
	}
	ty, err := e.typeOf(x.Y)
	if err != nil {
		return 0, err
	}
	kx, ky := e.Types.KindOf(tx), e.Types.KindOf(ty)
	switch x.Op {
	case "&&", "||", "==", "!=", "<", ">", "<=", ">=":
		return basic(types.KindInt), nil
	case "<<", ">>":
		return basic(promote(kx)), nil
	}
	px := kx == types.KindPointer || kx == types.KindArray
	py := ky == types.KindPointer || ky == types.KindArray
	switch {
	case px && py && x.Op == "-":
		// ptrdiff_t has the width of a pointer
		if e.width(types.KindInt) == e.width(types.KindPointer) {
			return basic(types.KindInt), nil
		}
		return basic(types.KindLong), nil
	case px && (x.Op == "+" || x.Op == "-"):
		return e.decay(tx), nil
	case py && x.Op == "+":
		return e.decay(ty), nil
	case !kx.IsArithmetic() || !ky.IsArithmetic():
		return 0, errAt(ConstErrNotConstant, x, "invalid operands to %s", x.Op)
	}
	return basic(e.arithKind(kx, ky)), nil
}

func (e *Evaluator) decay(t types.TypeID) types.TypeID {
	if tt := e.Types.MustLookup(t); tt.Kind == types.KindArray {
		return e.Types.PointerTo(tt.Elem)
	}
	return t
}

// ResolveType turns a parsed type name into a TypeID. Array dimensions are
// folded here; their validity is checked by layout.
func (e *Evaluator) ResolveType(tn *TypeName) (types.TypeID, error) {
	var t types.TypeID
	switch {
	case tn.TagKind != "":
		kind := tagKinds[tn.TagKind]
		id, ok := e.lookupTag(kind, tn.Tag)
		if !ok {
			return 0, errAt(ConstErrUnknownType, tn, "unknown type %s %s", tn.TagKind, tn.Tag)
		}
		t = id
	case tn.Typedef != "":
		var ok bool
		if e.Names != nil {
			t, ok = e.Names.Typedef(tn.Typedef)
		}
		if !ok {
			return 0, errAt(ConstErrUnknownType, tn, "unknown type name %q", tn.Typedef)
		}
	default:
		k, ok := basicKind(tn.Specs)
		if !ok {
			return 0, errAt(ConstErrSyntax, tn, "invalid type specifier %q", strings.Join(tn.Specs, " "))
		}
		t = e.Types.Basic(k)
	}
	for range tn.Pointers {
		t = e.Types.PointerTo(t)
	}
	for i := len(tn.Dims) - 1; i >= 0; i-- {
		d := tn.Dims[i]
		if d == nil {
			if i != 0 {
				return 0, errAt(ConstErrSyntax, tn, "array type has incomplete element type")
			}
			t = e.Types.Intern(types.MakeUnsizedArray(t))
			continue
		}
		n, err := e.Eval(d)
		if err != nil {
			return 0, err
		}
		if n.Unsigned() && n.Bits > math.MaxInt64 {
			return 0, errAt(ConstErrOverflow, d, "array dimension %s is too large", n)
		}
		t = e.Types.ArrayOf(t, n.Int64())
	}
	return t, nil
}

var tagKinds = map[string]types.Kind{
	"struct": types.KindStruct,
	"union":  types.KindUnion,
	"enum":   types.KindEnum,
}

func (e *Evaluator) lookupTag(kind types.Kind, tag string) (types.TypeID, bool) {
	if e.Names == nil {
		return 0, false
	}
	return e.Names.Tag(kind, tag)
}

// basicKind maps a multiset of type specifier keywords onto a kind.
func basicKind(specs []string) (types.Kind, bool) {
	var signed, unsigned, char, short, ints, longs, float, double, void int
	for _, s := range specs {
		switch s {
		case "signed":
			signed++
		case "unsigned":
			unsigned++
		case "char":
			char++
		case "short":
			short++
		case "int":
			ints++
		case "long":
			longs++
		case "float":
			float++
		case "double":
			double++
		case "void":
			void++
		case "const", "volatile":
		default:
			return types.KindInvalid, false
		}
	}
	if signed+unsigned > 1 || char > 1 || short > 1 || ints > 1 || longs > 2 || float > 1 || double > 1 || void > 1 {
		return types.KindInvalid, false
	}
	sign := signed + unsigned
	switch {
	case void == 1:
		if sign+char+short+ints+longs+float+double > 0 {
			return types.KindInvalid, false
		}
		return types.KindVoid, true
	case float == 1:
		if sign+char+short+ints+longs+double > 0 {
			return types.KindInvalid, false
		}
		return types.KindFloat, true
	case double == 1:
		if sign+char+short+ints > 0 || longs > 1 {
			return types.KindInvalid, false
		}
		if longs == 1 {
			return types.KindLongDouble, true
		}
		return types.KindDouble, true
	case char == 1:
		if short+ints+longs > 0 {
			return types.KindInvalid, false
		}
		switch {
		case signed == 1:
			return types.KindSChar, true
		case unsigned == 1:
			return types.KindUChar, true
		}
		return types.KindChar, true
	case short == 1:
		if longs > 0 {
			return types.KindInvalid, false
		}
		if unsigned == 1 {
			return types.KindUShort, true
		}
		return types.KindShort, true
	}
	if sign+ints+longs == 0 {
		return types.KindInvalid, false
	}
	var k types.Kind
	switch longs {
	case 0:
		k = types.KindInt
	case 1:
		k = types.KindLong
	default:
		k = types.KindLongLong
	}
	if unsigned == 1 {
		k = k.Unsigned()
	}
	return k, true
}
