package consteval

import (
	"errors"
	"testing"

	"cabi/internal/layout"
	"cabi/internal/source"
	"cabi/internal/target"
	"cabi/internal/types"
)

type testNames struct {
	typedefs    map[string]types.TypeID
	tags        map[string]types.TypeID
	enumerators map[string]int64
}

func (n *testNames) Typedef(name string) (types.TypeID, bool) {
	id, ok := n.typedefs[name]
	return id, ok
}

func (n *testNames) Tag(kind types.Kind, tag string) (types.TypeID, bool) {
	id, ok := n.tags[kind.String()+" "+tag]
	return id, ok
}

func (n *testNames) Enumerator(name string) (int64, bool) {
	v, ok := n.enumerators[name]
	return v, ok
}

// fixture returns evaluators for both targets sharing one type table with
// struct S { char c; int i; }, an incomplete struct Fwd, typedef S_t and
// enumerator RED = 5.
func fixture(t *testing.T) (*Evaluator, *Evaluator) {
	t.Helper()
	in := types.NewInterner()
	b := in.Builtins()
	s := in.RegisterRecord(types.KindStruct, "S", source.Span{})
	in.SetRecordFields(s, []types.Field{{Name: "c", Type: b.Char}, {Name: "i", Type: b.Int}})
	fwd := in.RegisterRecord(types.KindStruct, "Fwd", source.Span{})
	names := &testNames{
		typedefs:    map[string]types.TypeID{"S_t": s, "ulong": b.ULong},
		tags:        map[string]types.TypeID{"struct S": s, "struct Fwd": fwd},
		enumerators: map[string]int64{"RED": 5},
	}
	e32 := New(layout.New(target.I386(), in), names)
	e64 := New(layout.New(target.X86_64(), in), names)
	return e32, e64
}

func TestEvalTargetDependent(t *testing.T) {
	e32, e64 := fixture(t)
	cases := []struct {
		src    string
		want32 string
		kind32 types.Kind
		want64 string
		kind64 types.Kind
	}{
		{"~(unsigned long)1 % 7", "2", types.KindULong, "0", types.KindULong},
		{"3000000000", "3000000000", types.KindULong, "3000000000", types.KindLong},
		{"2147483648", "2147483648", types.KindULong, "2147483648", types.KindLong},
		{"5000000000", "5000000000", types.KindLongLong, "5000000000", types.KindLong},
		{"0xFFFFFFFF", "4294967295", types.KindUInt, "4294967295", types.KindUInt},
		{"-1L < 1U", "0", types.KindInt, "1", types.KindInt},
		{"sizeof(long)", "4", types.KindUInt, "8", types.KindULong},
		{"sizeof(int *)", "4", types.KindUInt, "8", types.KindULong},
		{"sizeof(long double)", "12", types.KindUInt, "16", types.KindULong},
		{"sizeof(ulong) * 8 - 1", "31", types.KindUInt, "63", types.KindULong},
		{"(long)-1 == (unsigned)-1", "1", types.KindInt, "0", types.KindInt},
	}
	for _, tc := range cases {
		v32, err := e32.EvalString(tc.src)
		if err != nil {
			t.Fatalf("i386 %q: %v", tc.src, err)
		}
		v64, err := e64.EvalString(tc.src)
		if err != nil {
			t.Fatalf("x86_64 %q: %v", tc.src, err)
		}
		if v32.String() != tc.want32 || v32.Kind != tc.kind32 {
			t.Errorf("i386 %q = %s (%s), want %s (%s)", tc.src, v32, v32.Kind, tc.want32, tc.kind32)
		}
		if v64.String() != tc.want64 || v64.Kind != tc.kind64 {
			t.Errorf("x86_64 %q = %s (%s), want %s (%s)", tc.src, v64, v64.Kind, tc.want64, tc.kind64)
		}
	}
}

func TestEvalPortable(t *testing.T) {
	e32, e64 := fixture(t)
	cases := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"-7 / 2", "-3"},
		{"-7 % 2", "-1"},
		{"1u << 31", "2147483648"},
		{"-8 >> 1", "-4"},
		{"-1 < 0u", "0"},
		{"~0u", "4294967295"},
		{"!5", "0"},
		{"!0", "1"},
		{"017", "15"},
		{"0x1F & ~3", "28"},
		{"6 ^ 3 | 8", "13"},
		{"RED + 1", "6"},
		{"1 ? 2 : 3u", "2"},
		{"0 ? 1 : -1", "-1"},
		{"0 && 1 / 0", "0"},
		{"1 || 1 / 0", "1"},
		{"'\\n'", "10"},
		{"'\\xff'", "-1"},
		{"'\\377'", "-1"},
		{"'\\0'", "0"},
		{"'ab'", "24930"},
		{"(unsigned char)300", "44"},
		{"(signed char)200", "-56"},
		{"(short)-1 == -1", "1"},
		{"(int)3.7", "3"},
		{"(int)-2.5", "-2"},
		{"(int)(double)7", "7"},
		{"-2147483647 - 1", "-2147483648"},
		{"sizeof(struct S)", "8"},
		{"sizeof(S_t[3])", "24"},
		{"sizeof(char [3][5])", "15"},
		{"sizeof \"abc\"", "4"},
		{"sizeof \"ab\" \"cd\"", "5"},
		{"sizeof 'a'", "4"},
		{"sizeof 1.0", "8"},
		{"sizeof 1.0f", "4"},
		{"sizeof *\"abc\"", "1"},
	}
	for _, e := range []*Evaluator{e32, e64} {
		for _, tc := range cases {
			v, err := e.EvalString(tc.src)
			if err != nil {
				t.Fatalf("%s %q: %v", e.Target, tc.src, err)
			}
			if v.String() != tc.want {
				t.Errorf("%s %q = %s, want %s", e.Target, tc.src, v, tc.want)
			}
		}
	}
}

func TestEvalLiteralTypes(t *testing.T) {
	_, e64 := fixture(t)
	cases := []struct {
		src  string
		want types.Kind
	}{
		{"1", types.KindInt},
		{"1u", types.KindUInt},
		{"1U", types.KindUInt},
		{"1l", types.KindLong},
		{"1lu", types.KindULong},
		{"1UL", types.KindULong},
		{"1ll", types.KindLongLong},
		{"1ULL", types.KindULongLong},
		{"0x80000000", types.KindUInt},
		{"0x8000000000000000", types.KindULong},
		{"'a'", types.KindInt},
		{"(char)1", types.KindChar},
		{"(char)1 + (char)1", types.KindInt},
		{"1u + 1L", types.KindLong},
	}
	for _, tc := range cases {
		v, err := e64.EvalString(tc.src)
		if err != nil {
			t.Fatalf("%q: %v", tc.src, err)
		}
		if v.Kind != tc.want {
			t.Errorf("%q has type %s, want %s", tc.src, v.Kind, tc.want)
		}
	}
}

func TestEvalErrors(t *testing.T) {
	e32, e64 := fixture(t)
	cases := []struct {
		src  string
		want ConstErrKind
	}{
		{"2147483647 + 1", ConstErrOverflow},
		{"-2147483647 - 2", ConstErrOverflow},
		{"65536 * 65536", ConstErrOverflow},
		{"(-2147483647 - 1) / -1", ConstErrOverflow},
		{"-(-2147483647 - 1)", ConstErrOverflow},
		{"9223372036854775807 + 1", ConstErrOverflow},
		{"18446744073709551616", ConstErrOverflow},
		{"1 << 31", ConstErrOverflow},
		{"1 << 32", ConstErrOverflow},
		{"1 << -1", ConstErrOverflow},
		{"-1 << 1", ConstErrOverflow},
		{"(int)1e10", ConstErrOverflow},
		{"1 / 0", ConstErrDivByZero},
		{"1 % (2 - 2)", ConstErrDivByZero},
		{"x", ConstErrNotConstant},
		{"1 || x", ConstErrNotConstant},
		{"1.5", ConstErrNotConstant},
		{"1.5 + 1", ConstErrNotConstant},
		{"\"abc\"", ConstErrNotConstant},
		{"(char *)0", ConstErrNotConstant},
		{"&RED", ConstErrNotConstant},
		{"1 +", ConstErrSyntax},
		{"(1", ConstErrSyntax},
		{"1 2", ConstErrSyntax},
		{"08", ConstErrSyntax},
		{"1uu", ConstErrSyntax},
		{"''", ConstErrSyntax},
		{"'a", ConstErrSyntax},
		{"1 @ 2", ConstErrSyntax},
		{"sizeof(short long)", ConstErrSyntax},
		{"sizeof(struct Nope)", ConstErrUnknownType},
	}
	for _, e := range []*Evaluator{e32, e64} {
		for _, tc := range cases {
			_, err := e.EvalString(tc.src)
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("%s %q: expected *Error, got %v", e.Target, tc.src, err)
			}
			if cerr.Kind != tc.want {
				t.Errorf("%s %q: kind %s, want %s (%v)", e.Target, tc.src, cerr.Kind, tc.want, err)
			}
		}
	}
}

func TestEvalUnsignedWraps(t *testing.T) {
	e32, e64 := fixture(t)
	cases := []struct {
		src            string
		want32, want64 string
	}{
		{"0u - 1", "4294967295", "4294967295"},
		{"0ul - 1", "4294967295", "18446744073709551615"},
		{"4294967295u * 2u", "4294967294", "4294967294"},
		{"-1ul / 2", "2147483647", "9223372036854775807"},
		{"-(unsigned char)1", "-1", "-1"},
	}
	for _, tc := range cases {
		v32, err := e32.EvalString(tc.src)
		if err != nil {
			t.Fatalf("i386 %q: %v", tc.src, err)
		}
		v64, err := e64.EvalString(tc.src)
		if err != nil {
			t.Fatalf("x86_64 %q: %v", tc.src, err)
		}
		if v32.String() != tc.want32 {
			t.Errorf("i386 %q = %s, want %s", tc.src, v32, tc.want32)
		}
		if v64.String() != tc.want64 {
			t.Errorf("x86_64 %q = %s, want %s", tc.src, v64, tc.want64)
		}
	}
}

func TestSizeofIncompleteIsLayoutError(t *testing.T) {
	_, e64 := fixture(t)
	_, err := e64.EvalString("sizeof(struct Fwd)")
	var lerr *layout.LayoutError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected layout error, got %v", err)
	}
	if lerr.Kind != layout.LayoutErrIncompleteType {
		t.Fatalf("kind = %s, want IncompleteType", lerr.Kind)
	}
	if _, err := e64.EvalString("sizeof(void)"); err == nil {
		t.Fatalf("sizeof(void) folded")
	}
}

func TestEvalEnum(t *testing.T) {
	e32, e64 := fixture(t)
	for _, e := range []*Evaluator{e32, e64} {
		x, err := ParseExpr("~(unsigned long)1 % 7", e.Names, source.Span{})
		if err != nil {
			t.Fatal(err)
		}
		v, err := e.EvalEnum(x)
		if err != nil {
			t.Fatalf("%s: %v", e.Target, err)
		}
		want := int64(2)
		if e.Target.Is64() {
			want = 0
		}
		if v != want {
			t.Errorf("%s: enum value %d, want %d", e.Target, v, want)
		}
	}

	for _, src := range []string{"0x80000000", "2147483648u", "(unsigned long)-1"} {
		x, err := ParseExpr(src, nil, source.Span{})
		if err != nil {
			t.Fatal(err)
		}
		_, err = e64.EvalEnum(x)
		var cerr *Error
		if !errors.As(err, &cerr) || cerr.Kind != ConstErrOverflow {
			t.Errorf("%q: expected overflow, got %v", src, err)
		}
	}

	x, _ := ParseExpr("-1", nil, source.Span{})
	if v, err := e32.EvalEnum(x); err != nil || v != -1 {
		t.Errorf("EvalEnum(-1) = %d, %v", v, err)
	}
}

func TestErrorSpans(t *testing.T) {
	_, e64 := fixture(t)
	base := source.Span{File: 3, Start: 100, End: 110}
	x, err := ParseExpr("1 + 1 / 0", nil, base)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e64.Eval(x)
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if cerr.Pos != 4 || cerr.Span.File != 3 || cerr.Span.Start != 104 || cerr.Span.End != 109 {
		t.Errorf("error at pos %d span %+v", cerr.Pos, cerr.Span)
	}

	_, err = ParseExpr("1 + )", nil, base)
	if !errors.As(err, &cerr) || cerr.Kind != ConstErrSyntax || cerr.Span.Start != 104 {
		t.Errorf("syntax error = %+v", err)
	}
}

func TestParseTypeName(t *testing.T) {
	e32, _ := fixture(t)
	in := e32.Types
	b := in.Builtins()
	cases := []struct {
		src  string
		want types.TypeID
	}{
		{"unsigned long int", b.ULong},
		{"long unsigned", b.ULong},
		{"long long unsigned int", b.ULongLong},
		{"signed", b.Int},
		{"unsigned", b.UInt},
		{"short int", b.Short},
		{"signed char", b.SChar},
		{"const char * const *", in.PointerTo(in.PointerTo(b.Char))},
		{"long double", b.LongDouble},
		{"char [2][4]", in.ArrayOf(in.ArrayOf(b.Char, 4), 2)},
		{"int *[3]", in.ArrayOf(in.PointerTo(b.Int), 3)},
		{"int [RED]", in.ArrayOf(b.Int, 5)},
		{"int []", in.Intern(types.MakeUnsizedArray(b.Int))},
		{"S_t *", in.PointerTo(e32.Names.(*testNames).typedefs["S_t"])},
	}
	for _, tc := range cases {
		tn, err := ParseTypeName(tc.src, e32.Names, source.Span{})
		if err != nil {
			t.Fatalf("%q: %v", tc.src, err)
		}
		got, err := e32.ResolveType(tn)
		if err != nil {
			t.Fatalf("%q: %v", tc.src, err)
		}
		if got != tc.want {
			t.Errorf("%q = %s, want %s", tc.src, in.TypeString(got), in.TypeString(tc.want))
		}
	}

	for _, src := range []string{"", "int int", "short long", "unsigned float", "struct", "int [3][]", "int x"} {
		tn, err := ParseTypeName(src, e32.Names, source.Span{})
		if err == nil {
			_, err = e32.ResolveType(tn)
		}
		if err == nil {
			t.Errorf("%q: expected error", src)
		}
	}
}

func TestTypeNameString(t *testing.T) {
	tn, err := ParseTypeName("unsigned   long * [2 + 1]", nil, source.Span{})
	if err != nil {
		t.Fatal(err)
	}
	if got := tn.String(); got != "unsigned long *[(2 + 1)]" {
		t.Errorf("String() = %q", got)
	}
}
