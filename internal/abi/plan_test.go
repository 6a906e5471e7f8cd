package abi

import (
	"errors"
	"testing"

	"cabi/internal/layout"
	"cabi/internal/target"
	"cabi/internal/types"
)

func (fx *fixture) planner(desc target.Descriptor) *Planner {
	return NewPlanner(fx.classifier(desc))
}

func locs(pl Placement) string {
	s := ""
	for i, l := range pl.Locs {
		if i > 0 {
			s += ","
		}
		s += l.String()
	}
	return s
}

func checkLocs(t *testing.T, plan CallPlan, want []string) {
	t.Helper()
	if len(plan.Args) != len(want) {
		t.Fatalf("got %d placements, want %d", len(plan.Args), len(want))
	}
	for i, w := range want {
		if got := locs(plan.Args[i]); got != w {
			t.Errorf("arg %d: %s, want %s", i+1, got, w)
		}
	}
}

func TestPlanCallX86_64(t *testing.T) {
	fx := newFixture()
	b := fx.b
	pair := fx.record(types.KindStruct, "pair", "x", b.Long, "y", b.Long)
	big := fx.record(types.KindStruct, "big", "x", b.Long, "y", b.Long, "z", b.Long)
	p := fx.planner(target.X86_64())

	plan, err := p.PlanCall(Signature{Params: []types.TypeID{b.Int, b.Double, pair, big, b.Float}, Result: b.Void}, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkLocs(t, plan, []string{"%rdi", "%xmm0", "%rsi,%rdx", "stack+0", "%xmm1"})
	if plan.StackSize != 24 || plan.IntRegsUsed != 3 || plan.FloatRegsUsed != 2 {
		t.Fatalf("stack=%d int=%d float=%d", plan.StackSize, plan.IntRegsUsed, plan.FloatRegsUsed)
	}
	if plan.Return.Kind != ReturnVoid || plan.Hidden != nil {
		t.Fatalf("unexpected return plan %+v", plan.Return)
	}
}

func TestPlanCallPartialFitSpillsWholeAggregate(t *testing.T) {
	fx := newFixture()
	b := fx.b
	pair := fx.record(types.KindStruct, "pair", "x", b.Long, "y", b.Long)
	p := fx.planner(target.X86_64())

	params := []types.TypeID{b.Int, b.Int, b.Int, b.Int, b.Int, pair, b.Long, b.Long}
	plan, err := p.PlanCall(Signature{Params: params, Result: b.Int}, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkLocs(t, plan, []string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "stack+0", "%r9", "stack+16"})
}

func TestPlanCallManyDoubles(t *testing.T) {
	fx := newFixture()
	params := make([]types.TypeID, 10)
	for i := range params {
		params[i] = fx.b.Double
	}
	plan, err := fx.planner(target.X86_64()).PlanCall(Signature{Params: params, Result: fx.b.Double}, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkLocs(t, plan, []string{"%xmm0", "%xmm1", "%xmm2", "%xmm3", "%xmm4", "%xmm5", "%xmm6", "%xmm7", "stack+0", "stack+8"})
	if len(plan.Return.Locs) != 1 || plan.Return.Locs[0].Reg != "xmm0" {
		t.Fatalf("double return = %+v", plan.Return.Locs)
	}
}

func TestPlanCallI386(t *testing.T) {
	fx := newFixture()
	b := fx.b
	p32 := fx.record(types.KindStruct, "P", "a", b.Int, "b", b.Int)
	p := fx.planner(target.I386())

	plan, err := p.PlanCall(Signature{Params: []types.TypeID{b.Char, b.Double, p32}, Result: b.Int}, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkLocs(t, plan, []string{"stack+0", "stack+4", "stack+12"})
	if plan.StackSize != 20 {
		t.Fatalf("stack size = %d, want 20", plan.StackSize)
	}

	plan, err = p.PlanCall(Signature{Params: []types.TypeID{b.Int}, Result: p32}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Hidden == nil || locs(*plan.Hidden) != "stack+0" {
		t.Fatalf("hidden pointer = %+v", plan.Hidden)
	}
	checkLocs(t, plan, []string{"stack+4"})
	if plan.Return.Kind != ReturnByHiddenPointer || plan.Return.Locs[0].Reg != "eax" {
		t.Fatalf("return = %+v", plan.Return)
	}
}

func TestPlanHiddenPointerConsumesFirstIntegerRegister(t *testing.T) {
	fx := newFixture()
	b := fx.b
	big := fx.record(types.KindStruct, "big", "x", b.Long, "y", b.Long, "z", b.Long)
	plan, err := fx.planner(target.X86_64()).PlanCall(Signature{Params: []types.TypeID{b.Int, b.Int}, Result: big}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Hidden == nil || locs(*plan.Hidden) != "%rdi" || plan.Hidden.Index != -1 {
		t.Fatalf("hidden pointer = %+v", plan.Hidden)
	}
	checkLocs(t, plan, []string{"%rsi", "%rdx"})
	if plan.Return.Locs[0].Reg != "rax" {
		t.Fatalf("hidden return hands back %s", plan.Return.Locs[0].Reg)
	}
}

func TestPlanVariadicPromotesBeforeClassifying(t *testing.T) {
	fx := newFixture()
	b := fx.b
	sig := Signature{Params: []types.TypeID{b.Int}, Result: b.Int, Variadic: true}
	extra := []types.TypeID{b.Char, b.Float, b.Short}

	plan, err := fx.planner(target.X86_64()).PlanCall(sig, extra)
	if err != nil {
		t.Fatal(err)
	}
	checkLocs(t, plan, []string{"%rdi", "%rsi", "%xmm0", "%rdx"})
	if plan.Args[2].Type != b.Double || plan.Args[2].Declared != b.Float || !plan.Args[2].Variadic {
		t.Fatalf("float not promoted: %+v", plan.Args[2])
	}
	if plan.Args[1].Type != b.Int {
		t.Fatalf("char not promoted")
	}
	if plan.VectorRegs != 1 {
		t.Fatalf("VectorRegs = %d, want 1", plan.VectorRegs)
	}

	plan, err = fx.planner(target.I386()).PlanCall(sig, extra)
	if err != nil {
		t.Fatal(err)
	}
	checkLocs(t, plan, []string{"stack+0", "stack+4", "stack+8", "stack+16"})
	if plan.StackSize != 20 || plan.VectorRegs != 0 {
		t.Fatalf("stack=%d vector=%d", plan.StackSize, plan.VectorRegs)
	}
}

func TestPlanReturnRegisters(t *testing.T) {
	fx := newFixture()
	b := fx.b
	dd := fx.record(types.KindStruct, "dd", "a", b.Double, "b", b.Double)
	ld := fx.record(types.KindStruct, "ld", "l", b.Long, "d", b.Double)
	cases := []struct {
		desc target.Descriptor
		ret  types.TypeID
		regs []string
	}{
		{target.X86_64(), dd, []string{"xmm0", "xmm1"}},
		{target.X86_64(), ld, []string{"rax", "xmm0"}},
		{target.X86_64(), b.LongDouble, []string{"st(0)"}},
		{target.X86_64(), b.Long, []string{"rax"}},
		{target.I386(), b.LongLong, []string{"eax", "edx"}},
		{target.I386(), b.Double, []string{"st(0)"}},
		{target.I386(), b.Short, []string{"eax"}},
	}
	for _, tc := range cases {
		plan, err := fx.planner(tc.desc).PlanCall(Signature{Result: tc.ret}, nil)
		if err != nil {
			t.Fatal(err)
		}
		var got []string
		for _, l := range plan.Return.Locs {
			got = append(got, l.Reg)
		}
		if len(got) != len(tc.regs) {
			t.Fatalf("%s %s: regs %v, want %v", tc.desc, fx.in.TypeString(tc.ret), got, tc.regs)
		}
		for i := range got {
			if got[i] != tc.regs[i] {
				t.Fatalf("%s %s: regs %v, want %v", tc.desc, fx.in.TypeString(tc.ret), got, tc.regs)
			}
		}
	}
}

func TestPlanErrors(t *testing.T) {
	fx := newFixture()
	b := fx.b
	three := Signature{Params: []types.TypeID{b.Int, b.Int, b.Int}, Result: b.Void}

	if _, err := fx.planner(target.I386()).PlanCall(three, nil); err != nil {
		t.Fatalf("unbounded target rejected call: %v", err)
	}

	limited := NewPlanner(NewClassifier(layout.New(target.I386().WithArgStackLimit(8), fx.in)))
	_, err := limited.PlanCall(three, nil)
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Kind != ErrTooManyArguments || aerr.Need != 12 || aerr.Limit != 8 {
		t.Fatalf("error = %v, want TooManyArguments 12 > 8", err)
	}

	_, err = fx.planner(target.X86_64()).PlanCall(three, []types.TypeID{b.Int})
	if !errors.As(err, &aerr) || aerr.Kind != ErrArgumentCount {
		t.Fatalf("error = %v, want ArgumentCount", err)
	}
	_, err = fx.planner(target.X86_64()).PlanCallArgs(three, []types.TypeID{b.Int})
	if !errors.As(err, &aerr) || aerr.Kind != ErrArgumentCount {
		t.Fatalf("error = %v, want ArgumentCount", err)
	}

	fwd := fx.in.RegisterRecord(types.KindStruct, "fwd", noSpan)
	_, err = fx.planner(target.X86_64()).PlanCall(Signature{Params: []types.TypeID{fwd}, Result: b.Void}, nil)
	var le *layout.LayoutError
	if !errors.As(err, &le) || le.Kind != layout.LayoutErrIncompleteType {
		t.Fatalf("error = %v, want IncompleteType", err)
	}
}

func TestPlanEntryVariadic(t *testing.T) {
	fx := newFixture()
	b := fx.b
	sig := Signature{Params: []types.TypeID{b.Int, b.Double}, Result: b.Int, Variadic: true}

	entry, err := fx.planner(target.X86_64()).PlanEntry(sig)
	if err != nil {
		t.Fatal(err)
	}
	if entry.IntRegsUsed != 1 || entry.FloatRegsUsed != 1 || entry.StackUsed != 0 {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.SaveArea.Size != 176 || entry.SaveArea.FPBase != 48 {
		t.Fatalf("save area = %+v", entry.SaveArea)
	}

	entry, err = fx.planner(target.I386()).PlanEntry(sig)
	if err != nil {
		t.Fatal(err)
	}
	if entry.StackUsed != 12 || entry.SaveArea.Size != 0 {
		t.Fatalf("i386 entry = %+v", entry)
	}
}

func TestDecayAndPromote(t *testing.T) {
	fx := newFixture()
	b := fx.b
	e := fx.in.RegisterEnum("e", noSpan)
	arr := fx.in.ArrayOf(b.Char, 4)
	if Decay(fx.in, arr) != fx.in.PointerTo(b.Char) {
		t.Fatalf("array did not decay")
	}
	for _, tc := range []struct{ in, want types.TypeID }{
		{b.UChar, b.Int},
		{b.UShort, b.Int},
		{e, b.Int},
		{b.Float, b.Double},
		{b.UInt, b.UInt},
		{b.LongDouble, b.LongDouble},
		{arr, fx.in.PointerTo(b.Char)},
	} {
		if got := Promote(fx.in, tc.in); got != tc.want {
			t.Errorf("Promote(%s) = %s, want %s", fx.in.TypeString(tc.in), fx.in.TypeString(got), fx.in.TypeString(tc.want))
		}
	}
}
