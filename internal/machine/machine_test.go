package machine

import (
	"testing"

	"cabi/internal/abi"
	"cabi/internal/layout"
	"cabi/internal/source"
	"cabi/internal/target"
	"cabi/internal/types"
)

type rig struct {
	t       *testing.T
	in      *types.Interner
	b       types.Builtins
	planner *abi.Planner
	codec   *Codec
	caller  *Caller
	callee  *Callee
}

func newRig(t *testing.T, desc target.Descriptor) *rig {
	t.Helper()
	in := types.NewInterner()
	engine := layout.New(desc, in)
	cls := abi.NewClassifier(engine)
	codec := NewCodec(engine)
	return &rig{
		t:       t,
		in:      in,
		b:       in.Builtins(),
		planner: abi.NewPlanner(cls),
		codec:   codec,
		caller:  &Caller{Codec: codec},
		callee:  &Callee{Codec: codec, Classifier: cls},
	}
}

func (r *rig) record(kind types.Kind, tag string, members ...any) types.TypeID {
	id := r.in.RegisterRecord(kind, tag, source.Span{})
	var fields []types.Field
	for i := 0; i+1 < len(members); i += 2 {
		fields = append(fields, types.Field{Name: members[i].(string), Type: members[i+1].(types.TypeID)})
	}
	r.in.SetRecordFields(id, fields)
	return id
}

func (r *rig) int(t types.TypeID, v int64) Value {
	r.t.Helper()
	out, err := r.codec.Int(t, v)
	if err != nil {
		r.t.Fatal(err)
	}
	return out
}

func (r *rig) float(t types.TypeID, v float64) Value {
	r.t.Helper()
	out, err := r.codec.Float(t, v)
	if err != nil {
		r.t.Fatal(err)
	}
	return out
}

func (r *rig) asInt(v Value) int64 {
	r.t.Helper()
	n, err := r.codec.AsInt(v)
	if err != nil {
		r.t.Fatal(err)
	}
	return n
}

func (r *rig) field(v Value, name string) int64 {
	r.t.Helper()
	f, err := r.codec.Field(v, name)
	if err != nil {
		r.t.Fatal(err)
	}
	return r.asInt(f)
}

// call runs one call through caller and callee: args are every argument in
// order, body is the callee.
func (r *rig) call(sig abi.Signature, args []Value, body func(*Activation) Value) Value {
	r.t.Helper()
	argTypes := make([]types.TypeID, len(args))
	for i, a := range args {
		argTypes[i] = a.Type
	}
	plan, err := r.planner.PlanCallArgs(sig, argTypes)
	if err != nil {
		r.t.Fatalf("PlanCallArgs: %v", err)
	}
	entry, err := r.planner.PlanEntry(sig)
	if err != nil {
		r.t.Fatalf("PlanEntry: %v", err)
	}
	frame, err := r.caller.Place(plan, args)
	if err != nil {
		r.t.Fatalf("Place: %v", err)
	}
	act, err := r.callee.Load(entry, frame)
	if err != nil {
		r.t.Fatalf("Load: %v", err)
	}
	if err := act.Return(body(act)); err != nil {
		r.t.Fatalf("Return: %v", err)
	}
	res, err := r.caller.Result(plan, frame)
	if err != nil {
		r.t.Fatalf("Result: %v", err)
	}
	return res
}

func (r *rig) vaInt(act *Activation) int64 {
	r.t.Helper()
	v, err := act.VaArg(r.b.Int)
	if err != nil {
		r.t.Fatal(err)
	}
	return r.asInt(v)
}

func (r *rig) vaDouble(act *Activation) float64 {
	r.t.Helper()
	v, err := act.VaArg(r.b.Double)
	if err != nil {
		r.t.Fatal(err)
	}
	f, err := r.codec.AsFloat(v)
	if err != nil {
		r.t.Fatal(err)
	}
	return f
}

func TestStructPassAndReturn(t *testing.T) {
	for _, desc := range target.All() {
		t.Run(desc.Arch().String(), func(t *testing.T) {
			r := newRig(t, desc)
			p := r.record(types.KindStruct, "P", "a", r.b.Int, "b", r.b.Int)
			q := r.record(types.KindStruct, "Q", "c", r.b.Char, "d", r.b.Int)

			// struct P mkP(int x, int y)
			mkP := abi.Signature{Params: []types.TypeID{r.b.Int, r.b.Int}, Result: p}
			pv := r.call(mkP, []Value{r.int(r.b.Int, 10), r.int(r.b.Int, 20)}, func(act *Activation) Value {
				v, err := r.codec.Record(p, act.Param(0), act.Param(1))
				if err != nil {
					t.Fatal(err)
				}
				return v
			})
			if r.field(pv, "a") != 10 || r.field(pv, "b") != 20 {
				t.Fatalf("mkP returned a=%d b=%d", r.field(pv, "a"), r.field(pv, "b"))
			}

			// int twice(struct P p) { return 2*p.a + 2*p.b; }
			twice := abi.Signature{Params: []types.TypeID{p}, Result: r.b.Int}
			got := r.call(twice, []Value{pv}, func(act *Activation) Value {
				arg := act.Param(0)
				return r.int(r.b.Int, 2*r.field(arg, "a")+2*r.field(arg, "b"))
			})
			if n := r.asInt(got); n != 2*10+2*20 {
				t.Fatalf("twice(P) = %d, want 60", n)
			}

			// int passQ(struct Q q) { return (int)q.c + q.d + 2; }
			qv, err := r.codec.Record(q, r.int(r.b.Char, 'A'), r.int(r.b.Int, 5))
			if err != nil {
				t.Fatal(err)
			}
			passQ := abi.Signature{Params: []types.TypeID{q}, Result: r.b.Int}
			got = r.call(passQ, []Value{qv}, func(act *Activation) Value {
				arg := act.Param(0)
				return r.int(r.b.Int, r.field(arg, "c")+r.field(arg, "d")+2)
			})
			if n := r.asInt(got); n != 72 {
				t.Fatalf("passQ = %d, want 72", n)
			}
		})
	}
}

func TestSumInts(t *testing.T) {
	for _, desc := range target.All() {
		t.Run(desc.Arch().String(), func(t *testing.T) {
			r := newRig(t, desc)
			sig := abi.Signature{Params: []types.TypeID{r.b.Int}, Result: r.b.Int, Variadic: true}
			args := []Value{r.int(r.b.Int, 4)}
			for _, v := range []int64{1, 2, 3, 4} {
				args = append(args, r.int(r.b.Int, v))
			}
			res := r.call(sig, args, func(act *Activation) Value {
				n := r.asInt(act.Param(0))
				var s int64
				for ; n > 0; n-- {
					s += r.vaInt(act)
				}
				return r.int(r.b.Int, s)
			})
			if got := r.asInt(res); got != 10 {
				t.Fatalf("sum_ints(4, 1, 2, 3, 4) = %d, want 10", got)
			}
		})
	}
}

// sumMixed mirrors a variadic callee that switches on its tag.
func (r *rig) sumMixed(act *Activation) Value {
	var res int64
	switch r.asInt(act.Param(0)) {
	case 1:
		res = r.vaInt(act) + r.vaInt(act)
	case 2:
		d := r.vaDouble(act)
		res = int64(d) + r.vaInt(act)
	case 3:
		c := int64(int8(r.vaInt(act)))
		s := int64(int16(r.vaInt(act)))
		res = c + s
	}
	return r.int(r.b.Int, res)
}

func TestSumMixed(t *testing.T) {
	for _, desc := range target.All() {
		t.Run(desc.Arch().String(), func(t *testing.T) {
			r := newRig(t, desc)
			sig := abi.Signature{Params: []types.TypeID{r.b.Int}, Result: r.b.Int, Variadic: true}
			cases := []struct {
				name string
				args []Value
				want int64
			}{
				{"ints", []Value{r.int(r.b.Int, 1), r.int(r.b.Int, 10), r.int(r.b.Int, 20)}, 30},
				{"double-int", []Value{r.int(r.b.Int, 2), r.float(r.b.Double, 3.5), r.int(r.b.Int, 7)}, 10},
				{"float-promoted", []Value{r.int(r.b.Int, 2), r.float(r.b.Float, 3.5), r.int(r.b.Int, 7)}, 10},
				{"char-short", []Value{r.int(r.b.Int, 3), r.int(r.b.Char, 5), r.int(r.b.Short, 6)}, 11},
				{"negative-char", []Value{r.int(r.b.Int, 3), r.int(r.b.Char, -5), r.int(r.b.Short, 6)}, 1},
			}
			for _, tc := range cases {
				res := r.call(sig, tc.args, r.sumMixed)
				if got := r.asInt(res); got != tc.want {
					t.Errorf("%s: sum_mixed = %d, want %d", tc.name, got, tc.want)
				}
			}
		})
	}
}

func TestVariadicSpillsToOverflowArea(t *testing.T) {
	for _, desc := range target.All() {
		t.Run(desc.Arch().String(), func(t *testing.T) {
			r := newRig(t, desc)
			sig := abi.Signature{Params: []types.TypeID{r.b.Int}, Result: r.b.Long, Variadic: true}
			args := []Value{r.int(r.b.Int, 12)}
			var want int64
			for i := int64(1); i <= 12; i++ {
				if i%3 == 0 {
					args = append(args, r.float(r.b.Double, float64(i)))
				} else {
					args = append(args, r.int(r.b.Long, i))
				}
				want += i
			}
			res := r.call(sig, args, func(act *Activation) Value {
				var s int64
				for i := int64(1); i <= r.asInt(act.Param(0)); i++ {
					if i%3 == 0 {
						s += int64(r.vaDouble(act))
						continue
					}
					v, err := act.VaArg(r.b.Long)
					if err != nil {
						t.Fatal(err)
					}
					s += r.asInt(v)
				}
				return r.int(r.b.Long, s)
			})
			if got := r.asInt(res); got != want {
				t.Fatalf("sum = %d, want %d", got, want)
			}
		})
	}
}

func TestAggregatesThroughMemoryAndMixedRegisters(t *testing.T) {
	for _, desc := range target.All() {
		t.Run(desc.Arch().String(), func(t *testing.T) {
			r := newRig(t, desc)
			big := r.record(types.KindStruct, "big", "x", r.b.Long, "y", r.b.Long, "z", r.b.Long)
			mixed := r.record(types.KindStruct, "mixed", "d", r.b.Double, "l", r.b.Long)

			bv, err := r.codec.Record(big, r.int(r.b.Long, 1), r.int(r.b.Long, -2), r.int(r.b.Long, 3))
			if err != nil {
				t.Fatal(err)
			}
			// struct big rev(int pad, struct big b): reverses the members.
			rev := abi.Signature{Params: []types.TypeID{r.b.Int, big}, Result: big}
			out := r.call(rev, []Value{r.int(r.b.Int, 0), bv}, func(act *Activation) Value {
				in := act.Param(1)
				v, err := r.codec.Record(big,
					r.int(r.b.Long, r.field(in, "z")),
					r.int(r.b.Long, r.field(in, "y")),
					r.int(r.b.Long, r.field(in, "x")))
				if err != nil {
					t.Fatal(err)
				}
				return v
			})
			if r.field(out, "x") != 3 || r.field(out, "y") != -2 || r.field(out, "z") != 1 {
				t.Fatalf("rev(big) = %d %d %d", r.field(out, "x"), r.field(out, "y"), r.field(out, "z"))
			}

			d, err := r.codec.Float(r.b.Double, 2.5)
			if err != nil {
				t.Fatal(err)
			}
			mv, err := r.codec.Record(mixed, d, r.int(r.b.Long, 40))
			if err != nil {
				t.Fatal(err)
			}
			ident := abi.Signature{Params: []types.TypeID{mixed}, Result: mixed}
			back := r.call(ident, []Value{mv}, func(act *Activation) Value { return act.Param(0) })
			if string(back.Bytes) != string(mv.Bytes) {
				t.Fatalf("identity(mixed) changed the bytes")
			}
		})
	}
}

func TestLongDoubleReturnsOnX87(t *testing.T) {
	for _, desc := range target.All() {
		t.Run(desc.Arch().String(), func(t *testing.T) {
			r := newRig(t, desc)
			sig := abi.Signature{Params: []types.TypeID{r.b.LongDouble, r.b.Int}, Result: r.b.LongDouble}
			res := r.call(sig, []Value{r.float(r.b.LongDouble, -1.25), r.int(r.b.Int, 4)}, func(act *Activation) Value {
				x, err := r.codec.AsFloat(act.Param(0))
				if err != nil {
					t.Fatal(err)
				}
				return r.float(r.b.LongDouble, x*float64(r.asInt(act.Param(1))))
			})
			got, err := r.codec.AsFloat(res)
			if err != nil {
				t.Fatal(err)
			}
			if got != -5 {
				t.Fatalf("result = %v, want -5", got)
			}
		})
	}
}

func TestExtendedPrecisionRoundTrip(t *testing.T) {
	buf := make([]byte, 10)
	for _, f := range []float64{0, 1, -1, 0.1, 1e300, -3.5e-310, 123456.789} {
		putExtended(buf, f)
		if got := getExtended(buf); got != f {
			t.Errorf("extended(%v) round trip = %v", f, got)
		}
	}
}

func TestPlaceRejectsArgumentMismatch(t *testing.T) {
	r := newRig(t, target.X86_64())
	sig := abi.Signature{Params: []types.TypeID{r.b.Int}, Result: r.b.Void}
	plan, err := r.planner.PlanCall(sig, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.caller.Place(plan, nil); err == nil {
		t.Fatal("expected an error for a missing argument")
	}
}
