package driver

import (
	"context"
	"errors"
	"fmt"

	"cabi/internal/abi"
	"cabi/internal/decl"
	"cabi/internal/diag"
	"cabi/internal/layout"
	"cabi/internal/report"
	"cabi/internal/source"
	"cabi/internal/target"
	"cabi/internal/trace"
	"cabi/internal/types"
	"cabi/internal/varargs"
)

// Unit is the analysis of one description for one target. Every unit owns
// its type table, so units run in parallel without sharing state.
type Unit struct {
	Target  target.Descriptor
	Types   *types.Interner
	Layout  *layout.LayoutEngine
	Decl    *decl.Declarer
	Planner *abi.Planner
	Bag     *diag.Bag
	Report  report.Target

	reporter diag.Reporter
	records  []declared
	typedefs []declared
	funcs    []declared
	calls    []plannedCall
}

// plannedCall keeps what verify needs to replay a [[call]].
type plannedCall struct {
	rep  int
	span source.Span
	sig  abi.Signature
	plan abi.CallPlan
}

type declared struct {
	name string
	kind types.Kind
	id   types.TypeID
	span source.Span
	err  error
	rep  int // index into the report slice; -1 until laid out

	forward bool
}

func newUnit(desc target.Descriptor, maxDiags int) *Unit {
	in := types.NewInterner()
	engine := layout.New(desc, in)
	bag := diag.NewBag(maxDiags)
	return &Unit{
		Target:  desc,
		Types:   in,
		Layout:  engine,
		Decl:    decl.New(engine),
		Planner: abi.NewPlanner(abi.NewClassifier(engine)),
		Bag:     bag,
		Report: report.Target{
			Triple:   desc.Triple(),
			Arch:     desc.Arch().String(),
			WordBits: desc.WordBits(),
		},
		// one incomplete type can fail many declarations at the same span
		reporter: diag.NewDedupReporter(diag.BagReporter{Bag: bag}),
	}
}

func (u *Unit) report(err error, at source.Span, exact bool) {
	d := toDiagnostic(err, at, exact)
	u.reporter.Report(d.Code, d.Severity, d.Primary, d.Message, d.Notes)
}

// run executes the phases in order: declare, layout, classify, plan,
// consteval and optionally verify. Failures become diagnostics; only
// cancellation stops a unit.
func (u *Unit) run(ctx context.Context, d *Description, opts Options) error {
	tracer := trace.FromContext(ctx)
	span := trace.BeginTarget(tracer, u.Target.Triple(), trace.CurrentSpan(ctx).SpanID)
	defer span.End("")

	timer, observe := opts.Timer, opts.Observer
	for _, ph := range u.phases(opts.Verify) {
		if err := ctx.Err(); err != nil {
			return err
		}
		done := timer.Track(u.Target.Triple() + "/" + ph.name)
		end := observe.start(ph.name, u.Target.Triple())
		ps := span.Child(trace.ScopePass, ph.name)
		u.Layout.Span = ps
		ph.fn(d)
		ps.End(fmt.Sprintf("diagnostics=%d", u.Bag.Len()))
		end()
		done("")
	}
	return nil
}

type phase struct {
	name string
	fn   func(*Description)
}

func (u *Unit) phases(verify bool) []phase {
	phases := []phase{
		{"declare", u.declare},
		{"layout", u.layout},
		{"classify", u.classify},
		{"plan", u.plan},
		{"consteval", u.consteval},
	}
	if verify {
		phases = append(phases, phase{"verify", u.verify})
	}
	return phases
}

// PhasesPerTarget is how many phase events each target emits under opts.
func PhasesPerTarget(opts Options) int {
	var u *Unit
	return len(u.phases(opts.Verify))
}

func recordKind(k itemKind) types.Kind {
	if k == itemUnion {
		return types.KindUnion
	}
	return types.KindStruct
}

// declare enters every declaration into the unit's scope. All struct and
// union tags are declared first so members may point at records defined
// further down; everything else follows file order.
func (u *Unit) declare(d *Description) {
	for _, it := range d.order {
		if it.kind != itemStruct && it.kind != itemUnion {
			continue
		}
		r := d.record(it)
		if r.Name == "" {
			continue
		}
		if _, err := u.Decl.DeclareRecord(recordKind(it.kind), r.Name, r.span); err != nil {
			u.report(err, r.span, true)
		}
	}
	for _, it := range d.order {
		switch it.kind {
		case itemStruct, itemUnion:
			r := d.record(it)
			if r.Name == "" {
				continue
			}
			kind := recordKind(it.kind)
			dc := declared{name: r.Name, kind: kind, span: r.span, rep: -1, forward: r.Fields == nil}
			if r.Fields == nil {
				// Tag errors were reported by the first pass.
				dc.id, dc.err = u.Decl.DeclareRecord(kind, r.Name, r.span)
			} else {
				fields := make([]decl.FieldDecl, len(*r.Fields))
				for i, f := range *r.Fields {
					fields[i] = decl.FieldDecl{Name: f.Name, Type: f.Type, Span: f.span}
				}
				dc.id, dc.err = u.Decl.DefineRecord(kind, r.Name, fields, r.span)
				if dc.err != nil && !u.wrongTagKind(kind, r.Name) {
					u.report(dc.err, r.span, true)
				}
			}
			u.records = append(u.records, dc)
		case itemTypedef:
			td := d.Typedefs[it.index]
			id, err := u.Decl.DeclareTypedef(td.Name, td.Type, td.typeSpan)
			if err != nil {
				u.report(err, td.span, true)
			}
			u.typedefs = append(u.typedefs, declared{name: td.Name, id: id, span: td.span, err: err, rep: -1})
		case itemEnum:
			en := d.Enums[it.index]
			list := make([]decl.EnumeratorDecl, len(en.Enumerators))
			for i, e := range en.Enumerators {
				list[i] = decl.EnumeratorDecl{Name: e.Name, Value: e.Value, Span: e.valueSpan}
			}
			id, err := u.Decl.DeclareEnum(en.Name, list, en.span)
			if err != nil {
				u.report(err, en.span, true)
				continue
			}
			u.Report.Enums = append(u.Report.Enums, enumReport(u.Types, en.Name, id))
		case itemFunction:
			fn := d.Functions[it.index]
			id, err := u.Decl.DeclareFunc(fn.Name, fn.Result, fn.Params, fn.Variadic, fn.span)
			if err != nil {
				// Parameter types share the function's span, so expression
				// offsets inside them would point at the wrong bytes.
				u.report(err, fn.span, false)
			}
			u.funcs = append(u.funcs, declared{name: fn.Name, id: id, span: fn.span, err: err, rep: -1})
		}
	}
}

func (u *Unit) wrongTagKind(kind types.Kind, tag string) bool {
	sym, ok := u.Decl.Scope.LookupTag(tag)
	return ok && u.Types.KindOf(sym.Type) != kind
}

func enumReport(in *types.Interner, name string, id types.TypeID) report.Enum {
	out := report.Enum{Name: name}
	if info, ok := in.EnumInfo(id); ok {
		for _, e := range info.Enumerators {
			out.Enumerators = append(out.Enumerators, report.Enumerator{Name: e.Name, Value: e.Value})
		}
	}
	return out
}

// layout computes records and typedefs. A typedef may name an incomplete
// type; only records that were given members must lay out.
func (u *Unit) layout(*Description) {
	seen := make(map[types.TypeID]bool)
	for i := range u.records {
		r := &u.records[i]
		if isDuplicate(r.err) {
			continue
		}
		info, _ := u.Types.RecordInfo(r.id)
		if r.forward && (seen[r.id] || info != nil && info.Complete) {
			continue
		}
		seen[r.id] = true
		rec := report.Record{Kind: r.kind.String(), Name: r.name}
		r.rep = len(u.Report.Records)
		if r.err != nil {
			rec.Error = r.err.Error()
			u.Report.Records = append(u.Report.Records, rec)
			continue
		}
		if info == nil || !info.Complete {
			u.Report.Records = append(u.Report.Records, rec)
			continue
		}
		l, err := u.Layout.LayoutOf(r.id)
		if err != nil {
			u.report(err, r.span, true)
			rec.Error = err.Error()
			u.Report.Records = append(u.Report.Records, rec)
			continue
		}
		rec.Complete = true
		rec.Size, rec.Align = l.Size, l.Align
		for _, f := range l.Fields {
			rec.Fields = append(rec.Fields, report.Field{
				Name:   f.Name,
				Type:   u.Types.TypeString(f.Type),
				Offset: f.Offset,
				Size:   f.Size,
				Align:  f.Align,
			})
		}
		u.Report.Records = append(u.Report.Records, rec)
	}
	for i := range u.typedefs {
		td := &u.typedefs[i]
		if td.err != nil {
			continue
		}
		td.rep = len(u.Report.Typedefs)
		out := report.Typedef{Name: td.name, Type: u.Types.TypeString(td.id)}
		if u.Types.KindOf(td.id) != types.KindVoid && u.Types.KindOf(td.id) != types.KindFunc {
			l, err := u.Layout.LayoutOf(td.id)
			switch {
			case err == nil:
				out.Size, out.Align = l.Size, l.Align
			case isInvalidArray(err):
				u.report(err, td.span, true)
				out.Error = err.Error()
			default:
				out.Error = err.Error()
			}
		}
		u.Report.Typedefs = append(u.Report.Typedefs, out)
	}
}

func isInvalidArray(err error) bool {
	var lerr *layout.LayoutError
	return errors.As(err, &lerr) && lerr.Kind == layout.LayoutErrInvalidArraySize
}

func isDuplicate(err error) bool {
	var derr *decl.Error
	return errors.As(err, &derr) && derr.Kind == decl.ErrDuplicate
}

// classify attaches the eightbyte classes and the return convention to
// every record and typedef that laid out.
func (u *Unit) classify(*Description) {
	c := u.Planner.Classifier()
	for _, r := range u.records {
		if r.rep < 0 || !u.Report.Records[r.rep].Complete {
			continue
		}
		rec := &u.Report.Records[r.rep]
		cls, err := c.Classify(r.id)
		if err != nil {
			rec.Error = err.Error()
			continue
		}
		rec.Class, rec.Return = classString(cls), cls.Return.String()
	}
	for _, td := range u.typedefs {
		if td.rep < 0 {
			continue
		}
		out := &u.Report.Typedefs[td.rep]
		if out.Error != "" || out.Size == 0 || u.Types.KindOf(td.id) == types.KindArray {
			continue
		}
		if cls, err := c.Classify(td.id); err == nil {
			out.Class = classString(cls)
		}
	}
}

func classString(cls abi.Classification) string {
	if s := cls.ClassString(); s != "" {
		return s
	}
	return "-"
}

// plan builds the call plan of every prototype, the entry state of every
// variadic function and the plan of every [[call]].
func (u *Unit) plan(d *Description) {
	for _, fn := range u.funcs {
		if fn.err != nil {
			continue
		}
		out := report.Function{Name: fn.name, Signature: u.Types.TypeString(fn.id)}
		sig, _ := abi.SignatureOf(u.Types, fn.id)
		call, err := u.Planner.PlanCall(sig, nil)
		if err != nil {
			u.report(err, fn.span, true)
			out.Error = err.Error()
			u.Report.Functions = append(u.Report.Functions, out)
			continue
		}
		out.Plan = u.planReport(call)
		if sig.Variadic {
			entry, err := u.Planner.PlanEntry(sig)
			if err != nil {
				u.report(err, fn.span, true)
				out.Error = err.Error()
			} else {
				st := varargs.Start(entry)
				out.Entry = &report.Entry{
					GPOffset:       st.GPOffset,
					FPOffset:       st.FPOffset,
					OverflowOffset: st.OverflowOffset,
					SaveAreaSize:   entry.SaveArea.Size,
				}
			}
		}
		u.Report.Functions = append(u.Report.Functions, out)
	}

	for _, call := range d.Calls {
		out := report.Call{Function: call.Function, Args: call.Args}
		sig, plan, err := u.planCall(call)
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Plan = u.planReport(plan)
			u.calls = append(u.calls, plannedCall{rep: len(u.Report.Calls), span: call.span, sig: sig, plan: plan})
		}
		u.Report.Calls = append(u.Report.Calls, out)
	}
}

func (u *Unit) planCall(call CallDesc) (abi.Signature, abi.CallPlan, error) {
	sym, err := u.Decl.Func(call.Function, call.span)
	if err != nil {
		u.report(err, call.span, true)
		return abi.Signature{}, abi.CallPlan{}, err
	}
	args := make([]types.TypeID, len(call.Args))
	for i, a := range call.Args {
		at := call.span
		if i < len(call.argSpans) {
			at = call.argSpans[i]
		}
		t, err := u.Decl.TypeName(a, at)
		if err != nil {
			u.report(err, at, true)
			return abi.Signature{}, abi.CallPlan{}, err
		}
		args[i] = t
	}
	sig, _ := abi.SignatureOf(u.Types, sym.Type)
	plan, err := u.Planner.PlanCallArgs(sig, args)
	if err != nil {
		u.report(err, call.span, true)
		return abi.Signature{}, abi.CallPlan{}, err
	}
	return sig, plan, nil
}

func (u *Unit) planReport(plan abi.CallPlan) *report.Plan {
	out := &report.Plan{
		Args:       make([]report.Arg, 0, len(plan.Args)),
		Return:     report.Return{Type: u.Types.TypeString(plan.Return.Type), Kind: plan.Return.Kind.String(), Locs: locs(plan.Return.Locs)},
		IntRegs:    plan.IntRegsUsed,
		FloatRegs:  plan.FloatRegsUsed,
		StackSize:  plan.StackSize,
		VectorRegs: -1,
	}
	if plan.Variadic {
		out.VectorRegs = plan.VectorRegs
	}
	if plan.Hidden != nil {
		h := u.argReport(*plan.Hidden)
		out.Hidden = &h
	}
	for _, p := range plan.Args {
		out.Args = append(out.Args, u.argReport(p))
	}
	return out
}

func (u *Unit) argReport(p abi.Placement) report.Arg {
	return report.Arg{
		Index:    p.Index,
		Type:     u.Types.TypeString(p.Type),
		Class:    classString(p.Class),
		Variadic: p.Variadic,
		Locs:     locs(p.Locs),
	}
}

func locs(in []abi.Location) []string {
	out := make([]string, len(in))
	for i, l := range in {
		out[i] = l.String()
	}
	return out
}

// consteval folds every [[const]] with the unit's widths.
func (u *Unit) consteval(d *Description) {
	for _, c := range d.Consts {
		out := report.Const{Name: c.Name, Expr: c.Expr}
		v, err := u.Decl.Const(c.Expr, c.exprSpan)
		if err != nil {
			u.report(err, c.span, true)
			out.Error = err.Error()
		} else {
			out.Value = v.String()
			out.Type = v.Kind.String()
		}
		u.Report.Consts = append(u.Report.Consts, out)
	}
}
