package driver

import (
	"bytes"
	"fmt"

	"cabi/internal/diag"
	"cabi/internal/machine"
	"cabi/internal/types"
)

// verify replays every planned [[call]] on the reference machine. The
// caller places sample arguments with the call plan, the callee reads them
// back with the entry plan of the same prototype and va_arg, then returns a
// sample result. Every value must arrive byte for byte.
func (u *Unit) verify(*Description) {
	codec := machine.NewCodec(u.Layout)
	caller := &machine.Caller{Codec: codec}
	callee := &machine.Callee{Codec: codec, Classifier: u.Planner.Classifier()}
	for _, pc := range u.calls {
		if err := u.replay(codec, caller, callee, pc); err != nil {
			diag.ReportError(u.reporter, diag.AbiPlanMismatch, pc.span, err.Error()).Emit()
			continue
		}
		u.Report.Calls[pc.rep].Verified = true
	}
}

func (u *Unit) replay(codec *machine.Codec, caller *machine.Caller, callee *machine.Callee, pc plannedCall) error {
	entry, err := u.Planner.PlanEntry(pc.sig)
	if err != nil {
		return err
	}
	args := make([]machine.Value, len(pc.plan.Args))
	want := make([]machine.Value, len(pc.plan.Args))
	for i, pl := range pc.plan.Args {
		t := pl.Declared
		if k := u.Types.KindOf(t); k == types.KindArray || k == types.KindFunc {
			t = pl.Type
		}
		if args[i], err = sample(codec, t, i); err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		if want[i], err = codec.Convert(args[i], pl.Type); err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
	}

	frame, err := caller.Place(pc.plan, args)
	if err != nil {
		return err
	}
	act, err := callee.Load(entry, frame)
	if err != nil {
		return err
	}
	for i, pl := range pc.plan.Args {
		var got machine.Value
		if pl.Variadic {
			if got, err = act.VaArg(args[i].Type); err != nil {
				return fmt.Errorf("argument %d: %w", i+1, err)
			}
		} else {
			got = act.Param(i)
		}
		if !bytes.Equal(got.Bytes, want[i].Bytes) {
			return fmt.Errorf("argument %d (%s): callee read % x, caller passed % x",
				i+1, u.Types.TypeString(pl.Type), got.Bytes, want[i].Bytes)
		}
	}

	rt := pc.sig.Result
	if u.Types.KindOf(rt) == types.KindVoid {
		return nil
	}
	ret, err := sample(codec, rt, len(args))
	if err != nil {
		return fmt.Errorf("result: %w", err)
	}
	if err := act.Return(ret); err != nil {
		return err
	}
	got, err := caller.Result(pc.plan, frame)
	if err != nil {
		return err
	}
	if !bytes.Equal(got.Bytes, ret.Bytes) {
		return fmt.Errorf("result (%s): caller read % x, callee returned % x", u.Types.TypeString(rt), got.Bytes, ret.Bytes)
	}
	return nil
}

// sample builds a recognisable value of type t for argument slot i. Scalars
// get exact numbers; aggregates get a byte pattern.
func sample(codec *machine.Codec, t types.TypeID, i int) (machine.Value, error) {
	k := codec.Types.KindOf(t)
	switch {
	case k.IsFloat():
		return codec.Float(t, float64(i)+0.5)
	case k.IsInteger() || k == types.KindPointer:
		return codec.Int(t, int64(i+1)*0x01020304)
	}
	v, err := codec.Zero(t)
	if err != nil {
		return machine.Value{}, err
	}
	for j := range v.Bytes {
		v.Bytes[j] = byte(i*16 + j + 1)
	}
	return v, nil
}
