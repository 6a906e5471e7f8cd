package abi

import (
	"fmt"

	"cabi/internal/layout"
	"cabi/internal/target"
	"cabi/internal/types"
)

// LocKind is where one piece of a value lives.
type LocKind uint8

const (
	LocIntReg LocKind = iota
	LocFloatReg
	LocStack
	LocX87
)

// Location is one register or stack slot holding Size bytes of a value,
// starting at byte Part of that value.
type Location struct {
	Kind   LocKind
	Index  int    // register number within its file
	Offset int64  // stack offset from the start of the argument area
	Part   int64  // byte offset inside the value
	Size   int64  // bytes carried
	Reg    string // register name; empty for stack slots
}

func (l Location) String() string {
	switch l.Kind {
	case LocIntReg, LocFloatReg, LocX87:
		return "%" + l.Reg
	default:
		return fmt.Sprintf("stack+%d", l.Offset)
	}
}

// Placement places one argument.
type Placement struct {
	Index    int          // argument position; -1 for the hidden return pointer
	Declared types.TypeID // type as written
	Type     types.TypeID // type after decay and, for variadic arguments, promotion
	Variadic bool
	Class    Classification
	Locs     []Location
}

// InRegisters reports whether the argument travels in registers.
func (p Placement) InRegisters() bool {
	return len(p.Locs) > 0 && p.Locs[0].Kind != LocStack
}

// ReturnPlan describes how the result comes back.
type ReturnPlan struct {
	Type  types.TypeID
	Kind  ReturnKind
	Class Classification
	// Locs are the result registers; for a hidden-pointer return this is the
	// register that hands the buffer address back (rax/eax).
	Locs []Location
}

// Signature is a prototype: named parameters, result and variadic flag.
type Signature struct {
	Params   []types.TypeID
	Result   types.TypeID
	Variadic bool
}

// SignatureOf extracts the signature of a function type.
func SignatureOf(in *types.Interner, fn types.TypeID) (Signature, bool) {
	info, ok := in.FuncInfo(fn)
	if !ok {
		return Signature{}, false
	}
	return Signature{
		Params:   append([]types.TypeID(nil), info.Params...),
		Result:   info.Result,
		Variadic: info.Variadic,
	}, true
}

// CallPlan is the full marshalling plan of one call.
type CallPlan struct {
	Target target.Descriptor
	Hidden *Placement // hidden return pointer, when the result is returned in memory
	Args   []Placement
	Return ReturnPlan

	Variadic   bool
	NamedCount int

	IntRegsUsed   int
	FloatRegsUsed int
	// StackSize is the outgoing argument area, rounded to the slot alignment.
	StackSize int64
	// VectorRegs is the %al hint for variadic x86_64 calls: an upper bound on
	// the float registers used. Zero otherwise.
	VectorRegs int
}

// Planner builds call and entry plans.
type Planner struct {
	c *Classifier
}

// NewPlanner creates a Planner on top of a classifier.
func NewPlanner(c *Classifier) *Planner {
	return &Planner{c: c}
}

// Classifier returns the underlying classifier.
func (p *Planner) Classifier() *Classifier { return p.c }

// planState is the left-to-right allocation cursor.
type planState struct {
	desc      target.Descriptor
	intUsed   int
	floatUsed int
	stack     int64
}

// PlanCall plans a call of sig with extra variadic argument types. Named
// arguments are planned first, then each extra argument using its promoted
// type.
func (p *Planner) PlanCall(sig Signature, extra []types.TypeID) (CallPlan, error) {
	if len(extra) > 0 && !sig.Variadic {
		return CallPlan{}, &Error{Kind: ErrArgumentCount, Need: int64(len(sig.Params) + len(extra)), Limit: int64(len(sig.Params))}
	}
	desc := p.c.Target
	in := p.c.Types
	plan := CallPlan{
		Target:     desc,
		Variadic:   sig.Variadic,
		NamedCount: len(sig.Params),
	}
	st := &planState{desc: desc}

	ret, err := p.planReturn(sig.Result)
	if err != nil {
		return CallPlan{}, fmt.Errorf("result: %w", err)
	}
	plan.Return = ret
	if ret.Kind == ReturnByHiddenPointer {
		hidden := p.hiddenPointer(st, sig.Result)
		plan.Hidden = &hidden
	}

	plan.Args = make([]Placement, 0, len(sig.Params)+len(extra))
	for i, declared := range sig.Params {
		pl, err := p.place(st, i, declared, Decay(in, declared), false)
		if err != nil {
			return CallPlan{}, err
		}
		plan.Args = append(plan.Args, pl)
	}
	for j, declared := range extra {
		i := len(sig.Params) + j
		pl, err := p.place(st, i, declared, Promote(in, declared), true)
		if err != nil {
			return CallPlan{}, err
		}
		plan.Args = append(plan.Args, pl)
	}

	plan.IntRegsUsed = st.intUsed
	plan.FloatRegsUsed = st.floatUsed
	plan.StackSize = layout.AlignUp(st.stack, desc.StackSlotAlign())
	if sig.Variadic && desc.Is64() {
		plan.VectorRegs = st.floatUsed
	}
	if limit := desc.MaxArgStackBytes(); limit > 0 && plan.StackSize > limit {
		return CallPlan{}, &Error{Kind: ErrTooManyArguments, Need: plan.StackSize, Limit: limit, Target: desc.Triple()}
	}
	return plan, nil
}

// PlanCallArgs plans a call given every argument type in order, splitting
// them into named and variadic arguments.
func (p *Planner) PlanCallArgs(sig Signature, args []types.TypeID) (CallPlan, error) {
	if len(args) < len(sig.Params) || (len(args) > len(sig.Params) && !sig.Variadic) {
		return CallPlan{}, &Error{Kind: ErrArgumentCount, Need: int64(len(args)), Limit: int64(len(sig.Params))}
	}
	return p.PlanCall(sig, args[len(sig.Params):])
}

func (p *Planner) hiddenPointer(st *planState, result types.TypeID) Placement {
	in := p.c.Types
	ptr := in.PointerTo(result)
	size := st.desc.PointerSize()
	pl := Placement{Index: -1, Declared: ptr, Type: ptr}
	pl.Class = Classification{Type: ptr, Size: size, Align: st.desc.PointerAlign(), Pass: PassInRegisters, Return: ReturnByRegisters}
	if st.desc.Is64() {
		pl.Class.Classes = []ParamClass{ClassInteger}
		pl.Locs = []Location{st.intReg(size)}
		return pl
	}
	pl.Class.Classes = []ParamClass{ClassStack}
	pl.Class.Pass = PassInMemory
	pl.Locs = []Location{st.push(size, st.desc.StackSlotAlign())}
	return pl
}

func (p *Planner) place(st *planState, index int, declared, t types.TypeID, variadic bool) (Placement, error) {
	cls, err := p.c.Classify(t)
	if err != nil {
		return Placement{}, fmt.Errorf("argument %d: %w", index+1, err)
	}
	if cls.Return == ReturnVoid {
		return Placement{}, fmt.Errorf("argument %d: %w", index+1, p.c.voidError(t))
	}
	pl := Placement{
		Index:    index,
		Declared: declared,
		Type:     t,
		Variadic: variadic,
		Class:    cls,
	}

	if cls.Pass == PassInRegisters &&
		st.intUsed+cls.IntRegs() <= st.desc.IntArgRegs() &&
		st.floatUsed+cls.FloatRegs() <= st.desc.FloatArgRegs() {
		for i, c := range cls.Classes {
			part := int64(i) * eightbyte
			size := min(eightbyte, cls.Size-part)
			switch c {
			case ClassInteger:
				loc := st.intReg(size)
				loc.Part = part
				pl.Locs = append(pl.Locs, loc)
			case ClassFloat:
				loc := st.floatReg(size)
				loc.Part = part
				pl.Locs = append(pl.Locs, loc)
			}
		}
		return pl, nil
	}

	// Whole value on the stack; never split between registers and memory.
	align := st.desc.StackSlotAlign()
	if st.desc.Is64() && cls.Align > align {
		align = cls.Align
	}
	pl.Locs = []Location{st.push(cls.Size, align)}
	return pl, nil
}

func (st *planState) intReg(size int64) Location {
	i := st.intUsed
	st.intUsed++
	return Location{Kind: LocIntReg, Index: i, Size: size, Reg: st.desc.IntArgReg(i)}
}

func (st *planState) floatReg(size int64) Location {
	i := st.floatUsed
	st.floatUsed++
	return Location{Kind: LocFloatReg, Index: i, Size: size, Reg: st.desc.FloatArgReg(i)}
}

// push reserves a stack slot of size bytes aligned to align and advances the
// cursor by the size rounded to the slot alignment.
func (st *planState) push(size, align int64) Location {
	off := layout.AlignUp(st.stack, align)
	st.stack = off + layout.AlignUp(size, st.desc.StackSlotAlign())
	return Location{Kind: LocStack, Offset: off, Size: size}
}

func (p *Planner) planReturn(result types.TypeID) (ReturnPlan, error) {
	desc := p.c.Target
	cls, err := p.c.Classify(result)
	if err != nil {
		return ReturnPlan{}, err
	}
	rp := ReturnPlan{Type: result, Kind: cls.Return, Class: cls}
	switch cls.Return {
	case ReturnVoid:
	case ReturnX87:
		rp.Locs = []Location{{Kind: LocX87, Size: cls.Size, Reg: target.X87Return}}
	case ReturnByHiddenPointer:
		rp.Locs = []Location{{Kind: LocIntReg, Size: desc.PointerSize(), Reg: desc.IntReturnReg(0)}}
	case ReturnByRegisters:
		if !desc.Is64() {
			// eax, or edx:eax for 8-byte integers
			for part := int64(0); part < cls.Size; part += 4 {
				i := int(part / 4)
				rp.Locs = append(rp.Locs, Location{Kind: LocIntReg, Index: i, Part: part, Size: min(4, cls.Size-part), Reg: desc.IntReturnReg(i)})
			}
			break
		}
		var nInt, nFloat int
		for i, c := range cls.Classes {
			part := int64(i) * eightbyte
			size := min(eightbyte, cls.Size-part)
			switch c {
			case ClassInteger:
				rp.Locs = append(rp.Locs, Location{Kind: LocIntReg, Index: nInt, Part: part, Size: size, Reg: desc.IntReturnReg(nInt)})
				nInt++
			case ClassFloat:
				rp.Locs = append(rp.Locs, Location{Kind: LocFloatReg, Index: nFloat, Part: part, Size: size, Reg: desc.FloatReturnReg(nFloat)})
				nFloat++
			}
		}
	}
	return rp, nil
}

// EntryPlan is what a function sees at entry: where its named parameters
// arrived and, for variadic functions, how far the argument registers and
// the stack area were consumed.
type EntryPlan struct {
	Target target.Descriptor
	Hidden *Placement
	Params []Placement
	Return ReturnPlan

	Variadic      bool
	IntRegsUsed   int
	FloatRegsUsed int
	// StackUsed is the end of the last named stack argument, before rounding.
	StackUsed int64
	SaveArea  SaveAreaLayout
}

// SaveAreaLayout is the register-save area built by a variadic prologue:
// integer registers at GPBase, 8 bytes each, then float registers at
// FPBase, 16 bytes each. Zero-sized on i386.
type SaveAreaLayout struct {
	Size   int64
	GPBase int64
	FPBase int64
	GPSlot int64
	FPSlot int64
}

// PlanEntry plans the named parameters of sig as the callee sees them.
func (p *Planner) PlanEntry(sig Signature) (EntryPlan, error) {
	call, err := p.PlanCall(Signature{Params: sig.Params, Result: sig.Result}, nil)
	if err != nil {
		return EntryPlan{}, err
	}
	desc := p.c.Target
	entry := EntryPlan{
		Target:        desc,
		Hidden:        call.Hidden,
		Params:        call.Args,
		Return:        call.Return,
		Variadic:      sig.Variadic,
		IntRegsUsed:   call.IntRegsUsed,
		FloatRegsUsed: call.FloatRegsUsed,
	}
	entry.StackUsed = stackEnd(call)
	if sig.Variadic && desc.Is64() {
		entry.SaveArea = SaveAreaLayout{
			Size:   desc.RegSaveAreaSize(),
			GPBase: 0,
			FPBase: int64(desc.IntArgRegs()) * 8,
			GPSlot: 8,
			FPSlot: 16,
		}
	}
	return entry, nil
}

// stackEnd is the first byte after the last stack slot of the plan,
// rounded to the slot alignment.
func stackEnd(plan CallPlan) int64 {
	var end int64
	consider := func(pl *Placement) {
		for _, loc := range pl.Locs {
			if loc.Kind == LocStack {
				end = max(end, loc.Offset+layout.AlignUp(loc.Size, plan.Target.StackSlotAlign()))
			}
		}
	}
	if plan.Hidden != nil {
		consider(plan.Hidden)
	}
	for i := range plan.Args {
		consider(&plan.Args[i])
	}
	return end
}
