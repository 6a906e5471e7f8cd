package machine

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"

	"cabi/internal/abi"
	"cabi/internal/target"
	"cabi/internal/types"
	"cabi/internal/varargs"
)

// hiddenAddr is the address the caller hands out for a hidden return
// buffer. The buffer itself lives in the Frame.
const hiddenAddr = 0x7ff0_1000

const (
	intRegBytes   = 8
	floatRegBytes = 16
)

// Frame is the machine state at the call boundary.
type Frame struct {
	Target target.Descriptor

	IntArgs   [][]byte // one 8-byte image per integer argument register
	FloatArgs [][]byte // one 16-byte image per float argument register
	Stack     []byte   // outgoing argument area

	RetInt   [2][]byte // rax/rdx or eax/edx
	RetFloat [2][]byte // xmm0/xmm1
	X87      float64   // st(0)

	// AL is the vector register count a variadic x86_64 caller sets.
	AL int

	hidden []byte
}

func newFrame(desc target.Descriptor, stack int64) *Frame {
	f := &Frame{
		Target:    desc,
		IntArgs:   make([][]byte, desc.IntArgRegs()),
		FloatArgs: make([][]byte, desc.FloatArgRegs()),
		Stack:     make([]byte, stack),
	}
	for i := range f.IntArgs {
		f.IntArgs[i] = make([]byte, intRegBytes)
	}
	for i := range f.FloatArgs {
		f.FloatArgs[i] = make([]byte, floatRegBytes)
	}
	for i := range f.RetInt {
		f.RetInt[i] = make([]byte, intRegBytes)
		f.RetFloat[i] = make([]byte, floatRegBytes)
	}
	return f
}

// Caller marshals arguments and collects results.
type Caller struct {
	Codec *Codec
}

// Place writes args into a fresh frame according to plan. Arguments whose
// type differs from the planned type (variadic promotion, array decay of
// pointers) are converted first.
func (c *Caller) Place(plan abi.CallPlan, args []Value) (*Frame, error) {
	if len(args) != len(plan.Args) {
		return nil, fmt.Errorf("plan has %d arguments, got %d values", len(plan.Args), len(args))
	}
	f := newFrame(plan.Target, plan.StackSize)
	f.AL = plan.VectorRegs

	if plan.Hidden != nil {
		f.hidden = make([]byte, plan.Return.Class.Size)
		addr := make([]byte, plan.Target.PointerSize())
		putAddr(addr, hiddenAddr)
		if err := f.store(plan.Hidden.Locs, addr); err != nil {
			return nil, fmt.Errorf("hidden return pointer: %w", err)
		}
	}

	for i, pl := range plan.Args {
		v, err := c.Codec.Convert(args[i], pl.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		if err := f.store(pl.Locs, v.Bytes); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
	}
	return f, nil
}

// Result reads the return value after the callee has executed Return.
func (c *Caller) Result(plan abi.CallPlan, f *Frame) (Value, error) {
	rp := plan.Return
	switch rp.Kind {
	case abi.ReturnVoid:
		return Value{Type: rp.Type}, nil
	case abi.ReturnX87:
		return c.Codec.Float(rp.Type, f.X87)
	case abi.ReturnByHiddenPointer:
		if readAddr(f.RetInt[0]) != hiddenAddr {
			return Value{}, fmt.Errorf("callee did not return the hidden buffer address")
		}
		return Value{Type: rp.Type, Bytes: append([]byte(nil), f.hidden...)}, nil
	}
	out, err := c.Codec.Zero(rp.Type)
	if err != nil {
		return Value{}, err
	}
	for _, loc := range rp.Locs {
		reg := f.RetInt[loc.Index]
		if loc.Kind == abi.LocFloatReg {
			reg = f.RetFloat[loc.Index]
		}
		copy(out.Bytes[loc.Part:loc.Part+loc.Size], reg)
	}
	return out, nil
}

// store scatters the value image b over locs.
func (f *Frame) store(locs []abi.Location, b []byte) error {
	for _, loc := range locs {
		piece := b[loc.Part : loc.Part+loc.Size]
		switch loc.Kind {
		case abi.LocIntReg:
			copy(f.IntArgs[loc.Index], piece)
		case abi.LocFloatReg:
			copy(f.FloatArgs[loc.Index], piece)
		case abi.LocStack:
			dst, err := window(f.Stack, loc.Offset, loc.Size)
			if err != nil {
				return err
			}
			copy(dst, piece)
		default:
			return fmt.Errorf("cannot pass an argument in %s", loc)
		}
	}
	return nil
}

// load gathers a value image of size bytes from locs.
func (f *Frame) load(locs []abi.Location, size int64) ([]byte, error) {
	out := make([]byte, size)
	for _, loc := range locs {
		dst := out[loc.Part : loc.Part+loc.Size]
		switch loc.Kind {
		case abi.LocIntReg:
			copy(dst, f.IntArgs[loc.Index])
		case abi.LocFloatReg:
			copy(dst, f.FloatArgs[loc.Index])
		case abi.LocStack:
			src, err := window(f.Stack, loc.Offset, loc.Size)
			if err != nil {
				return nil, err
			}
			copy(dst, src)
		default:
			return nil, fmt.Errorf("cannot receive an argument in %s", loc)
		}
	}
	return out, nil
}

// window returns b[off:off+size] or an error when it falls outside b.
func window(b []byte, off, size int64) ([]byte, error) {
	lo, err := safecast.Conv[int](off)
	if err != nil {
		return nil, err
	}
	n, err := safecast.Conv[int](size)
	if err != nil {
		return nil, err
	}
	if lo < 0 || n < 0 || lo+n > len(b) {
		return nil, fmt.Errorf("access [%d,%d) outside a %d-byte area", lo, lo+n, len(b))
	}
	return b[lo : lo+n], nil
}

func putAddr(b []byte, addr uint64) {
	if len(b) >= 8 {
		binary.LittleEndian.PutUint64(b, addr)
		return
	}
	binary.LittleEndian.PutUint32(b, uint32(addr))
}

func readAddr(b []byte) uint64 {
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:])
}

// Callee receives arguments and produces results.
type Callee struct {
	Codec      *Codec
	Classifier *abi.Classifier
}

// Activation is one executing call as the callee sees it.
type Activation struct {
	entry  abi.EntryPlan
	frame  *Frame
	params []Value
	save   []byte
	cursor *varargs.Cursor
	codec  *Codec
}

// Load reads the named parameters described by entry out of f and, for a
// variadic function, performs va_start.
func (c *Callee) Load(entry abi.EntryPlan, f *Frame) (*Activation, error) {
	act := &Activation{entry: entry, frame: f, codec: c.Codec}
	if entry.Hidden != nil {
		addr, err := f.load(entry.Hidden.Locs, entry.Hidden.Class.Size)
		if err != nil {
			return nil, fmt.Errorf("hidden return pointer: %w", err)
		}
		if readAddr(addr) != hiddenAddr {
			return nil, fmt.Errorf("hidden return pointer does not point at the caller's buffer")
		}
	}
	for i, pl := range entry.Params {
		b, err := f.load(pl.Locs, pl.Class.Size)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i+1, err)
		}
		act.params = append(act.params, Value{Type: pl.Type, Bytes: b})
	}
	if entry.Variadic {
		act.save = c.SaveArea(entry, f)
		cur, err := varargs.NewCursor(c.Classifier, entry)
		if err != nil {
			return nil, err
		}
		act.cursor = cur
	}
	return act, nil
}

// SaveArea spills the argument registers into a register-save area laid out
// per entry.SaveArea. Nil when the target has none.
func (c *Callee) SaveArea(entry abi.EntryPlan, f *Frame) []byte {
	sa := entry.SaveArea
	if sa.Size == 0 {
		return nil
	}
	buf := make([]byte, sa.Size)
	for i, reg := range f.IntArgs {
		copy(buf[sa.GPBase+int64(i)*sa.GPSlot:], reg)
	}
	for i, reg := range f.FloatArgs {
		copy(buf[sa.FPBase+int64(i)*sa.FPSlot:], reg)
	}
	return buf
}

// Param returns named parameter i.
func (a *Activation) Param(i int) Value { return a.params[i] }

// Params returns every named parameter.
func (a *Activation) Params() []Value { return a.params }

// Cursor exposes the va_list state; nil for non-variadic functions.
func (a *Activation) Cursor() *varargs.Cursor { return a.cursor }

// VaArg performs va_arg(ap, t). The value comes back in its promoted type.
func (a *Activation) VaArg(t types.TypeID) (Value, error) {
	if a.cursor == nil {
		return Value{}, fmt.Errorf("va_arg in a function without variadic parameters")
	}
	fetch, err := a.cursor.Next(t)
	if err != nil {
		return Value{}, err
	}
	out := make([]byte, fetch.Size)
	for _, p := range fetch.Pieces {
		area := a.frame.Stack
		if p.Source != varargs.FromOverflow {
			area = a.save
		}
		src, err := window(area, p.Offset, p.Size)
		if err != nil {
			return Value{}, fmt.Errorf("va_arg(%s): %w", a.codec.Types.TypeString(t), err)
		}
		copy(out[p.Part:p.Part+p.Size], src)
	}
	return Value{Type: fetch.Type, Bytes: out}, nil
}

// Return stores v as the function result.
func (a *Activation) Return(v Value) error {
	rp := a.entry.Return
	if rp.Kind == abi.ReturnVoid {
		return nil
	}
	v, err := a.codec.Convert(v, rp.Type)
	if err != nil {
		return fmt.Errorf("return: %w", err)
	}
	f := a.frame
	switch rp.Kind {
	case abi.ReturnX87:
		x, err := a.codec.AsFloat(v)
		if err != nil {
			return err
		}
		f.X87 = x
	case abi.ReturnByHiddenPointer:
		copy(f.hidden, v.Bytes)
		putAddr(f.RetInt[0], hiddenAddr)
	case abi.ReturnByRegisters:
		for _, loc := range rp.Locs {
			reg := f.RetInt[loc.Index]
			if loc.Kind == abi.LocFloatReg {
				reg = f.RetFloat[loc.Index]
			}
			clear(reg)
			copy(reg, v.Bytes[loc.Part:loc.Part+loc.Size])
		}
	}
	return nil
}
