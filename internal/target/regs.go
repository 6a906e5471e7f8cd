package target

import "fmt"

var (
	x86_64IntArg    = [...]string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
	x86_64IntReturn = [...]string{"rax", "rdx"}
	i386IntReturn   = [...]string{"eax", "edx"}
)

// X87Return names the x87 stack top used for long double returns.
const X87Return = "st(0)"

// RegSaveAreaSize is the size of the x86_64 va_start register-save area:
// every integer argument register (8 bytes each) followed by every float
// argument register (16 bytes each). Zero on i386.
func (d Descriptor) RegSaveAreaSize() int64 {
	return int64(d.intArgRegs)*8 + int64(d.floatArgRegs)*16
}

// IntArgReg names integer argument register i.
func (d Descriptor) IntArgReg(i int) string {
	if d.arch == ArchX86_64 && i >= 0 && i < len(x86_64IntArg) {
		return x86_64IntArg[i]
	}
	return fmt.Sprintf("int%d", i)
}

// FloatArgReg names float argument register i.
func (d Descriptor) FloatArgReg(i int) string {
	if d.arch == ArchX86_64 && i >= 0 && i < d.floatArgRegs {
		return fmt.Sprintf("xmm%d", i)
	}
	return fmt.Sprintf("float%d", i)
}

// IntReturnReg names integer return register i (0 or 1).
func (d Descriptor) IntReturnReg(i int) string {
	switch {
	case i < 0 || i > 1:
		return fmt.Sprintf("ret%d", i)
	case d.arch == ArchX86_64:
		return x86_64IntReturn[i]
	default:
		return i386IntReturn[i]
	}
}

// FloatReturnReg names float return register i. i386 returns floating
// values on the x87 stack.
func (d Descriptor) FloatReturnReg(i int) string {
	if d.arch == ArchX86_64 {
		return fmt.Sprintf("xmm%d", i)
	}
	return X87Return
}
