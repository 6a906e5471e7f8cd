package abi

import "fmt"

// ParamClass is the class of one eightbyte (x86_64) or of a whole value
// (i386, always ClassStack).
type ParamClass uint8

const (
	ClassNone ParamClass = iota
	ClassInteger
	ClassFloat
	ClassMemory
	ClassStack
)

func (c ParamClass) String() string {
	switch c {
	case ClassNone:
		return "NONE"
	case ClassInteger:
		return "INTEGER"
	case ClassFloat:
		return "FLOAT"
	case ClassMemory:
		return "MEMORY"
	case ClassStack:
		return "STACK"
	default:
		return fmt.Sprintf("ParamClass(%d)", c)
	}
}

// Merge combines the classes of two fields sharing an eightbyte:
// NONE is the identity, MEMORY dominates, INTEGER beats FLOAT.
func Merge(a, b ParamClass) ParamClass {
	switch {
	case a == b:
		return a
	case a == ClassNone:
		return b
	case b == ClassNone:
		return a
	case a == ClassMemory || b == ClassMemory:
		return ClassMemory
	case a == ClassStack || b == ClassStack:
		return ClassStack
	case a == ClassInteger || b == ClassInteger:
		return ClassInteger
	default:
		return ClassFloat
	}
}

const eightbyte = 8

// eightbytes accumulates field classes per 8-byte chunk of an aggregate.
type eightbytes struct {
	classes []ParamClass
}

func newEightbytes(size int64) *eightbytes {
	return &eightbytes{classes: make([]ParamClass, (size+eightbyte-1)/eightbyte)}
}

// add records a scalar of class c at [off, off+size).
func (e *eightbytes) add(off, size, align int64, c ParamClass) {
	if size == 0 {
		return
	}
	first, last := off/eightbyte, (off+size-1)/eightbyte
	if align > 0 && off%align != 0 {
		c = ClassMemory
	}
	if first != last && c != ClassMemory {
		// scalars never straddle eightbytes unless misplaced
		c = ClassMemory
	}
	for i := first; i <= last && int(i) < len(e.classes); i++ {
		e.classes[i] = Merge(e.classes[i], c)
	}
}

// finish applies the post-merge rule: any MEMORY eightbyte sends the whole
// aggregate to memory.
func (e *eightbytes) finish() []ParamClass {
	for _, c := range e.classes {
		if c == ClassMemory {
			for i := range e.classes {
				e.classes[i] = ClassMemory
			}
			break
		}
	}
	return e.classes
}
