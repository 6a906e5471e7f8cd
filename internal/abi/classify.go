package abi

import (
	"fmt"
	"strings"

	"cabi/internal/layout"
	"cabi/internal/target"
	"cabi/internal/types"
)

// ReturnKind is how a value comes back from a call.
type ReturnKind uint8

const (
	ReturnVoid ReturnKind = iota
	ReturnByRegisters
	ReturnByHiddenPointer
	ReturnX87 // x87 st(0)
)

func (k ReturnKind) String() string {
	switch k {
	case ReturnVoid:
		return "void"
	case ReturnByRegisters:
		return "registers"
	case ReturnByHiddenPointer:
		return "hidden-pointer"
	case ReturnX87:
		return "x87"
	default:
		return fmt.Sprintf("ReturnKind(%d)", k)
	}
}

// PassKind is how a value is passed as an argument.
type PassKind uint8

const (
	PassInRegisters PassKind = iota
	PassInMemory
)

func (k PassKind) String() string {
	if k == PassInMemory {
		return "memory"
	}
	return "registers"
}

// Classification is the verdict for one type.
type Classification struct {
	Type    types.TypeID
	Size    int64
	Align   int64
	Classes []ParamClass
	Pass    PassKind
	Return  ReturnKind
}

// ClassString renders Classes as "INTEGER,FLOAT".
func (c Classification) ClassString() string {
	parts := make([]string, len(c.Classes))
	for i, cl := range c.Classes {
		parts[i] = cl.String()
	}
	return strings.Join(parts, ",")
}

// IntRegs counts the integer registers needed to pass the value.
func (c Classification) IntRegs() int { return c.count(ClassInteger) }

// FloatRegs counts the float registers needed to pass the value.
func (c Classification) FloatRegs() int { return c.count(ClassFloat) }

func (c Classification) count(want ParamClass) int {
	if c.Pass != PassInRegisters {
		return 0
	}
	n := 0
	for _, cl := range c.Classes {
		if cl == want {
			n++
		}
	}
	return n
}

// Classifier classifies types for one target. It shares the layout engine's
// cache and is therefore not safe for concurrent use either.
type Classifier struct {
	Target target.Descriptor
	Types  *types.Interner
	Layout *layout.LayoutEngine
}

// NewClassifier builds a classifier on top of engine.
func NewClassifier(engine *layout.LayoutEngine) *Classifier {
	return &Classifier{
		Target: engine.Target,
		Types:  engine.Types,
		Layout: engine,
	}
}

// Classify returns the passing and return verdict for t. Incomplete types
// fail with the layout engine's *layout.LayoutError.
func (c *Classifier) Classify(t types.TypeID) (Classification, error) {
	kind := c.Types.KindOf(t)
	if kind == types.KindVoid {
		return Classification{Type: t, Align: 1, Return: ReturnVoid}, nil
	}
	l, err := c.Layout.LayoutOf(t)
	if err != nil {
		return Classification{}, err
	}
	cls := Classification{Type: t, Size: l.Size, Align: l.Align}
	if c.Target.Is64() {
		c.classify64(&cls, kind)
	} else {
		c.classify32(&cls, kind)
	}
	return cls, nil
}

func (c *Classifier) classify32(cls *Classification, kind types.Kind) {
	cls.Classes = []ParamClass{ClassStack}
	cls.Pass = PassInMemory
	switch {
	case kind.IsFloat():
		cls.Return = ReturnX87
	case kind.IsScalar():
		cls.Return = ReturnByRegisters
	default:
		cls.Return = ReturnByHiddenPointer
	}
}

func (c *Classifier) classify64(cls *Classification, kind types.Kind) {
	switch {
	case kind == types.KindLongDouble:
		cls.Classes = []ParamClass{ClassMemory, ClassMemory}
		cls.Pass = PassInMemory
		cls.Return = ReturnX87
		return
	case kind.IsFloat():
		cls.Classes = []ParamClass{ClassFloat}
	case kind.IsScalar():
		cls.Classes = []ParamClass{ClassInteger}
	case cls.Size > 2*eightbyte:
		cls.Classes = make([]ParamClass, (cls.Size+eightbyte-1)/eightbyte)
		for i := range cls.Classes {
			cls.Classes[i] = ClassMemory
		}
	default:
		eb := newEightbytes(cls.Size)
		c.walk(eb, cls.Type, 0)
		cls.Classes = eb.finish()
	}

	if len(cls.Classes) > 0 && cls.Classes[0] == ClassMemory {
		cls.Pass = PassInMemory
		cls.Return = ReturnByHiddenPointer
		return
	}
	cls.Pass = PassInRegisters
	cls.Return = ReturnByRegisters
}

// walk classifies every scalar leaf of t placed at off.
func (c *Classifier) walk(eb *eightbytes, t types.TypeID, off int64) {
	tt, ok := c.Types.Lookup(t)
	if !ok {
		return
	}
	l, err := c.Layout.LayoutOf(t)
	if err != nil {
		return
	}
	switch {
	case tt.Kind == types.KindLongDouble:
		eb.add(off, l.Size, l.Align, ClassMemory)
	case tt.Kind.IsFloat():
		eb.add(off, l.Size, l.Align, ClassFloat)
	case tt.Kind.IsScalar():
		eb.add(off, l.Size, l.Align, ClassInteger)
	case tt.Kind == types.KindArray:
		elem, err := c.Layout.LayoutOf(tt.Elem)
		if err != nil || elem.Size == 0 {
			return
		}
		for i := int64(0); i < tt.Len; i++ {
			c.walk(eb, tt.Elem, off+i*elem.Size)
		}
	case tt.Kind.IsRecord():
		for _, f := range l.Fields {
			c.walk(eb, f.Type, off+f.Offset)
		}
	}
}

func (c *Classifier) voidError(t types.TypeID) error {
	return &layout.LayoutError{Kind: layout.LayoutErrIncompleteType, Type: t, Name: c.Types.TypeString(t)}
}
