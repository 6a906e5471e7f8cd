package target

import (
	"fmt"
	"strings"

	"fortio.org/safecast"
)

// Arch identifies one of the supported architectures.
type Arch uint8

const (
	ArchInvalid Arch = iota
	ArchI386
	ArchX86_64
)

func (a Arch) String() string {
	switch a {
	case ArchI386:
		return "i386"
	case ArchX86_64:
		return "x86_64"
	default:
		return "invalid"
	}
}

// Scalar indexes the descriptor's size/alignment table.
type Scalar uint8

const (
	Char Scalar = iota
	Short
	Int
	Long
	LongLong
	Float
	Double
	LongDouble
	Pointer
	Enum
	scalarCount
)

var scalarNames = [scalarCount]string{
	Char:       "char",
	Short:      "short",
	Int:        "int",
	Long:       "long",
	LongLong:   "long long",
	Float:      "float",
	Double:     "double",
	LongDouble: "long double",
	Pointer:    "pointer",
	Enum:       "enum",
}

func (s Scalar) String() string {
	if s < scalarCount {
		return scalarNames[s]
	}
	return fmt.Sprintf("Scalar(%d)", s)
}

// Scalars lists every table entry in display order.
func Scalars() []Scalar {
	out := make([]Scalar, 0, scalarCount)
	for s := Char; s < scalarCount; s++ {
		out = append(out, s)
	}
	return out
}

// ID identifies a descriptor's full contents; equal IDs mean equal layouts.
type ID string

// Descriptor is the immutable table of target properties.
type Descriptor struct {
	arch     Arch
	triple   string
	wordBits int
	sizes    [scalarCount]int64
	aligns   [scalarCount]int64

	intArgRegs     int
	floatArgRegs   int
	stackSlotAlign int64

	// maxArgStackBytes caps the outgoing argument area; 0 means unbounded.
	maxArgStackBytes int64
}

// Size/align tables are indexed by Scalar:
// char short int long llong float double ldouble ptr enum.
var (
	i386 = Descriptor{
		arch:           ArchI386,
		triple:         "i386-linux-gnu",
		wordBits:       32,
		sizes:          [scalarCount]int64{1, 2, 4, 4, 8, 4, 8, 12, 4, 4},
		aligns:         [scalarCount]int64{1, 2, 4, 4, 4, 4, 4, 4, 4, 4},
		stackSlotAlign: 4,
	}
	x86_64 = Descriptor{
		arch:           ArchX86_64,
		triple:         "x86_64-linux-gnu",
		wordBits:       64,
		sizes:          [scalarCount]int64{1, 2, 4, 8, 8, 4, 8, 16, 8, 4},
		aligns:         [scalarCount]int64{1, 2, 4, 8, 8, 4, 8, 16, 8, 4},
		intArgRegs:     6,
		floatArgRegs:   8,
		stackSlotAlign: 8,
	}
)

// I386 returns the 32-bit SysV descriptor.
func I386() Descriptor { return i386 }

// X86_64 returns the 64-bit SysV descriptor.
func X86_64() Descriptor { return x86_64 }

// All returns every supported descriptor, 32-bit first.
func All() []Descriptor { return []Descriptor{i386, x86_64} }

var selectors = map[string]Arch{
	"i386":           ArchI386,
	"i486":           ArchI386,
	"i586":           ArchI386,
	"i686":           ArchI386,
	"x86":            ArchI386,
	"ia32":           ArchI386,
	"32":             ArchI386,
	"i386-linux-gnu": ArchI386,
	"i686-linux-gnu": ArchI386,

	"x86_64":           ArchX86_64,
	"x86-64":           ArchX86_64,
	"amd64":            ArchX86_64,
	"x64":              ArchX86_64,
	"64":               ArchX86_64,
	"x86_64-linux-gnu": ArchX86_64,
}

// Select builds the descriptor named by selector.
func Select(selector string) (Descriptor, error) {
	switch selectors[strings.ToLower(strings.TrimSpace(selector))] {
	case ArchI386:
		return i386, nil
	case ArchX86_64:
		return x86_64, nil
	default:
		return Descriptor{}, &Error{Kind: ErrUnsupportedTarget, Selector: selector}
	}
}

// WithArgStackLimit returns a copy that rejects calls whose outgoing argument
// area exceeds n bytes. n <= 0 removes the limit.
func (d Descriptor) WithArgStackLimit(n int64) Descriptor {
	if n < 0 {
		n = 0
	}
	d.maxArgStackBytes = n
	return d
}

func (d Descriptor) Arch() Arch        { return d.arch }
func (d Descriptor) Triple() string    { return d.triple }
func (d Descriptor) WordBits() int     { return d.wordBits }
func (d Descriptor) Is64() bool        { return d.arch == ArchX86_64 }
func (d Descriptor) IntArgRegs() int   { return d.intArgRegs }
func (d Descriptor) FloatArgRegs() int { return d.floatArgRegs }

// StackSlotAlign is the alignment of every outgoing stack argument slot.
func (d Descriptor) StackSlotAlign() int64 { return d.stackSlotAlign }

// MaxArgStackBytes is the outgoing argument area ceiling, 0 if unbounded.
func (d Descriptor) MaxArgStackBytes() int64 { return d.maxArgStackBytes }

// Size returns the size in bytes of a scalar.
func (d Descriptor) Size(s Scalar) int64 {
	if s >= scalarCount {
		return 0
	}
	return d.sizes[s]
}

// Align returns the alignment in bytes of a scalar.
func (d Descriptor) Align(s Scalar) int64 {
	if s >= scalarCount {
		return 0
	}
	return d.aligns[s]
}

// Bits returns the width in bits of an integer scalar.
func (d Descriptor) Bits(s Scalar) uint {
	n, err := safecast.Conv[uint](d.Size(s))
	if err != nil {
		panic(fmt.Errorf("scalar %s size overflow: %w", s, err))
	}
	return n * 8
}

func (d Descriptor) PointerSize() int64  { return d.sizes[Pointer] }
func (d Descriptor) PointerAlign() int64 { return d.aligns[Pointer] }

// ID returns a key that distinguishes descriptors with different contents.
func (d Descriptor) ID() ID {
	if d.maxArgStackBytes == 0 {
		return ID(d.triple)
	}
	return ID(fmt.Sprintf("%s+maxargs=%d", d.triple, d.maxArgStackBytes))
}

func (d Descriptor) String() string {
	if d.arch == ArchInvalid {
		return "<no target>"
	}
	return d.triple
}
