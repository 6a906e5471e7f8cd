package report

import "cabi/internal/diagfmt"

// Report is the machine-readable result of analysing one description for
// every selected target. It is the hand-off format for code generators.
type Report struct {
	Tool    string   `json:"tool" msgpack:"tool"`
	Version string   `json:"version" msgpack:"version"`
	Source  string   `json:"source" msgpack:"source"`
	Targets []Target `json:"targets" msgpack:"targets"`
}

type Target struct {
	Triple      string                   `json:"triple" msgpack:"triple"`
	Arch        string                   `json:"arch" msgpack:"arch"`
	WordBits    int                      `json:"word_bits" msgpack:"word_bits"`
	Records     []Record                 `json:"records,omitempty" msgpack:"records,omitempty"`
	Typedefs    []Typedef                `json:"typedefs,omitempty" msgpack:"typedefs,omitempty"`
	Enums       []Enum                   `json:"enums,omitempty" msgpack:"enums,omitempty"`
	Functions   []Function               `json:"functions,omitempty" msgpack:"functions,omitempty"`
	Calls       []Call                   `json:"calls,omitempty" msgpack:"calls,omitempty"`
	Consts      []Const                  `json:"consts,omitempty" msgpack:"consts,omitempty"`
	Diagnostics []diagfmt.DiagnosticJSON `json:"diagnostics,omitempty" msgpack:"diagnostics,omitempty"`
}

// Record is the layout and classification of a struct or union.
type Record struct {
	Kind     string  `json:"kind" msgpack:"kind"`
	Name     string  `json:"name" msgpack:"name"`
	Size     int64   `json:"size" msgpack:"size"`
	Align    int64   `json:"align" msgpack:"align"`
	Fields   []Field `json:"fields,omitempty" msgpack:"fields,omitempty"`
	Class    string  `json:"class,omitempty" msgpack:"class,omitempty"`
	Return   string  `json:"return,omitempty" msgpack:"return,omitempty"`
	Complete bool    `json:"complete" msgpack:"complete"`
	Error    string  `json:"error,omitempty" msgpack:"error,omitempty"`
}

type Field struct {
	Name   string `json:"name" msgpack:"name"`
	Type   string `json:"type" msgpack:"type"`
	Offset int64  `json:"offset" msgpack:"offset"`
	Size   int64  `json:"size" msgpack:"size"`
	Align  int64  `json:"align" msgpack:"align"`
}

type Typedef struct {
	Name  string `json:"name" msgpack:"name"`
	Type  string `json:"type" msgpack:"type"`
	Size  int64  `json:"size" msgpack:"size"`
	Align int64  `json:"align" msgpack:"align"`
	Class string `json:"class,omitempty" msgpack:"class,omitempty"`
	Error string `json:"error,omitempty" msgpack:"error,omitempty"`
}

type Enum struct {
	Name        string       `json:"name" msgpack:"name"`
	Enumerators []Enumerator `json:"enumerators" msgpack:"enumerators"`
}

type Enumerator struct {
	Name  string `json:"name" msgpack:"name"`
	Value int64  `json:"value" msgpack:"value"`
}

// Function is a declared prototype: the plan of a call passing only the
// named parameters, and for variadic functions the state at entry.
type Function struct {
	Name      string `json:"name" msgpack:"name"`
	Signature string `json:"signature" msgpack:"signature"`
	Plan      *Plan  `json:"plan,omitempty" msgpack:"plan,omitempty"`
	Entry     *Entry `json:"entry,omitempty" msgpack:"entry,omitempty"`
	Error     string `json:"error,omitempty" msgpack:"error,omitempty"`
}

type Call struct {
	Function string   `json:"function" msgpack:"function"`
	Args     []string `json:"args" msgpack:"args"`
	Plan     *Plan    `json:"plan,omitempty" msgpack:"plan,omitempty"`
	Verified bool     `json:"verified,omitempty" msgpack:"verified,omitempty"`
	Error    string   `json:"error,omitempty" msgpack:"error,omitempty"`
}

type Plan struct {
	Hidden     *Arg   `json:"hidden,omitempty" msgpack:"hidden,omitempty"`
	Args       []Arg  `json:"args" msgpack:"args"`
	Return     Return `json:"return" msgpack:"return"`
	IntRegs    int    `json:"int_regs" msgpack:"int_regs"`
	FloatRegs  int    `json:"float_regs" msgpack:"float_regs"`
	StackSize  int64  `json:"stack_size" msgpack:"stack_size"`
	VectorRegs int    `json:"vector_regs" msgpack:"vector_regs"` // %al; -1 when not variadic
}

type Arg struct {
	Index    int      `json:"index" msgpack:"index"`
	Type     string   `json:"type" msgpack:"type"`
	Class    string   `json:"class" msgpack:"class"`
	Variadic bool     `json:"variadic,omitempty" msgpack:"variadic,omitempty"`
	Locs     []string `json:"locs" msgpack:"locs"`
}

type Return struct {
	Type string   `json:"type" msgpack:"type"`
	Kind string   `json:"kind" msgpack:"kind"`
	Locs []string `json:"locs,omitempty" msgpack:"locs,omitempty"`
}

// Entry describes the varargs state at entry of a variadic function.
type Entry struct {
	GPOffset       int64 `json:"gp_offset" msgpack:"gp_offset"`
	FPOffset       int64 `json:"fp_offset" msgpack:"fp_offset"`
	OverflowOffset int64 `json:"overflow_offset" msgpack:"overflow_offset"`
	SaveAreaSize   int64 `json:"save_area_size" msgpack:"save_area_size"`
}

type Const struct {
	Name  string `json:"name" msgpack:"name"`
	Expr  string `json:"expr" msgpack:"expr"`
	Value string `json:"value,omitempty" msgpack:"value,omitempty"`
	Type  string `json:"type,omitempty" msgpack:"type,omitempty"`
	Error string `json:"error,omitempty" msgpack:"error,omitempty"`
}
