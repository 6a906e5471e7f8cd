package driver

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"

	"cabi/internal/diag"
	"cabi/internal/source"
)

// Description is a decoded ABI description file.
type Description struct {
	Target    TargetSection `toml:"target"`
	Structs   []RecordDesc  `toml:"struct"`
	Unions    []RecordDesc  `toml:"union"`
	Typedefs  []TypedefDesc `toml:"typedef"`
	Enums     []EnumDesc    `toml:"enum"`
	Functions []FuncDesc    `toml:"function"`
	Calls     []CallDesc    `toml:"call"`
	Consts    []ConstDesc   `toml:"const"`

	order []item
}

type TargetSection struct {
	Select           []string `toml:"select"`
	MaxArgStackBytes int64    `toml:"max_arg_stack_bytes"`

	selectSpans []source.Span
}

// RecordDesc is a [[struct]] or [[union]] table. Fields is nil for a
// forward declaration.
type RecordDesc struct {
	Name   string       `toml:"name"`
	Fields *[]FieldDesc `toml:"fields"`

	span source.Span
}

type FieldDesc struct {
	Name string `toml:"name"`
	Type string `toml:"type"`

	span source.Span
}

type TypedefDesc struct {
	Name string `toml:"name"`
	Type string `toml:"type"`

	span, typeSpan source.Span
}

type EnumDesc struct {
	Name        string           `toml:"name"`
	Enumerators []EnumeratorDesc `toml:"enumerators"`

	span source.Span
}

type EnumeratorDesc struct {
	Name  string `toml:"name"`
	Value string `toml:"value"`

	span, valueSpan source.Span
}

type FuncDesc struct {
	Name     string   `toml:"name"`
	Result   string   `toml:"result"`
	Params   []string `toml:"params"`
	Variadic bool     `toml:"variadic"`

	span source.Span
}

type CallDesc struct {
	Function string   `toml:"function"`
	Args     []string `toml:"args"`

	span     source.Span
	argSpans []source.Span
}

// ConstDesc names a constant expression to fold on every target.
type ConstDesc struct {
	Name string `toml:"name"`
	Expr string `toml:"expr"`

	span, exprSpan source.Span
}

type itemKind uint8

const (
	itemStruct itemKind = iota
	itemUnion
	itemTypedef
	itemEnum
	itemFunction
	itemCall
	itemConst
)

var itemHeaders = [...]string{
	itemStruct:   "[[struct]]",
	itemUnion:    "[[union]]",
	itemTypedef:  "[[typedef]]",
	itemEnum:     "[[enum]]",
	itemFunction: "[[function]]",
	itemCall:     "[[call]]",
	itemConst:    "[[const]]",
}

// item is one declaration in file order.
type item struct {
	kind  itemKind
	index int
	span  source.Span // the [[header]]
	end   uint32      // start of the next header or end of file
}

// decodeDescription parses f into a Description. Syntax errors and
// structural problems are reported to r; the returned description is
// nil only when the TOML itself cannot be decoded.
func decodeDescription(f *source.File, r diag.Reporter) *Description {
	var desc Description
	meta, err := toml.Decode(string(f.Content), &desc)
	if err != nil {
		diag.ReportError(r, diag.DscInvalid, tomlErrorSpan(f, err), "invalid ABI description: "+err.Error()).Emit()
		return nil
	}
	for _, key := range meta.Undecoded() {
		sp, _ := f.Find(key[len(key)-1], 0)
		diag.ReportWarning(r, diag.DscInvalid, sp, fmt.Sprintf("unknown key %q", key.String())).Emit()
	}
	desc.locate(f)
	desc.validate(r)
	return &desc
}

func tomlErrorSpan(f *source.File, err error) source.Span {
	var perr toml.ParseError
	if !errors.As(err, &perr) {
		return source.Span{File: f.ID}
	}
	start, err := safecast.Conv[uint32](min(max(perr.Position.Start, 0), len(f.Content)))
	if err != nil {
		return source.Span{File: f.ID}
	}
	n, err := safecast.Conv[uint32](max(perr.Position.Len, 1))
	if err != nil {
		n = 1
	}
	if int(start)+int(n) > len(f.Content) {
		n = 0
	}
	return source.Span{File: f.ID, Start: start, End: start + n}
}

// locate assigns spans by matching each [[header]] occurrence to the table
// decoded from it. Tables written inline rather than as [[header]] sections
// fall back to the start of the file.
func (d *Description) locate(f *source.File) {
	counts := [...]int{
		itemStruct:   len(d.Structs),
		itemUnion:    len(d.Unions),
		itemTypedef:  len(d.Typedefs),
		itemEnum:     len(d.Enums),
		itemFunction: len(d.Functions),
		itemCall:     len(d.Calls),
		itemConst:    len(d.Consts),
	}
	fileEnd, err := safecast.Conv[uint32](len(f.Content))
	if err != nil {
		fileEnd = math.MaxUint32
	}
	d.order = d.order[:0]
	for kind, n := range counts {
		from := uint32(0)
		for i := range n {
			sp, ok := f.Find(itemHeaders[kind], from)
			if ok {
				from = sp.End
			} else {
				sp = source.Span{File: f.ID}
			}
			d.order = append(d.order, item{kind: itemKind(kind), index: i, span: sp})
		}
	}
	sort.SliceStable(d.order, func(i, j int) bool { return d.order[i].span.Start < d.order[j].span.Start })
	for i := range d.order {
		d.order[i].end = fileEnd
		for j := i + 1; j < len(d.order); j++ {
			if d.order[j].span.Start > d.order[i].span.Start {
				d.order[i].end = d.order[j].span.Start
				break
			}
		}
	}

	d.Target.selectSpans = make([]source.Span, len(d.Target.Select))
	if sp, ok := f.Find("[target]", 0); ok {
		from := sp.End
		for i, sel := range d.Target.Select {
			d.Target.selectSpans[i], from, _ = findLit(f, sel, from, fileEnd, sp)
		}
	}

	for _, it := range d.order {
		c := cursor{f: f, from: it.span.End, end: it.end, fallback: it.span}
		switch it.kind {
		case itemStruct, itemUnion:
			r := d.record(it)
			r.span = c.name(r.Name)
			if r.Fields != nil {
				for i := range *r.Fields {
					fd := &(*r.Fields)[i]
					c.next(fd.Name)
					fd.span = c.text(fd.Type)
				}
			}
		case itemTypedef:
			td := &d.Typedefs[it.index]
			td.span = c.name(td.Name)
			td.typeSpan = c.text(td.Type)
		case itemEnum:
			en := &d.Enums[it.index]
			en.span = c.name(en.Name)
			for i := range en.Enumerators {
				e := &en.Enumerators[i]
				e.span = c.next(e.Name)
				e.valueSpan = e.span
				if e.Value != "" {
					e.valueSpan = c.text(e.Value)
				}
			}
		case itemFunction:
			fn := &d.Functions[it.index]
			fn.span = c.name(fn.Name)
		case itemCall:
			call := &d.Calls[it.index]
			call.span = c.name(call.Function)
			call.argSpans = make([]source.Span, len(call.Args))
			for i, a := range call.Args {
				call.argSpans[i] = c.text(a)
			}
		case itemConst:
			cd := &d.Consts[it.index]
			cd.span = c.name(cd.Name)
			cd.exprSpan = c.text(cd.Expr)
		}
	}
}

func (d *Description) record(it item) *RecordDesc {
	if it.kind == itemUnion {
		return &d.Unions[it.index]
	}
	return &d.Structs[it.index]
}

// cursor searches string literals inside one table, left to right.
type cursor struct {
	f        *source.File
	from     uint32
	end      uint32
	fallback source.Span
}

func (c *cursor) name(text string) source.Span {
	sp, _, _ := findLit(c.f, text, c.from, c.end, c.fallback)
	return sp
}

func (c *cursor) next(text string) source.Span {
	sp, from, _ := findLit(c.f, text, c.from, c.end, c.fallback)
	c.from = from
	return sp
}

// text is next for strings holding C source: the span excludes the quotes
// so expression offsets line up with the string contents.
func (c *cursor) text(src string) source.Span {
	sp, from, ok := findLit(c.f, src, c.from, c.end, c.fallback)
	c.from = from
	if !ok {
		return sp
	}
	return source.Span{File: sp.File, Start: sp.Start + 1, End: sp.End - 1}
}

// findLit locates text written as a basic or literal TOML string between
// from and end, returning its span and the offset after it.
func findLit(f *source.File, text string, from, end uint32, fallback source.Span) (source.Span, uint32, bool) {
	if text == "" {
		return fallback, from, false
	}
	for _, quoted := range []string{strconv.Quote(text), "'" + text + "'"} {
		if sp, ok := f.Find(quoted, from); ok && sp.End <= end {
			return sp, sp.End, true
		}
	}
	return fallback, from, false
}

func (d *Description) validate(r diag.Reporter) {
	missing := func(sp source.Span, what string) {
		diag.ReportError(r, diag.DscInvalid, sp, "invalid ABI description: "+what).Emit()
	}
	for _, it := range d.order {
		switch it.kind {
		case itemStruct, itemUnion:
			r := d.record(it)
			if strings.TrimSpace(r.Name) == "" {
				missing(it.span, itemHeaders[it.kind]+" without name")
			}
			if r.Fields != nil {
				for _, f := range *r.Fields {
					if f.Name == "" || f.Type == "" {
						missing(f.span, "member of "+r.Name+" needs name and type")
					}
				}
			}
		case itemTypedef:
			if td := d.Typedefs[it.index]; td.Name == "" || td.Type == "" {
				missing(it.span, "[[typedef]] needs name and type")
			}
		case itemEnum:
			for _, e := range d.Enums[it.index].Enumerators {
				if e.Name == "" {
					missing(e.span, "enumerator without name")
				}
			}
		case itemFunction:
			if d.Functions[it.index].Name == "" {
				missing(it.span, "[[function]] without name")
			}
		case itemCall:
			if d.Calls[it.index].Function == "" {
				missing(it.span, "[[call]] without function")
			}
		case itemConst:
			if c := d.Consts[it.index]; c.Name == "" || c.Expr == "" {
				missing(it.span, "[[const]] needs name and expr")
			}
		}
	}
}
