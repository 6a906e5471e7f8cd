package report

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// PrettyOpts controls the text renderer.
type PrettyOpts struct {
	Color bool
}

type styles struct {
	color   bool
	target  lipgloss.Style
	section lipgloss.Style
	name    lipgloss.Style
	errText *color.Color
	diff    *color.Color
	dim     *color.Color
}

func newStyles(enabled bool) styles {
	s := styles{
		color:   enabled,
		target:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		section: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7")),
		name:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		errText: color.New(color.FgRed),
		diff:    color.New(color.FgYellow, color.Bold),
		dim:     color.New(color.Faint),
	}
	for _, c := range []*color.Color{s.errText, s.diff, s.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

func (s styles) render(st lipgloss.Style, text string) string {
	if !s.color {
		return text
	}
	return st.Render(text)
}

// Pretty prints every target of rep as sections of aligned tables.
func Pretty(w io.Writer, rep Report, opts PrettyOpts) error {
	st := newStyles(opts.Color)
	p := &printer{w: w, st: st}
	for i, tg := range rep.Targets {
		if i > 0 {
			p.line("")
		}
		p.line(st.render(st.target, fmt.Sprintf("%s (%d-bit)", tg.Triple, tg.WordBits)))
		p.records(tg.Records)
		p.typedefs(tg.Typedefs)
		p.enums(tg.Enums)
		p.functions(tg.Functions)
		p.calls(tg.Calls)
		p.consts(tg.Consts)
	}
	return p.err
}

// printer remembers the first write error so section code stays linear.
type printer struct {
	w   io.Writer
	st  styles
	err error
}

func (p *printer) line(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s+"\n")
	}
}

func (p *printer) table(t *table, indent string) {
	if p.err == nil {
		p.err = t.write(p.w, indent, nil)
	}
}

func (p *printer) section(name string) {
	p.line(p.st.render(p.st.section, name))
}

func (p *printer) fail(msg string) string {
	return p.st.errText.Sprint("error: " + msg)
}

func (p *printer) records(recs []Record) {
	if len(recs) == 0 {
		return
	}
	p.section("records")
	for _, r := range recs {
		head := &table{}
		name := r.Kind + " " + r.Name
		switch {
		case r.Error != "":
			head.add(name, p.fail(r.Error))
		case !r.Complete:
			head.add(name, p.st.dim.Sprint("incomplete"))
		default:
			head.add(name, fmt.Sprintf("size %d", r.Size), fmt.Sprintf("align %d", r.Align), orDash(r.Class), r.Return)
		}
		p.table(head, "  ")
		fields := &table{}
		for _, f := range r.Fields {
			fields.add(f.Name, f.Type, "@"+strconv.FormatInt(f.Offset, 10), fmt.Sprintf("size %d", f.Size))
		}
		p.table(fields, "    ")
	}
}

func (p *printer) typedefs(tds []Typedef) {
	if len(tds) == 0 {
		return
	}
	p.section("typedefs")
	t := &table{}
	for _, td := range tds {
		switch {
		case td.Error != "":
			t.add(td.Name, td.Type, p.fail(td.Error))
		case td.Size == 0:
			t.add(td.Name, td.Type, p.st.dim.Sprint("incomplete"))
		default:
			t.add(td.Name, td.Type, fmt.Sprintf("size %d", td.Size), fmt.Sprintf("align %d", td.Align), orDash(td.Class))
		}
	}
	p.table(t, "  ")
}

func (p *printer) enums(enums []Enum) {
	if len(enums) == 0 {
		return
	}
	p.section("enums")
	t := &table{}
	for _, e := range enums {
		vals := make([]string, len(e.Enumerators))
		for i, en := range e.Enumerators {
			vals[i] = fmt.Sprintf("%s=%d", en.Name, en.Value)
		}
		t.add("enum "+orDash(e.Name), strings.Join(vals, " "))
	}
	p.table(t, "  ")
}

func (p *printer) functions(fns []Function) {
	if len(fns) == 0 {
		return
	}
	p.section("functions")
	for _, fn := range fns {
		p.line("  " + p.st.render(p.st.name, fn.Name) + "  " + fn.Signature)
		if fn.Error != "" {
			p.line("    " + p.fail(fn.Error))
		}
		p.plan(fn.Plan)
		if e := fn.Entry; e != nil {
			p.line(fmt.Sprintf("    va_start: gp_offset %d, fp_offset %d, overflow +%d, save area %d",
				e.GPOffset, e.FPOffset, e.OverflowOffset, e.SaveAreaSize))
		}
	}
}

func (p *printer) calls(calls []Call) {
	if len(calls) == 0 {
		return
	}
	p.section("calls")
	for _, c := range calls {
		head := "  " + p.st.render(p.st.name, c.Function) + "(" + strings.Join(c.Args, ", ") + ")"
		if c.Verified {
			head += "  " + p.st.dim.Sprint("verified")
		}
		p.line(head)
		if c.Error != "" {
			p.line("    " + p.fail(c.Error))
		}
		p.plan(c.Plan)
	}
}

func (p *printer) plan(pl *Plan) {
	if pl == nil {
		return
	}
	t := &table{}
	t.add("ret", pl.Return.Type, pl.Return.Kind, strings.Join(pl.Return.Locs, " "))
	if h := pl.Hidden; h != nil {
		t.add("hidden", h.Type, h.Class, strings.Join(h.Locs, " "))
	}
	for _, a := range pl.Args {
		label := "arg " + strconv.Itoa(a.Index)
		if a.Variadic {
			label += "..."
		}
		t.add(label, a.Type, a.Class, strings.Join(a.Locs, " "))
	}
	p.table(t, "    ")
	summary := fmt.Sprintf("    int regs %d, float regs %d, stack %d", pl.IntRegs, pl.FloatRegs, pl.StackSize)
	if pl.VectorRegs >= 0 {
		summary += fmt.Sprintf(", %%al %d", pl.VectorRegs)
	}
	p.line(summary)
}

func (p *printer) consts(consts []Const) {
	if len(consts) == 0 {
		return
	}
	p.section("consts")
	t := &table{}
	for _, c := range consts {
		if c.Error != "" {
			t.add(c.Name, c.Expr, p.fail(c.Error))
			continue
		}
		t.add(c.Name, c.Expr, "= "+c.Value, c.Type)
	}
	p.table(t, "  ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ErrDiffTargets is returned by Diff when the report has fewer than two
// targets.
var ErrDiffTargets = errors.New("diff needs at least two targets")

// Diff prints only the facts whose values differ between targets, one row
// per fact and one column per target.
func Diff(w io.Writer, rep Report, opts PrettyOpts) error {
	if len(rep.Targets) < 2 {
		return ErrDiffTargets
	}
	st := newStyles(opts.Color)
	rows := DiffRows(rep)
	if len(rows) == 0 {
		_, err := io.WriteString(w, "no differences between targets\n")
		return err
	}
	t := &table{}
	head := []string{""}
	for _, tg := range rep.Targets {
		head = append(head, tg.Triple)
	}
	t.add(head...)
	for _, r := range rows {
		t.add(append([]string{r.Key}, r.Values...)...)
	}
	return t.write(w, "", func(row, col int, cell string) string {
		switch {
		case row == 0:
			return st.render(st.section, cell)
		case col > 0:
			return st.diff.Sprint(cell)
		}
		return cell
	})
}

// DiffRow is one fact that differs between targets. Values holds one entry
// per target in report order; "" means the target has no such fact.
type DiffRow struct {
	Key    string
	Values []string
}

// DiffRows compares the flattened facts of every target.
func DiffRows(rep Report) []DiffRow {
	var order []string
	values := make(map[string][]string)
	for i, tg := range rep.Targets {
		for _, f := range flatten(tg) {
			vs, ok := values[f.key]
			if !ok {
				order = append(order, f.key)
				vs = make([]string, len(rep.Targets))
				values[f.key] = vs
			}
			vs[i] = f.value
		}
	}
	var out []DiffRow
	for _, key := range order {
		vs := values[key]
		for _, v := range vs[1:] {
			if v != vs[0] {
				out = append(out, DiffRow{Key: key, Values: vs})
				break
			}
		}
	}
	return out
}

type fact struct {
	key, value string
}

// flatten turns a target report into keyed facts. Keys do not mention the
// target, so equal facts line up across targets.
func flatten(tg Target) []fact {
	var out []fact
	add := func(key, value string) { out = append(out, fact{key, value}) }
	for _, r := range tg.Records {
		key := r.Kind + " " + r.Name
		if r.Error != "" {
			add(key+" error", r.Error)
			continue
		}
		if !r.Complete {
			add(key, "incomplete")
			continue
		}
		add(key+" size", strconv.FormatInt(r.Size, 10))
		add(key+" align", strconv.FormatInt(r.Align, 10))
		add(key+" class", orDash(r.Class))
		add(key+" return", r.Return)
		for _, f := range r.Fields {
			add(key+"."+f.Name+" offset", strconv.FormatInt(f.Offset, 10))
		}
	}
	for _, td := range tg.Typedefs {
		key := "typedef " + td.Name
		if td.Error != "" {
			add(key+" error", td.Error)
			continue
		}
		add(key+" type", td.Type)
		add(key+" size", strconv.FormatInt(td.Size, 10))
		add(key+" align", strconv.FormatInt(td.Align, 10))
		add(key+" class", orDash(td.Class))
	}
	for _, e := range tg.Enums {
		for _, en := range e.Enumerators {
			add("enum "+orDash(e.Name)+"."+en.Name, strconv.FormatInt(en.Value, 10))
		}
	}
	for _, fn := range tg.Functions {
		if fn.Error != "" {
			add(fn.Name+" error", fn.Error)
		}
		out = appendPlan(out, fn.Name, fn.Plan)
		if e := fn.Entry; e != nil {
			add(fn.Name+" va_start", fmt.Sprintf("gp %d fp %d overflow %d", e.GPOffset, e.FPOffset, e.OverflowOffset))
		}
	}
	for i, c := range tg.Calls {
		key := fmt.Sprintf("call#%d %s", i+1, c.Function)
		if c.Error != "" {
			add(key+" error", c.Error)
		}
		out = appendPlan(out, key, c.Plan)
	}
	for _, c := range tg.Consts {
		if c.Error != "" {
			add("const "+c.Name, "error: "+c.Error)
			continue
		}
		add("const "+c.Name, c.Value+" ("+c.Type+")")
	}
	return out
}

func appendPlan(out []fact, key string, pl *Plan) []fact {
	if pl == nil {
		return out
	}
	out = append(out, fact{key + " ret", pl.Return.Kind + " " + strings.Join(pl.Return.Locs, " ")})
	if h := pl.Hidden; h != nil {
		out = append(out, fact{key + " hidden", strings.Join(h.Locs, " ")})
	}
	for _, a := range pl.Args {
		out = append(out, fact{fmt.Sprintf("%s arg %d", key, a.Index), a.Class + " " + strings.Join(a.Locs, " ")})
	}
	out = append(out, fact{key + " stack", strconv.FormatInt(pl.StackSize, 10)})
	return out
}
