package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"cabi/internal/diag"
	"cabi/internal/observ"
	"cabi/internal/report"
	"cabi/internal/testkit"
)

const sampleDesc = `
[target]
select = ["i386", "x86_64"]

[[struct]]
name = "Opaque"

[[struct]]
name = "S"
fields = [
  { name = "c", type = "char" },
  { name = "d", type = "double" },
]

[[typedef]]
name = "handle"
type = "struct Opaque *"

[[enum]]
name = "color"
enumerators = [
  { name = "RED" },
  { name = "BLUE", value = "RED + 4" },
]

[[function]]
name = "sum_ints"
result = "int"
params = ["int", "int"]

[[function]]
name = "logf"
params = ["const char *"]
variadic = true

[[call]]
function = "logf"
args = ["const char *", "double", "float"]

[[const]]
name = "wrap"
expr = "~(unsigned long)1 % 7"

[[const]]
name = "size_s"
expr = "sizeof(struct S)"
`

func writeDesc(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "abi.toml")
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func analyzeDesc(t *testing.T, src string, opts Options) *Result {
	t.Helper()
	res, err := Analyze(context.Background(), writeDesc(t, src), opts)
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	return res
}

func targetOf(t *testing.T, res *Result, triple string) report.Target {
	t.Helper()
	for _, tg := range res.Report.Targets {
		if tg.Triple == triple {
			return tg
		}
	}
	t.Fatalf("no report for %s", triple)
	return report.Target{}
}

func constValue(t *testing.T, tg report.Target, name string) report.Const {
	t.Helper()
	for _, c := range tg.Consts {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("%s: no const %s", tg.Triple, name)
	return report.Const{}
}

func TestAnalyzeSample(t *testing.T) {
	res := analyzeDesc(t, sampleDesc, Options{})
	if res.Bag.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %+v", res.Bag.Items())
	}
	if len(res.Report.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(res.Report.Targets))
	}

	i386 := targetOf(t, res, "i386-linux-gnu")
	x64 := targetOf(t, res, "x86_64-linux-gnu")

	tests := []struct {
		tg          report.Target
		size, align int64
		offD        int64
		class, ret  string
		wrap, sizeS string
		handle      int64
	}{
		{i386, 12, 4, 4, "STACK", "hidden-pointer", "2", "12", 4},
		{x64, 16, 8, 8, "INTEGER,FLOAT", "registers", "0", "16", 8},
	}
	for _, tt := range tests {
		t.Run(tt.tg.Triple, func(t *testing.T) {
			if len(tt.tg.Records) != 2 {
				t.Fatalf("records = %+v", tt.tg.Records)
			}
			if op := tt.tg.Records[0]; op.Name != "Opaque" || op.Complete {
				t.Errorf("Opaque = %+v, want incomplete", op)
			}
			s := tt.tg.Records[1]
			if s.Size != tt.size || s.Align != tt.align {
				t.Errorf("struct S size/align = %d/%d, want %d/%d", s.Size, s.Align, tt.size, tt.align)
			}
			if len(s.Fields) != 2 || s.Fields[1].Offset != tt.offD {
				t.Errorf("struct S fields = %+v, want d at %d", s.Fields, tt.offD)
			}
			if s.Class != tt.class || s.Return != tt.ret {
				t.Errorf("struct S class/return = %s/%s, want %s/%s", s.Class, s.Return, tt.class, tt.ret)
			}
			if td := tt.tg.Typedefs[0]; td.Name != "handle" || td.Size != tt.handle {
				t.Errorf("handle = %+v, want size %d", td, tt.handle)
			}
			if got := constValue(t, tt.tg, "wrap").Value; got != tt.wrap {
				t.Errorf("wrap = %s, want %s", got, tt.wrap)
			}
			if got := constValue(t, tt.tg, "size_s").Value; got != tt.sizeS {
				t.Errorf("size_s = %s, want %s", got, tt.sizeS)
			}
			en := tt.tg.Enums[0]
			if len(en.Enumerators) != 2 || en.Enumerators[0].Value != 0 || en.Enumerators[1].Value != 4 {
				t.Errorf("enum color = %+v", en)
			}
		})
	}
}

func TestAnalyzePlans(t *testing.T) {
	res := analyzeDesc(t, sampleDesc, Options{})
	i386 := targetOf(t, res, "i386-linux-gnu")
	x64 := targetOf(t, res, "x86_64-linux-gnu")

	sum := i386.Functions[0].Plan
	if got := strings.Join(sum.Args[0].Locs, ","); got != "stack+0" {
		t.Errorf("i386 sum_ints arg0 = %s", got)
	}
	if got := strings.Join(sum.Args[1].Locs, ","); got != "stack+4" {
		t.Errorf("i386 sum_ints arg1 = %s", got)
	}
	if sum.StackSize != 8 || sum.VectorRegs != -1 {
		t.Errorf("i386 sum_ints stack=%d vector=%d", sum.StackSize, sum.VectorRegs)
	}

	sum = x64.Functions[0].Plan
	if sum.Args[0].Locs[0] != "%rdi" || sum.Args[1].Locs[0] != "%rsi" || sum.StackSize != 0 {
		t.Errorf("x86_64 sum_ints = %+v", sum)
	}
	if sum.Return.Locs[0] != "%rax" {
		t.Errorf("x86_64 sum_ints return = %v", sum.Return.Locs)
	}

	entry := x64.Functions[1].Entry
	if entry == nil || entry.GPOffset != 8 || entry.FPOffset != 48 || entry.OverflowOffset != 0 || entry.SaveAreaSize != 176 {
		t.Errorf("x86_64 logf entry = %+v", entry)
	}
	entry = i386.Functions[1].Entry
	if entry == nil || entry.OverflowOffset != 4 || entry.SaveAreaSize != 0 {
		t.Errorf("i386 logf entry = %+v", entry)
	}

	call := x64.Calls[0].Plan
	if call == nil || len(call.Args) != 3 {
		t.Fatalf("x86_64 call = %+v", x64.Calls[0])
	}
	if call.Args[2].Type != "double" || !call.Args[2].Variadic {
		t.Errorf("float vararg = %+v, want promoted double", call.Args[2])
	}
	if call.VectorRegs != 2 || call.Args[2].Locs[0] != "%xmm1" {
		t.Errorf("x86_64 call vector=%d locs=%v", call.VectorRegs, call.Args[2].Locs)
	}
	if call := i386.Calls[0].Plan; call == nil || call.StackSize != 20 {
		t.Errorf("i386 call = %+v, want 20 bytes of stack", call)
	}
}

func TestAnalyzeSelectsTargets(t *testing.T) {
	res := analyzeDesc(t, sampleDesc, Options{Targets: []string{"x86_64", "amd64"}})
	if len(res.Report.Targets) != 1 || res.Report.Targets[0].Triple != "x86_64-linux-gnu" {
		t.Fatalf("targets = %+v", res.Report.Targets)
	}

	src := strings.Replace(sampleDesc, `select = ["i386", "x86_64"]`, `select = ["i386", "sparc"]`, 1)
	res = analyzeDesc(t, src, Options{})
	if len(res.Units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(res.Units))
	}
	items := res.Bag.Items()
	if len(items) != 1 || items[0].Code != diag.AbiUnsupportedTarget {
		t.Fatalf("diagnostics = %+v", items)
	}
	if got := string(res.File.Content[items[0].Primary.Start:items[0].Primary.End]); got != `"sparc"` {
		t.Errorf("diagnostic points at %q", got)
	}
}

func TestAnalyzeArgStackLimit(t *testing.T) {
	src := `
[target]
max_arg_stack_bytes = 8

[[function]]
name = "three"
result = "void"
params = ["int", "int", "int"]
`
	res := analyzeDesc(t, src, Options{})
	items := res.Bag.Items()
	if len(items) != 1 {
		t.Fatalf("diagnostics = %+v", items)
	}
	d := items[0]
	if d.Code != diag.AbiTooManyArguments || !strings.HasPrefix(d.Message, "i386-linux-gnu: ") {
		t.Errorf("diagnostic = %+v", d)
	}
	if fn := targetOf(t, res, "x86_64-linux-gnu").Functions[0]; fn.Error != "" || fn.Plan == nil {
		t.Errorf("x86_64 three = %+v", fn)
	}

	res = analyzeDesc(t, src, Options{MaxArgStackBytes: 16})
	if res.Bag.Len() != 0 {
		t.Errorf("override should lift the limit: %+v", res.Bag.Items())
	}
}

func TestAnalyzeDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code diag.Code
		text string
	}{
		{
			name: "unknown function",
			src:  "[[call]]\nfunction = \"nope\"\nargs = []\n",
			code: diag.DscUnknownFunc,
			text: `"nope"`,
		},
		{
			name: "duplicate typedef",
			src:  "[[typedef]]\nname = \"T\"\ntype = \"int\"\n\n[[typedef]]\nname = \"T\"\ntype = \"long\"\n",
			code: diag.DscDuplicateDecl,
			text: `long`,
		},
		{
			name: "division by zero",
			src:  "[[const]]\nname = \"z\"\nexpr = \"1 / 0\"\n",
			code: diag.CstDivisionByZero,
			text: `1 / 0`,
		},
		{
			name: "unknown tag",
			src:  "[[typedef]]\nname = \"T\"\ntype = \"struct Missing\"\n",
			code: diag.DscUnknownType,
			text: `struct Missing`,
		},
		{
			name: "sizeof incomplete",
			src:  "[[struct]]\nname = \"Fwd\"\n\n[[typedef]]\nname = \"T\"\ntype = \"struct Fwd\"\n\n[[const]]\nname = \"n\"\nexpr = \"sizeof(T)\"\n",
			code: diag.AbiIncompleteType,
			text: `"n"`,
		},
		{
			name: "argument count",
			src:  "[[function]]\nname = \"f\"\nparams = [\"int\"]\n\n[[call]]\nfunction = \"f\"\nargs = [\"int\", \"int\"]\n",
			code: diag.DscArgCount,
			text: `"f"`,
		},
		{
			name: "invalid array",
			src:  "[[struct]]\nname = \"A\"\nfields = [{ name = \"a\", type = \"int[-1]\" }]\n",
			code: diag.AbiInvalidArraySize,
			text: `"A"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := analyzeDesc(t, tt.src, Options{})
			items := res.Bag.Items()
			if len(items) != 1 {
				t.Fatalf("diagnostics = %+v", items)
			}
			if err := testkit.CheckDiagnosticSpans(res.Bag, res.FileSet); err != nil {
				t.Fatal(err)
			}
			d := items[0]
			if d.Code != tt.code {
				t.Fatalf("code = %s, want %s (%s)", d.Code.ID(), tt.code.ID(), d.Message)
			}
			if got := string(res.File.Content[d.Primary.Start:d.Primary.End]); got != tt.text {
				t.Errorf("diagnostic points at %q, want %q", got, tt.text)
			}
		})
	}
}

func TestAnalyzeDuplicateNote(t *testing.T) {
	src := "[[struct]]\nname = \"P\"\nfields = [{ name = \"x\", type = \"int\" }]\n\n[[union]]\nname = \"P\"\nfields = [{ name = \"y\", type = \"int\" }]\n"
	res := analyzeDesc(t, src, Options{})
	items := res.Bag.Items()
	if len(items) != 1 || items[0].Code != diag.DscDuplicateDecl {
		t.Fatalf("diagnostics = %+v", items)
	}
	if len(items[0].Notes) != 1 || items[0].Notes[0].Span.Start >= items[0].Primary.Start {
		t.Errorf("note should point at the earlier declaration: %+v", items[0])
	}
}

func TestAnalyzeInvalidTOML(t *testing.T) {
	res := analyzeDesc(t, "[[struct]\nname = \"S\"\n", Options{})
	if res.Units != nil || res.Desc != nil {
		t.Fatalf("expected no units for an undecodable description")
	}
	items := res.Bag.Items()
	if len(items) != 1 || items[0].Code != diag.DscInvalid || items[0].Severity != diag.SevError {
		t.Fatalf("diagnostics = %+v", items)
	}
}

func TestAnalyzeUnknownKeyWarns(t *testing.T) {
	res := analyzeDesc(t, "[[typedef]]\nname = \"T\"\ntype = \"int\"\nalign = 16\n", Options{})
	items := res.Bag.Items()
	if len(items) != 1 || items[0].Severity != diag.SevWarning {
		t.Fatalf("diagnostics = %+v", items)
	}
	if res.Bag.HasErrors() {
		t.Errorf("unknown key must not be an error")
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	if _, err := Analyze(context.Background(), filepath.Join(t.TempDir(), "missing.toml"), Options{}); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := AnalyzeSource(ctx, "abi.toml", []byte(sampleDesc), Options{}); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestAnalyzeTimingsAndPhases(t *testing.T) {
	timer := observ.NewTimer()
	var mu sync.Mutex
	ended := make(map[string]int)
	observer := PhaseObserver(func(ev PhaseEvent) {
		if ev.Status != PhaseEnd {
			return
		}
		mu.Lock()
		ended[ev.Name]++
		mu.Unlock()
	})
	res, err := AnalyzeSource(context.Background(), "abi.toml", []byte(sampleDesc), Options{Timer: timer, Observer: observer, Jobs: 1})
	if err != nil {
		t.Fatalf("AnalyzeSource error: %v", err)
	}
	if len(res.Units) != 2 {
		t.Fatalf("units = %d", len(res.Units))
	}
	for _, phase := range []string{"declare", "layout", "classify", "plan", "consteval"} {
		if ended[phase] != 2 {
			t.Errorf("phase %s ended %d times, want 2", phase, ended[phase])
		}
	}
	if !strings.Contains(timer.Summary(), "x86_64-linux-gnu/layout") {
		t.Errorf("timer summary missing per-target phase:\n%s", timer.Summary())
	}
}

func TestMergeKeepsSharedDiagnosticsOnce(t *testing.T) {
	res := analyzeDesc(t, "[[call]]\nfunction = \"nope\"\nargs = []\n", Options{})
	items := res.Bag.Items()
	if len(items) != 1 || strings.Contains(items[0].Message, "linux-gnu") {
		t.Fatalf("diagnostics = %+v", items)
	}
	for _, tg := range res.Report.Targets {
		if len(tg.Diagnostics) != 1 {
			t.Errorf("%s: diagnostics = %+v", tg.Triple, tg.Diagnostics)
		}
	}
}

func TestAnalyzeVerify(t *testing.T) {
	src := sampleDesc + `
[[struct]]
name = "Pair"
fields = [{ name = "a", type = "long" }, { name = "b", type = "double" }]

[[struct]]
name = "Big"
fields = [{ name = "v", type = "long[4]" }]

[[function]]
name = "mix"
result = "struct Big"
params = ["struct Pair", "char", "long double"]
variadic = true

[[call]]
function = "mix"
args = ["struct Pair", "char", "long double", "struct Pair", "float", "short"]
`
	res := analyzeDesc(t, src, Options{Verify: true})
	if res.Bag.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %+v", res.Bag.Items())
	}
	for _, tg := range res.Report.Targets {
		for _, c := range tg.Calls {
			if !c.Verified {
				t.Errorf("%s: call %s not verified", tg.Triple, c.Function)
			}
		}
	}

	res = analyzeDesc(t, src, Options{})
	if res.Report.Targets[0].Calls[0].Verified {
		t.Errorf("calls must not be verified unless asked")
	}
}

func TestPhasesPerTarget(t *testing.T) {
	if got := PhasesPerTarget(Options{}); got != 5 {
		t.Errorf("PhasesPerTarget = %d, want 5", got)
	}
	if got := PhasesPerTarget(Options{Verify: true}); got != 6 {
		t.Errorf("PhasesPerTarget(verify) = %d, want 6", got)
	}
}

func TestAnalyzeLayoutInvariants(t *testing.T) {
	src := sampleDesc + `
[[union]]
name = "U"
fields = [
  { name = "b", type = "char[3]" },
  { name = "l", type = "long" },
]

[[struct]]
name = "Mixed"
fields = [
  { name = "s", type = "short" },
  { name = "u", type = "union U" },
  { name = "ld", type = "long double" },
  { name = "p", type = "void *" },
]
`
	res := analyzeDesc(t, src, Options{})
	if res.Bag.HasErrors() {
		t.Fatalf("unexpected errors: %+v", res.Bag.Items())
	}
	for _, tg := range res.Report.Targets {
		if len(tg.Records) < 4 {
			t.Fatalf("%s: records = %d, want at least 4", tg.Triple, len(tg.Records))
		}
		for _, rec := range tg.Records {
			if err := testkit.CheckRecordLayout(rec); err != nil {
				t.Errorf("%s: %v", tg.Triple, err)
			}
		}
	}
}
