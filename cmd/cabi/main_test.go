package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"cabi/internal/decl"
	"cabi/internal/driver"
	"cabi/internal/layout"
	"cabi/internal/report"
	"cabi/internal/target"
	"cabi/internal/types"
)

func scopesFor(t *testing.T, names ...string) []evalScope {
	t.Helper()
	descs, err := selectDescriptors(names)
	if err != nil {
		t.Fatalf("selectDescriptors(%v): %v", names, err)
	}
	out := make([]evalScope, 0, len(descs))
	for _, d := range descs {
		out = append(out, evalScope{desc: d, decl: decl.New(layout.New(d, types.NewInterner()))})
	}
	return out
}

func TestEvalAllPerTarget(t *testing.T) {
	var buf bytes.Buffer
	if !evalAll(&buf, "~(unsigned long)1 % 7", scopesFor(t), false) {
		t.Fatalf("evalAll reported failure:\n%s", buf.String())
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "i386-linux-gnu") || !strings.Contains(lines[0], " 2 (unsigned long)") {
		t.Errorf("i386 line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "x86_64-linux-gnu") || !strings.Contains(lines[1], " 0 (unsigned long)") {
		t.Errorf("x86_64 line = %q", lines[1])
	}
}

func TestEvalAllReportsErrors(t *testing.T) {
	var buf bytes.Buffer
	if evalAll(&buf, "1 / 0", scopesFor(t, "x86_64"), false) {
		t.Fatalf("expected failure, got:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "error:") {
		t.Errorf("output lacks error marker: %q", buf.String())
	}
	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("colour disabled but output has escapes: %q", buf.String())
	}
}

func TestSelectDescriptors(t *testing.T) {
	descs, err := selectDescriptors([]string{"amd64", "x86_64-linux-gnu", "i686"})
	if err != nil {
		t.Fatalf("selectDescriptors: %v", err)
	}
	if len(descs) != 2 || descs[0].Arch() != target.ArchX86_64 || descs[1].Arch() != target.ArchI386 {
		t.Fatalf("got %v", descs)
	}
	if _, err := selectDescriptors([]string{"mips"}); err == nil {
		t.Fatalf("expected error for unknown target")
	}
}

func TestRenderTargets(t *testing.T) {
	payloads := []targetPayload{describeTarget(target.I386()), describeTarget(target.X86_64())}
	if got := payloads[1].RegSaveArea; got != 176 {
		t.Errorf("x86_64 save area = %d, want 176", got)
	}
	if len(payloads[0].IntArgRegs) != 0 {
		t.Errorf("i386 int arg regs = %v, want none", payloads[0].IntArgRegs)
	}
	var buf bytes.Buffer
	if err := renderTargets(&buf, payloads, false); err != nil {
		t.Fatalf("renderTargets: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"i386-linux-gnu (i386, 32-bit)",
		"none (stack only)",
		"%rdi %rsi %rdx %rcx %r8 %r9",
		"%xmm0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteReportFormats(t *testing.T) {
	rep := report.Report{Tool: "cabi", Targets: []report.Target{{Triple: "i386-linux-gnu", Arch: "i386", WordBits: 32}}}

	var buf bytes.Buffer
	if err := writeReport(&buf, rep, analyzeOptions{format: "msgpack"}); err != nil {
		t.Fatalf("msgpack: %v", err)
	}
	got, err := report.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Targets[0].Triple != "i386-linux-gnu" {
		t.Errorf("decoded triple = %q", got.Targets[0].Triple)
	}

	buf.Reset()
	if err := writeReport(&buf, rep, analyzeOptions{format: "pretty", quiet: true}); err != nil {
		t.Fatalf("quiet pretty: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("quiet pretty wrote %q", buf.String())
	}

	if err := writeReport(&buf, rep, analyzeOptions{format: "pretty", diff: true}); err == nil {
		t.Errorf("diff with one target should fail")
	}
}

func TestPhasePrinterSkipsStarts(t *testing.T) {
	var buf bytes.Buffer
	p := phasePrinter(&buf)
	p(driver.PhaseEvent{Name: "layout", Target: "i386-linux-gnu", Status: driver.PhaseStart})
	p(driver.PhaseEvent{Name: "layout", Target: "i386-linux-gnu", Status: driver.PhaseEnd, Elapsed: 1500 * time.Microsecond})
	if got := buf.String(); !strings.HasPrefix(got, "i386-linux-gnu/layout") || !strings.Contains(got, "1.50 ms") {
		t.Errorf("phase line = %q", got)
	}
}

func TestReadUIMode(t *testing.T) {
	for in, want := range map[string]uiMode{"": uiModeAuto, " ON ": uiModeOn, "off": uiModeOff} {
		got, err := readUIMode(in)
		if err != nil || got != want {
			t.Errorf("readUIMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := readUIMode("sometimes"); err == nil {
		t.Errorf("expected error for invalid mode")
	}
	if !shouldUseTUI(uiModeOn) || shouldUseTUI(uiModeOff) {
		t.Errorf("explicit modes ignored")
	}
}
