package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	cases := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeDriver, false},
		{LevelError, ScopeDriver, true},
		{LevelError, ScopeTarget, false},
		{LevelPhase, ScopeTarget, true},
		{LevelPhase, ScopePass, false},
		{LevelDetail, ScopePass, true},
		{LevelDetail, ScopeNode, false},
		{LevelDebug, ScopeNode, true},
	}
	for _, tc := range cases {
		if got := tc.level.ShouldEmit(tc.scope); got != tc.want {
			t.Errorf("%s.ShouldEmit(%s) = %v, want %v", tc.level, tc.scope, got, tc.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("Detail")
	if err != nil || lvl != LevelDetail {
		t.Fatalf("ParseLevel(Detail) = %v, %v", lvl, err)
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestStreamTracerText(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDebug, FormatText)

	sp := Begin(tr, ScopePass, "layout", 0)
	Point(tr, ScopeNode, "type", "struct S", sp.ID())
	sp.WithExtra("types", "3").WithExtra("cached", "1").End("ok")

	out := buf.String()
	for _, want := range []string{"→ layout", "• type (struct S)", "← layout (ok) {cached=1, types=3}"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRingTracerWraps(t *testing.T) {
	ring := NewRingTracer(2, LevelDebug)
	for _, name := range []string{"a", "b", "c"} {
		Point(ring, ScopeNode, name, "", 0)
	}
	events := ring.Snapshot()
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Name != "b" || events[1].Name != "c" {
		t.Fatalf("unexpected order: %s, %s", events[0].Name, events[1].Name)
	}

	var buf bytes.Buffer
	if err := ring.Dump(&buf, FormatNDJSON); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("dump lines = %d, want 2", n)
	}
}

func TestMultiTracerRing(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{Level: LevelPhase, Mode: ModeBoth, Output: &buf, RingSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	multi, ok := tr.(*MultiTracer)
	if !ok {
		t.Fatalf("New returned %T, want *MultiTracer", tr)
	}
	ring, ok := multi.Ring()
	if !ok {
		t.Fatal("ring tracer not found")
	}
	Begin(tr, ScopeDriver, "analyze", 0).End("")
	if got := len(ring.Snapshot()); got != 2 {
		t.Fatalf("ring holds %d events, want 2", got)
	}
	if buf.Len() == 0 {
		t.Fatal("stream output is empty")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) != Nop {
		t.Fatal("expected Nop for empty context")
	}
	ring := NewRingTracer(4, LevelDebug)
	ctx = WithTracer(ctx, ring)
	if FromContext(ctx) != Tracer(ring) {
		t.Fatal("tracer not propagated")
	}
	ctx = WithSpanContext(ctx, SpanContext{SpanID: 7, Target: "i386-linux-gnu"})
	if sc := CurrentSpan(ctx); sc.SpanID != 7 || sc.Target != "i386-linux-gnu" {
		t.Fatalf("span context not propagated: %+v", sc)
	}
}

func TestTargetSpansTagChildren(t *testing.T) {
	ring := NewRingTracer(16, LevelDebug)
	ts := BeginTarget(ring, "x86_64-linux-gnu", 0)
	ps := ts.Child(ScopePass, "plan")
	ps.Point(ScopeNode, "call", "logf")
	ps.End("")
	ts.End("")

	events := ring.Snapshot()
	if len(events) != 5 {
		t.Fatalf("events = %d, want 5", len(events))
	}
	for _, ev := range events {
		if ev.Target != "x86_64-linux-gnu" {
			t.Errorf("%s %s: target = %q", ev.Kind, ev.Name, ev.Target)
		}
	}
	if events[1].ParentID != ts.ID() || events[2].ParentID != ps.ID() {
		t.Errorf("parent chain broken: %+v", events[:3])
	}

	var buf bytes.Buffer
	if err := ring.Dump(&buf, FormatText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "<x86_64-linux-gnu> • call (logf)") {
		t.Errorf("text dump lacks target prefix:\n%s", buf.String())
	}
}

func TestNodeEventsFilteredAtDetail(t *testing.T) {
	ring := NewRingTracer(16, LevelDetail)
	ts := BeginTarget(ring, "i386-linux-gnu", 0)
	ps := ts.Child(ScopePass, "layout")
	ps.Point(ScopeNode, "type", "int")
	ps.End("")
	ts.End("")

	events := ring.Snapshot()
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4 (node filtered)", len(events))
	}
	if events[1].Target != "i386-linux-gnu" {
		t.Errorf("pass target = %q", events[1].Target)
	}
}

func TestTargetFilter(t *testing.T) {
	tr, err := New(Config{Level: LevelDebug, Mode: ModeRing, RingSize: 16, Target: "i386-linux-gnu"})
	if err != nil {
		t.Fatal(err)
	}
	ring, ok := RingOf(tr)
	if !ok {
		t.Fatalf("RingOf(%T) found no ring", tr)
	}
	root := Begin(tr, ScopeDriver, "analyze", 0)
	BeginTarget(tr, "x86_64-linux-gnu", root.ID()).End("")
	BeginTarget(tr, "i386-linux-gnu", root.ID()).End("")
	root.End("")

	var names []string
	for _, ev := range ring.Snapshot() {
		names = append(names, ev.Kind.String()+":"+ev.Name)
	}
	want := "begin:analyze begin:i386-linux-gnu end:i386-linux-gnu end:analyze"
	if got := strings.Join(names, " "); got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []StorageMode{ModeStream, ModeRing, ModeBoth} {
		got, err := ParseMode(strings.ToUpper(m.String()))
		if err != nil || got != m {
			t.Errorf("ParseMode(%s) = %v, %v", m, got, err)
		}
	}
	if _, err := ParseMode("disk"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
