package observ

import (
	"strings"
	"sync"
	"testing"
)

func TestTimerReportOrder(t *testing.T) {
	tm := NewTimer()
	a := tm.Begin("load")
	tm.End(a, "2 targets")
	tm.Track("x86_64/layout")("")
	tm.End(42, "ignored")

	r := tm.Report()
	if len(r.Phases) != 2 {
		t.Fatalf("phases = %d, want 2", len(r.Phases))
	}
	if r.Phases[0].Name != "load" || r.Phases[0].Note != "2 targets" {
		t.Fatalf("unexpected first phase: %+v", r.Phases[0])
	}
	if !strings.Contains(tm.Summary(), "x86_64/layout") {
		t.Fatal("summary missing phase name")
	}
}

func TestTimerConcurrent(t *testing.T) {
	tm := NewTimer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.Track("plan")("")
		}()
	}
	wg.Wait()
	if got := len(tm.Report().Phases); got != 8 {
		t.Fatalf("phases = %d, want 8", got)
	}
}

func TestNilTimer(t *testing.T) {
	var tm *Timer
	tm.Track("noop")("")
	if len(tm.Report().Phases) != 0 {
		t.Fatal("nil timer should report nothing")
	}
}
