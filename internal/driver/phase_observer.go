package driver

import "time"

// PhaseStatus reports whether a phase started or finished.
type PhaseStatus int

const (
	// PhaseStart indicates that an analysis phase has begun.
	PhaseStart PhaseStatus = iota
	PhaseEnd
)

// PhaseEvent describes a phase boundary. Target is empty for phases that
// run once per description.
type PhaseEvent struct {
	Name    string
	Target  string
	Status  PhaseStatus
	Elapsed time.Duration
}

// PhaseObserver receives phase events emitted during Analyze. It may be
// called from several goroutines at once.
type PhaseObserver func(PhaseEvent)

func (o PhaseObserver) start(name, target string) func() {
	if o == nil {
		return func() {}
	}
	began := time.Now()
	o(PhaseEvent{Name: name, Target: target, Status: PhaseStart})
	return func() {
		o(PhaseEvent{Name: name, Target: target, Status: PhaseEnd, Elapsed: time.Since(began)})
	}
}
