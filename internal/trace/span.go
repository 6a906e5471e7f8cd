package trace

import (
	"sync/atomic"
	"time"
)

var (
	globalSeq   atomic.Uint64
	globalSpans atomic.Uint64
)

// NextSeq returns a monotonically increasing sequence number.
func NextSeq() uint64 { return globalSeq.Add(1) }

// NextSpanID returns a unique span ID.
func NextSpanID() uint64 { return globalSpans.Add(1) }

// Span is an open interval of work. Targets are analysed concurrently, so
// every span records the target triple it belongs to and hands it to its
// children.
type Span struct {
	tracer   Tracer
	id       uint64
	parentID uint64
	target   string
	scope    Scope
	name     string
	started  time.Time
	extra    map[string]string
}

// Begin starts a span under parent (0 for a root) and emits its begin event.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	return begin(t, scope, name, parent, "")
}

// BeginTarget starts the ScopeTarget span that all of one target's passes
// nest under.
func BeginTarget(t Tracer, triple string, parent uint64) *Span {
	return begin(t, ScopeTarget, triple, parent, triple)
}

// Child starts a span nested in s on the same target.
func (s *Span) Child(scope Scope, name string) *Span {
	if s == nil {
		return &Span{tracer: Nop}
	}
	return begin(s.tracer, scope, name, s.id, s.target)
}

func begin(t Tracer, scope Scope, name string, parent uint64, target string) *Span {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		// keep the target so children of a filtered span stay attributed
		return &Span{tracer: Nop, id: parent, target: target}
	}
	sp := &Span{
		tracer:   t,
		id:       NextSpanID(),
		parentID: parent,
		target:   target,
		scope:    scope,
		name:     name,
		started:  time.Now(),
	}
	t.Emit(&Event{
		Time:     sp.started,
		Seq:      NextSeq(),
		Kind:     KindSpanBegin,
		Scope:    scope,
		SpanID:   sp.id,
		ParentID: parent,
		Target:   target,
		Name:     name,
	})
	return sp
}

// End emits the end event with detail and any extras, and returns the
// span's duration.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.tracer == nil || !s.tracer.Enabled() {
		return 0
	}
	dur := time.Since(s.started)
	s.tracer.Emit(&Event{
		Time:     time.Now(),
		Seq:      NextSeq(),
		Kind:     KindSpanEnd,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parentID,
		Target:   s.target,
		Name:     s.name,
		Detail:   detail,
		Extra:    s.extra,
	})
	return dur
}

// WithExtra attaches a key-value pair to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil || s.tracer == nil || !s.tracer.Enabled() {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string)
	}
	s.extra[key] = value
	return s
}

// Point emits an instant event under parent. Cheap when t is disabled or the
// scope is filtered out by the level.
func Point(t Tracer, scope Scope, name, detail string, parent uint64) {
	emitPoint(t, scope, name, detail, parent, "")
}

// Point emits an instant event inside s, on s's target.
func (s *Span) Point(scope Scope, name, detail string) {
	if s == nil {
		return
	}
	emitPoint(s.tracer, scope, name, detail, s.id, s.target)
}

func emitPoint(t Tracer, scope Scope, name, detail string, parent uint64, target string) {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(&Event{
		Time:     time.Now(),
		Seq:      NextSeq(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: parent,
		Target:   target,
		Name:     name,
		Detail:   detail,
	})
}

// Enabled reports whether an event of scope emitted in s would be kept.
func (s *Span) Enabled(scope Scope) bool {
	return s != nil && s.tracer != nil && s.tracer.Enabled() && s.tracer.Level().ShouldEmit(scope)
}

// ID returns the span ID.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Target returns the triple the span belongs to, or "".
func (s *Span) Target() string {
	if s == nil {
		return ""
	}
	return s.target
}

// Context returns the propagation context for s.
func (s *Span) Context() SpanContext {
	if s == nil {
		return SpanContext{}
	}
	return SpanContext{SpanID: s.id, Target: s.target}
}
