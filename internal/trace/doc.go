// Package trace provides the tracing subsystem used as structured logging by
// the ABI analysis pipeline.
//
// # Usage
//
// Enable tracing via command-line flags:
//
//	cabi analyze --trace=- --trace-level=phase desc.toml
//
// # Architecture
//
//   - Nop: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to output (file/stderr), text or NDJSON
//   - RingTracer: circular buffer, dumped when the CLI panics
//   - MultiTracer: combines multiple tracers
//
// # Levels and scopes
//
// Levels (off, error, phase, detail, debug) select which scopes are emitted:
//
//   - ScopeDriver: top-level CLI operations (load, analyze, render)
//   - ScopeTarget: all work for one target; emitted from "phase" up
//   - ScopePass: phases of one target (layout, classify, plan, consteval);
//     emitted from "detail" up
//   - ScopeNode: single types and call sites (layout cache misses, plans)
//
// Targets are analysed concurrently, so target spans and their children
// carry the target triple and text output is prefixed with it.
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	ts := trace.BeginTarget(t, "x86_64-linux-gnu", trace.CurrentSpan(ctx).SpanID)
//	ps := ts.Child(trace.ScopePass, "layout")
//	defer ps.End("")
package trace
