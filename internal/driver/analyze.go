package driver

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"cabi/internal/diag"
	"cabi/internal/diagfmt"
	"cabi/internal/observ"
	"cabi/internal/report"
	"cabi/internal/source"
	"cabi/internal/target"
	"cabi/internal/trace"
	"cabi/internal/version"
)

// Options controls one analysis run.
type Options struct {
	// Targets selects descriptors by name ("i386", "x86_64", a triple).
	// Empty falls back to [target].select, then to every target.
	Targets []string
	// MaxArgStackBytes overrides [target].max_arg_stack_bytes when positive.
	MaxArgStackBytes int64
	// Jobs bounds how many targets are analysed at once; 0 means GOMAXPROCS.
	Jobs           int
	MaxDiagnostics int
	// Verify replays every [[call]] on the reference machine.
	Verify   bool
	Timer    *observ.Timer
	Observer PhaseObserver
}

// Result is everything one run produced. Units is nil when the description
// could not be decoded.
type Result struct {
	FileSet *source.FileSet
	File    *source.File
	Desc    *Description
	Units   []*Unit
	Bag     *diag.Bag
	Report  report.Report
}

// Analyze loads the description at path and analyses it for every selected
// target. Problems in the description are diagnostics in Result.Bag; the
// error is reserved for I/O failures and cancellation.
func Analyze(ctx context.Context, path string, opts Options) (*Result, error) {
	fs := source.NewFileSet()
	done := opts.Timer.Track("load")
	id, err := fs.Load(path)
	done("")
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return analyze(ctx, fs, fs.Get(id), opts)
}

// AnalyzeSource is Analyze for an in-memory description.
func AnalyzeSource(ctx context.Context, name string, content []byte, opts Options) (*Result, error) {
	fs := source.NewFileSet()
	id := fs.AddVirtual(name, content)
	return analyze(ctx, fs, fs.Get(id), opts)
}

func analyze(ctx context.Context, fs *source.FileSet, f *source.File, opts Options) (*Result, error) {
	tracer := trace.FromContext(ctx)
	root := trace.Begin(tracer, trace.ScopeDriver, "analyze", trace.CurrentSpan(ctx).SpanID)
	root.WithExtra("file", f.Path)
	defer root.End("")
	ctx = trace.WithSpanContext(ctx, root.Context())

	maxDiags := opts.MaxDiagnostics
	if maxDiags <= 0 {
		maxDiags = 200
	}
	res := &Result{
		FileSet: fs,
		File:    f,
		Bag:     diag.NewBag(maxDiags),
		Report: report.Report{
			Tool:    "cabi",
			Version: version.Version,
			Source:  f.Path,
		},
	}

	done := opts.Timer.Track("decode")
	end := opts.Observer.start("decode", "")
	res.Desc = decodeDescription(f, diag.BagReporter{Bag: res.Bag})
	end()
	done("")
	if res.Desc == nil {
		return res, nil
	}

	descs := selectTargets(res.Desc, opts, f, res.Bag)
	trace.Point(tracer, trace.ScopeDriver, "targets", fmt.Sprintf("n=%d", len(descs)), root.ID())
	units := make([]*Unit, len(descs))
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(jobs, len(descs))))
	for i, desc := range descs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			u := newUnit(desc, maxDiags)
			if err := u.run(gctx, res.Desc, opts); err != nil {
				return err
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.Units = units

	mergeBags(res.Bag, units)
	res.Bag.Sort()
	jopts := diagfmt.JSONOpts{IncludePositions: true, PathMode: diagfmt.PathModeAuto, IncludeNotes: true}
	for _, u := range units {
		u.Bag.Sort()
		u.Report.Diagnostics = diagfmt.Diagnostics(u.Bag.Items(), fs, jopts)
		res.Report.Targets = append(res.Report.Targets, u.Report)
	}
	return res, nil
}

// selectTargets resolves the requested selectors, skipping duplicates.
// Unknown selectors are diagnosed at their [target].select entry.
func selectTargets(d *Description, opts Options, f *source.File, bag *diag.Bag) []target.Descriptor {
	sels, spans := opts.Targets, []source.Span(nil)
	if len(sels) == 0 {
		sels, spans = d.Target.Select, d.Target.selectSpans
	}
	if len(sels) == 0 {
		return applyLimit(target.All(), d, opts)
	}
	var out []target.Descriptor
	seen := make(map[target.ID]bool)
	for i, sel := range sels {
		desc, err := target.Select(sel)
		if err != nil {
			sp := source.Span{File: f.ID}
			if i < len(spans) {
				sp = spans[i]
			}
			bag.Add(toDiagnostic(err, sp, true))
			continue
		}
		if seen[desc.ID()] {
			continue
		}
		seen[desc.ID()] = true
		out = append(out, desc)
	}
	return applyLimit(out, d, opts)
}

func applyLimit(descs []target.Descriptor, d *Description, opts Options) []target.Descriptor {
	limit := d.Target.MaxArgStackBytes
	if opts.MaxArgStackBytes > 0 {
		limit = opts.MaxArgStackBytes
	}
	if limit <= 0 {
		return descs
	}
	out := make([]target.Descriptor, len(descs))
	for i, desc := range descs {
		out[i] = desc.WithArgStackLimit(limit)
	}
	return out
}
