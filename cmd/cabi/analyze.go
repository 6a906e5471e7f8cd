package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"cabi/internal/diagfmt"
	"cabi/internal/driver"
	"cabi/internal/observ"
	"cabi/internal/project"
	"cabi/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] [desc.toml...]",
	Short: "Compute layouts and call plans for a declaration description",
	Long: `Analyze lays out every record, classifies it, plans every function and
call, and folds every constant of a TOML description for each selected target.
Without arguments the descriptions listed in cabi.toml are analysed.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringSlice("target", nil, "targets to analyse (i386, x86_64 or a triple); repeatable")
	analyzeCmd.Flags().String("format", "pretty", "report format (pretty|json|msgpack)")
	analyzeCmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")
	analyzeCmd.Flags().Bool("diff", false, "show only facts that differ between targets (pretty format)")
	analyzeCmd.Flags().Bool("verify", false, "replay every call on the reference machine")
	analyzeCmd.Flags().Int("jobs", 0, "max targets analysed in parallel (0=auto)")
	analyzeCmd.Flags().Int64("max-arg-stack-bytes", 0, "override the outgoing argument area limit (0=description or target default)")
	analyzeCmd.Flags().Bool("phases", false, "print phase timings to stderr")
	analyzeCmd.Flags().String("ui", "off", "live progress view (auto|on|off)")
}

type analyzeOptions struct {
	format  string
	output  string
	diff    bool
	quiet   bool
	timings bool
	color   bool
	tui     bool
	driver  driver.Options
}

// errDiagnostics is returned after diagnostics were printed; main only
// needs the exit status.
var errDiagnostics = errors.New("analysis reported errors")

// runAnalyze executes "analyze": it merges cabi.toml defaults with the flags,
// analyses each description and writes the report. The command fails when
// any description produced an error diagnostic.
func runAnalyze(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic()

	opts, paths, err := analyzeFlags(cmd, args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no description given and no [analyze].descriptions in %s", project.ManifestName)
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	failed := false
	for _, path := range paths {
		ok, err := analyzeOne(cmd, out, path, opts)
		if err != nil {
			return err
		}
		if !ok {
			failed = true
		}
	}
	if failed {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return errDiagnostics
	}
	return nil
}

func analyzeFlags(cmd *cobra.Command, args []string) (analyzeOptions, []string, error) {
	var opts analyzeOptions
	flags := cmd.Flags()

	targets, err := flags.GetStringSlice("target")
	if err != nil {
		return opts, nil, fmt.Errorf("failed to get target flag: %w", err)
	}
	if opts.format, err = flags.GetString("format"); err != nil {
		return opts, nil, fmt.Errorf("failed to get format flag: %w", err)
	}
	if opts.output, err = flags.GetString("output"); err != nil {
		return opts, nil, fmt.Errorf("failed to get output flag: %w", err)
	}
	if opts.diff, err = flags.GetBool("diff"); err != nil {
		return opts, nil, fmt.Errorf("failed to get diff flag: %w", err)
	}
	verify, err := flags.GetBool("verify")
	if err != nil {
		return opts, nil, fmt.Errorf("failed to get verify flag: %w", err)
	}
	jobs, err := flags.GetInt("jobs")
	if err != nil {
		return opts, nil, fmt.Errorf("failed to get jobs flag: %w", err)
	}
	stackLimit, err := flags.GetInt64("max-arg-stack-bytes")
	if err != nil {
		return opts, nil, fmt.Errorf("failed to get max-arg-stack-bytes flag: %w", err)
	}
	phases, err := flags.GetBool("phases")
	if err != nil {
		return opts, nil, fmt.Errorf("failed to get phases flag: %w", err)
	}
	uiValue, err := flags.GetString("ui")
	if err != nil {
		return opts, nil, fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return opts, nil, err
	}
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return opts, nil, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	if opts.quiet, err = cmd.Root().PersistentFlags().GetBool("quiet"); err != nil {
		return opts, nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}
	if opts.timings, err = cmd.Root().PersistentFlags().GetBool("timings"); err != nil {
		return opts, nil, fmt.Errorf("failed to get timings flag: %w", err)
	}
	if opts.color, err = colorEnabled(cmd, os.Stderr); err != nil {
		return opts, nil, err
	}

	paths := args
	manifest, ok, err := project.Load(".")
	if err != nil {
		return opts, nil, err
	}
	if ok {
		a := manifest.Analyze
		if !flags.Changed("target") && len(a.Targets) > 0 {
			targets = a.Targets
		}
		if !flags.Changed("format") && a.Format != "" {
			opts.format = a.Format
		}
		if !flags.Changed("jobs") && a.Jobs > 0 {
			jobs = a.Jobs
		}
		if !flags.Changed("max-arg-stack-bytes") && a.MaxArgStackBytes > 0 {
			stackLimit = a.MaxArgStackBytes
		}
		if len(paths) == 0 {
			for _, d := range a.Descriptions {
				paths = append(paths, filepath.Join(manifest.Root, d))
			}
		}
	}

	opts.format = strings.ToLower(opts.format)
	switch opts.format {
	case "pretty", "json", "msgpack":
	default:
		return opts, nil, fmt.Errorf("unsupported format %q (must be pretty, json or msgpack)", opts.format)
	}
	if opts.diff && opts.format != "pretty" {
		return opts, nil, fmt.Errorf("--diff requires --format pretty")
	}
	if jobs < 0 {
		return opts, nil, fmt.Errorf("--jobs must not be negative")
	}
	if stackLimit < 0 {
		return opts, nil, fmt.Errorf("--max-arg-stack-bytes must not be negative")
	}

	opts.driver = driver.Options{
		Targets:          targets,
		MaxArgStackBytes: stackLimit,
		Jobs:             jobs,
		MaxDiagnostics:   maxDiagnostics,
		Verify:           verify,
	}
	switch {
	case opts.quiet:
	case shouldUseTUI(mode):
		opts.tui = true
	case phases:
		opts.driver.Observer = phasePrinter(cmd.ErrOrStderr())
	}
	return opts, paths, nil
}

// analyzeOne runs one description and reports whether it was error-free.
func analyzeOne(cmd *cobra.Command, out io.Writer, path string, opts analyzeOptions) (bool, error) {
	var timer *observ.Timer
	if opts.timings {
		timer = observ.NewTimer()
	}
	dopts := opts.driver
	dopts.Timer = timer

	var (
		res *driver.Result
		err error
	)
	if opts.tui {
		res, err = analyzeWithUI(cmd.Context(), path, dopts)
	} else {
		res, err = driver.Analyze(cmd.Context(), path, dopts)
	}
	if err != nil {
		return false, err
	}
	res.Bag.Sort()

	errOut := cmd.ErrOrStderr()
	if opts.format == "pretty" || res.Units == nil {
		diagfmt.Pretty(errOut, res.Bag, res.FileSet, diagfmt.PrettyOpts{
			Color:     opts.color,
			Context:   1,
			PathMode:  diagfmt.PathModeAuto,
			ShowNotes: true,
		})
	}

	if res.Units != nil {
		if err := writeReport(out, res.Report, opts); err != nil {
			return false, err
		}
	}

	if opts.timings {
		if _, err := fmt.Fprint(errOut, timer.Summary()); err != nil {
			return false, err
		}
	}
	return !res.Bag.HasErrors(), nil
}

func writeReport(out io.Writer, rep report.Report, opts analyzeOptions) error {
	switch opts.format {
	case "json":
		return report.JSON(out, rep)
	case "msgpack":
		return report.Encode(out, rep)
	}
	if opts.quiet {
		return nil
	}
	pretty := report.PrettyOpts{Color: opts.color && opts.output == ""}
	if opts.diff {
		err := report.Diff(out, rep, pretty)
		if errors.Is(err, report.ErrDiffTargets) {
			return fmt.Errorf("--diff needs at least two targets")
		}
		return err
	}
	return report.Pretty(out, rep, pretty)
}

// phasePrinter logs phase completions; the driver calls it from one
// goroutine per target.
func phasePrinter(w io.Writer) driver.PhaseObserver {
	var mu sync.Mutex
	return func(ev driver.PhaseEvent) {
		if ev.Status != driver.PhaseEnd {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		name := ev.Name
		if ev.Target != "" {
			name = ev.Target + "/" + ev.Name
		}
		fmt.Fprintf(w, "%-28s %8.2f ms\n", name, float64(ev.Elapsed.Microseconds())/1000)
	}
}
