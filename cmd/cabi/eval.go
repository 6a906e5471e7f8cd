package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cabi/internal/decl"
	"cabi/internal/diagfmt"
	"cabi/internal/driver"
	"cabi/internal/layout"
	"cabi/internal/source"
	"cabi/internal/target"
	"cabi/internal/types"
)

var evalCmd = &cobra.Command{
	Use:   "eval [flags] <expr>",
	Short: "Fold a C89 constant expression for each target",
	Long: `Eval folds an integer constant expression with each target's type widths.
With --desc the expression may name the description's typedefs, tags and
enumerators.`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringSlice("target", nil, "targets to evaluate for (default: all)")
	evalCmd.Flags().String("desc", "", "description whose declarations are in scope")
}

type evalScope struct {
	desc target.Descriptor
	decl *decl.Declarer
}

func runEval(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic()

	targets, err := cmd.Flags().GetStringSlice("target")
	if err != nil {
		return fmt.Errorf("failed to get target flag: %w", err)
	}
	descPath, err := cmd.Flags().GetString("desc")
	if err != nil {
		return fmt.Errorf("failed to get desc flag: %w", err)
	}
	useColor, err := colorEnabled(cmd, os.Stdout)
	if err != nil {
		return err
	}

	var scopes []evalScope
	if descPath != "" {
		res, err := driver.Analyze(cmd.Context(), descPath, driver.Options{Targets: targets})
		if err != nil {
			return err
		}
		if res.Units == nil || res.Bag.HasErrors() {
			res.Bag.Sort()
			diagfmt.Pretty(cmd.ErrOrStderr(), res.Bag, res.FileSet, diagfmt.PrettyOpts{Color: useColor, ShowNotes: true})
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			return errDiagnostics
		}
		for _, u := range res.Units {
			scopes = append(scopes, evalScope{desc: u.Target, decl: u.Decl})
		}
	} else {
		descs, err := selectDescriptors(targets)
		if err != nil {
			return err
		}
		for _, d := range descs {
			scopes = append(scopes, evalScope{desc: d, decl: decl.New(layout.New(d, types.NewInterner()))})
		}
	}

	if !evalAll(cmd.OutOrStdout(), args[0], scopes, useColor) {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return errDiagnostics
	}
	return nil
}

func selectDescriptors(names []string) ([]target.Descriptor, error) {
	if len(names) == 0 {
		return target.All(), nil
	}
	seen := make(map[target.ID]bool, len(names))
	out := make([]target.Descriptor, 0, len(names))
	for _, name := range names {
		d, err := target.Select(name)
		if err != nil {
			return nil, err
		}
		if seen[d.ID()] {
			continue
		}
		seen[d.ID()] = true
		out = append(out, d)
	}
	return out, nil
}

// evalAll prints one line per target and reports whether every fold succeeded.
func evalAll(out io.Writer, expr string, scopes []evalScope, useColor bool) bool {
	errText := color.New(color.FgRed, color.Bold)
	if !useColor {
		errText.DisableColor()
	}
	ok := true
	for _, s := range scopes {
		v, err := s.decl.Const(expr, source.Span{})
		if err != nil {
			ok = false
			fmt.Fprintf(out, "%-18s %s %v\n", s.desc.Triple(), errText.Sprint("error:"), err)
			continue
		}
		fmt.Fprintf(out, "%-18s %s (%s)\n", s.desc.Triple(), v, v.Kind)
	}
	return ok
}
