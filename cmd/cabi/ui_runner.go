package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"cabi/internal/driver"
	"cabi/internal/ui"
)

type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func readUIMode(value string) (uiMode, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return uiModeAuto, nil
	case "on":
		return uiModeOn, nil
	case "off":
		return uiModeOff, nil
	default:
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
}

// shouldUseTUI draws the progress view on stderr so reports on stdout stay
// clean for pipes.
func shouldUseTUI(mode uiMode) bool {
	switch mode {
	case uiModeOn:
		return true
	case uiModeOff:
		return false
	default:
		return isTerminal(os.Stderr)
	}
}

type analyzeOutcome struct {
	res *driver.Result
	err error
}

// analyzeWithUI runs the analysis in the background and renders its phase
// events until it finishes.
func analyzeWithUI(ctx context.Context, path string, opts driver.Options) (*driver.Result, error) {
	events := make(chan driver.PhaseEvent, 256)
	outcomeCh := make(chan analyzeOutcome, 1)

	go func() {
		o := opts
		o.Observer = func(ev driver.PhaseEvent) { events <- ev }
		res, err := driver.Analyze(ctx, path, o)
		outcomeCh <- analyzeOutcome{res: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(path, driver.PhasesPerTarget(opts), events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr), tea.WithInput(nil))
	_, uiErr := program.Run()
	if uiErr != nil {
		// keep draining so the analysis goroutine can finish
		go func() {
			for range events {
			}
		}()
	}
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.res, uiErr
	}
	return outcome.res, outcome.err
}
