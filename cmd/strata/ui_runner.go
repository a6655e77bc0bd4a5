package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"strata/internal/driver"
	"strata/internal/frontend"
	"strata/internal/source"
	"strata/internal/ui"
)

type analyzeOutcome struct {
	result *driver.RunResult
	err    error
}

// analyzeWithUI runs the analysis in the background while a Bubble Tea
// program renders per-function progress from the driver's event stream.
func analyzeWithUI(cmd *cobra.Command, dir string, opts driver.Options, patterns []string) (*driver.RunResult, *source.FileSet, error) {
	prog, err := frontend.Load(dir, patterns...)
	if err != nil {
		return nil, nil, err
	}
	fns := prog.Lowered()

	names := make([]string, len(fns))
	for i, fn := range fns {
		names[i] = fn.Name
	}

	events := make(chan driver.Event, 256)
	opts.Events = events
	outcomeCh := make(chan analyzeOutcome, 1)

	go func() {
		res, err := driver.AnalyzeFunctions(cmd.Context(), fns, prog.Files, opts)
		outcomeCh <- analyzeOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel("analyzing "+dir, names, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, prog.Files, uiErr
	}
	return outcome.result, prog.Files, outcome.err
}
