package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/errors"

	"wp-bulkpost/internal/core/pipeline"
	"wp-bulkpost/internal/core/publish"
	"wp-bulkpost/internal/wp"
)

// WorkFunc performs the run, reporting progress to rep.
type WorkFunc func(ctx context.Context, rep publish.Reporter) (pipeline.Summary, error)

// Run shows the progress view while work runs in the background. Quitting
// the view cancels the work; Run always waits for work to return so the
// output file is written before the caller exits.
func Run(ctx context.Context, name string, workers int, metrics *wp.Metrics, work WorkFunc, opts ...tea.ProgramOption) (pipeline.Summary, error) {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(name, workers, metrics, cancel), append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)

	type outcome struct {
		sum pipeline.Summary
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		sum, err := work(workCtx, NewReporter(p))
		done <- outcome{sum, err}
		p.Send(runDoneMsg{summary: sum, err: err})
	}()

	_, uiErr := p.Run()
	// the program may have stopped before the work; stop the work too
	cancel()
	res := <-done

	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return res.sum, errors.CombineErrors(res.err, errors.Wrap(uiErr, "progress view"))
	}
	return res.sum, res.err
}
