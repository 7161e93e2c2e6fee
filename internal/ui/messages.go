package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"wp-bulkpost/internal/core/pipeline"
)

// ---------- Messages / Cmds ----------
type startedMsg struct {
	total   int
	batches int
}

type batchStartedMsg struct {
	batch int
	size  int
}

type itemDoneMsg struct {
	name string
	ok   bool
}

type batchDoneMsg struct {
	batch     int
	done      int
	succeeded int
}

// runDoneMsg carries the outcome of the background run and ends the program.
type runDoneMsg struct {
	summary pipeline.Summary
	err     error
}

type statsTickMsg struct{}

func statsTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg { return statsTickMsg{} })
}
