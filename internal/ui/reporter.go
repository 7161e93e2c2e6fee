package ui

import (
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"wp-bulkpost/internal/core/publish"
)

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Reporter forwards scheduler progress to a running program.
type Reporter struct {
	s Sender
}

// NewReporter creates a reporter sending to s.
func NewReporter(s Sender) *Reporter { return &Reporter{s: s} }

func (r *Reporter) Started(total, batches int) {
	r.s.Send(startedMsg{total: total, batches: batches})
}

func (r *Reporter) BatchStarted(batch, size int) {
	r.s.Send(batchStartedMsg{batch: batch, size: size})
}

func (r *Reporter) ItemDone(item publish.Item, ok bool) {
	r.s.Send(itemDoneMsg{name: item.Name, ok: ok})
}

func (r *Reporter) BatchDone(batch, done, succeeded int) {
	r.s.Send(batchDoneMsg{batch: batch, done: done, succeeded: succeeded})
}

// LineReporter prints one line per batch, for runs without the TUI.
type LineReporter struct {
	mu      sync.Mutex
	w       io.Writer
	total   int
	batches int
}

// NewLineReporter creates a reporter writing to w.
func NewLineReporter(w io.Writer) *LineReporter { return &LineReporter{w: w} }

func (r *LineReporter) Started(total, batches int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total, r.batches = total, batches
	fmt.Fprintf(r.w, "publishing %d items in %d batches\n", total, batches)
}

func (r *LineReporter) BatchStarted(int, int) {}

func (r *LineReporter) ItemDone(publish.Item, bool) {}

func (r *LineReporter) BatchDone(batch, done, succeeded int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "batch %d/%d: %d/%d processed, %d published\n", batch, r.batches, done, r.total, succeeded)
}
