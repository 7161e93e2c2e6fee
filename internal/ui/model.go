package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"wp-bulkpost/internal/core/pipeline"
	"wp-bulkpost/internal/wp"
)

const recentItems = 6

type itemLine struct {
	name string
	ok   bool
}

// Model renders the progress of one publish run.
type Model struct {
	name    string
	workers int
	cancel  context.CancelFunc

	total     int
	batches   int
	batch     int
	batchSize int
	batchDone int
	done      int
	succeeded int
	failed    int
	recent    []itemLine

	spinner spinner.Model
	bar     progress.Model
	width   int

	// transport stats, sampled on statsTickMsg
	metrics      *wp.Metrics
	lastSnap     wp.MetricsSnapshot
	lastSnapTime time.Time
	rps          float64
	prevRPS      float64
	retries      int64
	status429    int64
	status5xx    int64

	started    time.Time
	cancelling bool
	finished   bool
	summary    pipeline.Summary
	err        error
}

// NewModel creates the progress model. cancel is invoked once when the
// user asks to stop; metrics may be nil.
func NewModel(name string, workers int, metrics *wp.Metrics, cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = subtleStyle

	if workers <= 0 {
		workers = 1
	}
	return Model{
		name:    name,
		workers: workers,
		cancel:  cancel,
		spinner: sp,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		metrics: metrics,
		started: time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, statsTick())
}

// Summary returns the outcome once the run finished.
func (m Model) Summary() (pipeline.Summary, error) { return m.summary, m.err }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.finished {
				return m, tea.Quit
			}
			if !m.cancelling {
				m.cancelling = true
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(max(msg.Width-24, 10), 60)
		return m, nil

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statsTickMsg:
		if m.finished {
			return m, nil
		}
		m.sample(time.Now())
		return m, statsTick()

	case startedMsg:
		m.total = msg.total
		m.batches = msg.batches
		return m, nil

	case batchStartedMsg:
		m.batch = msg.batch
		m.batchSize = msg.size
		m.batchDone = 0
		return m, nil

	case itemDoneMsg:
		m.batchDone++
		if msg.ok {
			m.succeeded++
		} else {
			m.failed++
		}
		m.recent = append(m.recent, itemLine(msg))
		if len(m.recent) > recentItems {
			m.recent = m.recent[len(m.recent)-recentItems:]
		}
		return m, nil

	case batchDoneMsg:
		m.done = msg.done
		m.succeeded = msg.succeeded
		m.failed = m.done - m.succeeded
		return m, nil

	case runDoneMsg:
		m.finished = true
		m.summary = msg.summary
		m.err = msg.err
		m.sample(time.Now())
		return m, tea.Quit
	}
	return m, nil
}

// processed counts items finished so far, including the running batch.
func (m Model) processed() int { return m.succeeded + m.failed }

// running estimates in-flight items from the current batch.
func (m Model) running() int {
	if m.finished || m.batchSize == 0 {
		return 0
	}
	return max(min(m.batchSize-m.batchDone, m.workers), 0)
}

func (m *Model) sample(now time.Time) {
	if m.metrics == nil {
		return
	}
	snap := m.metrics.Snapshot()
	if !m.lastSnapTime.IsZero() {
		if dt := now.Sub(m.lastSnapTime).Seconds(); dt > 0 {
			m.prevRPS = m.rps
			m.rps = float64(snap.TotalRequests-m.lastSnap.TotalRequests) / dt
		}
	}
	m.lastSnap = snap
	m.lastSnapTime = now
	m.retries = snap.TotalRetries
	m.status429 = snap.Status429
	m.status5xx = snap.Status5xx
}
