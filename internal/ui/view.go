package ui

import (
	"fmt"
	"strings"
	"time"
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("wppost"))
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render(m.name))
	b.WriteString("\n\n")

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	pct := 0.0
	if m.total > 0 {
		pct = float64(m.processed()) / float64(m.total)
	}
	b.WriteString(m.bar.ViewAs(pct))
	b.WriteString(fmt.Sprintf("  %d/%d\n", m.processed(), m.total))

	b.WriteString(okStyle.Render(fmt.Sprintf("%d✓ published", m.succeeded)))
	if m.failed > 0 {
		b.WriteString("  ")
		b.WriteString(errorStyle.Render(fmt.Sprintf("%d✗ dropped", m.failed)))
	}
	b.WriteString("\n")
	b.WriteString(m.renderStatsPanel())
	b.WriteString("\n")

	for _, it := range m.recent {
		if it.ok {
			b.WriteString(okStyle.Render("  ✓ "))
		} else {
			b.WriteString(errorStyle.Render("  ✗ "))
		}
		b.WriteString(whiteTextStyle.Render(it.name))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	switch {
	case m.finished:
		return listHeaderStyle.Render(fmt.Sprintf("Finished in %s", time.Since(m.started).Round(time.Second)))
	case m.batches == 0:
		return m.spinner.View() + " Reading input..."
	default:
		text := fmt.Sprintf("Batch %d/%d · %d/%d in batch", m.batch, m.batches, m.batchDone, m.batchSize)
		return m.spinner.View() + " " + listHeaderStyle.Render(text)
	}
}

func (m Model) renderStatsPanel() string {
	barWidth := 8
	running := m.running()
	filled := min(barWidth*running/m.workers, barWidth)

	var bar strings.Builder
	bar.WriteString("[")
	for i := 0; i < barWidth; i++ {
		if i < filled {
			bar.WriteString(workersBarStyle.Render("█"))
		} else {
			bar.WriteString(subtleStyle.Render("·"))
		}
	}
	bar.WriteString("]")

	var out strings.Builder
	out.WriteString(whiteTextStyle.Render(fmt.Sprintf("Req/s: %.1f ", m.rps)))
	out.WriteString(renderTrendArrow(m.rps, m.prevRPS, false))
	out.WriteString(whiteTextStyle.Render(fmt.Sprintf("  Retries: %d  429: %d  5xx: %d", m.retries, m.status429, m.status5xx)))
	out.WriteString(whiteTextStyle.Render("  |  Workers: "))
	out.WriteString(bar.String())
	out.WriteString(whiteTextStyle.Render(fmt.Sprintf(" %d/%d", running, m.workers)))
	return out.String()
}

func (m Model) renderFooter() string {
	switch {
	case m.finished:
		return renderFooter("", "q: quit")
	case m.cancelling:
		return renderFooter(warnStyle.Render("Cancelling, waiting for running items..."), "ctrl+c: quit after cancel")
	default:
		return renderFooter(fmt.Sprintf("Elapsed %s", time.Since(m.started).Round(time.Second)), "ctrl+c/q: cancel")
	}
}
