package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"wp-bulkpost/internal/core/pipeline"
)

// RenderSummary formats the end-of-run report.
func RenderSummary(sum pipeline.Summary, err error) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Publish summary"))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Run:        %s\n", sum.RunID)
	fmt.Fprintf(&b, "Items:      %d\n", sum.Total)
	b.WriteString("Published:  " + okStyle.Render(fmt.Sprint(sum.Succeeded)) + "\n")
	if sum.Dropped > 0 {
		b.WriteString("Dropped:    " + errorStyle.Render(fmt.Sprint(sum.Dropped)) + "\n")
	} else {
		b.WriteString("Dropped:    0\n")
	}
	if sum.Recorded > 0 {
		fmt.Fprintf(&b, "Recorded:   %d\n", sum.Recorded)
	}
	if sum.OutputPath != "" {
		fmt.Fprintf(&b, "Output:     %s\n", sum.OutputPath)
	}
	fmt.Fprintf(&b, "Duration:   %s\n", sum.Duration.Round(time.Millisecond))

	if m := sum.Metrics; m != nil && m.TotalRequests > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "Requests:   %d (%d read, %d write)\n", m.TotalRequests, m.ReadRequests, m.WriteRequests)
		fmt.Fprintf(&b, "Statuses:   2xx %d · 4xx %d · 429 %d · 5xx %d\n", m.Status2xx, m.Status4xx, m.Status429, m.Status5xx)
		if m.TotalRetries > 0 {
			fmt.Fprintf(&b, "Retries:    %d (backoff %s)\n", m.TotalRetries, m.TotalBackoff.Round(time.Millisecond))
		}
		keys := make([]string, 0, len(m.EndpointCounts))
		for k := range m.EndpointCounts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s %d", k, m.EndpointCounts[k]))
		}
		if len(parts) > 0 {
			b.WriteString("Endpoints:  " + strings.Join(parts, " · ") + "\n")
		}
	}

	if err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: ") + err.Error())
	}
	return summaryBoxStyle.Render(strings.TrimSuffix(b.String(), "\n"))
}
