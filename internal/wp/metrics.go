package wp

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Endpoint names used to bucket request counts.
const (
	EndpointMedia = "media"
	EndpointPosts = "posts"
	EndpointTags  = "tags"
	EndpointOther = "other"
)

// Metrics holds lightweight counters for HTTP activity against the REST API.
type Metrics struct {
	TotalRequests     atomic.Int64
	TotalRetries      atomic.Int64
	TotalBackoffNanos atomic.Int64

	ReadRequests  atomic.Int64 // GET
	WriteRequests atomic.Int64 // POST/PUT/PATCH/DELETE

	mu             sync.Mutex
	endpointCounts map[string]int64
	status2xx      int64
	status3xx      int64
	status4xx      int64
	status429      int64
	status5xx      int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics { return &Metrics{endpointCounts: make(map[string]int64)} }

// endpointOf maps a request path like /wp-json/wp/v2/media to "media".
func endpointOf(path string) string {
	path = strings.TrimRight(path, "/")
	i := strings.LastIndex(path, "/")
	last := path[i+1:]
	switch last {
	case EndpointMedia, EndpointPosts, EndpointTags:
		return last
	}
	return EndpointOther
}

// IncRequest increments per-endpoint and total request counters.
func (m *Metrics) IncRequest(path, method string) {
	m.TotalRequests.Add(1)
	switch strings.ToUpper(method) {
	case http.MethodGet:
		m.ReadRequests.Add(1)
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		m.WriteRequests.Add(1)
	}
	m.mu.Lock()
	m.endpointCounts[endpointOf(path)]++
	m.mu.Unlock()
}

// IncRetry increments retry counter.
func (m *Metrics) IncRetry() { m.TotalRetries.Add(1) }

// AddBackoff accumulates backoff sleep time.
func (m *Metrics) AddBackoff(d time.Duration) { m.TotalBackoffNanos.Add(d.Nanoseconds()) }

// IncStatus tracks status buckets. 429 is counted on its own.
func (m *Metrics) IncStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case code == http.StatusTooManyRequests:
		m.status429++
	case code >= 200 && code < 300:
		m.status2xx++
	case code >= 300 && code < 400:
		m.status3xx++
	case code >= 400 && code < 500:
		m.status4xx++
	case code >= 500:
		m.status5xx++
	}
}

// MetricsSnapshot is a read-only copy of metrics state.
type MetricsSnapshot struct {
	TotalRequests  int64
	TotalRetries   int64
	TotalBackoff   time.Duration
	EndpointCounts map[string]int64
	ReadRequests   int64
	WriteRequests  int64
	Status2xx      int64
	Status3xx      int64
	Status4xx      int64
	Status429      int64
	Status5xx      int64
}

// Snapshot returns a copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int64, len(m.endpointCounts))
	for k, v := range m.endpointCounts {
		counts[k] = v
	}
	return MetricsSnapshot{
		TotalRequests:  m.TotalRequests.Load(),
		TotalRetries:   m.TotalRetries.Load(),
		TotalBackoff:   time.Duration(m.TotalBackoffNanos.Load()),
		EndpointCounts: counts,
		ReadRequests:   m.ReadRequests.Load(),
		WriteRequests:  m.WriteRequests.Load(),
		Status2xx:      m.status2xx,
		Status3xx:      m.status3xx,
		Status4xx:      m.status4xx,
		Status429:      m.status429,
		Status5xx:      m.status5xx,
	}
}
