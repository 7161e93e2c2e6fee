package wp

import (
	"bytes"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Limit defines a simple rate limit: RPS with a burst capacity. A zero
// RPS leaves the host unthrottled.
type Limit struct {
	RPS   float64
	Burst int
}

// TransportOptions configures the rate-limited, optionally retrying transport.
//
// RetryMax is zero by default: the publisher owns the per-endpoint retry
// budgets and transport retries would multiply the attempt counts.
type TransportOptions struct {
	RetryMax    int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	JitterFn    func(base time.Duration, attempt int) time.Duration
	Clock       Clock
	Metrics     *Metrics

	// Host-specific limits (by req.URL.Host). Missing hosts use Default,
	// which is unlimited unless set.
	HostLimits map[string]Limit
	Default    Limit
}

// DefaultTransportOptions returns defaults for a single WordPress host.
func DefaultTransportOptions() TransportOptions {
	return TransportOptions{
		RetryMax:    0,
		BackoffBase: 250 * time.Millisecond,
		BackoffCap:  5 * time.Second,
		Clock:       realClock{},
		JitterFn: func(base time.Duration, attempt int) time.Duration {
			if base <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(base.Nanoseconds()))
		},
		Metrics: NewMetrics(),
	}
}

// RetryingLimiterTransport wraps a base RoundTripper with host-based rate
// limiting, metrics and retries on 429/5xx.
type RetryingLimiterTransport struct {
	Base     http.RoundTripper
	Opts     TransportOptions
	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRetryingLimiterTransport(opts TransportOptions) *RetryingLimiterTransport {
	return &RetryingLimiterTransport{Opts: opts, limiters: make(map[string]*rate.Limiter)}
}

func (t *RetryingLimiterTransport) limitFor(host string) Limit {
	if v, ok := t.Opts.HostLimits[host]; ok && v.RPS > 0 {
		return v
	}
	return t.Opts.Default
}

func (t *RetryingLimiterTransport) getLimiter(host string) *rate.Limiter {
	if host == "" {
		host = "_default_"
	}
	t.limMu.Lock()
	defer t.limMu.Unlock()
	if l, ok := t.limiters[host]; ok {
		return l
	}
	lim := t.limitFor(host)
	l := rate.NewLimiter(rate.Inf, 0)
	if lim.RPS > 0 {
		l = rate.NewLimiter(rate.Limit(lim.RPS), max(1, lim.Burst))
	}
	t.limiters[host] = l
	return l
}

// adjust nudges the limiter within [1, configured RPS].
func (t *RetryingLimiterTransport) adjust(l *rate.Limiter, host string, delta float64) {
	ceiling := t.limitFor(host).RPS
	if ceiling <= 0 {
		return
	}
	next := math.Max(1, math.Min(ceiling, float64(l.Limit())+delta))
	l.SetLimit(rate.Limit(next))
}

func (t *RetryingLimiterTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *RetryingLimiterTransport) clock() Clock {
	if t.Opts.Clock != nil {
		return t.Opts.Clock
	}
	return realClock{}
}

func (t *RetryingLimiterTransport) jitter(base time.Duration, attempt int) time.Duration {
	if t.Opts.JitterFn != nil {
		return t.Opts.JitterFn(base, attempt)
	}
	return 0
}

// ensureGetBody makes POST/PUT/PATCH bodies replayable across retries.
func ensureGetBody(req *http.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}
	if req.Method != http.MethodPost && req.Method != http.MethodPut && req.Method != http.MethodPatch {
		return nil
	}
	buf, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	req.Body.Close()
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	req.Body = io.NopCloser(bytes.NewReader(buf))
	return nil
}

func (t *RetryingLimiterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := ensureGetBody(req); err != nil {
		return nil, err
	}

	host := req.URL.Host
	lim := t.getLimiter(host)
	metrics := t.Opts.Metrics
	if metrics != nil {
		metrics.IncRequest(req.URL.Path, req.Method)
	}
	rc := getRetryCounters(req.Context())

	attempts := max(1, t.Opts.RetryMax+1)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := lim.Wait(req.Context()); err != nil {
			return nil, err
		}

		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		resp, err := t.base().RoundTrip(req)
		if err != nil {
			if IsTransient(err) && attempt < attempts-1 {
				lastErr = err
				rc.countNet()
				if metrics != nil {
					metrics.IncRetry()
				}
				t.sleepBackoff(attempt)
				t.adjust(lim, host, -0.1)
				continue
			}
			return nil, err
		}

		if metrics != nil {
			metrics.IncStatus(resp.StatusCode)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			t.adjust(lim, host, +0.02)
		}

		if shouldRetryStatus(resp.StatusCode) && attempt < attempts-1 {
			resp.Body.Close()
			rc.countStatus(resp.StatusCode)
			if metrics != nil {
				metrics.IncRetry()
			}
			if ra := parseRetryAfter(resp.Header.Get("Retry-After"), t.clock().Now()); ra > 0 {
				t.adjust(lim, host, -0.3)
				wait := minDur(ra, t.backoffCap())
				if metrics != nil {
					metrics.AddBackoff(wait)
				}
				t.clock().Sleep(wait)
				continue
			}
			t.adjust(lim, host, -0.2)
			t.sleepBackoff(attempt)
			continue
		}

		return resp, nil
	}
	if lastErr == nil {
		lastErr = errors.New("max retries exceeded")
	}
	return nil, lastErr
}

func (t *RetryingLimiterTransport) backoffCap() time.Duration {
	if t.Opts.BackoffCap > 0 {
		return t.Opts.BackoffCap
	}
	return 5 * time.Second
}

func (t *RetryingLimiterTransport) sleepBackoff(attempt int) {
	base := t.Opts.BackoffBase
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	cap := t.backoffCap()
	delay := minDur(time.Duration(float64(base)*math.Pow(2, float64(attempt))), cap)
	wait := minDur(delay+t.jitter(delay, attempt), cap)
	t.clock().Sleep(wait)
	if t.Opts.Metrics != nil {
		t.Opts.Metrics.AddBackoff(wait)
	}
}

// IsTransient reports whether err looks like a retryable network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	// Sometimes wrapped or stringly-typed
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporary") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "transient")
}

func shouldRetryStatus(code int) bool {
	return code == 429 || code == 502 || code == 503 || code == 504
}

func parseRetryAfter(h string, now time.Time) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(h); err == nil {
		if d := when.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
