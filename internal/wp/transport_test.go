package wp

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// fakeClock allows deterministic control of time passage.
type fakeClock struct {
	now   time.Time
	slept time.Duration
}

func newFakeClock() *fakeClock              { return &fakeClock{now: time.Unix(0, 0)} }
func (fc *fakeClock) Now() time.Time        { return fc.now }
func (fc *fakeClock) Sleep(d time.Duration) { fc.now = fc.now.Add(d); fc.slept += d }

// fakeRT returns a queued series of responses or errors.
type fakeRT struct {
	calls  atomic.Int64
	queue  []any // *http.Response or error
	bodies []string
}

func (frt *fakeRT) RoundTrip(req *http.Request) (*http.Response, error) {
	idx := frt.calls.Add(1) - 1
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		frt.bodies = append(frt.bodies, string(b))
	}
	if int(idx) >= len(frt.queue) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}
	switch item := frt.queue[idx].(type) {
	case *http.Response:
		if item.Body == nil {
			item.Body = http.NoBody
		}
		return item, nil
	case error:
		return nil, item
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

const testHost = "shop.example.com"

func testOptions(fc *fakeClock, retryMax int) TransportOptions {
	return TransportOptions{
		RetryMax:    retryMax,
		BackoffBase: 250 * time.Millisecond,
		BackoffCap:  5 * time.Second,
		Clock:       fc,
		JitterFn:    func(time.Duration, int) time.Duration { return 0 },
		Metrics:     NewMetrics(),
		HostLimits:  map[string]Limit{testHost: {RPS: 1000, Burst: 1000}},
	}
}

func newReq(method, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, _ := http.NewRequestWithContext(context.Background(), method, "https://"+testHost+APIPath+"/posts", r)
	return req
}

func TestDefaultOptionsDoNotThrottle(t *testing.T) {
	tr := NewRetryingLimiterTransport(DefaultTransportOptions())
	tr.Base = &fakeRT{}

	for i := 0; i < 50; i++ {
		if _, err := tr.RoundTrip(newReq(http.MethodGet, "")); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	lim := tr.getLimiter(testHost)
	if lim.Limit() != rate.Inf {
		t.Fatalf("default limit = %v, want unlimited", lim.Limit())
	}
	// backoff nudges must not turn an unlimited host into 1 req/s
	tr.adjust(lim, testHost, -0.3)
	if lim.Limit() != rate.Inf {
		t.Fatalf("limit after adjust = %v, want unlimited", lim.Limit())
	}

	limited := NewRetryingLimiterTransport(TransportOptions{Default: Limit{RPS: 5, Burst: 1}})
	if got := limited.getLimiter(testHost).Limit(); got != 5 {
		t.Fatalf("configured limit = %v, want 5", got)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	fc := newFakeClock()
	opt := testOptions(fc, 2)
	frt := &fakeRT{queue: []any{
		&http.Response{StatusCode: 429, Header: http.Header{"Retry-After": []string{"2"}}, Body: http.NoBody},
		&http.Response{StatusCode: 201, Body: http.NoBody},
	}}
	tr := NewRetryingLimiterTransport(opt)
	tr.Base = frt

	resp, err := tr.RoundTrip(newReq(http.MethodGet, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}
	if fc.slept != 2*time.Second {
		t.Fatalf("expected 2s sleep, got %v", fc.slept)
	}
	if opt.Metrics.TotalRetries.Load() != 1 {
		t.Fatalf("expected 1 retry, got %d", opt.Metrics.TotalRetries.Load())
	}
}

func TestBackoffOn503ReplaysBody(t *testing.T) {
	fc := newFakeClock()
	frt := &fakeRT{queue: []any{
		&http.Response{StatusCode: 503, Body: http.NoBody},
		&http.Response{StatusCode: 201, Body: http.NoBody},
	}}
	tr := NewRetryingLimiterTransport(testOptions(fc, 2))
	tr.Base = frt

	resp, err := tr.RoundTrip(newReq(http.MethodPost, `{"title":"a"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}
	if fc.slept != 250*time.Millisecond {
		t.Fatalf("expected 250ms sleep, got %v", fc.slept)
	}
	if len(frt.bodies) != 2 || frt.bodies[0] != frt.bodies[1] {
		t.Fatalf("body not replayed: %q", frt.bodies)
	}
}

func TestNoRetryByDefault(t *testing.T) {
	fc := newFakeClock()
	frt := &fakeRT{queue: []any{&http.Response{StatusCode: 503, Body: http.NoBody}}}
	tr := NewRetryingLimiterTransport(testOptions(fc, 0))
	tr.Base = frt

	resp, err := tr.RoundTrip(newReq(http.MethodPost, "x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 503 {
		t.Fatalf("expected the 503 to surface, got %d", resp.StatusCode)
	}
	if frt.calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", frt.calls.Load())
	}
}

type transientErr struct{}

func (transientErr) Error() string   { return "temporary network error" }
func (transientErr) Timeout() bool   { return true }
func (transientErr) Temporary() bool { return true }

func TestTransientErrorRetriedAndAttributed(t *testing.T) {
	fc := newFakeClock()
	frt := &fakeRT{queue: []any{transientErr{}, &http.Response{StatusCode: 201, Body: http.NoBody}}}
	tr := NewRetryingLimiterTransport(testOptions(fc, 1))
	tr.Base = frt

	rc := &RetryCounters{}
	req := newReq(http.MethodGet, "")
	req = req.WithContext(WithRetryCounters(req.Context(), rc))
	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.Net.Load() != 1 || rc.Total.Load() != 1 {
		t.Fatalf("unexpected counters: net=%d total=%d", rc.Net.Load(), rc.Total.Load())
	}
}

func TestCancelledContext(t *testing.T) {
	fc := newFakeClock()
	frt := &fakeRT{queue: []any{transientErr{}, &http.Response{StatusCode: 200, Body: http.NoBody}}}
	tr := NewRetryingLimiterTransport(testOptions(fc, 1))
	tr.Base = frt

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+testHost+"/x", nil)
	cancel()
	if _, err := tr.RoundTrip(req); err == nil {
		t.Fatalf("expected error due to cancellation")
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := parseRetryAfter("3", now); got != 3*time.Second {
		t.Fatalf("seconds: got %v", got)
	}
	date := now.Add(10 * time.Second).Format(http.TimeFormat)
	if got := parseRetryAfter(date, now); got != 10*time.Second {
		t.Fatalf("http-date: got %v", got)
	}
	if got := parseRetryAfter("soon", now); got != 0 {
		t.Fatalf("garbage: got %v", got)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(transientErr{}) {
		t.Fatal("timeout error should be transient")
	}
	if !IsTransient(io.ErrUnexpectedEOF) {
		t.Fatal("unexpected EOF should be transient")
	}
	if IsTransient(&StatusError{Op: "post.create", Code: 400, Status: "400 Bad Request"}) {
		t.Fatal("status errors are not transport failures")
	}
	if IsTransient(nil) {
		t.Fatal("nil is not transient")
	}
}

func TestEndpointOf(t *testing.T) {
	cases := map[string]string{
		"/wp-json/wp/v2/media":  EndpointMedia,
		"/wp-json/wp/v2/posts/": EndpointPosts,
		"/wp-json/wp/v2/tags":   EndpointTags,
		"/wp-json/wp/v2/users":  EndpointOther,
		"":                      EndpointOther,
	}
	for in, want := range cases {
		if got := endpointOf(in); got != want {
			t.Errorf("endpointOf(%q) = %q, want %q", in, got, want)
		}
	}
}
