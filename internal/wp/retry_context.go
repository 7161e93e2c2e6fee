package wp

import (
	"context"
	"sync/atomic"
)

type retryCtxKey struct{}

// RetryCounters attributes transport-level retries to one publish item.
// The transport updates it for every request made with the tagged context.
type RetryCounters struct {
	Total     atomic.Int64
	Status429 atomic.Int64
	Status5xx atomic.Int64
	Net       atomic.Int64
}

// WithRetryCounters attaches rc to ctx.
func WithRetryCounters(ctx context.Context, rc *RetryCounters) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, retryCtxKey{}, rc)
}

func getRetryCounters(ctx context.Context) *RetryCounters {
	if ctx == nil {
		return nil
	}
	rc, _ := ctx.Value(retryCtxKey{}).(*RetryCounters)
	return rc
}

func (rc *RetryCounters) countStatus(code int) {
	if rc == nil {
		return
	}
	rc.Total.Add(1)
	switch {
	case code == 429:
		rc.Status429.Add(1)
	case code >= 500:
		rc.Status5xx.Add(1)
	}
}

func (rc *RetryCounters) countNet() {
	if rc == nil {
		return
	}
	rc.Total.Add(1)
	rc.Net.Add(1)
}
