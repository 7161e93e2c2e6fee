package publish

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"

	"wp-bulkpost/internal/config"
	"wp-bulkpost/internal/infra/logx"
)

// Processor publishes a single item. A nil result means the item was dropped.
type Processor interface {
	ProcessItem(ctx context.Context, item Item) (*Result, error)
}

// Reporter receives progress. ItemDone is called from worker goroutines and
// must be safe for concurrent use; the other callbacks come from the
// scheduler goroutine.
type Reporter interface {
	Started(total, batches int)
	BatchStarted(batch, size int)
	ItemDone(item Item, ok bool)
	BatchDone(batch, done, succeeded int)
}

type nopReporter struct{}

func (nopReporter) Started(int, int)        {}
func (nopReporter) BatchStarted(int, int)   {}
func (nopReporter) ItemDone(Item, bool)     {}
func (nopReporter) BatchDone(int, int, int) {}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Concurrency       int
	BatchSize         int
	AbortOnBatchError bool
	Reporter          Reporter
}

// SchedulerOptionsFromConfig maps the publish section of the configuration.
func SchedulerOptionsFromConfig(pc config.PublishConfig) SchedulerOptions {
	return SchedulerOptions{
		Concurrency:       pc.Concurrency,
		BatchSize:         pc.BatchSize,
		AbortOnBatchError: pc.AbortOnBatchError,
	}
}

// Scheduler runs a Processor over many items with a fixed ceiling on
// in-flight work, batch by batch.
type Scheduler struct {
	proc Processor
	opts SchedulerOptions
}

// NewScheduler creates a new scheduler.
func NewScheduler(proc Processor, opts SchedulerOptions) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = config.DefaultConcurrency
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = config.DefaultBatchSize
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	return &Scheduler{proc: proc, opts: opts}
}

type outcome struct {
	result *Result
	err    error
	// fault is set when processing panicked rather than returned.
	fault error
}

// Run processes every item and returns the successful results in completion
// order. The returned error is the context error when the run was cancelled,
// or a batch fault when AbortOnBatchError is set. Results gathered so far
// are returned alongside any error.
func (s *Scheduler) Run(ctx context.Context, items []Item) ([]Result, error) {
	sem := semaphore.NewWeighted(int64(s.opts.Concurrency))
	size := s.opts.BatchSize
	batches := (len(items) + size - 1) / size
	results := make([]Result, 0, len(items))
	done := 0
	s.opts.Reporter.Started(len(items), batches)

	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		lo := b * size
		hi := min(lo+size, len(items))
		batch := items[lo:hi]
		s.opts.Reporter.BatchStarted(b+1, len(batch))

		// buffered so workers never block; receive order is completion order
		out := make(chan outcome, len(batch))
		var wg sync.WaitGroup
		for _, it := range batch {
			wg.Add(1)
			go func(it Item) {
				defer wg.Done()
				o := s.runOne(ctx, sem, it)
				s.opts.Reporter.ItemDone(it, o.result != nil)
				out <- o
			}(it)
		}
		wg.Wait()
		close(out)

		var fault error
		for o := range out {
			if o.result != nil {
				results = append(results, *o.result)
			}
			if o.fault != nil {
				fault = errors.CombineErrors(fault, o.fault)
			}
		}
		done += len(batch)
		s.opts.Reporter.BatchDone(b+1, done, len(results))
		logx.Infow("batch finished", logx.FieldBatch, b+1, logx.FieldCount, len(results), "processed", done)

		if fault != nil {
			logx.Errorw("batch failed", logx.FieldBatch, b+1, logx.FieldCount, len(results), logx.FieldError, fault)
			if s.opts.AbortOnBatchError {
				return results, errors.Wrapf(fault, "batch %d", b+1)
			}
		}
	}
	return results, ctx.Err()
}

// runOne holds a semaphore slot for the duration of one item. The slot is
// released on every path, panics included.
func (s *Scheduler) runOne(ctx context.Context, sem *semaphore.Weighted, it Item) (o outcome) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return outcome{err: err}
	}
	defer sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			logx.Errorw("item panicked", logx.FieldItem, it.Name, "panic", r, "stack", string(debug.Stack()))
			o = outcome{fault: errors.Newf("item %q panicked: %v", it.Name, r)}
		}
	}()
	res, err := s.proc.ProcessItem(ctx, it)
	return outcome{result: res, err: err}
}
