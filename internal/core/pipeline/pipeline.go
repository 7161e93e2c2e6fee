// Package pipeline wires reading, publishing and writing into one run.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"wp-bulkpost/internal/config"
	"wp-bulkpost/internal/content"
	"wp-bulkpost/internal/core/publish"
	"wp-bulkpost/internal/csvio"
	"wp-bulkpost/internal/infra/logx"
	"wp-bulkpost/internal/wp"
)

// Recorder persists published results, e.g. the Postgres ledger.
type Recorder interface {
	Record(ctx context.Context, runID string, results []publish.Result) (int, error)
}

// Options configures a run. Name is the input base name: <Name>.csv is read
// and <Name>_posted.csv is written.
type Options struct {
	Name     string
	Config   config.Config
	Template *content.Template

	// API defaults to a WordPress client built from Config. Metrics is the
	// transport metrics of a supplied API, if any.
	API      publish.API
	Metrics  *wp.Metrics
	Reporter publish.Reporter
	Recorder Recorder
	// Clock overrides the retry delay clock, for tests.
	Clock publish.Clock
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	Total      int
	Succeeded  int
	Dropped    int
	Recorded   int
	OutputPath string
	Duration   time.Duration
	Metrics    *wp.MetricsSnapshot
}

// NewClient builds the WordPress client described by cfg.
func NewClient(cfg config.Config) *wp.Client {
	topts := wp.DefaultTransportOptions()
	topts.RetryMax = cfg.HTTP.RetryMax
	if cfg.HTTP.RPS > 0 {
		topts.Default = wp.Limit{RPS: cfg.HTTP.RPS, Burst: max(cfg.HTTP.Burst, 1)}
	}
	return wp.New(wp.Options{
		BaseURL:  cfg.WordPress.BaseURL,
		Username: cfg.WordPress.User,
		Password: cfg.WordPress.Password,
		Timeouts: wp.Timeouts{
			Total:   cfg.HTTP.TotalTimeout,
			Connect: cfg.HTTP.ConnectTimeout,
			Read:    cfg.HTTP.ReadTimeout,
		},
		Transport: topts,
	})
}

// Run reads the input, publishes every item and writes the output file.
// The output file is written exactly once on every exit path, holding the
// results gathered so far, even when reading fails, the context is
// cancelled or a panic unwinds the run.
func Run(ctx context.Context, opts Options) (sum Summary, err error) {
	start := time.Now()
	sum.RunID = uuid.NewString()
	sum.OutputPath = csvio.OutputPath(opts.Name)
	var results []publish.Result
	metrics := opts.Metrics

	defer func() {
		if r := recover(); r != nil {
			logx.Errorw("run panicked", logx.FieldRunID, sum.RunID, "panic", r)
			err = errors.CombineErrors(err, errors.Newf("run panicked: %v", r))
		}
		path, werr := csvio.WriteResults(opts.Name, results)
		sum.OutputPath = path
		if werr != nil {
			logx.Errorw("output not written", logx.FieldRunID, sum.RunID, logx.FieldPath, path, logx.FieldError, werr)
			err = errors.CombineErrors(err, werr)
		}
		sum.Succeeded = len(results)
		sum.Dropped = sum.Total - sum.Succeeded
		sum.Duration = time.Since(start)
		if metrics != nil {
			snap := metrics.Snapshot()
			sum.Metrics = &snap
		}
		if err != nil {
			logx.Errorw("run finished with error", logx.FieldRunID, sum.RunID,
				logx.FieldCount, sum.Succeeded, logx.FieldError, err)
		} else {
			logx.Infow("run finished", logx.FieldRunID, sum.RunID,
				logx.FieldCount, sum.Succeeded, "dropped", sum.Dropped, logx.FieldPath, path)
		}
	}()

	items, err := csvio.ReadItems(opts.Name, csvio.ReadOptions{AffiliateID: opts.Config.Referral.AffiliateID})
	if err != nil {
		return sum, err
	}
	sum.Total = len(items)
	logx.Warnw("publishing items", logx.FieldRunID, sum.RunID, logx.FieldCount, len(items))

	tpl := opts.Template
	if tpl == nil {
		if tpl, err = content.Load(opts.Config.TemplatePath); err != nil {
			return sum, err
		}
	}

	api := opts.API
	if api == nil {
		client := NewClient(opts.Config)
		metrics = client.Metrics()
		api = client
	}

	popts := publish.OptionsFromConfig(opts.Config.Publish)
	if opts.Clock != nil {
		popts.Clock = opts.Clock
	}
	pub := publish.NewPublisher(api, tpl, popts)

	sopts := publish.SchedulerOptionsFromConfig(opts.Config.Publish)
	sopts.Reporter = opts.Reporter
	results, err = publish.NewScheduler(pub, sopts).Run(ctx, items)

	if opts.Recorder != nil && len(results) > 0 {
		// the ledger outlives a cancelled run
		n, rerr := opts.Recorder.Record(context.WithoutCancel(ctx), sum.RunID, results)
		if rerr != nil {
			logx.Errorw("ledger not updated", logx.FieldRunID, sum.RunID, logx.FieldError, rerr)
		}
		sum.Recorded = n
	}
	return sum, err
}

// DryRun renders a markdown preview of every post to w without any remote
// call and returns the number of items previewed.
func DryRun(opts Options, w io.Writer) (int, error) {
	items, err := csvio.ReadItems(opts.Name, csvio.ReadOptions{AffiliateID: opts.Config.Referral.AffiliateID})
	if err != nil {
		return 0, err
	}
	tpl := opts.Template
	if tpl == nil {
		if tpl, err = content.Load(opts.Config.TemplatePath); err != nil {
			return 0, err
		}
	}
	pv := content.NewPreviewer()
	for i, it := range items {
		text, err := pv.Preview(it.Name, tpl.Render(it.Description, it.TargetLink))
		if err != nil {
			return i, errors.Wrapf(err, "preview %q", it.Name)
		}
		if _, err := fmt.Fprintf(w, "<!-- %d/%d category=%s asset=%s -->\n%s\n", i+1, len(items), it.Category, it.AssetPath, text); err != nil {
			return i, errors.Wrap(err, "write preview")
		}
	}
	return len(items), nil
}
