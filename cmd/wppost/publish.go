package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"wp-bulkpost/internal/config"
	"wp-bulkpost/internal/core/pipeline"
	"wp-bulkpost/internal/core/publish"
	"wp-bulkpost/internal/infra/logx"
	"wp-bulkpost/internal/ledger"
	"wp-bulkpost/internal/ui"
)

type publishFlags struct {
	concurrency int
	batchSize   int
	noTUI       bool
	dryRun      bool
}

func newPublishCmd(root *rootFlags) *cobra.Command {
	flags := &publishFlags{}
	cmd := &cobra.Command{
		Use:   "publish <name>",
		Short: "Publish every row of <name>.csv and write <name>_posted.csv",
		Example: `  wppost publish brushes
  wppost publish brushes --dry-run > preview.md
  wppost publish brushes --concurrency 5 --no-tui -v`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Publish.Concurrency = flags.concurrency
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.Publish.BatchSize = flags.batchSize
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			name := args[0]
			if flags.dryRun {
				defer setupLogging(cfg, root.verbose, cmd.ErrOrStderr())()
				n, err := pipeline.DryRun(pipeline.Options{Name: name, Config: cfg}, cmd.OutOrStdout())
				fmt.Fprintf(cmd.ErrOrStderr(), "previewed %d items\n", n)
				return err
			}
			if err := cfg.ValidateRemote(); err != nil {
				return err
			}
			return runPublish(cmd, root, cfg, name, !flags.noTUI && isTerminal(os.Stdout))
		},
	}
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", config.DefaultConcurrency, "items processed at the same time")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", config.DefaultBatchSize, "items per batch")
	cmd.Flags().BoolVar(&flags.noTUI, "no-tui", false, "print one line per batch instead of the progress view")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "render markdown previews of the posts without publishing")
	return cmd
}

func runPublish(cmd *cobra.Command, root *rootFlags, cfg config.Config, name string, useTUI bool) error {
	if useTUI {
		done, err := logToFile(cfg, root.verbose)
		if err != nil {
			return err
		}
		defer done()
	} else {
		defer setupLogging(cfg, root.verbose, cmd.ErrOrStderr())()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := pipeline.NewClient(cfg)
	opts := pipeline.Options{
		Name:    name,
		Config:  cfg,
		API:     client,
		Metrics: client.Metrics(),
	}

	// an unusable ledger must not stop the run or the output file
	if cfg.Ledger.DSN != "" {
		l, err := openLedger(ctx, cfg.Ledger.DSN)
		if err != nil {
			logx.Errorw("ledger disabled", logx.FieldError, err)
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: ledger disabled:", err)
		} else {
			defer l.Close()
			opts.Recorder = l
		}
	}

	var (
		sum pipeline.Summary
		err error
	)
	if useTUI {
		work := func(ctx context.Context, rep publish.Reporter) (pipeline.Summary, error) {
			opts.Reporter = rep
			return pipeline.Run(ctx, opts)
		}
		sum, err = ui.Run(ctx, name, cfg.Publish.Concurrency, client.Metrics(), work, tea.WithAltScreen())
	} else {
		opts.Reporter = ui.NewLineReporter(cmd.ErrOrStderr())
		sum, err = pipeline.Run(ctx, opts)
	}

	if sum.RunID != "" {
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSummary(sum, err))
	}
	if err != nil {
		logx.Errorw("publish failed", logx.FieldRunID, sum.RunID, logx.FieldError, err)
	}
	return err
}

func openLedger(ctx context.Context, dsn string) (*ledger.Ledger, error) {
	l, err := ledger.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := l.EnsureSchema(ctx); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}
