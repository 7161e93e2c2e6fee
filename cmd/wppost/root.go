package main

import (
	"io"
	"log"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"wp-bulkpost/internal/config"
	"wp-bulkpost/internal/infra/logx"
)

type rootFlags struct {
	configPath string
	verbose    int
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "wppost",
		Short: "Bulk-publish products from a CSV file to WordPress",
		Long: `wppost reads <name>.csv (category;name;description;asset;link), uploads
each asset to the WordPress media library, creates a published post and
writes <name>_posted.csv with the URLs of the created posts.

Credentials come from WP_BASE_URL, WP_USER and WP_PSW or the config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.wppost.yaml)")
	cmd.PersistentFlags().CountVarP(&flags.verbose, "verbose", "v", "increase log verbosity (-v info, -vv debug)")

	cmd.AddCommand(newPublishCmd(flags))
	cmd.AddCommand(newTagsCmd(flags))
	cmd.AddCommand(newConfigCmd(flags))
	return cmd
}

func (f *rootFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.Validate()
}

// setupLogging routes logx, and the stdlib logger, to w. The returned
// func syncs and closes what setupLogging opened.
func setupLogging(cfg config.Config, verbose int, w io.Writer) func() {
	level := logx.ParseLevel(cfg.Log.Level)
	switch {
	case verbose >= 2:
		level = logx.LevelDebug
	case verbose == 1 && level > logx.LevelInfo:
		level = logx.LevelInfo
	}
	logx.SetOutput(w)
	logx.SetMinLevel(level)
	logx.SetVerbose(verbose >= 2)
	logx.RegisterSecret(cfg.WordPress.Password)
	log.SetFlags(0)
	log.SetOutput(logx.StdlogWriter(logx.LevelInfo, w))
	return func() { _ = logx.Sync() }
}

// logToFile is setupLogging for runs that own the terminal.
func logToFile(cfg config.Config, verbose int) (func(), error) {
	path := cfg.Log.File
	if path == "" {
		path = config.DefaultLogFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", path)
	}
	done := setupLogging(cfg, verbose, f)
	return func() {
		done()
		_ = f.Close()
	}, nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
