package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/zynpsy/threadsimulation/internal/archive"
	"github.com/zynpsy/threadsimulation/internal/config"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath  string
	endpoint    string
	apiBaseURL  string
	archivePath string
	logFile     string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "threadsim",
		Short: "Watch live thread simulations",
		Long: `threadsim connects to the thread simulation backend, streams personas and
simulated replies into a terminal UI, and archives completed runs.

Quick Start:
  threadsim                          # open the live view
  threadsim history                  # list archived runs
  threadsim history --run <id>       # print one transcript
  threadsim mcp                      # serve the archive to MCP clients`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	pf.StringVar(&opts.endpoint, "endpoint", "", "WebSocket endpoint (overrides config)")
	pf.StringVar(&opts.apiBaseURL, "api", "", "HTTP API base URL (overrides config)")
	pf.StringVar(&opts.archivePath, "archive", "", "Run archive path (overrides config)")
	pf.StringVar(&opts.logFile, "log-file", "", "Write logs to this file (overrides config)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	watch := newWatchCmd(opts)
	root.RunE = watch.RunE
	root.Flags().AddFlagSet(watch.Flags())

	root.AddCommand(
		watch,
		newHistoryCmd(opts),
		newMCPCmd(opts),
		newHealthCmd(opts),
		newPersonasCmd(opts),
		newPipelineCmd(opts),
	)
	return root
}

// loadConfig reads the config file and applies flag overrides.
func (o *globalOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.endpoint != "" {
		cfg.Endpoint = o.endpoint
	}
	if o.apiBaseURL != "" {
		cfg.APIBaseURL = o.apiBaseURL
	}
	if o.archivePath != "" {
		cfg.ArchivePath = o.archivePath
	}
	if o.logFile != "" {
		cfg.LogFile = o.logFile
	}
	if cfg.ArchivePath == "" {
		cfg.ArchivePath = archive.DefaultPath()
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger writes to the configured log file, or to fallback when none is
// set. The returned close func is never nil.
func (o *globalOptions) newLogger(cfg config.Config, fallback io.Writer) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}

	w := fallback
	closeFn := func() error { return nil }
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = f.Close
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: o.verbose,
	})
	return slog.New(handler).With("service", "threadsim", "pid", os.Getpid()), closeFn, nil
}
