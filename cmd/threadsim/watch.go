package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/zynpsy/threadsimulation/internal/app"
	"github.com/zynpsy/threadsimulation/internal/archive"
	"github.com/zynpsy/threadsimulation/internal/backend"
	"github.com/zynpsy/threadsimulation/internal/stream"
)

type watchOptions struct {
	threadFile   string
	personasFile string
	metricsAddr  string
	anonymize    bool
	noArchive    bool
}

func newWatchCmd(g *globalOptions) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Open the live simulation view (default)",
		Long: `Open the live simulation view.

Keys:
  c connect    d disconnect    s start simulation    u add your persona
  p pause      r resume        n clear run           x reset
  tab focus    j/k select      enter expand          q quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), g, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.threadFile, "thread", "", "Thread JSON file (overrides simulation.thread_file)")
	f.StringVar(&opts.personasFile, "personas", "", "Personas JSON file (overrides simulation.personas_file)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics_addr)")
	f.BoolVar(&opts.anonymize, "anonymize", false, "Replace handles with generated names")
	f.BoolVar(&opts.noArchive, "no-archive", false, "Do not archive completed runs")
	return cmd
}

func runWatch(ctx context.Context, g *globalOptions, opts *watchOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if opts.threadFile != "" {
		cfg.Simulation.ThreadFile = opts.threadFile
	}
	if opts.personasFile != "" {
		cfg.Simulation.PersonasFile = opts.personasFile
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if opts.anonymize {
		cfg.Anonymize = true
	}

	// The TUI owns the terminal, so logs are dropped unless a file is set.
	log, closeLog, err := g.newLogger(cfg, io.Discard)
	if err != nil {
		return err
	}
	defer closeLog()

	thread, err := cfg.Simulation.LoadThread()
	if err != nil {
		return err
	}
	personas, err := cfg.Simulation.LoadPersonas()
	if err != nil {
		return err
	}

	var store *archive.Store
	if !opts.noArchive {
		store, err = archive.Open(cfg.ArchivePath)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer store.Close()
	}

	var metrics *stream.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = stream.NewMetrics(reg)
		stop := serveMetrics(cfg.MetricsAddr, reg, log)
		defer stop()
	}

	model := app.New(app.Options{
		Config:   cfg,
		Dial:     stream.WebsocketDialer(cfg.Endpoint),
		API:      backend.NewAPIClient(cfg.APIBaseURL, nil),
		Store:    store,
		Logger:   log,
		Metrics:  metrics,
		Thread:   thread,
		Personas: personas,
	})

	log.Info("starting", "endpoint", cfg.Endpoint, "posts", len(thread), "personas", len(personas))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

// serveMetrics exposes reg on addr until the returned func is called.
func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "addr", addr, "err", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
