package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zynpsy/threadsimulation/internal/backend"
)

const requestTimeout = 10 * time.Minute

func newHealthCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend API is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			api := backend.NewAPIClient(cfg.APIBaseURL, nil)
			health, err := api.Health(ctx)
			if err != nil {
				return err
			}
			info, err := api.Info(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"api":    cfg.APIBaseURL,
				"health": health,
				"info":   info,
			})
		},
	}
}

type generateOptions struct {
	threadFile  string
	out         string
	minComments int
	maxUsers    int
	agentDelay  float64
}

func (o *generateOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.threadFile, "thread", "", "Thread JSON file (overrides simulation.thread_file)")
	f.StringVarP(&o.out, "out", "o", "", "Write the result to this file instead of stdout")
	f.IntVar(&o.minComments, "min-comments", 3, "Minimum comments a user needs to get a persona")
	f.IntVar(&o.maxUsers, "max-users", 0, "Maximum personas to generate (0 for no limit)")
}

func (o *generateOptions) maxUsersPtr() *int {
	if o.maxUsers <= 0 {
		return nil
	}
	n := o.maxUsers
	return &n
}

// load returns the API client and the thread to send.
func (o *generateOptions) load(g *globalOptions) (*backend.APIClient, []json.RawMessage, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if o.threadFile != "" {
		cfg.Simulation.ThreadFile = o.threadFile
	}
	thread, err := cfg.Simulation.LoadThread()
	if err != nil {
		return nil, nil, err
	}
	if len(thread) == 0 {
		return nil, nil, fmt.Errorf("no thread given: use --thread or simulation.thread_file")
	}
	return backend.NewAPIClient(cfg.APIBaseURL, nil), thread, nil
}

func (o *generateOptions) output(cmd *cobra.Command) (io.Writer, func() error, error) {
	if o.out == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(o.out)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, f.Close, nil
}

func newPersonasCmd(g *globalOptions) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "personas",
		Short: "Generate personas for a thread",
		Long: `Generate personas for a thread. The output is a JSON array that can be
used as simulation.personas_file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, thread, err := opts.load(g)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			resp, err := api.GeneratePersonas(ctx, backend.GeneratePersonasRequest{
				ThreadData:  thread,
				MinComments: opts.minComments,
				MaxUsers:    opts.maxUsersPtr(),
			})
			if err != nil {
				return err
			}

			w, closeOut, err := opts.output(cmd)
			if err != nil {
				return err
			}
			defer closeOut()
			return writeJSON(w, resp.Personas)
		},
	}
	opts.bind(cmd)
	return cmd
}

func newPipelineCmd(g *globalOptions) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Generate personas and simulate a thread in one request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, thread, err := opts.load(g)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			result, err := api.RunPipeline(ctx, backend.PipelineRequest{
				ThreadData:  thread,
				MinComments: opts.minComments,
				MaxUsers:    opts.maxUsersPtr(),
				AgentDelay:  opts.agentDelay,
			})
			if err != nil {
				return err
			}

			w, closeOut, err := opts.output(cmd)
			if err != nil {
				return err
			}
			defer closeOut()
			return writeJSON(w, result)
		},
	}
	opts.bind(cmd)
	cmd.Flags().Float64Var(&opts.agentDelay, "agent-delay", backend.DefaultSimulationDelay, "Seconds between simulated replies")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
