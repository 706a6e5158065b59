package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zynpsy/threadsimulation/internal/archive"
	"github.com/zynpsy/threadsimulation/internal/mcpserver"
)

func newMCPCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the run archive to MCP clients over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the protocol.
			log, closeLog, err := g.newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer closeLog()

			store, err := archive.Open(cfg.ArchivePath)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer store.Close()

			return mcpserver.New(store, version, log.With("component", "mcp")).ServeStdio()
		},
	}
}
