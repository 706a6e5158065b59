package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/zynpsy/threadsimulation/internal/archive"
	"github.com/zynpsy/threadsimulation/internal/ui"
)

type historyOptions struct {
	runID     string
	limit     int
	anonymize bool
}

var (
	historyHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	historyIDStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
)

func newHistoryCmd(g *globalOptions) *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived runs or print one transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			store, err := archive.OpenReadOnly(cfg.ArchivePath)
			if err != nil {
				return fmt.Errorf("open archive %s: %w", cfg.ArchivePath, err)
			}
			defer store.Close()

			anonymize := opts.anonymize || cfg.Anonymize
			if opts.runID != "" {
				return printTranscript(cmd.OutOrStdout(), store, opts.runID, anonymize)
			}
			return printRuns(cmd.OutOrStdout(), store, opts.limit)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.runID, "run", "", "Print the transcript of this run (\"latest\" for the newest)")
	f.IntVarP(&opts.limit, "limit", "n", 20, "Maximum runs to list (0 for all)")
	f.BoolVar(&opts.anonymize, "anonymize", false, "Replace handles with generated names")
	return cmd
}

func printRuns(w io.Writer, store *archive.Store, limit int) error {
	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No archived runs.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tMESSAGES\tPERSONAS\tSESSION")
	for _, r := range runs {
		duration := "-"
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), duration,
			r.MessageCount, r.PersonaCount, r.ClientID)
	}
	return tw.Flush()
}

func printTranscript(w io.Writer, store *archive.Store, id string, anonymize bool) error {
	var run *archive.Run
	var err error
	if id == "latest" {
		run, err = store.LatestRun()
		if err == nil && run == nil {
			return archive.ErrRunNotFound
		}
	} else {
		run, err = store.Run(id)
	}
	if err != nil {
		return err
	}

	msgs, err := store.MessagesForRun(run.ID)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, historyHeaderStyle.Render("Run ")+historyIDStyle.Render(run.ID))
	fmt.Fprintf(w, "started %s, %d messages, %d personas\n\n",
		run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.MessageCount, run.PersonaCount)

	for _, m := range msgs {
		author := m.Author
		if anonymize {
			author = ui.AnonymousName(author, false)
		}
		head := "@" + author
		if m.Seq == 0 && run.SeedURI != "" && m.URI == run.SeedURI {
			head += " (original post)"
		}
		if m.CreatedAt != nil {
			head += " " + m.CreatedAt.Local().Format("[15:04:05]")
		}
		fmt.Fprintln(w, ui.AuthorStyle.Render(head))
		fmt.Fprintf(w, "  %s\n\n", m.Text)
	}
	return nil
}
