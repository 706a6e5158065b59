// Package mcpserver exposes the run archive as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/zynpsy/threadsimulation/internal/archive"
)

const defaultListLimit = 20

// Server serves archive queries to MCP clients.
type Server struct {
	store *archive.Store
	mcp   *server.MCPServer
	log   *slog.Logger
}

// New registers the archive tools on a new MCP server.
func New(store *archive.Store, version string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		store: store,
		mcp:   server.NewMCPServer("threadsim", version, server.WithToolCapabilities(false)),
		log:   log,
	}

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List archived simulation runs, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (default 20, 0 for all)")),
	), s.listRuns)

	s.mcp.AddTool(mcp.NewTool("get_transcript",
		mcp.WithDescription("Get the transcript of a run: the original post followed by the simulated replies."),
		mcp.WithString("run_id", mcp.Description("Run id from list_runs. Defaults to the latest run.")),
	), s.getTranscript)

	s.mcp.AddTool(mcp.NewTool("get_personas",
		mcp.WithDescription("Get the personas that took part in a run."),
		mcp.WithString("run_id", mcp.Description("Run id from list_runs. Defaults to the latest run.")),
	), s.getPersonas)

	return s
}

// ServeStdio blocks serving requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info("serving mcp on stdio")
	return server.ServeStdio(s.mcp)
}

type runJSON struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"client_id"`
	SeedURI      string          `json:"seed_uri,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	MessageCount int             `json:"message_count"`
	PersonaCount int             `json:"persona_count"`
	Summary      json.RawMessage `json:"summary,omitempty"`
}

type messageJSON struct {
	Seq       int        `json:"seq"`
	URI       string     `json:"uri,omitempty"`
	Author    string     `json:"author,omitempty"`
	Text      string     `json:"text"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Seed      bool       `json:"seed,omitempty"`
}

type personaJSON struct {
	Seq      int    `json:"seq"`
	Handle   string `json:"handle"`
	Analysis string `json:"analysis,omitempty"`
}

func toRunJSON(r archive.Run) runJSON {
	return runJSON{
		ID:           r.ID,
		ClientID:     r.ClientID,
		SeedURI:      r.SeedURI,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		MessageCount: r.MessageCount,
		PersonaCount: r.PersonaCount,
		Summary:      r.Summary,
	}
}

func (s *Server) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultListLimit)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		s.log.Error("list runs", "err", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := make([]runJSON, 0, len(runs))
	for _, r := range runs {
		out = append(out, toRunJSON(r))
	}
	return jsonResult(out)
}

func (s *Server) getTranscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	run, errResult := s.resolveRun(req)
	if errResult != nil {
		return errResult, nil
	}

	msgs, err := s.store.MessagesForRun(run.ID)
	if err != nil {
		s.log.Error("load transcript", "run_id", run.ID, "err", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := struct {
		Run      runJSON       `json:"run"`
		Messages []messageJSON `json:"messages"`
	}{Run: toRunJSON(*run), Messages: make([]messageJSON, 0, len(msgs))}

	for _, m := range msgs {
		out.Messages = append(out.Messages, messageJSON{
			Seq:       m.Seq,
			URI:       m.URI,
			Author:    m.Author,
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
			Seed:      m.Seq == 0 && run.SeedURI != "" && m.URI == run.SeedURI,
		})
	}
	return jsonResult(out)
}

func (s *Server) getPersonas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	run, errResult := s.resolveRun(req)
	if errResult != nil {
		return errResult, nil
	}

	personas, err := s.store.PersonasForRun(run.ID)
	if err != nil {
		s.log.Error("load personas", "run_id", run.ID, "err", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := make([]personaJSON, 0, len(personas))
	for _, p := range personas {
		out = append(out, personaJSON{Seq: p.Seq, Handle: p.Handle, Analysis: p.Analysis})
	}
	return jsonResult(out)
}

// resolveRun returns the run named by run_id, or the latest run. A non-nil
// result is a tool error to hand back to the caller.
func (s *Server) resolveRun(req mcp.CallToolRequest) (*archive.Run, *mcp.CallToolResult) {
	id := req.GetString("run_id", "")
	if id == "" {
		run, err := s.store.LatestRun()
		if err != nil {
			return nil, mcp.NewToolResultError(err.Error())
		}
		if run == nil {
			return nil, mcp.NewToolResultError("archive is empty")
		}
		return run, nil
	}

	run, err := s.store.Run(id)
	if errors.Is(err, archive.ErrRunNotFound) {
		return nil, mcp.NewToolResultError(fmt.Sprintf("run %s not found", id))
	}
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return run, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
