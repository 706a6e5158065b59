package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/zynpsy/threadsimulation/internal/archive"
	"github.com/zynpsy/threadsimulation/internal/backend"
	"github.com/zynpsy/threadsimulation/internal/config"
	"github.com/zynpsy/threadsimulation/internal/stream"
	"github.com/zynpsy/threadsimulation/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusPersonas PanelFocus = iota
	FocusTranscript
)

const (
	apiTimeout    = 30 * time.Second
	noticeTimeout = 5 * time.Second

	notConnectedNotice = "Not connected yet. Waiting for the server to assign a session."
)

// Options wires the model to its collaborators. API and Store may be nil.
type Options struct {
	Config   config.Config
	Dial     stream.Dialer
	API      *backend.APIClient
	Store    *archive.Store
	Logger   *slog.Logger
	Metrics  *stream.Metrics
	Thread   []json.RawMessage
	Personas []backend.Persona
}

// Model is the root bubbletea model for the threadsim TUI.
type Model struct {
	client *stream.Client
	api    *backend.APIClient
	store  *archive.Store
	log    *slog.Logger
	cfg    config.Config

	// Run inputs
	thread       []json.RawMessage
	seed         json.RawMessage
	hasSeed      bool
	basePersonas []backend.Persona
	userPersonas []backend.Persona

	// Run bookkeeping
	runStarted time.Time
	archived   bool
	lastRunID  string
	requesting bool

	spinner spinner.Model

	// UI state
	focusedPanel     PanelFocus
	width            int
	height           int
	transcriptScroll int
	transcriptLive   bool
	selectedPersona  int
	expanded         map[string]bool

	// Notices
	notice        string
	noticeIsError bool
	noticeSeq     int
}

// New creates a Model. The first post of opts.Thread becomes the seed of the
// transcript.
func New(opts Options) Model {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sopts := opts.Config.StreamOptions()
	sopts.Logger = log.With("component", "stream")
	sopts.Metrics = opts.Metrics

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.SpinnerStyle

	m := Model{
		client:         stream.New(opts.Dial, sopts),
		api:            opts.API,
		store:          opts.Store,
		log:            log.With("component", "app"),
		cfg:            opts.Config,
		thread:         opts.Thread,
		basePersonas:   opts.Personas,
		spinner:        sp,
		focusedPanel:   FocusTranscript,
		transcriptLive: true,
		expanded:       make(map[string]bool),
	}

	if len(opts.Thread) > 0 {
		m.seed = opts.Thread[0]
		var post backend.Message
		if err := json.Unmarshal(opts.Thread[0], &post); err != nil {
			m.log.Warn("original post is not a message", "err", err)
		} else {
			m.hasSeed = m.client.SetSeed(post)
		}
	}
	return m
}

// Init connects to the backend and starts the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.client.Connect(), m.spinner.Tick)
}

// startSimulationCmd submits a run over HTTP.
func startSimulationCmd(api *backend.APIClient, req backend.SimulateRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
		defer cancel()
		resp, err := api.StartSimulation(ctx, req)
		if err != nil {
			return APIErrorMsg{Op: "start simulation", Err: err}
		}
		return SimulationStartedMsg{Response: resp}
	}
}

// createUserPersonaCmd submits the user's reply for persona creation.
func createUserPersonaCmd(api *backend.APIClient, req backend.UserPersonaRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
		defer cancel()
		resp, err := api.CreateUserPersona(ctx, req)
		if err != nil {
			return APIErrorMsg{Op: "create persona", Err: err}
		}
		return UserPersonaCreatedMsg{Response: resp}
	}
}

// archiveRunCmd saves a completed run.
func archiveRunCmd(store *archive.Store, run archive.NewRun) tea.Cmd {
	return func() tea.Msg {
		id, err := store.SaveRun(run)
		if err != nil {
			return ArchiveErrorMsg{Err: err}
		}
		return RunArchivedMsg{ID: id}
	}
}

// clearNoticeCmd fires after a delay to clear a notice.
func clearNoticeCmd(seq int) tea.Cmd {
	return tea.Tick(noticeTimeout, func(time.Time) tea.Msg {
		return ClearNoticeMsg{Seq: seq}
	})
}

// Update processes messages and returns the updated model and any commands.
// Anything the model does not handle itself goes to the stream client.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if maxScroll := m.maxTranscriptScroll(); m.transcriptLive || m.transcriptScroll > maxScroll {
			m.transcriptScroll = maxScroll
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SimulationStartedMsg:
		m.requesting = false
		m.runStarted = time.Now()
		status := msg.Response.Status
		if status == "" {
			status = "started"
		}
		return m, m.setNotice("Simulation "+status, false)

	case UserPersonaCreatedMsg:
		m.requesting = false
		m.userPersonas = append(m.userPersonas, msg.Response.Persona)
		name := msg.Response.Username
		if name == "" {
			name = msg.Response.Persona.Handle
		}
		return m, m.setNotice("Added persona @"+m.displayHandle(name), false)

	case APIErrorMsg:
		m.requesting = false
		m.log.Error("api request failed", "op", msg.Op, "err", msg.Err)
		return m, m.setNotice(fmt.Sprintf("%s: %v", msg.Op, msg.Err), true)

	case RunArchivedMsg:
		m.lastRunID = msg.ID
		m.log.Info("run archived", "run_id", msg.ID)
		return m, m.setNotice("Run archived as "+msg.ID, false)

	case ArchiveErrorMsg:
		m.log.Error("archive run", "err", msg.Err)
		return m, m.setNotice(fmt.Sprintf("archive: %v", msg.Err), true)

	case ClearNoticeMsg:
		if msg.Seq == m.noticeSeq {
			m.notice = ""
			m.noticeIsError = false
		}
		return m, nil
	}

	cmd := m.client.Update(msg)
	if m.transcriptLive {
		m.scrollToBottom()
	}
	return m, tea.Batch(cmd, m.maybeArchive())
}

// maybeArchive saves the run once it has completed.
func (m *Model) maybeArchive() tea.Cmd {
	if m.store == nil || m.archived || !m.client.Complete() {
		return nil
	}
	m.archived = true

	now := time.Now()
	started := m.runStarted
	if started.IsZero() {
		started = now
	}
	run := archive.NewRun{
		ClientID:    m.client.Session(),
		StartedAt:   started,
		CompletedAt: &now,
		Messages:    append([]backend.Message(nil), m.client.Messages()...),
		Personas:    append([]backend.Persona(nil), m.client.Personas()...),
		Summary:     m.client.Summary(),
	}
	if m.hasSeed && len(run.Messages) > 0 {
		run.Seed = &run.Messages[0]
	}
	return archiveRunCmd(m.store, run)
}

func (m *Model) setNotice(text string, isError bool) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	m.noticeIsError = isError
	return clearNoticeCmd(m.noticeSeq)
}

// personasForRun returns the configured personas plus those the user added.
func (m Model) personasForRun() []backend.Persona {
	out := make([]backend.Persona, 0, len(m.basePersonas)+len(m.userPersonas))
	out = append(out, m.basePersonas...)
	return append(out, m.userPersonas...)
}

func (m *Model) resetRun() {
	m.archived = false
	m.runStarted = time.Time{}
	m.selectedPersona = 0
	m.transcriptScroll = 0
	m.transcriptLive = true
}

func (m Model) startSimulation() (tea.Model, tea.Cmd) {
	session, err := m.client.RequireSession()
	if err != nil {
		return m, m.setNotice(notConnectedNotice, true)
	}
	if len(m.thread) == 0 {
		return m, m.setNotice("No thread loaded. Set simulation.thread_file in the config.", true)
	}
	if m.api == nil || m.requesting {
		return m, nil
	}

	m.client.ClearRun()
	m.resetRun()
	m.requesting = true
	req := backend.SimulateRequest{
		ClientID:   session,
		ThreadData: m.thread,
		Personas:   m.personasForRun(),
		Delay:      m.cfg.Simulation.Delay,
	}
	m.log.Info("starting simulation", "posts", len(m.thread), "personas", len(req.Personas))
	return m, startSimulationCmd(m.api, req)
}

func (m Model) createUserPersona() (tea.Model, tea.Cmd) {
	session, err := m.client.RequireSession()
	if err != nil {
		return m, m.setNotice(notConnectedNotice, true)
	}
	if m.api == nil || m.requesting {
		return m, nil
	}

	req := backend.UserPersonaRequest{
		ClientID:         session,
		UserName:         m.cfg.UserPersona.Name,
		UserReply:        m.cfg.UserPersona.Reply,
		OriginalPost:     m.seed,
		ExistingPersonas: m.personasForRun(),
		ExistingReplies:  append([]backend.Message(nil), m.client.Replies()...),
	}
	if err := req.Validate(); err != nil {
		return m, m.setNotice("user persona: "+err.Error(), true)
	}
	m.requesting = true
	return m, createUserPersonaCmd(m.api, req)
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		m.client.Disconnect()
		return m, tea.Quit

	case KeyConnect:
		return m, m.client.Connect()

	case KeyDisconnect:
		m.client.Disconnect()
		return m, nil

	case KeyPause:
		m.client.Pause()
		return m, nil

	case KeyResume:
		cmd := m.client.Resume()
		if m.transcriptLive {
			m.scrollToBottom()
		}
		return m, cmd

	case KeyReset:
		m.userPersonas = nil
		m.resetRun()
		return m, m.client.Reset()

	case KeyClearRun:
		m.client.ClearRun()
		m.resetRun()
		return m, nil

	case KeyStart:
		return m.startSimulation()

	case KeyUserPersona:
		return m.createUserPersona()

	case KeyTab:
		if m.focusedPanel == FocusPersonas {
			m.focusedPanel = FocusTranscript
		} else {
			m.focusedPanel = FocusPersonas
		}
		return m, nil

	case KeyJ:
		if m.focusedPanel == FocusPersonas {
			if m.selectedPersona < len(m.visiblePersonas())-1 {
				m.selectedPersona++
			}
		}
		return m, nil

	case KeyK:
		if m.focusedPanel == FocusPersonas && m.selectedPersona > 0 {
			m.selectedPersona--
		}
		return m, nil

	case KeyEnter:
		personas := m.visiblePersonas()
		if m.focusedPanel == FocusPersonas && m.selectedPersona < len(personas) {
			h := personas[m.selectedPersona].Handle
			m.expanded[h] = !m.expanded[h]
		}
		return m, nil

	case KeyUp:
		if m.focusedPanel == FocusTranscript {
			m.transcriptLive = false
			if m.transcriptScroll > 0 {
				m.transcriptScroll--
			}
		}
		return m, nil

	case KeyDown:
		if m.focusedPanel == FocusTranscript {
			maxScroll := m.maxTranscriptScroll()
			m.transcriptScroll++
			if m.transcriptScroll >= maxScroll {
				m.transcriptScroll = maxScroll
				m.transcriptLive = true
			}
		}
		return m, nil
	}

	return m, nil
}

// visiblePersonas returns streamed personas, one per handle, in first-seen
// order.
func (m Model) visiblePersonas() []backend.Persona {
	seen := make(map[string]bool)
	var out []backend.Persona
	for _, p := range m.client.Personas() {
		if seen[p.Handle] {
			continue
		}
		seen[p.Handle] = true
		out = append(out, p)
	}
	return out
}

func (m Model) displayHandle(handle string) string {
	if m.cfg.Anonymize {
		return ui.AnonymousName(handle, false)
	}
	return handle
}

func (m *Model) scrollToBottom() {
	m.transcriptScroll = m.maxTranscriptScroll()
}

func (m Model) maxTranscriptScroll() int {
	total := len(m.transcriptLines(m.transcriptPanelWidth()))
	visible := m.transcriptVisibleLines() - 1
	if total <= visible {
		return 0
	}
	return total - visible
}
