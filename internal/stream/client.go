// Package stream is the realtime simulation stream client. All state is owned
// by a Client and mutated only from Update and the command methods, which are
// expected to run on a single bubbletea event loop.
package stream

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zynpsy/threadsimulation/internal/backend"
)

// Defaults for Options.
const (
	DefaultMaxAttempts       = 5
	DefaultReconnectDelay    = 3 * time.Second
	DefaultKeepaliveInterval = 30 * time.Second
	DefaultPulseDuration     = 800 * time.Millisecond
	DefaultResetDelay        = 100 * time.Millisecond
)

// ErrNotConnected is returned by RequireSession before the backend has
// assigned a session id.
var ErrNotConnected = errors.New("not connected yet: waiting for a session id")

// ErrConnectionLost is surfaced once the reconnect budget is spent.
var ErrConnectionLost = backend.Error{Reason: "Connection lost", Detail: "Could not reconnect to server"}

const transportErrorReason = "WebSocket connection error"

// Options configures a Client.
type Options struct {
	MaxAttempts       int
	ReconnectDelay    time.Duration
	KeepaliveInterval time.Duration
	PulseDuration     time.Duration
	ResetDelay        time.Duration

	Logger  *slog.Logger
	Metrics *Metrics
}

// DefaultOptions returns the standard timings.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:       DefaultMaxAttempts,
		ReconnectDelay:    DefaultReconnectDelay,
		KeepaliveInterval: DefaultKeepaliveInterval,
		PulseDuration:     DefaultPulseDuration,
		ResetDelay:        DefaultResetDelay,
	}
}

// Client consumes the simulation event stream.
type Client struct {
	opts    Options
	log     *slog.Logger
	metrics *Metrics

	conn       *ConnManager
	pause      PauseController
	transcript Transcript

	session  string
	personas []backend.Persona
	progress *backend.Progress
	err      error
	complete bool
	summary  json.RawMessage

	arrived  bool
	pulseGen int
}

// New creates a disconnected client that opens transports with dial.
func New(dial Dialer, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		opts:    opts,
		log:     log,
		metrics: opts.Metrics,
		conn:    newConnManager(dial, opts.MaxAttempts, opts.ReconnectDelay, log, opts.Metrics),
	}
}

// Update applies one message from the event loop and returns follow-up work.
// Messages of types the client does not own are ignored.
func (c *Client) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case TransportOpenedMsg:
		if !c.conn.opened(msg) {
			return nil
		}
		c.err = nil
		c.log.Info("connected")
		return tea.Batch(c.conn.readCmd(), keepaliveCmd(c.opts.KeepaliveInterval, msg.Epoch))

	case TransportFailedMsg:
		if msg.Epoch != c.conn.Epoch() {
			return nil
		}
		c.err = backend.Error{Reason: transportErrorReason, Detail: msg.Err.Error()}
		c.log.Warn("dial failed", "err", msg.Err)
		return c.onClosed(msg.Epoch)

	case FrameMsg:
		if msg.Epoch != c.conn.Epoch() || c.conn.State() != Connected {
			return nil
		}
		return tea.Batch(c.dispatch(msg.Data), c.conn.readCmd())

	case TransportClosedMsg:
		if msg.Epoch != c.conn.Epoch() {
			return nil
		}
		c.log.Info("connection closed", "err", msg.Err)
		return c.onClosed(msg.Epoch)

	case ReconnectTickMsg:
		return c.conn.reconnect(msg)

	case ResetTickMsg:
		if msg.Epoch != c.conn.Epoch() {
			return nil
		}
		return c.conn.Connect()

	case KeepaliveTickMsg:
		return c.handleKeepalive(msg)

	case PulseClearMsg:
		if msg.Gen == c.pulseGen {
			c.arrived = false
		}
	}
	return nil
}

func (c *Client) onClosed(epoch int) tea.Cmd {
	cmd, terminal := c.conn.closed(epoch)
	if terminal {
		c.err = ErrConnectionLost
	}
	return cmd
}

// Connect opens the connection unless it is already open or opening.
func (c *Client) Connect() tea.Cmd {
	return c.conn.Connect()
}

// Disconnect closes the connection and cancels any pending reconnect.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
	c.log.Info("disconnected")
}

// Pause holds new messages out of the transcript. The local flag is set
// before the pause frame is sent; a failed send does not undo it.
func (c *Client) Pause() {
	if !c.pause.Pause() {
		return
	}
	c.log.Info("paused")
	c.sendControl(backend.FramePause)
}

// Resume moves held messages into the transcript in arrival order, then tells
// the backend to continue.
func (c *Client) Resume() tea.Cmd {
	if !c.pause.Paused() {
		return nil
	}
	drained := c.pause.Resume()
	c.metrics.setBuffered(0)
	cmd := c.appendLive(drained...)
	c.log.Info("resumed", "flushed", len(drained))
	c.sendControl(backend.FrameResume)
	return cmd
}

// ClearRun drops run state and keeps the connection, session and seed post.
func (c *Client) ClearRun() {
	c.transcript.ClearReceived()
	c.personas = nil
	c.progress = nil
	c.err = nil
	c.complete = false
	c.summary = nil
	c.pause.Clear()
	c.arrived = false
	c.pulseGen++
	c.metrics.setBuffered(0)
	c.metrics.setTranscriptLength(c.transcript.Len())
}

// Reset disconnects, clears run state and the session, and reconnects after
// a short delay.
func (c *Client) Reset() tea.Cmd {
	c.conn.Disconnect()
	c.ClearRun()
	c.session = ""
	c.log.Info("reset")

	epoch := c.conn.Epoch()
	return tea.Tick(c.opts.ResetDelay, func(time.Time) tea.Msg {
		return ResetTickMsg{Epoch: epoch}
	})
}

// SetSeed supplies the original post. It is ignored once the transcript
// holds anything.
func (c *Client) SetSeed(msg backend.Message) bool {
	ok := c.transcript.Seed(msg)
	if ok {
		c.metrics.setTranscriptLength(c.transcript.Len())
	}
	return ok
}

// RequireSession returns the session id or ErrNotConnected.
func (c *Client) RequireSession() (string, error) {
	if c.session == "" {
		return "", ErrNotConnected
	}
	return c.session, nil
}

func (c *Client) sendControl(typ string) {
	if err := c.conn.Send(backend.Frame{Type: typ}); err != nil {
		c.log.Warn("control frame not sent", "type", typ, "err", err)
	}
}

// appendLive merges msgs into the transcript and starts the arrival pulse if
// it grew.
func (c *Client) appendLive(msgs ...backend.Message) tea.Cmd {
	grew := c.transcript.Append(msgs...)
	c.metrics.setTranscriptLength(c.transcript.Len())
	if grew == 0 {
		return nil
	}
	c.arrived = true
	gen := c.pulseGen
	return tea.Tick(c.opts.PulseDuration, func(time.Time) tea.Msg {
		return PulseClearMsg{Gen: gen}
	})
}

// State returns the connection state.
func (c *Client) State() ConnState { return c.conn.State() }

// Attempts returns the reconnects scheduled since the last successful open.
func (c *Client) Attempts() int { return c.conn.Attempts() }

// Session returns the session id, or "" before one is assigned.
func (c *Client) Session() string { return c.session }

// Personas returns personas in arrival order.
func (c *Client) Personas() []backend.Persona { return c.personas }

// Progress returns the latest progress update, or nil.
func (c *Client) Progress() *backend.Progress { return c.progress }

// Err returns the current error, or nil.
func (c *Client) Err() error { return c.err }

// Complete reports whether the run has finished.
func (c *Client) Complete() bool { return c.complete }

// Summary returns the payload of the completed event.
func (c *Client) Summary() json.RawMessage { return c.summary }

// Arrived reports whether new content arrived within the pulse window.
func (c *Client) Arrived() bool { return c.arrived }

// Paused reports whether messages are being held.
func (c *Client) Paused() bool { return c.pause.Paused() }

// Buffered returns the number of held messages.
func (c *Client) Buffered() int { return c.pause.Buffered() }

// Messages returns the merged transcript with the seed first.
func (c *Client) Messages() []backend.Message { return c.transcript.Messages() }

// Replies returns the merged transcript without the seed.
func (c *Client) Replies() []backend.Message { return c.transcript.Replies() }
