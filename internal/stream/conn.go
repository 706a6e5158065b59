package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zynpsy/threadsimulation/internal/backend"
)

// ConnState is the lifecycle state of the stream connection.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Transport is an open duplex connection carrying JSON text frames.
type Transport interface {
	ReadFrame() ([]byte, error)
	Send(backend.Frame) error
	Close() error
}

// Dialer opens a Transport.
type Dialer func(ctx context.Context) (Transport, error)

// WebsocketDialer dials the backend stream endpoint at url.
func WebsocketDialer(url string) Dialer {
	return func(ctx context.Context) (Transport, error) {
		return backend.Dial(ctx, url)
	}
}

// ErrNoTransport is returned when a frame is sent while not connected.
var ErrNoTransport = errors.New("no open transport")

// ConnManager owns the transport and the connection state machine.
//
// Every dial and every Disconnect bumps the epoch. Messages and ticks carry
// the epoch they were issued under; anything from an older epoch is stale and
// is dropped, which is how a pending reconnect timer is cancelled.
type ConnManager struct {
	dial        Dialer
	state       ConnState
	transport   Transport
	attempts    int
	maxAttempts int
	delay       time.Duration
	epoch       int

	log     *slog.Logger
	metrics *Metrics
}

func newConnManager(dial Dialer, maxAttempts int, delay time.Duration, log *slog.Logger, metrics *Metrics) *ConnManager {
	return &ConnManager{
		dial:        dial,
		maxAttempts: maxAttempts,
		delay:       delay,
		log:         log,
		metrics:     metrics,
	}
}

// State returns the current connection state.
func (m *ConnManager) State() ConnState { return m.state }

// Attempts returns the number of reconnects scheduled since the last open.
func (m *ConnManager) Attempts() int { return m.attempts }

// Epoch returns the current connection epoch.
func (m *ConnManager) Epoch() int { return m.epoch }

// Connect opens the transport unless one is open or opening. A connect issued
// from Disconnected starts with a fresh retry budget.
func (m *ConnManager) Connect() tea.Cmd {
	switch m.state {
	case Connected, Connecting:
		return nil
	case Disconnected:
		m.attempts = 0
	}
	return m.dialCmd()
}

// Disconnect closes the transport and suppresses automatic reconnection.
func (m *ConnManager) Disconnect() {
	m.epoch++
	m.attempts = m.maxAttempts
	m.closeTransport()
	m.setState(Disconnected)
}

// Send writes a control frame on the open transport.
func (m *ConnManager) Send(f backend.Frame) error {
	if m.state != Connected || m.transport == nil {
		return ErrNoTransport
	}
	return m.transport.Send(f)
}

func (m *ConnManager) dialCmd() tea.Cmd {
	m.epoch++
	m.setState(Connecting)

	epoch, dial := m.epoch, m.dial
	return func() tea.Msg {
		t, err := dial(context.Background())
		if err != nil {
			return TransportFailedMsg{Epoch: epoch, Err: err}
		}
		return TransportOpenedMsg{Epoch: epoch, Transport: t}
	}
}

// readCmd reads the next frame from the open transport.
func (m *ConnManager) readCmd() tea.Cmd {
	if m.transport == nil {
		return nil
	}
	epoch, t := m.epoch, m.transport
	return func() tea.Msg {
		data, err := t.ReadFrame()
		if err != nil {
			return TransportClosedMsg{Epoch: epoch, Err: err}
		}
		return FrameMsg{Epoch: epoch, Data: data}
	}
}

// opened adopts a dialed transport. Returns false if the dial was stale.
func (m *ConnManager) opened(msg TransportOpenedMsg) bool {
	if msg.Epoch != m.epoch || m.state != Connecting {
		if msg.Transport != nil {
			_ = msg.Transport.Close()
		}
		return false
	}
	m.transport = msg.Transport
	m.attempts = 0
	m.setState(Connected)
	return true
}

// closed handles an unexpected close. It returns the reconnect tick, or
// terminal=true when the retry budget is spent. Stale closes return nothing.
func (m *ConnManager) closed(epoch int) (cmd tea.Cmd, terminal bool) {
	if epoch != m.epoch {
		return nil, false
	}
	m.closeTransport()
	m.setState(Reconnecting)

	if m.attempts < m.maxAttempts {
		m.attempts++
		m.metrics.reconnectScheduled()
		m.log.Info("reconnect scheduled", "attempt", m.attempts, "max", m.maxAttempts, "delay", m.delay)
		return tea.Tick(m.delay, func(time.Time) tea.Msg {
			return ReconnectTickMsg{Epoch: epoch}
		}), false
	}

	m.log.Error("max reconnection attempts reached", "max", m.maxAttempts)
	m.setState(Disconnected)
	return nil, true
}

// reconnect dials again if the tick is still current.
func (m *ConnManager) reconnect(msg ReconnectTickMsg) tea.Cmd {
	if msg.Epoch != m.epoch || m.state != Reconnecting {
		return nil
	}
	return m.dialCmd()
}

func (m *ConnManager) closeTransport() {
	if m.transport == nil {
		return
	}
	if err := m.transport.Close(); err != nil {
		m.log.Debug("close transport", "err", err)
	}
	m.transport = nil
}

func (m *ConnManager) setState(s ConnState) {
	if m.state != s {
		m.log.Debug("connection state", "from", m.state, "to", s)
	}
	m.state = s
	m.metrics.setState(s)
}
