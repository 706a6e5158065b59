package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zynpsy/threadsimulation/internal/backend"
)

type fakeTransport struct {
	sent    []backend.Frame
	closed  bool
	sendErr error
}

func (f *fakeTransport) ReadFrame() ([]byte, error) { return nil, io.EOF }

func (f *fakeTransport) Send(fr backend.Frame) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, fr)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTransport) sentTypes() []string {
	out := make([]string, len(f.sent))
	for i, fr := range f.sent {
		out[i] = fr.Type
	}
	return out
}

type fakeDialer struct {
	err        error
	calls      int
	transports []*fakeTransport
}

func (d *fakeDialer) dial(context.Context) (Transport, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	t := &fakeTransport{}
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) last() *fakeTransport {
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

func newTestClient(t *testing.T) (*Client, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{}
	return New(d.dial, DefaultOptions()), d
}

// open runs a connect command through the client and delivers the session id.
func open(t *testing.T, c *Client, cmd tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd, "expected a dial command")
	c.Update(cmd())
	require.Equal(t, Connected, c.State())
	deliver(c, `{"type":"connected","client_id":"sess-1"}`)
}

func deliver(c *Client, frame string) tea.Cmd {
	return c.Update(FrameMsg{Epoch: c.conn.Epoch(), Data: []byte(frame)})
}

func reply(key, text string) string {
	return fmt.Sprintf(`{"type":"message_generated","data":{"uri":%q,"author":"bot.bsky.social","text":%q}}`, key, text)
}

func seed() backend.Message {
	return backend.Message{URI: "u1", Author: "op.bsky.social", Text: "orig"}
}

func keys(msgs []backend.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Key()
	}
	return out
}

func TestConnectEstablishesSession(t *testing.T) {
	c, d := newTestClient(t)

	_, err := c.RequireSession()
	assert.ErrorIs(t, err, ErrNotConnected)

	open(t, c, c.Connect())

	assert.Equal(t, 1, d.calls)
	session, err := c.RequireSession()
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session)
	assert.Equal(t, 0, c.Attempts())
}

func TestConnectIsIdempotent(t *testing.T) {
	c, d := newTestClient(t)

	cmd := c.Connect()
	assert.Nil(t, c.Connect(), "connect while connecting")
	open(t, c, cmd)
	assert.Nil(t, c.Connect(), "connect while connected")
	assert.Equal(t, 1, d.calls)
}

func TestSeedDedupAndOrder(t *testing.T) {
	c, _ := newTestClient(t)
	require.True(t, c.SetSeed(seed()))
	open(t, c, c.Connect())

	deliver(c, reply("u1", "orig"))
	deliver(c, reply("r1", "reply"))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "orig", msgs[0].Text)
	assert.Equal(t, "reply", msgs[1].Text)

	deliver(c, reply("r1", "reply"))
	assert.Equal(t, []string{"u1", "r1"}, keys(c.Messages()))
	assert.Equal(t, []string{"r1"}, keys(c.Replies()))
}

func TestPauseBuffersUntilResume(t *testing.T) {
	c, d := newTestClient(t)
	c.SetSeed(seed())
	open(t, c, c.Connect())
	deliver(c, reply("r1", "reply"))

	c.Pause()
	assert.True(t, c.Paused())
	deliver(c, reply("r2", "second"))
	deliver(c, reply("r3", "third"))

	assert.Equal(t, 2, len(c.Messages()))
	assert.Equal(t, 2, c.Buffered())

	c.Resume()
	assert.False(t, c.Paused())
	assert.Equal(t, 0, c.Buffered())
	assert.Equal(t, []string{"u1", "r1", "r2", "r3"}, keys(c.Messages()))
	assert.Equal(t, []string{"pause", "resume"}, d.last().sentTypes())
}

func TestResumeWhenNotPausedSendsNothing(t *testing.T) {
	c, d := newTestClient(t)
	open(t, c, c.Connect())

	assert.Nil(t, c.Resume())
	assert.Empty(t, d.last().sentTypes())
}

func TestResumeFlushWithDuplicates(t *testing.T) {
	c, _ := newTestClient(t)
	c.SetSeed(seed())
	open(t, c, c.Connect())

	c.Pause()
	deliver(c, reply("r1", "a"))
	deliver(c, reply("r1", "a"))
	deliver(c, `{"type":"message_generated","data":{"text":"keyless"}}`)
	c.Resume()

	assert.Equal(t, []string{"u1", "r1", ""}, keys(c.Messages()))
}

func TestPauseSurvivesSendFailure(t *testing.T) {
	c, d := newTestClient(t)
	open(t, c, c.Connect())
	d.last().sendErr = errors.New("queue full")

	c.Pause()
	deliver(c, reply("r1", "a"))

	assert.True(t, c.Paused())
	assert.Equal(t, 1, c.Buffered())
	assert.Empty(t, c.Messages())
}

func TestPauseWhileDisconnected(t *testing.T) {
	c, _ := newTestClient(t)

	c.Pause()
	assert.True(t, c.Paused())
	c.Resume()
	assert.False(t, c.Paused())
}

func TestMalformedFrameIsDropped(t *testing.T) {
	c, _ := newTestClient(t)
	open(t, c, c.Connect())

	deliver(c, reply("r1", "first"))
	deliver(c, `{"type":"message_generated","data":"not an object"}`)
	deliver(c, `{not json`)
	deliver(c, `{"type":"mystery"}`)
	deliver(c, reply("r2", "second"))

	assert.Equal(t, []string{"r1", "r2"}, keys(c.Messages()))
	assert.NoError(t, c.Err())
	assert.Equal(t, Connected, c.State())
}

func TestDispatchRouting(t *testing.T) {
	c, _ := newTestClient(t)
	open(t, c, c.Connect())

	deliver(c, `{"type":"persona_created","data":{"user_handle":"a.bsky.social"}}`)
	deliver(c, `{"type":"persona_created","data":{"user_handle":"a.bsky.social"}}`)
	assert.Len(t, c.Personas(), 2, "personas are not deduplicated here")

	deliver(c, `{"type":"progress_update","data":{"stage":"generating","percent":40}}`)
	require.NotNil(t, c.Progress())
	assert.Equal(t, 40.0, c.Progress().Percent)

	deliver(c, `{"type":"progress_update","data":{"stage":"generating","percent":80}}`)
	assert.Equal(t, 80.0, c.Progress().Percent)

	deliver(c, `{"type":"error","error":"LLM timeout","details":"retrying"}`)
	deliver(c, `{"type":"error","error":"rate limited"}`)
	var be backend.Error
	require.ErrorAs(t, c.Err(), &be)
	assert.Equal(t, "rate limited", be.Reason)
	assert.Equal(t, Connected, c.State())

	deliver(c, `{"type":"paused"}`)
	deliver(c, `{"type":"resumed"}`)
	deliver(c, `{"type":"pong"}`)
	assert.False(t, c.Paused())

	deliver(c, `{"type":"completed","data":{"total_messages":0}}`)
	assert.True(t, c.Complete())
	assert.Nil(t, c.Progress())
	assert.JSONEq(t, `{"total_messages":0}`, string(c.Summary()))
}

func TestReconnectCeiling(t *testing.T) {
	c, d := newTestClient(t)
	open(t, c, c.Connect())
	d.err = errors.New("connection refused")

	epoch := c.conn.Epoch()
	cmd := c.Update(TransportClosedMsg{Epoch: epoch, Err: io.EOF})

	for attempt := 1; attempt <= DefaultMaxAttempts; attempt++ {
		require.NotNil(t, cmd, "attempt %d should be scheduled", attempt)
		assert.Equal(t, Reconnecting, c.State())
		assert.Equal(t, attempt, c.Attempts())
		assert.NotEqual(t, ErrConnectionLost, c.Err())

		dial := c.Update(ReconnectTickMsg{Epoch: c.conn.Epoch()})
		require.NotNil(t, dial)
		cmd = c.Update(dial())
	}

	assert.Nil(t, cmd, "no sixth attempt")
	assert.Equal(t, Disconnected, c.State())
	assert.Equal(t, ErrConnectionLost, c.Err())
	assert.Equal(t, 1+DefaultMaxAttempts, d.calls)
}

func TestSuccessfulReconnectRestoresBudget(t *testing.T) {
	c, d := newTestClient(t)
	open(t, c, c.Connect())

	c.Update(TransportClosedMsg{Epoch: c.conn.Epoch()})
	assert.Equal(t, 1, c.Attempts())

	dial := c.Update(ReconnectTickMsg{Epoch: c.conn.Epoch()})
	c.Update(dial())

	assert.Equal(t, Connected, c.State())
	assert.Equal(t, 0, c.Attempts())
	assert.Equal(t, 2, d.calls)
	assert.True(t, d.transports[0].closed)
}

func TestDialFailureSurfacesTransportError(t *testing.T) {
	c, d := newTestClient(t)
	d.err = errors.New("connection refused")

	cmd := c.Connect()
	next := c.Update(cmd())

	assert.NotNil(t, next, "reconnect scheduled")
	assert.Equal(t, Reconnecting, c.State())
	var be backend.Error
	require.ErrorAs(t, c.Err(), &be)
	assert.Equal(t, "WebSocket connection error", be.Reason)
}

func TestEachFailedDialReplacesError(t *testing.T) {
	c, d := newTestClient(t)
	d.err = errors.New("connection refused")
	c.Update(c.Connect()())

	d.err = errors.New("no route to host")
	dial := c.Update(ReconnectTickMsg{Epoch: c.conn.Epoch()})
	require.NotNil(t, dial)
	c.Update(dial())

	var be backend.Error
	require.ErrorAs(t, c.Err(), &be)
	assert.Equal(t, "WebSocket connection error", be.Reason)
	assert.Equal(t, "no route to host", be.Detail)
	assert.Equal(t, 2, c.Attempts())
}

func TestOpenClearsError(t *testing.T) {
	c, d := newTestClient(t)
	d.err = errors.New("refused")
	c.Update(c.Connect()())
	require.Error(t, c.Err())

	d.err = nil
	dial := c.Update(ReconnectTickMsg{Epoch: c.conn.Epoch()})
	c.Update(dial())

	assert.NoError(t, c.Err())
	assert.Equal(t, Connected, c.State())
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	c, d := newTestClient(t)
	open(t, c, c.Connect())
	epoch := c.conn.Epoch()

	c.Disconnect()
	assert.Equal(t, Disconnected, c.State())
	assert.True(t, d.last().closed)

	assert.Nil(t, c.Update(TransportClosedMsg{Epoch: epoch, Err: io.EOF}))
	assert.Equal(t, Disconnected, c.State())
	assert.NoError(t, c.Err())
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	c, d := newTestClient(t)
	open(t, c, c.Connect())

	stale := c.conn.Epoch()
	require.NotNil(t, c.Update(TransportClosedMsg{Epoch: stale}))
	c.Disconnect()

	assert.Nil(t, c.Update(ReconnectTickMsg{Epoch: stale}))
	assert.Equal(t, 1, d.calls)
}

func TestStaleDialIsClosed(t *testing.T) {
	c, _ := newTestClient(t)

	cmd := c.Connect()
	c.Disconnect()
	msg := cmd()

	c.Update(msg)
	opened, ok := msg.(TransportOpenedMsg)
	require.True(t, ok)
	assert.True(t, opened.Transport.(*fakeTransport).closed)
	assert.Equal(t, Disconnected, c.State())
}

func TestReconnectAfterTerminalNeedsConsumer(t *testing.T) {
	c, d := newTestClient(t)
	c.opts.MaxAttempts = 0
	c.conn.maxAttempts = 0
	open(t, c, c.Connect())

	assert.Nil(t, c.Update(TransportClosedMsg{Epoch: c.conn.Epoch()}))
	assert.Equal(t, ErrConnectionLost, c.Err())

	open(t, c, c.Connect())
	assert.NoError(t, c.Err())
	assert.Equal(t, 2, d.calls)
}

func TestClearRunKeepsSessionAndSeed(t *testing.T) {
	c, _ := newTestClient(t)
	c.SetSeed(seed())
	open(t, c, c.Connect())
	deliver(c, reply("r1", "a"))
	deliver(c, `{"type":"persona_created","data":{"user_handle":"a"}}`)
	deliver(c, `{"type":"completed"}`)
	c.Pause()
	deliver(c, reply("r2", "b"))

	c.ClearRun()

	assert.Equal(t, Connected, c.State())
	assert.Equal(t, "sess-1", c.Session())
	assert.Equal(t, []string{"u1"}, keys(c.Messages()))
	assert.Empty(t, c.Personas())
	assert.False(t, c.Complete())
	assert.False(t, c.Paused())
	assert.Equal(t, 0, c.Buffered())
}

func TestResetReconnects(t *testing.T) {
	c, d := newTestClient(t)
	c.SetSeed(seed())
	open(t, c, c.Connect())
	deliver(c, reply("r1", "a"))
	c.Pause()
	deliver(c, reply("r2", "b"))

	tick := c.Reset()
	require.NotNil(t, tick)
	assert.Equal(t, Disconnected, c.State())
	assert.Equal(t, "", c.Session())
	assert.Equal(t, 0, c.Buffered())
	assert.False(t, c.Paused())
	assert.Equal(t, []string{"u1"}, keys(c.Messages()))

	dial := c.Update(ResetTickMsg{Epoch: c.conn.Epoch()})
	open(t, c, dial)
	assert.Equal(t, 2, d.calls)
	assert.Equal(t, "sess-1", c.Session())
}

func TestKeepalivePingsWhileConnected(t *testing.T) {
	c, d := newTestClient(t)
	open(t, c, c.Connect())
	epoch := c.conn.Epoch()

	next := c.Update(KeepaliveTickMsg{Epoch: epoch})
	assert.NotNil(t, next)
	assert.Equal(t, []string{"ping"}, d.last().sentTypes())

	c.Update(TransportClosedMsg{Epoch: epoch})
	assert.Nil(t, c.Update(KeepaliveTickMsg{Epoch: epoch}), "keepalive stops once the connection drops")
	assert.Len(t, d.transports[0].sent, 1)
}

func TestArrivalPulse(t *testing.T) {
	c, _ := newTestClient(t)
	open(t, c, c.Connect())

	cmd := deliver(c, reply("r1", "a"))
	assert.NotNil(t, cmd)
	assert.True(t, c.Arrived())

	c.Update(PulseClearMsg{Gen: c.pulseGen})
	assert.False(t, c.Arrived())

	deliver(c, reply("r2", "b"))
	gen := c.pulseGen
	c.ClearRun()
	deliver(c, reply("r3", "c"))
	c.Update(PulseClearMsg{Gen: gen})
	assert.True(t, c.Arrived(), "clear from before ClearRun is ignored")
}

func TestStaleFramesIgnored(t *testing.T) {
	c, _ := newTestClient(t)
	open(t, c, c.Connect())
	stale := c.conn.Epoch()
	c.Disconnect()

	c.Update(FrameMsg{Epoch: stale, Data: []byte(reply("r1", "late"))})
	assert.Empty(t, c.Messages())
}

func TestUnownedMessagesIgnored(t *testing.T) {
	c, _ := newTestClient(t)
	assert.Nil(t, c.Update(tea.KeyMsg{}))
	assert.Equal(t, Disconnected, c.State())
}
