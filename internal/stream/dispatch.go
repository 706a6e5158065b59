package stream

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zynpsy/threadsimulation/internal/backend"
)

// dispatch parses one frame and applies it. Frames that fail to parse are
// logged and dropped without touching any state.
func (c *Client) dispatch(data []byte) tea.Cmd {
	ev, err := backend.ParseEvent(data)
	if err != nil {
		var unknown *backend.UnknownEventError
		if errors.As(err, &unknown) {
			c.log.Warn("unrecognized event", "type", unknown.Type)
			c.metrics.frameDropped("unknown_type")
		} else {
			c.log.Warn("dropping malformed frame", "err", err, "size", len(data))
			c.metrics.frameDropped("malformed")
		}
		return nil
	}
	c.metrics.frameReceived(ev.Type())
	return c.apply(ev)
}

func (c *Client) apply(ev backend.Event) tea.Cmd {
	switch ev := ev.(type) {
	case backend.Connected:
		c.session = ev.ClientID
		c.log.Info("session established", "client_id", ev.ClientID)

	case backend.PersonaCreated:
		c.personas = append(c.personas, ev.Persona)
		c.log.Debug("persona created", "handle", ev.Persona.Handle)

	case backend.MessageGenerated:
		if c.pause.Offer(ev.Message) {
			c.metrics.setBuffered(c.pause.Buffered())
			c.log.Debug("message buffered", "key", ev.Message.Key(), "buffered", c.pause.Buffered())
			return nil
		}
		return c.appendLive(ev.Message)

	case backend.ProgressUpdate:
		p := ev.Progress
		c.progress = &p

	case backend.Completed:
		c.complete = true
		c.summary = ev.Summary
		c.progress = nil
		c.log.Info("simulation complete", "messages", c.transcript.Len())

	case backend.Error:
		c.err = ev
		c.log.Error("backend error", "reason", ev.Reason, "detail", ev.Detail)

	case backend.Paused:
		c.log.Info("backend acknowledged pause")
	case backend.Resumed:
		c.log.Info("backend acknowledged resume")
	case backend.Pong:
	}
	return nil
}
