package stream

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zynpsy/threadsimulation/internal/backend"
)

// keepaliveCmd schedules the next ping for the given connection epoch.
func keepaliveCmd(interval time.Duration, epoch int) tea.Cmd {
	if interval <= 0 {
		return nil
	}
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return KeepaliveTickMsg{Epoch: epoch}
	})
}

// handleKeepalive pings and re-arms while the connection the tick belongs to
// is still up. Otherwise the chain stops.
func (c *Client) handleKeepalive(msg KeepaliveTickMsg) tea.Cmd {
	if msg.Epoch != c.conn.Epoch() || c.conn.State() != Connected {
		return nil
	}
	if err := c.conn.Send(backend.Frame{Type: backend.FramePing}); err != nil {
		c.log.Warn("ping failed", "err", err)
	}
	return keepaliveCmd(c.opts.KeepaliveInterval, msg.Epoch)
}
