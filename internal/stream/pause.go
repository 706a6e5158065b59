package stream

import "github.com/zynpsy/threadsimulation/internal/backend"

// PauseController holds content events aside while the stream is paused.
type PauseController struct {
	paused bool
	buffer []backend.Message
}

// Paused reports whether the controller is holding content.
func (p *PauseController) Paused() bool { return p.paused }

// Buffered returns the number of held messages.
func (p *PauseController) Buffered() int { return len(p.buffer) }

// Pause starts holding content. Returns false if already paused.
func (p *PauseController) Pause() bool {
	if p.paused {
		return false
	}
	p.paused = true
	return true
}

// Resume stops holding content and hands back everything held, in arrival
// order. The flag is cleared before the buffer is taken.
func (p *PauseController) Resume() []backend.Message {
	p.paused = false
	drained := p.buffer
	p.buffer = nil
	return drained
}

// Offer holds msg if paused. Returns false when the caller should deliver it
// live.
func (p *PauseController) Offer(msg backend.Message) bool {
	if !p.paused {
		return false
	}
	p.buffer = append(p.buffer, msg)
	return true
}

// Clear drops the held messages and returns to live.
func (p *PauseController) Clear() {
	p.paused = false
	p.buffer = nil
}
