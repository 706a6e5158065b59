package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPauseControllerOrder(t *testing.T) {
	var p PauseController

	assert.False(t, p.Offer(msg("r0", "live")), "live messages pass through")
	assert.True(t, p.Pause())
	assert.False(t, p.Pause(), "already paused")

	for _, k := range []string{"r1", "r2", "r3"} {
		assert.True(t, p.Offer(msg(k, k)))
	}
	assert.Equal(t, 3, p.Buffered())

	drained := p.Resume()
	assert.Equal(t, []string{"r1", "r2", "r3"}, keys(drained))
	assert.False(t, p.Paused())
	assert.Equal(t, 0, p.Buffered())
	assert.Empty(t, p.Resume(), "buffer drained exactly once")
}

func TestPauseControllerClear(t *testing.T) {
	var p PauseController
	p.Pause()
	p.Offer(msg("r1", "a"))

	p.Clear()

	assert.False(t, p.Paused())
	assert.Equal(t, 0, p.Buffered())
}
