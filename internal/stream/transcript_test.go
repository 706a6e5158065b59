package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zynpsy/threadsimulation/internal/backend"
)

func msg(key, text string) backend.Message {
	return backend.Message{URI: key, Text: text}
}

func TestDedupKeepsFirstOccurrence(t *testing.T) {
	in := []backend.Message{msg("a", "1"), msg("b", "2"), msg("a", "3"), msg("", "4"), msg("", "5"), msg("b", "6")}

	out := Dedup(in)

	var texts []string
	for _, m := range out {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"1", "2", "4", "5"}, texts)
}

func TestTranscriptSeedFirst(t *testing.T) {
	var tr Transcript

	assert.True(t, tr.Seed(msg("u1", "orig")))
	assert.False(t, tr.Seed(msg("u2", "other")), "seed only while empty")

	assert.Equal(t, 1, tr.Append(msg("r1", "reply")))
	assert.Equal(t, 0, tr.Append(msg("u1", "orig again")))
	assert.Equal(t, []string{"u1", "r1"}, keys(tr.Messages()))
	assert.Equal(t, "orig", tr.Messages()[0].Text)
	assert.Equal(t, []string{"r1"}, keys(tr.Replies()))
}

func TestTranscriptWithoutSeed(t *testing.T) {
	var tr Transcript

	assert.Equal(t, 0, tr.Append())
	assert.Equal(t, 2, tr.Append(msg("r1", "a"), msg("r2", "b")))
	assert.False(t, tr.Seed(msg("u1", "late")), "seed refused once messages exist")
	assert.Equal(t, []string{"r1", "r2"}, keys(tr.Replies()))
}

func TestTranscriptRedeliveryIsIdempotent(t *testing.T) {
	var tr Transcript
	tr.Seed(msg("u1", "orig"))
	tr.Append(msg("r1", "a"), msg("r2", "b"))
	before := keys(tr.Messages())

	tr.Append(msg("r2", "b"), msg("r1", "a"), msg("u1", "orig"))

	assert.Equal(t, before, keys(tr.Messages()))
}

func TestTranscriptClearReceived(t *testing.T) {
	var tr Transcript
	tr.Seed(msg("u1", "orig"))
	tr.Append(msg("r1", "a"))

	tr.ClearReceived()

	assert.Equal(t, []string{"u1"}, keys(tr.Messages()))
	assert.Equal(t, 1, tr.Append(msg("r1", "a")), "cleared keys can arrive again")
}
