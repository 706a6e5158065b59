package stream

import "github.com/zynpsy/threadsimulation/internal/backend"

// Transcript merges the seed post with streamed messages.
//
// The merged view is rebuilt from seed plus every received message on each
// change, so a re-sent message never shows up twice or moves.
type Transcript struct {
	seed     *backend.Message
	received []backend.Message
	merged   []backend.Message
}

// Seed sets the original post. It only takes effect while the merged view is
// empty. Returns whether the seed was accepted.
func (t *Transcript) Seed(msg backend.Message) bool {
	if len(t.merged) > 0 {
		return false
	}
	seed := msg
	t.seed = &seed
	t.remerge()
	return true
}

// Append adds msgs in order and returns how many entries the merged view
// grew by.
func (t *Transcript) Append(msgs ...backend.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	before := len(t.merged)
	t.received = append(t.received, msgs...)
	t.remerge()
	return len(t.merged) - before
}

// Messages returns the merged view. The slice must not be modified.
func (t *Transcript) Messages() []backend.Message { return t.merged }

// Len returns the number of merged entries.
func (t *Transcript) Len() int { return len(t.merged) }

// Replies returns the merged view without the seed.
func (t *Transcript) Replies() []backend.Message {
	if t.seed == nil {
		return t.merged
	}
	return t.merged[1:]
}

// ClearReceived drops streamed messages and keeps the seed.
func (t *Transcript) ClearReceived() {
	t.received = nil
	t.remerge()
}

func (t *Transcript) remerge() {
	all := make([]backend.Message, 0, len(t.received)+1)
	if t.seed != nil {
		all = append(all, *t.seed)
	}
	all = append(all, t.received...)
	t.merged = Dedup(all)
}

// Dedup keeps the first message for each non-empty key and every keyless
// message, preserving order.
func Dedup(msgs []backend.Message) []backend.Message {
	seen := make(map[string]struct{}, len(msgs))
	out := make([]backend.Message, 0, len(msgs))
	for _, m := range msgs {
		if k := m.Key(); k != "" {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		out = append(out, m)
	}
	return out
}
