// Package archive stores completed simulation runs in SQLite.
package archive

import (
	"encoding/json"
	"time"

	"github.com/zynpsy/threadsimulation/internal/backend"
)

// Run is one archived simulation run.
type Run struct {
	ID           string
	ClientID     string
	SeedURI      string
	StartedAt    time.Time
	CompletedAt  *time.Time
	MessageCount int
	PersonaCount int
	Summary      json.RawMessage
	CreatedAt    time.Time
}

// Message is one transcript entry of a run. Seq 0 is the seed post when the
// run had one.
type Message struct {
	RunID     string
	Seq       int
	URI       string
	Author    string
	Text      string
	CreatedAt *time.Time
	Payload   json.RawMessage
}

// Persona is a persona that took part in a run.
type Persona struct {
	RunID    string
	Seq      int
	Handle   string
	Analysis string
	Payload  json.RawMessage
}

// NewRun is the input to SaveRun.
type NewRun struct {
	ClientID    string
	StartedAt   time.Time
	CompletedAt *time.Time
	Seed        *backend.Message
	Messages    []backend.Message
	Personas    []backend.Persona
	Summary     json.RawMessage
}
