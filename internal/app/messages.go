package app

import "github.com/zynpsy/threadsimulation/internal/backend"

// SimulationStartedMsg is sent when the backend accepted a run.
type SimulationStartedMsg struct {
	Response backend.SimulateResponse
}

// UserPersonaCreatedMsg carries the persona derived from the user's reply.
type UserPersonaCreatedMsg struct {
	Response backend.UserPersonaResponse
}

// APIErrorMsg is sent when an HTTP request to the backend fails.
type APIErrorMsg struct {
	Op  string
	Err error
}

// RunArchivedMsg is sent once a completed run has been saved.
type RunArchivedMsg struct {
	ID string
}

// ArchiveErrorMsg is sent when saving a run fails.
type ArchiveErrorMsg struct {
	Err error
}

// ClearNoticeMsg clears a notice after a timeout.
type ClearNoticeMsg struct {
	Seq int
}
