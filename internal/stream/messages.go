package stream

// TransportOpenedMsg is sent when a dial succeeds.
type TransportOpenedMsg struct {
	Epoch     int
	Transport Transport
}

// TransportFailedMsg is sent when a dial fails.
type TransportFailedMsg struct {
	Epoch int
	Err   error
}

// FrameMsg carries one raw inbound frame.
type FrameMsg struct {
	Epoch int
	Data  []byte
}

// TransportClosedMsg is sent when the read side of a transport ends.
type TransportClosedMsg struct {
	Epoch int
	Err   error
}

// ReconnectTickMsg fires when a scheduled reconnect is due.
type ReconnectTickMsg struct {
	Epoch int
}

// ResetTickMsg fires when the reconnect that follows a reset is due.
type ResetTickMsg struct {
	Epoch int
}

// KeepaliveTickMsg fires when a ping is due.
type KeepaliveTickMsg struct {
	Epoch int
}

// PulseClearMsg ends the new-content pulse.
type PulseClearMsg struct {
	Gen int
}
