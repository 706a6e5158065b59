// Package backend provides the wire protocol, the websocket transport and the
// HTTP client for the thread simulation backend.
package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Outbound control frame types.
const (
	FramePing   = "ping"
	FramePause  = "pause"
	FrameResume = "resume"
)

// Inbound event type tags.
const (
	TypeConnected        = "connected"
	TypePersonaCreated   = "persona_created"
	TypeMessageGenerated = "message_generated"
	TypeProgressUpdate   = "progress_update"
	TypeCompleted        = "completed"
	TypeError            = "error"
	TypePaused           = "paused"
	TypeResumed          = "resumed"
	TypePong             = "pong"
)

// Frame is a control frame sent from the client to the backend.
type Frame struct {
	Type string `json:"type"`
}

// envelope is the shape shared by every inbound frame.
type envelope struct {
	Type     string          `json:"type"`
	ClientID string          `json:"client_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// Event is a parsed inbound frame. The set of implementations is closed.
type Event interface {
	Type() string
	isEvent()
}

// Connected carries the session id assigned by the backend.
type Connected struct {
	ClientID string
}

// PersonaCreated announces a persona taking part in the run.
type PersonaCreated struct {
	Persona Persona
}

// MessageGenerated delivers one simulated reply.
type MessageGenerated struct {
	Message Message
}

// ProgressUpdate reports how far the run has got.
type ProgressUpdate struct {
	Progress Progress
}

// Completed marks the end of a run.
type Completed struct {
	Summary json.RawMessage
}

// Error is a failure reported by the backend or raised by the transport.
type Error struct {
	Reason string
	Detail string
}

// Paused acknowledges a pause frame.
type Paused struct{}

// Resumed acknowledges a resume frame.
type Resumed struct{}

// Pong answers a ping frame.
type Pong struct{}

func (Connected) Type() string        { return TypeConnected }
func (PersonaCreated) Type() string   { return TypePersonaCreated }
func (MessageGenerated) Type() string { return TypeMessageGenerated }
func (ProgressUpdate) Type() string   { return TypeProgressUpdate }
func (Completed) Type() string        { return TypeCompleted }
func (Error) Type() string            { return TypeError }
func (Paused) Type() string           { return TypePaused }
func (Resumed) Type() string          { return TypeResumed }
func (Pong) Type() string             { return TypePong }

func (Connected) isEvent()        {}
func (PersonaCreated) isEvent()   {}
func (MessageGenerated) isEvent() {}
func (ProgressUpdate) isEvent()   {}
func (Completed) isEvent()        {}
func (Error) isEvent()            {}
func (Paused) isEvent()           {}
func (Resumed) isEvent()          {}
func (Pong) isEvent()             {}

func (e Error) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Detail
}

// FrameError reports an inbound frame that could not be parsed.
type FrameError struct {
	Type string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("malformed frame: %v", e.Err)
	}
	return fmt.Sprintf("malformed %s frame: %v", e.Type, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// UnknownEventError reports a well-formed frame with an unrecognized type tag.
type UnknownEventError struct {
	Type string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unrecognized event type %q", e.Type)
}

var errMissingData = errors.New("missing data")

// ParseEvent decodes one inbound frame.
func ParseEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &FrameError{Err: err}
	}

	switch env.Type {
	case "":
		return nil, &FrameError{Err: errors.New("missing type")}

	case TypeConnected:
		if env.ClientID == "" {
			return nil, &FrameError{Type: env.Type, Err: errors.New("missing client_id")}
		}
		return Connected{ClientID: env.ClientID}, nil

	case TypePersonaCreated:
		var p Persona
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		return PersonaCreated{Persona: p}, nil

	case TypeMessageGenerated:
		var m Message
		if err := decodeData(env, &m); err != nil {
			return nil, err
		}
		return MessageGenerated{Message: m}, nil

	case TypeProgressUpdate:
		var p Progress
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		return ProgressUpdate{Progress: p}, nil

	case TypeCompleted:
		return Completed{Summary: env.Data}, nil

	case TypeError:
		return Error{Reason: env.Error, Detail: detailText(env.Details)}, nil

	case TypePaused:
		return Paused{}, nil
	case TypeResumed:
		return Resumed{}, nil
	case TypePong:
		return Pong{}, nil
	}

	return nil, &UnknownEventError{Type: env.Type}
}

func decodeData(env envelope, v any) error {
	if isNull(env.Data) {
		return &FrameError{Type: env.Type, Err: errMissingData}
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return &FrameError{Type: env.Type, Err: err}
	}
	return nil
}

// detailText flattens the details field, which the backend sends either as a
// string or as an object.
func detailText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Persona is a simulated participant.
type Persona struct {
	Handle     string       `json:"user_handle"`
	Analysis   string       `json:"persona_analysis,omitempty"`
	Statistics PersonaStats `json:"statistics"`

	raw json.RawMessage
}

// PersonaStats summarizes the activity a persona was derived from.
type PersonaStats struct {
	TotalPosts   int `json:"total_posts"`
	TotalReplies int `json:"total_replies"`
	TotalLikes   int `json:"total_likes"`
}

type personaFields Persona

// UnmarshalJSON keeps the original payload so it can be sent back verbatim.
func (p *Persona) UnmarshalJSON(data []byte) error {
	var f personaFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*p = Persona(f)
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the payload the persona was decoded from, if any.
func (p Persona) MarshalJSON() ([]byte, error) {
	if p.raw != nil {
		return p.raw, nil
	}
	return json.Marshal(personaFields(p))
}

// Message is one post in a thread: the original post or a simulated reply.
type Message struct {
	URI         string
	Author      string
	DisplayName string
	Text        string
	CreatedAt   time.Time

	raw json.RawMessage
}

// Key identifies the message for deduplication. Empty means no identity.
func (m Message) Key() string {
	return m.URI
}

type messageWire struct {
	URI       string          `json:"uri,omitempty"`
	Author    json.RawMessage `json:"author,omitempty"`
	Text      string          `json:"text"`
	CreatedAt string          `json:"created_at,omitempty"`
}

type authorWire struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name,omitempty"`
}

// UnmarshalJSON accepts the author either as a bare handle or as an object.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{URI: w.URI, Text: w.Text}

	if !isNull(w.Author) {
		var handle string
		if err := json.Unmarshal(w.Author, &handle); err == nil {
			m.Author = handle
		} else {
			var a authorWire
			if err := json.Unmarshal(w.Author, &a); err != nil {
				return fmt.Errorf("decode author: %w", err)
			}
			m.Author = a.Handle
			m.DisplayName = a.DisplayName
		}
	}

	if w.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, w.CreatedAt); err == nil {
			m.CreatedAt = ts
		}
	}

	m.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the payload the message was decoded from, if any.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	w := messageWire{URI: m.URI, Text: m.Text}
	if m.Author != "" {
		var author any = m.Author
		if m.DisplayName != "" {
			author = authorWire{Handle: m.Author, DisplayName: m.DisplayName}
		}
		b, err := json.Marshal(author)
		if err != nil {
			return nil, err
		}
		w.Author = b
	}
	if !m.CreatedAt.IsZero() {
		w.CreatedAt = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(w)
}

// Progress is the payload of a progress_update event.
type Progress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Current int     `json:"current,omitempty"`
	Total   int     `json:"total,omitempty"`
	Message string  `json:"message,omitempty"`
}
