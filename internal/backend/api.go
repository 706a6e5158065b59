package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultAPIBaseURL is the HTTP root of a local backend.
const DefaultAPIBaseURL = "http://localhost:8000"

// Limits enforced on user-authored personas before they are submitted.
const (
	MaxUserNameLen  = 50
	MaxUserReplyLen = 1000
)

// DefaultSimulationDelay is the pause between agent calls, in seconds.
const DefaultSimulationDelay = 1.5

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP error! status: %d", e.Status)
}

// ValidationError rejects a request before it is sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// APIClient calls the backend's request/response endpoints.
type APIClient struct {
	baseURL string
	http    *http.Client
}

// NewAPIClient returns a client rooted at baseURL. A nil httpClient uses a
// client with a 60 second timeout.
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// SimulateRequest starts a simulation run that streams over the session.
type SimulateRequest struct {
	ClientID   string            `json:"client_id"`
	ThreadData []json.RawMessage `json:"thread_data"`
	Personas   []Persona         `json:"personas"`
	Delay      float64           `json:"delay"`
}

// SimulateResponse acknowledges a started run.
type SimulateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StartSimulation submits a run. Results arrive on the stream.
func (c *APIClient) StartSimulation(ctx context.Context, req SimulateRequest) (SimulateResponse, error) {
	if req.ClientID == "" {
		return SimulateResponse{}, &ValidationError{Field: "client_id", Reason: "required"}
	}
	if req.Personas == nil {
		req.Personas = []Persona{}
	}
	var resp SimulateResponse
	if err := c.post(ctx, "/api/simulate", req, &resp); err != nil {
		return SimulateResponse{}, fmt.Errorf("start simulation: %w", err)
	}
	return resp, nil
}

// UserPersonaRequest asks the backend to derive a persona from a user reply.
type UserPersonaRequest struct {
	ClientID         string          `json:"client_id"`
	UserName         string          `json:"user_name"`
	UserReply        string          `json:"user_reply"`
	OriginalPost     json.RawMessage `json:"original_post"`
	ExistingPersonas []Persona       `json:"existing_personas"`
	ExistingReplies  []Message       `json:"existing_replies"`
}

// UserPersonaResponse carries the created persona and its reply.
type UserPersonaResponse struct {
	Persona  Persona `json:"persona"`
	Reply    Message `json:"reply"`
	Username string  `json:"username"`
}

// Validate trims the name and reply and checks their lengths.
func (r *UserPersonaRequest) Validate() error {
	r.UserName = strings.TrimSpace(r.UserName)
	r.UserReply = strings.TrimSpace(r.UserReply)

	switch {
	case r.ClientID == "":
		return &ValidationError{Field: "client_id", Reason: "required"}
	case r.UserName == "":
		return &ValidationError{Field: "user_name", Reason: "please enter your name"}
	case utf8.RuneCountInString(r.UserName) > MaxUserNameLen:
		return &ValidationError{Field: "user_name", Reason: fmt.Sprintf("must be %d characters or less", MaxUserNameLen)}
	case r.UserReply == "":
		return &ValidationError{Field: "user_reply", Reason: "please enter your reply"}
	case utf8.RuneCountInString(r.UserReply) > MaxUserReplyLen:
		return &ValidationError{Field: "user_reply", Reason: fmt.Sprintf("must be %d characters or less", MaxUserReplyLen)}
	}
	return nil
}

// CreateUserPersona submits a user-authored reply.
func (c *APIClient) CreateUserPersona(ctx context.Context, req UserPersonaRequest) (UserPersonaResponse, error) {
	if err := req.Validate(); err != nil {
		return UserPersonaResponse{}, err
	}
	if req.ExistingPersonas == nil {
		req.ExistingPersonas = []Persona{}
	}
	if req.ExistingReplies == nil {
		req.ExistingReplies = []Message{}
	}
	var resp UserPersonaResponse
	if err := c.post(ctx, "/api/create-user-persona", req, &resp); err != nil {
		return UserPersonaResponse{}, fmt.Errorf("create user persona: %w", err)
	}
	return resp, nil
}

// GeneratePersonasRequest derives personas from thread data.
type GeneratePersonasRequest struct {
	ThreadData  []json.RawMessage `json:"thread_data"`
	MinComments int               `json:"min_comments"`
	MaxUsers    *int              `json:"max_users"`
}

// GeneratePersonasResponse lists the generated personas.
type GeneratePersonasResponse struct {
	Personas []Persona `json:"personas"`
}

// GeneratePersonas runs persona generation synchronously.
func (c *APIClient) GeneratePersonas(ctx context.Context, req GeneratePersonasRequest) (GeneratePersonasResponse, error) {
	if req.MinComments == 0 {
		req.MinComments = 3
	}
	var resp GeneratePersonasResponse
	if err := c.post(ctx, "/api/generate-personas", req, &resp); err != nil {
		return GeneratePersonasResponse{}, fmt.Errorf("generate personas: %w", err)
	}
	return resp, nil
}

// PipelineRequest runs persona generation and simulation in one call.
type PipelineRequest struct {
	ThreadData  []json.RawMessage `json:"thread_data"`
	MinComments int               `json:"min_comments"`
	MaxUsers    *int              `json:"max_users"`
	AgentDelay  float64           `json:"agent_delay"`
}

// RunPipeline returns the backend's result untouched.
func (c *APIClient) RunPipeline(ctx context.Context, req PipelineRequest) (json.RawMessage, error) {
	if req.MinComments == 0 {
		req.MinComments = 3
	}
	if req.AgentDelay == 0 {
		req.AgentDelay = DefaultSimulationDelay
	}
	var resp json.RawMessage
	if err := c.post(ctx, "/api/run-pipeline", req, &resp); err != nil {
		return nil, fmt.Errorf("run pipeline: %w", err)
	}
	return resp, nil
}

// Health returns the backend's health document.
func (c *APIClient) Health(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return resp, nil
}

// Info returns the backend's root document.
func (c *APIClient) Info(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	if err := c.do(ctx, http.MethodGet, "/", nil, &resp); err != nil {
		return nil, fmt.Errorf("api info: %w", err)
	}
	return resp, nil
}

func (c *APIClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, data, out)
}

func (c *APIClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var detail struct {
			Detail json.RawMessage `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&detail); err == nil {
			apiErr.Detail = detailText(detail.Detail)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
