package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8000/ws", cfg.Endpoint)
	assert.Equal(t, "http://localhost:8000", cfg.APIBaseURL)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Reconnect.Delay)
	assert.Equal(t, 30*time.Second, cfg.KeepaliveInterval)
	assert.Equal(t, 800*time.Millisecond, cfg.TypingPulse)
	assert.Equal(t, 100*time.Millisecond, cfg.ResetDelay)
	assert.Equal(t, 1.5, cfg.Simulation.Delay)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, "threadsim.yaml", `
endpoint: wss://sim.example.com/ws
reconnect:
  max_attempts: 2
  delay: 500ms
typing_pulse: 1s
simulation:
  thread_file: thread.json
user_persona:
  name: Zeynep
  reply: interesting take
anonymize: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://sim.example.com/ws", cfg.Endpoint)
	assert.Equal(t, "http://localhost:8000", cfg.APIBaseURL, "unset fields keep defaults")
	assert.Equal(t, 2, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.Delay)
	assert.Equal(t, time.Second, cfg.TypingPulse)
	assert.Equal(t, "thread.json", cfg.Simulation.ThreadFile)
	assert.Equal(t, 1.5, cfg.Simulation.Delay)
	assert.True(t, cfg.Anonymize)

	opts := cfg.StreamOptions()
	assert.Equal(t, 2, opts.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, opts.ReconnectDelay)
	assert.Equal(t, time.Second, opts.PulseDuration)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("endpoint: ws://localhost:8000/ws\nretries: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries")
}

func TestParseRejectsMultipleDocuments(t *testing.T) {
	_, err := Parse([]byte("anonymize: true\n---\nanonymize: false\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple YAML documents")

	_, err = Parse([]byte("anonymize: true\n---\nendpoint: ws://other\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple YAML documents")
	assert.NotContains(t, err.Error(), "not found")
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.Endpoint = "http://localhost:8000/ws"
	cfg.APIBaseURL = ""
	cfg.Reconnect.Delay = 0
	cfg.KeepaliveInterval = -time.Second
	cfg.UserPersona.Name = strings.Repeat("n", 51)

	err := cfg.Validate()

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	var fields []string
	for _, issue := range ve.Issues {
		fields = append(fields, issue.Field)
	}
	assert.ElementsMatch(t, []string{
		"endpoint",
		"api_base_url",
		"reconnect.delay",
		"keepalive_interval",
		"user_persona.name",
		"user_persona",
	}, fields)
	assert.Contains(t, err.Error(), "endpoint: must use scheme ws or wss")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadThreadAndPersonas(t *testing.T) {
	thread := writeFile(t, "thread.json", `[{"uri":"at://op","text":"orig"},{"uri":"at://r1","text":"reply"}]`)
	personas := writeFile(t, "personas.json", `[{"user_handle":"a.bsky.social"}]`)
	sim := SimulationConfig{ThreadFile: thread, PersonasFile: personas}

	posts, err := sim.LoadThread()
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.JSONEq(t, `{"uri":"at://op","text":"orig"}`, string(posts[0]))

	ps, err := sim.LoadPersonas()
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "a.bsky.social", ps[0].Handle)

	none, err := SimulationConfig{}.LoadThread()
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestLoadThreadRejectsNonArray(t *testing.T) {
	path := writeFile(t, "thread.json", `{"uri":"at://op"}`)
	_, err := SimulationConfig{ThreadFile: path}.LoadThread()
	assert.Error(t, err)
}
