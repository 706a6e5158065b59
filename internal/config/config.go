// Package config loads the threadsim YAML configuration.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zynpsy/threadsimulation/internal/backend"
	"github.com/zynpsy/threadsimulation/internal/stream"
)

// Config is the full client configuration.
type Config struct {
	Endpoint          string            `yaml:"endpoint"`
	APIBaseURL        string            `yaml:"api_base_url"`
	Reconnect         ReconnectConfig   `yaml:"reconnect"`
	KeepaliveInterval time.Duration     `yaml:"keepalive_interval"`
	TypingPulse       time.Duration     `yaml:"typing_pulse"`
	ResetDelay        time.Duration     `yaml:"reset_delay"`
	Simulation        SimulationConfig  `yaml:"simulation"`
	UserPersona       UserPersonaConfig `yaml:"user_persona"`
	ArchivePath       string            `yaml:"archive_path"`
	LogFile           string            `yaml:"log_file"`
	Anonymize         bool              `yaml:"anonymize"`
	MetricsAddr       string            `yaml:"metrics_addr"`
}

// ReconnectConfig bounds automatic reconnection.
type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// SimulationConfig names the inputs of a simulation run.
type SimulationConfig struct {
	ThreadFile   string  `yaml:"thread_file"`
	PersonasFile string  `yaml:"personas_file"`
	Delay        float64 `yaml:"delay"`
}

// UserPersonaConfig is the user-authored reply added with the persona
// command.
type UserPersonaConfig struct {
	Name  string `yaml:"name"`
	Reply string `yaml:"reply"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Endpoint:   backend.DefaultEndpoint,
		APIBaseURL: backend.DefaultAPIBaseURL,
		Reconnect: ReconnectConfig{
			MaxAttempts: stream.DefaultMaxAttempts,
			Delay:       stream.DefaultReconnectDelay,
		},
		KeepaliveInterval: stream.DefaultKeepaliveInterval,
		TypingPulse:       stream.DefaultPulseDuration,
		ResetDelay:        stream.DefaultResetDelay,
		Simulation: SimulationConfig{
			Delay: backend.DefaultSimulationDelay,
		},
	}
}

// Load reads, parses and validates a config file. An empty path yields the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown fields and multiple documents
// are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(new(yaml.Node)); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("parse config: multiple YAML documents are not supported")
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// StreamOptions maps the config onto stream client options.
func (c Config) StreamOptions() stream.Options {
	opts := stream.DefaultOptions()
	opts.MaxAttempts = c.Reconnect.MaxAttempts
	opts.ReconnectDelay = c.Reconnect.Delay
	opts.KeepaliveInterval = c.KeepaliveInterval
	opts.PulseDuration = c.TypingPulse
	opts.ResetDelay = c.ResetDelay
	return opts
}

// Issue captures a validation problem with a config field.
type Issue struct {
	Field   string
	Message string
}

// ValidationError aggregates config validation issues.
type ValidationError struct {
	Issues []Issue
}

// Error renders validation errors as a multi-line string.
func (err *ValidationError) Error() string {
	if err == nil || len(err.Issues) == 0 {
		return "config validation failed"
	}
	lines := make([]string, 0, len(err.Issues))
	for _, issue := range err.Issues {
		lines = append(lines, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return strings.Join(lines, "\n")
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var issues []Issue
	add := func(field, message string) {
		issues = append(issues, Issue{Field: field, Message: message})
	}

	validateURL(c.Endpoint, "endpoint", []string{"ws", "wss"}, add)
	validateURL(c.APIBaseURL, "api_base_url", []string{"http", "https"}, add)

	if c.Reconnect.MaxAttempts < 0 {
		add("reconnect.max_attempts", "must be >= 0")
	}
	if c.Reconnect.Delay <= 0 {
		add("reconnect.delay", "must be > 0")
	}
	if c.KeepaliveInterval <= 0 {
		add("keepalive_interval", "must be > 0")
	}
	if c.TypingPulse <= 0 {
		add("typing_pulse", "must be > 0")
	}
	if c.ResetDelay < 0 {
		add("reset_delay", "must be >= 0")
	}
	if c.Simulation.Delay < 0 {
		add("simulation.delay", "must be >= 0")
	}

	name := strings.TrimSpace(c.UserPersona.Name)
	reply := strings.TrimSpace(c.UserPersona.Reply)
	if len([]rune(name)) > backend.MaxUserNameLen {
		add("user_persona.name", fmt.Sprintf("must be at most %d characters", backend.MaxUserNameLen))
	}
	if len([]rune(reply)) > backend.MaxUserReplyLen {
		add("user_persona.reply", fmt.Sprintf("must be at most %d characters", backend.MaxUserReplyLen))
	}
	if (name == "") != (reply == "") {
		add("user_persona", "name and reply must be set together")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validateURL(raw, field string, schemes []string, add func(field, message string)) {
	if strings.TrimSpace(raw) == "" {
		add(field, "is required")
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		add(field, "is not a valid URL")
		return
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				add(field, "must include a host")
			}
			return
		}
	}
	add(field, "must use scheme "+strings.Join(schemes, " or "))
}

// LoadThread reads the thread file: a JSON array of posts whose first element
// is the original post.
func (s SimulationConfig) LoadThread() ([]json.RawMessage, error) {
	if s.ThreadFile == "" {
		return nil, nil
	}
	posts, err := readJSONArray(s.ThreadFile)
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	return posts, nil
}

// LoadPersonas reads the personas file: a JSON array of persona objects.
func (s SimulationConfig) LoadPersonas() ([]backend.Persona, error) {
	if s.PersonasFile == "" {
		return nil, nil
	}
	items, err := readJSONArray(s.PersonasFile)
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}
	personas := make([]backend.Persona, 0, len(items))
	for i, raw := range items {
		var p backend.Persona
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("load personas: entry %d: %w", i, err)
		}
		personas = append(personas, p)
	}
	return personas, nil
}

func readJSONArray(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return items, nil
}
