package archive

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		clientId TEXT NOT NULL,
		seedUri TEXT,
		startedAt REAL NOT NULL,
		completedAt REAL,
		messageCount INTEGER NOT NULL,
		personaCount INTEGER NOT NULL,
		summary TEXT,
		createdAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		runId TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		uri TEXT,
		author TEXT NOT NULL,
		text TEXT NOT NULL,
		createdAt REAL,
		payload TEXT NOT NULL,
		PRIMARY KEY (runId, seq)
	);

	CREATE TABLE IF NOT EXISTS personas (
		runId TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		handle TEXT NOT NULL,
		analysis TEXT,
		payload TEXT NOT NULL,
		PRIMARY KEY (runId, seq)
	);

	CREATE INDEX IF NOT EXISTS runs_started ON runs(startedAt);
`

// ErrRunNotFound is returned when a run id is not in the archive.
var ErrRunNotFound = errors.New("run not found")

// Store provides access to the run archive.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default archive path.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "threadsim", "runs.sqlite")
}

// Open opens the archive for writing, creating the file and schema if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing archive in read-only mode.
func OpenReadOnly(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun archives a run with its transcript and personas and returns the
// new run id.
func (s *Store) SaveRun(r NewRun) (string, error) {
	id := ulid.Make().String()
	now := time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var seedURI sql.NullString
	msgs := r.Messages
	if r.Seed != nil {
		seedURI = sql.NullString{String: r.Seed.Key(), Valid: r.Seed.Key() != ""}
	}
	var completedAt sql.NullFloat64
	if r.CompletedAt != nil {
		completedAt = sql.NullFloat64{Float64: unixFromTime(*r.CompletedAt), Valid: true}
	}
	var summary sql.NullString
	if len(r.Summary) > 0 {
		summary = sql.NullString{String: string(r.Summary), Valid: true}
	}

	if _, err := tx.Exec(`
		INSERT INTO runs (id, clientId, seedUri, startedAt, completedAt, messageCount, personaCount, summary, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, r.ClientID, seedURI, unixFromTime(r.StartedAt), completedAt,
		len(msgs), len(r.Personas), summary, unixFromTime(now)); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for i, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return "", fmt.Errorf("encode message %d: %w", i, err)
		}
		var uri sql.NullString
		if m.Key() != "" {
			uri = sql.NullString{String: m.Key(), Valid: true}
		}
		var createdAt sql.NullFloat64
		if !m.CreatedAt.IsZero() {
			createdAt = sql.NullFloat64{Float64: unixFromTime(m.CreatedAt), Valid: true}
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (runId, seq, uri, author, text, createdAt, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, i, uri, m.Author, m.Text, createdAt, string(payload)); err != nil {
			return "", fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	for i, p := range r.Personas {
		payload, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("encode persona %d: %w", i, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO personas (runId, seq, handle, analysis, payload)
			VALUES (?, ?, ?, ?, ?)
		`, id, i, p.Handle, p.Analysis, string(payload)); err != nil {
			return "", fmt.Errorf("insert persona %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

const runColumns = `id, clientId, seedUri, startedAt, completedAt, messageCount, personaCount, summary, createdAt`

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT `+runColumns+`
		FROM runs
		ORDER BY startedAt DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Run returns one run by id.
func (s *Store) Run(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return r, err
}

// LatestRun returns the most recently started run, or nil if the archive is
// empty.
func (s *Store) LatestRun() (*Run, error) {
	row := s.db.QueryRow(`
		SELECT ` + runColumns + `
		FROM runs
		ORDER BY startedAt DESC, id DESC
		LIMIT 1
	`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// MessagesForRun returns the transcript of a run in order.
func (s *Store) MessagesForRun(runID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT runId, seq, uri, author, text, createdAt, payload
		FROM messages
		WHERE runId = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var uri sql.NullString
		var createdAt sql.NullFloat64
		var payload string
		if err := rows.Scan(&m.RunID, &m.Seq, &uri, &m.Author, &m.Text, &createdAt, &payload); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.URI = uri.String
		if createdAt.Valid {
			t := timeFromUnix(createdAt.Float64)
			m.CreatedAt = &t
		}
		m.Payload = json.RawMessage(payload)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PersonasForRun returns the personas of a run in arrival order.
func (s *Store) PersonasForRun(runID string) ([]Persona, error) {
	rows, err := s.db.Query(`
		SELECT runId, seq, handle, analysis, payload
		FROM personas
		WHERE runId = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query personas: %w", err)
	}
	defer rows.Close()

	var personas []Persona
	for rows.Next() {
		var p Persona
		var analysis sql.NullString
		var payload string
		if err := rows.Scan(&p.RunID, &p.Seq, &p.Handle, &analysis, &payload); err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		p.Analysis = analysis.String
		p.Payload = json.RawMessage(payload)
		personas = append(personas, p)
	}
	return personas, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var seedURI, summary sql.NullString
	var startedAt, createdAt float64
	var completedAt sql.NullFloat64

	if err := row.Scan(&r.ID, &r.ClientID, &seedURI, &startedAt, &completedAt,
		&r.MessageCount, &r.PersonaCount, &summary, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	r.SeedURI = seedURI.String
	r.StartedAt = timeFromUnix(startedAt)
	r.CreatedAt = timeFromUnix(createdAt)
	if completedAt.Valid {
		t := timeFromUnix(completedAt.Float64)
		r.CompletedAt = &t
	}
	if summary.Valid {
		r.Summary = json.RawMessage(summary.String)
	}
	return &r, nil
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
