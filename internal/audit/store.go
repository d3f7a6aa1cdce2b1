// Package audit provides an HMAC-signed trail of redaction events.
//
// Every redaction call, successful or failed, produces one Event persisted
// in SQLite. Events record what was detected and how long it took, plus a
// SHA-256 hash of the input for correlation. Raw sensitive values and input
// text are never stored.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	slotel "github.com/S-feLayer/SafeLayer-Chat/internal/otel"
)

var tracer = slotel.Tracer("github.com/S-feLayer/SafeLayer-Chat/internal/audit")

// Event is the audit record for a single redaction call.
type Event struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	SessionID    string         `json:"session_id"`
	Caller       string         `json:"caller,omitempty"`
	ContentType  string         `json:"content_type,omitempty"`
	Detector     string         `json:"detector"`
	TypeCounts   map[string]int `json:"type_counts,omitempty"`
	MasksApplied int            `json:"masks_applied"`
	DurationMS   int64          `json:"duration_ms"`
	InputSHA256  string         `json:"input_sha256"`
	Success      bool           `json:"success"`
	Error        string         `json:"error,omitempty"`
	Signature    string         `json:"signature"`
}

// HashInput computes the hex SHA-256 digest recorded for an input text.
func HashInput(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Store persists signed audit events in SQLite.
type Store struct {
	db     *sql.DB
	signer *Signer
}

// NewStore opens (creating if needed) the audit database at dbPath.
func NewStore(dbPath, signingKey string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS redaction_events (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		session_id TEXT NOT NULL,
		caller TEXT NOT NULL,
		event_json TEXT NOT NULL,
		signature TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON redaction_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_caller ON redaction_events(caller);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON redaction_events(timestamp);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	return &Store{db: db, signer: signer}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record signs and persists an event. The id and timestamp are assigned here
// when unset.
func (s *Store) Record(ctx context.Context, ev *Event) error {
	ctx, span := tracer.Start(ctx, "audit.record",
		trace.WithAttributes(attribute.String("session_id", ev.SessionID)))
	defer span.End()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	ev.Signature = ""
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	ev.Signature = s.signer.Sign(payload)

	signed, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling signed audit event: %w", err)
	}

	query := `INSERT INTO redaction_events (id, timestamp, session_id, caller, event_json, signature)
	          VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		ev.ID, ev.Timestamp, ev.SessionID, ev.Caller, string(signed), ev.Signature,
	)
	if err != nil {
		return fmt.Errorf("storing audit event: %w", err)
	}
	return nil
}

// Get retrieves an event by id.
func (s *Store) Get(ctx context.Context, id string) (*Event, error) {
	var eventJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT event_json FROM redaction_events WHERE id = ?`, id).Scan(&eventJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("audit event %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying audit event: %w", err)
	}

	var ev Event
	if err := json.Unmarshal([]byte(eventJSON), &ev); err != nil {
		return nil, fmt.Errorf("unmarshaling audit event: %w", err)
	}
	return &ev, nil
}

// List returns events matching the filters, newest first.
func (s *Store) List(ctx context.Context, sessionID, caller string, from, to time.Time, limit int) ([]Event, error) {
	ctx, span := tracer.Start(ctx, "audit.list")
	defer span.End()

	query := `SELECT event_json FROM redaction_events WHERE 1=1`
	args := []interface{}{}

	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	if caller != "" {
		query += ` AND caller = ?`
		args = append(args, caller)
	}
	if !from.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var results []Event
	for rows.Next() {
		var eventJSON string
		if err := rows.Scan(&eventJSON); err != nil {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(eventJSON), &ev); err != nil {
			continue
		}
		results = append(results, ev)
	}
	return results, rows.Err()
}

// VerifyEvent checks the stored signature of an event against its payload.
func (s *Store) VerifyEvent(ctx context.Context, id string) (bool, error) {
	ev, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	signature := ev.Signature
	ev.Signature = ""
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("marshaling audit event for verification: %w", err)
	}
	return s.signer.Verify(payload, signature), nil
}

// Purge deletes events older than the cutoff and returns how many were
// removed. Retention enforcement, not per-record deletion.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM redaction_events WHERE timestamp < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("purging audit events: %w", err)
	}
	return res.RowsAffected()
}
