// Package secrets provides an encrypted vault for detector provider
// credentials.
//
// Values are encrypted at rest with AES-256-GCM and stored in SQLite. Every
// read is logged to an access table with the caller identity, so credential
// use is traceable after the fact.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	slotel "github.com/S-feLayer/SafeLayer-Chat/internal/otel"
)

var (
	// ErrSecretNotFound is returned when a secret name does not exist.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrInvalidEncryptionKey is returned when the vault key is not exactly
	// 32 bytes (required for AES-256).
	ErrInvalidEncryptionKey = errors.New("invalid encryption key")
)

var tracer = slotel.Tracer("github.com/S-feLayer/SafeLayer-Chat/internal/secrets")

// Vault stores encrypted secrets with per-access audit logging.
type Vault struct {
	db  *sql.DB
	gcm cipher.AEAD
}

// Metadata is the public view of a secret. It never carries the value.
type Metadata struct {
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	AccessedAt  time.Time `json:"accessed_at,omitempty"`
	AccessCount int       `json:"access_count"`
}

// AccessRecord is one entry of the vault access log.
type AccessRecord struct {
	ID         string    `json:"id"`
	SecretName string    `json:"secret_name"`
	Caller     string    `json:"caller"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewVault opens (creating if needed) an encrypted vault backed by SQLite.
// The key must be exactly 32 raw bytes or 64 hex characters.
func NewVault(dbPath, encryptionKey string) (*Vault, error) {
	keyBytes, err := resolveEncryptionKey(encryptionKey)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening vault database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS secrets (
		name TEXT PRIMARY KEY,
		encrypted_value TEXT NOT NULL,
		nonce TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		accessed_at TIMESTAMP,
		access_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS secret_access_log (
		id TEXT PRIMARY KEY,
		secret_name TEXT NOT NULL,
		caller TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_access_log_secret ON secret_access_log(secret_name);
	CREATE INDEX IF NOT EXISTS idx_access_log_timestamp ON secret_access_log(timestamp);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating vault schema: %w", err)
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Vault{db: db, gcm: gcm}, nil
}

func resolveEncryptionKey(key string) ([]byte, error) {
	if len(key) == 64 && isHexKey(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("encryption key hex must decode to 32 bytes: %w", ErrInvalidEncryptionKey)
		}
		return decoded, nil
	}
	if len(key) == 32 {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("encryption key must be 32 bytes or 64 hex characters (got %d): %w", len(key), ErrInvalidEncryptionKey)
}

func isHexKey(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// Close releases the database connection.
func (v *Vault) Close() error {
	return v.db.Close()
}

// Set stores an encrypted secret. Upserts on conflict.
func (v *Vault) Set(ctx context.Context, name string, value []byte) error {
	ctx, span := tracer.Start(ctx, "secrets.set",
		trace.WithAttributes(attribute.String("secret.name", name)))
	defer span.End()

	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := v.gcm.Seal(nil, nonce, value, nil)

	query := `
		INSERT INTO secrets (name, encrypted_value, nonce, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			encrypted_value = excluded.encrypted_value,
			nonce = excluded.nonce`
	_, err := v.db.ExecContext(ctx, query,
		name,
		base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(nonce),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storing secret: %w", err)
	}
	return nil
}

// Get decrypts and returns a secret value, logging the access under the
// caller identity.
func (v *Vault) Get(ctx context.Context, name, caller string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "secrets.get",
		trace.WithAttributes(attribute.String("secret.name", name)))
	defer span.End()

	var encB64, nonceB64 string
	err := v.db.QueryRowContext(ctx,
		`SELECT encrypted_value, nonce FROM secrets WHERE name = ?`, name).
		Scan(&encB64, &nonceB64)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("querying secret: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encB64)
	if err != nil {
		return nil, fmt.Errorf("decoding secret: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return nil, fmt.Errorf("decoding nonce: %w", err)
	}

	value, err := v.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting secret %s: %w", name, err)
	}

	now := time.Now().UTC()
	_, _ = v.db.ExecContext(ctx,
		`UPDATE secrets SET accessed_at = ?, access_count = access_count + 1 WHERE name = ?`,
		now, name)
	_, _ = v.db.ExecContext(ctx,
		`INSERT INTO secret_access_log (id, secret_name, caller, timestamp) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), name, caller, now)

	return value, nil
}

// List returns metadata for every stored secret, sorted by name.
func (v *Vault) List(ctx context.Context) ([]Metadata, error) {
	rows, err := v.db.QueryContext(ctx,
		`SELECT name, created_at, accessed_at, access_count FROM secrets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing secrets: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		var accessedAt sql.NullTime
		if err := rows.Scan(&m.Name, &m.CreatedAt, &accessedAt, &m.AccessCount); err != nil {
			return nil, fmt.Errorf("scanning secret metadata: %w", err)
		}
		if accessedAt.Valid {
			m.AccessedAt = accessedAt.Time
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes a secret from the vault.
func (v *Vault) Delete(ctx context.Context, name string) error {
	res, err := v.db.ExecContext(ctx, `DELETE FROM secrets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting secret: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return nil
}

// AccessLog returns the most recent access records for a secret.
func (v *Vault) AccessLog(ctx context.Context, name string, limit int) ([]AccessRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := v.db.QueryContext(ctx,
		`SELECT id, secret_name, caller, timestamp FROM secret_access_log
		 WHERE secret_name = ? ORDER BY timestamp DESC LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("querying access log: %w", err)
	}
	defer rows.Close()

	var out []AccessRecord
	for rows.Next() {
		var r AccessRecord
		if err := rows.Scan(&r.ID, &r.SecretName, &r.Caller, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning access record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
