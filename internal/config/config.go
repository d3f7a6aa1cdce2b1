// Package config holds operator-level configuration for a SafeLayer installation.
//
// This is infrastructure config set by whoever deploys SafeLayer, NOT
// per-request redaction options (those travel in the API request). The
// boundary is:
//
//   - Operator config (this package): data directory, audit signing key,
//     vault encryption key, detector provider and timeout, session expiry,
//     rate limits. Set via env vars (SAFELAYER_*) or safelayer.config.yaml.
//
//   - Detector credentials: stored in the encrypted vault (internal/secrets)
//     and managed via "safelayer secrets set". Env vars like OPENAI_API_KEY
//     are supported solely as a quickstart fallback for local development;
//     commands log a warning when they are used instead of the vault.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the SAFELAYER_ prefix
// (e.g. "signing_key" → SAFELAYER_SIGNING_KEY) and to a YAML field
// in safelayer.config.yaml.
const (
	KeyDataDir         = "data_dir"
	KeySigningKey      = "signing_key"
	KeyVaultKey        = "vault_key"
	KeyDetector        = "detector"
	KeyDetectorModel   = "detector_model"
	KeyDetectorTimeout = "detector_timeout_seconds"
	KeyOllamaBaseURL   = "ollama_base_url"
	KeyPatternFile     = "pattern_file"
	KeySessionIdleMin  = "session_idle_minutes"
	KeySweepInterval   = "sweep_interval"
	KeyMaxInputKB      = "max_input_kb"
	KeyFuzzyDistance   = "fuzzy_distance"
	KeyGlobalRPM       = "global_rpm"
	KeyCallerRPM       = "caller_rpm"
)

// Defaults that do NOT involve crypto material. Crypto keys intentionally
// have no baked-in defaults — when unset we generate a deterministic
// per-machine fallback and warn loudly.
const (
	DefaultDetector        = "pattern"
	DefaultDetectorModel   = "gpt-4o-mini"
	DefaultDetectorTimeout = 30
	DefaultOllamaURL       = "http://localhost:11434"
	DefaultSessionIdleMin  = 30
	DefaultSweepInterval   = "1m"
	DefaultMaxInputKB      = 512
	DefaultFuzzyDistance   = 1
	DefaultGlobalRPM       = 600
	DefaultCallerRPM       = 120
)

// Config holds resolved operator-level configuration for a SafeLayer process.
type Config struct {
	DataDir         string // Base directory for all state (~/.safelayer)
	SigningKey      string // HMAC-SHA256 key for audit record signing (≥32 bytes)
	VaultKey        string // AES-256 encryption key for the vault (32 bytes or 64 hex)
	Detector        string // "pattern", "openai", "ollama", or "composite"
	DetectorModel   string // Model name for LLM-backed detectors
	DetectorTimeout time.Duration
	OllamaBaseURL   string
	PatternFile     string // Optional extra recognizer YAML layered over the embedded defaults
	SessionIdle     time.Duration
	SweepInterval   string // session sweeper interval as a duration string, e.g. "1m"
	MaxInputBytes   int
	FuzzyDistance   int // Edit-distance threshold for person-name matching
	GlobalRPM       int
	CallerRPM       int

	usingDefaultSigningKey bool
	usingDefaultVaultKey   bool
}

// UsingDefaultKeys returns true if either crypto key fell back to a
// generated default. Commands should warn when this is the case.
func (c *Config) UsingDefaultKeys() bool {
	return c.usingDefaultSigningKey || c.usingDefaultVaultKey
}

// UsingDefaultSigningKey reports whether the audit signing key is a generated fallback.
func (c *Config) UsingDefaultSigningKey() bool { return c.usingDefaultSigningKey }

// UsingDefaultVaultKey reports whether the vault encryption key is a generated fallback.
func (c *Config) UsingDefaultVaultKey() bool { return c.usingDefaultVaultKey }

// AuditDBPath returns the full path to the audit SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// VaultDBPath returns the full path to the secrets SQLite database.
func (c *Config) VaultDBPath() string {
	return filepath.Join(c.DataDir, "vault.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WarnIfDefaultKeys logs a warning when crypto keys are not explicitly set.
// Suppressed when SAFELAYER_QUICKSTART=1 or true (demos, first exploration).
func (c *Config) WarnIfDefaultKeys() {
	if isQuickstart() {
		return
	}
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using generated default SAFELAYER_SIGNING_KEY — set via env var or config file for production")
	}
	if c.usingDefaultVaultKey {
		log.Warn().Msg("Using generated default SAFELAYER_VAULT_KEY — set via env var or config file for production")
	}
}

func isQuickstart() bool {
	v := os.Getenv("SAFELAYER_QUICKSTART")
	return v == "1" || v == "true" || v == "TRUE"
}

func init() {
	viper.SetEnvPrefix("SAFELAYER")
	viper.AutomaticEnv()
	viper.SetDefault(KeyDetector, DefaultDetector)
	viper.SetDefault(KeyDetectorModel, DefaultDetectorModel)
	viper.SetDefault(KeyDetectorTimeout, DefaultDetectorTimeout)
	viper.SetDefault(KeyOllamaBaseURL, DefaultOllamaURL)
	viper.SetDefault(KeySessionIdleMin, DefaultSessionIdleMin)
	viper.SetDefault(KeySweepInterval, DefaultSweepInterval)
	viper.SetDefault(KeyMaxInputKB, DefaultMaxInputKB)
	viper.SetDefault(KeyFuzzyDistance, DefaultFuzzyDistance)
	viper.SetDefault(KeyGlobalRPM, DefaultGlobalRPM)
	viper.SetDefault(KeyCallerRPM, DefaultCallerRPM)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:         resolveDataDir(),
		SigningKey:      viper.GetString(KeySigningKey),
		VaultKey:        viper.GetString(KeyVaultKey),
		Detector:        viper.GetString(KeyDetector),
		DetectorModel:   viper.GetString(KeyDetectorModel),
		DetectorTimeout: time.Duration(viper.GetInt(KeyDetectorTimeout)) * time.Second,
		OllamaBaseURL:   viper.GetString(KeyOllamaBaseURL),
		PatternFile:     viper.GetString(KeyPatternFile),
		SessionIdle:     time.Duration(viper.GetInt(KeySessionIdleMin)) * time.Minute,
		SweepInterval:   viper.GetString(KeySweepInterval),
		MaxInputBytes:   viper.GetInt(KeyMaxInputKB) * 1024,
		FuzzyDistance:   viper.GetInt(KeyFuzzyDistance),
		GlobalRPM:       viper.GetInt(KeyGlobalRPM),
		CallerRPM:       viper.GetInt(KeyCallerRPM),
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "audit-signing")
		cfg.usingDefaultSigningKey = true
	}
	if cfg.VaultKey == "" {
		cfg.VaultKey = deriveDefaultKey(cfg.DataDir, "vault-encryption")
		cfg.usingDefaultVaultKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".safelayer"
	}
	return filepath.Join(home, ".safelayer")
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from the
// data directory path and a salt. This is NOT cryptographically strong — it
// exists solely so `safelayer serve` works out of the box while still
// signing and encrypting with a per-machine-unique key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("safelayer:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	switch c.Detector {
	case "pattern", "openai", "ollama", "composite":
	default:
		return fmt.Errorf("detector must be one of pattern, openai, ollama, composite (got %q)", c.Detector)
	}
	if len(c.SigningKey) < 32 {
		return fmt.Errorf("signing_key must be at least 32 bytes (got %d); set SAFELAYER_SIGNING_KEY", len(c.SigningKey))
	}
	if err := validateVaultKey(c.VaultKey); err != nil {
		return err
	}
	if c.DetectorTimeout <= 0 {
		return fmt.Errorf("detector_timeout_seconds must be positive")
	}
	if c.MaxInputBytes <= 0 {
		return fmt.Errorf("max_input_kb must be positive")
	}
	if c.SessionIdle <= 0 {
		return fmt.Errorf("session_idle_minutes must be positive")
	}
	if c.FuzzyDistance < 0 {
		return fmt.Errorf("fuzzy_distance must not be negative")
	}
	return nil
}

// validateVaultKey accepts either 32 raw bytes or 64 hex characters (decodes to 32 bytes for AES-256).
func validateVaultKey(key string) error {
	n := len(key)
	if n == 32 {
		return nil
	}
	if n == 64 && isHexString(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) != 32 {
			return fmt.Errorf("vault_key hex must decode to 32 bytes: %w", err)
		}
		return nil
	}
	return fmt.Errorf("vault_key must be exactly 32 bytes or 64 hex characters (got %d); set SAFELAYER_VAULT_KEY", n)
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
