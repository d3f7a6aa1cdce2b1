// Package doctor provides environment checks for a SafeLayer installation.
// Used by `safelayer doctor` to diagnose a setup before running the server.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/S-feLayer/SafeLayer-Chat/internal/audit"
	"github.com/S-feLayer/SafeLayer-Chat/internal/config"
	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
	"github.com/S-feLayer/SafeLayer-Chat/internal/secrets"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which checks to run.
type Options struct {
	SkipDetector bool // Skip detector reachability checks (for CI/offline)
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	cfg, err := config.Load()
	if err != nil {
		report.Checks = append(report.Checks, CheckResult{
			Name: "config_load", Category: "config", Status: "fail",
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check SAFELAYER_* env vars and safelayer.config.yaml",
		})
	} else {
		report.Checks = append(report.Checks, checkDataDir(cfg))
		report.Checks = append(report.Checks, checkCryptoKeys(cfg)...)
		report.Checks = append(report.Checks, checkAuditDB(cfg))
		report.Checks = append(report.Checks, checkVault(cfg))
		report.Checks = append(report.Checks, checkRecognizers(cfg))
		if !opts.SkipDetector {
			report.Checks = append(report.Checks, checkDetectorBackend(ctx, cfg))
		}
	}

	for _, c := range report.Checks {
		switch c.Status {
		case "pass":
			report.Summary.Pass++
		case "warn":
			report.Summary.Warn++
		case "fail":
			report.Summary.Fail++
		}
	}

	report.Status = "pass"
	if report.Summary.Warn > 0 {
		report.Status = "warn"
	}
	if report.Summary.Fail > 0 {
		report.Status = "fail"
	}
	return report
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s — %v", cfg.DataDir, err),
			Fix:     "Ensure directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s not writable — %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkCryptoKeys(cfg *config.Config) []CheckResult {
	var results []CheckResult
	if cfg.UsingDefaultSigningKey() {
		results = append(results, CheckResult{
			Name: "signing_key", Category: "config", Status: "warn",
			Message: "Using generated default", Fix: "Set SAFELAYER_SIGNING_KEY for production",
		})
	} else {
		results = append(results, CheckResult{
			Name: "signing_key", Category: "config", Status: "pass", Message: "Configured",
		})
	}
	if cfg.UsingDefaultVaultKey() {
		results = append(results, CheckResult{
			Name: "vault_key", Category: "config", Status: "warn",
			Message: "Using generated default", Fix: "Set SAFELAYER_VAULT_KEY for production",
		})
	} else {
		results = append(results, CheckResult{
			Name: "vault_key", Category: "config", Status: "pass", Message: "Configured",
		})
	}
	return results
}

func checkAuditDB(cfg *config.Config) CheckResult {
	store, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return CheckResult{
			Name: "audit_db", Category: "storage", Status: "fail",
			Message: fmt.Sprintf("%v", err),
		}
	}
	_ = store.Close()
	return CheckResult{
		Name: "audit_db", Category: "storage", Status: "pass",
		Message: cfg.AuditDBPath(),
	}
}

func checkVault(cfg *config.Config) CheckResult {
	vault, err := secrets.NewVault(cfg.VaultDBPath(), cfg.VaultKey)
	if err != nil {
		return CheckResult{
			Name: "vault_db", Category: "storage", Status: "fail",
			Message: fmt.Sprintf("%v", err),
			Fix:     "Check SAFELAYER_VAULT_KEY matches the key the vault was created with",
		}
	}
	_ = vault.Close()
	return CheckResult{
		Name: "vault_db", Category: "storage", Status: "pass",
		Message: cfg.VaultDBPath(),
	}
}

// checkRecognizers compiles the embedded recognizers plus any operator
// pattern file, the same load path the server uses.
func checkRecognizers(cfg *config.Config) CheckResult {
	var opts []detect.PatternOption
	if cfg.PatternFile != "" {
		if _, err := os.Stat(cfg.PatternFile); err != nil {
			return CheckResult{
				Name: "recognizers", Category: "detector", Status: "fail",
				Message: fmt.Sprintf("pattern file %s — %v", cfg.PatternFile, err),
			}
		}
		opts = append(opts, detect.WithPatternFile(cfg.PatternFile))
	}
	if _, err := detect.NewPatternDetector(opts...); err != nil {
		return CheckResult{
			Name: "recognizers", Category: "detector", Status: "fail",
			Message: fmt.Sprintf("%v", err),
			Fix:     "Fix the recognizer YAML named in the error",
		}
	}
	msg := "embedded defaults"
	if cfg.PatternFile != "" {
		msg = fmt.Sprintf("embedded defaults + %s", cfg.PatternFile)
	}
	return CheckResult{Name: "recognizers", Category: "detector", Status: "pass", Message: msg}
}

// checkDetectorBackend verifies the configured LLM backend is reachable.
// The pattern detector has no backend, so it always passes.
func checkDetectorBackend(ctx context.Context, cfg *config.Config) CheckResult {
	switch cfg.Detector {
	case "pattern":
		return CheckResult{
			Name: "detector_backend", Category: "detector", Status: "pass",
			Message: "pattern (no backend required)",
		}
	case "openai", "composite":
		if os.Getenv("OPENAI_API_KEY") == "" {
			// The key may live in the vault; absence of the env var is
			// only a warning because the vault check covers decryption.
			return CheckResult{
				Name: "detector_backend", Category: "detector", Status: "warn",
				Message: fmt.Sprintf("%s detector without OPENAI_API_KEY in env", cfg.Detector),
				Fix:     "Store a key with `safelayer secrets set openai_api_key <key>`",
			}
		}
		return CheckResult{
			Name: "detector_backend", Category: "detector", Status: "pass",
			Message: cfg.Detector + " (credential in env)",
		}
	case "ollama":
		det := detect.NewOllamaDetector(cfg.OllamaBaseURL, cfg.DetectorModel, cfg.DetectorTimeout)
		if err := det.Healthy(ctx); err != nil {
			return CheckResult{
				Name: "detector_backend", Category: "detector", Status: "fail",
				Message: fmt.Sprintf("ollama at %s — %v", cfg.OllamaBaseURL, err),
				Fix:     "Start ollama or set SAFELAYER_OLLAMA_BASE_URL",
			}
		}
		return CheckResult{
			Name: "detector_backend", Category: "detector", Status: "pass",
			Message: "ollama at " + cfg.OllamaBaseURL,
		}
	default:
		return CheckResult{
			Name: "detector_backend", Category: "detector", Status: "fail",
			Message: fmt.Sprintf("unknown detector %q", cfg.Detector),
		}
	}
}
