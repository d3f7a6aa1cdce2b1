package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/S-feLayer/SafeLayer-Chat/internal/adapter"
	"github.com/S-feLayer/SafeLayer-Chat/internal/config"
	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
	"github.com/S-feLayer/SafeLayer-Chat/internal/redaction"
	"github.com/S-feLayer/SafeLayer-Chat/internal/secrets"
	"github.com/S-feLayer/SafeLayer-Chat/internal/session"
)

var (
	redactContentType string
	redactAggressive  bool
	redactSensitivity string
	redactSession     string
	redactJSON        bool
)

var redactCmd = &cobra.Command{
	Use:   "redact [file]",
	Short: "Redact PII from a file or stdin",
	Long: `Redacts a single document and prints the result to stdout. Pass a file
path, or "-" (or no argument) to read from stdin.

Without --session each run uses a throwaway session, so entity labels
(Person A, Person B, ...) are consistent within the document but not
across runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRedact,
}

func init() {
	redactCmd.Flags().StringVar(&redactContentType, "content-type", "", "content type for stdin input (text, markdown, code)")
	redactCmd.Flags().BoolVar(&redactAggressive, "aggressive", false, "enable aggressive recognizers (names, addresses)")
	redactCmd.Flags().StringVar(&redactSensitivity, "sensitivity", "medium", "sensitivity level (low, medium, high)")
	redactCmd.Flags().StringVar(&redactSession, "session", "", "session id for cross-run entity consistency")
	redactCmd.Flags().BoolVar(&redactJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(redactCmd)
}

func runRedact(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	var vault *secrets.Vault
	if cfg.Detector != "pattern" {
		vault, err = secrets.NewVault(cfg.VaultDBPath(), cfg.VaultKey)
		if err != nil {
			return fmt.Errorf("opening vault: %w", err)
		}
		defer vault.Close()
	}

	detector, err := buildDetector(ctx, cfg, vault, "cli")
	if err != nil {
		return err
	}
	pd, err := buildPatternDetector(cfg)
	if err != nil {
		return err
	}

	doc, err := loadDocument(cmd, args, cfg)
	if err != nil {
		return err
	}

	sessions := session.NewStore(cfg.SessionIdle)
	redactor := redaction.NewRedactor(detector, sessions,
		redaction.WithMaxInputBytes(cfg.MaxInputBytes),
		redaction.WithFuzzyDistance(cfg.FuzzyDistance),
		redaction.WithRevealRules(pd.RevealRules()),
	)

	sessionID := redactSession
	ephemeral := sessionID == ""
	if ephemeral {
		sessionID = uuid.NewString()
	}

	pol := detect.Policy{
		Aggressive:  redactAggressive,
		Sensitivity: detect.SensitivityLevel(redactSensitivity),
	}

	res, err := redactor.Redact(ctx, doc.Text, pol, sessionID)
	if ephemeral {
		defer sessions.Expire(sessionID)
	}
	if err != nil {
		return err
	}

	if redactJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	_, err = cmd.OutOrStdout().Write(doc.Reembed(res.RedactedText))
	return err
}

// loadDocument reads the input from the named file or stdin and extracts
// its redactable text.
func loadDocument(cmd *cobra.Command, args []string, cfg *config.Config) (*adapter.Document, error) {
	fromStdin := len(args) == 0 || args[0] == "-"
	if !fromStdin {
		mb := cfg.MaxInputBytes / (1 << 20)
		if mb < 1 {
			mb = 1
		}
		return adapter.NewExtractor(mb).ExtractFile(cmd.Context(), args[0])
	}

	content, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), int64(cfg.MaxInputBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	ct := adapter.ContentText
	if redactContentType != "" {
		ct = adapter.ContentType(redactContentType)
	}
	if !ct.Valid() {
		return nil, fmt.Errorf("unsupported content type %q", redactContentType)
	}
	return adapter.Extract(ct, content)
}
