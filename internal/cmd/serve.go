package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/S-feLayer/SafeLayer-Chat/internal/audit"
	"github.com/S-feLayer/SafeLayer-Chat/internal/config"
	"github.com/S-feLayer/SafeLayer-Chat/internal/redaction"
	"github.com/S-feLayer/SafeLayer-Chat/internal/secrets"
	"github.com/S-feLayer/SafeLayer-Chat/internal/server"
	"github.com/S-feLayer/SafeLayer-Chat/internal/session"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the SafeLayer redaction API server",
	Long: `Starts the HTTP API that redacts PII from text before it reaches an
LLM provider. Sessions, audit records, and vault secrets live under the
data directory (~/.safelayer by default).`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	cfg.WarnIfDefaultKeys()

	vault, err := secrets.NewVault(cfg.VaultDBPath(), cfg.VaultKey)
	if err != nil {
		return fmt.Errorf("opening vault: %w", err)
	}
	defer vault.Close()

	auditStore, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer auditStore.Close()

	detector, err := buildDetector(ctx, cfg, vault, "serve")
	if err != nil {
		return err
	}
	pd, err := buildPatternDetector(cfg)
	if err != nil {
		return err
	}

	sessions := session.NewStore(cfg.SessionIdle)
	sweepEvery, err := time.ParseDuration(cfg.SweepInterval)
	if err != nil {
		return fmt.Errorf("invalid sweep_interval %q: %w", cfg.SweepInterval, err)
	}
	sweeper, err := session.NewSweeper(sessions, sweepEvery)
	if err != nil {
		return fmt.Errorf("starting session sweeper: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	redactor := redaction.NewRedactor(detector, sessions,
		redaction.WithMaxInputBytes(cfg.MaxInputBytes),
		redaction.WithFuzzyDistance(cfg.FuzzyDistance),
		redaction.WithRevealRules(pd.RevealRules()),
	)

	srv := server.NewServer(redactor, detector, sessions,
		server.WithAuditStore(auditStore),
		server.WithAPIKeys(parseAPIKeys(os.Getenv("SAFELAYER_API_KEYS"))),
		server.WithRateLimiter(server.NewRateLimiter(cfg.GlobalRPM, cfg.CallerRPM)),
	)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", servePort),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", servePort).Str("detector", detector.Name()).Msg("safelayer listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// parseAPIKeys parses the SAFELAYER_API_KEYS env var. The format is a
// comma-separated list of entries, each either "key" or "key:caller".
// Entries without a caller name are labeled caller-1, caller-2, ...
func parseAPIKeys(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	keys := make(map[string]string)
	anon := 0
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, caller, found := strings.Cut(entry, ":")
		if !found || caller == "" {
			anon++
			caller = fmt.Sprintf("caller-%d", anon)
		}
		if key == "" {
			continue
		}
		keys[key] = caller
	}
	if len(keys) == 0 {
		return nil
	}
	return keys
}
