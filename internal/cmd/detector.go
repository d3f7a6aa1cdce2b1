package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/S-feLayer/SafeLayer-Chat/internal/config"
	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
	"github.com/S-feLayer/SafeLayer-Chat/internal/secrets"
)

// openAIKeySecret is the vault name for the OpenAI credential.
const openAIKeySecret = "openai_api_key"

// buildPatternDetector compiles the regex detector with any operator pattern
// file layered over the embedded defaults.
func buildPatternDetector(cfg *config.Config) (*detect.PatternDetector, error) {
	var opts []detect.PatternOption
	if cfg.PatternFile != "" {
		opts = append(opts, detect.WithPatternFile(cfg.PatternFile))
	}
	return detect.NewPatternDetector(opts...)
}

// resolveOpenAIKey reads the OpenAI API key from the vault, falling back to
// the OPENAI_API_KEY environment variable for quickstart setups.
func resolveOpenAIKey(ctx context.Context, vault *secrets.Vault, caller string) (string, error) {
	if vault != nil {
		if key, err := vault.Get(ctx, openAIKeySecret, caller); err == nil {
			return string(key), nil
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		log.Warn().Msg("using OPENAI_API_KEY from environment; prefer `safelayer secrets set openai_api_key ...`")
		return key, nil
	}
	return "", fmt.Errorf("no OpenAI API key: store one with `safelayer secrets set %s <key>` or set OPENAI_API_KEY", openAIKeySecret)
}

// buildDetector wires the detector stack named by the config. The composite
// detector layers an LLM pass over the regex pass for aggressive or
// high-sensitivity requests.
func buildDetector(ctx context.Context, cfg *config.Config, vault *secrets.Vault, caller string) (detect.Detector, error) {
	pd, err := buildPatternDetector(cfg)
	if err != nil {
		return nil, fmt.Errorf("building pattern detector: %w", err)
	}

	switch cfg.Detector {
	case "pattern":
		return detect.NewCompositeDetector(pd, nil), nil

	case "openai":
		key, err := resolveOpenAIKey(ctx, vault, caller)
		if err != nil {
			return nil, err
		}
		return detect.NewCompositeDetector(pd, detect.NewOpenAIDetector(key, cfg.DetectorModel, cfg.DetectorTimeout)), nil

	case "ollama":
		return detect.NewCompositeDetector(pd, detect.NewOllamaDetector(cfg.OllamaBaseURL, cfg.DetectorModel, cfg.DetectorTimeout)), nil

	case "composite":
		// Prefer OpenAI when a credential exists, otherwise local Ollama.
		if key, err := resolveOpenAIKey(ctx, vault, caller); err == nil {
			return detect.NewCompositeDetector(pd, detect.NewOpenAIDetector(key, cfg.DetectorModel, cfg.DetectorTimeout)), nil
		}
		log.Info().Msg("no OpenAI credential, composite detector falls back to ollama")
		return detect.NewCompositeDetector(pd, detect.NewOllamaDetector(cfg.OllamaBaseURL, cfg.DetectorModel, cfg.DetectorTimeout)), nil

	default:
		return nil, fmt.Errorf("unknown detector %q", cfg.Detector)
	}
}
