package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	slotel "github.com/S-feLayer/SafeLayer-Chat/internal/otel"
)

// OllamaDetector asks a local Ollama model to find sensitive values.
type OllamaDetector struct {
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewOllamaDetector creates an Ollama-backed detector pointing at the given
// base URL. If baseURL is empty, defaults to http://localhost:11434. A zero
// timeout falls back to TimeoutDetection.
func NewOllamaDetector(baseURL, model string, timeout time.Duration) *OllamaDetector {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = TimeoutDetection
	}
	return &OllamaDetector{
		baseURL:    baseURL,
		model:      model,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Name returns the detector identifier.
func (d *OllamaDetector) Name() string { return "ollama" }

// Healthy reports whether the Ollama instance is reachable.
func (d *OllamaDetector) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama status %d", ErrDetectionUnavailable, resp.StatusCode)
	}
	return nil
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Detect sends the text to the local Ollama instance and parses the reported
// values into spans. Any transport failure wraps ErrDetectionUnavailable.
func (d *OllamaDetector) Detect(ctx context.Context, text string, pol Policy) ([]Span, error) {
	ctx, span := tracer.Start(ctx, "detect.llm",
		trace.WithAttributes(
			slotel.GenAISystem.String("ollama"),
			slotel.GenAIRequestModel.String(d.model),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	body, err := json.Marshal(ollamaRequest{
		Model: d.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: detectSystemPrompt},
			{Role: "user", Content: buildDetectPrompt(text, pol)},
		},
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: ollama: %v", ErrDetectionUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ollama status %d", ErrDetectionUnavailable, resp.StatusCode)
	}

	var apiResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decoding ollama response: %v", ErrDetectionUnavailable, err)
	}

	spans, err := parseDetection(text, apiResp.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing ollama output: %v", ErrDetectionUnavailable, err)
	}
	return spans, nil
}
