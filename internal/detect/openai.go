package detect

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	slotel "github.com/S-feLayer/SafeLayer-Chat/internal/otel"
)

// OpenAIDetector asks an OpenAI chat model to find sensitive values.
type OpenAIDetector struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIDetector creates an OpenAI-backed detector with the given API key
// and model. A zero timeout falls back to TimeoutDetection.
func NewOpenAIDetector(apiKey, model string, timeout time.Duration) *OpenAIDetector {
	if timeout <= 0 {
		timeout = TimeoutDetection
	}
	return &OpenAIDetector{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
	}
}

// NewOpenAIDetectorWithBaseURL creates an OpenAI-backed detector against a
// custom base URL (e.g. a mock server in tests). baseURL should be the
// scheme+host without path; the client appends /v1 as needed.
func NewOpenAIDetectorWithBaseURL(apiKey, model, baseURL string, timeout time.Duration) *OpenAIDetector {
	if timeout <= 0 {
		timeout = TimeoutDetection
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"
	return &OpenAIDetector{client: openai.NewClientWithConfig(config), model: model, timeout: timeout}
}

// Name returns the detector identifier.
func (d *OpenAIDetector) Name() string { return "openai" }

// Healthy reports whether the OpenAI API is reachable with the configured credentials.
func (d *OpenAIDetector) Healthy(ctx context.Context) error {
	if _, err := d.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
	}
	return nil
}

// Detect sends the text to the chat model and parses the reported values
// into spans. Any API failure wraps ErrDetectionUnavailable.
func (d *OpenAIDetector) Detect(ctx context.Context, text string, pol Policy) ([]Span, error) {
	ctx, span := tracer.Start(ctx, "detect.llm",
		trace.WithAttributes(
			slotel.GenAISystem.String("openai"),
			slotel.GenAIRequestModel.String(d.model),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       d.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: detectSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildDetectPrompt(text, pol)},
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: openai: %v", ErrDetectionUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai returned no choices", ErrDetectionUnavailable)
	}

	span.SetAttributes(
		slotel.GenAIUsageInputTokens.Int(resp.Usage.PromptTokens),
		slotel.GenAIUsageOutputTokens.Int(resp.Usage.CompletionTokens),
	)

	spans, err := parseDetection(text, resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing openai output: %v", ErrDetectionUnavailable, err)
	}
	return spans, nil
}
