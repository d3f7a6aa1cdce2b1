package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	spans  []Span
	err    error
	called bool
}

func (s *stubDetector) Name() string { return "stub" }

func (s *stubDetector) Detect(ctx context.Context, text string, pol Policy) ([]Span, error) {
	s.called = true
	return s.spans, s.err
}

func TestCompositeSkipsLLMForDefaultPolicy(t *testing.T) {
	stub := &stubDetector{}
	d := NewCompositeDetector(MustNewPatternDetector(), stub)

	spans, err := d.Detect(context.Background(), "mail john@example.com", Policy{})
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.False(t, stub.called, "llm pass must not run for the default policy")
}

func TestCompositeRunsLLMWhenAggressive(t *testing.T) {
	text := "contact Alice at alice@example.com"
	stub := &stubDetector{spans: []Span{
		{Start: 8, End: 13, Type: TypePersonName, Value: "Alice", Confidence: llmConfidence},
	}}
	d := NewCompositeDetector(MustNewPatternDetector(), stub)

	spans, err := d.Detect(context.Background(), text, Policy{Aggressive: true})
	require.NoError(t, err)
	assert.True(t, stub.called)

	var types []EntityType
	for _, s := range spans {
		types = append(types, s.Type)
	}
	assert.Contains(t, types, TypeEmail)
	assert.Contains(t, types, TypePersonName)
}

func TestCompositeRunsLLMWhenSensitivityHigh(t *testing.T) {
	stub := &stubDetector{}
	d := NewCompositeDetector(MustNewPatternDetector(), stub)

	_, err := d.Detect(context.Background(), "nothing here", Policy{Sensitivity: SensitivityHigh})
	require.NoError(t, err)
	assert.True(t, stub.called)
}

func TestCompositeLLMFailureFailsCall(t *testing.T) {
	stub := &stubDetector{err: ErrDetectionUnavailable}
	d := NewCompositeDetector(MustNewPatternDetector(), stub)

	_, err := d.Detect(context.Background(), "mail john@example.com", Policy{Aggressive: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDetectionUnavailable))
}

func TestCompositeWithoutLLM(t *testing.T) {
	d := NewCompositeDetector(MustNewPatternDetector(), nil)
	assert.Equal(t, "pattern", d.Name())

	spans, err := d.Detect(context.Background(), "ping", Policy{Aggressive: true})
	require.NoError(t, err)
	assert.Empty(t, spans)
}
