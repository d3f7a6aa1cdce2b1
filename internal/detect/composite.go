package detect

import (
	"context"
	"fmt"
)

// CompositeDetector runs the pattern detector on every request and layers an
// LLM pass on top when the policy asks for aggressive or high-sensitivity
// detection. If the LLM pass is needed and fails, the whole detection fails.
type CompositeDetector struct {
	pattern *PatternDetector
	llm     Detector
}

// NewCompositeDetector combines a pattern detector with an optional LLM
// detector. llm may be nil, in which case only pattern detection runs.
func NewCompositeDetector(pattern *PatternDetector, llm Detector) *CompositeDetector {
	return &CompositeDetector{pattern: pattern, llm: llm}
}

// Name returns the detector identifier.
func (d *CompositeDetector) Name() string {
	if d.llm == nil {
		return d.pattern.Name()
	}
	return d.pattern.Name() + "+" + d.llm.Name()
}

// RevealRules exposes the pattern detector's reveal configuration.
func (d *CompositeDetector) RevealRules() map[string]Reveal {
	return d.pattern.RevealRules()
}

// Healthy checks the underlying detectors.
func (d *CompositeDetector) Healthy(ctx context.Context) error {
	if err := d.pattern.Healthy(ctx); err != nil {
		return err
	}
	if h, ok := d.llm.(interface{ Healthy(context.Context) error }); ok && d.llm != nil {
		return h.Healthy(ctx)
	}
	return nil
}

func (d *CompositeDetector) needsLLM(pol Policy) bool {
	if d.llm == nil {
		return false
	}
	return pol.Aggressive || pol.Sensitivity == SensitivityHigh
}

// Detect merges pattern spans with LLM spans. Pattern failures and LLM
// failures both abort the call so the caller never sees partial coverage.
func (d *CompositeDetector) Detect(ctx context.Context, text string, pol Policy) ([]Span, error) {
	spans, err := d.pattern.Detect(ctx, text, pol)
	if err != nil {
		return nil, err
	}
	if !d.needsLLM(pol) {
		return spans, nil
	}
	llmSpans, err := d.llm.Detect(ctx, text, pol)
	if err != nil {
		return nil, fmt.Errorf("llm detection pass: %w", err)
	}
	return append(spans, llmSpans...), nil
}
