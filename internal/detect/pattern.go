package detect

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	slotel "github.com/S-feLayer/SafeLayer-Chat/internal/otel"
	"github.com/S-feLayer/SafeLayer-Chat/patterns"
)

var tracer = slotel.Tracer("github.com/S-feLayer/SafeLayer-Chat/internal/detect")

const (
	// ContextSimilarityFactor is the score boost applied when context words
	// are found near a match. Matches Presidio's default.
	ContextSimilarityFactor = 0.35

	// ContextWindowChars is the number of characters to search before and
	// after a match when looking for context words.
	ContextWindowChars = 100
)

// PatternDetector detects sensitive spans with configurable regex recognizers.
// It is purely local: Detect never returns ErrDetectionUnavailable.
type PatternDetector struct {
	patterns []piiPattern
	reveals  map[string]Reveal
}

// PatternOption configures a PatternDetector via the functional options pattern.
type PatternOption func(*patternConfig)

type patternConfig struct {
	patternFile string
	extra       []RecognizerConfig
}

// WithPatternFile layers recognizers from an operator patterns YAML file over
// the embedded defaults. A missing file is silently skipped.
func WithPatternFile(path string) PatternOption {
	return func(c *patternConfig) { c.patternFile = path }
}

// WithRecognizers appends recognizer definitions on top of all file layers.
func WithRecognizers(recs []RecognizerConfig) PatternOption {
	return func(c *patternConfig) { c.extra = recs }
}

// NewPatternDetector creates a regex detector. Without options it uses the
// embedded defaults. Options layer operator overrides on top.
func NewPatternDetector(opts ...PatternOption) (*PatternDetector, error) {
	var cfg patternConfig
	for _, o := range opts {
		o(&cfg)
	}

	rf, err := ParseRecognizerFile(patterns.PIIDefaultYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded recognizers: %w", err)
	}
	layers := [][]RecognizerConfig{rf.Recognizers}

	if cfg.patternFile != "" {
		opf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading operator pattern file: %w", err)
		}
		if opf != nil {
			layers = append(layers, opf.Recognizers)
		}
	}
	if len(cfg.extra) > 0 {
		layers = append(layers, cfg.extra)
	}

	merged := MergeRecognizers(layers...)
	compiled, reveals, err := compilePatterns(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling recognizers: %w", err)
	}

	return &PatternDetector{patterns: compiled, reveals: reveals}, nil
}

// MustNewPatternDetector is like NewPatternDetector but panics on error.
// Useful for zero-config startup where the embedded defaults are expected
// to always compile.
func MustNewPatternDetector(opts ...PatternOption) *PatternDetector {
	d, err := NewPatternDetector(opts...)
	if err != nil {
		panic(fmt.Sprintf("detect.NewPatternDetector: %v", err))
	}
	return d
}

// Name returns the detector identifier.
func (d *PatternDetector) Name() string { return "pattern" }

// RevealRules returns the partial-reveal rules declared by CUSTOM
// recognizers, keyed by pattern id. The mask generator merges these with
// per-request custom patterns.
func (d *PatternDetector) RevealRules() map[string]Reveal {
	out := make(map[string]Reveal, len(d.reveals))
	for k, v := range d.reveals {
		out[k] = v
	}
	return out
}

// Healthy reports detector reachability. The pattern detector is in-process
// and always healthy.
func (d *PatternDetector) Healthy(ctx context.Context) error { return nil }

// Detect scans text for sensitive spans. Each match passes a hard Luhn gate
// where declared, then score-based context filtering against the policy's
// minimum confidence. Aggressive-only recognizers run only in aggressive
// mode; per-request custom patterns are compiled and applied last.
func (d *PatternDetector) Detect(ctx context.Context, text string, pol Policy) ([]Span, error) {
	_, span := tracer.Start(ctx, "detect.pattern")
	defer span.End()

	minScore := pol.minScore()
	var spans []Span

	for i := range d.patterns {
		p := &d.patterns[i]
		if p.AggressiveOnly && !pol.Aggressive {
			continue
		}
		spans = append(spans, d.scanOne(text, p, minScore)...)
	}

	for _, cp := range pol.CustomPatterns {
		re, err := regexp.Compile(cp.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling custom pattern %q: %w", cp.ID, err)
		}
		p := &piiPattern{
			Name:      "request:" + cp.ID,
			Type:      TypeCustom,
			PatternID: cp.ID,
			Pattern:   re,
			Score:     0.8,
		}
		spans = append(spans, d.scanOne(text, p, minScore)...)
	}

	span.SetAttributes(attribute.Int("detect.span_count", len(spans)))
	return spans, nil
}

// scanOne applies one compiled pattern to the text.
func (d *PatternDetector) scanOne(text string, p *piiPattern, minScore float64) []Span {
	var out []Span
	for _, match := range p.Pattern.FindAllStringIndex(text, -1) {
		value := text[match[0]:match[1]]

		if p.ValidateLuhn && !luhnValid(stripNonDigits(value)) {
			continue
		}

		confidence := enhanceScoreWithContext(text, match[0], p.Score, p.Context)
		if confidence < minScore {
			continue
		}
		if confidence > 1.0 {
			confidence = 1.0
		}

		out = append(out, Span{
			Start:      match[0],
			End:        match[1],
			Type:       p.Type,
			PatternID:  p.PatternID,
			Value:      value,
			Confidence: confidence,
		})
	}
	return out
}

// luhnValid checks whether a digit string passes the Luhn algorithm (ISO/IEC 7812).
func luhnValid(number string) bool {
	n := len(number)
	if n < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// enhanceScoreWithContext boosts a match's base score if context words are
// found within +/- ContextWindowChars characters of the match position.
func enhanceScoreWithContext(text string, position int, baseScore float64, contextWords []string) float64 {
	if len(contextWords) == 0 {
		return baseScore
	}
	start := position - ContextWindowChars
	if start < 0 {
		start = 0
	}
	end := position + ContextWindowChars
	if end > len(text) {
		end = len(text)
	}
	window := strings.ToLower(text[start:end])

	for _, cw := range contextWords {
		if strings.Contains(window, strings.ToLower(cw)) {
			return baseScore + ContextSimilarityFactor
		}
	}
	return baseScore
}

// stripNonDigits removes all non-digit characters from s.
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
