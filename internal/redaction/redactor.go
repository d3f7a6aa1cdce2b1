// Package redaction implements the entity-consistent redaction engine: span
// normalization, identity resolution against the session store, per-type
// masking, and text reconstruction. The same real-world value always gets
// the same mask for the lifetime of a session.
package redaction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
	slotel "github.com/S-feLayer/SafeLayer-Chat/internal/otel"
	"github.com/S-feLayer/SafeLayer-Chat/internal/session"
)

var tracer = slotel.Tracer("github.com/S-feLayer/SafeLayer-Chat/internal/redaction")

// Validation failures. All are rejected before the detector is invoked and
// are never retried.
var (
	ErrEmptyInput    = errors.New("input text is empty")
	ErrInputTooLarge = errors.New("input text exceeds the size limit")
	ErrInvalidPolicy = errors.New("invalid redaction policy")
)

// DefaultMaxInputBytes caps a single redaction call's input.
const DefaultMaxInputBytes = 512 * 1024

// Result is the outcome of one redaction call. It carries no raw values and
// is safe to serialize.
type Result struct {
	RedactedText  string                  `json:"redacted_text"`
	DetectedTypes []detect.EntityType     `json:"detected_types"`
	EntitySummary []session.EntitySummary `json:"entity_summary"`
	MasksApplied  int                     `json:"masks_applied"`
	Duration      time.Duration           `json:"-"`
	SessionID     string                  `json:"session_id"`
}

// Redactor is the orchestrator: it drives detection, normalization, entity
// resolution, and reconstruction for each request.
type Redactor struct {
	detector      detect.Detector
	store         *session.Store
	resolver      Resolver
	maxInputBytes int
	reveals       map[string]detect.Reveal
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithMaxInputBytes overrides the input size cap.
func WithMaxInputBytes(n int) Option {
	return func(r *Redactor) { r.maxInputBytes = n }
}

// WithFuzzyDistance overrides the person-name edit-distance threshold.
func WithFuzzyDistance(n int) Option {
	return func(r *Redactor) { r.resolver.FuzzyDistance = n }
}

// WithRevealRules installs partial-reveal rules for configured custom
// patterns, keyed by pattern id. Per-request custom patterns carry their own
// rules and take precedence.
func WithRevealRules(rules map[string]detect.Reveal) Option {
	return func(r *Redactor) { r.reveals = rules }
}

// NewRedactor builds the orchestrator around a detector and a session store.
func NewRedactor(detector detect.Detector, store *session.Store, opts ...Option) *Redactor {
	r := &Redactor{
		detector:      detector,
		store:         store,
		resolver:      Resolver{FuzzyDistance: 1},
		maxInputBytes: DefaultMaxInputBytes,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Redact runs the full pipeline for one text. An empty sessionID starts a
// fresh session whose id is returned in the result. Detector failure fails
// the whole call; partially redacted text is never returned as success.
func (r *Redactor) Redact(ctx context.Context, text string, pol detect.Policy, sessionID string) (*Result, error) {
	start := time.Now()

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if len(text) > r.maxInputBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrInputTooLarge, len(text), r.maxInputBytes)
	}
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "redact")
	defer span.End()
	span.SetAttributes(slotel.RedactSessionID.String(sessionID))

	spans, err := r.detector.Detect(ctx, text, pol)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	normalized := Normalize(len(text), spans)
	span.SetAttributes(slotel.RedactSpanCount.Int(len(normalized)))

	masks := make([]string, len(normalized))
	var summary []session.EntitySummary
	err = r.store.WithSession(sessionID, func(s *session.Session) error {
		for i, sp := range normalized {
			if !sp.Type.Valid() || sp.Value != text[sp.Start:sp.End] {
				log.Warn().
					Str("type", string(sp.Type)).
					Int("start", sp.Start).
					Int("end", sp.End).
					Msg("span failed internal consistency check, using placeholder")
				masks[i] = placeholderMask
				continue
			}
			e := r.resolver.Resolve(s, sp, r.revealFor(sp, pol))
			masks[i] = e.DisplayMask
		}
		summary = s.Summary()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolving entities: %w", err)
	}
	span.SetAttributes(slotel.RedactEntityCount.Int(len(summary)))

	return &Result{
		RedactedText:  reconstruct(text, normalized, masks),
		DetectedTypes: uniqueTypes(normalized),
		EntitySummary: summary,
		MasksApplied:  len(normalized),
		Duration:      time.Since(start),
		SessionID:     sessionID,
	}, nil
}

// revealFor finds the partial-reveal rule for a custom span. A per-request
// pattern's rule wins over the configured recognizer's.
func (r *Redactor) revealFor(sp detect.Span, pol detect.Policy) *detect.Reveal {
	if sp.Type != detect.TypeCustom {
		return nil
	}
	for _, cp := range pol.CustomPatterns {
		if cp.ID == sp.PatternID {
			return cp.Reveal
		}
	}
	if rv, ok := r.reveals[sp.PatternID]; ok {
		return &rv
	}
	return nil
}

// reconstruct replaces each span with its mask in a single right-to-left
// pass so earlier replacements never shift later spans' offsets.
func reconstruct(text string, spans []detect.Span, masks []string) string {
	out := text
	for i := len(spans) - 1; i >= 0; i-- {
		out = out[:spans[i].Start] + masks[i] + out[spans[i].End:]
	}
	return out
}

func uniqueTypes(spans []detect.Span) []detect.EntityType {
	seen := make(map[detect.EntityType]struct{})
	var out []detect.EntityType
	for _, s := range spans {
		if _, ok := seen[s.Type]; ok {
			continue
		}
		seen[s.Type] = struct{}{}
		out = append(out, s.Type)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
