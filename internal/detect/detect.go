// Package detect finds sensitive spans in text.
//
// Detection runs through the Detector interface so the redaction core never
// depends on how spans were produced. Three implementations ship here:
// a regex recognizer engine (PatternDetector), LLM-backed detectors for
// OpenAI and Ollama, and a CompositeDetector that layers the LLM pass on
// top of the regex pass when the policy asks for it.
package detect

import (
	"context"
	"errors"
	"time"
)

// TimeoutDetection bounds a single detector call. The orchestrator surfaces
// ErrDetectionUnavailable when this elapses rather than blocking the request.
const TimeoutDetection = 30 * time.Second

// ErrDetectionUnavailable is returned when the detection backend cannot be
// reached, times out, or rejects credentials. Callers must treat it as a
// whole-request failure: returning unredacted text silently is worse than
// refusing.
var ErrDetectionUnavailable = errors.New("detection service unavailable")

// EntityType classifies a detected sensitive value. Closed enumeration;
// custom recognizers share TypeCustom and are distinguished by pattern id.
type EntityType string

// Supported entity types.
const (
	TypePersonName EntityType = "person_name"
	TypeEmail      EntityType = "email"
	TypePhone      EntityType = "phone"
	TypeCreditCard EntityType = "credit_card"
	TypeSSN        EntityType = "ssn"
	TypeAPIKey     EntityType = "api_key"
	TypeAddress    EntityType = "address"
	TypeCustom     EntityType = "custom"
)

// typePrecedence orders types for overlap conflicts: when two spans cover the
// identical extent with identical confidence, the higher-precedence type wins.
var typePrecedence = map[EntityType]int{
	TypeCreditCard: 8,
	TypeSSN:        7,
	TypeAPIKey:     6,
	TypeEmail:      5,
	TypePhone:      4,
	TypePersonName: 3,
	TypeAddress:    2,
	TypeCustom:     1,
}

// Precedence returns the conflict-resolution rank of the type (higher wins).
func (t EntityType) Precedence() int {
	return typePrecedence[t]
}

// Valid reports whether t is one of the closed enumeration values.
func (t EntityType) Valid() bool {
	_, ok := typePrecedence[t]
	return ok
}

// Span is a contiguous character range flagged as sensitive by a detector.
// Offsets are byte offsets into the scanned text. Immutable once created.
type Span struct {
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Type       EntityType `json:"type"`
	PatternID  string     `json:"pattern_id,omitempty"` // set for TypeCustom only
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
}

// SensitivityLevel tunes how eagerly detectors flag matches.
type SensitivityLevel string

// Sensitivity levels, in increasing order of recall.
const (
	SensitivityLow    SensitivityLevel = "low"
	SensitivityMedium SensitivityLevel = "medium"
	SensitivityHigh   SensitivityLevel = "high"
)

// Reveal declares a partial-reveal rule for a custom pattern: how many
// leading and trailing characters of the raw value stay visible in the mask.
type Reveal struct {
	Prefix int `yaml:"prefix" json:"prefix"`
	Suffix int `yaml:"suffix" json:"suffix"`
}

// CustomPattern is a caller-supplied recognizer applied for a single request.
type CustomPattern struct {
	ID     string  `json:"id"`
	Regex  string  `json:"regex"`
	Reveal *Reveal `json:"reveal,omitempty"`
}

// Policy controls a detection pass. Zero value means conservative defaults
// (medium sensitivity, no aggressive recognizers, no custom patterns).
type Policy struct {
	Aggressive     bool             `json:"aggressive_mode"`
	Sensitivity    SensitivityLevel `json:"sensitivity_level"`
	CustomPatterns []CustomPattern  `json:"custom_patterns,omitempty"`
}

// Validate rejects malformed policies before any detector runs.
func (p Policy) Validate() error {
	switch p.Sensitivity {
	case "", SensitivityLow, SensitivityMedium, SensitivityHigh:
	default:
		return errors.New("sensitivity_level must be low, medium, or high")
	}
	for _, cp := range p.CustomPatterns {
		if cp.ID == "" {
			return errors.New("custom pattern id must not be empty")
		}
		if cp.Regex == "" {
			return errors.New("custom pattern regex must not be empty")
		}
	}
	return nil
}

// minScore maps the sensitivity level to the minimum confidence a match
// needs to be reported. Aggressive mode shaves a further 0.1 off.
func (p Policy) minScore() float64 {
	score := 0.5
	switch p.Sensitivity {
	case SensitivityLow:
		score = 0.65
	case SensitivityHigh:
		score = 0.35
	}
	if p.Aggressive {
		score -= 0.1
	}
	return score
}

// Detector finds sensitive spans in text.
type Detector interface {
	// Name returns the detector identifier (e.g. "pattern", "openai").
	Name() string
	// Detect scans text under the given policy. Backend failures and
	// timeouts wrap ErrDetectionUnavailable.
	Detect(ctx context.Context, text string, pol Policy) ([]Span, error)
}
