package detect

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// RecognizerFile is the top-level YAML structure for a recognizer config file.
// Mirrors Presidio's recognizer registry format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig is a single recognizer definition with SafeLayer
// extensions (validate_luhn, aggressive_only, pattern_id, reveal).
type RecognizerConfig struct {
	Name            string          `yaml:"name" json:"name"`
	SupportedEntity string          `yaml:"supported_entity" json:"supported_entity"`
	Enabled         *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns        []PatternConfig `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Context         []string        `yaml:"context,omitempty" json:"context,omitempty"`
	ValidateLuhn    bool            `yaml:"validate_luhn,omitempty" json:"validate_luhn,omitempty"`
	AggressiveOnly  bool            `yaml:"aggressive_only,omitempty" json:"aggressive_only,omitempty"`
	// For supported_entity CUSTOM only
	PatternID string  `yaml:"pattern_id,omitempty" json:"pattern_id,omitempty"`
	Reveal    *Reveal `yaml:"reveal,omitempty" json:"reveal,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
}

// isEnabled returns true if the recognizer is enabled (defaults to true when nil).
func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// ParseRecognizerFile parses recognizer YAML bytes into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing operator pattern file as a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// MergeRecognizers layers recognizer lists: embedded defaults first, then
// operator overrides. Later layers override earlier ones by matching on the
// recognizer Name field; new recognizers are appended.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, rc)
			}
		}
	}

	return merged
}

// piiPattern is a compiled, ready-to-use recognizer pattern.
type piiPattern struct {
	Name           string
	Type           EntityType
	PatternID      string
	Pattern        *regexp.Regexp
	Score          float64
	Context        []string
	ValidateLuhn   bool
	AggressiveOnly bool
}

// compilePatterns converts recognizer configs into the compiled slice used
// at scan time. Disabled recognizers are skipped; each regex in a recognizer
// produces one entry. Reveal rules for CUSTOM recognizers are collected into
// the returned map keyed by pattern id.
func compilePatterns(recognizers []RecognizerConfig) ([]piiPattern, map[string]Reveal, error) {
	var patterns []piiPattern
	reveals := make(map[string]Reveal)

	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		typ := entityToType(rec.SupportedEntity)
		if !typ.Valid() {
			return nil, nil, fmt.Errorf("recognizer %q: unknown entity %q", rec.Name, rec.SupportedEntity)
		}
		if typ == TypeCustom && rec.PatternID == "" {
			return nil, nil, fmt.Errorf("recognizer %q: CUSTOM requires pattern_id", rec.Name)
		}
		if typ == TypeCustom && rec.Reveal != nil {
			reveals[rec.PatternID] = *rec.Reveal
		}
		for _, p := range rec.Patterns {
			compiled, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			patterns = append(patterns, piiPattern{
				Name:           rec.Name,
				Type:           typ,
				PatternID:      rec.PatternID,
				Pattern:        compiled,
				Score:          p.Score,
				Context:        rec.Context,
				ValidateLuhn:   rec.ValidateLuhn,
				AggressiveOnly: rec.AggressiveOnly,
			})
		}
	}

	return patterns, reveals, nil
}

// entityTypeMap converts the SCREAMING_SNAKE entity names used in recognizer
// files to the lower_snake_case types used internally.
var entityTypeMap = map[string]EntityType{
	"PERSON_NAME": TypePersonName,
	"EMAIL":       TypeEmail,
	"PHONE":       TypePhone,
	"CREDIT_CARD": TypeCreditCard,
	"SSN":         TypeSSN,
	"API_KEY":     TypeAPIKey,
	"ADDRESS":     TypeAddress,
	"CUSTOM":      TypeCustom,
}

func entityToType(entity string) EntityType {
	return entityTypeMap[entity]
}
