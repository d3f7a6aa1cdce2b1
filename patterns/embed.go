// Package patterns provides embedded default recognizer definitions.
// The YAML file uses a Presidio-compatible recognizer format with
// SafeLayer extensions (validate_luhn, aggressive_only, pattern_id, reveal).
package patterns

import _ "embed"

//go:embed pii_default.yaml
var piiDefaultYAML []byte

// PIIDefaultYAML returns the embedded default sensitive-data recognizers.
func PIIDefaultYAML() []byte { return piiDefaultYAML }
