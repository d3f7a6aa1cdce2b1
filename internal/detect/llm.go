package detect

import (
	"encoding/json"
	"strings"
)

// llmConfidence is assigned to LLM-reported values. The model does not emit
// calibrated scores, so a single value above every sensitivity threshold is
// used and the normalizer's confidence tie-breaks still behave sensibly.
const llmConfidence = 0.85

const detectSystemPrompt = `You are a sensitive-data detector. Find all sensitive values in the user's text.
Respond with ONLY a JSON array, no prose. Each element: {"type": "<TYPE>", "value": "<exact substring>"}.
Valid types: PERSON_NAME, EMAIL, PHONE, CREDIT_CARD, SSN, API_KEY, ADDRESS.
The value MUST be copied verbatim from the text. Return [] if nothing is sensitive.`

// buildDetectPrompt renders the user message for an LLM detection pass.
// Aggressive mode asks the model to include borderline values.
func buildDetectPrompt(text string, pol Policy) string {
	var b strings.Builder
	if pol.Aggressive {
		b.WriteString("Be aggressive: include borderline names, partial addresses, and anything that could identify a person.\n\n")
	}
	b.WriteString("Text:\n")
	b.WriteString(text)
	return b.String()
}

// llmFinding is one element of the model's JSON output.
type llmFinding struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// parseDetection converts the model's raw output into spans anchored in the
// original text. Values the model invented (not present verbatim) are
// dropped; every verbatim occurrence of a reported value becomes a span.
func parseDetection(text, raw string) ([]Span, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var findings []llmFinding
	if err := json.Unmarshal([]byte(raw), &findings); err != nil {
		return nil, err
	}

	var spans []Span
	for _, f := range findings {
		typ := entityToType(f.Type)
		if !typ.Valid() || typ == TypeCustom || f.Value == "" {
			continue
		}
		for _, pos := range allOccurrences(text, f.Value) {
			spans = append(spans, Span{
				Start:      pos,
				End:        pos + len(f.Value),
				Type:       typ,
				Value:      f.Value,
				Confidence: llmConfidence,
			})
		}
	}
	return spans, nil
}

// allOccurrences returns the byte offsets of every non-overlapping
// occurrence of needle in text.
func allOccurrences(text, needle string) []int {
	var out []int
	from := 0
	for {
		idx := strings.Index(text[from:], needle)
		if idx < 0 {
			return out
		}
		out = append(out, from+idx)
		from += idx + len(needle)
	}
}
