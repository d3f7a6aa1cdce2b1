package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDetection(t *testing.T) {
	text := "Alice sent 555-123-4567 to Alice"

	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{
			name: "plain array",
			raw:  `[{"type": "PERSON_NAME", "value": "Alice"}, {"type": "PHONE", "value": "555-123-4567"}]`,
			want: 3, // Alice twice plus the phone number
		},
		{
			name: "fenced json",
			raw:  "```json\n[{\"type\": \"PERSON_NAME\", \"value\": \"Alice\"}]\n```",
			want: 2,
		},
		{
			name: "empty array",
			raw:  `[]`,
			want: 0,
		},
		{
			name: "invented value dropped",
			raw:  `[{"type": "PERSON_NAME", "value": "Bob"}]`,
			want: 0,
		},
		{
			name: "unknown type dropped",
			raw:  `[{"type": "PASSPORT", "value": "Alice"}]`,
			want: 0,
		},
		{
			name: "custom type not accepted from model",
			raw:  `[{"type": "CUSTOM", "value": "Alice"}]`,
			want: 0,
		},
		{
			name:    "prose instead of json",
			raw:     `I found a name: Alice`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans, err := parseDetection(text, tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, spans, tt.want)
			for _, s := range spans {
				assert.Equal(t, s.Value, text[s.Start:s.End])
				assert.InDelta(t, llmConfidence, s.Confidence, 1e-9)
			}
		})
	}
}

func TestAllOccurrences(t *testing.T) {
	assert.Equal(t, []int{0, 6}, allOccurrences("ab cd ab", "ab"))
	assert.Empty(t, allOccurrences("ab cd ab", "xy"))
	// Non-overlapping: "aaa" contains "aa" once, not twice.
	assert.Equal(t, []int{0}, allOccurrences("aaa", "aa"))
}

func TestBuildDetectPrompt(t *testing.T) {
	plain := buildDetectPrompt("hello", Policy{})
	assert.Contains(t, plain, "hello")
	assert.NotContains(t, plain, "aggressive")

	agg := buildDetectPrompt("hello", Policy{Aggressive: true})
	assert.Contains(t, agg, "aggressive")
}
