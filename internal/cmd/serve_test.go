package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{
			name: "empty",
			raw:  "",
			want: nil,
		},
		{
			name: "single key with caller",
			raw:  "sk-abc123:billing",
			want: map[string]string{"sk-abc123": "billing"},
		},
		{
			name: "multiple entries",
			raw:  "key1:alpha,key2:beta",
			want: map[string]string{"key1": "alpha", "key2": "beta"},
		},
		{
			name: "bare keys get generated caller names",
			raw:  "key1,key2",
			want: map[string]string{"key1": "caller-1", "key2": "caller-2"},
		},
		{
			name: "mixed with whitespace",
			raw:  " key1:alpha , key2 ",
			want: map[string]string{"key1": "alpha", "key2": "caller-1"},
		},
		{
			name: "empty entries skipped",
			raw:  ",,key1:alpha,",
			want: map[string]string{"key1": "alpha"},
		},
		{
			name: "entry with empty key dropped",
			raw:  ":alpha",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAPIKeys(tt.raw))
		})
	}
}
