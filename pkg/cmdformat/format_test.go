package cmdformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneline(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    string
	}{
		{
			name:    "collapses continuations",
			command: "go build \\\n  ./...",
			want:    "go build ./...",
		},
		{
			name:    "normalizes spacing",
			command: "echo   hello    world",
			want:    "echo hello world",
		},
		{
			name:    "unparseable input returned trimmed",
			command: "  if then fi  ",
			want:    "if then fi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Oneline(tt.command))
		})
	}
}

func TestPretty(t *testing.T) {
	got, err := Pretty("if true; then echo ok; fi")
	require.NoError(t, err)
	assert.Contains(t, got, "if true; then")

	_, err = Pretty("if then fi")
	assert.Error(t, err)
}
