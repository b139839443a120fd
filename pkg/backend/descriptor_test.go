package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyPropagate, p)

	p, err = ParseFailurePolicy(" Substitute ")
	require.NoError(t, err)
	assert.Equal(t, PolicySubstitute, p)

	_, err = ParseFailurePolicy("ignore")
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       Descriptor
		wantErr bool
	}{
		{"valid", Descriptor{Name: "claude", Provider: "anthropic", Model: "claude-3-7-sonnet-latest"}, false},
		{"alias provider", Descriptor{Name: "gemini", Provider: "google_genai", Model: "gemini-2.5-flash"}, false},
		{"missing name", Descriptor{Provider: "openai", Model: "o4-mini"}, true},
		{"bad name", Descriptor{Name: "g p t", Provider: "openai", Model: "o4-mini"}, true},
		{"unknown provider", Descriptor{Name: "x", Provider: "cohere", Model: "m"}, true},
		{"missing model", Descriptor{Name: "x", Provider: "openai"}, true},
		{"bad policy", Descriptor{Name: "x", Provider: "openai", Model: "m", FailurePolicy: "retry"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDescriptor)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestToolName(t *testing.T) {
	assert.Equal(t, "ask_gemini", Descriptor{Name: "gemini"}.ToolName())
}
