package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-promptlab/internal/ports"
)

func TestBuildMessages_PromptOnly(t *testing.T) {
	system, user, err := buildMessages(ports.ExecutionRequest{
		Prompt: "Summarize {{.topic}} in one line.",
		Input:  map[string]any{"topic": "goroutines"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Summarize goroutines in one line.", system)
	assert.Equal(t, `{"topic":"goroutines"}`, user)
}

func TestBuildMessages_EmptyInput(t *testing.T) {
	system, user, err := buildMessages(ports.ExecutionRequest{
		Prompt: "Write a haiku about concurrency.",
	})
	require.NoError(t, err)

	assert.Equal(t, "Write a haiku about concurrency.", system)
	assert.Equal(t, "{}", user)
}

func TestBuildMessages_WithSystemTemplate(t *testing.T) {
	system, user, err := buildMessages(ports.ExecutionRequest{
		Prompt:       "Summarize {{.topic}}.",
		SystemPrompt: "You are a {{.role}}.",
		Input:        map[string]any{"topic": "channels", "role": "reviewer"},
	})
	require.NoError(t, err)

	assert.Equal(t, "You are a reviewer.", system)
	assert.Equal(t, "Summarize channels.", user)
}

func TestBuildMessages_RenderErrors(t *testing.T) {
	tests := []struct {
		name string
		req  ports.ExecutionRequest
	}{
		{
			name: "undefined prompt variable",
			req: ports.ExecutionRequest{
				Prompt: "Summarize {{.missing}}.",
				Input:  map[string]any{"topic": "x"},
			},
		},
		{
			name: "undefined system variable",
			req: ports.ExecutionRequest{
				Prompt:       "Summarize {{.topic}}.",
				SystemPrompt: "You are {{.missing}}.",
				Input:        map[string]any{"topic": "x"},
			},
		},
		{
			name: "malformed template",
			req: ports.ExecutionRequest{
				Prompt: "Summarize {{.topic",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := buildMessages(tt.req)
			assert.Error(t, err)
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abc"))
	assert.Equal(t, 1, estimateTokens("abcd"))
	assert.Equal(t, 3, estimateTokens("a 10 char."))
}

func TestTokenCount(t *testing.T) {
	assert.Equal(t, 42, tokenCount(42, "ignored when reported"))
	assert.Equal(t, 2, tokenCount(0, "eight ch"))
}
