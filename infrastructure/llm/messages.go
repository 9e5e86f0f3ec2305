package llm

import (
	"encoding/json"
	"fmt"

	"github.com/ahrav/go-promptlab/internal/ports"
	"github.com/ahrav/go-promptlab/internal/templates"
)

// buildMessages renders the request's templates and composes the system
// and user message contents shared by every provider.
//
// Without a system template the rendered prompt carries the instructions,
// so it becomes the system message and the raw input payload (as JSON)
// becomes the user message. With a system template, the system template
// takes the system slot and the rendered prompt becomes the user message.
func buildMessages(req ports.ExecutionRequest) (system, user string, err error) {
	renderedPrompt, err := templates.Render(req.Prompt, req.Input)
	if err != nil {
		return "", "", fmt.Errorf("rendering prompt: %w", err)
	}

	if req.SystemPrompt == "" {
		user = "{}"
		if len(req.Input) > 0 {
			payload, err := json.Marshal(req.Input)
			if err != nil {
				return "", "", fmt.Errorf("serializing input payload: %w", err)
			}
			user = string(payload)
		}
		return renderedPrompt, user, nil
	}

	renderedSystem, err := templates.Render(req.SystemPrompt, req.Input)
	if err != nil {
		return "", "", fmt.Errorf("rendering system prompt: %w", err)
	}
	return renderedSystem, renderedPrompt, nil
}

// estimateTokens approximates a token count at four characters per token,
// used when a provider response omits usage counts.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// tokenCount prefers the provider-reported count, falling back to an
// estimate over the given text.
func tokenCount(reported int64, text string) int {
	if reported > 0 {
		return int(reported)
	}
	return estimateTokens(text)
}
