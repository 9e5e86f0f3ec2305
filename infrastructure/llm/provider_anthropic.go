package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/go-promptlab/internal/domain"
	"github.com/ahrav/go-promptlab/internal/ports"
)

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

// anthropicProvider implements ports.Provider against Anthropic's Messages
// API.
type anthropicProvider struct {
	client     anthropic.Client
	classifier ErrorClassifier
}

func newAnthropicProvider(config ClientConfig) (ports.Provider, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &anthropicProvider{
		client:     anthropic.NewClient(opts...),
		classifier: ErrorClassifier{Provider: "anthropic"},
	}, nil
}

func (p *anthropicProvider) Name() string { return "anthropic" }

// Execute performs a free-form completion, forwarding tool definitions in
// Anthropic's input_schema form.
func (p *anthropicProvider) Execute(ctx context.Context, req ports.ExecutionRequest) (*domain.ProviderResponse, error) {
	system, user, err := buildMessages(req)
	if err != nil {
		return nil, NewProviderError("anthropic", ErrorTypeBadRequest, 0, err.Error(), err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: DefaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := formatAnthropicTools(req.Tools)
		if err != nil {
			return nil, NewProviderError("anthropic", ErrorTypeBadRequest, 0, err.Error(), err)
		}
		params.Tools = tools
	}

	start := time.Now()
	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(ctx, err)
	}
	latency := time.Since(start).Milliseconds()

	var text strings.Builder
	var toolCalls []domain.ToolCall
	for _, block := range message.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(content.Text)
		case anthropic.ToolUseBlock:
			var args map[string]any
			if err := json.Unmarshal(content.Input, &args); err != nil {
				return nil, NewProviderError("anthropic", ErrorTypeUnknown, 0,
					fmt.Sprintf("decoding tool use input for %s", content.Name), err)
			}
			toolCalls = append(toolCalls, domain.ToolCall{Name: content.Name, Arguments: args})
		}
	}

	content := text.String()
	if content == "" && len(toolCalls) == 0 {
		return nil, NewProviderError("anthropic", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}

	return &domain.ProviderResponse{
		Content:      content,
		ToolCalls:    toolCalls,
		InputTokens:  tokenCount(message.Usage.InputTokens, system+user),
		OutputTokens: tokenCount(message.Usage.OutputTokens, content),
		LatencyMS:    int(latency),
		Raw:          map[string]any{"id": message.ID, "model": string(message.Model), "stop_reason": string(message.StopReason)},
	}, nil
}

// ExecuteJSON performs a completion and parses the text content as a JSON
// object. Anthropic has no native JSON mode; the prompt must instruct the
// model to emit only JSON, which the judge instruction suffix does.
func (p *anthropicProvider) ExecuteJSON(ctx context.Context, req ports.ExecutionRequest) (map[string]any, error) {
	system, user, err := buildMessages(req)
	if err != nil {
		return nil, NewProviderError("anthropic", ErrorTypeBadRequest, 0, err.Error(), err)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   DefaultMaxTokens,
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(ctx, err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if content, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(content.Text)
		}
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(text.String()), &result); err != nil {
		return nil, NewProviderError("anthropic", ErrorTypeUnknown, 0, err.Error(), ErrInvalidJSON)
	}
	return result, nil
}

func formatAnthropicTools(tools []domain.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	formatted := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		parameters := tool.Parameters
		if parameters == nil {
			parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}

		raw, err := json.Marshal(parameters)
		if err != nil {
			return nil, fmt.Errorf("serializing schema for tool %s: %w", tool.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for tool %s: %w", tool.Name, err)
		}

		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid definition for tool %s", tool.Name)
		}
		if tool.Description != "" {
			param.OfTool.Description = anthropic.String(tool.Description)
		}
		formatted = append(formatted, param)
	}
	return formatted, nil
}

func (p *anthropicProvider) wrapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return p.classifier.ClassifyContextError(ctx.Err())
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return p.classifier.ClassifyHTTPError(apiErr.StatusCode, apiErr.Error(), err)
	}
	return NewProviderError("anthropic", ErrorTypeNetwork, 0, "request failed", err)
}
