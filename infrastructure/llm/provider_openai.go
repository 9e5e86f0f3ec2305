package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/go-promptlab/internal/domain"
	"github.com/ahrav/go-promptlab/internal/ports"
)

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

// openaiProvider implements ports.Provider against the OpenAI chat
// completions API.
type openaiProvider struct {
	client     *openai.Client
	classifier ErrorClassifier
}

func newOpenAIProvider(config ClientConfig) (ports.Provider, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &openaiProvider{
		client:     openai.NewClientWithConfig(clientConfig),
		classifier: ErrorClassifier{Provider: "openai"},
	}, nil
}

func (p *openaiProvider) Name() string { return "openai" }

// Execute performs a free-form completion, forwarding tool definitions as
// OpenAI function tools.
func (p *openaiProvider) Execute(ctx context.Context, req ports.ExecutionRequest) (*domain.ProviderResponse, error) {
	system, user, err := buildMessages(req)
	if err != nil {
		return nil, NewProviderError("openai", ErrorTypeBadRequest, 0, err.Error(), err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: chatMessages(system, user),
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = formatOpenAITools(req.Tools)
		chatReq.ToolChoice = "auto"
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(ctx, err)
	}
	latency := time.Since(start).Milliseconds()

	if len(resp.Choices) == 0 {
		return nil, NewProviderError("openai", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}
	message := resp.Choices[0].Message

	toolCalls := make([]domain.ToolCall, 0, len(message.ToolCalls))
	for _, tc := range message.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, NewProviderError("openai", ErrorTypeUnknown, 0,
				fmt.Sprintf("decoding tool call arguments for %s", tc.Function.Name), err)
		}
		toolCalls = append(toolCalls, domain.ToolCall{Name: tc.Function.Name, Arguments: args})
	}

	return &domain.ProviderResponse{
		Content:      message.Content,
		ToolCalls:    toolCalls,
		InputTokens:  tokenCount(int64(resp.Usage.PromptTokens), system+user),
		OutputTokens: tokenCount(int64(resp.Usage.CompletionTokens), message.Content),
		LatencyMS:    int(latency),
		Raw:          map[string]any{"id": resp.ID, "model": resp.Model, "finish_reason": string(resp.Choices[0].FinishReason)},
	}, nil
}

// ExecuteJSON performs a completion in OpenAI's native JSON mode and
// parses the resulting object.
func (p *openaiProvider) ExecuteJSON(ctx context.Context, req ports.ExecutionRequest) (map[string]any, error) {
	system, user, err := buildMessages(req)
	if err != nil {
		return nil, NewProviderError("openai", ErrorTypeBadRequest, 0, err.Error(), err)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    chatMessages(system, user),
		Temperature: float32(req.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, p.wrapError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewProviderError("openai", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		return nil, NewProviderError("openai", ErrorTypeUnknown, 0, err.Error(), ErrInvalidJSON)
	}
	return result, nil
}

func chatMessages(system, user string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})
}

func formatOpenAITools(tools []domain.ToolDefinition) []openai.Tool {
	formatted := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		parameters := tool.Parameters
		if parameters == nil {
			parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		formatted = append(formatted, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  parameters,
			},
		})
	}
	return formatted
}

func (p *openaiProvider) wrapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return p.classifier.ClassifyContextError(ctx.Err())
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return p.classifier.ClassifyHTTPError(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	return NewProviderError("openai", ErrorTypeNetwork, 0, "request failed", err)
}
