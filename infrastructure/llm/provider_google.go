package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/go-promptlab/internal/domain"
	"github.com/ahrav/go-promptlab/internal/ports"
)

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements ports.Provider against Google's Gemini API.
// Tool definitions are not supported; experiments with a tools file must
// use the OpenAI or Anthropic providers for their model list.
type googleProvider struct {
	client     *genai.Client
	classifier ErrorClassifier
}

func newGoogleProvider(config ClientConfig) (ports.Provider, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	return &googleProvider{
		client:     client,
		classifier: ErrorClassifier{Provider: "google"},
	}, nil
}

func (p *googleProvider) Name() string { return "google" }

// Execute performs a free-form completion. Gemini has no separate system
// role in this API shape, so the system content is prepended to the user
// turn.
func (p *googleProvider) Execute(ctx context.Context, req ports.ExecutionRequest) (*domain.ProviderResponse, error) {
	if len(req.Tools) > 0 {
		return nil, NewProviderError("google", ErrorTypeBadRequest, 0,
			"use an openai or anthropic model for tool experiments", ErrToolsUnsupported)
	}

	system, user, err := buildMessages(req)
	if err != nil {
		return nil, NewProviderError("google", ErrorTypeBadRequest, 0, err.Error(), err)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(combinePromptTurns(system, user), genai.RoleUser),
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, &genai.GenerateContentConfig{})
	if err != nil {
		return nil, p.wrapError(ctx, err)
	}
	latency := time.Since(start).Milliseconds()

	content := resp.Text()
	if content == "" {
		return nil, NewProviderError("google", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}

	inputTokens, outputTokens := googleTokenCounts(resp.UsageMetadata, system+user, content)

	return &domain.ProviderResponse{
		Content:      content,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		LatencyMS:    int(latency),
		Raw:          map[string]any{"model": req.Model},
	}, nil
}

// ExecuteJSON performs a completion constrained to JSON output via the
// response MIME type and parses the result.
func (p *googleProvider) ExecuteJSON(ctx context.Context, req ports.ExecutionRequest) (map[string]any, error) {
	system, user, err := buildMessages(req)
	if err != nil {
		return nil, NewProviderError("google", ErrorTypeBadRequest, 0, err.Error(), err)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(combinePromptTurns(system, user), genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(req.Temperature)),
		ResponseMIMEType: "application/json",
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, p.wrapError(ctx, err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(resp.Text()), &result); err != nil {
		return nil, NewProviderError("google", ErrorTypeUnknown, 0, err.Error(), ErrInvalidJSON)
	}
	return result, nil
}

// combinePromptTurns folds the system content into the single user turn.
func combinePromptTurns(system, user string) string {
	if system == "" {
		return user
	}
	return "System: " + system + "\n\nUser: " + user
}

func googleTokenCounts(usage *genai.GenerateContentResponseUsageMetadata, input, output string) (int, int) {
	inputTokens := estimateTokens(input)
	outputTokens := estimateTokens(output)
	if usage != nil {
		if usage.PromptTokenCount > 0 {
			inputTokens = int(usage.PromptTokenCount)
		}
		if usage.CandidatesTokenCount > 0 {
			outputTokens = int(usage.CandidatesTokenCount)
		}
	}
	return inputTokens, outputTokens
}

func (p *googleProvider) wrapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return p.classifier.ClassifyContextError(ctx.Err())
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}
		return p.classifier.ClassifyHTTPError(apiErr.Code, message, err)
	}
	return NewProviderError("google", ErrorTypeNetwork, 0, "request failed", err)
}
