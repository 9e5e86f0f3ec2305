package application

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ahrav/go-promptlab/internal/domain"
	"github.com/ahrav/go-promptlab/internal/ports"
)

// Evaluator scores candidate responses with one or more LLM judges.
// It is stateless across invocations; judge calls are never cached or
// deduplicated, so judging the same response twice issues two fresh calls.
type Evaluator struct {
	providers ports.ProviderFactory
	metrics   ports.MetricsCollector
	logger    *log.Logger
}

// NewEvaluator builds an Evaluator. metrics may be nil.
func NewEvaluator(providers ports.ProviderFactory, metrics ports.MetricsCollector, logger *log.Logger) *Evaluator {
	if logger == nil {
		logger = log.Default()
	}
	return &Evaluator{providers: providers, metrics: metrics, logger: logger}
}

// Evaluate scores a provider response against the judge configuration.
// renderedPrompt and renderedSystem are the fully rendered templates the
// response was produced from; the judge never sees unrendered templates.
//
// With a single configured judge model the result is that judge's verdict
// verbatim. With several, the integer scores are aggregated per the
// configured method and the reasoning is concatenated one block per judge
// in configuration order.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	judgeConfig domain.JudgeConfig,
	renderedPrompt, renderedSystem string,
	response *domain.ProviderResponse,
) (*domain.JudgeResult, error) {
	toolCalls := make([]map[string]any, 0, len(response.ToolCalls))
	for _, tc := range response.ToolCalls {
		toolCalls = append(toolCalls, map[string]any{
			"name":      tc.Name,
			"arguments": tc.Arguments,
		})
	}

	judgeInput := map[string]any{
		"prompt":        renderedPrompt,
		"system_prompt": renderedSystem,
		"response":      response.Content,
		"tool_calls":    toolCalls,
	}

	judgePrompt := buildJudgePrompt(
		judgeConfig.Content,
		judgeConfig.ScoreMin, judgeConfig.ScoreMax,
		judgeConfig.ChainOfThought,
	)

	individuals := make([]domain.IndividualJudgeResult, 0, len(judgeConfig.JudgeModels()))
	for _, judgeModelID := range judgeConfig.JudgeModels() {
		individual, err := e.evaluateOne(ctx, judgeModelID, judgePrompt, judgeInput, judgeConfig)
		if err != nil {
			return nil, err
		}
		individuals = append(individuals, *individual)

		if e.metrics != nil {
			e.metrics.RecordJudge(judgeModelID, individual.Score)
		}
	}

	if len(individuals) == 1 {
		only := individuals[0]
		return &domain.JudgeResult{
			Score:             only.Score,
			Reasoning:         only.Reasoning,
			Raw:               only.Raw,
			IndividualResults: individuals,
		}, nil
	}

	scores := make([]int, len(individuals))
	for i, ind := range individuals {
		scores[i] = ind.Score
	}

	finalScore := e.aggregateScores(scores, judgeConfig.Aggregation)

	blocks := make([]string, len(individuals))
	judgeScores := make([]map[string]any, len(individuals))
	for i, ind := range individuals {
		blocks[i] = fmt.Sprintf("[%s] score=%d\n%s", ind.Model, ind.Score, ind.Reasoning)
		judgeScores[i] = map[string]any{"model": ind.Model, "score": ind.Score}
	}

	return &domain.JudgeResult{
		Score:     finalScore,
		Reasoning: strings.Join(blocks, "\n\n"),
		Raw: map[string]any{
			"aggregation": judgeConfig.Aggregation,
			"judges":      judgeScores,
		},
		IndividualResults: individuals,
	}, nil
}

// evaluateOne runs a single judge model and validates its verdict.
func (e *Evaluator) evaluateOne(
	ctx context.Context,
	judgeModelID, judgePrompt string,
	judgeInput map[string]any,
	judgeConfig domain.JudgeConfig,
) (*domain.IndividualJudgeResult, error) {
	providerName, model, err := domain.ParseModelID(judgeModelID)
	if err != nil {
		return nil, err
	}

	provider, err := e.providers(providerName)
	if err != nil {
		return nil, fmt.Errorf("judge %s: %w", judgeModelID, err)
	}

	result, err := provider.ExecuteJSON(ctx, ports.ExecutionRequest{
		Model:       model,
		Prompt:      judgePrompt,
		Input:       judgeInput,
		Temperature: judgeConfig.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: judge %s evaluation failed: %v",
			domain.ErrJudgeScore, judgeModelID, err)
	}

	score, err := extractScore(result, judgeConfig.ScoreMin, judgeConfig.ScoreMax)
	if err != nil {
		return nil, fmt.Errorf("judge %s: %w", judgeModelID, err)
	}

	reasoning, _ := result["reasoning"].(string)

	return &domain.IndividualJudgeResult{
		Model:     judgeModelID,
		Score:     score,
		Reasoning: reasoning,
		Raw:       result,
	}, nil
}

// extractScore validates the score field of a parsed judge verdict.
// The field must be present, integral, and within [scoreMin, scoreMax].
// JSON numbers arrive as float64; a fractional value is rejected rather
// than truncated.
func extractScore(result map[string]any, scoreMin, scoreMax int) (int, error) {
	raw, ok := result["score"]
	if !ok {
		return 0, fmt.Errorf("%w: response missing \"score\" field: %v", domain.ErrJudgeScore, result)
	}

	var score int
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: score %v is not an integer", domain.ErrJudgeScore, v)
		}
		score = int(v)
	case int:
		score = v
	default:
		return 0, fmt.Errorf("%w: score %v is not an integer", domain.ErrJudgeScore, raw)
	}

	if score < scoreMin || score > scoreMax {
		return 0, fmt.Errorf("%w: score %d outside range [%d, %d]",
			domain.ErrJudgeScore, score, scoreMin, scoreMax)
	}
	return score, nil
}

// aggregateScores combines per-judge integer scores into a single final
// score. Rounding is math.Round, half away from zero, so a mean of 7.5
// becomes 8 and a mean of -7.5 would become -8.
func (e *Evaluator) aggregateScores(scores []int, method string) int {
	switch method {
	case domain.AggregationMedian:
		sorted := make([]int, len(scores))
		copy(sorted, scores)
		sort.Ints(sorted)

		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return sorted[mid]
		}
		return int(math.Round(float64(sorted[mid-1]+sorted[mid]) / 2))

	case domain.AggregationMean:
		// Fall through to the mean below.

	default:
		e.logger.Warn("unknown aggregation method, falling back to mean", "method", method)
	}

	sum := 0
	for _, s := range scores {
		sum += s
	}
	return int(math.Round(float64(sum) / float64(len(scores))))
}
