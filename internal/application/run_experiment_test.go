package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-promptlab/internal/domain"
	"github.com/ahrav/go-promptlab/internal/ports"
	"github.com/ahrav/go-promptlab/internal/testutils"
)

func intPtr(n int) *int { return &n }

// testVariant builds a loadable variant with the given inputs.
func testVariant(path string, inputs ...domain.InputCase) *domain.VariantConfig {
	if len(inputs) == 0 {
		inputs = []domain.InputCase{{ID: "default", Data: map[string]any{}}}
	}
	return &domain.VariantConfig{
		Path: path,
		Experiment: domain.ExperimentConfig{
			Name:       "summarization",
			Models:     []string{"mock:model-a", "mock:model-b"},
			Hypothesis: "shorter prompts score higher",
			Runs:       2,
		},
		Prompt: domain.PromptConfig{Content: "Summarize {{.topic}}."},
		Judge: domain.JudgeConfig{
			Content:     "Rate the summary.",
			Model:       "mock:judge",
			Aggregation: domain.AggregationMean,
			ScoreMin:    1,
			ScoreMax:    10,
		},
		Inputs: inputs,
	}
}

func newEngine(t *testing.T, cfg *domain.VariantConfig, provider ports.Provider) (*RunExperiment, *testutils.MemoryRepository, *testutils.MemoryCache) {
	t.Helper()

	loader := &testutils.StubLoader{
		Variants:   map[string]*domain.VariantConfig{cfg.Path: cfg},
		Discovered: map[string][]string{"/exp": {cfg.Path}},
	}
	repo := testutils.NewMemoryRepository()
	cache := testutils.NewMemoryCache()

	engine := NewRunExperiment(loader, repo, cache, testutils.FactoryFor(provider, "mock"))
	return engine, repo, cache
}

func TestCountTasks(t *testing.T) {
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "a", Data: map[string]any{"topic": "go"}},
		domain.InputCase{ID: "b", Data: map[string]any{"topic": "rust"}, Runs: intPtr(5)},
	)
	engine, _, _ := newEngine(t, cfg, &testutils.MockProvider{})

	// Case a: 2 runs x 2 models; case b: 5 runs x 2 models.
	count, err := engine.CountTasks("/exp/v1", nil)
	require.NoError(t, err)
	assert.Equal(t, 14, count)

	// A model override narrows the multiplier.
	count, err = engine.CountTasks("/exp/v1", []string{"mock:model-a"})
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestCountExperimentTasks(t *testing.T) {
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "a", Data: map[string]any{"topic": "go"}})
	engine, _, _ := newEngine(t, cfg, &testutils.MockProvider{})

	count, err := engine.CountExperimentTasks("/exp", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestRunVariant_ExecutesFullCartesianSet(t *testing.T) {
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "a", Data: map[string]any{"topic": "go"}},
		domain.InputCase{ID: "b", Data: map[string]any{"topic": "rust"}},
	)
	provider := &testutils.MockProvider{}
	engine, repo, _ := newEngine(t, cfg, provider)

	var progress atomic.Int32
	summary, err := engine.RunVariant(context.Background(), "/exp/v1", RunOptions{
		OnProgress: func() { progress.Add(1) },
	})
	require.NoError(t, err)

	// 2 inputs x 2 runs x 2 models.
	assert.Len(t, summary.Results, 8)
	assert.Equal(t, int32(8), progress.Load())
	assert.Equal(t, 8, provider.ExecuteCallCount())

	assert.Equal(t, "summarization", summary.Experiment)
	assert.Equal(t, "v1", summary.Variant)
	assert.Equal(t, 2, summary.InputsCount)
	assert.Equal(t, 2, summary.RunsPerInput)
	assert.Equal(t, "shorter prompts score higher", summary.Hypothesis)
	assert.NotEmpty(t, summary.ExecutionID)
	assert.NotEmpty(t, summary.Timestamp)

	// Stats cover every (input, model) group.
	assert.Len(t, summary.Stats, 4)

	// The summary was persisted before returning.
	saved := repo.Saved("/exp/v1")
	require.Len(t, saved, 1)
	assert.Equal(t, summary, saved[0])
}

func TestRunVariant_CachingOnlyForSingleRunCases(t *testing.T) {
	// Case "multi" repeats 3 times and must never be cached; case "single"
	// runs once and is cacheable.
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "single", Data: map[string]any{"topic": "go"}, Runs: intPtr(1)},
		domain.InputCase{ID: "multi", Data: map[string]any{"topic": "rust"}, Runs: intPtr(3)},
	)
	cfg.Experiment.Models = []string{"mock:model-a"}
	provider := &testutils.MockProvider{}
	engine, _, cache := newEngine(t, cfg, provider)

	first, err := engine.RunVariant(context.Background(), "/exp/v1", RunOptions{})
	require.NoError(t, err)

	// First run: everything is a live call, only the single-run case was
	// written to the cache.
	assert.Equal(t, 4, provider.ExecuteCallCount())
	assert.Equal(t, 0, first.CachedResponses)
	assert.Equal(t, 1, cache.Len())

	// Second run: the single-run case hits the cache, the repeated case
	// samples the provider again.
	second, err := engine.RunVariant(context.Background(), "/exp/v1", RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 7, provider.ExecuteCallCount())
	assert.Equal(t, 1, second.CachedResponses)

	// A cache hit replays the first run's recorded response verbatim. The
	// mock varies token and latency values per call, so a fresh call here
	// would not match.
	liveResult := resultFor(t, first, "single", 1)
	cachedResult := resultFor(t, second, "single", 1)
	assert.True(t, cachedResult.Cached)
	assert.Equal(t, liveResult.LatencyMS, cachedResult.LatencyMS)
	assert.Equal(t, liveResult.InputTokens, cachedResult.InputTokens)
	assert.Equal(t, liveResult.OutputTokens, cachedResult.OutputTokens)
	assert.Equal(t, liveResult.Response.Content, cachedResult.Response.Content)

	for _, r := range second.Results {
		if r.InputID == "multi" {
			assert.False(t, r.Cached, "repeated runs must sample independently")
		}
	}
}

func TestRunVariant_NoCacheDisablesCaching(t *testing.T) {
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "single", Data: map[string]any{"topic": "go"}, Runs: intPtr(1)})
	cfg.Experiment.Models = []string{"mock:model-a"}
	provider := &testutils.MockProvider{}
	engine, _, cache := newEngine(t, cfg, provider)

	_, err := engine.RunVariant(context.Background(), "/exp/v1", RunOptions{NoCache: true})
	require.NoError(t, err)
	_, err = engine.RunVariant(context.Background(), "/exp/v1", RunOptions{NoCache: true})
	require.NoError(t, err)

	assert.Equal(t, 2, provider.ExecuteCallCount())
	assert.Equal(t, 0, cache.Len())
}

func resultFor(t *testing.T, summary *domain.RunSummary, inputID string, runNumber int) domain.RunResult {
	t.Helper()
	for _, r := range summary.Results {
		if r.InputID == inputID && r.RunNumber == runNumber {
			return r
		}
	}
	t.Fatalf("no result for input %q run %d", inputID, runNumber)
	return domain.RunResult{}
}

func TestRunVariant_InvalidModelIDFailsBeforeAnyTask(t *testing.T) {
	// A malformed model id is a configuration error; sibling tasks for
	// well-formed models must not reach the provider before it surfaces.
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "a", Data: map[string]any{"topic": "go"}})
	cfg.Experiment.Models = []string{"mock:model-a", "no-separator"}
	provider := &testutils.MockProvider{}
	engine, repo, _ := newEngine(t, cfg, provider)

	_, err := engine.RunVariant(context.Background(), "/exp/v1", RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidModelID)

	assert.Equal(t, 0, provider.ExecuteCallCount())
	assert.Empty(t, repo.Saved("/exp/v1"))
}

func TestRunVariant_UnknownProviderFailsBeforeAnyTask(t *testing.T) {
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "a", Data: map[string]any{"topic": "go"}})
	cfg.Experiment.Models = []string{"mock:model-a", "nosuch:model-b"}
	provider := &testutils.MockProvider{}
	engine, repo, _ := newEngine(t, cfg, provider)

	_, err := engine.RunVariant(context.Background(), "/exp/v1", RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nosuch")

	assert.Equal(t, 0, provider.ExecuteCallCount())
	assert.Empty(t, repo.Saved("/exp/v1"))
}

func TestRunVariant_ModelOverrideValidation(t *testing.T) {
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "a", Data: map[string]any{"topic": "go"}})
	provider := &testutils.MockProvider{}
	engine, repo, _ := newEngine(t, cfg, provider)

	_, err := engine.RunVariant(context.Background(), "/exp/v1", RunOptions{
		Models: []string{"mock:model-c"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelNotConfigured)
	assert.Contains(t, err.Error(), "did you mean")
	assert.Contains(t, err.Error(), "mock:model-a")

	// Nothing ran, nothing was persisted.
	assert.Equal(t, 0, provider.ExecuteCallCount())
	assert.Empty(t, repo.Saved("/exp/v1"))
}

func TestRunVariant_ValidOverrideRunsSubset(t *testing.T) {
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "a", Data: map[string]any{"topic": "go"}})
	provider := &testutils.MockProvider{}
	engine, _, _ := newEngine(t, cfg, provider)

	summary, err := engine.RunVariant(context.Background(), "/exp/v1", RunOptions{
		Models: []string{"mock:model-b"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"mock:model-b"}, summary.Models)
	assert.Len(t, summary.Results, 2)
	for _, r := range summary.Results {
		assert.Equal(t, "mock:model-b", r.Model)
	}
}

func TestRunVariant_ProviderFailureAbortsRun(t *testing.T) {
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "a", Data: map[string]any{"topic": "go"}})
	provider := &testutils.MockProvider{
		ExecuteFn: func(context.Context, ports.ExecutionRequest) (*domain.ProviderResponse, error) {
			return nil, errors.New("boom")
		},
	}
	engine, repo, _ := newEngine(t, cfg, provider)

	_, err := engine.RunVariant(context.Background(), "/exp/v1", RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Empty(t, repo.Saved("/exp/v1"), "failed runs must not persist partial summaries")
}

func TestRunVariant_JudgeFailureAbortsRun(t *testing.T) {
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "a", Data: map[string]any{"topic": "go"}})
	provider := &testutils.MockProvider{
		ExecuteJSONFn: func(context.Context, ports.ExecutionRequest) (map[string]any, error) {
			return map[string]any{"reasoning": "no score"}, nil
		},
	}
	engine, repo, _ := newEngine(t, cfg, provider)

	_, err := engine.RunVariant(context.Background(), "/exp/v1", RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrJudgeScore)
	assert.Empty(t, repo.Saved("/exp/v1"))
}

func TestRunVariant_SaveFailureIsFatal(t *testing.T) {
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "a", Data: map[string]any{"topic": "go"}})
	engine, repo, _ := newEngine(t, cfg, &testutils.MockProvider{})
	repo.SaveErr = errors.New("disk full")

	_, err := engine.RunVariant(context.Background(), "/exp/v1", RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunVariant_UndefinedTemplateVariableFails(t *testing.T) {
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "a", Data: map[string]any{"wrong": "key"}})
	engine, _, _ := newEngine(t, cfg, &testutils.MockProvider{})

	_, err := engine.RunVariant(context.Background(), "/exp/v1", RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rendering prompt")
}

func TestRunVariant_BoundedConcurrency(t *testing.T) {
	cfg := testVariant("/exp/v1",
		domain.InputCase{ID: "a", Data: map[string]any{"topic": "go"}, Runs: intPtr(8)})
	cfg.Experiment.Models = []string{"mock:model-a"}

	var inFlight, peak atomic.Int32
	provider := &testutils.MockProvider{
		ExecuteFn: func(context.Context, ports.ExecutionRequest) (*domain.ProviderResponse, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			return &domain.ProviderResponse{Content: "ok"}, nil
		},
	}

	loader := &testutils.StubLoader{Variants: map[string]*domain.VariantConfig{cfg.Path: cfg}}
	engine := NewRunExperiment(loader, testutils.NewMemoryRepository(), nil,
		testutils.FactoryFor(provider, "mock"), WithMaxConcurrency(2))

	_, err := engine.RunVariant(context.Background(), "/exp/v1", RunOptions{})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunAllVariants(t *testing.T) {
	cfgA := testVariant("/exp/a", domain.InputCase{ID: "i", Data: map[string]any{"topic": "go"}})
	cfgB := testVariant("/exp/b", domain.InputCase{ID: "i", Data: map[string]any{"topic": "go"}})

	loader := &testutils.StubLoader{
		Variants: map[string]*domain.VariantConfig{
			"/exp/a": cfgA,
			"/exp/b": cfgB,
		},
		Discovered: map[string][]string{"/exp": {"/exp/a", "/exp/b"}},
	}
	engine := NewRunExperiment(loader, testutils.NewMemoryRepository(), nil,
		testutils.FactoryFor(&testutils.MockProvider{}, "mock"))

	summaries, err := engine.RunAllVariants(context.Background(), "/exp", RunOptions{})
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Discovery order is preserved.
	assert.Equal(t, "a", summaries[0].Variant)
	assert.Equal(t, "b", summaries[1].Variant)
}

func TestRunAllVariants_FirstFailureAborts(t *testing.T) {
	cfgA := testVariant("/exp/a", domain.InputCase{ID: "i", Data: map[string]any{"topic": "go"}})
	cfgB := testVariant("/exp/b", domain.InputCase{ID: "i", Data: map[string]any{"topic": "go"}})

	calls := atomic.Int32{}
	provider := &testutils.MockProvider{
		ExecuteFn: func(context.Context, ports.ExecutionRequest) (*domain.ProviderResponse, error) {
			calls.Add(1)
			return nil, errors.New("provider down")
		},
	}

	loader := &testutils.StubLoader{
		Variants: map[string]*domain.VariantConfig{
			"/exp/a": cfgA,
			"/exp/b": cfgB,
		},
		Discovered: map[string][]string{"/exp": {"/exp/a", "/exp/b"}},
	}
	repo := testutils.NewMemoryRepository()
	engine := NewRunExperiment(loader, repo, nil, testutils.FactoryFor(provider, "mock"))

	_, err := engine.RunAllVariants(context.Background(), "/exp", RunOptions{})
	require.Error(t, err)
	assert.Empty(t, repo.Saved("/exp/a"))
	assert.Empty(t, repo.Saved("/exp/b"))
}

func TestRunAllVariants_NoVariants(t *testing.T) {
	loader := &testutils.StubLoader{}
	engine := NewRunExperiment(loader, testutils.NewMemoryRepository(), nil,
		testutils.FactoryFor(&testutils.MockProvider{}, "mock"))

	_, err := engine.RunAllVariants(context.Background(), "/empty", RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoVariants)
}
