// Package application contains the run engine and judge evaluator that
// drive prompt experiments: task expansion, concurrent execution, caching
// policy, and LLM-as-judge scoring. It depends only on domain models and
// the port interfaces.
package application

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-promptlab/internal/domain"
	"github.com/ahrav/go-promptlab/internal/ports"
	"github.com/ahrav/go-promptlab/internal/templates"
)

// timestampLayout names result directories. Colons are avoided so the
// directories stay portable across filesystems.
const timestampLayout = "2006-01-02T15-04-05"

// RunOptions controls a single run invocation.
type RunOptions struct {
	// Models narrows the run to a subset of the variant's configured
	// models. Every entry must appear in the variant's model list.
	Models []string

	// NoCache disables response caching for this invocation even for
	// single-run cases.
	NoCache bool

	// OnProgress, when set, is invoked exactly once per completed task.
	// Calls are serialized.
	OnProgress func()
}

// RunExperiment executes prompt variants: it expands the task set across
// inputs, repetitions, and models, runs the tasks concurrently, judges
// every response, and persists a summary with derived statistics.
type RunExperiment struct {
	loader    ports.ConfigLoader
	results   ports.ResultRepository
	cache     ports.CacheStore
	providers ports.ProviderFactory
	evaluator *Evaluator
	metrics   ports.MetricsCollector
	logger    *log.Logger

	// maxConcurrency bounds in-flight tasks. Zero means unbounded, which
	// matches the historical behavior of launching every task at once.
	maxConcurrency int
}

// Option configures a RunExperiment.
type Option func(*RunExperiment)

// WithMetrics attaches a metrics collector.
func WithMetrics(m ports.MetricsCollector) Option {
	return func(r *RunExperiment) { r.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *log.Logger) Option {
	return func(r *RunExperiment) { r.logger = l }
}

// WithMaxConcurrency bounds the number of concurrently executing tasks.
// n <= 0 leaves execution unbounded.
func WithMaxConcurrency(n int) Option {
	return func(r *RunExperiment) { r.maxConcurrency = n }
}

// NewRunExperiment builds a RunExperiment. cache may be nil to disable
// caching entirely.
func NewRunExperiment(
	loader ports.ConfigLoader,
	results ports.ResultRepository,
	cache ports.CacheStore,
	providers ports.ProviderFactory,
	opts ...Option,
) *RunExperiment {
	r := &RunExperiment{
		loader:    loader,
		results:   results,
		cache:     cache,
		providers: providers,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.evaluator = NewEvaluator(providers, r.metrics, r.logger)
	return r
}

// CountTasks returns the number of tasks RunVariant would execute for the
// variant with the given model override. Used for progress reporting; the
// count always equals the number of progress callbacks a run will issue.
func (r *RunExperiment) CountTasks(variantPath string, models []string) (int, error) {
	cfg, err := r.loader.LoadVariant(variantPath)
	if err != nil {
		return 0, err
	}

	runModels := models
	if len(runModels) == 0 {
		runModels = cfg.Models()
	}

	total := 0
	for _, input := range cfg.Inputs {
		total += input.EffectiveRuns(cfg.Experiment.Runs) * len(runModels)
	}
	return total, nil
}

// CountExperimentTasks sums CountTasks over every variant of an experiment.
func (r *RunExperiment) CountExperimentTasks(experimentPath string, models []string) (int, error) {
	variants, err := r.loader.DiscoverVariants(experimentPath)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, variant := range variants {
		n, err := r.CountTasks(variant, models)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// boundModel is a model id parsed and resolved to its provider during
// task expansion, before any task executes.
type boundModel struct {
	provider ports.Provider
	model    string
	fullID   string
}

// task is one unit of work: a single (input, run number, model) cell of
// the expanded Cartesian set.
type task struct {
	bound     boundModel
	input     domain.InputCase
	runNumber int
	useCache  bool
}

// RunVariant executes every task of one variant and returns the persisted
// summary. Any task failure aborts the whole run; no partial summary is
// persisted.
//
// Caching applies only to input cases whose effective run count is exactly
// one. Repeated runs must sample independently from the provider, since
// the point of repetition is observing response variance; a cache would
// collapse all repeats to one value.
func (r *RunExperiment) RunVariant(ctx context.Context, variantPath string, opts RunOptions) (*domain.RunSummary, error) {
	start := time.Now()
	timestamp := start.Format(timestampLayout)

	cfg, err := r.loader.LoadVariant(variantPath)
	if err != nil {
		return nil, err
	}

	runModels := opts.Models
	if len(runModels) == 0 {
		runModels = cfg.Models()
	}

	if err := r.validateModels(runModels, cfg.Models()); err != nil {
		return nil, err
	}

	// A malformed model id or unresolvable provider is a configuration
	// error; it must surface before any task issues a live call.
	bound := make([]boundModel, 0, len(runModels))
	for _, modelID := range runModels {
		providerName, model, err := domain.ParseModelID(modelID)
		if err != nil {
			return nil, err
		}
		provider, err := r.providers(providerName)
		if err != nil {
			return nil, err
		}
		bound = append(bound, boundModel{
			provider: provider,
			model:    model,
			fullID:   provider.Name() + ":" + model,
		})
	}

	tasks := make([]task, 0)
	for _, input := range cfg.Inputs {
		runs := input.EffectiveRuns(cfg.Experiment.Runs)
		for runNum := 1; runNum <= runs; runNum++ {
			for _, b := range bound {
				tasks = append(tasks, task{
					bound:     b,
					input:     input,
					runNumber: runNum,
					useCache:  !opts.NoCache && r.cache != nil && runs == 1,
				})
			}
		}
	}

	r.logger.Info("starting run",
		"variant", cfg.Name(), "models", runModels, "tasks", len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	if r.maxConcurrency > 0 {
		g.SetLimit(r.maxConcurrency)
	}

	var mu sync.Mutex
	resultsList := make([]domain.RunResult, 0, len(tasks))

	for _, t := range tasks {
		g.Go(func() error {
			result, err := r.runSingle(gctx, cfg, t)
			if err != nil {
				return err
			}

			mu.Lock()
			resultsList = append(resultsList, result)
			if opts.OnProgress != nil {
				opts.OnProgress()
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	cachedCount := 0
	for _, result := range resultsList {
		if result.Cached {
			cachedCount++
		}
	}

	summary := &domain.RunSummary{
		Timestamp:       timestamp,
		ExecutionID:     uuid.NewString(),
		Experiment:      cfg.Experiment.Name,
		Variant:         cfg.Name(),
		Models:          runModels,
		InputsCount:     len(cfg.Inputs),
		RunsPerInput:    cfg.Experiment.Runs,
		DurationSeconds: math.Round(time.Since(start).Seconds()*100) / 100,
		CachedResponses: cachedCount,
		Hypothesis:      cfg.Experiment.Hypothesis,
		Results:         resultsList,
		Stats:           domain.CalculateStats(resultsList),
	}

	if _, err := r.results.Save(cfg.Path, summary); err != nil {
		return nil, fmt.Errorf("saving results for %s: %w", cfg.Name(), err)
	}

	r.logger.Info("run complete",
		"variant", cfg.Name(),
		"duration", summary.DurationSeconds,
		"cached", cachedCount)

	return summary, nil
}

// RunAllVariants discovers the variants of an experiment and runs each in
// discovery order. The first failing variant aborts the remainder.
func (r *RunExperiment) RunAllVariants(ctx context.Context, experimentPath string, opts RunOptions) ([]*domain.RunSummary, error) {
	variants, err := r.loader.DiscoverVariants(experimentPath)
	if err != nil {
		return nil, err
	}

	summaries := make([]*domain.RunSummary, 0, len(variants))
	for _, variant := range variants {
		summary, err := r.RunVariant(ctx, variant, opts)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// validateModels checks every requested model against the variant's
// declared list, suggesting the closest declared model on a miss.
func (r *RunExperiment) validateModels(requested, available []string) error {
	for _, model := range requested {
		if slices.Contains(available, model) {
			continue
		}

		if suggestion := closestModel(model, available); suggestion != "" {
			return fmt.Errorf("%w: %q is not in the experiment config (did you mean %q?), available: %v",
				domain.ErrModelNotConfigured, model, suggestion, available)
		}
		return fmt.Errorf("%w: %q is not in the experiment config, available: %v",
			domain.ErrModelNotConfigured, model, available)
	}
	return nil
}

// closestModel returns the declared model within a small edit distance of
// the unknown id, or empty when nothing is close enough to suggest.
func closestModel(unknown string, available []string) string {
	const maxDistance = 5

	best := ""
	bestDist := maxDistance + 1
	for _, candidate := range available {
		if d := levenshtein.ComputeDistance(unknown, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

// runSingle executes one task: cache lookup, provider call on a miss,
// template rendering for the judge, and judge evaluation.
func (r *RunExperiment) runSingle(ctx context.Context, cfg *domain.VariantConfig, t task) (domain.RunResult, error) {
	provider := t.bound.provider
	providerName := provider.Name()
	model := t.bound.model
	fullModelID := t.bound.fullID

	cached := false
	var cacheKey string
	var response *domain.ProviderResponse

	if t.useCache {
		cacheKey = r.cache.MakeKey(cfg.Prompt.Content, t.input.Data, fullModelID, cfg.Tools)
		hit, err := r.cache.Get(cacheKey)
		if err != nil {
			r.logger.Warn("cache read failed", "key", cacheKey, "error", err)
		} else if hit != nil {
			response = hit
			cached = true
		}
	}

	if response == nil {
		var err error
		response, err = provider.Execute(ctx, ports.ExecutionRequest{
			Model:        model,
			Prompt:       cfg.Prompt.Content,
			SystemPrompt: cfg.Prompt.SystemContent,
			Input:        t.input.Data,
			Tools:        cfg.Tools,
		})
		if err != nil {
			return domain.RunResult{}, fmt.Errorf("input %q run %d model %s: %w",
				t.input.ID, t.runNumber, fullModelID, err)
		}

		if t.useCache {
			if err := r.cache.Put(cacheKey, response); err != nil {
				r.logger.Warn("cache write failed", "key", cacheKey, "error", err)
			}
		}

		if r.metrics != nil {
			r.metrics.RecordTokens(providerName, model,
				int64(response.InputTokens), int64(response.OutputTokens))
		}
	}

	if r.metrics != nil {
		r.metrics.RecordTask(providerName, model, int64(response.LatencyMS), cached)
	}

	renderedPrompt, err := templates.Render(cfg.Prompt.Content, t.input.Data)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("rendering prompt for input %q: %w", t.input.ID, err)
	}

	renderedSystem := ""
	if cfg.Prompt.SystemContent != "" {
		renderedSystem, err = templates.Render(cfg.Prompt.SystemContent, t.input.Data)
		if err != nil {
			return domain.RunResult{}, fmt.Errorf("rendering system prompt for input %q: %w", t.input.ID, err)
		}
	}

	judgeResult, err := r.evaluator.Evaluate(ctx, cfg.Judge, renderedPrompt, renderedSystem, response)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("input %q run %d model %s: %w",
			t.input.ID, t.runNumber, fullModelID, err)
	}

	return domain.RunResult{
		InputID:      t.input.ID,
		Model:        fullModelID,
		RunNumber:    t.runNumber,
		Cached:       cached,
		LatencyMS:    response.LatencyMS,
		InputTokens:  response.InputTokens,
		OutputTokens: response.OutputTokens,
		Response: domain.ResponseSnapshot{
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		},
		Judge: domain.JudgeSnapshot{
			Score:     judgeResult.Score,
			Reasoning: judgeResult.Reasoning,
		},
	}, nil
}
