// Package ports defines the interfaces through which the application layer
// reaches infrastructure. Implementations live under infrastructure/ and
// are swapped for mocks in tests.
package ports

import (
	"context"

	"github.com/ahrav/go-promptlab/internal/domain"
)

// ExecutionRequest carries everything a provider needs to produce one
// completion. Prompt and SystemPrompt are raw templates; the provider
// renders them against Input before building messages, so that rendering
// failures surface as provider errors with the model attached.
type ExecutionRequest struct {
	// Model is the provider-local model name, without the provider prefix.
	Model string

	// Prompt is the prompt template.
	Prompt string

	// SystemPrompt is the optional system template, empty when the variant
	// has no system file.
	SystemPrompt string

	// Input maps template variable names to values. It is also serialized
	// into the user message so the model sees the raw payload.
	Input map[string]any

	// Tools lists tool definitions the model may call. Providers that do
	// not support tools return a ProviderError when this is non-empty.
	Tools []domain.ToolDefinition

	// Temperature applies to JSON completions only; plain completions use
	// the provider default.
	Temperature float64
}

// Provider executes completions against a single LLM backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the provider identifier used in model ids, such as
	// "openai" or "anthropic".
	Name() string

	// Execute performs a free-form completion.
	Execute(ctx context.Context, req ExecutionRequest) (*domain.ProviderResponse, error)

	// ExecuteJSON performs a completion constrained to a single JSON
	// object, using native JSON modes where the backend has one, and
	// returns the parsed object. Unparseable output is an error, never a
	// best-effort result.
	ExecuteJSON(ctx context.Context, req ExecutionRequest) (map[string]any, error)
}

// ProviderFactory resolves a provider name to a configured Provider.
// Unknown names return an error listing the available providers.
type ProviderFactory func(name string) (Provider, error)

// CacheStore persists provider responses keyed by a fingerprint of the
// request.
type CacheStore interface {
	// MakeKey builds a deterministic, collision-resistant fingerprint over
	// the prompt template, input data, fully-qualified model id, and tool
	// definitions. Mapping key order must not affect the result.
	MakeKey(prompt string, input map[string]any, model string, tools []domain.ToolDefinition) string

	// Get returns the cached response for key, or nil on a miss.
	Get(key string) (*domain.ProviderResponse, error)

	// Put stores the response under key, overwriting any existing entry.
	Put(key string, resp *domain.ProviderResponse) error

	// Clear removes every cached entry.
	Clear() error
}

// ConfigLoader discovers and loads experiment variants from disk.
type ConfigLoader interface {
	// LoadVariant loads a single variant directory.
	LoadVariant(path string) (*domain.VariantConfig, error)

	// DiscoverVariants returns the variant directories under an experiment
	// directory, sorted by name. A directory qualifies when it contains a
	// prompt file.
	DiscoverVariants(experimentPath string) ([]string, error)
}

// ResultRepository persists run summaries and reads them back for
// reporting and comparison.
type ResultRepository interface {
	// Save writes the summary under the variant directory and returns the
	// directory the run was written to.
	Save(variantPath string, summary *domain.RunSummary) (string, error)

	// Load returns the summary for a specific run timestamp, or the most
	// recent run when timestamp is empty. Missing results return
	// domain.ErrNoResults.
	Load(variantPath, timestamp string) (*domain.RunSummary, error)

	// ListRuns returns the stored run timestamps for a variant, newest
	// first.
	ListRuns(variantPath string) ([]string, error)

	// Clean removes all stored results for a variant.
	Clean(variantPath string) error
}

// MetricsCollector records run-level observability signals.
// Implementations must be safe for concurrent use; a no-op implementation
// is acceptable.
type MetricsCollector interface {
	// RecordTask records one completed task with its latency and cache
	// disposition.
	RecordTask(provider, model string, latencyMS int64, cached bool)

	// RecordJudge records one judge evaluation outcome.
	RecordJudge(model string, score int)

	// RecordTokens records token usage for a live provider call.
	RecordTokens(provider, model string, input, output int64)
}
