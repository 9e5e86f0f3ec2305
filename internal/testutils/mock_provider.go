// Package testutils provides deterministic in-memory implementations of
// the port interfaces for testing the run engine and judge evaluator
// without network access.
package testutils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ahrav/go-promptlab/internal/domain"
	"github.com/ahrav/go-promptlab/internal/ports"
)

// MockProvider implements ports.Provider with deterministic responses.
// Override ExecuteFn or ExecuteJSONFn for scenario-specific behavior;
// the defaults return a fixed completion and a passing judge verdict.
type MockProvider struct {
	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// ExecuteFn, when set, replaces the default Execute behavior.
	ExecuteFn func(ctx context.Context, req ports.ExecutionRequest) (*domain.ProviderResponse, error)

	// ExecuteJSONFn, when set, replaces the default ExecuteJSON behavior.
	ExecuteJSONFn func(ctx context.Context, req ports.ExecutionRequest) (map[string]any, error)

	mu           sync.Mutex
	executeCalls []ports.ExecutionRequest
	jsonCalls    []ports.ExecutionRequest
}

// Name implements ports.Provider.
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Execute records the call and returns a deterministic response. Token
// and latency values vary with the call number so that tests can tell a
// replayed cached response apart from a fresh call.
func (m *MockProvider) Execute(ctx context.Context, req ports.ExecutionRequest) (*domain.ProviderResponse, error) {
	m.mu.Lock()
	m.executeCalls = append(m.executeCalls, req)
	call := len(m.executeCalls)
	m.mu.Unlock()

	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, req)
	}

	return &domain.ProviderResponse{
		Content:      fmt.Sprintf("mock response for model %s", req.Model),
		InputTokens:  10 + call,
		OutputTokens: 20 + call,
		LatencyMS:    5 * call,
	}, nil
}

// ExecuteJSON records the call and returns a passing judge verdict.
func (m *MockProvider) ExecuteJSON(ctx context.Context, req ports.ExecutionRequest) (map[string]any, error) {
	m.mu.Lock()
	m.jsonCalls = append(m.jsonCalls, req)
	m.mu.Unlock()

	if m.ExecuteJSONFn != nil {
		return m.ExecuteJSONFn(ctx, req)
	}

	return map[string]any{"score": float64(8), "reasoning": "acceptable"}, nil
}

// ExecuteCalls returns a copy of the recorded Execute requests.
func (m *MockProvider) ExecuteCalls() []ports.ExecutionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.ExecutionRequest(nil), m.executeCalls...)
}

// ExecuteCallCount returns the number of Execute invocations.
func (m *MockProvider) ExecuteCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.executeCalls)
}

// JSONCalls returns a copy of the recorded ExecuteJSON requests.
func (m *MockProvider) JSONCalls() []ports.ExecutionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.ExecutionRequest(nil), m.jsonCalls...)
}

// JSONCallCount returns the number of ExecuteJSON invocations.
func (m *MockProvider) JSONCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jsonCalls)
}

// FactoryFor returns a ports.ProviderFactory resolving every listed name
// to the given provider and failing on anything else.
func FactoryFor(provider ports.Provider, names ...string) ports.ProviderFactory {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	return func(name string) (ports.Provider, error) {
		if len(allowed) == 0 || allowed[name] {
			return provider, nil
		}
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// MemoryCache implements ports.CacheStore in memory.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*domain.ProviderResponse
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*domain.ProviderResponse)}
}

// MakeKey hashes the canonical JSON of the request identity.
// encoding/json serializes map keys in sorted order, so key order in the
// input data cannot affect the fingerprint.
func (c *MemoryCache) MakeKey(prompt string, input map[string]any, model string, tools []domain.ToolDefinition) string {
	payload, _ := json.Marshal(map[string]any{
		"prompt": prompt,
		"input":  input,
		"model":  model,
		"tools":  tools,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Get implements ports.CacheStore.
func (c *MemoryCache) Get(key string) (*domain.ProviderResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key], nil
}

// Put implements ports.CacheStore.
func (c *MemoryCache) Put(key string, resp *domain.ProviderResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = resp
	return nil
}

// Clear implements ports.CacheStore.
func (c *MemoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*domain.ProviderResponse)
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StubLoader implements ports.ConfigLoader over a fixed set of variants.
type StubLoader struct {
	// Variants maps variant paths to their configurations.
	Variants map[string]*domain.VariantConfig

	// Discovered maps experiment paths to ordered variant paths.
	Discovered map[string][]string
}

// LoadVariant implements ports.ConfigLoader.
func (s *StubLoader) LoadVariant(path string) (*domain.VariantConfig, error) {
	cfg, ok := s.Variants[path]
	if !ok {
		return nil, fmt.Errorf("no variant at %q", path)
	}
	return cfg, nil
}

// DiscoverVariants implements ports.ConfigLoader.
func (s *StubLoader) DiscoverVariants(experimentPath string) ([]string, error) {
	paths, ok := s.Discovered[experimentPath]
	if !ok || len(paths) == 0 {
		return nil, domain.ErrNoVariants
	}
	return paths, nil
}

// MemoryRepository implements ports.ResultRepository in memory.
// Summaries are keyed by variant path and stored in save order.
type MemoryRepository struct {
	mu        sync.Mutex
	summaries map[string][]*domain.RunSummary

	// SaveErr, when set, is returned by Save to simulate persistence
	// failures.
	SaveErr error
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{summaries: make(map[string][]*domain.RunSummary)}
}

// Save implements ports.ResultRepository.
func (r *MemoryRepository) Save(variantPath string, summary *domain.RunSummary) (string, error) {
	if r.SaveErr != nil {
		return "", r.SaveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries[variantPath] = append(r.summaries[variantPath], summary)
	return variantPath + "/results/" + summary.Timestamp, nil
}

// Load implements ports.ResultRepository.
func (r *MemoryRepository) Load(variantPath, timestamp string) (*domain.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.summaries[variantPath]
	if len(stored) == 0 {
		return nil, domain.ErrNoResults
	}
	if timestamp == "" {
		return stored[len(stored)-1], nil
	}
	for _, s := range stored {
		if s.Timestamp == timestamp {
			return s, nil
		}
	}
	return nil, domain.ErrNoResults
}

// ListRuns implements ports.ResultRepository.
func (r *MemoryRepository) ListRuns(variantPath string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.summaries[variantPath]
	timestamps := make([]string, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		timestamps = append(timestamps, stored[i].Timestamp)
	}
	return timestamps, nil
}

// Clean implements ports.ResultRepository.
func (r *MemoryRepository) Clean(variantPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.summaries, variantPath)
	return nil
}

// Saved returns the summaries stored for a variant, in save order.
func (r *MemoryRepository) Saved(variantPath string) []*domain.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.RunSummary(nil), r.summaries[variantPath]...)
}
