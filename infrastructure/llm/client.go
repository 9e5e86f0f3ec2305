// Package llm implements the provider capability against real LLM
// backends (OpenAI, Anthropic, Google) behind the ports.Provider
// interface, with pluggable middleware for rate limiting, per-request
// timeouts, metrics, and tracing.
//
// Providers are created through a factory registry so that backends can
// be added without touching client code:
//
//	provider, err := llm.NewProvider("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Middleware: []llm.Middleware{
//	        llm.RateLimitMiddleware(10, 20),
//	        llm.TimeoutMiddleware(2 * time.Minute),
//	    },
//	})
package llm

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-promptlab/internal/ports"
)

// DefaultMaxTokens caps completion length for providers that require an
// explicit maximum.
const DefaultMaxTokens = 4096

// ClientConfig holds configuration for creating a provider.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// BaseURL overrides the default API endpoint. Empty uses the
	// provider's default.
	BaseURL string

	// Timeout bounds individual requests when TimeoutMiddleware is not
	// already in the chain. Zero means no timeout.
	Timeout time.Duration

	// Middleware is applied in order, first entry outermost.
	Middleware []Middleware
}

// Middleware wraps a provider to add cross-cutting behavior such as rate
// limiting or tracing without modifying provider logic.
type Middleware func(ports.Provider) ports.Provider

// ProviderFactory creates a provider implementation from configuration.
type ProviderFactory func(ClientConfig) (ports.Provider, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory registers a named provider factory. Providers in
// this package register themselves in init; applications may add custom
// backends the same way.
func RegisterProviderFactory(name string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[name] = factory
}

// KnownProviders returns the registered provider names, sorted.
func KnownProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider creates a provider by registered name, applying the
// configured middleware chain.
func NewProvider(name string, config ClientConfig) (ports.Provider, error) {
	factoriesMu.RLock()
	factory, ok := providerFactories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q, available: %s",
			name, strings.Join(KnownProviders(), ", "))
	}

	provider, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("creating %s provider: %w", name, err)
	}

	if config.Timeout > 0 {
		provider = TimeoutMiddleware(config.Timeout)(provider)
	}

	// Apply middleware in reverse so the first entry is outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		provider = config.Middleware[i](provider)
	}

	return provider, nil
}

// defaultKeyEnvVars maps provider names to the environment variables
// holding their API keys when an experiment declares no key_refs override.
var defaultKeyEnvVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GEMINI_API_KEY",
}

// EnvFactory builds a ports.ProviderFactory that resolves API keys from
// the environment. keyRefs overrides the default environment variable per
// provider. Providers are constructed once and reused across calls; the
// factory is safe for concurrent use.
func EnvFactory(keyRefs map[string]string, middleware ...Middleware) ports.ProviderFactory {
	var mu sync.Mutex
	built := make(map[string]ports.Provider)

	return func(name string) (ports.Provider, error) {
		mu.Lock()
		defer mu.Unlock()

		if p, ok := built[name]; ok {
			return p, nil
		}

		envVar, ok := keyRefs[name]
		if !ok {
			envVar = defaultKeyEnvVars[name]
		}

		apiKey := ""
		if envVar != "" {
			apiKey = os.Getenv(envVar)
		}
		if apiKey == "" {
			return nil, fmt.Errorf("provider %q: environment variable %s not set", name, envVar)
		}

		provider, err := NewProvider(name, ClientConfig{
			APIKey:     apiKey,
			Middleware: middleware,
		})
		if err != nil {
			return nil, err
		}

		built[name] = provider
		return provider, nil
	}
}
