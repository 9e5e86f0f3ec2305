// Package cache provides a content-addressed file cache for provider
// responses. Entries are keyed by a SHA-256 fingerprint of the request so
// that identical single-run tasks can reuse earlier responses.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ahrav/go-promptlab/internal/domain"
)

// DefaultDir is the cache directory used when none is configured.
const DefaultDir = ".cache"

// FileCache stores one JSON file per cached response under a single
// directory. It implements ports.CacheStore.
//
// Concurrent writers to the same key race; the last writer wins. Both
// writers hold byte-identical content for a given fingerprint, so the
// outcome is the same either way.
type FileCache struct {
	dir string
}

// NewFileCache returns a cache rooted at dir, or DefaultDir when dir is
// empty. The directory is created lazily on first Put.
func NewFileCache(dir string) *FileCache {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileCache{dir: dir}
}

// fingerprint is the canonical request identity. encoding/json emits map
// keys in sorted order, so two inputs that differ only in key order
// produce the same fingerprint.
type fingerprint struct {
	Prompt string                  `json:"prompt"`
	Input  map[string]any          `json:"input"`
	Model  string                  `json:"model"`
	Tools  []domain.ToolDefinition `json:"tools"`
}

// MakeKey builds the SHA-256 fingerprint for a request.
func (c *FileCache) MakeKey(prompt string, input map[string]any, model string, tools []domain.ToolDefinition) string {
	payload, err := json.Marshal(fingerprint{
		Prompt: prompt,
		Input:  input,
		Model:  model,
		Tools:  tools,
	})
	if err != nil {
		// Input data originates from YAML and is always marshalable; a
		// failure here indicates a programming error upstream.
		panic(fmt.Sprintf("cache: marshaling fingerprint: %v", err))
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached response for key, or nil on a miss.
func (c *FileCache) Get(key string) (*domain.ProviderResponse, error) {
	raw, err := os.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry %s: %w", key, err)
	}

	var resp domain.ProviderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	return &resp, nil
}

// Put stores the response under key, overwriting any existing entry.
func (c *FileCache) Put(key string, resp *domain.ProviderResponse) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	raw, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	if err := os.WriteFile(c.path(key), raw, 0o644); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return nil
}

// Clear removes every cached entry.
func (c *FileCache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			return fmt.Errorf("removing cache entry %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
