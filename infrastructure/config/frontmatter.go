// Package config loads experiment and variant configuration from disk.
// Variants are directories of Markdown files with YAML frontmatter plus
// YAML sidecars for inputs and tools, and load into the immutable domain
// configuration types.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// parseFrontmatter splits a Markdown document into its leading YAML
// frontmatter block and body. A document that does not start with a "---"
// line has no frontmatter; the whole document is the body. The body is
// whitespace-trimmed.
func parseFrontmatter(raw []byte) (map[string]any, string, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")

	if !strings.HasPrefix(text, frontmatterDelimiter+"\n") {
		return map[string]any{}, strings.TrimSpace(text), nil
	}

	rest := text[len(frontmatterDelimiter)+1:]

	// Search with a leading newline prepended so an empty block, where the
	// closing delimiter is the first line, is still found.
	idx := strings.Index("\n"+rest, "\n"+frontmatterDelimiter)
	if idx < 0 {
		return nil, "", fmt.Errorf("unterminated frontmatter block")
	}

	block := ""
	if idx > 0 {
		block = rest[:idx-1]
	}
	body := strings.TrimPrefix(rest[idx+len(frontmatterDelimiter):], "\n")

	meta := map[string]any{}
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return nil, "", fmt.Errorf("parsing frontmatter: %w", err)
	}

	return meta, strings.TrimSpace(body), nil
}

// The pop helpers consume recognized keys from a frontmatter mapping so
// that whatever remains can be preserved as opaque metadata.

func popString(meta map[string]any, key, fallback string) string {
	v, ok := meta[key]
	if !ok {
		return fallback
	}
	delete(meta, key)
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func popInt(meta map[string]any, key string, fallback int) (int, error) {
	v, ok := meta[key]
	if !ok {
		return fallback, nil
	}
	delete(meta, key)
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}

func popFloat(meta map[string]any, key string, fallback float64) (float64, error) {
	v, ok := meta[key]
	if !ok {
		return fallback, nil
	}
	delete(meta, key)
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}

func popBool(meta map[string]any, key string, fallback bool) (bool, error) {
	v, ok := meta[key]
	if !ok {
		return fallback, nil
	}
	delete(meta, key)
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s must be a boolean, got %T", key, v)
	}
	return b, nil
}

func popStringList(meta map[string]any, key string) ([]string, error) {
	v, ok := meta[key]
	if !ok {
		return nil, nil
	}
	delete(meta, key)
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list of strings, got %T", key, v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a list of strings, got element %T", key, item)
		}
		out = append(out, s)
	}
	return out, nil
}

func popStringMap(meta map[string]any, key string) (map[string]string, error) {
	v, ok := meta[key]
	if !ok {
		return nil, nil
	}
	delete(meta, key)
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a mapping of strings, got %T", key, v)
	}
	out := make(map[string]string, len(raw))
	for k, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must map strings to strings, got value %T for %q", key, item, k)
		}
		out[k] = s
	}
	return out, nil
}

// popIntPair consumes a two-element integer list, such as a score range.
func popIntPair(meta map[string]any, key string) (int, int, bool, error) {
	v, ok := meta[key]
	if !ok {
		return 0, 0, false, nil
	}
	delete(meta, key)
	items, ok := v.([]any)
	if !ok || len(items) != 2 {
		return 0, 0, false, fmt.Errorf("%s must be a two-element list", key)
	}
	pair := [2]int{}
	for i, item := range items {
		switch n := item.(type) {
		case int:
			pair[i] = n
		case int64:
			pair[i] = int(n)
		case float64:
			pair[i] = int(n)
		default:
			return 0, 0, false, fmt.Errorf("%s must contain integers, got %T", key, item)
		}
	}
	return pair[0], pair[1], true, nil
}
