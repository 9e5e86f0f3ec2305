// Package results persists run summaries under the variant directory and
// reads them back for reporting and comparison.
//
// On-disk layout, one directory per run:
//
//	<variant>/results/<timestamp>/
//	    run.yaml        summary metadata
//	    stats.yaml      per-(input, model) statistics
//	    responses/      one JSON file per task result
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-promptlab/internal/domain"
)

const (
	resultsDir   = "results"
	runFile      = "run.yaml"
	statsFile    = "stats.yaml"
	responsesDir = "responses"
)

// FileRepository implements ports.ResultRepository on the local
// filesystem.
type FileRepository struct{}

// NewFileRepository returns a file-backed result repository.
func NewFileRepository() *FileRepository { return &FileRepository{} }

// Save writes the summary under <variantPath>/results/<timestamp>/ and
// returns that directory.
func (r *FileRepository) Save(variantPath string, summary *domain.RunSummary) (string, error) {
	runDir := filepath.Join(variantPath, resultsDir, summary.Timestamp)
	respDir := filepath.Join(runDir, responsesDir)
	if err := os.MkdirAll(respDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}

	runYAML, err := yaml.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("encoding run summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, runFile), runYAML, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", runFile, err)
	}

	statsYAML, err := yaml.Marshal(summary.Stats)
	if err != nil {
		return "", fmt.Errorf("encoding stats: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, statsFile), statsYAML, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", statsFile, err)
	}

	for _, result := range summary.Results {
		raw, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding result %s: %w", resultFilename(result), err)
		}
		file := filepath.Join(respDir, resultFilename(result))
		if err := os.WriteFile(file, raw, 0o644); err != nil {
			return "", fmt.Errorf("writing %s: %w", file, err)
		}
	}

	return runDir, nil
}

// Load returns the summary for a specific run timestamp, or the most
// recent run when timestamp is empty.
func (r *FileRepository) Load(variantPath, timestamp string) (*domain.RunSummary, error) {
	if timestamp == "" {
		runs, err := r.ListRuns(variantPath)
		if err != nil {
			return nil, err
		}
		timestamp = runs[0]
	}

	runDir := filepath.Join(variantPath, resultsDir, timestamp)

	runYAML, err := os.ReadFile(filepath.Join(runDir, runFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no run %s in %s", domain.ErrNoResults, timestamp, variantPath)
		}
		return nil, fmt.Errorf("reading %s: %w", runFile, err)
	}

	var summary domain.RunSummary
	if err := yaml.Unmarshal(runYAML, &summary); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", runFile, err)
	}

	summary.Results, err = loadResults(filepath.Join(runDir, responsesDir))
	if err != nil {
		return nil, err
	}

	if statsYAML, err := os.ReadFile(filepath.Join(runDir, statsFile)); err == nil {
		if err := yaml.Unmarshal(statsYAML, &summary.Stats); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", statsFile, err)
		}
	}

	return &summary, nil
}

// ListRuns returns the stored run timestamps for a variant, newest first.
func (r *FileRepository) ListRuns(variantPath string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(variantPath, resultsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w in %s", domain.ErrNoResults, variantPath)
		}
		return nil, fmt.Errorf("reading results directory: %w", err)
	}

	var runs []string
	for _, entry := range entries {
		if entry.IsDir() {
			runs = append(runs, entry.Name())
		}
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w in %s", domain.ErrNoResults, variantPath)
	}

	// Timestamps sort lexically in chronological order.
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))
	return runs, nil
}

// Clean removes all stored results for a variant.
func (r *FileRepository) Clean(variantPath string) error {
	if err := os.RemoveAll(filepath.Join(variantPath, resultsDir)); err != nil {
		return fmt.Errorf("removing results for %s: %w", variantPath, err)
	}
	return nil
}

func loadResults(respDir string) ([]domain.RunResult, error) {
	entries, err := os.ReadDir(respDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading responses directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	results := make([]domain.RunResult, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(respDir, name))
		if err != nil {
			return nil, fmt.Errorf("reading result %s: %w", name, err)
		}

		var result domain.RunResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("decoding result %s: %w", name, err)
		}
		// Files written before run numbering default to run 1.
		if result.RunNumber == 0 {
			result.RunNumber = 1
		}
		results = append(results, result)
	}
	return results, nil
}

// resultFilename derives a stable name from the result's identifying
// fields, replacing the model id separator for filesystem safety.
func resultFilename(result domain.RunResult) string {
	model := strings.ReplaceAll(result.Model, ":", "-")
	return fmt.Sprintf("%s_run%d_%s.json", result.InputID, result.RunNumber, model)
}
