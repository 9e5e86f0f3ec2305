package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-promptlab/internal/domain"
)

// File names that make up a variant on disk. Judge and inputs files may
// live at either the variant or the experiment level; the variant-level
// file wins.
const (
	experimentFile = "experiment.md"
	promptFile     = "prompt.md"
	systemFile     = "system.md"
	judgeFile      = "judge.md"
	inputsFile     = "inputs.yaml"
	toolsFile      = "tools.yaml"
)

// Loader reads variant configuration from a directory tree laid out as
//
//	experiment/
//	    experiment.md
//	    judge.md
//	    inputs.yaml
//	    variant-a/
//	        prompt.md
//	        system.md        (optional)
//	        judge.md         (optional override)
//	        inputs.yaml      (optional override)
//	        tools.yaml       (optional)
//
// It implements ports.ConfigLoader.
type Loader struct {
	validate *validator.Validate
}

// NewLoader returns a Loader with struct validation enabled.
func NewLoader() *Loader {
	return &Loader{validate: validator.New()}
}

// LoadVariant loads the variant at path together with its parent
// experiment configuration.
func (l *Loader) LoadVariant(path string) (*domain.VariantConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("variant path %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("variant path must be a directory: %s", path)
	}

	experimentPath := filepath.Dir(path)

	experiment, err := l.loadExperiment(experimentPath)
	if err != nil {
		return nil, err
	}
	prompt, err := l.loadPrompt(path)
	if err != nil {
		return nil, err
	}
	judge, err := l.loadJudge(path, experimentPath)
	if err != nil {
		return nil, err
	}
	inputs, err := l.loadInputs(path, experimentPath)
	if err != nil {
		return nil, err
	}
	tools, err := l.loadTools(path)
	if err != nil {
		return nil, err
	}

	return &domain.VariantConfig{
		Path:       path,
		Experiment: *experiment,
		Prompt:     *prompt,
		Judge:      *judge,
		Inputs:     inputs,
		Tools:      tools,
	}, nil
}

// DiscoverVariants returns the variant directories under experimentPath,
// sorted by name. A subdirectory qualifies when it contains a prompt file.
func (l *Loader) DiscoverVariants(experimentPath string) ([]string, error) {
	entries, err := os.ReadDir(experimentPath)
	if err != nil {
		return nil, fmt.Errorf("experiment path %s: %w", experimentPath, err)
	}

	var variants []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(experimentPath, entry.Name())
		if _, err := os.Stat(filepath.Join(candidate, promptFile)); err == nil {
			variants = append(variants, candidate)
		}
	}

	if len(variants) == 0 {
		return nil, fmt.Errorf("%w in %s", domain.ErrNoVariants, experimentPath)
	}

	sort.Strings(variants)
	return variants, nil
}

func (l *Loader) loadExperiment(path string) (*domain.ExperimentConfig, error) {
	file := filepath.Join(path, experimentFile)
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("%s not found in %s: %w", experimentFile, path, err)
	}

	meta, body, err := parseFrontmatter(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	models, err := popStringList(meta, "models")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	runs, err := popInt(meta, "runs", domain.DefaultRuns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	keyRefs, err := popStringMap(meta, "key_refs")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	experiment := &domain.ExperimentConfig{
		Name:        popString(meta, "name", filepath.Base(path)),
		Description: firstNonEmpty(popString(meta, "description", ""), body),
		Models:      models,
		Hypothesis:  popString(meta, "hypothesis", ""),
		Runs:        runs,
		KeyRefs:     keyRefs,
		Metadata:    remainingMetadata(meta),
	}

	if err := l.validate.Struct(experiment); err != nil {
		return nil, fmt.Errorf("invalid experiment config %s: %w", file, err)
	}
	return experiment, nil
}

func (l *Loader) loadPrompt(path string) (*domain.PromptConfig, error) {
	file := filepath.Join(path, promptFile)
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("%s not found in %s: %w", promptFile, path, err)
	}

	meta, body, err := parseFrontmatter(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	models, err := popStringList(meta, "models")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	systemContent := ""
	if systemRaw, err := os.ReadFile(filepath.Join(path, systemFile)); err == nil {
		_, systemContent, err = parseFrontmatter(systemRaw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Join(path, systemFile), err)
		}
	}

	return &domain.PromptConfig{
		Content:       body,
		SystemContent: systemContent,
		Models:        models,
		Metadata:      remainingMetadata(meta),
	}, nil
}

func (l *Loader) loadJudge(variantPath, experimentPath string) (*domain.JudgeConfig, error) {
	for _, dir := range []string{variantPath, experimentPath} {
		file := filepath.Join(dir, judgeFile)
		raw, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		return l.parseJudge(file, raw)
	}
	return nil, fmt.Errorf("no %s found in %s or %s", judgeFile, variantPath, experimentPath)
}

func (l *Loader) parseJudge(file string, raw []byte) (*domain.JudgeConfig, error) {
	meta, body, err := parseFrontmatter(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	models, err := popStringList(meta, "models")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	temperature, err := popFloat(meta, "temperature", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	chainOfThought, err := popBool(meta, "chain_of_thought", true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	scoreMin, scoreMax, haveRange, err := popIntPair(meta, "score_range")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	if !haveRange {
		if scoreMin, err = popInt(meta, "score_min", domain.DefaultScoreMin); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		if scoreMax, err = popInt(meta, "score_max", domain.DefaultScoreMax); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	judge := &domain.JudgeConfig{
		Content:        body,
		Model:          popString(meta, "model", domain.DefaultJudgeModel),
		Models:         models,
		Aggregation:    popString(meta, "aggregation", domain.AggregationMean),
		ScoreMin:       scoreMin,
		ScoreMax:       scoreMax,
		Temperature:    temperature,
		ChainOfThought: chainOfThought,
		Metadata:       remainingMetadata(meta),
	}

	if err := l.validate.Struct(judge); err != nil {
		return nil, fmt.Errorf("invalid judge config %s: %w", file, err)
	}
	return judge, nil
}

func (l *Loader) loadInputs(variantPath, experimentPath string) ([]domain.InputCase, error) {
	for _, dir := range []string{variantPath, experimentPath} {
		file := filepath.Join(dir, inputsFile)
		raw, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		return parseInputs(file, raw)
	}

	// No inputs file means a single run with empty data, for static
	// prompts with no template variables.
	return []domain.InputCase{{ID: "default", Data: map[string]any{}}}, nil
}

func parseInputs(file string, raw []byte) ([]domain.InputCase, error) {
	var items []map[string]any
	if err := yaml.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s must contain a list of test cases: %w", file, err)
	}
	if items == nil {
		return []domain.InputCase{{ID: "default", Data: map[string]any{}}}, nil
	}

	inputs := make([]domain.InputCase, 0, len(items))
	for i, item := range items {
		id := popString(item, "id", fmt.Sprintf("input-%d", i))

		var runs *int
		if _, ok := item["runs"]; ok {
			n, err := popInt(item, "runs", 0)
			if err != nil {
				return nil, fmt.Errorf("%s case %d: %w", file, i, err)
			}
			runs = &n
		}

		// Remaining keys are the template data.
		inputs = append(inputs, domain.InputCase{ID: id, Data: item, Runs: runs})
	}
	return inputs, nil
}

func (l *Loader) loadTools(path string) ([]domain.ToolDefinition, error) {
	file := filepath.Join(path, toolsFile)
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, nil
	}

	var items []map[string]any
	if err := yaml.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s must contain a list of tool definitions: %w", file, err)
	}

	tools := make([]domain.ToolDefinition, 0, len(items))
	for i, item := range items {
		name, _ := item["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("%s: tool definition %d missing name", file, i)
		}
		description, _ := item["description"].(string)
		parameters, _ := item["parameters"].(map[string]any)
		if parameters == nil {
			parameters = map[string]any{}
		}
		tools = append(tools, domain.ToolDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		})
	}
	return tools, nil
}

// remainingMetadata returns meta when it still holds unconsumed keys, nil
// otherwise, so empty metadata does not persist as an empty mapping.
func remainingMetadata(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
