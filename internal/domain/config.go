// Package domain contains pure, dependency-free domain models and the
// statistics engine for the prompt experimentation system.
package domain

import (
	"fmt"
	"strings"
)

// DefaultRuns is the experiment-level repetition count applied when a
// configuration does not specify one.
const DefaultRuns = 5

// DefaultJudgeModel is used when a judge configuration omits its model.
const DefaultJudgeModel = "openai:gpt-4o"

// Default score range for judge configurations that omit one.
const (
	DefaultScoreMin = 1
	DefaultScoreMax = 10
)

// Aggregation methods for combining scores in multi-judge mode.
const (
	// AggregationMean averages the individual judge scores and rounds to
	// the nearest integer.
	AggregationMean = "mean"

	// AggregationMedian takes the median of the individual judge scores
	// and rounds to the nearest integer.
	AggregationMedian = "median"
)

// ExperimentConfig describes an experiment: a named collection of variants
// sharing models, inputs, and a judge, intended for comparison.
type ExperimentConfig struct {
	// Name is the human-readable experiment identifier.
	Name string `yaml:"name" validate:"required"`

	// Description explains what the experiment is testing.
	Description string `yaml:"description"`

	// Models lists the fully-qualified "provider:model" ids every variant
	// runs against by default. Must be non-empty.
	Models []string `yaml:"models" validate:"required,min=1,dive,required"`

	// Hypothesis is the operator's expectation, carried into run summaries.
	Hypothesis string `yaml:"hypothesis"`

	// Runs is the default repetition count per input case.
	Runs int `yaml:"runs" validate:"min=1"`

	// KeyRefs maps provider names to the environment variable holding that
	// provider's API key, overriding the provider defaults.
	KeyRefs map[string]string `yaml:"key_refs,omitempty" validate:"omitempty,dive,keys,required,endkeys,required"`

	// Metadata holds any extra frontmatter keys the loader did not consume.
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// PromptConfig is one concrete prompt under test.
// Content is a template rendered against each input case's data.
type PromptConfig struct {
	// Content is the prompt template source.
	Content string

	// SystemContent is the optional system prompt template source.
	SystemContent string

	// Models optionally narrows the experiment-level model list for this
	// variant only. Nil means "inherit from the experiment".
	Models []string

	// Metadata holds unconsumed frontmatter keys.
	Metadata map[string]any
}

// JudgeConfig describes how candidate responses are scored.
// A single judge model is the default; listing more than one model in
// Models opts into multi-judge aggregation.
type JudgeConfig struct {
	// Content is the scoring rubric presented to the judge model(s).
	Content string `validate:"required"`

	// Model is the judge model id used in single-judge mode.
	Model string `validate:"required"`

	// Models, when it holds more than one id, enables multi-judge mode.
	Models []string

	// Aggregation selects how multi-judge scores are combined.
	Aggregation string `validate:"oneof=mean median"`

	// ScoreMin and ScoreMax bound the integer score the judge must emit.
	ScoreMin int
	ScoreMax int `validate:"gtfield=ScoreMin"`

	// Temperature is passed to the judge model's structured completion.
	Temperature float64 `validate:"min=0,max=2"`

	// ChainOfThought prefixes the rubric with a reasoning instruction block.
	ChainOfThought bool

	// Metadata holds unconsumed frontmatter keys.
	Metadata map[string]any
}

// JudgeModels returns the ordered list of judge model ids.
// The result is never empty: single-judge configurations yield a
// one-element list containing Model.
func (jc JudgeConfig) JudgeModels() []string {
	if len(jc.Models) > 0 {
		return jc.Models
	}
	return []string{jc.Model}
}

// IsMultiJudge reports whether more than one judge model is configured.
func (jc JudgeConfig) IsMultiJudge() bool { return len(jc.Models) > 1 }

// InputCase is one parameterized test input applied to every variant/model
// combination.
type InputCase struct {
	// ID uniquely identifies the case within a variant. Never empty.
	ID string `yaml:"id" validate:"required"`

	// Data maps template variable names to values.
	Data map[string]any `yaml:"data"`

	// Runs overrides the experiment-level repetition count for this case
	// only. Nil means "use the experiment default".
	Runs *int `yaml:"runs,omitempty"`
}

// EffectiveRuns resolves the repetition count for this case given the
// experiment-level default.
func (ic InputCase) EffectiveRuns(experimentRuns int) int {
	if ic.Runs != nil {
		return *ic.Runs
	}
	return experimentRuns
}

// ToolDefinition declares a tool the model may call, in provider-neutral
// form. Parameters is a JSON-schema-shaped mapping.
type ToolDefinition struct {
	Name        string         `yaml:"name" validate:"required"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters"`
}

// VariantConfig is the immutable, fully-resolved configuration for one
// variant execution. Loaded once per run invocation and never mutated.
type VariantConfig struct {
	// Path is the variant directory on disk; its base name is the variant
	// name used in summaries.
	Path string

	Experiment ExperimentConfig
	Prompt     PromptConfig
	Judge      JudgeConfig
	Inputs     []InputCase
	Tools      []ToolDefinition
}

// Models returns the effective model list: the prompt-level override when
// present, otherwise the experiment-level list.
func (vc VariantConfig) Models() []string {
	if len(vc.Prompt.Models) > 0 {
		return vc.Prompt.Models
	}
	return vc.Experiment.Models
}

// Name returns the variant name derived from its directory.
func (vc VariantConfig) Name() string {
	p := strings.TrimRight(vc.Path, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// ParseModelID splits a fully-qualified model id of the form
// "provider:model" into its parts. The model portion may itself contain
// colons; only the first separator is significant.
func ParseModelID(modelID string) (provider, model string, err error) {
	before, after, found := strings.Cut(modelID, ":")
	if !found {
		return "", "", fmt.Errorf("%w: %q (expected format \"provider:model\")",
			ErrInvalidModelID, modelID)
	}
	return before, after, nil
}
