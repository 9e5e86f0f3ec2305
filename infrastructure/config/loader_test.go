package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-promptlab/internal/domain"
)

// writeExperimentTree lays out a minimal valid experiment with one variant
// and returns the variant path.
func writeExperimentTree(t *testing.T, files map[string]string) (experimentPath, variantPath string) {
	t.Helper()
	experimentPath = t.TempDir()
	variantPath = filepath.Join(experimentPath, "variant-a")
	require.NoError(t, os.MkdirAll(variantPath, 0o755))

	defaults := map[string]string{
		"experiment.md": `---
name: summarization
models:
  - openai:gpt-4o-mini
  - anthropic:claude-sonnet-4-0
runs: 3
hypothesis: Shorter prompts score higher.
---

Testing summarization prompts.
`,
		"judge.md": `---
model: openai:gpt-4o
---

Score the summary for faithfulness.
`,
		"inputs.yaml": `- id: short
  text: a brief article
- text: an unlabeled article
  runs: 1
`,
		"variant-a/prompt.md": `Summarize {{.text}} in two sentences.
`,
	}
	for name, content := range defaults {
		if override, ok := files[name]; ok {
			content = override
		}
		path := filepath.Join(experimentPath, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	for name, content := range files {
		if _, ok := defaults[name]; ok {
			continue
		}
		path := filepath.Join(experimentPath, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return experimentPath, variantPath
}

func TestLoadVariant_FullTree(t *testing.T) {
	_, variantPath := writeExperimentTree(t, nil)

	cfg, err := NewLoader().LoadVariant(variantPath)
	require.NoError(t, err)

	assert.Equal(t, "summarization", cfg.Experiment.Name)
	assert.Equal(t, "Testing summarization prompts.", cfg.Experiment.Description)
	assert.Equal(t, []string{"openai:gpt-4o-mini", "anthropic:claude-sonnet-4-0"}, cfg.Experiment.Models)
	assert.Equal(t, 3, cfg.Experiment.Runs)
	assert.Equal(t, "Shorter prompts score higher.", cfg.Experiment.Hypothesis)

	assert.Equal(t, "Summarize {{.text}} in two sentences.", cfg.Prompt.Content)
	assert.Empty(t, cfg.Prompt.SystemContent)
	assert.Nil(t, cfg.Prompt.Models)

	assert.Equal(t, "Score the summary for faithfulness.", cfg.Judge.Content)
	assert.Equal(t, "openai:gpt-4o", cfg.Judge.Model)
	assert.False(t, cfg.Judge.IsMultiJudge())

	require.Len(t, cfg.Inputs, 2)
	assert.Equal(t, "short", cfg.Inputs[0].ID)
	assert.Equal(t, map[string]any{"text": "a brief article"}, cfg.Inputs[0].Data)
	assert.Nil(t, cfg.Inputs[0].Runs)
	assert.Equal(t, "input-1", cfg.Inputs[1].ID)
	require.NotNil(t, cfg.Inputs[1].Runs)
	assert.Equal(t, 1, *cfg.Inputs[1].Runs)

	assert.Empty(t, cfg.Tools)
	assert.Equal(t, "variant-a", cfg.Name())
}

func TestLoadVariant_JudgeDefaults(t *testing.T) {
	_, variantPath := writeExperimentTree(t, map[string]string{
		"judge.md": "Score the summary.\n",
	})

	cfg, err := NewLoader().LoadVariant(variantPath)
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultJudgeModel, cfg.Judge.Model)
	assert.Equal(t, domain.DefaultScoreMin, cfg.Judge.ScoreMin)
	assert.Equal(t, domain.DefaultScoreMax, cfg.Judge.ScoreMax)
	assert.Equal(t, domain.AggregationMean, cfg.Judge.Aggregation)
	assert.Equal(t, 0.0, cfg.Judge.Temperature)
	assert.True(t, cfg.Judge.ChainOfThought)
}

func TestLoadVariant_MultiJudge(t *testing.T) {
	_, variantPath := writeExperimentTree(t, map[string]string{
		"judge.md": `---
models:
  - openai:gpt-4o
  - anthropic:claude-sonnet-4-0
  - google:gemini-2.0-flash
aggregation: median
score_range: [1, 5]
chain_of_thought: false
temperature: 0.2
---

Score the summary.
`,
	})

	cfg, err := NewLoader().LoadVariant(variantPath)
	require.NoError(t, err)

	assert.True(t, cfg.Judge.IsMultiJudge())
	assert.Len(t, cfg.Judge.JudgeModels(), 3)
	assert.Equal(t, domain.AggregationMedian, cfg.Judge.Aggregation)
	assert.Equal(t, 1, cfg.Judge.ScoreMin)
	assert.Equal(t, 5, cfg.Judge.ScoreMax)
	assert.False(t, cfg.Judge.ChainOfThought)
	assert.InDelta(t, 0.2, cfg.Judge.Temperature, 1e-9)
}

func TestLoadVariant_VariantOverridesExperimentJudge(t *testing.T) {
	_, variantPath := writeExperimentTree(t, map[string]string{
		"variant-a/judge.md": "Variant-specific rubric.\n",
	})

	cfg, err := NewLoader().LoadVariant(variantPath)
	require.NoError(t, err)
	assert.Equal(t, "Variant-specific rubric.", cfg.Judge.Content)
}

func TestLoadVariant_VariantInputsOverride(t *testing.T) {
	_, variantPath := writeExperimentTree(t, map[string]string{
		"variant-a/inputs.yaml": "- id: only\n  text: variant-local input\n",
	})

	cfg, err := NewLoader().LoadVariant(variantPath)
	require.NoError(t, err)
	require.Len(t, cfg.Inputs, 1)
	assert.Equal(t, "only", cfg.Inputs[0].ID)
}

func TestLoadVariant_MissingInputsFile(t *testing.T) {
	experimentPath, variantPath := writeExperimentTree(t, nil)
	require.NoError(t, os.Remove(filepath.Join(experimentPath, "inputs.yaml")))

	cfg, err := NewLoader().LoadVariant(variantPath)
	require.NoError(t, err)
	require.Len(t, cfg.Inputs, 1)
	assert.Equal(t, "default", cfg.Inputs[0].ID)
	assert.Empty(t, cfg.Inputs[0].Data)
}

func TestLoadVariant_SystemAndTools(t *testing.T) {
	_, variantPath := writeExperimentTree(t, map[string]string{
		"variant-a/system.md": "You are a careful summarizer.\n",
		"variant-a/tools.yaml": `- name: lookup
  description: Look up a term.
  parameters:
    type: object
    properties:
      term:
        type: string
`,
	})

	cfg, err := NewLoader().LoadVariant(variantPath)
	require.NoError(t, err)

	assert.Equal(t, "You are a careful summarizer.", cfg.Prompt.SystemContent)
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, "lookup", cfg.Tools[0].Name)
	assert.Equal(t, "object", cfg.Tools[0].Parameters["type"])
}

func TestLoadVariant_PromptModelOverride(t *testing.T) {
	_, variantPath := writeExperimentTree(t, map[string]string{
		"variant-a/prompt.md": `---
models:
  - openai:gpt-4o-mini
---

Summarize {{.text}}.
`,
	})

	cfg, err := NewLoader().LoadVariant(variantPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"openai:gpt-4o-mini"}, cfg.Models())
}

func TestLoadVariant_KeyRefs(t *testing.T) {
	_, variantPath := writeExperimentTree(t, map[string]string{
		"experiment.md": `---
name: keyed
models:
  - openai:gpt-4o-mini
key_refs:
  openai: STAGING_OPENAI_KEY
---
`,
	})

	cfg, err := NewLoader().LoadVariant(variantPath)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"openai": "STAGING_OPENAI_KEY"}, cfg.Experiment.KeyRefs)
}

func TestLoadVariant_UnknownKeysKeptAsMetadata(t *testing.T) {
	_, variantPath := writeExperimentTree(t, map[string]string{
		"experiment.md": `---
name: extra
models:
  - openai:gpt-4o-mini
owner: platform-team
---
`,
	})

	cfg, err := NewLoader().LoadVariant(variantPath)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"owner": "platform-team"}, cfg.Experiment.Metadata)
}

func TestLoadVariant_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T, experimentPath, variantPath string)
		wantErr string
	}{
		{
			name: "missing experiment.md",
			mutate: func(t *testing.T, experimentPath, variantPath string) {
				require.NoError(t, os.Remove(filepath.Join(experimentPath, "experiment.md")))
			},
			wantErr: "experiment.md",
		},
		{
			name: "missing prompt.md",
			mutate: func(t *testing.T, experimentPath, variantPath string) {
				require.NoError(t, os.Remove(filepath.Join(variantPath, "prompt.md")))
			},
			wantErr: "prompt.md",
		},
		{
			name: "missing judge.md",
			mutate: func(t *testing.T, experimentPath, variantPath string) {
				require.NoError(t, os.Remove(filepath.Join(experimentPath, "judge.md")))
			},
			wantErr: "judge.md",
		},
		{
			name: "no models",
			mutate: func(t *testing.T, experimentPath, variantPath string) {
				require.NoError(t, os.WriteFile(
					filepath.Join(experimentPath, "experiment.md"),
					[]byte("---\nname: broken\n---\n"), 0o644))
			},
			wantErr: "invalid experiment config",
		},
		{
			name: "bad aggregation",
			mutate: func(t *testing.T, experimentPath, variantPath string) {
				require.NoError(t, os.WriteFile(
					filepath.Join(experimentPath, "judge.md"),
					[]byte("---\naggregation: vote\n---\nRubric.\n"), 0o644))
			},
			wantErr: "invalid judge config",
		},
		{
			name: "inverted score range",
			mutate: func(t *testing.T, experimentPath, variantPath string) {
				require.NoError(t, os.WriteFile(
					filepath.Join(experimentPath, "judge.md"),
					[]byte("---\nscore_range: [10, 1]\n---\nRubric.\n"), 0o644))
			},
			wantErr: "invalid judge config",
		},
		{
			name: "tool without name",
			mutate: func(t *testing.T, experimentPath, variantPath string) {
				require.NoError(t, os.WriteFile(
					filepath.Join(variantPath, "tools.yaml"),
					[]byte("- description: nameless\n"), 0o644))
			},
			wantErr: "missing name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			experimentPath, variantPath := writeExperimentTree(t, nil)
			tt.mutate(t, experimentPath, variantPath)

			_, err := NewLoader().LoadVariant(variantPath)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDiscoverVariants(t *testing.T) {
	experimentPath, _ := writeExperimentTree(t, map[string]string{
		"variant-b/prompt.md": "Summarize {{.text}} briefly.\n",
	})
	// Directories without prompt.md are not variants.
	require.NoError(t, os.MkdirAll(filepath.Join(experimentPath, "results"), 0o755))

	variants, err := NewLoader().DiscoverVariants(experimentPath)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, filepath.Join(experimentPath, "variant-a"), variants[0])
	assert.Equal(t, filepath.Join(experimentPath, "variant-b"), variants[1])
}

func TestDiscoverVariants_Empty(t *testing.T) {
	_, err := NewLoader().DiscoverVariants(t.TempDir())
	assert.ErrorIs(t, err, domain.ErrNoVariants)
}
