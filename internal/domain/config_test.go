package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelID(t *testing.T) {
	tests := []struct {
		name         string
		modelID      string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{
			name:         "simple id",
			modelID:      "openai:gpt-4o",
			wantProvider: "openai",
			wantModel:    "gpt-4o",
		},
		{
			name:         "model name containing colons",
			modelID:      "anthropic:claude:custom",
			wantProvider: "anthropic",
			wantModel:    "claude:custom",
		},
		{
			name:    "missing separator",
			modelID: "gpt-4o",
			wantErr: true,
		},
		{
			name:    "empty string",
			modelID: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, model, err := ParseModelID(tt.modelID)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidModelID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, provider)
			assert.Equal(t, tt.wantModel, model)
		})
	}
}

func TestInputCaseEffectiveRuns(t *testing.T) {
	override := 3

	assert.Equal(t, 5, InputCase{ID: "a"}.EffectiveRuns(5))
	assert.Equal(t, 3, InputCase{ID: "a", Runs: &override}.EffectiveRuns(5))
}

func TestJudgeConfigJudgeModels(t *testing.T) {
	single := JudgeConfig{Model: "openai:gpt-4o"}
	assert.Equal(t, []string{"openai:gpt-4o"}, single.JudgeModels())
	assert.False(t, single.IsMultiJudge())

	multi := JudgeConfig{
		Model:  "openai:gpt-4o",
		Models: []string{"openai:gpt-4o-mini", "anthropic:claude-sonnet-4-0"},
	}
	assert.Equal(t, []string{"openai:gpt-4o-mini", "anthropic:claude-sonnet-4-0"}, multi.JudgeModels())
	assert.True(t, multi.IsMultiJudge())

	// A one-element Models list behaves like single-judge mode.
	one := JudgeConfig{Model: "openai:gpt-4o", Models: []string{"openai:gpt-4o-mini"}}
	assert.Equal(t, []string{"openai:gpt-4o-mini"}, one.JudgeModels())
	assert.False(t, one.IsMultiJudge())
}

func TestVariantConfigModels(t *testing.T) {
	vc := VariantConfig{
		Experiment: ExperimentConfig{Models: []string{"openai:gpt-4o"}},
	}
	assert.Equal(t, []string{"openai:gpt-4o"}, vc.Models())

	vc.Prompt.Models = []string{"anthropic:claude-sonnet-4-0"}
	assert.Equal(t, []string{"anthropic:claude-sonnet-4-0"}, vc.Models())
}

func TestVariantConfigName(t *testing.T) {
	assert.Equal(t, "baseline", VariantConfig{Path: "/tmp/exp/baseline"}.Name())
	assert.Equal(t, "baseline", VariantConfig{Path: "/tmp/exp/baseline/"}.Name())
	assert.Equal(t, "baseline", VariantConfig{Path: "baseline"}.Name())
}

func TestRunSummaryScores(t *testing.T) {
	summary := RunSummary{
		Results: []RunResult{
			{Judge: JudgeSnapshot{Score: 7}},
			{Judge: JudgeSnapshot{Score: 9}},
		},
	}
	assert.Equal(t, []int{7, 9}, summary.Scores())
	assert.Empty(t, RunSummary{}.Scores())
}
