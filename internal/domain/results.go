package domain

// ResponseSnapshot is the persisted subset of a ProviderResponse carried
// inside a RunResult. The full raw payload is deliberately dropped to keep
// result files compact.
type ResponseSnapshot struct {
	Content   string     `json:"content" yaml:"content"`
	ToolCalls []ToolCall `json:"tool_calls" yaml:"tool_calls"`
}

// JudgeSnapshot is the persisted subset of a JudgeResult carried inside a
// RunResult.
type JudgeSnapshot struct {
	Score     int    `json:"score" yaml:"score"`
	Reasoning string `json:"reasoning" yaml:"reasoning"`
}

// RunResult is the outcome of one completed task: one (input case, model,
// run number) combination. Immutable once produced. Ordering among results
// within a summary follows concurrent completion order and is not
// guaranteed; persistence derives stable filenames from the identifying
// fields instead.
type RunResult struct {
	// InputID identifies the input case.
	InputID string `json:"input_id"`

	// Model is the fully-qualified "provider:model" id.
	Model string `json:"model"`

	// RunNumber is 1-based within the case's repetitions.
	RunNumber int `json:"run_number"`

	// Cached reports whether the response came from the cache rather than
	// a live provider call.
	Cached bool `json:"cached"`

	LatencyMS    int `json:"latency_ms"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	Response ResponseSnapshot `json:"response"`
	Judge    JudgeSnapshot    `json:"judge"`
}

// InputStats holds descriptive statistics for one (input id, model) group
// of run results.
type InputStats struct {
	InputID string `json:"input_id" yaml:"input_id"`
	Model   string `json:"model" yaml:"model"`

	// Runs is the sample count for the group.
	Runs int `json:"runs" yaml:"runs"`

	// Scores lists the raw judge scores in the group.
	Scores []int `json:"scores" yaml:"scores"`

	// Mean and StdDev are rounded to 2 decimal places. StdDev is exactly 0
	// when Runs == 1.
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"stddev" yaml:"stddev"`

	MinScore int `json:"min_score" yaml:"min_score"`
	MaxScore int `json:"max_score" yaml:"max_score"`

	// CILower and CIUpper bound the two-sided 95% confidence interval for
	// the mean. Both equal Mean when Runs < 2.
	CILower float64 `json:"ci_lower" yaml:"ci_lower"`
	CIUpper float64 `json:"ci_upper" yaml:"ci_upper"`
}

// RunSummary is the top-level output of one variant execution.
// It is assembled once, persisted by the result repository, and never
// mutated afterwards.
type RunSummary struct {
	// Timestamp identifies the run directory on disk
	// (format "2006-01-02T15-04-05").
	Timestamp string `json:"timestamp" yaml:"timestamp"`

	// ExecutionID is a unique id for this invocation, for log correlation.
	ExecutionID string `json:"execution_id" yaml:"execution_id"`

	Experiment string   `json:"experiment" yaml:"experiment"`
	Variant    string   `json:"variant" yaml:"variant"`
	Models     []string `json:"models" yaml:"models"`

	InputsCount  int `json:"inputs_count" yaml:"inputs_count"`
	RunsPerInput int `json:"runs_per_input" yaml:"runs_per_input"`

	DurationSeconds float64 `json:"duration_seconds" yaml:"duration_seconds"`

	// CachedResponses counts results served from the cache.
	CachedResponses int `json:"cached_responses" yaml:"cached_responses"`

	Hypothesis string `json:"hypothesis,omitempty" yaml:"hypothesis,omitempty"`

	Results []RunResult  `json:"results" yaml:"-"`
	Stats   []InputStats `json:"stats" yaml:"-"`
}

// Scores returns every judge score in the summary, in result order.
func (rs RunSummary) Scores() []int {
	scores := make([]int, 0, len(rs.Results))
	for _, r := range rs.Results {
		scores = append(scores, r.Judge.Score)
	}
	return scores
}

// SignificanceResult reports a Welch's t-test between two named variants'
// pooled judge scores.
type SignificanceResult struct {
	Variant1 string  `json:"variant1"`
	Variant2 string  `json:"variant2"`
	Mean1    float64 `json:"mean1"`
	Mean2    float64 `json:"mean2"`

	// TStatistic is rounded to 3 decimal places. It is ±Inf when both
	// samples have zero variance but different means.
	TStatistic float64 `json:"t_statistic"`

	// PValue is a coarse table approximation, not an exact probability.
	PValue float64 `json:"p_value"`

	// Significant is true when PValue <= 0.05.
	Significant bool `json:"significant"`

	// Winner names the variant with the higher mean when the difference is
	// significant, otherwise it is empty.
	Winner string `json:"winner,omitempty"`
}
