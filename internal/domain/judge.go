package domain

// IndividualJudgeResult is one judge model's verdict on a candidate
// response.
type IndividualJudgeResult struct {
	// Model is the fully-qualified judge model id.
	Model string `json:"model"`

	// Score is an integer within the configured score range.
	Score int `json:"score"`

	// Reasoning is the judge's explanation for the score.
	Reasoning string `json:"reasoning"`

	// Raw is the parsed structured payload the judge returned.
	Raw map[string]any `json:"raw,omitempty"`
}

// JudgeResult is the final verdict for one candidate response.
// In single-judge mode it mirrors the sole individual result; in
// multi-judge mode Score is the aggregate and Reasoning concatenates the
// per-judge explanations.
type JudgeResult struct {
	// Score is the final integer score.
	Score int `json:"score"`

	// Reasoning is the sole judge's reasoning, or labeled per-judge blocks
	// in configuration order for multi-judge evaluations.
	Reasoning string `json:"reasoning"`

	// Raw records the sole judge's payload, or a compact summary of the
	// aggregation (method plus {model, score} pairs) for multi-judge runs.
	Raw map[string]any `json:"raw,omitempty"`

	// IndividualResults holds every judge's verdict in configuration order.
	IndividualResults []IndividualJudgeResult `json:"individual_results,omitempty"`
}

// IsMultiJudge reports whether this verdict aggregates more than one judge.
func (jr JudgeResult) IsMultiJudge() bool { return len(jr.IndividualResults) > 1 }
