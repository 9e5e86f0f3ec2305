package application

import "fmt"

// chainOfThoughtPrefix is prepended to the rubric when chain-of-thought
// evaluation is enabled.
const chainOfThoughtPrefix = `Evaluate the response below step by step before assigning a score.

First, work through the evaluation criteria one at a time and note how well the response satisfies each. Then weigh your observations against each other. Only after completing this analysis, decide on a final score.`

// judgeSuffix returns the instruction block appended after the rubric,
// telling the judge to emit a machine-parseable verdict within the
// configured score range.
func judgeSuffix(scoreMin, scoreMax int) string {
	return fmt.Sprintf(`You must respond with a JSON object containing exactly these fields:
- "score": an integer from %d to %d (inclusive)
- "reasoning": a concise explanation of why you assigned this score

Respond with only the JSON object, no other text.`, scoreMin, scoreMax)
}

// buildJudgePrompt assembles the full instruction text sent to each judge
// model: optional chain-of-thought prefix, the rubric, and the scoring
// suffix, separated by blank lines.
func buildJudgePrompt(rubric string, scoreMin, scoreMax int, chainOfThought bool) string {
	suffix := judgeSuffix(scoreMin, scoreMax)
	if chainOfThought {
		return chainOfThoughtPrefix + "\n\n" + rubric + "\n\n" + suffix
	}
	return rubric + "\n\n" + suffix
}
