package domain

import "errors"

// Common domain errors surfaced by the run engine and judge evaluator.
// They are always fatal to the current invocation; nothing retries them.
var (
	// ErrInvalidModelID indicates a model id without a "provider:model"
	// separator.
	ErrInvalidModelID = errors.New("invalid model id")

	// ErrModelNotConfigured indicates an override model that is not in the
	// variant's declared model list.
	ErrModelNotConfigured = errors.New("model not in experiment config")

	// ErrJudgeScore indicates a judge response whose score field is
	// missing, non-integer, or outside the configured range.
	ErrJudgeScore = errors.New("invalid judge score")

	// ErrNoVariants indicates an experiment directory with no variant
	// subdirectories.
	ErrNoVariants = errors.New("no variants found")

	// ErrNoResults indicates a variant directory with no persisted runs.
	ErrNoResults = errors.New("no results found")
)
