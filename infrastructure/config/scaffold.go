package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Scaffold describes the experiment tree WriteExperiment produces.
// Zero-value fields fall back to a runnable starter layout.
type Scaffold struct {
	// Name is the experiment name. Defaults to the target directory name.
	Name string

	// Models lists the "provider:model" ids the experiment runs against.
	Models []string

	// Variants names the variant directories to create.
	Variants []string

	// Runs is the per-input repetition count written to experiment.md.
	Runs int
}

const scaffoldPrompt = `Summarize the following text in two sentences:

{{.text}}
`

const scaffoldJudge = `Score how faithful and concise the summary is.

A high score means the summary captures the key points of the source text
without adding claims it does not contain.
`

const scaffoldInputs = `- id: sample
  text: >
    The Go programming language makes it easy to build simple, reliable,
    and efficient software.
`

// WriteExperiment creates the standard experiment file tree at path:
// experiment.md, judge.md, inputs.yaml, and one prompt.md per variant.
// It refuses to touch a directory that already holds an experiment.
func WriteExperiment(path string, s Scaffold) error {
	if s.Name == "" {
		s.Name = filepath.Base(path)
	}
	if len(s.Models) == 0 {
		s.Models = []string{"openai:gpt-4o-mini"}
	}
	if len(s.Variants) == 0 {
		s.Variants = []string{"control", "variant-a"}
	}
	if s.Runs <= 0 {
		s.Runs = 1
	}

	if _, err := os.Stat(filepath.Join(path, experimentFile)); err == nil {
		return fmt.Errorf("experiment already exists at %s", path)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("creating experiment directory: %w", err)
	}

	var models strings.Builder
	for _, m := range s.Models {
		fmt.Fprintf(&models, "  - %s\n", m)
	}

	experiment := fmt.Sprintf(`---
name: %s
models:
%sruns: %d
hypothesis: ""
---

Describe what this experiment is testing.
`, s.Name, models.String(), s.Runs)

	files := map[string]string{
		filepath.Join(path, experimentFile): experiment,
		filepath.Join(path, judgeFile):      scaffoldJudge,
		filepath.Join(path, inputsFile):     scaffoldInputs,
	}
	for _, variant := range s.Variants {
		dir := filepath.Join(path, variant)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating variant directory %s: %w", dir, err)
		}
		files[filepath.Join(dir, promptFile)] = scaffoldPrompt
	}

	for file, content := range files {
		if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", file, err)
		}
	}
	return nil
}
