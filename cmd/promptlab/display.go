package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/ahrav/go-promptlab/internal/domain"
)

// newTable builds a table writer with the formatting shared by every
// report.
func newTable(w io.Writer, headers []string) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleLight),
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

func displayHypothesis(w io.Writer, hypothesis string) {
	if hypothesis != "" {
		fmt.Fprintf(w, "\nHypothesis: %s\n", hypothesis)
	}
}

// displayRunComplete prints the post-run report: header line, optional
// hypothesis, and the per-(input, model) statistics table.
func displayRunComplete(w io.Writer, summary *domain.RunSummary, showHypothesis bool) {
	fmt.Fprintf(w, "\n%s/%s: %d results in %.2fs",
		summary.Experiment, summary.Variant, len(summary.Results), summary.DurationSeconds)
	if summary.CachedResponses > 0 {
		fmt.Fprintf(w, " (%d cached)", summary.CachedResponses)
	}
	fmt.Fprintln(w)

	if showHypothesis {
		displayHypothesis(w, summary.Hypothesis)
	}
	displayStats(w, summary.Stats)
}

func displayStats(w io.Writer, stats []domain.InputStats) {
	if len(stats) == 0 {
		return
	}

	table := newTable(w, []string{"Input", "Model", "Runs", "Mean", "StdDev", "95% CI", "Range"})
	for _, s := range stats {
		_ = table.Append([]string{
			s.InputID,
			s.Model,
			fmt.Sprintf("%d", s.Runs),
			fmt.Sprintf("%.2f", s.Mean),
			fmt.Sprintf("%.2f", s.StdDev),
			fmt.Sprintf("[%.2f, %.2f]", s.CILower, s.CIUpper),
			fmt.Sprintf("%d-%d", s.MinScore, s.MaxScore),
		})
	}
	_ = table.Render()
}

// displayResultsTable prints one row per task result.
func displayResultsTable(w io.Writer, summary *domain.RunSummary) {
	fmt.Fprintf(w, "%s/%s run %s\n", summary.Experiment, summary.Variant, summary.Timestamp)

	table := newTable(w, []string{"Input", "Run", "Model", "Score", "Latency", "Cached"})
	for _, r := range summary.Results {
		cached := ""
		if r.Cached {
			cached = "yes"
		}
		_ = table.Append([]string{
			r.InputID,
			fmt.Sprintf("%d", r.RunNumber),
			r.Model,
			fmt.Sprintf("%d", r.Judge.Score),
			fmt.Sprintf("%dms", r.LatencyMS),
			cached,
		})
	}
	_ = table.Render()

	displayStats(w, summary.Stats)
}

// displayCompareTable prints pooled per-variant scores and pairwise
// significance tests.
func displayCompareTable(w io.Writer, named []domain.NamedSummary, comparisons []domain.SignificanceResult) {
	table := newTable(w, []string{"Variant", "Run", "Results", "Mean Score"})
	for _, n := range named {
		scores := n.Summary.Scores()
		mean := 0.0
		if len(scores) > 0 {
			total := 0
			for _, s := range scores {
				total += s
			}
			mean = float64(total) / float64(len(scores))
		}
		_ = table.Append([]string{
			n.Name,
			n.Summary.Timestamp,
			fmt.Sprintf("%d", len(scores)),
			fmt.Sprintf("%.2f", mean),
		})
	}
	_ = table.Render()

	if len(comparisons) == 0 {
		return
	}

	fmt.Fprintln(w, "\nPairwise significance (Welch's t-test, table approximation):")
	sigTable := newTable(w, []string{"Pair", "t", "p", "Significant", "Winner"})
	for _, c := range comparisons {
		significant := "no"
		if c.Significant {
			significant = "yes"
		}
		_ = sigTable.Append([]string{
			fmt.Sprintf("%s vs %s", c.Variant1, c.Variant2),
			fmt.Sprintf("%.3f", c.TStatistic),
			fmt.Sprintf("%.2f", c.PValue),
			significant,
			c.Winner,
		})
	}
	_ = sigTable.Render()
}

// displayResponses prints full response content and judge verdicts,
// optionally filtered by input id and model.
func displayResponses(w io.Writer, summary *domain.RunSummary, inputID, model string) error {
	matched := make([]domain.RunResult, 0, len(summary.Results))
	for _, r := range summary.Results {
		if inputID != "" && r.InputID != inputID {
			continue
		}
		if model != "" && r.Model != model {
			continue
		}
		matched = append(matched, r)
	}
	if len(matched) == 0 {
		return fmt.Errorf("no responses match input=%q model=%q in run %s",
			inputID, model, summary.Timestamp)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].InputID != matched[j].InputID {
			return matched[i].InputID < matched[j].InputID
		}
		if matched[i].Model != matched[j].Model {
			return matched[i].Model < matched[j].Model
		}
		return matched[i].RunNumber < matched[j].RunNumber
	})

	for _, r := range matched {
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", 72))
		fmt.Fprintf(w, "input=%s model=%s run=%d score=%d\n\n", r.InputID, r.Model, r.RunNumber, r.Judge.Score)
		if r.Response.Content != "" {
			fmt.Fprintf(w, "%s\n\n", r.Response.Content)
		}
		for _, call := range r.Response.ToolCalls {
			fmt.Fprintf(w, "tool call: %s(%v)\n", call.Name, call.Arguments)
		}
		if r.Judge.Reasoning != "" {
			fmt.Fprintf(w, "judge: %s\n", r.Judge.Reasoning)
		}
	}
	return nil
}
