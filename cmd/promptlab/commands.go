package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-promptlab/infrastructure/cache"
	"github.com/ahrav/go-promptlab/infrastructure/config"
	"github.com/ahrav/go-promptlab/infrastructure/llm"
	"github.com/ahrav/go-promptlab/infrastructure/metrics"
	"github.com/ahrav/go-promptlab/infrastructure/results"
	"github.com/ahrav/go-promptlab/internal/application"
	"github.com/ahrav/go-promptlab/internal/domain"
	"github.com/ahrav/go-promptlab/internal/ports"
)

// collector registers the Prometheus collectors once per process; the run
// command may be reached more than once in tests and the default
// registerer rejects duplicate registration.
var collector = sync.OnceValue(func() *metrics.PrometheusCollector {
	return metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
})

// cacheOrNil avoids handing the runner a typed-nil interface, which would
// defeat its cache-disabled check.
func cacheOrNil(store *cache.FileCache) ports.CacheStore {
	if store == nil {
		return nil
	}
	return store
}

func buildRunCmd() *cobra.Command {
	var (
		models      []string
		allVariants bool
		noCache     bool
		quiet       bool
		concurrency int
		timeout     time.Duration
		rps         float64
	)

	cmd := &cobra.Command{
		Use:   "run <path>",
		Short: "Run a prompt experiment",
		Long: `Run every task of a variant, or of a whole experiment with --all:
each input case times its repetition count times each model, concurrently,
with every response scored by the configured judge. Results are persisted
under <variant>/results/<timestamp>/.

--all is implied when <path> is an experiment directory rather than a
variant directory.`,
		Example: `  # Run one variant
  promptlab run experiments/summarization/control

  # Run every variant of an experiment against a single model
  promptlab run experiments/summarization --all --model openai:gpt-4o-mini`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("path not found: %s", path)
			}
			if !allVariants && isExperimentDir(path) {
				allVariants = true
			}

			return runExperiment(cmd, path, runSettings{
				models:      models,
				allVariants: allVariants,
				noCache:     noCache,
				quiet:       quiet,
				concurrency: concurrency,
				timeout:     timeout,
				rps:         rps,
			})
		},
	}

	cmd.Flags().StringArrayVarP(&models, "model", "m", nil,
		"Run only this model; repeatable (must be in the experiment config)")
	cmd.Flags().BoolVarP(&allVariants, "all", "a", false,
		"Run all variants in the experiment")
	cmd.Flags().BoolVar(&noCache, "no-cache", false,
		"Disable response caching")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false,
		"Suppress per-task progress output")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0,
		"Maximum concurrent tasks (0 = unbounded)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute,
		"Per-request provider timeout (0 = no timeout)")
	cmd.Flags().Float64Var(&rps, "rps", 0,
		"Provider requests per second (0 = unlimited)")

	return cmd
}

type runSettings struct {
	models      []string
	allVariants bool
	noCache     bool
	quiet       bool
	concurrency int
	timeout     time.Duration
	rps         float64
}

func runExperiment(cmd *cobra.Command, path string, s runSettings) error {
	loader := config.NewLoader()

	// key_refs lives in the shared experiment.md, so any variant sees it.
	keyRefs, err := experimentKeyRefs(loader, path, s.allVariants)
	if err != nil {
		return err
	}

	var store *cache.FileCache
	if !s.noCache {
		store = cache.NewFileCache("")
	}

	runner := application.NewRunExperiment(
		loader,
		results.NewFileRepository(),
		cacheOrNil(store),
		llm.EnvFactory(keyRefs, providerMiddleware(s)...),
		application.WithLogger(logger),
		application.WithMetrics(collector()),
		application.WithMaxConcurrency(s.concurrency),
	)

	var total int
	if s.allVariants {
		total, err = runner.CountExperimentTasks(path, s.models)
	} else {
		total, err = runner.CountTasks(path, s.models)
	}
	if err != nil {
		return err
	}

	done := 0
	opts := application.RunOptions{
		Models:  s.models,
		NoCache: s.noCache,
		OnProgress: func() {
			done++
			if !s.quiet {
				fmt.Fprintf(os.Stderr, "\r%d/%d tasks", done, total)
			}
		},
	}

	var summaries []*domain.RunSummary
	if s.allVariants {
		summaries, err = runner.RunAllVariants(cmd.Context(), path, opts)
	} else {
		var summary *domain.RunSummary
		summary, err = runner.RunVariant(cmd.Context(), path, opts)
		summaries = []*domain.RunSummary{summary}
	}
	if !s.quiet && done > 0 {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	if s.allVariants && len(summaries) > 0 {
		displayHypothesis(os.Stdout, summaries[0].Hypothesis)
	}
	for _, summary := range summaries {
		displayRunComplete(os.Stdout, summary, !s.allVariants)
	}
	return nil
}

func buildResultsCmd() *cobra.Command {
	var runTimestamp string

	cmd := &cobra.Command{
		Use:   "results <path>",
		Short: "Show the results table for a variant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := results.NewFileRepository().Load(args[0], runTimestamp)
			if err != nil {
				return err
			}
			displayResultsTable(os.Stdout, summary)
			return nil
		},
	}

	cmd.Flags().StringVarP(&runTimestamp, "run", "r", "",
		"Specific run timestamp (default: latest)")
	return cmd
}

func buildCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <path>",
		Short: "Compare latest results across an experiment's variants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variants, err := config.NewLoader().DiscoverVariants(args[0])
			if err != nil {
				return err
			}

			repo := results.NewFileRepository()
			var named []domain.NamedSummary
			for _, variant := range variants {
				summary, err := repo.Load(variant, "")
				if err != nil {
					logger.Warn("skipping variant with no results", "variant", filepath.Base(variant))
					continue
				}
				named = append(named, domain.NamedSummary{
					Name:    filepath.Base(variant),
					Summary: *summary,
				})
			}
			if len(named) == 0 {
				return fmt.Errorf("%w under %s", domain.ErrNoResults, args[0])
			}

			displayCompareTable(os.Stdout, named, domain.CompareVariantsSignificance(named))
			return nil
		},
	}
}

func buildShowCmd() *cobra.Command {
	var (
		inputID      string
		model        string
		runTimestamp string
	)

	cmd := &cobra.Command{
		Use:   "show <path>",
		Short: "Show detailed responses for a variant run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := results.NewFileRepository().Load(args[0], runTimestamp)
			if err != nil {
				return err
			}
			return displayResponses(os.Stdout, summary, inputID, model)
		},
	}

	cmd.Flags().StringVarP(&inputID, "input", "i", "", "Filter by input ID")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Filter by model")
	cmd.Flags().StringVarP(&runTimestamp, "run", "r", "", "Specific run timestamp (default: latest)")
	return cmd
}

func buildCleanCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clean <path>",
		Short: "Remove stored results for a variant or experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			targets := []string{path}
			if isExperimentDir(path) {
				variants, err := config.NewLoader().DiscoverVariants(path)
				if err != nil {
					return err
				}
				targets = variants
			}

			if !yes && !confirm(fmt.Sprintf("Remove all results under %s?", path)) {
				fmt.Println("Aborted.")
				return nil
			}

			repo := results.NewFileRepository()
			for _, target := range targets {
				if err := repo.Clean(target); err != nil {
					return err
				}
			}
			fmt.Println("Results removed.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func buildCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Cache management commands",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear all cached responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cache.NewFileCache("").Clear(); err != nil {
				return err
			}
			fmt.Println("Cache cleared.")
			return nil
		},
	})

	return cacheCmd
}

func buildInitCmd() *cobra.Command {
	var (
		name     string
		models   []string
		variants []string
		runs     int
	)

	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Scaffold a new experiment directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := config.WriteExperiment(args[0], config.Scaffold{
				Name:     name,
				Models:   models,
				Variants: variants,
				Runs:     runs,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Experiment scaffolded at %s. Edit prompt.md in each variant, then run:\n", args[0])
			fmt.Printf("  promptlab run %s --all\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Experiment name (default: directory name)")
	cmd.Flags().StringArrayVarP(&models, "model", "m", nil, "Model to test against; repeatable")
	cmd.Flags().StringArrayVar(&variants, "variant", nil, "Variant name to create; repeatable")
	cmd.Flags().IntVar(&runs, "runs", 0, "Repetitions per input case")
	return cmd
}

// providerMiddleware builds the chain every provider call passes through:
// tracing outermost, then the optional rate limiter, then per-call
// metrics, with the request timeout innermost so the deadline covers only
// the call itself.
func providerMiddleware(s runSettings) []llm.Middleware {
	chain := []llm.Middleware{llm.TracingMiddleware()}
	if s.rps > 0 {
		burst := int(s.rps)
		if burst < 1 {
			burst = 1
		}
		chain = append(chain, llm.RateLimitMiddleware(s.rps, burst))
	}
	chain = append(chain, llm.MetricsMiddleware(collector()))
	if s.timeout > 0 {
		chain = append(chain, llm.TimeoutMiddleware(s.timeout))
	}
	return chain
}

// isExperimentDir reports whether path holds an experiment.md but no
// prompt.md, i.e. it is an experiment root rather than a variant.
func isExperimentDir(path string) bool {
	if _, err := os.Stat(filepath.Join(path, "prompt.md")); err == nil {
		return false
	}
	_, err := os.Stat(filepath.Join(path, "experiment.md"))
	return err == nil
}

// experimentKeyRefs resolves the experiment's key_refs mapping by loading
// one variant.
func experimentKeyRefs(loader *config.Loader, path string, allVariants bool) (map[string]string, error) {
	variantPath := path
	if allVariants {
		variants, err := loader.DiscoverVariants(path)
		if err != nil {
			return nil, err
		}
		variantPath = variants[0]
	}

	cfg, err := loader.LoadVariant(variantPath)
	if err != nil {
		return nil, err
	}
	return cfg.Experiment.KeyRefs, nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
