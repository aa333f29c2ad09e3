package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/kvollan/ridgeline/internal/pipeline"
	"github.com/kvollan/ridgeline/internal/worker"
)

var (
	concurrency  int
	batchTimeout time.Duration
	requestsRate float64
	requestBurst int
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Ingest multiple article URLs from a file in parallel",
	Long: `Batch reads URLs from a file (one per line, # comments allowed) and
ingests them concurrently. Requests are rate-limited per domain so one
outlet is never hammered. All URLs feed the same cluster arena, so
duplicate coverage across the file collapses into shared clusters.

Example:
  ridgeline batch urls.txt
  ridgeline batch urls.txt --concurrency 8 --rate 2
  ridgeline batch urls.txt --store sqlite --store-path incidents.db`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for the batch")
	batchCmd.Flags().Float64Var(&requestsRate, "rate", 1, "max requests per second per domain")
	batchCmd.Flags().IntVar(&requestBurst, "burst", 2, "per-domain request burst")

	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the fetch cache (force fresh fetch)")
	batchCmd.Flags().BoolVar(&noRobots, "no-robots", false, "skip robots.txt checks")
	batchCmd.Flags().BoolVar(&geoEnabled, "geo", false, "resolve location names to coordinates")
	batchCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM fallback provider (openai, anthropic, ollama)")
	batchCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
	batchCmd.Flags().StringVar(&storeDriver, "store", "", "store driver (memory, sqlite)")
	batchCmd.Flags().StringVar(&storePath, "store-path", "", "sqlite database path")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg := baseConfig()
	cfg.Cache.Enabled = !noCache
	if noRobots {
		cfg.HTTP.RespectRobots = false
	}
	if geoEnabled {
		cfg.Geo.Enabled = true
	}
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if storeDriver != "" {
		cfg.Store.Driver = storeDriver
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	cfg.Concurrency.Workers = concurrency
	cfg.Concurrency.RequestsPerSecond = requestsRate
	cfg.Concurrency.Burst = requestBurst
	if err := resolveAPIKey(cfg); err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	p, err := pipeline.New(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Reading URLs from %s\n", file)
	processor := worker.NewBatchProcessor(p, concurrency, requestsRate, requestBurst)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Processed %d URLs with %d workers\n\n", len(results), concurrency)

	renderer := pipeline.NewRenderer(verbose)
	ingested, skipped, failed := 0, 0, 0
	for _, result := range results {
		if result.Error != nil {
			if errors.Is(result.Error, pipeline.ErrRobotsDisallowed) {
				skipped++
				fmt.Fprintf(os.Stderr, "skipped (robots.txt): %s\n", result.URL)
				continue
			}
			failed++
			fmt.Fprintf(os.Stderr, "failed %s: %v\n", result.URL, result.Error)
			continue
		}
		ingested++
		fmt.Fprintf(os.Stderr, "%s\n", result.URL)
		renderer.RenderSummary(result.Outcome)
	}

	fmt.Fprintf(os.Stderr, "\nBatch complete: %d ingested, %d skipped, %d failed\n", ingested, skipped, failed)
	return nil
}
