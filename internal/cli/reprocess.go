package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kvollan/ridgeline/internal/pipeline"
)

var reprocessTimeout time.Duration

// reprocessCmd represents the reprocess command
var reprocessCmd = &cobra.Command{
	Use:   "reprocess <cluster-id>",
	Short: "Rerun extraction, validation and routing for a stored cluster",
	Long: `Reprocess reruns the extraction orchestrator over every member
document of a cluster, re-elects canonical field values, revalidates and
routes the cluster again. Useful after rule or configuration changes.

Example:
  ridgeline reprocess 01J38D0Y3V9PZT5A --store sqlite`,
	Args: cobra.ExactArgs(1),
	RunE: runReprocess,
}

func init() {
	rootCmd.AddCommand(reprocessCmd)

	reprocessCmd.Flags().DurationVar(&reprocessTimeout, "timeout", 5*time.Minute, "reprocess timeout")
	reprocessCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM fallback provider (openai, anthropic, ollama)")
	reprocessCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
	reprocessCmd.Flags().BoolVar(&geoEnabled, "geo", false, "resolve location names to coordinates")
	reprocessCmd.Flags().StringVar(&storeDriver, "store", "", "store driver (memory, sqlite)")
	reprocessCmd.Flags().StringVar(&storePath, "store-path", "", "sqlite database path")
	reprocessCmd.Flags().StringVar(&outJSON, "json", "", "write the result as JSON (\"-\" for stdout)")
}

func runReprocess(cmd *cobra.Command, args []string) error {
	clusterID := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), reprocessTimeout)
	defer cancel()

	cfg := baseConfig()
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if geoEnabled {
		cfg.Geo.Enabled = true
	}
	if storeDriver != "" {
		cfg.Store.Driver = storeDriver
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
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

	res, err := p.Reprocess(ctx, clusterID)
	if err != nil {
		return fmt.Errorf("reprocess failed: %w", err)
	}

	renderer := pipeline.NewRenderer(verbose)
	if outJSON != "" {
		if err := renderer.RenderJSON(res, outJSON); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
	}
	renderer.RenderSummary(res)
	return nil
}
