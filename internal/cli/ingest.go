package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kvollan/ridgeline/internal/pipeline"
)

var (
	outJSON     string
	timeout     time.Duration
	userAgent   string
	maxBytes    int64
	noCache     bool
	noRobots    bool
	insecureTLS bool
	geoEnabled  bool
	llmProvider string
	llmModel    string
	storeDriver string
	storePath   string
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <url>",
	Short: "Ingest a single article URL into the incident database",
	Long: `Ingest fetches one article, cleans it, extracts incident fields with
verbatim evidence, and routes the result into a new or existing cluster.

Example:
  ridgeline ingest https://example.com/news/avalanche-atwell
  ridgeline ingest https://example.com/news/story --json result.json
  ridgeline ingest https://example.com/news/story --llm-provider openai --llm-model gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&outJSON, "json", "", "write the ingest result as JSON (\"-\" for stdout)")

	// HTTP flags
	ingestCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall ingest timeout")
	ingestCmd.Flags().StringVar(&userAgent, "ua", "", "HTTP User-Agent override")
	ingestCmd.Flags().Int64Var(&maxBytes, "max-bytes", 2_000_000, "max response bytes to read")
	ingestCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the fetch cache (force fresh fetch)")
	ingestCmd.Flags().BoolVar(&noRobots, "no-robots", false, "skip robots.txt checks")
	ingestCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification")

	// Geocoding flag
	ingestCmd.Flags().BoolVar(&geoEnabled, "geo", false, "resolve location names to coordinates")

	// LLM flags
	ingestCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM fallback provider (openai, anthropic, ollama)")
	ingestCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")

	// Store flags
	ingestCmd.Flags().StringVar(&storeDriver, "store", "", "store driver (memory, sqlite)")
	ingestCmd.Flags().StringVar(&storePath, "store-path", "", "sqlite database path")
}

func ingestConfig() (*pipelineConfig, error) {
	cfg := baseConfig()
	cfg.HTTP.Timeout = timeout
	cfg.HTTP.MaxBodyBytes = maxBytes
	cfg.HTTP.InsecureTLS = insecureTLS
	if userAgent != "" {
		cfg.HTTP.UserAgent = userAgent
	}
	if noRobots {
		cfg.HTTP.RespectRobots = false
	}
	cfg.Cache.Enabled = !noCache
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
	if err := resolveAPIKey(cfg); err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	return &pipelineConfig{cfg: cfg, store: store, close: closeStore}, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	url := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pc, err := ingestConfig()
	if err != nil {
		return err
	}
	defer pc.close()

	if verbose {
		fmt.Fprintf(os.Stderr, "Ingesting: %s\n", url)
	}

	p, err := pipeline.New(ctx, pc.cfg, pc.store)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	res, err := p.IngestURL(ctx, url)
	if err != nil {
		if errors.Is(err, pipeline.ErrRobotsDisallowed) {
			fmt.Fprintf(os.Stderr, "Skipped (robots.txt): %s\n", url)
			return nil
		}
		return fmt.Errorf("ingest failed: %w", err)
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
