package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kvollan/ridgeline/internal/cluster"
	"github.com/kvollan/ridgeline/internal/model"
)

var (
	listStatus       string
	listJurisdiction string
	listFrom         string
	listTo           string
	listAll          bool
	listJSON         bool
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored incident clusters",
	Long: `List prints stored clusters. Clusters held for review and clusters
absorbed by a merge are hidden unless asked for explicitly.

Example:
  ridgeline list --store sqlite
  ridgeline list --status needs_review
  ridgeline list --jurisdiction BC --from 2024-06-01 --to 2024-06-30`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (open, validated, needs_review, merged)")
	listCmd.Flags().StringVar(&listJurisdiction, "jurisdiction", "", "filter by jurisdiction (BC, AB, WA)")
	listCmd.Flags().StringVar(&listFrom, "from", "", "earliest incident date (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&listTo, "to", "", "latest incident date (YYYY-MM-DD)")
	listCmd.Flags().BoolVar(&listAll, "all", false, "include held and merged clusters")
	listCmd.Flags().BoolVar(&listJSON, "output-json", false, "print clusters as JSON")
	listCmd.Flags().StringVar(&storeDriver, "store", "", "store driver (memory, sqlite)")
	listCmd.Flags().StringVar(&storePath, "store-path", "", "sqlite database path")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg := baseConfig()
	if storeDriver != "" {
		cfg.Store.Driver = storeDriver
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	filter := cluster.Filter{
		Jurisdiction:       listJurisdiction,
		IncludeNeedsReview: listAll,
		IncludeMerged:      listAll,
	}
	if listStatus != "" {
		filter.Statuses = []model.ClusterStatus{model.ClusterStatus(listStatus)}
	}
	if listFrom != "" {
		t, err := time.Parse(model.DateLayout, listFrom)
		if err != nil {
			return fmt.Errorf("parse --from: %w", err)
		}
		filter.From = &t
	}
	if listTo != "" {
		t, err := time.Parse(model.DateLayout, listTo)
		if err != nil {
			return fmt.Errorf("parse --to: %w", err)
		}
		filter.To = &t
	}

	clusters, err := store.List(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("list clusters: %w", err)
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(clusters)
	}

	for _, c := range clusters {
		date := "?"
		if t, ok := c.CanonicalDate(model.FieldDateOfDeath); ok {
			date = t.Format(model.DateLayout)
		} else if t, ok := c.CanonicalDate(model.FieldDateEventStart); ok {
			date = t.Format(model.DateLayout)
		}
		jurisdiction := "?"
		if fv, ok := c.Canonical[model.FieldJurisdiction]; ok {
			jurisdiction = fv.Value
		}
		location := "?"
		if fv, ok := c.Canonical[model.FieldLocationName]; ok {
			location = fv.Value
		}
		fmt.Printf("%s  %-12s %s  %s  %s  members=%d  confidence=%.2f\n",
			c.ID, c.Status, date, jurisdiction, location, len(c.Members), c.Overall)
	}
	if len(clusters) == 0 {
		fmt.Fprintln(os.Stderr, "No clusters matched.")
	}
	return nil
}
