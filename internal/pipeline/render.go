package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kvollan/ridgeline/internal/model"
)

// Renderer writes ingest results as JSON and a human summary.
type Renderer struct {
	verbose bool
}

// NewRenderer creates a renderer.
func NewRenderer(verbose bool) *Renderer {
	return &Renderer{verbose: verbose}
}

// RenderJSON writes the result to the given path, or stdout for "-".
func (r *Renderer) RenderJSON(res *Result, path string) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if r.verbose {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	}
	return nil
}

// RenderSummary prints a short status line per result to stderr.
func (r *Renderer) RenderSummary(res *Result) {
	fmt.Fprintf(os.Stderr, "cluster %s  status=%s  confidence=%.2f\n",
		res.ClusterID, res.Status, res.Overall)
	if res.Created {
		fmt.Fprintf(os.Stderr, "  new cluster\n")
	}
	for _, id := range res.MergedIDs {
		fmt.Fprintf(os.Stderr, "  absorbed %s\n", id)
	}
	for _, reason := range res.Reasons {
		fmt.Fprintf(os.Stderr, "  held: %s\n", reason)
	}
	if r.verbose && res.Report != nil {
		for _, rule := range res.Report.Results {
			if rule.Outcome == model.OutcomePass {
				continue
			}
			fmt.Fprintf(os.Stderr, "  %s %s: %s\n", rule.Outcome, rule.Rule, rule.Detail)
		}
	}
}
