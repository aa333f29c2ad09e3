// Package review decides where a cluster goes after validation: published
// as validated, or held for a human. Status changes go through the router
// so illegal transitions cannot happen by accident.
package review

import (
	"fmt"

	"github.com/kvollan/ridgeline/internal/model"
)

// allowed lists the legal status transitions. merged is terminal.
var allowed = map[model.ClusterStatus][]model.ClusterStatus{
	model.StatusOpen:        {model.StatusValidated, model.StatusNeedsReview, model.StatusMerged},
	model.StatusNeedsReview: {model.StatusValidated, model.StatusOpen, model.StatusMerged},
	model.StatusValidated:   {model.StatusOpen, model.StatusMerged},
	model.StatusMerged:      {},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to model.ClusterStatus) bool {
	if from == to {
		return true
	}
	for _, t := range allowed[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Transition moves a cluster to a new status, rejecting illegal moves.
func Transition(c *model.Cluster, to model.ClusterStatus) error {
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s for cluster %s", c.Status, to, c.ID)
	}
	c.Status = to
	return nil
}

// Router routes clusters after validation.
type Router struct {
	threshold float64
}

// NewRouter creates a router gating on the overall-confidence threshold.
func NewRouter(threshold float64) *Router {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	return &Router{threshold: threshold}
}

// Route attaches the report and decides the cluster's status. Any rule
// failure or warning, low overall confidence, or an extra hold reason
// (merge conflicts, geocoding ambiguity) sends the cluster to review;
// otherwise it validates. Returns the reasons the cluster was held, empty
// when validated.
func (r *Router) Route(c *model.Cluster, report *model.ValidationReport, holdReasons ...string) ([]string, error) {
	c.Report = report

	reasons := append([]string(nil), holdReasons...)
	if report != nil {
		for _, res := range report.Results {
			if res.Outcome == model.OutcomeFail {
				reasons = append(reasons, fmt.Sprintf("rule %s failed: %s", res.Rule, res.Detail))
			}
		}
		for _, res := range report.Results {
			if res.Outcome == model.OutcomeWarn {
				reasons = append(reasons, fmt.Sprintf("rule %s warned: %s", res.Rule, res.Detail))
			}
		}
	}
	if c.Overall < r.threshold {
		reasons = append(reasons, fmt.Sprintf("overall confidence %.2f below %.2f", c.Overall, r.threshold))
	}

	to := model.StatusValidated
	if len(reasons) > 0 {
		to = model.StatusNeedsReview
	}
	if err := Transition(c, to); err != nil {
		return nil, err
	}
	return reasons, nil
}

// Approve resolves a held cluster as correct.
func Approve(c *model.Cluster) error {
	if c.Status != model.StatusNeedsReview {
		return fmt.Errorf("cluster %s is not awaiting review", c.ID)
	}
	return Transition(c, model.StatusValidated)
}

// Reopen sends a held cluster back for reprocessing. The stale report is
// dropped.
func Reopen(c *model.Cluster) error {
	if c.Status != model.StatusNeedsReview {
		return fmt.Errorf("cluster %s is not awaiting review", c.ID)
	}
	if err := Transition(c, model.StatusOpen); err != nil {
		return err
	}
	c.Report = nil
	return nil
}
