package cluster

import (
	"context"
	"time"

	"github.com/kvollan/ridgeline/internal/model"
)

// Filter narrows List results. The zero value returns every cluster except
// those held for review and those absorbed by a merge; set the Include
// flags to widen.
type Filter struct {
	Statuses     []model.ClusterStatus
	Jurisdiction string

	// From/To bound the canonical date_of_death (falling back to the
	// event start date), inclusive.
	From *time.Time
	To   *time.Time

	IncludeNeedsReview bool
	IncludeMerged      bool
}

// Matches reports whether a cluster passes the filter.
func (f Filter) Matches(c *model.Cluster) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if c.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	} else {
		if c.Status == model.StatusNeedsReview && !f.IncludeNeedsReview {
			return false
		}
		if c.Status == model.StatusMerged && !f.IncludeMerged {
			return false
		}
	}

	if f.Jurisdiction != "" {
		fv, ok := c.Canonical[model.FieldJurisdiction]
		if !ok || fv.Value != f.Jurisdiction {
			return false
		}
	}

	if f.From != nil || f.To != nil {
		date, ok := c.CanonicalDate(model.FieldDateOfDeath)
		if !ok {
			date, ok = c.CanonicalDate(model.FieldDateEventStart)
		}
		if !ok {
			return false
		}
		if f.From != nil && date.Before(*f.From) {
			return false
		}
		if f.To != nil && date.After(*f.To) {
			return false
		}
	}

	return true
}

// Store is the persistence interface for clusters.
type Store interface {
	// Get retrieves a cluster by ID.
	Get(ctx context.Context, id string) (*model.Cluster, bool, error)

	// GetByURLKey retrieves the cluster holding a document with the given
	// URL key.
	GetByURLKey(ctx context.Context, urlKey string) (*model.Cluster, bool, error)

	// Put upserts a cluster.
	Put(ctx context.Context, c *model.Cluster) error

	// List returns clusters passing the filter, ordered by creation.
	List(ctx context.Context, f Filter) ([]*model.Cluster, error)

	// Load returns every cluster, merged ones included, for rebuilding
	// in-memory state.
	Load(ctx context.Context) ([]*model.Cluster, error)
}
