// Package memstore provides an in-memory implementation of cluster.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/kvollan/ridgeline/internal/cluster"
	"github.com/kvollan/ridgeline/internal/model"
)

// Store holds clusters in memory. Suitable for dev/testing and single runs.
type Store struct {
	mu       sync.RWMutex
	clusters map[string]*model.Cluster // cluster ID -> cluster
	byURLKey map[string]string         // member URL key -> cluster ID
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		clusters: make(map[string]*model.Cluster),
		byURLKey: make(map[string]string),
	}
}

// Get retrieves a cluster by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*model.Cluster, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clusters[id]
	if !ok {
		return nil, false, nil
	}
	return copyCluster(c), true, nil
}

// GetByURLKey retrieves the cluster holding a document with the given URL
// key. Returns a copy.
func (s *Store) GetByURLKey(_ context.Context, urlKey string) (*model.Cluster, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byURLKey[urlKey]
	if !ok {
		return nil, false, nil
	}
	c, ok := s.clusters[id]
	if !ok {
		return nil, false, nil
	}
	return copyCluster(c), true, nil
}

// Put stores a copy of the cluster.
func (s *Store) Put(_ context.Context, c *model.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyCluster(c)
	s.clusters[c.ID] = cp
	for _, m := range cp.Members {
		if m.Document != nil && c.Status != model.StatusMerged {
			s.byURLKey[m.Document.URLKey] = c.ID
		}
	}
	return nil
}

// List returns clusters passing the filter, ordered by creation sequence.
func (s *Store) List(_ context.Context, f cluster.Filter) ([]*model.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Cluster
	for _, c := range s.clusters {
		if f.Matches(c) {
			out = append(out, copyCluster(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Load returns every stored cluster, ordered by creation sequence.
func (s *Store) Load(_ context.Context) ([]*model.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Cluster, 0, len(s.clusters))
	for _, c := range s.clusters {
		out = append(out, copyCluster(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// copyCluster makes a shallow-plus-slices copy so callers cannot mutate
// stored state through returned pointers.
func copyCluster(c *model.Cluster) *model.Cluster {
	cp := *c
	cp.Members = append([]model.Member(nil), c.Members...)
	cp.SAR = append([]model.SARSegment(nil), c.SAR...)
	if c.Canonical != nil {
		cp.Canonical = make(map[string]model.FieldValue, len(c.Canonical))
		for k, v := range c.Canonical {
			cp.Canonical[k] = v
		}
	}
	if c.Coords != nil {
		coords := *c.Coords
		cp.Coords = &coords
	}
	if c.Report != nil {
		report := *c.Report
		report.Results = append([]model.RuleResult(nil), c.Report.Results...)
		cp.Report = &report
	}
	return &cp
}
