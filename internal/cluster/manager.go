// Package cluster groups extracted documents into incident clusters and
// elects one canonical field set per cluster. Matching is conservative: a
// missed duplicate can be re-clustered later, a wrong merge cannot be
// undone.
package cluster

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kvollan/ridgeline/internal/fingerprint"
	"github.com/kvollan/ridgeline/internal/geo"
	"github.com/kvollan/ridgeline/internal/model"
)

// Assignment is the result of routing one document.
type Assignment struct {
	// Cluster is the live cluster the document landed in.
	Cluster *model.Cluster

	// Created is true when the document started a new cluster.
	Created bool

	// MergedIDs lists clusters absorbed during this assignment.
	MergedIDs []string

	// Conflicts describes canonical disagreements surfaced by a merge.
	// A non-empty list means the cluster should be held for review.
	Conflicts []string
}

// conflictFields are the fields whose disagreement across merged clusters
// flags the result for review.
var conflictFields = []string{
	model.FieldNFatalities,
	model.FieldDateOfDeath,
	model.FieldJurisdiction,
}

// Manager holds the live cluster arena and routes documents into it.
type Manager struct {
	mu sync.Mutex

	cfg      model.ClusterConfig
	required []string
	weights  map[string]float64

	clusters map[string]*model.Cluster
	byURLKey map[string]string // url key -> cluster ID
	byDoc    map[string]string // document ID -> cluster ID
	seq      int
	docSeq   int

	now func() time.Time
}

// NewManager creates an empty cluster manager.
func NewManager(cfg model.ClusterConfig, extraction model.ExtractionConfig) *Manager {
	if cfg.NearDupBits <= 0 {
		cfg.NearDupBits = 3
	}
	if cfg.DateWindowDays <= 0 {
		cfg.DateWindowDays = 7
	}
	if cfg.RadiusKM <= 0 {
		cfg.RadiusKM = 5
	}
	if cfg.Tiebreak == "" {
		cfg.Tiebreak = model.TiebreakEarliestPublished
	}

	required := extraction.RequiredFields
	if len(required) == 0 {
		required = model.DefaultRequiredFields()
	}

	return &Manager{
		cfg:      cfg,
		required: required,
		weights:  extraction.Weights,
		clusters: make(map[string]*model.Cluster),
		byURLKey: make(map[string]string),
		byDoc:    make(map[string]string),
		seq:      1,
		docSeq:   1,
		now:      time.Now,
	}
}

// Restore loads previously persisted clusters into the arena. Sequence
// counters resume past the highest restored values.
func (m *Manager) Restore(clusters []*model.Cluster) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range clusters {
		m.clusters[c.ID] = c
		if c.Seq >= m.seq {
			m.seq = c.Seq + 1
		}
		for _, member := range c.Members {
			if member.Document == nil {
				continue
			}
			if c.Status != model.StatusMerged {
				m.byURLKey[member.Document.URLKey] = c.ID
				m.byDoc[member.Document.ID] = c.ID
			}
			if member.Document.Seq >= m.docSeq {
				m.docSeq = member.Document.Seq + 1
			}
		}
	}
}

// Resolve follows merge pointers from id to the live cluster.
func (m *Manager) Resolve(id string) (*model.Cluster, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.resolveLocked(id)
	return c, ok
}

func (m *Manager) resolveLocked(id string) (*model.Cluster, bool) {
	seen := make(map[string]bool)
	for {
		c, ok := m.clusters[id]
		if !ok {
			return nil, false
		}
		if c.Status != model.StatusMerged || c.MergedInto == "" {
			return c, true
		}
		if seen[id] {
			return nil, false
		}
		seen[id] = true
		id = c.MergedInto
	}
}

// Get returns a cluster by ID without following merge pointers.
func (m *Manager) Get(id string) (*model.Cluster, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clusters[id]
	return c, ok
}

// All returns every cluster in the arena, merged ones included.
func (m *Manager) All() []*model.Cluster {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Cluster, 0, len(m.clusters))
	for _, c := range m.clusters {
		out = append(out, c)
	}
	return out
}

// SetRecords replaces member extraction records, keyed by member URL key,
// and re-elects canonical values. Members without a replacement keep their
// existing record. The cached validation report is invalidated.
func (m *Manager) SetRecords(id string, recs map[string]*model.CandidateRecord) (*model.Cluster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.resolveLocked(id)
	if !ok {
		return nil, fmt.Errorf("cluster %s not found", id)
	}
	for i := range c.Members {
		if rec, ok := recs[c.Members[i].Document.URLKey]; ok && rec != nil {
			c.Members[i].Record = rec
		}
	}
	electCanonical(c, m.cfg.Tiebreak, m.required, m.weights)
	c.Report = nil
	return c, nil
}

// Update resolves id and runs fn over the live cluster while holding the
// manager lock, so reading canonical state, changing status and persisting
// stay in the same critical section as assignment. If the cluster was
// merged in the meantime, fn runs on the merge target.
func (m *Manager) Update(id string, fn func(*model.Cluster) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.resolveLocked(id)
	if !ok {
		return fmt.Errorf("cluster %s not found", id)
	}
	return fn(c)
}

// Assign routes a document and its extraction result into a cluster,
// creating or merging clusters as needed. The target's validation report
// is invalidated because canonical values may have changed.
func (m *Manager) Assign(doc *model.Document, rec *model.CandidateRecord) (*Assignment, error) {
	if doc == nil || rec == nil {
		return nil, fmt.Errorf("assign: document and record are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if doc.Seq == 0 {
		doc.Seq = m.docSeq
		m.docSeq++
	}

	matches := m.matchLocked(doc, rec)
	sort.Slice(matches, func(i, j int) bool { return matches[i].Seq < matches[j].Seq })

	var target *model.Cluster
	created := false
	if len(matches) == 0 {
		target = m.newClusterLocked()
		created = true
	} else {
		// Merge flows into the earliest-created cluster.
		target = matches[0]
	}

	var mergedIDs []string
	var conflicts []string
	for _, c := range matches {
		if c.ID == target.ID {
			continue
		}
		conflicts = append(conflicts, canonicalConflicts(target, c)...)
		m.absorbLocked(target, c)
		mergedIDs = append(mergedIDs, c.ID)
	}

	m.addMemberLocked(target, doc, rec)

	electCanonical(target, m.cfg.Tiebreak, m.required, m.weights)
	target.Report = nil

	return &Assignment{
		Cluster:   target,
		Created:   created,
		MergedIDs: mergedIDs,
		Conflicts: conflicts,
	}, nil
}

// matchLocked finds every live cluster the document belongs to.
func (m *Manager) matchLocked(doc *model.Document, rec *model.CandidateRecord) []*model.Cluster {
	seen := make(map[string]bool)
	var matches []*model.Cluster

	add := func(c *model.Cluster) {
		if c != nil && !seen[c.ID] {
			seen[c.ID] = true
			matches = append(matches, c)
		}
	}

	// Same URL key is always the same story.
	if id, ok := m.byURLKey[doc.URLKey]; ok {
		if c, ok := m.resolveLocked(id); ok {
			add(c)
		}
	}

	for _, c := range m.clusters {
		if c.Status == model.StatusMerged || seen[c.ID] {
			continue
		}
		if m.nearDuplicateLocked(c, doc) || m.spatioTemporalLocked(c, rec) {
			add(c)
		}
	}

	return matches
}

// nearDuplicateLocked reports whether the document's signature is within
// the Hamming threshold of any member's.
func (m *Manager) nearDuplicateLocked(c *model.Cluster, doc *model.Document) bool {
	if !doc.SignatureOK {
		return false
	}
	sig := fingerprint.Signature(doc.Signature)
	for _, member := range c.Members {
		if member.Document == nil || !member.Document.SignatureOK {
			continue
		}
		if fingerprint.NearDuplicate(sig, fingerprint.Signature(member.Document.Signature), m.cfg.NearDupBits) {
			return true
		}
	}
	return false
}

// spatioTemporalLocked matches on jurisdiction equality combined with
// event date proximity and place agreement. Both sides need a date and
// the same jurisdiction; place agreement means coordinates within the
// radius, or an identical location name when either side lacks
// coordinates.
func (m *Manager) spatioTemporalLocked(c *model.Cluster, rec *model.CandidateRecord) bool {
	recJur, jurOK := rec.Get(model.FieldJurisdiction)
	clusterJur, clusterJurOK := c.Canonical[model.FieldJurisdiction]
	if !jurOK || !clusterJurOK || recJur.Value != clusterJur.Value {
		return false
	}

	recDate, ok := recordEventDate(rec)
	if !ok {
		return false
	}
	clusterDate, ok := c.CanonicalDate(model.FieldDateOfDeath)
	if !ok {
		clusterDate, ok = c.CanonicalDate(model.FieldDateEventStart)
	}
	if !ok {
		return false
	}

	window := time.Duration(m.cfg.DateWindowDays) * 24 * time.Hour
	diff := recDate.Sub(clusterDate)
	if diff < 0 {
		diff = -diff
	}
	if diff > window {
		return false
	}

	if rec.Coords != nil && c.Coords != nil {
		return geo.DistanceKM(*rec.Coords, *c.Coords) <= m.cfg.RadiusKM
	}

	recLoc, _ := rec.Get(model.FieldLocationName)
	clusterLoc, locOK := c.Canonical[model.FieldLocationName]
	return locOK && recLoc.Value != "" && recLoc.Value == clusterLoc.Value
}

func recordEventDate(rec *model.CandidateRecord) (time.Time, bool) {
	if t, ok := rec.Date(model.FieldDateOfDeath); ok {
		return t, true
	}
	return rec.Date(model.FieldDateEventStart)
}

// canonicalConflicts lists hard fields on which two clusters disagree.
func canonicalConflicts(a, b *model.Cluster) []string {
	var out []string
	for _, field := range conflictFields {
		av, aok := a.Canonical[field]
		bv, bok := b.Canonical[field]
		if aok && bok && av.Value != bv.Value {
			out = append(out, fmt.Sprintf("%s: %q vs %q", field, av.Value, bv.Value))
		}
	}
	return out
}

// absorbLocked merges src into dst. src keeps its members for provenance
// but is terminally marked merged.
func (m *Manager) absorbLocked(dst, src *model.Cluster) {
	dst.Members = append(dst.Members, src.Members...)
	for _, member := range src.Members {
		if member.Document == nil {
			continue
		}
		m.byURLKey[member.Document.URLKey] = dst.ID
		m.byDoc[member.Document.ID] = dst.ID
	}

	src.Status = model.StatusMerged
	src.MergedInto = dst.ID
	src.Report = nil
}

// addMemberLocked inserts the document, replacing the record of an
// existing member on reprocessing.
func (m *Manager) addMemberLocked(c *model.Cluster, doc *model.Document, rec *model.CandidateRecord) {
	for i, member := range c.Members {
		if member.Document != nil && member.Document.URLKey == doc.URLKey {
			// Keep the original arrival order on reprocess.
			doc.Seq = member.Document.Seq
			c.Members[i] = model.Member{Document: doc, Record: rec}
			m.byDoc[doc.ID] = c.ID
			return
		}
	}

	c.Members = append(c.Members, model.Member{Document: doc, Record: rec})
	m.byURLKey[doc.URLKey] = c.ID
	m.byDoc[doc.ID] = c.ID
}

func (m *Manager) newClusterLocked() *model.Cluster {
	c := &model.Cluster{
		ID:        ulid.Make().String(),
		Status:    model.StatusOpen,
		CreatedAt: m.now(),
		Seq:       m.seq,
	}
	m.seq++
	m.clusters[c.ID] = c
	return c
}
