package model

import (
	"strconv"
	"time"
)

// ClusterStatus tracks where a cluster is in its lifecycle.
type ClusterStatus string

const (
	// StatusOpen means created, not yet validated
	StatusOpen ClusterStatus = "open"

	// StatusValidated means every validation rule passed
	StatusValidated ClusterStatus = "validated"

	// StatusNeedsReview means held for human review
	StatusNeedsReview ClusterStatus = "needs_review"

	// StatusMerged means absorbed into another cluster. Terminal.
	StatusMerged ClusterStatus = "merged"
)

// RuleOutcome is the result of one validation rule.
type RuleOutcome string

const (
	OutcomePass RuleOutcome = "pass"
	OutcomeWarn RuleOutcome = "warn"
	OutcomeFail RuleOutcome = "fail"
)

// RuleResult is one validation rule's outcome with explanation.
type RuleResult struct {
	Rule    string      `json:"rule"`
	Outcome RuleOutcome `json:"outcome"`
	Detail  string      `json:"detail,omitempty"`
}

// ValidationReport maps rule outcomes for a cluster's current canonical
// state. Recomputed whenever canonical values change.
type ValidationReport struct {
	Results    []RuleResult `json:"results"`
	ComputedAt time.Time    `json:"computed_at"`
}

// HasFail reports whether any rule failed.
func (r *ValidationReport) HasFail() bool {
	for _, res := range r.Results {
		if res.Outcome == OutcomeFail {
			return true
		}
	}
	return false
}

// HasWarn reports whether any rule warned.
func (r *ValidationReport) HasWarn() bool {
	for _, res := range r.Results {
		if res.Outcome == OutcomeWarn {
			return true
		}
	}
	return false
}

// Failures returns the names of failed rules.
func (r *ValidationReport) Failures() []string {
	var out []string
	for _, res := range r.Results {
		if res.Outcome == OutcomeFail {
			out = append(out, res.Rule)
		}
	}
	return out
}

// Member ties a document into a cluster together with the extraction
// result it contributed.
type Member struct {
	Document *Document        `json:"document"`
	Record   *CandidateRecord `json:"record"`
}

// Cluster is a set of documents believed to describe the same real-world
// incident, with one canonical field set elected across members.
type Cluster struct {
	ID        string        `json:"id"`
	Status    ClusterStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	Seq       int           `json:"seq"` // creation sequence; merges flow into the earliest

	Members []Member `json:"members"`

	Canonical  map[string]FieldValue `json:"canonical"`
	Overall    float64               `json:"overall_confidence"`
	Coords     *LatLon               `json:"coords,omitempty"`
	SAR        []SARSegment          `json:"sar,omitempty"`
	MergedInto string                `json:"merged_into,omitempty"`

	// Report is the cached validation report; nil after any canonical
	// recomputation until the validator runs again.
	Report *ValidationReport `json:"report,omitempty"`
}

// HasDocument reports whether a document with the given URL key is already
// a member.
func (c *Cluster) HasDocument(urlKey string) bool {
	for _, m := range c.Members {
		if m.Document.URLKey == urlKey {
			return true
		}
	}
	return false
}

// EarliestPublished returns the earliest member publication date, if any
// member carries one.
func (c *Cluster) EarliestPublished() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, m := range c.Members {
		if m.Document == nil || m.Document.Published == nil {
			continue
		}
		if !found || m.Document.Published.Before(earliest) {
			earliest = *m.Document.Published
			found = true
		}
	}
	return earliest, found
}

// CanonicalDate parses a canonical date field.
func (c *Cluster) CanonicalDate(field string) (time.Time, bool) {
	fv, ok := c.Canonical[field]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, fv.Value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CanonicalInt parses a canonical integer field.
func (c *Cluster) CanonicalInt(field string) (int, bool) {
	fv, ok := c.Canonical[field]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(fv.Value)
	if err != nil {
		return 0, false
	}
	return n, true
}
