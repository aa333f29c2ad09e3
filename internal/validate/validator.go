// Package validate checks a cluster's canonical record against a fixed set
// of consistency rules. Every rule always runs; one failure never hides
// another.
package validate

import (
	"fmt"
	"time"

	"github.com/kvollan/ridgeline/internal/geo"
	"github.com/kvollan/ridgeline/internal/model"
)

// Rule checks one aspect of a cluster's canonical state.
type Rule interface {
	Name() string
	Check(c *model.Cluster) model.RuleResult
}

// Validator runs all rules over a cluster.
type Validator struct {
	rules []Rule
	now   func() time.Time
}

// New creates a validator with the default rule set.
func New() *Validator {
	return &Validator{
		rules: DefaultRules(),
		now:   time.Now,
	}
}

// NewWithRules creates a validator with a custom rule set.
func NewWithRules(rules []Rule) *Validator {
	return &Validator{rules: rules, now: time.Now}
}

// DefaultRules returns the standard rule set.
func DefaultRules() []Rule {
	return []Rule{
		&temporalRule{},
		&countRule{},
		&geoRule{},
		&sarRule{},
		&evidenceRule{required: model.DefaultRequiredFields()},
	}
}

// Validate evaluates every rule and returns the combined report.
func (v *Validator) Validate(c *model.Cluster) *model.ValidationReport {
	report := &model.ValidationReport{
		Results:    make([]model.RuleResult, 0, len(v.rules)),
		ComputedAt: v.now(),
	}
	for _, rule := range v.rules {
		report.Results = append(report.Results, rule.Check(c))
	}
	return report
}

// temporalRule verifies that event, death and recovery dates are ordered.
type temporalRule struct{}

func (r *temporalRule) Name() string { return "temporal_order" }

func (r *temporalRule) Check(c *model.Cluster) model.RuleResult {
	result := model.RuleResult{Rule: r.Name(), Outcome: model.OutcomePass}

	start, hasStart := c.CanonicalDate(model.FieldDateEventStart)
	end, hasEnd := c.CanonicalDate(model.FieldDateEventEnd)
	death, hasDeath := c.CanonicalDate(model.FieldDateOfDeath)
	recovery, hasRecovery := c.CanonicalDate(model.FieldDateRecovery)

	fail := func(format string, args ...any) model.RuleResult {
		result.Outcome = model.OutcomeFail
		result.Detail = fmt.Sprintf(format, args...)
		return result
	}

	if hasStart && hasEnd && end.Before(start) {
		return fail("event ends %s before it starts %s", end.Format(model.DateLayout), start.Format(model.DateLayout))
	}
	if hasStart && hasDeath && death.Before(start) {
		return fail("death %s precedes event start %s", death.Format(model.DateLayout), start.Format(model.DateLayout))
	}
	if hasDeath && hasRecovery && recovery.Before(death) {
		return fail("recovery %s precedes death %s", recovery.Format(model.DateLayout), death.Format(model.DateLayout))
	}
	if hasStart && hasRecovery && recovery.Before(start) {
		return fail("recovery %s precedes event start %s", recovery.Format(model.DateLayout), start.Format(model.DateLayout))
	}

	// The first article to cover the incident cannot have gone to press
	// before the death it reports.
	if hasDeath {
		if earliest, ok := c.EarliestPublished(); ok && death.After(earliest) {
			return fail("death %s postdates the earliest member publication %s",
				death.Format(model.DateLayout), earliest.Format(model.DateLayout))
		}
	}

	return result
}

// countRule sanity-checks casualty and party counts.
type countRule struct{}

func (r *countRule) Name() string { return "count_sanity" }

func (r *countRule) Check(c *model.Cluster) model.RuleResult {
	result := model.RuleResult{Rule: r.Name(), Outcome: model.OutcomePass}

	fatalities, hasFatalities := c.CanonicalInt(model.FieldNFatalities)
	injured, hasInjured := c.CanonicalInt(model.FieldNInjured)
	party, hasParty := c.CanonicalInt(model.FieldPartySize)

	fail := func(format string, args ...any) model.RuleResult {
		result.Outcome = model.OutcomeFail
		result.Detail = fmt.Sprintf(format, args...)
		return result
	}

	if hasFatalities && fatalities < 1 {
		return fail("n_fatalities %d must be at least 1 for a fatal incident", fatalities)
	}
	if hasInjured && injured < 0 {
		return fail("n_injured %d is negative", injured)
	}
	if hasParty && party < 1 {
		return fail("party_size %d must be at least 1", party)
	}
	if hasParty {
		affected := 0
		if hasFatalities {
			affected += fatalities
		}
		if hasInjured {
			affected += injured
		}
		if affected > party {
			return fail("%d casualties exceed party size %d", affected, party)
		}
	}

	return result
}

// geoRule warns when resolved coordinates fall outside the claimed
// jurisdiction. A warning, not a failure: bounding boxes are coarse and
// incidents happen near borders.
type geoRule struct{}

func (r *geoRule) Name() string { return "geo_containment" }

func (r *geoRule) Check(c *model.Cluster) model.RuleResult {
	result := model.RuleResult{Rule: r.Name(), Outcome: model.OutcomePass}

	fv, ok := c.Canonical[model.FieldJurisdiction]
	if !ok || c.Coords == nil {
		return result
	}
	if _, known := geo.Bounds(fv.Value); !known {
		result.Outcome = model.OutcomeWarn
		result.Detail = fmt.Sprintf("unknown jurisdiction %q", fv.Value)
		return result
	}
	if !geo.InJurisdiction(fv.Value, *c.Coords) {
		result.Outcome = model.OutcomeWarn
		result.Detail = fmt.Sprintf("coordinates (%.4f, %.4f) fall outside %s", c.Coords.Lat, c.Coords.Lon, fv.Value)
	}
	return result
}

// sarRule checks that operation segments are internally ordered and do not
// begin before the event.
type sarRule struct{}

func (r *sarRule) Name() string { return "sar_order" }

func (r *sarRule) Check(c *model.Cluster) model.RuleResult {
	result := model.RuleResult{Rule: r.Name(), Outcome: model.OutcomePass}

	eventDate, hasEvent := c.CanonicalDate(model.FieldDateEventStart)
	if !hasEvent {
		eventDate, hasEvent = c.CanonicalDate(model.FieldDateOfDeath)
	}

	for _, seg := range c.SAR {
		if seg.StartedAt != nil && seg.EndedAt != nil && seg.EndedAt.Before(*seg.StartedAt) {
			result.Outcome = model.OutcomeFail
			result.Detail = fmt.Sprintf("%s %s ends before it starts", seg.Agency, seg.OpType)
			return result
		}
		if hasEvent && seg.StartedAt != nil && seg.StartedAt.Before(eventDate) {
			result.Outcome = model.OutcomeWarn
			result.Detail = fmt.Sprintf("%s %s starts before the event date", seg.Agency, seg.OpType)
		}
	}
	return result
}

// evidenceRule requires every canonical required field to carry at least
// one evidence quote.
type evidenceRule struct {
	required []string
}

func (r *evidenceRule) Name() string { return "evidence_complete" }

func (r *evidenceRule) Check(c *model.Cluster) model.RuleResult {
	result := model.RuleResult{Rule: r.Name(), Outcome: model.OutcomePass}

	for _, field := range r.required {
		fv, ok := c.Canonical[field]
		if !ok {
			continue
		}
		if len(fv.Evidence) == 0 {
			result.Outcome = model.OutcomeFail
			result.Detail = fmt.Sprintf("canonical %s has no supporting evidence", field)
			return result
		}
	}
	return result
}
