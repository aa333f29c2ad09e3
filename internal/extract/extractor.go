// Package extract implements the deterministic rule layer: ordered pattern
// rules that produce a partial candidate record with per-field static
// confidences and verbatim evidence, no model involved.
package extract

import (
	"sort"
	"time"

	"github.com/kvollan/ridgeline/internal/model"
)

// Static confidence weights per rule type. These are audit weights, not
// model-derived probabilities.
const (
	ConfExplicitDate = 0.9
	ConfInferredDate = 0.5
	ConfKeywordCount = 0.6
	ConfCauseVocab   = 0.7
	ConfGazetteer    = 0.8
	ConfJurisdiction = 0.7
	ConfActivity     = 0.6
	ConfLocation     = 0.6
)

// Input is the per-document view a rule operates on.
type Input struct {
	Text      string
	Published *time.Time
}

// Matches is the output of one rule application.
type Matches struct {
	Fields []model.FieldValue
	SAR    []model.SARSegment
}

// Rule is one independent pattern rule. Rules must commute: the extractor
// merges their outputs with an order-independent policy, so permuting rule
// evaluation never changes the final field set.
type Rule interface {
	Name() string
	Apply(in Input) Matches
}

// Extractor runs the deterministic rule set over cleaned text.
type Extractor struct {
	rules []Rule
}

// New creates an extractor with the default rule set.
func New() *Extractor {
	return &Extractor{rules: DefaultRules()}
}

// NewWithRules creates an extractor with an explicit rule set. Used by tests
// to verify rule-order invariance.
func NewWithRules(rules []Rule) *Extractor {
	return &Extractor{rules: rules}
}

// DefaultRules returns the standard rule set.
func DefaultRules() []Rule {
	return []Rule{
		&dateRule{},
		&countRule{},
		&causeRule{},
		&activityRule{},
		&jurisdictionRule{},
		&locationRule{},
		&agencyRule{},
	}
}

// Extract applies every rule and merges the matches into a candidate record.
// A field no rule finds stays unset with confidence 0; it is a candidate for
// LLM fallback, never defaulted.
func (e *Extractor) Extract(docID, text string, published *time.Time) *model.CandidateRecord {
	in := Input{Text: text, Published: published}

	var fields []model.FieldValue
	var sar []model.SARSegment
	for _, rule := range e.rules {
		m := rule.Apply(in)
		fields = append(fields, m.Fields...)
		sar = append(sar, m.SAR...)
	}

	rec := model.NewCandidateRecord(docID)
	for field, fv := range mergeFields(fields) {
		rec.Fields[field] = fv
	}
	rec.SAR = dedupeSAR(sar)
	return rec
}

// mergeFields elects one value per field with an order-independent policy:
// highest confidence wins; ties break on the earliest evidence offset, then
// on the lexicographically smaller value. This is what makes rule order
// irrelevant.
func mergeFields(fields []model.FieldValue) map[string]model.FieldValue {
	out := make(map[string]model.FieldValue)
	for _, fv := range fields {
		if fv.Value == "" {
			continue
		}
		cur, ok := out[fv.Field]
		if !ok || betterMatch(fv, cur) {
			out[fv.Field] = fv
		}
	}
	return out
}

func betterMatch(a, b model.FieldValue) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	ao, bo := firstOffset(a), firstOffset(b)
	if ao != bo {
		return ao < bo
	}
	return a.Value < b.Value
}

func firstOffset(fv model.FieldValue) int {
	if len(fv.Evidence) == 0 {
		return int(^uint(0) >> 1)
	}
	min := fv.Evidence[0].Offset
	for _, ev := range fv.Evidence[1:] {
		if ev.Offset < min {
			min = ev.Offset
		}
	}
	return min
}

// dedupeSAR drops duplicate agency/op-type pairs and orders segments
// deterministically.
func dedupeSAR(segments []model.SARSegment) []model.SARSegment {
	seen := make(map[string]bool)
	var out []model.SARSegment
	for _, seg := range segments {
		key := seg.Agency + "|" + string(seg.OpType)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, seg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Agency != out[j].Agency {
			return out[i].Agency < out[j].Agency
		}
		return out[i].OpType < out[j].OpType
	})
	return out
}
