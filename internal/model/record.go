package model

import (
	"sort"
	"strconv"
	"time"
)

// Field names used across extraction, clustering and validation.
const (
	FieldJurisdiction        = "jurisdiction"
	FieldLocationName        = "location_name"
	FieldPeakName            = "peak_name"
	FieldRouteName           = "route_name"
	FieldActivity            = "activity"
	FieldCausePrimary        = "cause_primary"
	FieldContributingFactors = "contributing_factors"
	FieldNFatalities         = "n_fatalities"
	FieldNInjured            = "n_injured"
	FieldPartySize           = "party_size"
	FieldDateEventStart      = "date_event_start"
	FieldDateEventEnd        = "date_event_end"
	FieldDateOfDeath         = "date_of_death"
	FieldDateRecovery        = "date_recovery"
	FieldEventType           = "event_type"
)

// DateLayout is the canonical string form for date-valued fields.
const DateLayout = "2006-01-02"

// DefaultRequiredFields are the fields that gate LLM fallback, drive overall
// confidence and must carry evidence before a cluster can validate.
// date_of_death falls back to date_event_start when absent.
func DefaultRequiredFields() []string {
	return []string{
		FieldJurisdiction,
		FieldDateOfDeath,
		FieldLocationName,
		FieldCausePrimary,
		FieldNFatalities,
	}
}

// Evidence anchors a field value to a verbatim quote in the source text.
// The quote is never synthesized; Offset is the byte offset of the quote in
// the originating document's cleaned text.
type Evidence struct {
	Field  string `json:"field"`
	Quote  string `json:"quote"`
	Offset int    `json:"source_offset"`
}

// SAROpType classifies a search-and-rescue timeline segment.
type SAROpType string

const (
	SAROpSearch   SAROpType = "search"
	SAROpRescue   SAROpType = "rescue"
	SAROpRecovery SAROpType = "recovery"
)

// SARSegment is one search/rescue/recovery operation attributed to an agency.
type SARSegment struct {
	Agency    string     `json:"agency,omitempty"`
	OpType    SAROpType  `json:"op_type"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
}

// ValueSource records which extraction layer produced a field value.
type ValueSource string

const (
	SourceRules ValueSource = "rules"
	SourceLLM   ValueSource = "llm"
)

// FieldValue is one extracted field with its provenance.
// Value is the normalized string form: dates use DateLayout, counts use
// base-10 digits. Validator and cluster matching parse as needed.
type FieldValue struct {
	Field      string      `json:"field"`
	Value      string      `json:"value"`
	Confidence float64     `json:"confidence"`
	Source     ValueSource `json:"source"`
	Evidence   []Evidence  `json:"evidence,omitempty"`
}

// LatLon is a resolved coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// CandidateRecord is the per-document extraction result before clustering.
type CandidateRecord struct {
	DocumentID string                `json:"document_id"`
	Fields     map[string]FieldValue `json:"fields"`
	SAR        []SARSegment          `json:"sar,omitempty"`
	Bullets    []string              `json:"summary_bullets,omitempty"`
	Coords     *LatLon               `json:"coords,omitempty"`
	Overall    float64               `json:"overall_confidence"`
	Warnings   []string              `json:"warnings,omitempty"`
}

// NewCandidateRecord returns an empty record for the given document.
func NewCandidateRecord(docID string) *CandidateRecord {
	return &CandidateRecord{DocumentID: docID, Fields: make(map[string]FieldValue)}
}

// Set stores a field value. A zero-confidence value never displaces an
// existing one.
func (r *CandidateRecord) Set(fv FieldValue) {
	if fv.Value == "" {
		return
	}
	if existing, ok := r.Fields[fv.Field]; ok && existing.Confidence >= fv.Confidence {
		return
	}
	r.Fields[fv.Field] = fv
}

// Get returns the value for a field, if set.
func (r *CandidateRecord) Get(field string) (FieldValue, bool) {
	fv, ok := r.Fields[field]
	return fv, ok
}

// Confidence returns the confidence for a field, 0 when unset.
func (r *CandidateRecord) Confidence(field string) float64 {
	if fv, ok := r.Fields[field]; ok {
		return fv.Confidence
	}
	return 0
}

// Int parses an integer-valued field.
func (r *CandidateRecord) Int(field string) (int, bool) {
	fv, ok := r.Fields[field]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(fv.Value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Date parses a date-valued field.
func (r *CandidateRecord) Date(field string) (time.Time, bool) {
	fv, ok := r.Fields[field]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, fv.Value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FieldNames returns the set field names in deterministic order.
func (r *CandidateRecord) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
