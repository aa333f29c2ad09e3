// Package orchestrate runs deterministic extraction first and falls back to
// a model provider only for required fields the rules could not resolve
// confidently. Model output is never trusted blind: every returned quote is
// re-located in the source text before the field is accepted.
package orchestrate

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/kvollan/ridgeline/internal/extract"
	"github.com/kvollan/ridgeline/internal/llm"
	"github.com/kvollan/ridgeline/internal/model"
	"github.com/kvollan/ridgeline/internal/util"
)

// llmSleepFunc is the sleep function used between retries (injectable for tests)
var llmSleepFunc = time.Sleep

// Orchestrator coordinates the deterministic extractor and the optional
// model provider.
type Orchestrator struct {
	extractor  *extract.Extractor
	provider   llm.Provider // nil means model fallback is disabled
	threshold  float64
	required   []string
	weights    map[string]float64
	maxRetries int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProvider enables model fallback.
func WithProvider(p llm.Provider) Option {
	return func(o *Orchestrator) { o.provider = p }
}

// WithMaxRetries overrides the model-call retry count.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// New creates an orchestrator from extraction config.
func New(extractor *extract.Extractor, cfg model.ExtractionConfig, opts ...Option) *Orchestrator {
	required := cfg.RequiredFields
	if len(required) == 0 {
		required = model.DefaultRequiredFields()
	}

	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}

	o := &Orchestrator{
		extractor:  extractor,
		threshold:  threshold,
		required:   required,
		weights:    cfg.Weights,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Threshold returns the confidence gate used for fallback and routing.
func (o *Orchestrator) Threshold() float64 {
	return o.threshold
}

// Extract produces a candidate record for the document. Deterministic
// results always win ties against model results, so re-running over the
// same document yields the same record.
func (o *Orchestrator) Extract(ctx context.Context, doc *model.Document) (*model.CandidateRecord, error) {
	rec := o.extractor.Extract(doc.ID, doc.CleanedText, doc.Published)

	missing := o.missingFields(rec)
	if o.provider != nil && len(missing) > 0 {
		if err := o.fillFromModel(ctx, doc, rec, missing); err != nil {
			// Model failure degrades to rules-only output rather than
			// failing the document.
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("llm fallback failed: %v", err))
			fmt.Fprintf(os.Stderr, "llm fallback failed for %s: %v\n", doc.ID, err)
		}
	}

	rec.Overall = o.overallConfidence(rec)
	return rec, nil
}

// missingFields lists required fields still below the confidence threshold,
// sorted for a stable prompt. date_of_death counts as satisfied when an
// event start date was found.
func (o *Orchestrator) missingFields(rec *model.CandidateRecord) []string {
	var missing []string
	for _, field := range o.required {
		if o.fieldConfidence(rec, field) < o.threshold {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}

func (o *Orchestrator) fieldConfidence(rec *model.CandidateRecord, field string) float64 {
	conf := rec.Confidence(field)
	if field == model.FieldDateOfDeath {
		if alt := rec.Confidence(model.FieldDateEventStart); alt > conf {
			conf = alt
		}
	}
	return conf
}

// fillFromModel makes a single provider call for all missing fields and
// merges verified results into the record.
func (o *Orchestrator) fillFromModel(ctx context.Context, doc *model.Document, rec *model.CandidateRecord, missing []string) error {
	known := make(map[string]string)
	for name, fv := range rec.Fields {
		if fv.Confidence >= o.threshold {
			known[name] = fv.Value
		}
	}

	req := llm.ExtractRequest{
		Text:      doc.CleanedText,
		Known:     known,
		Missing:   missing,
		Published: doc.Published,
	}

	resp, err := o.extractWithRetry(ctx, req)
	if err != nil {
		return err
	}

	o.mergeCandidate(doc.CleanedText, rec, resp.Candidate)
	return nil
}

// extractWithRetry retries transient model failures with exponential backoff.
func (o *Orchestrator) extractWithRetry(ctx context.Context, req llm.ExtractRequest) (*llm.ExtractResponse, error) {
	var lastErr error
	for attempt := 0; attempt < o.maxRetries; attempt++ {
		resp, err := o.provider.Extract(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < o.maxRetries-1 {
			llmSleepFunc(util.Backoff(attempt))
		}
	}
	return nil, lastErr
}

// mergeCandidate folds verified model fields into the record. A model value
// displaces a deterministic one only with strictly higher confidence.
func (o *Orchestrator) mergeCandidate(text string, rec *model.CandidateRecord, cand llm.Candidate) {
	quotes := make(map[string]string, len(cand.Evidence))
	for _, ev := range cand.Evidence {
		if _, dup := quotes[ev.Field]; !dup {
			quotes[ev.Field] = ev.Quote
		}
	}

	fields := make([]string, 0, len(cand.Fields))
	for name := range cand.Fields {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	for _, name := range fields {
		value := cand.Fields[name]
		if value == "" {
			continue
		}

		quote, ok := quotes[name]
		if !ok || quote == "" {
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("llm field %s rejected: no evidence quote", name))
			continue
		}

		offset, verbatim, found := LocateQuote(text, quote)
		if !found {
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("llm field %s rejected: evidence quote not found in text", name))
			continue
		}

		rec.Set(model.FieldValue{
			Field:      name,
			Value:      value,
			Confidence: cand.Confidence,
			Source:     model.SourceLLM,
			Evidence:   []model.Evidence{{Field: name, Quote: verbatim, Offset: offset}},
		})
	}

	for _, seg := range cand.SAR {
		rec.SAR = append(rec.SAR, seg.ToModel())
	}
	if len(rec.Bullets) == 0 {
		rec.Bullets = cand.Bullets
	}
}

// overallConfidence is the weighted mean of required-field confidences.
// Fields never extracted contribute zero.
func (o *Orchestrator) overallConfidence(rec *model.CandidateRecord) float64 {
	var sum, total float64
	for _, field := range o.required {
		weight := 1.0
		if w, ok := o.weights[field]; ok && w > 0 {
			weight = w
		}
		sum += o.fieldConfidence(rec, field) * weight
		total += weight
	}
	if total == 0 {
		return 0
	}
	return sum / total
}
