package orchestrate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kvollan/ridgeline/internal/extract"
	"github.com/kvollan/ridgeline/internal/llm"
	"github.com/kvollan/ridgeline/internal/model"
)

// fakeProvider returns a canned response after a configurable number of
// failures.
type fakeProvider struct {
	resp     *llm.ExtractResponse
	err      error
	failures int
	calls    int
	lastReq  llm.ExtractRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) IsAvailable(_ context.Context) bool { return true }

func (f *fakeProvider) Extract(_ context.Context, req llm.ExtractRequest) (*llm.ExtractResponse, error) {
	f.calls++
	f.lastReq = req
	if f.calls <= f.failures {
		return nil, errors.New("transient failure")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func testDoc(text string) *model.Document {
	published := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
	return &model.Document{
		ID:          "doc-1",
		CleanedText: text,
		Published:   &published,
	}
}

// vagueArticle gives the rules almost nothing to work with.
const vagueArticle = "A climber perished in the Tantalus Range over the weekend, " +
	"officials said. The circumstances are still under investigation."

func TestExtract_RulesOnlyWhenProviderDisabled(t *testing.T) {
	o := New(extract.New(), model.ExtractionConfig{})
	rec, err := o.Extract(context.Background(), testDoc(vagueArticle))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for _, fv := range rec.Fields {
		if fv.Source != model.SourceRules {
			t.Errorf("Expected only rule-sourced fields, got %s from %s", fv.Field, fv.Source)
		}
	}
}

func TestExtract_FallbackFillsMissingFields(t *testing.T) {
	provider := &fakeProvider{
		resp: &llm.ExtractResponse{
			Candidate: llm.Candidate{
				Fields: map[string]string{
					model.FieldLocationName: "Tantalus Range",
					model.FieldNFatalities:  "1",
				},
				Evidence: []model.Evidence{
					{Field: model.FieldLocationName, Quote: "Tantalus Range"},
					{Field: model.FieldNFatalities, Quote: "A climber perished"},
				},
				Confidence: 0.85,
			},
		},
	}

	o := New(extract.New(), model.ExtractionConfig{}, WithProvider(provider))
	doc := testDoc(vagueArticle)
	rec, err := o.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	fv, ok := rec.Get(model.FieldLocationName)
	if !ok {
		t.Fatal("Expected location_name from fallback")
	}
	if fv.Source != model.SourceLLM {
		t.Errorf("Expected LLM source, got %s", fv.Source)
	}
	if fv.Confidence != 0.85 {
		t.Errorf("Expected confidence 0.85, got %f", fv.Confidence)
	}

	// Evidence must be anchored: quote at offset, verbatim.
	ev := fv.Evidence[0]
	if got := doc.CleanedText[ev.Offset : ev.Offset+len(ev.Quote)]; got != ev.Quote {
		t.Errorf("Evidence not verbatim at offset: %q != %q", got, ev.Quote)
	}

	if len(provider.lastReq.Missing) == 0 {
		t.Error("Expected missing fields in the provider request")
	}
}

func TestExtract_RejectsUnverifiableEvidence(t *testing.T) {
	provider := &fakeProvider{
		resp: &llm.ExtractResponse{
			Candidate: llm.Candidate{
				Fields: map[string]string{
					model.FieldLocationName: "Mount Fabricated",
					model.FieldNFatalities:  "1",
				},
				Evidence: []model.Evidence{
					{Field: model.FieldLocationName, Quote: "a quote that is not in the text"},
					// n_fatalities has no evidence entry at all
				},
				Confidence: 0.9,
			},
		},
	}

	o := New(extract.New(), model.ExtractionConfig{}, WithProvider(provider))
	rec, err := o.Extract(context.Background(), testDoc(vagueArticle))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if _, ok := rec.Get(model.FieldLocationName); ok {
		t.Error("Expected field with fabricated evidence to be rejected")
	}
	if _, ok := rec.Get(model.FieldNFatalities); ok {
		t.Error("Expected field without evidence to be rejected")
	}
	if len(rec.Warnings) < 2 {
		t.Errorf("Expected rejection warnings, got %v", rec.Warnings)
	}
}

func TestExtract_DeterministicWinsTies(t *testing.T) {
	// Rules find the cause with confidence 0.7; model reports the same
	// confidence with a different value.
	text := "Two climbers were killed in an avalanche on Atwell Peak near Squamish on 2024-06-02."

	provider := &fakeProvider{
		resp: &llm.ExtractResponse{
			Candidate: llm.Candidate{
				Fields: map[string]string{
					model.FieldCausePrimary: "rockfall",
				},
				Evidence: []model.Evidence{
					{Field: model.FieldCausePrimary, Quote: "killed in an avalanche"},
				},
				Confidence: extract.ConfCauseVocab,
			},
		},
	}

	o := New(extract.New(), model.ExtractionConfig{}, WithProvider(provider))
	rec, err := o.Extract(context.Background(), testDoc(text))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	fv, ok := rec.Get(model.FieldCausePrimary)
	if !ok {
		t.Fatal("Expected cause_primary")
	}
	if fv.Value != "avalanche" || fv.Source != model.SourceRules {
		t.Errorf("Expected deterministic avalanche to win the tie, got %q from %s", fv.Value, fv.Source)
	}
}

func TestExtract_NoFallbackWhenFieldsConfident(t *testing.T) {
	text := "Two climbers were killed in an avalanche on Atwell Peak in Garibaldi Provincial Park " +
		"near Squamish on 2024-06-02."

	provider := &fakeProvider{resp: &llm.ExtractResponse{Candidate: llm.Candidate{Fields: map[string]string{}}}}
	o := New(extract.New(), model.ExtractionConfig{ConfidenceThreshold: 0.55}, WithProvider(provider))

	rec, err := o.Extract(context.Background(), testDoc(text))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("Expected no provider call when required fields are confident, got %d", provider.calls)
	}
	if rec.Overall <= 0 {
		t.Error("Expected positive overall confidence")
	}
}

func TestExtract_RetriesTransientFailures(t *testing.T) {
	var slept []time.Duration
	llmSleepFunc = func(d time.Duration) { slept = append(slept, d) }
	defer func() { llmSleepFunc = time.Sleep }()

	provider := &fakeProvider{
		failures: 2,
		resp: &llm.ExtractResponse{
			Candidate: llm.Candidate{
				Fields:     map[string]string{model.FieldLocationName: "Tantalus Range"},
				Evidence:   []model.Evidence{{Field: model.FieldLocationName, Quote: "Tantalus Range"}},
				Confidence: 0.8,
			},
		},
	}

	o := New(extract.New(), model.ExtractionConfig{}, WithProvider(provider))
	rec, err := o.Extract(context.Background(), testDoc(vagueArticle))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if provider.calls != 3 {
		t.Errorf("Expected 3 calls (2 failures + success), got %d", provider.calls)
	}
	if len(slept) != 2 || slept[0] != 1*time.Second || slept[1] != 2*time.Second {
		t.Errorf("Expected exponential backoff [1s 2s], got %v", slept)
	}
	if _, ok := rec.Get(model.FieldLocationName); !ok {
		t.Error("Expected field after retries succeeded")
	}
}

func TestExtract_ProviderFailureDegradesToRules(t *testing.T) {
	llmSleepFunc = func(time.Duration) {}
	defer func() { llmSleepFunc = time.Sleep }()

	provider := &fakeProvider{failures: 10} // always fails

	o := New(extract.New(), model.ExtractionConfig{}, WithProvider(provider))
	rec, err := o.Extract(context.Background(), testDoc(vagueArticle))
	if err != nil {
		t.Fatalf("Expected graceful degradation, got error: %v", err)
	}

	found := false
	for _, w := range rec.Warnings {
		if strings.Contains(w, "llm fallback failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected fallback warning, got %v", rec.Warnings)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	provider := &fakeProvider{
		resp: &llm.ExtractResponse{
			Candidate: llm.Candidate{
				Fields:     map[string]string{model.FieldLocationName: "Tantalus Range"},
				Evidence:   []model.Evidence{{Field: model.FieldLocationName, Quote: "Tantalus Range"}},
				Confidence: 0.8,
			},
		},
	}

	o := New(extract.New(), model.ExtractionConfig{}, WithProvider(provider))

	a, err := o.Extract(context.Background(), testDoc(vagueArticle))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	b, err := o.Extract(context.Background(), testDoc(vagueArticle))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if a.Overall != b.Overall {
		t.Errorf("Overall confidence differs: %f vs %f", a.Overall, b.Overall)
	}
	for name, fv := range a.Fields {
		other, ok := b.Fields[name]
		if !ok || other.Value != fv.Value || other.Confidence != fv.Confidence {
			t.Errorf("Field %s differs between runs", name)
		}
	}
}

func TestExtract_DateOfDeathSatisfiedByEventStart(t *testing.T) {
	// An explicit event date satisfies the date requirement even when no
	// death date was claimed separately.
	text := "The party was swept by an avalanche on 2024-06-02 while descending " +
		"Atwell Peak near Squamish. Two climbers were killed in the slide."

	provider := &fakeProvider{resp: &llm.ExtractResponse{Candidate: llm.Candidate{Fields: map[string]string{}}}}
	o := New(extract.New(), model.ExtractionConfig{}, WithProvider(provider))

	_, err := o.Extract(context.Background(), testDoc(text))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for _, f := range provider.lastReq.Missing {
		if f == model.FieldDateOfDeath {
			t.Error("date_of_death should be satisfied by an explicit event start date")
		}
	}
}

func TestLocateQuote(t *testing.T) {
	text := "Three climbers  were killed\nin an avalanche on Atwell Peak."

	tests := []struct {
		name    string
		quote   string
		wantOK  bool
		wantSub string
	}{
		{
			name:    "exact match",
			quote:   "avalanche on Atwell Peak",
			wantOK:  true,
			wantSub: "avalanche on Atwell Peak",
		},
		{
			name:    "whitespace-normalized match",
			quote:   "Three climbers were killed in an avalanche",
			wantOK:  true,
			wantSub: "Three climbers  were killed\nin an avalanche",
		},
		{
			name:   "not present",
			quote:  "Mount Fabricated",
			wantOK: false,
		},
		{
			name:   "empty quote",
			quote:  "   ",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, got, ok := LocateQuote(text, tt.quote)
			if ok != tt.wantOK {
				t.Fatalf("LocateQuote ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got != tt.wantSub {
				t.Errorf("Quote = %q, want %q", got, tt.wantSub)
			}
			if text[offset:offset+len(got)] != got {
				t.Errorf("Quote not verbatim at offset %d", offset)
			}
		})
	}
}
