package extract

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/kvollan/ridgeline/internal/model"
)

const sampleArticle = "Three mountaineers were killed in an avalanche on Atwell Peak in " +
	"Garibaldi Provincial Park near Squamish, British Columbia. The party of four " +
	"was descending when the slide released on June 2, 2024. One climber was injured " +
	"and airlifted to hospital. Squamish Search and Rescue crews recovered the bodies " +
	"on June 4, 2024 with support from the RCMP. Published June 5, 2024."

func published(t *testing.T, s string) *time.Time {
	t.Helper()
	ts, err := time.Parse(model.DateLayout, s)
	if err != nil {
		t.Fatal(err)
	}
	return &ts
}

func TestExtract_CoreFields(t *testing.T) {
	rec := New().Extract("doc-1", sampleArticle, published(t, "2024-06-05"))

	tests := []struct {
		field string
		want  string
	}{
		{model.FieldNFatalities, "3"},
		{model.FieldNInjured, "1"},
		{model.FieldPartySize, "4"},
		{model.FieldCausePrimary, "avalanche"},
		{model.FieldActivity, "alpinism"},
		{model.FieldJurisdiction, "BC"},
		{model.FieldPeakName, "Atwell Peak"},
		{model.FieldDateOfDeath, "2024-06-02"},
		{model.FieldDateRecovery, "2024-06-04"},
		{model.FieldEventType, "fatality"},
	}
	for _, tt := range tests {
		fv, ok := rec.Get(tt.field)
		if !ok {
			t.Errorf("field %s not extracted", tt.field)
			continue
		}
		if fv.Value != tt.want {
			t.Errorf("field %s = %q, want %q", tt.field, fv.Value, tt.want)
		}
		if fv.Confidence <= 0 || fv.Confidence > 1 {
			t.Errorf("field %s confidence %v out of range", tt.field, fv.Confidence)
		}
		if len(fv.Evidence) == 0 {
			t.Errorf("field %s has no evidence", tt.field)
		}
	}

	if len(rec.SAR) < 2 {
		t.Errorf("expected SAR segments for Squamish SAR and RCMP, got %v", rec.SAR)
	}
}

func TestExtract_EvidenceIsVerbatim(t *testing.T) {
	rec := New().Extract("doc-1", sampleArticle, published(t, "2024-06-05"))

	for _, name := range rec.FieldNames() {
		fv := rec.Fields[name]
		for _, ev := range fv.Evidence {
			if ev.Offset < 0 || ev.Offset+len(ev.Quote) > len(sampleArticle) {
				t.Fatalf("field %s evidence offset out of bounds: %+v", name, ev)
			}
			if got := sampleArticle[ev.Offset : ev.Offset+len(ev.Quote)]; got != ev.Quote {
				t.Errorf("field %s evidence not verbatim at offset %d: %q != %q", name, ev.Offset, got, ev.Quote)
			}
		}
	}
}

func TestExtract_RuleOrderInvariance(t *testing.T) {
	pub := published(t, "2024-06-05")
	baseline := New().Extract("doc-1", sampleArticle, pub)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		rules := DefaultRules()
		rng.Shuffle(len(rules), func(a, b int) { rules[a], rules[b] = rules[b], rules[a] })

		got := NewWithRules(rules).Extract("doc-1", sampleArticle, pub)
		if !reflect.DeepEqual(got.Fields, baseline.Fields) {
			t.Fatalf("permutation %d changed field set:\n got %+v\nwant %+v", i, got.Fields, baseline.Fields)
		}
		if !reflect.DeepEqual(got.SAR, baseline.SAR) {
			t.Fatalf("permutation %d changed SAR segments", i)
		}
	}
}

func TestExtract_MissingFieldsStayUnset(t *testing.T) {
	rec := New().Extract("doc-2", "A short note about maintenance on the trail bridge.", nil)

	for _, field := range []string{model.FieldNFatalities, model.FieldDateOfDeath, model.FieldCausePrimary} {
		if _, ok := rec.Get(field); ok {
			t.Errorf("field %s should stay unset for non-incident text", field)
		}
		if rec.Confidence(field) != 0 {
			t.Errorf("unset field %s must have confidence 0", field)
		}
	}
}

func TestExtract_YearInferredFromPublication(t *testing.T) {
	text := "Two climbers died in a fall on the mountain on May 31. Rescue teams responded."
	rec := New().Extract("doc-3", text, published(t, "2023-06-02"))

	fv, ok := rec.Get(model.FieldDateOfDeath)
	if !ok {
		t.Fatal("date_of_death not extracted")
	}
	if fv.Value != "2023-05-31" {
		t.Errorf("date_of_death = %q, want 2023-05-31", fv.Value)
	}
	if fv.Confidence != ConfInferredDate {
		t.Errorf("inferred-year date confidence = %v, want %v", fv.Confidence, ConfInferredDate)
	}
}

func TestExtract_ExplicitDateConfidence(t *testing.T) {
	text := "Two climbers died in an avalanche on 2024-03-15 while descending."
	rec := New().Extract("doc-4", text, nil)

	fv, ok := rec.Get(model.FieldDateOfDeath)
	if !ok {
		t.Fatal("date_of_death not extracted")
	}
	if fv.Confidence != ConfExplicitDate {
		t.Errorf("explicit date confidence = %v, want %v", fv.Confidence, ConfExplicitDate)
	}
}

func TestExtract_PublishedDatePenalized(t *testing.T) {
	text := "Published June 10, 2024. A hiker was killed by rockfall below the summit ridge on June 7, 2024."
	rec := New().Extract("doc-5", text, published(t, "2024-06-10"))

	fv, ok := rec.Get(model.FieldDateOfDeath)
	if !ok {
		t.Fatal("date_of_death not extracted")
	}
	if fv.Value != "2024-06-07" {
		t.Errorf("date_of_death = %q, want 2024-06-07 (byline date must not win)", fv.Value)
	}
}

func TestExtract_NumberWords(t *testing.T) {
	text := "Two climbers were killed when a cornice broke on the ridge."
	rec := New().Extract("doc-6", text, nil)

	n, ok := rec.Int(model.FieldNFatalities)
	if !ok || n != 2 {
		t.Errorf("n_fatalities = %v (ok=%v), want 2", n, ok)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	pub := published(t, "2024-06-05")
	a := New().Extract("doc-1", sampleArticle, pub)
	b := New().Extract("doc-1", sampleArticle, pub)
	if !reflect.DeepEqual(a, b) {
		t.Error("extraction is not deterministic on identical input")
	}
}
