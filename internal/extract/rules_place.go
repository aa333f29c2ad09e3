package extract

import (
	"regexp"

	"github.com/kvollan/ridgeline/internal/model"
)

// jurisdictionVocab keys jurisdiction codes to place-name keywords that
// strongly imply them.
var jurisdictionVocab = []vocabEntry{
	{"BC", regexp.MustCompile(`(?i)\bbritish columbia\b|\bsquamish\b|\bwhistler\b|\bgaribaldi\b|\bb\.c\.\B`)},
	{"AB", regexp.MustCompile(`(?i)\balberta\b|\bkananaskis\b|\bbanff\b|\bjasper\b|\bcanmore\b`)},
	{"WA", regexp.MustCompile(`(?i)\bwashington state\b|\bmount rainier\b|\bnorth cascades\b|\bwash\.\B`)},
}

var (
	rePeak  = regexp.MustCompile(`\b((?:[A-Z][A-Za-z'’-]+\s+)+(?:Peak|Mountain|Ridge|Glacier)|Mount\s+[A-Z][A-Za-z'’-]+)\b`)
	rePark  = regexp.MustCompile(`\b((?:[A-Z][A-Za-z'’-]+\s+)+(?:Provincial|National)\s+Park)\b`)
	reRoute = regexp.MustCompile(`\b((?:[A-Z][A-Za-z'’-]+\s+)+(?:Trail|Route|Couloir|Traverse|Buttress))\b`)
)

// jurisdictionRule resolves the jurisdiction code from place-name keywords.
type jurisdictionRule struct{}

func (r *jurisdictionRule) Name() string { return "jurisdiction_vocab" }

func (r *jurisdictionRule) Apply(in Input) Matches {
	fv, ok := earliestVocab(in.Text, model.FieldJurisdiction, jurisdictionVocab, ConfJurisdiction)
	if !ok {
		return Matches{}
	}
	return Matches{Fields: []model.FieldValue{fv}}
}

// locationRule finds named peaks, parks and routes. Peak and park mentions
// combine into location_name; the raw peak mention also populates peak_name.
type locationRule struct{}

func (r *locationRule) Name() string { return "location_pattern" }

func (r *locationRule) Apply(in Input) Matches {
	var out Matches

	peakLoc := rePeak.FindStringIndex(in.Text)
	parkLoc := rePark.FindStringIndex(in.Text)

	var peak, park string
	var evidence []model.Evidence
	if peakLoc != nil {
		peak = in.Text[peakLoc[0]:peakLoc[1]]
		out.Fields = append(out.Fields, model.FieldValue{
			Field:      model.FieldPeakName,
			Value:      peak,
			Confidence: ConfLocation,
			Source:     model.SourceRules,
			Evidence: []model.Evidence{{
				Field:  model.FieldPeakName,
				Quote:  peak,
				Offset: peakLoc[0],
			}},
		})
		evidence = append(evidence, model.Evidence{
			Field:  model.FieldLocationName,
			Quote:  peak,
			Offset: peakLoc[0],
		})
	}
	if parkLoc != nil {
		park = in.Text[parkLoc[0]:parkLoc[1]]
		evidence = append(evidence, model.Evidence{
			Field:  model.FieldLocationName,
			Quote:  park,
			Offset: parkLoc[0],
		})
	}

	switch {
	case peak != "" && park != "":
		out.Fields = append(out.Fields, locationValue(peak+", "+park, evidence))
	case peak != "":
		out.Fields = append(out.Fields, locationValue(peak, evidence))
	case park != "":
		out.Fields = append(out.Fields, locationValue(park, evidence))
	}

	if routeLoc := reRoute.FindStringIndex(in.Text); routeLoc != nil {
		route := in.Text[routeLoc[0]:routeLoc[1]]
		out.Fields = append(out.Fields, model.FieldValue{
			Field:      model.FieldRouteName,
			Value:      route,
			Confidence: ConfLocation,
			Source:     model.SourceRules,
			Evidence: []model.Evidence{{
				Field:  model.FieldRouteName,
				Quote:  route,
				Offset: routeLoc[0],
			}},
		})
	}
	return out
}

func locationValue(value string, evidence []model.Evidence) model.FieldValue {
	return model.FieldValue{
		Field:      model.FieldLocationName,
		Value:      value,
		Confidence: ConfLocation,
		Source:     model.SourceRules,
		Evidence:   evidence,
	}
}
