package extract

import (
	"regexp"
	"strings"

	"github.com/kvollan/ridgeline/internal/model"
)

func joinList(labels []string) string { return strings.Join(labels, ", ") }

// vocabEntry maps a keyword pattern to a normalized label.
type vocabEntry struct {
	label string
	re    *regexp.Regexp
}

// causeVocab is the fixed vocabulary of incident-cause keywords.
var causeVocab = []vocabEntry{
	{"avalanche", regexp.MustCompile(`(?i)\bavalanche[sd]?\b`)},
	{"avalanche", regexp.MustCompile(`(?i)\bcornice\s+(?:break|broke|collapse|failure)\b`)},
	{"rockfall", regexp.MustCompile(`(?i)\brock\s?fall\b`)},
	{"icefall", regexp.MustCompile(`(?i)\bice\s?fall\b|\bserac\s+(?:collapse|fall)\b`)},
	{"crevasse", regexp.MustCompile(`(?i)\bcrevasse\b`)},
	{"hypothermia", regexp.MustCompile(`(?i)\bhypothermia\b|\bexposure\s+to\s+(?:the\s+)?cold\b`)},
	{"lightning", regexp.MustCompile(`(?i)\blightning\s+strike\b|\bstruck\s+by\s+lightning\b`)},
	{"fall", regexp.MustCompile(`(?i)\bfell\b|\bfall\b|\bfalling\b`)},
}

// activityVocab maps activity keywords to the fixed activity labels.
var activityVocab = []vocabEntry{
	{"alpinism", regexp.MustCompile(`(?i)\bmountaineer(?:s|ing)?\b|\balpinis[tm]s?\b`)},
	{"ski-mountaineering", regexp.MustCompile(`(?i)\bski[\s-]?mountaineer(?:s|ing)?\b|\bbackcountry\s+ski(?:er|ers|ing)?\b|\bski(?:er|ers|ing)\b`)},
	{"climbing", regexp.MustCompile(`(?i)\bclimb(?:er|ers|ing)\b`)},
	{"scrambling", regexp.MustCompile(`(?i)\bscrambl(?:er|ers|ing)\b`)},
	{"hiking", regexp.MustCompile(`(?i)\bhik(?:er|ers|ing)\b`)},
}

// contributingVocab flags commonly reported contributing factors.
var contributingVocab = []vocabEntry{
	{"cornices", regexp.MustCompile(`(?i)\bcornices?\b`)},
	{"spring snowmelt/warming", regexp.MustCompile(`(?i)\bwarming\b|\bspring\s+(?:snowmelt|conditions|thaw)\b`)},
	{"steep terrain", regexp.MustCompile(`(?i)\bsteep\s+(?:terrain|faces|slopes?)\b`)},
	{"whiteout/poor visibility", regexp.MustCompile(`(?i)\bwhiteout\b|\bpoor\s+visibility\b`)},
}

// causeRule resolves cause_primary from the fixed cause vocabulary. The
// earliest mention in the text wins, so vocabulary order is irrelevant.
type causeRule struct{}

func (r *causeRule) Name() string { return "cause_vocab" }

func (r *causeRule) Apply(in Input) Matches {
	var out Matches
	if fv, ok := earliestVocab(in.Text, model.FieldCausePrimary, causeVocab, ConfCauseVocab); ok {
		out.Fields = append(out.Fields, fv)
	}
	if factors := allVocab(in.Text, model.FieldContributingFactors, contributingVocab); factors != nil {
		out.Fields = append(out.Fields, *factors)
	}
	return out
}

// activityRule resolves the activity label from activity keywords.
type activityRule struct{}

func (r *activityRule) Name() string { return "activity_vocab" }

func (r *activityRule) Apply(in Input) Matches {
	fv, ok := earliestVocab(in.Text, model.FieldActivity, activityVocab, ConfActivity)
	if !ok {
		return Matches{}
	}
	return Matches{Fields: []model.FieldValue{fv}}
}

// earliestVocab claims the label whose pattern matches earliest in the text.
func earliestVocab(text, field string, vocab []vocabEntry, conf float64) (model.FieldValue, bool) {
	bestStart := -1
	var bestLabel, bestQuote string

	for _, entry := range vocab {
		loc := entry.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if bestStart == -1 || loc[0] < bestStart || (loc[0] == bestStart && entry.label < bestLabel) {
			bestStart = loc[0]
			bestLabel = entry.label
			bestQuote = text[loc[0]:loc[1]]
		}
	}
	if bestStart == -1 {
		return model.FieldValue{}, false
	}
	return model.FieldValue{
		Field:      field,
		Value:      bestLabel,
		Confidence: conf,
		Source:     model.SourceRules,
		Evidence: []model.Evidence{{
			Field:  field,
			Quote:  bestQuote,
			Offset: bestStart,
		}},
	}, true
}

// allVocab collects every matching label into one comma-joined list value.
func allVocab(text, field string, vocab []vocabEntry) *model.FieldValue {
	var labels []string
	var evidence []model.Evidence
	seen := make(map[string]bool)

	for _, entry := range vocab {
		loc := entry.re.FindStringIndex(text)
		if loc == nil || seen[entry.label] {
			continue
		}
		seen[entry.label] = true
		labels = append(labels, entry.label)
		evidence = append(evidence, model.Evidence{
			Field:  field,
			Quote:  text[loc[0]:loc[1]],
			Offset: loc[0],
		})
	}
	if len(labels) == 0 {
		return nil
	}
	return &model.FieldValue{
		Field:      field,
		Value:      joinList(labels),
		Confidence: ConfKeywordCount,
		Source:     model.SourceRules,
		Evidence:   evidence,
	}
}
