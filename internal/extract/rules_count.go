package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kvollan/ridgeline/internal/model"
)

const numWord = `one|two|three|four|five|six|seven|eight|nine|ten|\d{1,2}`

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

var (
	reFatalitySubject = regexp.MustCompile(`(?i)\b(` + numWord + `)\s+(?:men|women|people|persons|climbers|mountaineers|hikers|skiers|alpinists)\s+(?:were\s+|are\s+)?(?:killed|dead|died|deceased|missing|lost|presumed dead)\b`)
	reBodiesOf        = regexp.MustCompile(`(?i)\bbodies\s+of\s+(?:the\s+|all\s+)?(` + numWord + `)\b`)
	reNBodies         = regexp.MustCompile(`(?i)\b(` + numWord + `)\s+(?:bodies|victims|fatalities)\b`)
	reInjured         = regexp.MustCompile(`(?i)\b(` + numWord + `)\s+(?:\w+\s+){0,2}?injured\b`)
	rePartySize       = regexp.MustCompile(`(?i)\b(?:party|group|team)\s+of\s+(` + numWord + `)\b`)
)

// countRule matches cardinal numbers (digits or number words) adjacent to
// casualty keywords. Keyword-proximity counts carry a fixed 0.6 weight.
type countRule struct{}

func (r *countRule) Name() string { return "keyword_count" }

func (r *countRule) Apply(in Input) Matches {
	var out Matches

	if fv, ok := countField(in.Text, model.FieldNFatalities, reFatalitySubject, reBodiesOf, reNBodies); ok {
		out.Fields = append(out.Fields, fv)
		// A fatality count implies the event type.
		out.Fields = append(out.Fields, model.FieldValue{
			Field:      model.FieldEventType,
			Value:      "fatality",
			Confidence: ConfKeywordCount,
			Source:     model.SourceRules,
			Evidence:   retag(fv.Evidence, model.FieldEventType),
		})
	}
	if fv, ok := countField(in.Text, model.FieldNInjured, reInjured); ok {
		out.Fields = append(out.Fields, fv)
	}
	if fv, ok := countField(in.Text, model.FieldPartySize, rePartySize); ok {
		out.Fields = append(out.Fields, fv)
	}
	return out
}

// countField tries each pattern in turn against the full text and claims the
// earliest match across all of them, so pattern order does not matter.
func countField(text, field string, patterns ...*regexp.Regexp) (model.FieldValue, bool) {
	bestStart := -1
	var bestQuote string
	var bestN int

	for _, re := range patterns {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		n, ok := parseCount(text[loc[2]:loc[3]])
		if !ok || n == 0 {
			continue
		}
		if bestStart == -1 || loc[0] < bestStart {
			bestStart = loc[0]
			bestQuote = text[loc[0]:loc[1]]
			bestN = n
		}
	}
	if bestStart == -1 {
		return model.FieldValue{}, false
	}
	return model.FieldValue{
		Field:      field,
		Value:      strconv.Itoa(bestN),
		Confidence: ConfKeywordCount,
		Source:     model.SourceRules,
		Evidence: []model.Evidence{{
			Field:  field,
			Quote:  bestQuote,
			Offset: bestStart,
		}},
	}, true
}

func parseCount(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, ok := numberWords[s]; ok {
		return n, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func retag(evidence []model.Evidence, field string) []model.Evidence {
	out := make([]model.Evidence, len(evidence))
	for i, ev := range evidence {
		ev.Field = field
		out[i] = ev
	}
	return out
}
