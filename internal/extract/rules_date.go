package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/kvollan/ridgeline/internal/model"
)

const months = `January|February|March|April|May|June|July|August|September|October|November|December`

var (
	reISODate  = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)
	reLongDate = regexp.MustCompile(`(?i)\b(` + months + `)\s+(\d{1,2})(?:,\s*(20\d{2}))?\b`)
)

var eventKeywords = []string{
	"avalanche", "disappeared", "descend", "missing", "failed to return",
	"last seen", "killed", "died", "fell", "swept", "slide",
}

var recoveryKeywords = []string{
	"recovered", "recovery", "bodies", "located", "found",
}

var actionWords = []string{
	"avalanche", "descend", "missing", "disappeared", "failed to return",
	"search", "rescue", "recovered", "recovery", "bodies",
}

var publishedWords = []string{"published", "updated", "posted"}

// dateMatch is one date phrase located in the text.
type dateMatch struct {
	date     time.Time
	start    int
	end      int
	explicit bool // carried its own year
}

// dateRule resolves the incident date and the recovery date. The incident
// date is the best-scoring date phrase by keyword proximity, with
// publication bylines penalized; it populates date_of_death,
// date_event_start and date_event_end. The recovery date requires recovery
// language tightly bound to the phrase ("recovered ... on June 4").
type dateRule struct{}

func (r *dateRule) Name() string { return "date_phrase" }

func (r *dateRule) Apply(in Input) Matches {
	matches := findDates(in.Text, in.Published)
	if len(matches) == 0 {
		return Matches{}
	}

	var out Matches
	if best, ok := pickEventDate(in.Text, matches); ok {
		value := best.date.Format(model.DateLayout)
		for _, field := range []string{model.FieldDateOfDeath, model.FieldDateEventStart, model.FieldDateEventEnd} {
			out.Fields = append(out.Fields, model.FieldValue{
				Field:      field,
				Value:      value,
				Confidence: dateConfidence(best),
				Source:     model.SourceRules,
				Evidence: []model.Evidence{{
					Field:  field,
					Quote:  in.Text[best.start:best.end],
					Offset: best.start,
				}},
			})
		}
	}

	if best, ok := pickRecoveryDate(in.Text, matches); ok {
		out.Fields = append(out.Fields, model.FieldValue{
			Field:      model.FieldDateRecovery,
			Value:      best.date.Format(model.DateLayout),
			Confidence: dateConfidence(best),
			Source:     model.SourceRules,
			Evidence: []model.Evidence{{
				Field:  model.FieldDateRecovery,
				Quote:  in.Text[best.start:best.end],
				Offset: best.start,
			}},
		})
	}
	return out
}

func dateConfidence(m dateMatch) float64 {
	if m.explicit {
		return ConfExplicitDate
	}
	return ConfInferredDate
}

// findDates locates every ISO and long-form date phrase. Long-form phrases
// without a year borrow the publication year when known and are otherwise
// skipped.
func findDates(text string, published *time.Time) []dateMatch {
	var out []dateMatch

	for _, idx := range reISODate.FindAllStringIndex(text, -1) {
		t, err := time.Parse(model.DateLayout, text[idx[0]:idx[1]])
		if err != nil {
			continue
		}
		out = append(out, dateMatch{date: t, start: idx[0], end: idx[1], explicit: true})
	}

	for _, idx := range reLongDate.FindAllStringIndex(text, -1) {
		groups := reLongDate.FindStringSubmatch(text[idx[0]:idx[1]])
		if groups == nil {
			continue
		}
		mon, day, year := groups[1], groups[2], groups[3]
		explicit := year != ""
		if year == "" {
			if published == nil {
				continue
			}
			year = fmt.Sprintf("%d", published.Year())
		}
		t, err := dateparse.ParseAny(fmt.Sprintf("%s %s, %s", mon, day, year))
		if err != nil {
			continue
		}
		out = append(out, dateMatch{date: t, start: idx[0], end: idx[1], explicit: explicit})
	}
	return out
}

const (
	keywordWindow = 150 // incident keyword proximity
	bylineWindow  = 40  // published/updated penalty, bylines sit right next to their date
	recoveryGap   = 60  // max distance between recovery language and its date
)

// pickEventDate scores each date by incident-keyword proximity and returns
// the best one. A date scoring zero or less is not claimed. Ties prefer the
// earlier date.
func pickEventDate(text string, matches []dateMatch) (dateMatch, bool) {
	lower := strings.ToLower(text)
	var best dateMatch
	bestScore := 0
	found := false

	for _, m := range matches {
		center := (m.start + m.end) / 2
		window := clip(lower, center-keywordWindow, center+keywordWindow)

		score := 0
		for _, kw := range eventKeywords {
			if strings.Contains(window, kw) {
				score += 3
			}
		}
		for _, w := range actionWords {
			if strings.Contains(window, w) {
				score++
				break
			}
		}
		near := clip(lower, m.start-bylineWindow, m.end+bylineWindow)
		for _, w := range publishedWords {
			if strings.Contains(near, w) {
				score -= 4
				break
			}
		}

		if score <= 0 {
			continue
		}
		if !found || score > bestScore || (score == bestScore && m.date.Before(best.date)) {
			best, bestScore, found = m, score, true
		}
	}
	return best, found
}

// pickRecoveryDate requires a recovery keyword within recoveryGap bytes
// before the date phrase (or shortly after it) and claims the date with the
// tightest binding. Ties prefer the earlier date.
func pickRecoveryDate(text string, matches []dateMatch) (dateMatch, bool) {
	lower := strings.ToLower(text)
	var best dateMatch
	bestGap := 0
	found := false

	for _, m := range matches {
		gap, ok := nearestRecoveryKeyword(lower, m)
		if !ok {
			continue
		}
		if !found || gap < bestGap || (gap == bestGap && m.date.Before(best.date)) {
			best, bestGap, found = m, gap, true
		}
	}
	return best, found
}

func nearestRecoveryKeyword(lower string, m dateMatch) (int, bool) {
	bestGap := -1
	before := clip(lower, m.start-recoveryGap, m.start)
	after := clip(lower, m.end, m.end+recoveryGap)

	for _, kw := range recoveryKeywords {
		if i := strings.LastIndex(before, kw); i >= 0 {
			gap := len(before) - (i + len(kw))
			if bestGap == -1 || gap < bestGap {
				bestGap = gap
			}
		}
		if i := strings.Index(after, kw); i >= 0 {
			if bestGap == -1 || i < bestGap {
				bestGap = i
			}
		}
	}
	return bestGap, bestGap >= 0
}

func clip(s string, a, b int) string {
	if a < 0 {
		a = 0
	}
	if b > len(s) {
		b = len(s)
	}
	if a >= b {
		return ""
	}
	return s[a:b]
}
