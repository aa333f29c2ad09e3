package extract

import (
	"regexp"
	"strings"

	"github.com/kvollan/ridgeline/internal/model"
)

// agencyGazetteer is the finite gazetteer of known SAR organizations and
// their alias patterns.
var agencyGazetteer = []struct {
	name string
	re   *regexp.Regexp
}{
	{"Squamish Search and Rescue", regexp.MustCompile(`(?i)\bsquamish\s+(?:search\s+and\s+rescue|sar)\b`)},
	{"Whistler Search and Rescue", regexp.MustCompile(`(?i)\bwhistler\s+(?:search\s+and\s+rescue|sar)\b`)},
	{"North Shore Rescue", regexp.MustCompile(`(?i)\bnorth\s+shore\s+rescue\b`)},
	{"Kananaskis Mountain Rescue", regexp.MustCompile(`(?i)\bkananaskis\s+(?:mountain\s+rescue|public\s+safety)\b`)},
	{"Parks Canada", regexp.MustCompile(`(?i)\bparks\s+canada\b`)},
	{"RCMP", regexp.MustCompile(`(?i)\brcmp\b|\broyal\s+canadian\s+mounted\s+police\b`)},
	{"King County Sheriff", regexp.MustCompile(`(?i)\bking\s+county\s+sheriff\b`)},
	{"Mountain Rescue Association", regexp.MustCompile(`(?i)\bmountain\s+rescue\s+association\b`)},
}

const agencyWindow = 80

// agencyRule matches the organization gazetteer and records one SAR segment
// per agency, classifying the operation from nearby language.
type agencyRule struct{}

func (r *agencyRule) Name() string { return "agency_gazetteer" }

func (r *agencyRule) Apply(in Input) Matches {
	var out Matches
	for _, agency := range agencyGazetteer {
		loc := agency.re.FindStringIndex(in.Text)
		if loc == nil {
			continue
		}
		out.SAR = append(out.SAR, model.SARSegment{
			Agency: agency.name,
			OpType: classifyOp(in.Text, loc[0], loc[1]),
		})
	}
	return out
}

// classifyOp infers the operation type from the text surrounding an agency
// mention. Recovery language dominates, then rescue, defaulting to search.
func classifyOp(text string, start, end int) model.SAROpType {
	a := start - agencyWindow
	if a < 0 {
		a = 0
	}
	b := end + agencyWindow
	if b > len(text) {
		b = len(text)
	}
	window := strings.ToLower(text[a:b])

	switch {
	case strings.Contains(window, "recover") || strings.Contains(window, "bodies") || strings.Contains(window, "body"):
		return model.SAROpRecovery
	case strings.Contains(window, "rescu"):
		return model.SAROpRescue
	default:
		return model.SAROpSearch
	}
}
