package cluster

import (
	"sort"
	"time"

	"github.com/kvollan/ridgeline/internal/model"
)

// electCanonical rebuilds a cluster's canonical field set from its members.
// Per field the highest-confidence value wins; ties break per policy, then
// by arrival order. The election is deterministic for any member ordering.
func electCanonical(c *model.Cluster, tiebreak string, required []string, weights map[string]float64) {
	type contender struct {
		fv model.FieldValue
		m  model.Member
	}
	winners := make(map[string]contender)

	for _, m := range c.Members {
		if m.Record == nil {
			continue
		}
		for _, name := range m.Record.FieldNames() {
			fv, _ := m.Record.Get(name)
			cur, exists := winners[name]
			if !exists || beats(fv, m, cur.fv, cur.m, tiebreak) {
				winners[name] = contender{fv: fv, m: m}
			}
		}
	}

	canonical := make(map[string]model.FieldValue, len(winners))
	for name, w := range winners {
		canonical[name] = w.fv
	}

	c.Canonical = canonical
	c.Overall = overallConfidence(canonical, required, weights)
	c.Coords = electCoords(c.Members)
	c.SAR = mergeSAR(c.Members)
}

// beats reports whether challenger (from member cm) displaces incumbent
// (from member im).
func beats(challenger model.FieldValue, cm model.Member, incumbent model.FieldValue, im model.Member, tiebreak string) bool {
	if challenger.Confidence != incumbent.Confidence {
		return challenger.Confidence > incumbent.Confidence
	}

	if tiebreak != model.TiebreakFirstSeen {
		cp, ip := publishedOf(cm), publishedOf(im)
		switch {
		case cp != nil && ip == nil:
			return true
		case cp == nil && ip != nil:
			return false
		case cp != nil && ip != nil && !cp.Equal(*ip):
			return cp.Before(*ip)
		}
	}

	return seqOf(cm) < seqOf(im)
}

func publishedOf(m model.Member) *time.Time {
	if m.Document == nil {
		return nil
	}
	return m.Document.Published
}

func seqOf(m model.Member) int {
	if m.Document == nil {
		return int(^uint(0) >> 1) // never wins a tie
	}
	return m.Document.Seq
}

// overallConfidence is the weighted mean of required-field canonical
// confidences, with an event start date standing in for a missing death
// date.
func overallConfidence(canonical map[string]model.FieldValue, required []string, weights map[string]float64) float64 {
	if len(required) == 0 {
		required = model.DefaultRequiredFields()
	}

	var sum, total float64
	for _, field := range required {
		conf := canonical[field].Confidence
		if field == model.FieldDateOfDeath {
			if alt := canonical[model.FieldDateEventStart].Confidence; alt > conf {
				conf = alt
			}
		}
		weight := 1.0
		if w, ok := weights[field]; ok && w > 0 {
			weight = w
		}
		sum += conf * weight
		total += weight
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// electCoords picks coordinates from the most confident member that
// resolved any, preferring earlier arrivals on ties.
func electCoords(members []model.Member) *model.LatLon {
	var best *model.LatLon
	bestConf := -1.0
	bestSeq := 0

	for _, m := range members {
		if m.Record == nil || m.Record.Coords == nil {
			continue
		}
		seq := seqOf(m)
		if m.Record.Overall > bestConf || (m.Record.Overall == bestConf && seq < bestSeq) {
			coords := *m.Record.Coords
			best = &coords
			bestConf = m.Record.Overall
			bestSeq = seq
		}
	}
	return best
}

// mergeSAR unions member SAR segments, deduplicated by agency and op type.
func mergeSAR(members []model.Member) []model.SARSegment {
	seen := make(map[string]model.SARSegment)
	for _, m := range members {
		if m.Record == nil {
			continue
		}
		for _, seg := range m.Record.SAR {
			key := seg.Agency + "|" + string(seg.OpType)
			if existing, ok := seen[key]; ok {
				// Keep the segment with more date detail.
				if dateDetail(seg) <= dateDetail(existing) {
					continue
				}
			}
			seen[key] = seg
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]model.SARSegment, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out
}

func dateDetail(s model.SARSegment) int {
	n := 0
	if s.StartedAt != nil {
		n++
	}
	if s.EndedAt != nil {
		n++
	}
	return n
}
