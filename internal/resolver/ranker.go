package resolver

import "sort"

// fuzzPenalty is the multiplier applied to a candidate's trust weight for
// the fuzz level that found it. Level 1 is full trust; each deeper level
// shaves five percent.
func fuzzPenalty(level int) float64 {
	if level < 1 {
		level = 1
	}
	p := 1.0 - 0.05*float64(level-1)
	if p < 0.1 {
		p = 0.1
	}
	return p
}

// statePenalty prices the fallback: a street-level answer is worth less
// than a full one at equal trust, and so on down.
func statePenalty(s State) float64 {
	switch s {
	case FullMatch:
		return 0
	case StreetMatch:
		return 5
	case LocalityMatch:
		return 20
	case PostcodeMatch:
		return 40
	}
	return 100
}

// maxScore is the best achievable score: full trust weight, level 1,
// no state penalty. Used to normalize confidence.
const maxScore = 150.0

// rank scores and orders candidates in place: score descending, then
// weight descending, then fuzz level ascending, then identifier.
func rank(cands []*Candidate) {
	for _, c := range cands {
		c.Score = float64(c.Weight)*fuzzPenalty(c.FuzzLevel) - statePenalty(c.State)
		conf := c.Score / maxScore
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		c.Confidence = conf
	}
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.FuzzLevel != b.FuzzLevel {
			return a.FuzzLevel < b.FuzzLevel
		}
		return a.ID() < b.ID()
	})
}

// tiedSet returns every candidate that ties with the leader after all
// tie-break rules except the identifier. A set larger than one means the
// result is ambiguous and the caller reports the whole set.
func tiedSet(cands []*Candidate) []*Candidate {
	if len(cands) == 0 {
		return nil
	}
	top := cands[0]
	var tied []*Candidate
	for _, c := range cands {
		if c.Score == top.Score && c.Weight == top.Weight && c.FuzzLevel == top.FuzzLevel {
			tied = append(tied, c)
		} else {
			break
		}
	}
	return tied
}
