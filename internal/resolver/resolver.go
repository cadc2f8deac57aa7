package resolver

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/gnaf-verify/internal/extract"
	"github.com/gnaf-verify/internal/matcher"
	"github.com/gnaf-verify/internal/reference"
)

// State is the terminal resolution level. Resolution cascades from
// FullMatch down to NoMatch, stopping at the first level that yields
// candidates.
type State int

const (
	NoMatch State = iota
	PostcodeMatch
	LocalityMatch
	StreetMatch
	FullMatch
)

func (s State) String() string {
	switch s {
	case FullMatch:
		return "FullMatch"
	case StreetMatch:
		return "StreetMatch"
	case LocalityMatch:
		return "LocalityMatch"
	case PostcodeMatch:
		return "PostcodeMatch"
	}
	return "NoMatch"
}

// Status is the human-readable verification status.
func (s State) Status() string {
	switch s {
	case FullMatch:
		return "Address found"
	case StreetMatch:
		return "Street address found"
	case LocalityMatch:
		return "Suburb found"
	case PostcodeMatch:
		return "Postcode found"
	}
	return "Address not found"
}

// Accuracy is the numeric accuracy code, 4 (exact address) down to 0.
func (s State) Accuracy() int {
	switch s {
	case FullMatch:
		return 4
	case StreetMatch:
		return 3
	case LocalityMatch:
		return 2
	case PostcodeMatch:
		return 1
	}
	return 0
}

// Candidate is one ranked resolution, at whatever level it resolved.
type Candidate struct {
	State      State
	Address    *reference.AddressDetail
	Street     *matcher.StreetCandidate
	Locality   *matcher.LocalityCandidate
	Geocode    reference.Geocode
	Source     reference.Source
	FuzzLevel  int
	Weight     int
	Score      float64
	Confidence float64
}

// ID is the candidate's stable identifier, used as the final tie-break.
func (c *Candidate) ID() string {
	switch {
	case c.Address != nil:
		return c.Address.Pid
	case c.Street != nil:
		return c.Street.Street.Pid + "~" + c.Street.LocalityPid
	case c.Locality != nil:
		return c.Locality.Locality.Pid
	}
	return c.Geocode.SA1
}

// Outcome is the full result of resolving one address.
type Outcome struct {
	State      State
	Best       *Candidate
	Candidates []*Candidate
	Tied       []*Candidate // more than one entry means Ambiguous
	TimedOut   bool
	FuzzUsed   int // deepest level expanded
}

// Ambiguous reports whether the top candidates tied after every tie-break
// rule.
func (o Outcome) Ambiguous() bool {
	return len(o.Tied) > 1
}

// Config tunes the cascade.
type Config struct {
	// MinCombinedWeight discards street candidates whose combined
	// street and suburb trust falls below it.
	MinCombinedWeight int
	FuzzLevels        []int
	Exhaustive        bool
}

func DefaultConfig() Config {
	return Config{
		MinCombinedWeight: 40,
		FuzzLevels:        matcher.FullFuzzLevels(),
		Exhaustive:        false,
	}
}

// Resolver drives the widening search and settles each request at the
// highest reachable level.
type Resolver struct {
	idx *reference.Index
	m   *matcher.Matcher
	cfg Config
	log zerolog.Logger
}

func New(idx *reference.Index, m *matcher.Matcher, cfg Config, log zerolog.Logger) *Resolver {
	return &Resolver{idx: idx, m: m, cfg: cfg, log: log.With().Str("component", "resolver").Logger()}
}

// Resolve runs the cascade for one extracted address. It never returns an
// error: a timeout or an unmatchable address is an Outcome, not a failure.
func (r *Resolver) Resolve(ctx context.Context, comps extract.Components) Outcome {
	search := r.m.NewSearch(comps)
	wantsHouse := comps.Number != 0 || comps.Lot != ""
	hasStreetText := false
	for _, part := range comps.Partitions {
		if len(part.StreetTokens) > 0 {
			hasStreetText = true
			break
		}
	}

	readings := suburbReadings(comps)

	outcome := Outcome{}
	for _, level := range r.cfg.FuzzLevels {
		if err := search.Expand(ctx, level); err != nil {
			outcome.TimedOut = true
			outcome.State = NoMatch
			r.log.Warn().Int("fuzzLevel", level).Msg("resolution abandoned")
			return outcome
		}
		outcome.FuzzUsed = level
		if r.cfg.Exhaustive {
			continue
		}

		// Short-circuit at the first level that settles the best
		// reachable state for this input.
		if wantsHouse && len(r.fullCandidates(search)) > 0 {
			break
		}
		if !wantsHouse && hasStreetText && len(r.streetCandidates(search)) > 0 {
			break
		}
		if !hasStreetText && len(search.Localities()) > 0 {
			break
		}
		if !wantsHouse && settledOnSuburb(search, readings) {
			break
		}
	}

	outcome.Candidates = r.collect(search, comps, wantsHouse)
	rank(outcome.Candidates)

	if len(outcome.Candidates) == 0 {
		outcome.State = NoMatch
		return outcome
	}
	outcome.Best = outcome.Candidates[0]
	outcome.State = outcome.Best.State
	outcome.Tied = tiedSet(outcome.Candidates)
	return outcome
}

// suburbReadings collects the locality-only readings of the input: the
// partitions carrying no street text, plus the suburb hint. The extractor
// forwards a street reading even for type-less text, so these are the
// readings under which the whole remaining text is a suburb name.
func suburbReadings(comps extract.Components) map[string]bool {
	names := make(map[string]bool)
	if comps.SuburbHint != "" {
		names[comps.SuburbHint] = true
	}
	for _, part := range comps.Partitions {
		if len(part.StreetTokens) == 0 && len(part.LocalityTokens) > 0 {
			names[reference.CleanName(part.LocalityName())] = true
		}
	}
	return names
}

// settledOnSuburb reports whether an exact or alias locality hit consumes
// a whole locality-only reading. Such input is a bare suburb name; the
// search stops there rather than hunting for a street spelled like the
// suburb.
func settledOnSuburb(search *matcher.Search, readings map[string]bool) bool {
	if len(readings) == 0 {
		return false
	}
	for _, lc := range search.Localities() {
		if lc.Source != reference.SourcePrimary && lc.Source != reference.SourceAlias {
			continue
		}
		if readings[lc.Locality.Name] {
			return true
		}
	}
	return false
}

// collect turns the search state into ranked candidates at the highest
// populated level.
func (r *Resolver) collect(search *matcher.Search, comps extract.Components, wantsHouse bool) []*Candidate {
	if wantsHouse {
		if full := r.fullCandidates(search); len(full) > 0 {
			return full
		}
	}
	if streets := r.streetCandidates(search); len(streets) > 0 {
		return streets
	}
	if locs := r.localityCandidates(search); len(locs) > 0 {
		return locs
	}
	return r.postcodeCandidate(comps)
}

func (r *Resolver) fullCandidates(search *matcher.Search) []*Candidate {
	var out []*Candidate
	for _, sc := range search.Streets() {
		weight := search.CombinedWeight(sc)
		if weight < r.cfg.MinCombinedWeight {
			continue
		}
		for _, addr := range search.MatchHouse(sc) {
			out = append(out, &Candidate{
				State:     FullMatch,
				Address:   addr,
				Street:    sc,
				Locality:  r.localityOf(search, sc.LocalityPid),
				Geocode:   addr.Geocode,
				Source:    sc.Source,
				FuzzLevel: sc.FuzzLevel,
				Weight:    weight,
			})
		}
	}
	return out
}

func (r *Resolver) streetCandidates(search *matcher.Search) []*Candidate {
	var out []*Candidate
	for _, sc := range search.Streets() {
		weight := search.CombinedWeight(sc)
		if weight < r.cfg.MinCombinedWeight {
			continue
		}
		geo := sc.Street.Geocode
		if geo.Source == reference.GeocodeNone {
			if lc := r.localityOf(search, sc.LocalityPid); lc != nil {
				geo = lc.Locality.Geocode
			}
		}
		out = append(out, &Candidate{
			State:     StreetMatch,
			Street:    sc,
			Locality:  r.localityOf(search, sc.LocalityPid),
			Geocode:   geo,
			Source:    sc.Source,
			FuzzLevel: sc.FuzzLevel,
			Weight:    weight,
		})
	}
	return out
}

func (r *Resolver) localityCandidates(search *matcher.Search) []*Candidate {
	var out []*Candidate
	for _, lc := range search.Localities() {
		weight := 10 * search.SuburbWeight(lc)
		if weight == 0 {
			continue
		}
		geo := lc.Locality.Geocode
		if geo.Source == reference.GeocodeNone {
			for _, pc := range lc.Locality.Postcodes {
				if fallback, ok := r.idx.PostcodeFallback(pc); ok {
					geo = fallback.Geocode
					break
				}
			}
		}
		out = append(out, &Candidate{
			State:     LocalityMatch,
			Locality:  lc,
			Geocode:   geo,
			Source:    lc.Source,
			FuzzLevel: lc.FuzzLevel,
			Weight:    weight,
		})
	}
	return out
}

func (r *Resolver) postcodeCandidate(comps extract.Components) []*Candidate {
	if comps.Postcode == "" {
		return nil
	}
	fallback, ok := r.idx.PostcodeFallback(comps.Postcode)
	if !ok {
		return nil
	}
	return []*Candidate{{
		State:     PostcodeMatch,
		Geocode:   fallback.Geocode,
		Source:    reference.SourceNone,
		FuzzLevel: matcher.MinFuzzLevel,
		Weight:    1,
	}}
}

func (r *Resolver) localityOf(search *matcher.Search, pid string) *matcher.LocalityCandidate {
	for _, lc := range search.Localities() {
		if lc.Locality.Pid == pid {
			return lc
		}
	}
	return nil
}
