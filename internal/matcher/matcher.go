package matcher

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gnaf-verify/internal/extract"
	"github.com/gnaf-verify/internal/fuzzy"
	"github.com/gnaf-verify/internal/reference"
)

// MinFuzzLevel and MaxFuzzLevel bound the search widening schedule.
const (
	MinFuzzLevel = 1
	MaxFuzzLevel = 10
)

// Config holds the trust weights and the widening schedule. Weights rank
// provenance: a primary-name hit always outranks an alias hit at the same
// level, which outranks phonetic and edit-distance hits.
type Config struct {
	SuburbWeights map[reference.Source]int
	StreetWeights map[reference.Source]int
	FuzzLevels    []int
	Exhaustive    bool
}

// DefaultConfig mirrors the standard trust table.
func DefaultConfig() Config {
	return Config{
		SuburbWeights: map[reference.Source]int{
			reference.SourcePrimary:          10,
			reference.SourceAlias:            9,
			reference.SourceNeighbour:        8,
			reference.SourceSoundex:          5,
			reference.SourceLevenshtein:      4,
			reference.SourceAliasSoundex:     2,
			reference.SourceAliasLevenshtein: 1,
		},
		StreetWeights: map[reference.Source]int{
			reference.SourcePrimary:          10,
			reference.SourceAlias:            9,
			reference.SourceSoundex:          5,
			reference.SourceLevenshtein:      4,
			reference.SourceAliasSoundex:     2,
			reference.SourceAliasLevenshtein: 1,
		},
		FuzzLevels: FullFuzzLevels(),
		Exhaustive: false,
	}
}

// FullFuzzLevels widens all the way to cross-state matching.
func FullFuzzLevels() []int {
	return []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
}

// NoFuzzLevels restricts the search to exact and alias names.
func NoFuzzLevels() []int {
	return []int{1}
}

// LocalityCandidate is a suburb admitted to the search.
type LocalityCandidate struct {
	Locality        *reference.Locality
	Source          reference.Source
	FuzzLevel       int
	PostcodeMatched bool
}

// StreetCandidate is a street admitted under one of its localities.
type StreetCandidate struct {
	Street       *reference.Street
	LocalityPid  string
	Source       reference.Source
	FuzzLevel    int
	TypeMismatch bool
	parkedAt     int
}

// Matcher runs ranked fuzzy lookups against the reference index. It is
// stateless; per-request state lives in a Search.
type Matcher struct {
	idx *reference.Index
	cfg Config
	log zerolog.Logger
}

func New(idx *reference.Index, cfg Config, log zerolog.Logger) *Matcher {
	return &Matcher{idx: idx, cfg: cfg, log: log.With().Str("component", "matcher").Logger()}
}

func (m *Matcher) Config() Config {
	return m.cfg
}

// Search is the widening candidate search for one address. It is not safe
// for concurrent use; each request builds its own.
type Search struct {
	m     *Matcher
	comps extract.Components

	localities map[string]*LocalityCandidate // keyed by locality pid
	streets    map[string]*StreetCandidate   // keyed by street pid + locality pid
	parked     map[string]*StreetCandidate
}

// NewSearch starts a search over the extracted components.
func (m *Matcher) NewSearch(comps extract.Components) *Search {
	return &Search{
		m:          m,
		comps:      comps,
		localities: make(map[string]*LocalityCandidate),
		streets:    make(map[string]*StreetCandidate),
		parked:     make(map[string]*StreetCandidate),
	}
}

// Expand widens the search to one fuzz level. Levels are cumulative and
// must be applied in ascending order. Earlier finds are never displaced by
// later, weaker ones.
func (s *Search) Expand(ctx context.Context, level int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch level {
	case 1:
		s.seedLocalities(false)
		s.findStreetsExact(level, true)
	case 2:
		s.findStreetsBySound(level)
	case 3:
		if err := s.findStreetsByDistance(ctx, level); err != nil {
			return err
		}
	case 4:
		s.expandLocalitiesBySound(level)
		s.findStreetsExact(level, true)
	case 5:
		if err := s.expandLocalitiesByDistance(ctx, level); err != nil {
			return err
		}
		s.findStreetsExact(level, true)
	case 6:
		s.expandNeighbours(level)
		s.findStreetsExact(level, true)
	case 7:
		s.promoteParked(level, 2, 3)
	case 8:
		s.promoteParked(level, 4, 5)
	case 9:
		s.findStreetsExact(level, false)
	case 10:
		s.seedLocalities(true)
		s.findStreetsExact(level, true)
	}
	return nil
}

// Localities returns the admitted suburbs, best first.
func (s *Search) Localities() []*LocalityCandidate {
	out := make([]*LocalityCandidate, 0, len(s.localities))
	for _, c := range s.localities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := s.SuburbWeight(out[i]), s.SuburbWeight(out[j])
		if wi != wj {
			return wi > wj
		}
		if out[i].FuzzLevel != out[j].FuzzLevel {
			return out[i].FuzzLevel < out[j].FuzzLevel
		}
		return out[i].Locality.Pid < out[j].Locality.Pid
	})
	return out
}

// Streets returns the admitted streets, best first.
func (s *Search) Streets() []*StreetCandidate {
	out := make([]*StreetCandidate, 0, len(s.streets))
	for _, c := range s.streets {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := s.CombinedWeight(out[i]), s.CombinedWeight(out[j])
		if wi != wj {
			return wi > wj
		}
		if out[i].FuzzLevel != out[j].FuzzLevel {
			return out[i].FuzzLevel < out[j].FuzzLevel
		}
		if out[i].Street.Pid != out[j].Street.Pid {
			return out[i].Street.Pid < out[j].Street.Pid
		}
		return out[i].LocalityPid < out[j].LocalityPid
	})
	return out
}

// SuburbWeight is the configured trust weight of a locality candidate. A
// postcode disagreement costs three points but never eliminates.
func (s *Search) SuburbWeight(c *LocalityCandidate) int {
	w := s.m.cfg.SuburbWeights[c.Source]
	if !c.PostcodeMatched {
		w -= 3
	}
	if w < 0 {
		w = 0
	}
	return w
}

// StreetWeight is the configured trust weight of a street candidate.
func (s *Search) StreetWeight(c *StreetCandidate) int {
	w := s.m.cfg.StreetWeights[c.Source]
	if c.TypeMismatch {
		w -= 2
	}
	if w < 0 {
		w = 0
	}
	return w
}

// CombinedWeight ranks a street candidate by both its own provenance and
// its suburb's: street trust dominates, suburb trust breaks ties.
func (s *Search) CombinedWeight(c *StreetCandidate) int {
	suburb := 0
	if lc, ok := s.localities[c.LocalityPid]; ok {
		suburb = s.SuburbWeight(lc)
	}
	return 10*s.StreetWeight(c) + 5*suburb
}

// MatchHouse returns the address records on a candidate street covering
// the extracted house number or lot. Numbers are compared by range
// membership only, never fuzzily.
func (s *Search) MatchHouse(c *StreetCandidate) []*reference.AddressDetail {
	if s.comps.Number == 0 && s.comps.Lot == "" {
		return nil
	}
	var out []*reference.AddressDetail
	for _, addr := range s.m.idx.AddressesOnStreet(c.Street.Pid) {
		if addr.LocalityPid != c.LocalityPid {
			continue
		}
		if addr.Covers(s.comps.Number, s.comps.Lot) {
			out = append(out, addr)
		}
	}
	return out
}

// --- locality admission ---

func (s *Search) admitLocality(loc *reference.Locality, source reference.Source, level int) {
	if _, ok := s.localities[loc.Pid]; ok {
		return
	}
	s.localities[loc.Pid] = &LocalityCandidate{
		Locality:        loc,
		Source:          source,
		FuzzLevel:       level,
		PostcodeMatched: s.postcodeMatches(loc),
	}
}

func (s *Search) postcodeMatches(loc *reference.Locality) bool {
	if s.comps.Postcode == "" {
		return true
	}
	for _, pc := range loc.Postcodes {
		if pc == s.comps.Postcode {
			return true
		}
	}
	return false
}

func (s *Search) stateAllows(loc *reference.Locality, crossState bool) bool {
	return crossState || s.comps.StatePid == "" || loc.StatePid == s.comps.StatePid
}

// localityNames collects the locality text of every partition plus the
// suburb hint. Each partition contributes every trailing token suffix of
// its locality text, longest first, so leading debris such as an unknown
// building or box prefix cannot hide the suburb name at the end.
func (s *Search) localityNames() []string {
	var names []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	add(s.comps.SuburbHint)
	for _, part := range s.comps.Partitions {
		for i := range part.LocalityTokens {
			add(reference.CleanName(strings.Join(part.LocalityTokens[i:], " ")))
		}
	}
	return names
}

// seedLocalities admits exact and alias name hits. With no locality text
// at all, the postcode anchor seeds the candidate set instead; failing
// that, a lone state anchor does. Level 10 repeats the seeding with the
// state constraint lifted.
func (s *Search) seedLocalities(crossState bool) {
	level := MinFuzzLevel
	if crossState {
		level = MaxFuzzLevel
	}

	names := s.localityNames()
	for _, name := range names {
		for _, loc := range s.m.idx.LocalitiesByName(name) {
			if s.stateAllows(loc, crossState) {
				s.admitLocality(loc, loc.Source, level)
			}
		}
	}

	if len(s.localities) == 0 && s.comps.Postcode != "" {
		for _, loc := range s.m.idx.LocalitiesInPostcode(s.comps.Postcode) {
			if s.stateAllows(loc, crossState) {
				s.admitLocality(loc, loc.Source, level)
			}
		}
	}
	// A lone state anchor is too broad to seed from unless there is no
	// locality text at all.
	if len(s.localities) == 0 && len(names) == 0 && s.comps.StatePid != "" && !crossState {
		for _, loc := range s.m.idx.LocalitiesInState(s.comps.StatePid) {
			s.admitLocality(loc, loc.Source, level)
		}
	}
}

func (s *Search) expandLocalitiesBySound(level int) {
	for _, name := range s.localityNames() {
		maxDist := (len(name) + 6) / 4
		for _, loc := range s.m.idx.LocalitiesBySound(fuzzy.Soundex(name)) {
			if !s.stateAllows(loc, false) {
				continue
			}
			if loc.Name != name && !fuzzy.Within(loc.Name, name, maxDist) {
				continue
			}
			s.admitLocality(loc, loc.Source.Soundexed(), level)
		}
	}
}

func (s *Search) expandLocalitiesByDistance(ctx context.Context, level int) error {
	for _, name := range s.localityNames() {
		maxDist := (len(name) + 2) / 4
		if maxDist < 1 {
			continue
		}
		var found []string
		s.m.idx.EachLocalityName(len(name)-2, len(name)+2, func(cand string) {
			if cand != name && fuzzy.Within(cand, name, maxDist) {
				found = append(found, cand)
			}
		})
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, cand := range found {
			for _, loc := range s.m.idx.LocalitiesByName(cand) {
				if s.stateAllows(loc, false) {
					s.admitLocality(loc, loc.Source.Levenshteined(), level)
				}
			}
		}
	}
	return nil
}

func (s *Search) expandNeighbours(level int) {
	// Snapshot first: neighbours of neighbours stay out.
	base := make([]*LocalityCandidate, 0, len(s.localities))
	for _, c := range s.localities {
		base = append(base, c)
	}
	for _, c := range base {
		for _, pid := range s.m.idx.NeighboursOf(c.Locality.Pid) {
			if loc, ok := s.m.idx.Locality(pid); ok && s.stateAllows(loc, false) {
				s.admitLocality(loc, reference.SourceNeighbour, level)
			}
		}
	}
}

// --- street admission ---

func (s *Search) admitStreet(st *reference.Street, localityPid string, source reference.Source, level int, typeMismatch bool) {
	key := st.Pid + "~" + localityPid
	cand := &StreetCandidate{
		Street:       st,
		LocalityPid:  localityPid,
		Source:       source,
		FuzzLevel:    level,
		TypeMismatch: typeMismatch,
	}

	lc := s.localities[localityPid]
	fuzzyHit := source != reference.SourcePrimary && source != reference.SourceAlias
	if lc != nil && !lc.PostcodeMatched && fuzzyHit {
		// Fuzzy hits in a wrong-postcode suburb wait for the
		// re-admission levels.
		if _, ok := s.parked[key]; !ok {
			cand.parkedAt = level
			s.parked[key] = cand
		}
		return
	}
	if _, ok := s.streets[key]; !ok {
		s.streets[key] = cand
	}
}

func (s *Search) promoteParked(level, from, to int) {
	for key, cand := range s.parked {
		if cand.parkedAt < from || cand.parkedAt > to {
			continue
		}
		if _, ok := s.streets[key]; !ok {
			cand.FuzzLevel = level
			s.streets[key] = cand
		}
		delete(s.parked, key)
	}
}

// streetNames returns the distinct partition street names with their
// declared type and suffix codes.
func (s *Search) streetNames() []extract.Partition {
	var parts []extract.Partition
	seen := make(map[string]bool)
	for _, part := range s.comps.Partitions {
		name := reference.CleanName(part.StreetName())
		if name == "" {
			continue
		}
		key := name + "~" + part.StreetType + "~" + part.StreetSuffix
		if seen[key] {
			continue
		}
		seen[key] = true
		parts = append(parts, part)
	}
	return parts
}

func typeCompatible(part extract.Partition, st *reference.Street) bool {
	if part.StreetType != "" && part.StreetType != st.TypeCode {
		return false
	}
	if part.StreetSuffix != "" && st.SuffixCode != "" && part.StreetSuffix != st.SuffixCode {
		return false
	}
	return true
}

// findStreetsExact admits streets whose normalized name equals a partition
// street name, inside admitted suburbs. matchType false is the level 9
// pass: same name, different type, reduced trust.
func (s *Search) findStreetsExact(level int, matchType bool) {
	for _, part := range s.streetNames() {
		name := reference.CleanName(part.StreetName())
		for _, st := range s.m.idx.StreetsByName(name) {
			compatible := typeCompatible(part, st)
			if matchType && !compatible {
				continue
			}
			if !matchType && compatible {
				continue // already admitted by an earlier level
			}
			for _, locPid := range st.LocalityPids {
				if _, ok := s.localities[locPid]; ok {
					s.admitStreet(st, locPid, st.Source, level, !compatible)
				}
			}
		}
	}
}

func (s *Search) findStreetsBySound(level int) {
	for _, part := range s.streetNames() {
		name := reference.CleanName(part.StreetName())
		maxDist := (len(name) + 6) / 4
		for _, st := range s.m.idx.StreetsBySound(fuzzy.Soundex(name)) {
			if st.Name == name || !typeCompatible(part, st) {
				continue
			}
			if !fuzzy.Within(st.Name, name, maxDist) {
				continue
			}
			for _, locPid := range st.LocalityPids {
				if _, ok := s.localities[locPid]; ok {
					s.admitStreet(st, locPid, st.Source.Soundexed(), level, false)
				}
			}
		}
	}
}

func (s *Search) findStreetsByDistance(ctx context.Context, level int) error {
	for _, part := range s.streetNames() {
		name := reference.CleanName(part.StreetName())
		maxDist := (len(name) + 2) / 4
		if maxDist < 1 {
			continue
		}
		var found []string
		s.m.idx.EachStreetName(len(name)-2, len(name)+2, func(cand string) {
			if cand != name && fuzzy.Within(cand, name, maxDist) {
				found = append(found, cand)
			}
		})
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, cand := range found {
			for _, st := range s.m.idx.StreetsByName(cand) {
				if !typeCompatible(part, st) {
					continue
				}
				for _, locPid := range st.LocalityPids {
					if _, ok := s.localities[locPid]; ok {
						s.admitStreet(st, locPid, st.Source.Levenshteined(), level, false)
					}
				}
			}
		}
	}
	return nil
}
