package reference

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gnaf-verify/internal/fuzzy"
	"github.com/gnaf-verify/internal/rules"
)

// Options controls index construction.
type Options struct {
	// Filters holds optional compiled predicates applied to override table
	// rows before they are merged. Keyed by table name.
	Filters map[string]*rules.Predicate
}

// Index is the immutable in-memory reference hierarchy. It is built once at
// startup and may be shared across any number of concurrent matching
// workers without locking; nothing is mutated after Build returns.
type Index struct {
	states       map[string]State
	stateByToken map[string]string // abbreviation or full name -> state pid

	localities         map[string]*Locality
	localityByName     map[string][]*Locality
	localityBySound    map[string][]*Locality
	localityNamesByLen map[int][]string
	postcodeLocalities map[string][]*Locality
	stateLocalities    map[string][]*Locality
	maxLocalityNameLen int

	neighbours map[string][]string

	streets          map[string]*Street
	streetsByLoc     map[string][]*Street
	streetsByName    map[string][]*Street
	streetsBySound   map[string][]*Street
	streetNamesByLen map[int][]string

	addressesByStreet map[string][]*AddressDetail

	postcodeGeo map[string][]*PostcodeGeo
	postcodes   map[string]bool

	streetTypes       map[string]StreetType
	streetTypeTokens  map[string]string
	streetSuffixes    map[string]StreetType
	suffixTokens      map[string]string
	streetTypeCounts  map[string]int
	flatMarkers       []string
	levelMarkers      []string
	trimPatterns      []*regexp.Regexp
	serviceRules      []ServiceRule
}

// CleanName folds a single reference name the same way query text is
// folded: upper case, punctuation to spaces (hyphens kept, space around
// them removed), whitespace collapsed.
func CleanName(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	s = strings.Join(strings.Fields(b.String()), " ")
	s = strings.ReplaceAll(s, " - ", "-")
	s = strings.ReplaceAll(s, "- ", "-")
	s = strings.ReplaceAll(s, " -", "-")
	return strings.TrimSuffix(s, "-")
}

// Build loads every reference table from src and assembles the lookup
// structures. Missing required tables and duplicate primary keys are fatal.
func Build(src TableSource, opts Options, log zerolog.Logger) (*Index, error) {
	idx := &Index{
		states:             make(map[string]State),
		stateByToken:       make(map[string]string),
		localities:         make(map[string]*Locality),
		localityByName:     make(map[string][]*Locality),
		localityBySound:    make(map[string][]*Locality),
		localityNamesByLen: make(map[int][]string),
		postcodeLocalities: make(map[string][]*Locality),
		stateLocalities:    make(map[string][]*Locality),
		neighbours:         make(map[string][]string),
		streets:            make(map[string]*Street),
		streetsByLoc:       make(map[string][]*Street),
		streetsByName:      make(map[string][]*Street),
		streetsBySound:     make(map[string][]*Street),
		streetNamesByLen:   make(map[int][]string),
		addressesByStreet:  make(map[string][]*AddressDetail),
		postcodeGeo:        make(map[string][]*PostcodeGeo),
		postcodes:          make(map[string]bool),
		streetTypes:        make(map[string]StreetType),
		streetTypeTokens:   make(map[string]string),
		streetSuffixes:     make(map[string]StreetType),
		suffixTokens:       make(map[string]string),
		streetTypeCounts:   make(map[string]int),
	}

	steps := []func(TableSource, Options, zerolog.Logger) error{
		idx.loadStates,
		idx.loadStreetTypes,
		idx.loadLocalities,
		idx.loadNeighbours,
		idx.loadStreets,
		idx.loadAddresses,
		idx.loadPostcodeGeo,
		idx.loadServiceRules,
		idx.loadMarkers,
	}
	for _, step := range steps {
		if err := step(src, opts, log); err != nil {
			return nil, err
		}
	}

	idx.freeze()
	log.Info().
		Int("states", len(idx.states)).
		Int("localities", len(idx.localities)).
		Int("streets", len(idx.streets)).
		Int("postcodes", len(idx.postcodes)).
		Msg("reference index built")
	return idx, nil
}

func (idx *Index) loadStates(src TableSource, _ Options, _ zerolog.Logger) error {
	rows, err := src.Load("state", []string{"STATE_PID", "STATE_NAME", "STATE_ABBREVIATION"})
	if err != nil {
		return err
	}
	for _, row := range rows {
		pid := row.Get("STATE_PID")
		if _, dup := idx.states[pid]; dup {
			return fmt.Errorf("%w: state %s", ErrDuplicateKey, pid)
		}
		st := State{
			Pid:          pid,
			Name:         CleanName(row.Get("STATE_NAME")),
			Abbreviation: strings.ToUpper(row.Get("STATE_ABBREVIATION")),
		}
		idx.states[pid] = st
		idx.stateByToken[st.Abbreviation] = pid
		idx.stateByToken[st.Name] = pid
	}
	return nil
}

func (idx *Index) loadStreetTypes(src TableSource, opts Options, _ zerolog.Logger) error {
	rows, err := src.Load("street_type", []string{"CODE", "NAME", "DESCRIPTION"})
	if err != nil {
		return err
	}
	for _, row := range rows {
		idx.addStreetType(row)
	}
	if extra, ok, err := src.LoadOptional("extraStreetTypes", []string{"CODE", "NAME"}); err != nil {
		return err
	} else if ok {
		for _, row := range filterRows(extra, opts.Filters["extraStreetTypes"]) {
			idx.addStreetType(row)
		}
	}

	rows, err = src.Load("street_suffix", []string{"CODE", "NAME", "DESCRIPTION"})
	if err != nil {
		return err
	}
	for _, row := range rows {
		idx.addStreetSuffix(row)
	}
	if extra, ok, err := src.LoadOptional("extraStreetSuffixes", []string{"CODE", "NAME"}); err != nil {
		return err
	} else if ok {
		for _, row := range filterRows(extra, opts.Filters["extraStreetSuffixes"]) {
			idx.addStreetSuffix(row)
		}
	}
	return nil
}

func (idx *Index) addStreetType(row Row) {
	code := CleanName(row.Get("CODE"))
	st := StreetType{Code: code, Name: CleanName(row.Get("NAME")), Description: CleanName(row.Get("DESCRIPTION"))}
	idx.streetTypes[code] = st
	for _, tok := range []string{st.Code, st.Name, st.Description} {
		if tok != "" {
			idx.streetTypeTokens[tok] = code
		}
	}
}

func (idx *Index) addStreetSuffix(row Row) {
	code := CleanName(row.Get("CODE"))
	st := StreetType{Code: code, Name: CleanName(row.Get("NAME")), Description: CleanName(row.Get("DESCRIPTION"))}
	idx.streetSuffixes[code] = st
	for _, tok := range []string{st.Code, st.Name, st.Description} {
		if tok != "" {
			idx.suffixTokens[tok] = code
		}
	}
}

func (idx *Index) loadLocalities(src TableSource, opts Options, log zerolog.Logger) error {
	rows, err := src.Load("locality", []string{"LOCALITY_PID", "LOCALITY_NAME", "STATE_PID", "POSTCODE", "ALIAS"})
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := idx.addLocality(row, false); err != nil {
			return err
		}
	}
	if extra, ok, err := src.LoadOptional("extraLocalities", []string{"LOCALITY_PID", "LOCALITY_NAME", "STATE_PID", "POSTCODE"}); err != nil {
		return err
	} else if ok {
		kept := filterRows(extra, opts.Filters["extraLocalities"])
		log.Debug().Int("rows", len(kept)).Msg("merging extra localities")
		for _, row := range kept {
			if err := idx.addLocality(row, true); err != nil {
				return err
			}
		}
	}

	if geo, ok, err := src.LoadOptional("locality_geo", []string{"LOCALITY_PID", "LONGITUDE", "LATITUDE", "SA1", "LGA"}); err != nil {
		return err
	} else if ok {
		for _, row := range geo {
			loc, known := idx.localities[row.Get("LOCALITY_PID")]
			if !known {
				continue
			}
			loc.Geocode = parseGeocode(row, GeocodeLocality)
		}
	}
	return nil
}

func (idx *Index) addLocality(row Row, override bool) error {
	pid := row.Get("LOCALITY_PID")
	name := CleanName(row.Get("LOCALITY_NAME"))
	statePid := row.Get("STATE_PID")
	postcode := row.Get("POSTCODE")
	if _, known := idx.states[statePid]; !known {
		return fmt.Errorf("locality %s references unknown state %s", pid, statePid)
	}

	if existing, ok := idx.localities[pid]; ok {
		if override || (existing.Name == name && existing.StatePid == statePid) {
			if override {
				existing.Name = name
				existing.StatePid = statePid
			}
			if postcode != "" && !containsString(existing.Postcodes, postcode) {
				existing.Postcodes = append(existing.Postcodes, postcode)
			}
			return nil
		}
		return fmt.Errorf("%w: locality %s", ErrDuplicateKey, pid)
	}

	source := SourcePrimary
	if strings.EqualFold(row.Get("ALIAS"), "A") || strings.EqualFold(row.Get("ALIAS"), "Y") {
		source = SourceAlias
	}
	loc := &Locality{Pid: pid, Name: name, StatePid: statePid, Source: source}
	if postcode != "" {
		loc.Postcodes = []string{postcode}
	}
	idx.localities[pid] = loc
	return nil
}

func (idx *Index) loadNeighbours(src TableSource, _ Options, _ zerolog.Logger) error {
	rows, err := src.Load("neighbours", []string{"LOCALITY_PID", "NEIGHBOUR_LOCALITY_PID"})
	if err != nil {
		return err
	}
	seen := make(map[string]map[string]bool)
	add := func(a, b string) {
		if a == "" || b == "" || a == b {
			return
		}
		if seen[a] == nil {
			seen[a] = make(map[string]bool)
		}
		seen[a][b] = true
	}
	for _, row := range rows {
		a, b := row.Get("LOCALITY_PID"), row.Get("NEIGHBOUR_LOCALITY_PID")
		// The neighbour relation is symmetric even when only one
		// direction is recorded.
		add(a, b)
		add(b, a)
	}
	for pid, set := range seen {
		if _, known := idx.localities[pid]; !known {
			continue
		}
		for n := range set {
			if _, known := idx.localities[n]; known {
				idx.neighbours[pid] = append(idx.neighbours[pid], n)
			}
		}
		sort.Strings(idx.neighbours[pid])
	}
	return nil
}

func (idx *Index) loadStreets(src TableSource, _ Options, _ zerolog.Logger) error {
	rows, err := src.Load("street_details", []string{"STREET_PID", "STREET_NAME", "STREET_TYPE", "STREET_SUFFIX", "LOCALITY_PID", "ALIAS"})
	if err != nil {
		return err
	}
	for _, row := range rows {
		pid := row.Get("STREET_PID")
		name := CleanName(row.Get("STREET_NAME"))
		locPid := row.Get("LOCALITY_PID")
		if _, known := idx.localities[locPid]; !known {
			return fmt.Errorf("street %s references unknown locality %s", pid, locPid)
		}

		if existing, ok := idx.streets[pid]; ok {
			// Boundary streets repeat the pid, once per locality.
			if existing.Name != name {
				return fmt.Errorf("%w: street %s", ErrDuplicateKey, pid)
			}
			if !containsString(existing.LocalityPids, locPid) {
				existing.LocalityPids = append(existing.LocalityPids, locPid)
			}
			continue
		}

		source := SourcePrimary
		if strings.EqualFold(row.Get("ALIAS"), "A") || strings.EqualFold(row.Get("ALIAS"), "Y") {
			source = SourceAlias
		}
		idx.streets[pid] = &Street{
			Pid:          pid,
			Name:         name,
			TypeCode:     CleanName(row.Get("STREET_TYPE")),
			SuffixCode:   CleanName(row.Get("STREET_SUFFIX")),
			LocalityPids: []string{locPid},
			Source:       source,
		}
		idx.streetTypeCounts[CleanName(row.Get("STREET_TYPE"))]++
	}

	if geo, ok, err := src.LoadOptional("street_geo", []string{"STREET_PID", "LONGITUDE", "LATITUDE", "SA1", "LGA"}); err != nil {
		return err
	} else if ok {
		for _, row := range geo {
			st, known := idx.streets[row.Get("STREET_PID")]
			if !known {
				continue
			}
			st.Geocode = parseGeocode(row, GeocodeStreet)
		}
	}
	return nil
}

func (idx *Index) loadAddresses(src TableSource, _ Options, _ zerolog.Logger) error {
	required := []string{
		"ADDRESS_PID", "STREET_PID", "LOCALITY_PID", "BUILDING_NAME", "LOT_NUMBER",
		"NUMBER_FIRST", "NUMBER_LAST", "LONGITUDE", "LATITUDE", "SA1", "LGA", "RELIABILITY",
	}
	rows, err := src.Load("address_detail", required)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		pid := row.Get("ADDRESS_PID")
		if seen[pid] {
			return fmt.Errorf("%w: address %s", ErrDuplicateKey, pid)
		}
		seen[pid] = true

		streetPid := row.Get("STREET_PID")
		locPid := row.Get("LOCALITY_PID")
		if _, known := idx.streets[streetPid]; !known {
			return fmt.Errorf("address %s references unknown street %s", pid, streetPid)
		}
		if _, known := idx.localities[locPid]; !known {
			return fmt.Errorf("address %s references unknown locality %s", pid, locPid)
		}

		addr := &AddressDetail{
			Pid:          pid,
			StreetPid:    streetPid,
			LocalityPid:  locPid,
			BuildingName: CleanName(row.Get("BUILDING_NAME")),
			LotNumber:    CleanName(row.Get("LOT_NUMBER")),
			NumberFirst:  atoiDefault(row.Get("NUMBER_FIRST"), 0),
			NumberLast:   atoiDefault(row.Get("NUMBER_LAST"), 0),
			Reliability:  atoiDefault(row.Get("RELIABILITY"), 0),
			Geocode:      parseGeocode(row, GeocodePoint),
		}
		idx.addressesByStreet[streetPid] = append(idx.addressesByStreet[streetPid], addr)
	}
	return nil
}

func (idx *Index) loadPostcodeGeo(src TableSource, opts Options, _ zerolog.Logger) error {
	required := []string{"POSTCODE", "SUBURB", "STATE", "SA1", "LGA", "LONGITUDE", "LATITUDE"}
	rows, err := src.Load("postcode_geo", required)
	if err != nil {
		return err
	}
	add := func(row Row) {
		pc := row.Get("POSTCODE")
		idx.postcodes[pc] = true
		idx.postcodeGeo[pc] = append(idx.postcodeGeo[pc], &PostcodeGeo{
			Postcode: pc,
			Suburb:   CleanName(row.Get("SUBURB")),
			State:    strings.ToUpper(row.Get("STATE")),
			Geocode:  parseGeocode(row, GeocodePostcode),
		})
	}
	for _, row := range rows {
		add(row)
	}
	if extra, ok, err := src.LoadOptional("extraPostcodeGeo", required); err != nil {
		return err
	} else if ok {
		for _, row := range filterRows(extra, opts.Filters["extraPostcodeGeo"]) {
			add(row)
		}
	}
	return nil
}

func (idx *Index) loadServiceRules(src TableSource, _ Options, _ zerolog.Logger) error {
	rows, ok, err := src.LoadOptional("service_delivery", []string{"CODE", "CARDINALITY"})
	if err != nil || !ok {
		return err
	}
	for _, row := range rows {
		code := CleanName(row.Get("CODE"))
		if code == "" {
			continue
		}
		var card Cardinality
		switch row.Get("CARDINALITY") {
		case "0":
			card = CardinalityNever
		case "*":
			card = CardinalityOptional
		case "1":
			card = CardinalityRequired
		default:
			return fmt.Errorf("service delivery rule %q: bad cardinality %q", code, row.Get("CARDINALITY"))
		}
		pattern, err := regexp.Compile(`\b` + strings.ReplaceAll(regexp.QuoteMeta(code), ` `, `\s+`) + `\b`)
		if err != nil {
			return fmt.Errorf("service delivery rule %q: %w", code, err)
		}
		idx.serviceRules = append(idx.serviceRules, ServiceRule{Code: code, Cardinality: card, Pattern: pattern})
	}
	// Longest code first so "PO BOX" wins over "PO".
	sort.Slice(idx.serviceRules, func(i, j int) bool {
		if len(idx.serviceRules[i].Code) != len(idx.serviceRules[j].Code) {
			return len(idx.serviceRules[i].Code) > len(idx.serviceRules[j].Code)
		}
		return idx.serviceRules[i].Code < idx.serviceRules[j].Code
	})
	return nil
}

func (idx *Index) loadMarkers(src TableSource, opts Options, _ zerolog.Logger) error {
	idx.flatMarkers = []string{"FLAT", "UNIT", "APARTMENT", "SHOP", "SUITE", "VILLA"}
	idx.levelMarkers = []string{"LEVEL", "FLOOR", "BASEMENT", "MEZZANINE"}

	loadCodes := func(table string) ([]string, error) {
		rows, ok, err := src.LoadOptional(table, []string{"CODE"})
		if err != nil || !ok {
			return nil, err
		}
		var out []string
		for _, row := range filterRows(rows, opts.Filters[table]) {
			if code := CleanName(row.Get("CODE")); code != "" {
				out = append(out, code)
			}
		}
		return out, nil
	}

	extraFlats, err := loadCodes("flats")
	if err != nil {
		return err
	}
	for _, code := range extraFlats {
		if !containsString(idx.flatMarkers, code) {
			idx.flatMarkers = append(idx.flatMarkers, code)
		}
	}
	extraLevels, err := loadCodes("levels")
	if err != nil {
		return err
	}
	for _, code := range extraLevels {
		if !containsString(idx.levelMarkers, code) {
			idx.levelMarkers = append(idx.levelMarkers, code)
		}
	}

	trims, err := loadCodes("trims")
	if err != nil {
		return err
	}
	for _, code := range trims {
		pattern, err := regexp.Compile(`^` + strings.ReplaceAll(regexp.QuoteMeta(code), ` `, `\s+`) + `\b`)
		if err != nil {
			return fmt.Errorf("trim rule %q: %w", code, err)
		}
		idx.trimPatterns = append(idx.trimPatterns, pattern)
	}
	return nil
}

// freeze derives the secondary lookup structures once all tables are
// loaded, then sorts everything for reproducible iteration order.
func (idx *Index) freeze() {
	localityNameSeen := make(map[string]bool)
	for _, loc := range idx.localities {
		idx.localityByName[loc.Name] = append(idx.localityByName[loc.Name], loc)
		idx.localityBySound[fuzzy.Soundex(loc.Name)] = append(idx.localityBySound[fuzzy.Soundex(loc.Name)], loc)
		idx.stateLocalities[loc.StatePid] = append(idx.stateLocalities[loc.StatePid], loc)
		for _, pc := range loc.Postcodes {
			idx.postcodeLocalities[pc] = append(idx.postcodeLocalities[pc], loc)
			idx.postcodes[pc] = true
		}
		if !localityNameSeen[loc.Name] {
			localityNameSeen[loc.Name] = true
			idx.localityNamesByLen[len(loc.Name)] = append(idx.localityNamesByLen[len(loc.Name)], loc.Name)
			if len(loc.Name) > idx.maxLocalityNameLen {
				idx.maxLocalityNameLen = len(loc.Name)
			}
		}
	}

	streetNameSeen := make(map[string]bool)
	for _, st := range idx.streets {
		idx.streetsByName[st.Name] = append(idx.streetsByName[st.Name], st)
		idx.streetsBySound[fuzzy.Soundex(st.Name)] = append(idx.streetsBySound[fuzzy.Soundex(st.Name)], st)
		for _, locPid := range st.LocalityPids {
			idx.streetsByLoc[locPid] = append(idx.streetsByLoc[locPid], st)
		}
		if !streetNameSeen[st.Name] {
			streetNameSeen[st.Name] = true
			idx.streetNamesByLen[len(st.Name)] = append(idx.streetNamesByLen[len(st.Name)], st.Name)
		}
	}

	sortLocs := func(m map[string][]*Locality) {
		for _, locs := range m {
			sort.Slice(locs, func(i, j int) bool { return locs[i].Pid < locs[j].Pid })
		}
	}
	sortLocs(idx.localityByName)
	sortLocs(idx.localityBySound)
	sortLocs(idx.postcodeLocalities)
	sortLocs(idx.stateLocalities)

	sortStreets := func(m map[string][]*Street) {
		for _, sts := range m {
			sort.Slice(sts, func(i, j int) bool { return sts[i].Pid < sts[j].Pid })
		}
	}
	sortStreets(idx.streetsByName)
	sortStreets(idx.streetsBySound)
	sortStreets(idx.streetsByLoc)

	for _, names := range idx.localityNamesByLen {
		sort.Strings(names)
	}
	for _, names := range idx.streetNamesByLen {
		sort.Strings(names)
	}
	for _, addrs := range idx.addressesByStreet {
		sort.Slice(addrs, func(i, j int) bool { return addrs[i].Pid < addrs[j].Pid })
	}
	for _, geos := range idx.postcodeGeo {
		sort.Slice(geos, func(i, j int) bool { return geos[i].Suburb < geos[j].Suburb })
	}
}

// --- lookups ---

// StateByToken resolves a state abbreviation or full name.
func (idx *Index) StateByToken(tok string) (State, bool) {
	pid, ok := idx.stateByToken[CleanName(tok)]
	if !ok {
		return State{}, false
	}
	return idx.states[pid], true
}

// StateByPid returns a state by identifier.
func (idx *Index) StateByPid(pid string) (State, bool) {
	st, ok := idx.states[pid]
	return st, ok
}

// IsPostcode reports whether the postcode appears anywhere in the
// reference data.
func (idx *Index) IsPostcode(pc string) bool {
	return idx.postcodes[pc]
}

// Locality returns a locality by identifier.
func (idx *Index) Locality(pid string) (*Locality, bool) {
	loc, ok := idx.localities[pid]
	return loc, ok
}

// LocalitiesByName returns all localities sharing a normalized name.
func (idx *Index) LocalitiesByName(name string) []*Locality {
	return idx.localityByName[CleanName(name)]
}

// LocalitiesBySound returns all localities whose name shares a soundex key.
func (idx *Index) LocalitiesBySound(sound string) []*Locality {
	return idx.localityBySound[sound]
}

// LocalitiesInPostcode returns the localities recorded against a postcode.
func (idx *Index) LocalitiesInPostcode(pc string) []*Locality {
	return idx.postcodeLocalities[pc]
}

// LocalitiesInState returns every locality of a state.
func (idx *Index) LocalitiesInState(statePid string) []*Locality {
	return idx.stateLocalities[statePid]
}

// EachLocalityName visits every distinct locality name with length in
// [minLen, maxLen], in deterministic order.
func (idx *Index) EachLocalityName(minLen, maxLen int, fn func(name string)) {
	for l := minLen; l <= maxLen; l++ {
		for _, name := range idx.localityNamesByLen[l] {
			fn(name)
		}
	}
}

// MaxLocalityNameLen returns the length of the longest locality name.
func (idx *Index) MaxLocalityNameLen() int {
	return idx.maxLocalityNameLen
}

// NeighboursOf returns the sorted neighbour locality identifiers.
func (idx *Index) NeighboursOf(pid string) []string {
	return idx.neighbours[pid]
}

// Street returns a street by identifier.
func (idx *Index) Street(pid string) (*Street, bool) {
	st, ok := idx.streets[pid]
	return st, ok
}

// StreetsInLocality returns all streets owned by a locality.
func (idx *Index) StreetsInLocality(locPid string) []*Street {
	return idx.streetsByLoc[locPid]
}

// StreetsByName returns all streets sharing a normalized name, across all
// localities.
func (idx *Index) StreetsByName(name string) []*Street {
	return idx.streetsByName[CleanName(name)]
}

// StreetsBySound returns all streets whose name shares a soundex key.
func (idx *Index) StreetsBySound(sound string) []*Street {
	return idx.streetsBySound[sound]
}

// EachStreetName visits every distinct street name with length in
// [minLen, maxLen], in deterministic order.
func (idx *Index) EachStreetName(minLen, maxLen int, fn func(name string)) {
	for l := minLen; l <= maxLen; l++ {
		for _, name := range idx.streetNamesByLen[l] {
			fn(name)
		}
	}
}

// AddressesOnStreet returns the address records of a street, ordered by
// identifier.
func (idx *Index) AddressesOnStreet(streetPid string) []*AddressDetail {
	return idx.addressesByStreet[streetPid]
}

// PostcodeFallback returns the approximate geography for a postcode. Only
// consulted when locality and street resolution fail.
func (idx *Index) PostcodeFallback(pc string) (*PostcodeGeo, bool) {
	geos := idx.postcodeGeo[pc]
	if len(geos) == 0 {
		return nil, false
	}
	return geos[0], true
}

// StreetTypeCode resolves a street type token (code, name or description)
// to its authority code.
func (idx *Index) StreetTypeCode(tok string) (string, bool) {
	code, ok := idx.streetTypeTokens[CleanName(tok)]
	return code, ok
}

// StreetTypeName returns the display name for a street type code.
func (idx *Index) StreetTypeName(code string) string {
	if st, ok := idx.streetTypes[code]; ok && st.Name != "" {
		return st.Name
	}
	return code
}

// StreetTypeCodes returns every known street type code, sorted.
func (idx *Index) StreetTypeCodes() []string {
	codes := make([]string, 0, len(idx.streetTypes))
	for code := range idx.streetTypes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// StreetTypeCount returns how many reference streets use a type code.
func (idx *Index) StreetTypeCount(code string) int {
	return idx.streetTypeCounts[code]
}

// StreetSuffixCode resolves a street suffix token to its authority code.
func (idx *Index) StreetSuffixCode(tok string) (string, bool) {
	code, ok := idx.suffixTokens[CleanName(tok)]
	return code, ok
}

// ServiceRules returns the postal service delivery rules, longest code
// first.
func (idx *Index) ServiceRules() []ServiceRule {
	return idx.serviceRules
}

// FlatMarkers returns the tokens that introduce a flat/unit number.
func (idx *Index) FlatMarkers() []string {
	return idx.flatMarkers
}

// LevelMarkers returns the tokens that introduce a level number.
func (idx *Index) LevelMarkers() []string {
	return idx.levelMarkers
}

// TrimPatterns returns the override patterns for unregistered leading text.
func (idx *Index) TrimPatterns() []*regexp.Regexp {
	return idx.trimPatterns
}

// --- helpers ---

func filterRows(rows []Row, pred *rules.Predicate) []Row {
	if pred == nil {
		return rows
	}
	var out []Row
	for _, row := range rows {
		if pred.Eval(row) {
			out = append(out, row)
		}
	}
	return out
}

func parseGeocode(row Row, src GeocodeSource) Geocode {
	lon, lonErr := strconv.ParseFloat(row.Get("LONGITUDE"), 64)
	lat, latErr := strconv.ParseFloat(row.Get("LATITUDE"), 64)
	if lonErr != nil || latErr != nil {
		return Geocode{}
	}
	return Geocode{
		Longitude: lon,
		Latitude:  lat,
		Source:    src,
		SA1:       row.Get("SA1"),
		LGA:       row.Get("LGA"),
	}
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
