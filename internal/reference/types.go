package reference

import "regexp"

// Source is the provenance flag attached to a matched record. Primary
// records always outrank aliases at the same fuzz level, which outrank
// neighbour-derived and approximate matches.
type Source string

const (
	SourcePrimary          Source = "G"   // primary reference name
	SourceAlias            Source = "GA"  // alias reference name
	SourceNeighbour        Source = "GN"  // derived from a neighbouring locality
	SourceSoundex          Source = "GS"  // phonetic match on a primary name
	SourceLevenshtein      Source = "GL"  // edit-distance match on a primary name
	SourceAliasSoundex     Source = "GAS" // phonetic match on an alias
	SourceAliasLevenshtein Source = "GAL" // edit-distance match on an alias
	SourceNone             Source = ""
)

// Soundexed degrades a source flag to its phonetic-match variant.
func (s Source) Soundexed() Source {
	switch s {
	case SourcePrimary:
		return SourceSoundex
	case SourceAlias:
		return SourceAliasSoundex
	}
	return s
}

// Levenshteined degrades a source flag to its edit-distance variant.
func (s Source) Levenshteined() Source {
	switch s {
	case SourcePrimary:
		return SourceLevenshtein
	case SourceAlias:
		return SourceAliasLevenshtein
	}
	return s
}

// GeocodeSource records how precise a geocode is.
type GeocodeSource int

const (
	GeocodeNone GeocodeSource = iota
	GeocodePostcode
	GeocodeLocality
	GeocodeStreet
	GeocodePoint
)

func (g GeocodeSource) String() string {
	switch g {
	case GeocodePoint:
		return "point"
	case GeocodeStreet:
		return "street"
	case GeocodeLocality:
		return "locality"
	case GeocodePostcode:
		return "postcode"
	}
	return "none"
}

// Geocode is a longitude/latitude pair with its statistical area and local
// government area codes.
type Geocode struct {
	Longitude float64
	Latitude  float64
	Source    GeocodeSource
	SA1       string
	LGA       string
}

// State is an Australian state or territory.
type State struct {
	Pid          string
	Name         string
	Abbreviation string
}

// Locality is a suburb or locality. Multiple localities may share a name
// (different states) or a postcode; the uniqueness key is (name, state).
type Locality struct {
	Pid       string
	Name      string
	StatePid  string
	Postcodes []string
	Source    Source // SourcePrimary or SourceAlias
	Geocode   Geocode
}

// Street belongs to one or more localities (boundary streets).
type Street struct {
	Pid          string
	Name         string
	TypeCode     string
	SuffixCode   string
	LocalityPids []string
	Source       Source // SourcePrimary or SourceAlias
	Geocode      Geocode
}

// AddressDetail is a single address record on a street.
type AddressDetail struct {
	Pid          string
	StreetPid    string
	LocalityPid  string
	BuildingName string
	LotNumber    string
	NumberFirst  int
	NumberLast   int
	Reliability  int
	Geocode      Geocode
}

// Covers reports whether a house number falls within the record's number
// range, or equals its lot number. Numeric matching is never fuzzed.
func (a *AddressDetail) Covers(houseNo int, lot string) bool {
	if lot != "" && a.LotNumber != "" && lot == a.LotNumber {
		return true
	}
	if a.NumberFirst == 0 && a.NumberLast == 0 {
		return false
	}
	last := a.NumberLast
	if last == 0 {
		last = a.NumberFirst
	}
	return houseNo >= a.NumberFirst && houseNo <= last
}

// PostcodeGeo is the last-resort postcode geography, consulted only when
// locality and street resolution both fail.
type PostcodeGeo struct {
	Postcode string
	Suburb   string
	State    string
	Geocode  Geocode
}

// StreetType is an authority street type (AVENUE, STREET, ...) with its
// abbreviation and description.
type StreetType struct {
	Code        string
	Name        string
	Description string
}

// Cardinality governs whether a service delivery code is followed by a
// number.
type Cardinality int

const (
	CardinalityNever    Cardinality = iota // "0"
	CardinalityOptional                    // "*"
	CardinalityRequired                    // "1"
)

func (c Cardinality) String() string {
	switch c {
	case CardinalityNever:
		return "never"
	case CardinalityOptional:
		return "optional"
	}
	return "required"
}

// ServiceRule is a postal service delivery pattern such as "PO BOX" or
// "RMB", with the cardinality of its trailing number.
type ServiceRule struct {
	Code        string
	Cardinality Cardinality
	Pattern     *regexp.Regexp
}
