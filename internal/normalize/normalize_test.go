package normalize

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnaf-verify/internal/reference"
)

func testIndex(t *testing.T) *reference.Index {
	t.Helper()
	src := reference.MapSource{
		"state": {
			{"STATE_PID": "3", "STATE_NAME": "Queensland", "STATE_ABBREVIATION": "QLD"},
		},
		"street_type": {
			{"CODE": "ST", "NAME": "STREET", "DESCRIPTION": "STREET"},
		},
		"street_suffix": {
			{"CODE": "N", "NAME": "NORTH", "DESCRIPTION": "NORTH"},
		},
		"locality": {
			{"LOCALITY_PID": "loc1", "LOCALITY_NAME": "Millchester", "STATE_PID": "3", "POSTCODE": "4820", "ALIAS": "P"},
		},
		"neighbours":     {},
		"street_details": {},
		"address_detail": {},
		"postcode_geo": {
			{"POSTCODE": "4820", "SUBURB": "MILLCHESTER", "STATE": "QLD", "SA1": "30901", "LGA": "LGA1",
				"LONGITUDE": "146.26", "LATITUDE": "-20.07"},
		},
		"service_delivery": {
			{"CODE": "CARE PO", "CARDINALITY": "1"},
			{"CODE": "PO BOX", "CARDINALITY": "1"},
			{"CODE": "GPO", "CARDINALITY": "0"},
			{"CODE": "RSD", "CARDINALITY": "*"},
		},
		"trims": {
			{"CODE": "THE OLD BAKERY"},
		},
	}
	idx, err := reference.Build(src, reference.Options{}, zerolog.Nop())
	require.NoError(t, err)
	return idx
}

func TestClean(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  12 Ward St,  Millchester ", "12 WARD ST MILLCHESTER"},
		{"12, Ward; St.", "12 WARD ST"},
		{"10 - 20 Gill Street", "10-20 GILL STREET"},
		{"3 / 45 Ward St", "3/45 WARD ST"},
		{"unit 3/45 ward st", "UNIT 3/45 WARD ST"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clean(tt.in), tt.in)
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"12 Ward St, Millchester QLD 4820",
		"10 - 20 GILL ST",
		"Flat 5, 3/45 Ward  Street!!",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := New(testIndex(t), zerolog.Nop())

	inputs := []string{
		"Flat 5, 12 Ward St, Millchester",
		"PO Box 12, Millchester",
		"The Old Bakery, 12 Ward St",
	}
	for _, in := range inputs {
		first := n.Normalize(in)
		again := n.Normalize(first.Line)
		assert.Equal(t, first.Line, again.Line, in)
		assert.Equal(t, first.Tokens, again.Tokens, in)
	}
}

func TestNormalizeTrims(t *testing.T) {
	n := New(testIndex(t), zerolog.Nop())

	res := n.Normalize("The Old Bakery, 12 Ward St")
	assert.Equal(t, "12 WARD ST", res.Line)
	assert.Equal(t, []string{"THE OLD BAKERY"}, res.Trimmed)

	// Trim rules only bind at the start of the line.
	res = n.Normalize("12 The Old Bakery Lane")
	assert.Equal(t, "12 THE OLD BAKERY LANE", res.Line)
	assert.Empty(t, res.Trimmed)
}

func TestNormalizeServiceDelivery(t *testing.T) {
	n := New(testIndex(t), zerolog.Nop())

	res := n.Normalize("PO Box 12, Millchester")
	require.NotNil(t, res.Service)
	assert.Equal(t, "PO BOX", res.Service.Code)
	assert.Equal(t, "12", res.Service.Number)
	assert.Equal(t, "MILLCHESTER", res.Line)
	assert.Empty(t, res.Violations)
}

func TestNormalizeServiceNumberLookahead(t *testing.T) {
	n := New(testIndex(t), zerolog.Nop())

	// CARE PO outranks PO BOX (longer code). The number sits one token
	// past the rule text and is still consumed as the service number.
	res := n.Normalize("CARE PO BOX 12 MILLCHESTER")
	require.NotNil(t, res.Service)
	assert.Equal(t, "CARE PO", res.Service.Code)
	assert.Equal(t, "12", res.Service.Number)
	assert.NotContains(t, res.Tokens, "12")
}

func TestNormalizeCardinalityViolation(t *testing.T) {
	n := New(testIndex(t), zerolog.Nop())

	res := n.Normalize("CARE PO MILLCHESTER")
	assert.Nil(t, res.Service)
	require.Len(t, res.Violations, 1)
	assert.Contains(t, res.Violations[0], ViolationCardinality)
	// The text stays put so downstream stages see it unconsumed.
	assert.Equal(t, "CARE PO MILLCHESTER", res.Line)
}

func TestNormalizeNeverCardinality(t *testing.T) {
	n := New(testIndex(t), zerolog.Nop())

	// GPO never takes a number, so 12 survives as a potential house number.
	res := n.Normalize("GPO 12 MILLCHESTER")
	require.NotNil(t, res.Service)
	assert.Equal(t, "GPO", res.Service.Code)
	assert.Empty(t, res.Service.Number)
	assert.Equal(t, "12 MILLCHESTER", res.Line)
}

func TestNormalizeMarkers(t *testing.T) {
	n := New(testIndex(t), zerolog.Nop())

	res := n.Normalize("Flat 5 Level 2 12 Ward St")
	require.NotNil(t, res.Flat)
	assert.Equal(t, Marker{Marker: "FLAT", Number: "5"}, *res.Flat)
	require.NotNil(t, res.Level)
	assert.Equal(t, Marker{Marker: "LEVEL", Number: "2"}, *res.Level)
	assert.Equal(t, "12 WARD ST", res.Line)

	// A marker with no number is street text, not an annotation.
	res = n.Normalize("UNIT ST MILLCHESTER")
	assert.Nil(t, res.Flat)
	assert.Equal(t, "UNIT ST MILLCHESTER", res.Line)
}

func TestNormalizeSteps(t *testing.T) {
	n := New(testIndex(t), zerolog.Nop())

	res := n.Normalize("The Old Bakery, Flat 5, 12 Ward St")
	var names []string
	for _, s := range res.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"clean", "trim", "flat"}, names)
}
