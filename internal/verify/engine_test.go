package verify

import (
	"context"
	"testing"
	"time"

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
			{"LOCALITY_PID": "loc1", "LOCALITY_NAME": "Somewhere", "STATE_PID": "3", "POSTCODE": "2844", "ALIAS": "P"},
			{"LOCALITY_PID": "loc2", "LOCALITY_NAME": "Millchester", "STATE_PID": "3", "POSTCODE": "4820", "ALIAS": "P"},
			{"LOCALITY_PID": "loc3", "LOCALITY_NAME": "Queenton", "STATE_PID": "3", "POSTCODE": "4820", "ALIAS": "P"},
			{"LOCALITY_PID": "locA", "LOCALITY_NAME": "Alpha", "STATE_PID": "3", "POSTCODE": "4000", "ALIAS": "P"},
			{"LOCALITY_PID": "locB", "LOCALITY_NAME": "Beta", "STATE_PID": "3", "POSTCODE": "4000", "ALIAS": "P"},
		},
		"neighbours": {
			{"LOCALITY_PID": "loc2", "NEIGHBOUR_LOCALITY_PID": "loc3"},
		},
		"locality_geo": {
			{"LOCALITY_PID": "loc2", "LONGITUDE": "146.26", "LATITUDE": "-20.07", "SA1": "30901", "LGA": "LGA1"},
		},
		"street_details": {
			{"STREET_PID": "st1", "STREET_NAME": "Ward", "STREET_TYPE": "ST", "STREET_SUFFIX": "", "LOCALITY_PID": "loc1", "ALIAS": "P"},
			{"STREET_PID": "st2", "STREET_NAME": "High", "STREET_TYPE": "ST", "STREET_SUFFIX": "", "LOCALITY_PID": "loc3", "ALIAS": "P"},
			{"STREET_PID": "st3", "STREET_NAME": "Gill", "STREET_TYPE": "ST", "STREET_SUFFIX": "", "LOCALITY_PID": "loc2", "ALIAS": "P"},
			{"STREET_PID": "stA", "STREET_NAME": "Ward", "STREET_TYPE": "ST", "STREET_SUFFIX": "", "LOCALITY_PID": "locA", "ALIAS": "P"},
			{"STREET_PID": "stB", "STREET_NAME": "Ward", "STREET_TYPE": "ST", "STREET_SUFFIX": "", "LOCALITY_PID": "locB", "ALIAS": "P"},
		},
		"address_detail": {
			{"ADDRESS_PID": "ad1", "STREET_PID": "st1", "LOCALITY_PID": "loc1", "BUILDING_NAME": "", "LOT_NUMBER": "",
				"NUMBER_FIRST": "12", "NUMBER_LAST": "", "LONGITUDE": "150.001", "LATITUDE": "-33.001",
				"SA1": "10001", "LGA": "LGA3", "RELIABILITY": "2"},
			{"ADDRESS_PID": "ad2", "STREET_PID": "st3", "LOCALITY_PID": "loc2", "BUILDING_NAME": "TOWERS HOUSE", "LOT_NUMBER": "",
				"NUMBER_FIRST": "10", "NUMBER_LAST": "20", "LONGITUDE": "146.25", "LATITUDE": "-20.08",
				"SA1": "30901", "LGA": "LGA1", "RELIABILITY": "2"},
		},
		"postcode_geo": {
			{"POSTCODE": "2844", "SUBURB": "SOMEWHERE", "STATE": "QLD", "SA1": "10001", "LGA": "LGA3",
				"LONGITUDE": "150.0", "LATITUDE": "-33.0"},
			{"POSTCODE": "4820", "SUBURB": "MILLCHESTER", "STATE": "QLD", "SA1": "30901", "LGA": "LGA1",
				"LONGITUDE": "146.26", "LATITUDE": "-20.07"},
			{"POSTCODE": "4000", "SUBURB": "BRISBANE", "STATE": "QLD", "SA1": "30001", "LGA": "LGA2",
				"LONGITUDE": "153.02", "LATITUDE": "-27.47"},
		},
		"service_delivery": {
			{"CODE": "CARE PO", "CARDINALITY": "1"},
			{"CODE": "PO BOX", "CARDINALITY": "1"},
		},
	}
	idx, err := reference.Build(src, reference.Options{}, zerolog.Nop())
	require.NoError(t, err)
	return idx
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(testIndex(t), DefaultConfig(), nil, zerolog.Nop())
}

func TestVerifyExactFullMatch(t *testing.T) {
	e := newEngine(t)

	resp := e.Verify(context.Background(), Request{AddressLines: []string{"12 WARD ST", "QLD2844"}})
	assert.Equal(t, "Address found", resp.Status)
	assert.Equal(t, 4, resp.Accuracy)
	assert.Equal(t, "FullMatch", resp.State)
	assert.Equal(t, 1, resp.FuzzLevel)
	assert.Equal(t, string(reference.SourcePrimary), resp.Source)
	assert.Equal(t, 1.0, resp.Confidence)
	require.NotNil(t, resp.Matched)
	assert.Equal(t, "ad1", resp.Matched.AddressPid)
	assert.Equal(t, "point", resp.Matched.GeocodeOf)
	assert.False(t, resp.Ambiguous)
	assert.NotEmpty(t, resp.RequestID)
}

func TestVerifySuffixedHouseNumber(t *testing.T) {
	e := newEngine(t)

	// 12A resolves to the number-12 record; the letter never takes part
	// in range matching.
	resp := e.Verify(context.Background(), Request{AddressLines: []string{"12A WARD ST QLD2844"}})
	assert.Equal(t, "Address found", resp.Status)
	require.NotNil(t, resp.Matched)
	assert.Equal(t, "ad1", resp.Matched.AddressPid)
}

func TestVerifyPunctuationInvariance(t *testing.T) {
	e := newEngine(t)

	a := e.Verify(context.Background(), Request{AddressLines: []string{"12 WARD ST, QLD2844"}})
	b := e.Verify(context.Background(), Request{AddressLines: []string{"  12,, ward st ...", "qld2844 "}})
	assert.Equal(t, a.Matched, b.Matched)
	assert.Equal(t, a.Confidence, b.Confidence)
	assert.Equal(t, a.State, b.State)
}

func TestVerifyGarbledStreetFallsToLocality(t *testing.T) {
	e := newEngine(t)

	resp := e.Verify(context.Background(), Request{AddressLines: []string{"12 ZZZZQX ST MILLCHESTER"}})
	assert.Equal(t, "Suburb found", resp.Status)
	assert.Equal(t, 2, resp.Accuracy)
	require.NotNil(t, resp.Matched)
	assert.Equal(t, "loc2", resp.Matched.LocalityPid)
	assert.Empty(t, resp.Matched.StreetPid)
	assert.Equal(t, "locality", resp.Matched.GeocodeOf)
}

func TestVerifyNeighbourFallback(t *testing.T) {
	e := newEngine(t)

	resp := e.Verify(context.Background(), Request{AddressLines: []string{"HIGH ST MILLCHESTER"}})
	assert.Equal(t, "Street address found", resp.Status)
	require.NotNil(t, resp.Matched)
	assert.Equal(t, "st2", resp.Matched.StreetPid)
	assert.Equal(t, "loc3", resp.Matched.LocalityPid)
	assert.Equal(t, 6, resp.FuzzLevel)
}

func TestVerifyConfidenceMonotonicity(t *testing.T) {
	e := newEngine(t)

	exact := e.Verify(context.Background(), Request{AddressLines: []string{"GILL ST MILLCHESTER"}})
	phonetic := e.Verify(context.Background(), Request{AddressLines: []string{"GALL ST MILLCHESTER"}})
	locality := e.Verify(context.Background(), Request{AddressLines: []string{"ZZZZQX ST MILLCHESTER"}})

	assert.Greater(t, exact.Confidence, phonetic.Confidence)
	assert.Greater(t, phonetic.Confidence, locality.Confidence)
	assert.Greater(t, locality.Confidence, 0.0)
}

func TestVerifyDeterministicTies(t *testing.T) {
	e := newEngine(t)

	req := Request{AddressLines: []string{"WARD ST"}, Postcode: "4000"}
	first := e.Verify(context.Background(), req)
	second := e.Verify(context.Background(), req)

	assert.True(t, first.Ambiguous)
	require.Len(t, first.TiedIDs, 2)
	assert.Equal(t, first.TiedIDs, second.TiedIDs)
	assert.Equal(t, first.Matched, second.Matched)
}

func TestVerifyStructuredHints(t *testing.T) {
	e := newEngine(t)

	resp := e.Verify(context.Background(), Request{
		AddressLines: []string{"12 Ward St"},
		Suburb:       "Somewhere",
		State:        "QLD",
		Postcode:     "2844",
	})
	assert.Equal(t, "Address found", resp.Status)
	require.NotNil(t, resp.Matched)
	assert.Equal(t, "ad1", resp.Matched.AddressPid)
}

func TestVerifyCardinalityDiagnostic(t *testing.T) {
	e := newEngine(t)

	resp := e.Verify(context.Background(), Request{AddressLines: []string{"CARE PO MILLCHESTER"}})
	found := false
	for _, d := range resp.Diagnostics {
		if len(d) > 0 && d[0] == 'S' {
			found = true
		}
	}
	assert.True(t, found, "cardinality violation should be in diagnostics: %v", resp.Diagnostics)
	// Normalization continued: the suburb still resolves.
	assert.Equal(t, "Suburb found", resp.Status)
}

func TestVerifyNoMatch(t *testing.T) {
	e := newEngine(t)

	resp := e.Verify(context.Background(), Request{AddressLines: []string{"QQQXYZW"}})
	assert.Equal(t, "Address not found", resp.Status)
	assert.Equal(t, 0, resp.Accuracy)
	assert.Nil(t, resp.Matched)
}

func TestVerifyTimeoutIsolated(t *testing.T) {
	e := newEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := e.Verify(ctx, Request{AddressLines: []string{"12 WARD ST QLD2844"}})
	assert.True(t, resp.TimedOut)
	assert.Equal(t, "Address not found", resp.Status)

	// A timed-out request leaves the engine untouched.
	resp = e.Verify(context.Background(), Request{AddressLines: []string{"12 WARD ST QLD2844"}})
	assert.Equal(t, "Address found", resp.Status)
}

func TestVerifyBatch(t *testing.T) {
	e := newEngine(t)

	reqs := []Request{
		{RequestID: "a", AddressLines: []string{"12 WARD ST QLD2844"}},
		{RequestID: "b", AddressLines: []string{"QQQXYZW"}},
		{RequestID: "c", AddressLines: []string{"GILL ST MILLCHESTER"}},
		{RequestID: "d", AddressLines: nil},
	}
	resps := e.VerifyBatch(context.Background(), reqs)
	require.Len(t, resps, 4)

	// Order preserved; one unmatchable record affects nobody else.
	assert.Equal(t, "a", resps[0].RequestID)
	assert.Equal(t, "Address found", resps[0].Status)
	assert.Equal(t, "Address not found", resps[1].Status)
	assert.Equal(t, "Street address found", resps[2].Status)
	assert.Equal(t, "Address not found", resps[3].Status)
}

func TestVerifyBatchDeterministic(t *testing.T) {
	e := newEngine(t)

	reqs := []Request{
		{RequestID: "x", AddressLines: []string{"WARD ST"}, Postcode: "4000"},
		{RequestID: "y", AddressLines: []string{"12 WARD ST QLD2844"}},
	}
	a := e.VerifyBatch(context.Background(), reqs)
	b := e.VerifyBatch(context.Background(), reqs)
	require.Len(t, a, 2)
	assert.Equal(t, a[0].TiedIDs, b[0].TiedIDs)
	assert.Equal(t, a[1].Matched, b[1].Matched)
}

func TestVerifyRespectsConfiguredTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = time.Nanosecond
	e := NewEngine(testIndex(t), cfg, nil, zerolog.Nop())

	time.Sleep(time.Millisecond)
	resp := e.Verify(context.Background(), Request{AddressLines: []string{"12 WARD ST QLD2844"}})
	// A nanosecond budget may or may not expire before the first check;
	// either way the engine answers rather than erroring.
	assert.NotEmpty(t, resp.Status)
}
