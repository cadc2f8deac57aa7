package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnaf-verify/internal/metrics"
	"github.com/gnaf-verify/internal/reference"
	"github.com/gnaf-verify/internal/verify"
)

func testServer(t *testing.T) *Server {
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
		"neighbours": {},
		"street_details": {
			{"STREET_PID": "st1", "STREET_NAME": "Ward", "STREET_TYPE": "ST", "STREET_SUFFIX": "", "LOCALITY_PID": "loc1", "ALIAS": "P"},
		},
		"address_detail": {
			{"ADDRESS_PID": "ad1", "STREET_PID": "st1", "LOCALITY_PID": "loc1", "BUILDING_NAME": "", "LOT_NUMBER": "",
				"NUMBER_FIRST": "12", "NUMBER_LAST": "", "LONGITUDE": "146.25", "LATITUDE": "-20.08",
				"SA1": "30901", "LGA": "LGA1", "RELIABILITY": "2"},
		},
		"postcode_geo": {
			{"POSTCODE": "4820", "SUBURB": "MILLCHESTER", "STATE": "QLD", "SA1": "30901", "LGA": "LGA1",
				"LONGITUDE": "146.26", "LATITUDE": "-20.07"},
		},
	}
	idx, err := reference.Build(src, reference.Options{}, zerolog.Nop())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	engine := verify.NewEngine(idx, verify.DefaultConfig(), met, zerolog.Nop())
	return NewServer("127.0.0.1:0", engine, reg, zerolog.Nop())
}

func postJSON(t *testing.T, s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleVerify(t *testing.T) {
	s := testServer(t)

	rec := postJSON(t, s, "/api/v1/verify", verify.Request{
		AddressLines: []string{"12 Ward St", "Millchester QLD 4820"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp verify.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Address found", resp.Status)
	assert.Equal(t, 4, resp.Accuracy)
	require.NotNil(t, resp.Matched)
	assert.Equal(t, "ad1", resp.Matched.AddressPid)
}

func TestHandleVerifyRejectsBadInput(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/verify", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, s, "/api/v1/verify", verify.Request{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleVerifyBatch(t *testing.T) {
	s := testServer(t)

	rec := postJSON(t, s, "/api/v1/verify/batch", batchRequest{
		Addresses: []verify.Request{
			{RequestID: "a", AddressLines: []string{"12 Ward St Millchester"}},
			{RequestID: "b", AddressLines: []string{"nowhere at all"}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "Address found", resp.Results[0].Status)
	assert.Equal(t, "Address not found", resp.Results[1].Status)

	rec = postJSON(t, s, "/api/v1/verify/batch", batchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Drive one request so the counters exist, then scrape.
	postJSON(t, s, "/api/v1/verify", verify.Request{AddressLines: []string{"12 Ward St Millchester"}})

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gnaf_verify_requests_total")
}
