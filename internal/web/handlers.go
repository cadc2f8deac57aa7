package web

import (
	"encoding/json"
	"net/http"

	"github.com/gnaf-verify/internal/verify"
)

const maxBatchSize = 1000

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verify.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if len(req.AddressLines) == 0 && req.Suburb == "" && req.Postcode == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no address supplied"})
		return
	}

	resp := s.engine.Verify(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

type batchRequest struct {
	Addresses []verify.Request `json:"addresses"`
}

type batchResponse struct {
	Results []verify.Response `json:"results"`
}

func (s *Server) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if len(req.Addresses) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty batch"})
		return
	}
	if len(req.Addresses) > maxBatchSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "batch too large"})
		return
	}

	results := s.engine.VerifyBatch(r.Context(), req.Addresses)
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
