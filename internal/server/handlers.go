package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/vulnwatch/cvescan/internal/scan"
	"github.com/vulnwatch/cvescan/pkg/debsecan"
	"github.com/vulnwatch/cvescan/pkg/sshconn"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	logger := reqLog(r)

	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct != "application/json" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Content-Type must be application/json"})
		return
	}

	var req scan.Request
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}

	logger.Infof("scan requested for host=%s suite=%s threshold=%.1f", req.Host, req.Suite, req.MinScore)

	result, err := s.svc.Run(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		logger.Warnf("scan failed (%d): %v", status, err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	logger.Infof("scan finished: %d records of %d CVEs",
		result.Summary.TotalRecordsOutput, result.Summary.TotalCVEsSeen)
	writeJSON(w, http.StatusOK, result)
}

// statusFor classifies pipeline errors: bad input 400, target
// connectivity or tool failure 502, anything else 500. Per-identifier
// score failures never get here; they live in the summary counters.
func statusFor(err error) int {
	var (
		ve *scan.ValidationError
		ce *sshconn.ConnectError
		te *debsecan.ToolError
	)

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ce):
		return http.StatusBadGateway
	case errors.As(err, &te):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
