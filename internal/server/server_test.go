package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vulnwatch/cvescan/config"
	"github.com/vulnwatch/cvescan/internal/scan"
	"github.com/vulnwatch/cvescan/pkg/debsecan"
	"github.com/vulnwatch/cvescan/pkg/platform"
	"github.com/vulnwatch/cvescan/pkg/sshconn"
)

type stubRunner struct {
	result *scan.Result
	err    error
	got    scan.Request
}

func (s *stubRunner) Run(ctx context.Context, req scan.Request) (*scan.Result, error) {
	s.got = req
	return s.result, s.err
}

func newTestServer(runner ScanRunner, token string) *Server {
	cfg := &config.Config{
		Listen:   "127.0.0.1",
		Port:     config.DefaultPort,
		MaxBody:  config.DefaultMaxBody,
		APIToken: token,
	}
	return New(cfg, runner)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&stubRunner{}, "sekrit")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("GET /health body = %v, want status ok", body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Errorf("GET /health missing X-Request-Id header")
	}
}

func TestScanAuth(t *testing.T) {
	type args struct {
		token  string
		header string
	}

	tests := []struct {
		name       string
		args       args
		wantStatus int
	}{
		{name: "valid", args: args{token: "sekrit", header: "sekrit"}, wantStatus: http.StatusOK},
		{name: "missing", args: args{token: "sekrit"}, wantStatus: http.StatusUnauthorized},
		{name: "wrong", args: args{token: "sekrit", header: "nope"}, wantStatus: http.StatusUnauthorized},
		{name: "disabled", args: args{token: ""}, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{result: &scan.Result{
				Platform:        &platform.Info{Hostname: "target"},
				Vulnerabilities: []scan.Record{},
			}}
			srv := newTestServer(runner, tt.args.token)

			req := httptest.NewRequest(http.MethodPost, "/scan",
				strings.NewReader(`{"host":"target","user":"admin","password":"secret"}`))
			req.Header.Set("Content-Type", "application/json")
			if tt.args.header != "" {
				req.Header.Set("X-API-Token", tt.args.header)
			}

			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("POST /scan status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestScanBadRequests(t *testing.T) {
	type args struct {
		contentType string
		body        string
	}

	tests := []struct {
		name string
		args args
	}{
		{name: "wrongContentType", args: args{contentType: "text/plain", body: `{}`}},
		{name: "missingContentType", args: args{body: `{}`}},
		{name: "invalidJSON", args: args{contentType: "application/json", body: `{"host":`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubRunner{}, "")

			req := httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader(tt.args.body))
			if tt.args.contentType != "" {
				req.Header.Set("Content-Type", tt.args.contentType)
			}

			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("POST /scan status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestScanErrorMapping(t *testing.T) {
	type args struct {
		err error
	}

	tests := []struct {
		name       string
		args       args
		wantStatus int
	}{
		{
			name:       "validation",
			args:       args{err: &scan.ValidationError{Msg: "host, user and password are required"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "connect",
			args:       args{err: &sshconn.ConnectError{Host: "target", Err: errors.New("connection refused")}},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "tool",
			args:       args{err: &debsecan.ToolError{Err: errors.New("debsecan: command not found")}},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "other",
			args:       args{err: errors.New("context deadline exceeded")},
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubRunner{err: tt.args.err}, "")

			req := httptest.NewRequest(http.MethodPost, "/scan",
				strings.NewReader(`{"host":"target","user":"admin","password":"secret"}`))
			req.Header.Set("Content-Type", "application/json")

			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("POST /scan status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal body: %v", err)
			}
			if body["error"] == "" {
				t.Errorf("POST /scan body = %v, want error field", body)
			}
		})
	}
}

func TestScanSuccess(t *testing.T) {
	score := 7.8
	runner := &stubRunner{result: &scan.Result{
		Platform: &platform.Info{Hostname: "target", IP: "10.0.0.5"},
		Vulnerabilities: []scan.Record{
			{CVEID: "CVE-2024-1086", BaseScore: &score, Severity: "HIGH", Vector: "CVSS:3.1/AV:L", ScoreVersion: "CVSSv3.1"},
		},
		Summary: scan.Summary{
			ThresholdCVSS:      7.0,
			Matched:            1,
			CVSSVersionsUsed:   map[string]int{"v3.1": 1},
			TotalCVEsSeen:      1,
			TotalRecordsOutput: 1,
		},
	}}
	srv := newTestServer(runner, "")

	req := httptest.NewRequest(http.MethodPost, "/scan",
		strings.NewReader(`{"host":"target","user":"admin","password":"secret","vuln_score":7.0}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", "req-42")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /scan status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Errorf("X-Request-Id = %q, want req-42", got)
	}
	if runner.got.Host != "target" || runner.got.MinScore != 7.0 {
		t.Errorf("runner request = %+v, want decoded body", runner.got)
	}

	var body scan.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(body.Vulnerabilities) != 1 || body.Vulnerabilities[0].CVEID != "CVE-2024-1086" {
		t.Errorf("POST /scan vulnerabilities = %+v, want CVE-2024-1086", body.Vulnerabilities)
	}
	if body.Summary.Matched != 1 || body.Summary.CVSSVersionsUsed["v3.1"] != 1 {
		t.Errorf("POST /scan summary = %+v, want matched=1 v3.1=1", body.Summary)
	}
}
