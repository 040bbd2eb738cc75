package nvd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vulnwatch/cvescan/pkg/scorecache"
)

const payloadAllSchemes = `{"vulnerabilities":[{"cve":{"id":"CVE-2024-0001","metrics":{
	"cvssMetricV40":[{"cvssData":{"baseScore":9.3,"baseSeverity":"CRITICAL","vectorString":"CVSS:4.0/AV:N"}}],
	"cvssMetricV31":[{"cvssData":{"baseScore":9.8,"baseSeverity":"CRITICAL","vectorString":"CVSS:3.1/AV:N"},"exploitabilityScore":3.9,"impactScore":5.9}],
	"cvssMetricV2":[{"cvssData":{"baseScore":10.0,"vectorString":"AV:N/AC:L"}}]}}}]}`

const payloadV31Only = `{"vulnerabilities":[{"cve":{"id":"CVE-2023-5981","metrics":{
	"cvssMetricV31":[{"cvssData":{"baseScore":5.9,"baseSeverity":"MEDIUM","vectorString":"CVSS:3.1/AV:N/AC:H"},"exploitabilityScore":2.2,"impactScore":3.6}]}}}]}`

const payloadV2Only = `{"vulnerabilities":[{"cve":{"id":"CVE-2010-0001","metrics":{
	"cvssMetricV2":[{"cvssData":{"baseScore":7.8,"vectorString":"AV:N/AC:L/Au:N/C:N/I:N/A:C"},"exploitabilityScore":10.0,"impactScore":6.9}]}}}]}`

const payloadNoMetrics = `{"vulnerabilities":[{"cve":{"id":"CVE-2024-0002","metrics":{}}}]}`

const payloadEmpty = `{"vulnerabilities":[]}`

func TestExtractScore(t *testing.T) {
	type args struct {
		body  string
		cveID string
	}

	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		args args
		want *Score
	}{
		{
			name: "newestSchemeWins",
			args: args{body: payloadAllSchemes, cveID: "CVE-2024-0001"},
			want: &Score{
				CVEID:        "CVE-2024-0001",
				BaseScore:    9.3,
				Severity:     "CRITICAL",
				Vector:       "CVSS:4.0/AV:N",
				ScoreVersion: SchemeV40,
			},
		},
		{
			name: "fallsBackToV31",
			args: args{body: payloadV31Only, cveID: "CVE-2023-5981"},
			want: &Score{
				CVEID:          "CVE-2023-5981",
				BaseScore:      5.9,
				Severity:       "MEDIUM",
				Vector:         "CVSS:3.1/AV:N/AC:H",
				Exploitability: f(2.2),
				Impact:         f(3.6),
				ScoreVersion:   SchemeV31,
			},
		},
		{
			name: "fallsBackToV2WithoutSeverity",
			args: args{body: payloadV2Only, cveID: "CVE-2010-0001"},
			want: &Score{
				CVEID:          "CVE-2010-0001",
				BaseScore:      7.8,
				Severity:       "N/A",
				Vector:         "AV:N/AC:L/Au:N/C:N/I:N/A:C",
				Exploitability: f(10.0),
				Impact:         f(6.9),
				ScoreVersion:   SchemeV2,
			},
		},
		{
			name: "schemeWithoutBaseScoreSkipped",
			args: args{
				body: `{"vulnerabilities":[{"cve":{"metrics":{
					"cvssMetricV40":[{"cvssData":{"vectorString":"CVSS:4.0/AV:N"}}],
					"cvssMetricV2":[{"cvssData":{"baseScore":4.3}}]}}}]}`,
				cveID: "CVE-2022-0001",
			},
			want: &Score{
				CVEID:        "CVE-2022-0001",
				BaseScore:    4.3,
				Severity:     "N/A",
				Vector:       "N/A",
				ScoreVersion: SchemeV2,
			},
		},
		{
			name: "noMetrics",
			args: args{body: payloadNoMetrics, cveID: "CVE-2024-0002"},
			want: nil,
		},
		{
			name: "unknownIdentifier",
			args: args{body: payloadEmpty, cveID: "CVE-1999-0001"},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractScore([]byte(tt.args.body), tt.args.cveID)
			if tt.want == nil {
				if got != nil {
					t.Errorf("extractScore() got = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("extractScore() got = nil, want %+v", tt.want)
			}
			if got.CVEID != tt.want.CVEID || got.BaseScore != tt.want.BaseScore ||
				got.Severity != tt.want.Severity || got.Vector != tt.want.Vector ||
				got.ScoreVersion != tt.want.ScoreVersion {
				t.Errorf("extractScore() got = %+v, want %+v", got, tt.want)
			}
			if !floatPtrEqual(got.Exploitability, tt.want.Exploitability) ||
				!floatPtrEqual(got.Impact, tt.want.Impact) {
				t.Errorf("extractScore() sub-scores got = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func TestFetchScoreUsesCache(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte(payloadV31Only))
	}))
	defer srv.Close()

	cache, err := scorecache.Open(filepath.Join(t.TempDir(), "scores.db"), time.Hour, true)
	if err != nil {
		t.Fatalf("scorecache.Open() error = %v", err)
	}
	defer cache.Close()

	c, err := NewClient(Options{BaseURL: srv.URL, Timeout: 5 * time.Second, Cache: cache})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := c.FetchScore(context.Background(), "CVE-2023-5981")
		if err != nil {
			t.Fatalf("FetchScore() error = %v", err)
		}
		if got == nil || got.BaseScore != 5.9 || got.ScoreVersion != SchemeV31 {
			t.Fatalf("FetchScore() got = %+v, want CVSSv3.1 5.9", got)
		}
	}

	if n := atomic.LoadInt64(&hits); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
}

func TestFetchScoreNoMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payloadNoMetrics))
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	got, err := c.FetchScore(context.Background(), "CVE-2024-0002")
	if err != nil {
		t.Errorf("FetchScore() error = %v, want nil", err)
	}
	if got != nil {
		t.Errorf("FetchScore() got = %+v, want nil", got)
	}
}

func TestFetchScoreRetriesRateLimit(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(payloadV2Only))
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	got, err := c.FetchScore(context.Background(), "CVE-2010-0001")
	if err != nil {
		t.Fatalf("FetchScore() error = %v", err)
	}
	if got == nil || got.ScoreVersion != SchemeV2 {
		t.Fatalf("FetchScore() got = %+v, want CVSSv2 score", got)
	}
	if n := atomic.LoadInt64(&hits); n != 2 {
		t.Errorf("server hits = %d, want 2", n)
	}
}

func TestFetchScoreServerError(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := c.FetchScore(context.Background(), "CVE-2024-0003"); err == nil {
		t.Errorf("FetchScore() error = nil, want failure")
	}
	if n := atomic.LoadInt64(&hits); n != 1 {
		t.Errorf("server hits = %d, want 1 (no retry on server error)", n)
	}
}

func TestNewClientBadProxy(t *testing.T) {
	if _, err := NewClient(Options{BaseURL: "http://example.invalid", Proxy: "://bad"}); err == nil {
		t.Errorf("NewClient() error = nil, want invalid proxy failure")
	}
}
