// Package nvd resolves CVSS severity for CVE identifiers from the NVD
// 2.0 REST API, newest scoring scheme first, with a write-through cache
// in front of the network.
package nvd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/vulnwatch/cvescan/pkg/scorecache"
)

const (
	SchemeV40 = "CVSSv4.0"
	SchemeV31 = "CVSSv3.1"
	SchemeV2  = "CVSSv2"
)

// schemeChain is the fallback order: the first scheme that carries a
// numeric base score for the identifier wins.
var schemeChain = []struct {
	key    string
	scheme string
}{
	{"cvssMetricV40", SchemeV40},
	{"cvssMetricV31", SchemeV31},
	{"cvssMetricV2", SchemeV2},
}

// maxAttempts bounds rate-limit retries per lookup.
const maxAttempts = 3

// Score is one resolved severity record.
type Score struct {
	CVEID          string
	BaseScore      float64
	Severity       string
	Vector         string
	Exploitability *float64
	Impact         *float64
	ScoreVersion   string
}

type Options struct {
	BaseURL string
	APIKey  string
	Proxy   string
	Timeout time.Duration
	Cache   *scorecache.Cache
}

type Client struct {
	cli     *http.Client
	baseURL string
	apiKey  string
	cache   *scorecache.Cache
}

func NewClient(opts Options) (*Client, error) {
	tr := &http.Transport{
		IdleConnTimeout:    60 * time.Second,
		DisableCompression: true,
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", opts.Proxy, err)
		}
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	return &Client{
		cli: &http.Client{
			Transport: tr,
			Timeout:   opts.Timeout,
		},
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		cache:   opts.Cache,
	}, nil
}

// FetchScore resolves the severity of one CVE. A cache hit within TTL
// short-circuits the network entirely. (nil, nil) means the authority
// knows the CVE but publishes no usable metrics; an error means the
// lookup itself failed and the caller should treat the CVE as unscored.
func (c *Client) FetchScore(ctx context.Context, cveID string) (*Score, error) {
	if c.cache != nil {
		if e, ok := c.cache.Get(cveID); ok {
			s := fromEntry(e)
			return &s, nil
		}
	}

	body, err := c.request(ctx, cveID)
	if err != nil {
		return nil, err
	}

	score := extractScore(body, cveID)
	if score == nil {
		return nil, nil
	}

	if c.cache != nil {
		if err := c.cache.Put(toEntry(*score)); err != nil {
			log.Warnf("cache write for %s failed: %v", cveID, err)
		}
	}

	return score, nil
}

// request performs the lookup with a bounded backoff on rate limiting.
func (c *Client) request(ctx context.Context, cveID string) ([]byte, error) {
	var body []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s?cveId=%s", c.baseURL, url.QueryEscape(cveID)), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.apiKey != "" {
			req.Header.Set("apiKey", c.apiKey)
		}

		res, err := c.cli.Do(req)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer res.Body.Close()

		switch {
		case res.StatusCode == http.StatusOK:
		case res.StatusCode == http.StatusTooManyRequests || res.StatusCode == http.StatusForbidden:
			// NVD signals rate limiting with both codes.
			return fmt.Errorf("rate limited (status %d)", res.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("unexpected status %d", res.StatusCode))
		}

		body, err = io.ReadAll(res.Body)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("nvd lookup %s: %w", cveID, err)
	}

	return body, nil
}

// extractScore walks the scheme chain over the response payload. A
// scheme is skipped only when it yields no numeric baseScore.
func extractScore(body []byte, cveID string) *Score {
	metrics := gjson.GetBytes(body, "vulnerabilities.0.cve.metrics")
	if !metrics.Exists() {
		return nil
	}

	for _, sc := range schemeChain {
		m := metrics.Get(sc.key + ".0")
		if !m.Exists() {
			continue
		}

		base := m.Get("cvssData.baseScore")
		if base.Type != gjson.Number {
			continue
		}

		score := &Score{
			CVEID:        cveID,
			BaseScore:    base.Float(),
			Severity:     stringOr(m.Get("cvssData.baseSeverity"), "N/A"),
			Vector:       stringOr(m.Get("cvssData.vectorString"), "N/A"),
			ScoreVersion: sc.scheme,
		}
		if v := m.Get("exploitabilityScore"); v.Type == gjson.Number {
			f := v.Float()
			score.Exploitability = &f
		}
		if v := m.Get("impactScore"); v.Type == gjson.Number {
			f := v.Float()
			score.Impact = &f
		}

		return score
	}

	return nil
}

func stringOr(r gjson.Result, def string) string {
	if r.Type == gjson.String && r.Str != "" {
		return r.Str
	}
	return def
}

func toEntry(s Score) scorecache.Entry {
	return scorecache.Entry{
		CVEID:          s.CVEID,
		BaseScore:      s.BaseScore,
		Severity:       s.Severity,
		Vector:         s.Vector,
		Exploitability: s.Exploitability,
		Impact:         s.Impact,
		ScoreVersion:   s.ScoreVersion,
	}
}

func fromEntry(e scorecache.Entry) Score {
	return Score{
		CVEID:          e.CVEID,
		BaseScore:      e.BaseScore,
		Severity:       e.Severity,
		Vector:         e.Vector,
		Exploitability: e.Exploitability,
		Impact:         e.Impact,
		ScoreVersion:   e.ScoreVersion,
	}
}
