// Package scan drives one vulnerability scan end to end: connect to the
// target, enumerate with debsecan, resolve severity scores with bounded
// concurrency, filter and summarize.
package scan

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vulnwatch/cvescan/config"
	"github.com/vulnwatch/cvescan/pkg/debsecan"
	"github.com/vulnwatch/cvescan/pkg/nvd"
	"github.com/vulnwatch/cvescan/pkg/platform"
	"github.com/vulnwatch/cvescan/pkg/scorecache"
	"github.com/vulnwatch/cvescan/pkg/sshconn"
)

// session is what the pipeline needs from a remote connection.
type session interface {
	Run(ctx context.Context, cmd string) (string, error)
	Close() error
}

// resolver is what the pipeline needs from the scoring client.
type resolver interface {
	FetchScore(ctx context.Context, cveID string) (*nvd.Score, error)
}

type dialFunc func(ctx context.Context, host, user, password string, timeout time.Duration) (session, error)

type resolverFunc func(req Request) (resolver, error)

// Service runs scan pipelines. One Service serves all concurrent
// requests; the score cache and the resolver semaphore are the only
// state shared between them.
type Service struct {
	cfg   *config.Config
	cache *scorecache.Cache

	// workers caps in-flight NVD lookups across every concurrent
	// request, since the rate limit is the authority's, not ours.
	workers *semaphore.Weighted

	dial        dialFunc
	newResolver resolverFunc
}

func NewService(cfg *config.Config, cache *scorecache.Cache) *Service {
	s := &Service{
		cfg:     cfg,
		cache:   cache,
		workers: semaphore.NewWeighted(int64(cfg.ResolveWorkers)),
	}

	s.dial = func(ctx context.Context, host, user, password string, timeout time.Duration) (session, error) {
		return sshconn.Open(ctx, host, user, password, timeout)
	}

	s.newResolver = func(req Request) (resolver, error) {
		apiKey := cfg.NVDAPIKey
		if req.APIKey != "" {
			apiKey = req.APIKey
		}

		cli, err := nvd.NewClient(nvd.Options{
			BaseURL: cfg.NVDBaseURL,
			APIKey:  apiKey,
			Proxy:   req.Proxy,
			Timeout: cfg.HTTPTimeout,
			Cache:   cache,
		})
		if err != nil {
			return nil, validationErrorf("%v", err)
		}
		return cli, nil
	}

	return s
}

// Run executes one scan request. Connectivity and tool failures abort
// the whole request; individual score lookups never do.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.applyDefaults()

	res, err := s.newResolver(req)
	if err != nil {
		return nil, err
	}

	sess, err := s.dial(ctx, req.Host, req.User, req.Password, s.cfg.SSHTimeout)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	info := platform.Inspect(ctx, sess, req.Suite)
	if detected, mismatch := info.SuiteMismatch(); mismatch {
		log.Warnf("target %s looks like %s, scanning as %s", req.Host, detected, req.Suite)
	}

	scanRes, err := debsecan.Scan(ctx, sess, req.Suite, req.Proxy)
	if err != nil {
		return nil, err
	}

	log.Infof("debsecan reported %d unique CVEs on %s (parse errors: %d)",
		len(scanRes.Findings), req.Host, scanRes.ParseErrors)

	ids := make([]string, 0, len(scanRes.Findings))
	for _, f := range scanRes.Findings {
		ids = append(ids, f.CVEID)
	}

	resolutions := s.resolveAll(ctx, res, ids)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, summary := assemble(scanRes.Findings, resolutions, scanRes.ParseErrors, req)

	return &Result{
		Platform:        info,
		Vulnerabilities: records,
		Summary:         summary,
	}, nil
}

// resolveAll fans identifier lookups out over the shared worker pool.
// Lookup failures are collected, not propagated; cancellation abandons
// the remaining lookups.
func (s *Service) resolveAll(ctx context.Context, res resolver, ids []string) map[string]resolution {
	results := make([]resolution, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ResolveWorkers)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := s.workers.Acquire(gctx, 1); err != nil {
				results[i] = resolution{err: err}
				return nil
			}
			defer s.workers.Release(1)

			score, err := res.FetchScore(gctx, id)
			if err != nil {
				log.Debugf("score lookup failed for %s: %v", id, err)
			}
			results[i] = resolution{score: score, err: err}
			return nil
		})
	}

	_ = g.Wait()

	out := make(map[string]resolution, len(ids))
	for i, id := range ids {
		out[id] = results[i]
	}
	return out
}
