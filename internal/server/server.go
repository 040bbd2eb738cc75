// Package server exposes the scan pipeline over HTTP: GET /health and
// POST /scan, with optional static-token auth and request-id logging.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vulnwatch/cvescan/config"
	"github.com/vulnwatch/cvescan/internal/scan"
)

// ScanRunner runs one scan request. Satisfied by *scan.Service.
type ScanRunner interface {
	Run(ctx context.Context, req scan.Request) (*scan.Result, error)
}

type Server struct {
	cfg *config.Config
	svc ScanRunner
}

func New(cfg *config.Config, svc ScanRunner) *Server {
	return &Server{cfg: cfg, svc: svc}
}

// Router builds the handler chain. Auth applies to /scan only; /health
// stays open for liveness probes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(tokenAuth(s.cfg.APIToken))
		r.Post("/scan", s.handleScan)
	})

	return r
}

// ListenAndServe blocks until the context is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Listen, s.cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Infof("listening on http://%s", addr)
	if s.cfg.APIToken != "" {
		log.Infof("auth: X-API-Token header required for /scan")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
