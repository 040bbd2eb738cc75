package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type ctxKey int

const requestIDKey ctxKey = iota

// requestID honors an inbound X-Request-Id or generates one, echoes it
// on the response and stores it for request-scoped logging.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
		}

		w.Header().Set("X-Request-Id", rid)
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// reqLog returns a logger carrying the request id.
func reqLog(r *http.Request) *log.Entry {
	rid, _ := r.Context().Value(requestIDKey).(string)
	return log.WithField("request_id", rid)
}

// tokenAuth rejects requests whose X-API-Token does not match the
// configured token. An empty configured token disables the check.
func tokenAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("X-API-Token") != token {
				reqLog(r).Warnf("rejected request with missing or invalid token")
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
