package scan

import (
	"fmt"

	"github.com/vulnwatch/cvescan/config"
)

// Request describes one scan. The password lives only as long as the
// pipeline run and must never reach logs, the cache, or disk.
type Request struct {
	Host         string  `json:"host"`
	User         string  `json:"user"`
	Password     string  `json:"password"`
	Suite        string  `json:"suite"`
	Proxy        string  `json:"proxy"`
	APIKey       string  `json:"api_key"`
	MinScore     float64 `json:"vuln_score"`
	ShowUnscored bool    `json:"show_unscored"`
}

// ValidationError rejects a request before any remote I/O happens.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func (r *Request) Validate() error {
	if r.Host == "" || r.User == "" || r.Password == "" {
		return validationErrorf("host, user and password are required")
	}
	if r.MinScore < 0 {
		return validationErrorf("vuln_score must not be negative")
	}
	return nil
}

func (r *Request) applyDefaults() {
	if r.Suite == "" {
		r.Suite = config.DefaultSuite
	}
}
