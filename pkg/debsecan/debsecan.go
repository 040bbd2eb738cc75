// Package debsecan runs the debsecan tool on a remote Debian host and
// parses its detail-format report into per-CVE findings.
package debsecan

import (
	"context"
	"fmt"
)

// Runner executes one command on the scan target.
type Runner interface {
	Run(ctx context.Context, cmd string) (string, error)
}

// ToolError means the enumeration tool itself could not run. Fatal to
// the request, unlike individual malformed report lines.
type ToolError struct {
	Err error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("debsecan failed: %v", e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

type Package struct {
	Name             string `json:"name"`
	InstalledVersion string `json:"installed_version"`
}

// Finding is one vulnerability reported by debsecan with every installed
// package it affects. CVE ids are unique across one scan result.
type Finding struct {
	CVEID    string
	Status   string
	Packages []Package
}

type Result struct {
	Findings    []Finding
	ParseErrors int
}

// Scan runs debsecan for the given suite and parses the output. The
// optional proxy is handed to debsecan itself, which fetches its
// vulnerability data over HTTPS.
func Scan(ctx context.Context, r Runner, suite, proxy string) (*Result, error) {
	cmd := fmt.Sprintf("debsecan --suite %s --format detail", suite)
	if proxy != "" {
		cmd = fmt.Sprintf("https_proxy=%s %s", proxy, cmd)
	}

	out, err := r.Run(ctx, cmd)
	if err != nil {
		return nil, &ToolError{Err: err}
	}

	return ParseDetail(out), nil
}
