package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Pink   = color.New(color.FgMagenta).SprintFunc()
)

const (
	DefaultListen  = "127.0.0.1"
	DefaultPort    = 8088
	DefaultSuite   = "trixie"
	DefaultMaxBody = 1 << 20

	DefaultCacheEnabled = true
	DefaultCachePath    = "nvd_cache.db"
	DefaultCacheTTL     = 24 * time.Hour

	DefaultHTTPTimeout    = 15 * time.Second
	DefaultSSHTimeout     = 60 * time.Second
	DefaultResolveWorkers = 4

	NVDBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"
)

// Config holds the process-wide settings. Built once at startup from the
// environment, optionally overridden by a YAML file and command flags.
type Config struct {
	Listen  string
	Port    int
	MaxBody int64

	NVDAPIKey string
	APIToken  string

	LogLevel string
	LogJSON  bool

	CacheEnabled bool
	CachePath    string
	CacheTTL     time.Duration

	HTTPTimeout    time.Duration
	SSHTimeout     time.Duration
	NVDBaseURL     string
	ResolveWorkers int
}

// FromEnv builds the configuration from CVE_* environment variables.
func FromEnv() *Config {
	c := &Config{
		Listen:  envString("CVE_LISTEN", DefaultListen),
		Port:    envInt("CVE_PORT", DefaultPort),
		MaxBody: int64(envInt("CVE_MAX_BODY", DefaultMaxBody)),

		NVDAPIKey: os.Getenv("NVD_API_KEY"),
		APIToken:  os.Getenv("CVE_API_TOKEN"),

		LogLevel: envString("CVE_LOG_LEVEL", "info"),
		LogJSON:  envBool("CVE_LOG_JSON", false),

		CacheEnabled: envBool("CVE_CACHE_ENABLED", DefaultCacheEnabled),
		CachePath:    envString("CVE_CACHE_PATH", DefaultCachePath),
		CacheTTL:     envSeconds("CVE_CACHE_TTL", DefaultCacheTTL),

		HTTPTimeout:    envSeconds("CVE_HTTP_TIMEOUT", DefaultHTTPTimeout),
		SSHTimeout:     envSeconds("CVE_SSH_TIMEOUT", DefaultSSHTimeout),
		NVDBaseURL:     envString("CVE_NVD_BASE_URL", NVDBaseURL),
		ResolveWorkers: envInt("CVE_RESOLVE_WORKERS", DefaultResolveWorkers),
	}

	return c
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxBody <= 0 {
		return fmt.Errorf("max body size must be positive")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.SSHTimeout <= 0 {
		return fmt.Errorf("ssh timeout must be positive")
	}
	if c.ResolveWorkers < 1 {
		return fmt.Errorf("resolve workers must be at least 1")
	}
	if c.NVDBaseURL == "" {
		return fmt.Errorf("nvd base url is empty")
	}
	return nil
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func envSeconds(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
