package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the CVE_* environment variables. Durations are
// plain seconds, matching the env format. Only keys present in the file
// override the environment.
type fileConfig struct {
	Listen  *string `yaml:"listen"`
	Port    *int    `yaml:"port"`
	MaxBody *int64  `yaml:"max_body"`

	NVDAPIKey *string `yaml:"nvd_api_key"`
	APIToken  *string `yaml:"api_token"`

	LogLevel *string `yaml:"log_level"`
	LogJSON  *bool   `yaml:"log_json"`

	CacheEnabled *bool   `yaml:"cache_enabled"`
	CachePath    *string `yaml:"cache_path"`
	CacheTTL     *int    `yaml:"cache_ttl"`

	HTTPTimeout    *int    `yaml:"http_timeout"`
	SSHTimeout     *int    `yaml:"ssh_timeout"`
	NVDBaseURL     *string `yaml:"nvd_base_url"`
	ResolveWorkers *int    `yaml:"resolve_workers"`
}

// LoadFile overlays settings from a YAML file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	fc := fileConfig{}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Listen != nil {
		c.Listen = *fc.Listen
	}
	if fc.Port != nil {
		c.Port = *fc.Port
	}
	if fc.MaxBody != nil {
		c.MaxBody = *fc.MaxBody
	}
	if fc.NVDAPIKey != nil {
		c.NVDAPIKey = *fc.NVDAPIKey
	}
	if fc.APIToken != nil {
		c.APIToken = *fc.APIToken
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.LogJSON != nil {
		c.LogJSON = *fc.LogJSON
	}
	if fc.CacheEnabled != nil {
		c.CacheEnabled = *fc.CacheEnabled
	}
	if fc.CachePath != nil {
		c.CachePath = *fc.CachePath
	}
	if fc.CacheTTL != nil {
		c.CacheTTL = time.Duration(*fc.CacheTTL) * time.Second
	}
	if fc.HTTPTimeout != nil {
		c.HTTPTimeout = time.Duration(*fc.HTTPTimeout) * time.Second
	}
	if fc.SSHTimeout != nil {
		c.SSHTimeout = time.Duration(*fc.SSHTimeout) * time.Second
	}
	if fc.NVDBaseURL != nil {
		c.NVDBaseURL = *fc.NVDBaseURL
	}
	if fc.ResolveWorkers != nil {
		c.ResolveWorkers = *fc.ResolveWorkers
	}

	return nil
}
