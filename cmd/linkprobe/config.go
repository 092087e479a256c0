package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/urlgate/linkprobe"
	"github.com/hazyhaar/urlgate/shield"
)

// fileConfig is the YAML configuration of the linkprobe binary.
type fileConfig struct {
	Server     serverConfig                      `yaml:"server"`
	Probe      linkprobe.Config                  `yaml:"probe"`
	Log        logConfig                         `yaml:"log"`
	Checklog   checklogConfig                    `yaml:"checklog"`
	RateLimits map[string]shield.RateLimitConfig `yaml:"rate_limits"`
}

type serverConfig struct {
	Addr            string        `yaml:"addr"`
	AllowPrivate    bool          `yaml:"allow_private"` // skip SSRF checks (local use only)
	APIKeyHashes    []string      `yaml:"api_key_hashes"`
	TrustedProxies  []string      `yaml:"trusted_proxies"` // CIDRs or IPs allowed to set X-Forwarded-For
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type logConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error

	// File, when set, receives a copy of the JSON log with size-based
	// rotation.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type checklogConfig struct {
	Path          string        `yaml:"path"` // empty disables the log
	Keep          int           `yaml:"keep"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// loadConfig reads path (optional), applies env overrides then defaults.
func loadConfig(path string, getenv func(string) string) (*fileConfig, error) {
	var cfg fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv(getenv)
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *fileConfig) applyEnv(getenv func(string) string) {
	if v := getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := getenv("CHECKLOG_DB"); v != "" {
		c.Checklog.Path = v
	}
	if v := getenv("API_KEY_HASH"); v != "" {
		c.Server.APIKeyHashes = append(c.Server.APIKeyHashes, v)
	}
}

func (c *fileConfig) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 90 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 5
	}
	if c.Checklog.Keep <= 0 {
		c.Checklog.Keep = 10_000
	}
	if c.Checklog.PruneInterval <= 0 {
		c.Checklog.PruneInterval = time.Hour
	}
	if c.RateLimits == nil {
		c.RateLimits = map[string]shield.RateLimitConfig{
			"POST /api/validate":           {Rate: 1, Burst: 10, Enabled: true},
			"POST /api/validate/check-url": {Rate: 1, Burst: 10, Enabled: true},
		}
	}
}
