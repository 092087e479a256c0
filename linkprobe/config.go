package linkprobe

import (
	"net/http"
	"time"
)

// Config holds the probe configuration. Zero values take the defaults.
type Config struct {
	Stealth    StealthConfig    `json:"stealth" yaml:"stealth"`
	Enhanced   EnhancedConfig   `json:"enhanced" yaml:"enhanced"`
	Behavioral BehavioralConfig `json:"behavioral" yaml:"behavioral"`
	DNS        DNSConfig        `json:"dns" yaml:"dns"`

	// MaxBodyBytes caps how much of a response body is read for metadata.
	// Larger bodies are truncated, not rejected. Default: 2 MiB.
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`

	// Deadline bounds a whole Validate call on top of the caller's context.
	// 0 means no extra bound.
	Deadline time.Duration `json:"deadline" yaml:"deadline"`

	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// StealthConfig tunes the single HEAD probe.
type StealthConfig struct {
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`             // default 8s
	MaxRedirects int           `json:"max_redirects" yaml:"max_redirects"` // default 5
}

// Attempt is one request of the enhanced strategy.
type Attempt struct {
	Method  string        `json:"method" yaml:"method"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// EnhancedConfig lists the progressively more patient attempts.
type EnhancedConfig struct {
	// Attempts default: GET 5s, GET 8s, HEAD 10s.
	Attempts     []Attempt `json:"attempts" yaml:"attempts"`
	MaxRedirects int       `json:"max_redirects" yaml:"max_redirects"` // default 5
}

// BehavioralConfig tunes the navigation that mimics a real page visit.
type BehavioralConfig struct {
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`                 // default 10s
	MaxRedirects   int           `json:"max_redirects" yaml:"max_redirects"`     // default 3
	PrefetchDelay  time.Duration `json:"prefetch_delay" yaml:"prefetch_delay"`   // default 50ms
	FaviconTimeout time.Duration `json:"favicon_timeout" yaml:"favicon_timeout"` // default 5s
}

// DNSConfig selects the resolver used by the last-resort strategy.
type DNSConfig struct {
	// Mode is "system" (default) or "direct".
	Mode    string        `json:"mode" yaml:"mode"`
	Servers []string      `json:"servers" yaml:"servers"` // direct mode, host:port
	Timeout time.Duration `json:"timeout" yaml:"timeout"` // default 5s
}

func (c *Config) defaults() {
	if c.Stealth.Timeout == 0 {
		c.Stealth.Timeout = 8 * time.Second
	}
	if c.Stealth.MaxRedirects == 0 {
		c.Stealth.MaxRedirects = 5
	}
	if len(c.Enhanced.Attempts) == 0 {
		c.Enhanced.Attempts = []Attempt{
			{Method: http.MethodGet, Timeout: 5 * time.Second},
			{Method: http.MethodGet, Timeout: 8 * time.Second},
			{Method: http.MethodHead, Timeout: 10 * time.Second},
		}
	}
	for i := range c.Enhanced.Attempts {
		if c.Enhanced.Attempts[i].Method == "" {
			c.Enhanced.Attempts[i].Method = http.MethodGet
		}
		if c.Enhanced.Attempts[i].Timeout == 0 {
			c.Enhanced.Attempts[i].Timeout = 8 * time.Second
		}
	}
	if c.Enhanced.MaxRedirects == 0 {
		c.Enhanced.MaxRedirects = 5
	}
	if c.Behavioral.Timeout == 0 {
		c.Behavioral.Timeout = 10 * time.Second
	}
	if c.Behavioral.MaxRedirects == 0 {
		c.Behavioral.MaxRedirects = 3
	}
	if c.Behavioral.PrefetchDelay == 0 {
		c.Behavioral.PrefetchDelay = 50 * time.Millisecond
	}
	if c.Behavioral.FaviconTimeout == 0 {
		c.Behavioral.FaviconTimeout = 5 * time.Second
	}
	if c.DNS.Mode == "" {
		c.DNS.Mode = "system"
	}
	if c.DNS.Timeout == 0 {
		c.DNS.Timeout = 5 * time.Second
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 2 << 20
	}
}
