package shield

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// AnyEndpoint is the rule key applied to endpoints without their own rule.
const AnyEndpoint = "*"

// RateLimitConfig defines the token bucket for a single endpoint.
// Rate is in requests per second; Burst is the bucket size.
type RateLimitConfig struct {
	Rate    float64 `yaml:"rate" json:"rate"`
	Burst   int     `yaml:"burst" json:"burst"`
	Enabled bool    `yaml:"enabled" json:"enabled"`
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimiter enforces per-IP, per-endpoint token buckets. Endpoints are
// keyed "METHOD /path"; AnyEndpoint is the fallback rule. Idle buckets are
// garbage collected by StartGC.
type RateLimiter struct {
	rules   map[string]RateLimitConfig
	buckets sync.Map
	exclude []string // path prefixes excluded from rate limiting
	now     func() time.Time
}

// NewRateLimiter creates a limiter from a static rule table.
func NewRateLimiter(rules map[string]RateLimitConfig, excludePrefixes ...string) *RateLimiter {
	rl := &RateLimiter{
		rules:   make(map[string]RateLimitConfig, len(rules)),
		exclude: excludePrefixes,
		now:     time.Now,
	}
	for k, v := range rules {
		if v.Burst <= 0 {
			v.Burst = max(1, int(math.Ceil(v.Rate)))
		}
		rl.rules[k] = v
	}
	return rl
}

// StartGC drops buckets idle for longer than idle, checking every idle/2.
// Stops when done is closed.
func (rl *RateLimiter) StartGC(idle time.Duration, done <-chan struct{}) {
	tick := time.NewTicker(idle / 2)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.gc(idle)
			}
		}
	}()
}

func (rl *RateLimiter) gc(idle time.Duration) {
	cutoff := rl.now().Add(-idle).UnixNano()
	rl.buckets.Range(func(key, value any) bool {
		if value.(*bucket).lastSeen.Load() < cutoff {
			rl.buckets.Delete(key)
		}
		return true
	})
}

func (rl *RateLimiter) rule(endpoint string) (RateLimitConfig, bool) {
	if cfg, ok := rl.rules[endpoint]; ok {
		return cfg, cfg.Enabled
	}
	cfg, ok := rl.rules[AnyEndpoint]
	return cfg, ok && cfg.Enabled
}

// reserve reports whether the request may proceed and, if not, how long
// the client should wait.
func (rl *RateLimiter) reserve(ip, endpoint string) (bool, time.Duration) {
	cfg, ok := rl.rule(endpoint)
	if !ok {
		return true, 0
	}

	now := rl.now()
	val, _ := rl.buckets.LoadOrStore(ip+" "+endpoint, &bucket{
		lim: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
	})
	b := val.(*bucket)
	b.lastSeen.Store(now.UnixNano())

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Middleware is the HTTP middleware that enforces rate limits with a 429
// JSON response and a Retry-After header.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		endpoint := r.Method + " " + r.URL.Path
		ip := ExtractIP(r)

		ok, wait := rl.reserve(ip, endpoint)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		GetLogger(r.Context()).Warn("ratelimit: request blocked", "ip", ip, "endpoint", endpoint)

		secs := int(math.Ceil(wait.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(1, secs)))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// ExtractIP returns the host part of r.RemoteAddr. Forwarded headers are
// honoured only through RealIP, which rewrites RemoteAddr for trusted
// proxies.
func ExtractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
