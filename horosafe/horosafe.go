// Package horosafe holds the input-safety primitives of the service: URL
// admission checks (scheme, host, SSRF prevention) and bounded I/O helpers.
package horosafe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// MaxURLLength is the longest URL accepted for probing.
const MaxURLLength = 4096

// MaxResponseBody is the default cap for HTTP body reads (1 MiB).
const MaxResponseBody int64 = 1 << 20

var (
	// ErrEmptyURL is returned for a blank URL.
	ErrEmptyURL = errors.New("horosafe: URL is empty")

	// ErrURLTooLong is returned when a URL exceeds MaxURLLength.
	ErrURLTooLong = fmt.Errorf("horosafe: URL exceeds %d characters", MaxURLLength)

	// ErrNoHost is returned when a URL has no host component.
	ErrNoHost = errors.New("horosafe: URL has no host")

	// ErrSSRF is returned when a URL targets a private/loopback address.
	ErrSSRF = errors.New("horosafe: URL targets a private or loopback address")

	// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
	ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")
)

type urlConfig struct {
	allowPrivate bool
	lookup       func(ctx context.Context, host string) ([]string, error)
}

// URLOption tunes ValidateURL.
type URLOption func(*urlConfig)

// AllowPrivate skips the private-address check (local deployments, tests).
func AllowPrivate() URLOption { return func(c *urlConfig) { c.allowPrivate = true } }

// WithLookup replaces the host resolver used for the SSRF check.
func WithLookup(fn func(ctx context.Context, host string) ([]string, error)) URLOption {
	return func(c *urlConfig) { c.lookup = fn }
}

// ValidateURL checks that rawURL is short enough, uses http/https, has a
// hostname and does not resolve to a private or loopback IP.
//
// A DNS failure is not an error: an unresolvable name is a legitimate probe
// target whose non-existence the caller wants to learn.
func ValidateURL(ctx context.Context, rawURL string, opts ...URLOption) error {
	cfg := urlConfig{lookup: net.DefaultResolver.LookupHost}
	for _, o := range opts {
		o(&cfg)
	}

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ErrEmptyURL
	}
	if len(rawURL) > MaxURLLength {
		return ErrURLTooLong
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return ErrNoHost
	}
	if cfg.allowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrSSRF
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return ErrSSRF
	}

	addrs, err := cfg.lookup(ctx, host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r and fails if there is more.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("horosafe: body exceeds %d bytes", maxBytes)
	}
	return data, nil
}

// ReadAtMost reads up to maxBytes from r and silently drops the rest.
// Whatever was read before an error is returned along with it.
func ReadAtMost(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = MaxResponseBody
	}
	return io.ReadAll(io.LimitReader(r, maxBytes))
}

// CheckIP returns ErrSSRF when ip is private, loopback or link-local.
// Dialers call it on the address actually connected to, which catches
// names that resolve differently at admission and at dial time.
func CheckIP(ip net.IP) error {
	if isPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrSSRF, ip)
	}
	return nil
}

var privateRanges = func() []*net.IPNet {
	var out []*net.IPNet
	for _, cidr := range []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"fc00::/7",
		"::1/128",
	} {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}()

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range privateRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
