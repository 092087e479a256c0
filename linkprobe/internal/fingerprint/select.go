package fingerprint

import (
	"net/url"
	"strings"

	"github.com/spaolacci/murmur3"
	"golang.org/x/net/publicsuffix"
)

// domainTable maps a registrable host (without "www.") to the profiles a
// real visitor of that site plausibly uses.
var domainTable = map[string][]string{
	"google.com":     {"chrome-win", "chrome-mac", "edge-win"},
	"youtube.com":    {"chrome-win", "chrome-mac", "edge-win"},
	"gmail.com":      {"chrome-win", "chrome-mac"},
	"github.com":     {"chrome-mac", "firefox-mac", "chrome-linux"},
	"gitlab.com":     {"chrome-linux", "firefox-win", "chrome-mac"},
	"microsoft.com":  {"edge-win", "chrome-win"},
	"bing.com":       {"edge-win", "chrome-win"},
	"linkedin.com":   {"edge-win", "chrome-win", "chrome-mac"},
	"apple.com":      {"safari-mac", "chrome-mac"},
	"icloud.com":     {"safari-mac", "chrome-mac"},
	"mozilla.org":    {"firefox-win", "firefox-mac"},
	"amazon.com":     {"chrome-win", "firefox-win", "safari-mac"},
	"facebook.com":   {"chrome-win", "chrome-mac", "safari-mac"},
	"instagram.com":  {"chrome-win", "safari-mac"},
	"twitter.com":    {"chrome-win", "chrome-mac", "firefox-win"},
	"x.com":          {"chrome-win", "chrome-mac", "firefox-win"},
	"reddit.com":     {"chrome-win", "firefox-win", "chrome-mac"},
	"wikipedia.org":  {"chrome-win", "firefox-win", "safari-mac"},
	"cloudflare.com": {"chrome-win", "chrome-mac"},
}

var (
	commercialCandidates = []string{"chrome-win", "chrome-mac", "edge-win", "chrome-linux"}
	educationCandidates  = []string{"chrome-win", "firefox-win", "safari-mac", "chrome-mac", "firefox-mac"}
	fallbackCandidates   = []string{"chrome-win", "chrome-mac"}
)

// Select returns the profile to present for rawURL. It is total and
// deterministic: the same URL string always yields the same profile, across
// calls and restarts.
func Select(rawURL string) Profile {
	candidates := Candidates(hostname(rawURL))
	idx := int(murmur3.Sum32([]byte(rawURL)) % uint32(len(candidates)))
	if p, ok := Lookup(candidates[idx]); ok {
		return p
	}
	return Default()
}

// Candidates returns the ordered profile names eligible for host. The
// exact domain table wins; otherwise the public suffix decides between the
// commercial, education and fallback lists.
func Candidates(host string) []string {
	host = strings.TrimPrefix(strings.ToLower(strings.TrimSuffix(host, ".")), "www.")
	if c, ok := domainTable[host]; ok && len(c) > 0 {
		return c
	}
	if host == "" {
		return fallbackCandidates
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	switch {
	case suffix == "com" || suffix == "net" || suffix == "org":
		return commercialCandidates
	case suffix == "edu" || strings.HasPrefix(suffix, "edu."):
		return educationCandidates
	}
	return fallbackCandidates
}

func hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Hostname()
}
