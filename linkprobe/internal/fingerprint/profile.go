// Package fingerprint holds the compiled-in browser identities used by the
// prober: the profile registry, the per-domain preference table, header
// synthesis and the TLS parameters matching each browser family.
//
// All tables are built once at package init and never mutated. Callers get
// copies, so concurrent use needs no locking.
package fingerprint

import "slices"

// Family is the browser engine a profile impersonates. Header and TLS
// synthesis switch on it exhaustively.
type Family int

const (
	Chromium Family = iota
	Firefox
	Safari
)

func (f Family) String() string {
	switch f {
	case Chromium:
		return "chromium"
	case Firefox:
		return "firefox"
	case Safari:
		return "safari"
	}
	return "unknown"
}

// Brand is one entry of the sec-ch-ua brand list.
type Brand struct {
	Name    string
	Version string
}

// Profile is a named bundle of User-Agent, client hints and TLS family
// mimicking one real browser and OS combination.
type Profile struct {
	Name            string
	Family          Family
	UserAgent       string
	Accept          string
	AcceptLanguage  string
	Brands          []Brand
	Platform        string
	PlatformVersion string
	Arch            string
	Bitness         string
	Mobile          bool
}

const (
	acceptChromium = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	acceptFirefox  = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	acceptSafari   = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

var chromeBrands = []Brand{
	{Name: "Google Chrome", Version: "131"},
	{Name: "Chromium", Version: "131"},
	{Name: "Not_A Brand", Version: "24"},
}

var edgeBrands = []Brand{
	{Name: "Microsoft Edge", Version: "131"},
	{Name: "Chromium", Version: "131"},
	{Name: "Not_A Brand", Version: "24"},
}

// registry order matters: the first entry is the fallback profile.
var registry = []Profile{
	{
		Name:            "chrome-win",
		Family:          Chromium,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Accept:          acceptChromium,
		AcceptLanguage:  "en-US,en;q=0.9",
		Brands:          chromeBrands,
		Platform:        "Windows",
		PlatformVersion: "15.0.0",
		Arch:            "x86",
		Bitness:         "64",
	},
	{
		Name:            "chrome-mac",
		Family:          Chromium,
		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Accept:          acceptChromium,
		AcceptLanguage:  "en-US,en;q=0.9",
		Brands:          chromeBrands,
		Platform:        "macOS",
		PlatformVersion: "14.6.1",
		Arch:            "arm",
		Bitness:         "64",
	},
	{
		Name:            "chrome-linux",
		Family:          Chromium,
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Accept:          acceptChromium,
		AcceptLanguage:  "en-US,en;q=0.9",
		Brands:          chromeBrands,
		Platform:        "Linux",
		PlatformVersion: "6.8.0",
		Arch:            "x86",
		Bitness:         "64",
	},
	{
		Name:            "edge-win",
		Family:          Chromium,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
		Accept:          acceptChromium,
		AcceptLanguage:  "en-US,en;q=0.9",
		Brands:          edgeBrands,
		Platform:        "Windows",
		PlatformVersion: "15.0.0",
		Arch:            "x86",
		Bitness:         "64",
	},
	{
		Name:           "firefox-win",
		Family:         Firefox,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
		Accept:         acceptFirefox,
		AcceptLanguage: "en-US,en;q=0.5",
	},
	{
		Name:           "firefox-mac",
		Family:         Firefox,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
		Accept:         acceptFirefox,
		AcceptLanguage: "en-US,en;q=0.5",
	},
	{
		Name:           "safari-mac",
		Family:         Safari,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
		Accept:         acceptSafari,
		AcceptLanguage: "en-US,en;q=0.9",
	},
}

var byName = func() map[string]int {
	m := make(map[string]int, len(registry))
	for i, p := range registry {
		m[p.Name] = i
	}
	return m
}()

// Lookup returns the registered profile with the given name.
func Lookup(name string) (Profile, bool) {
	i, ok := byName[name]
	if !ok {
		return Profile{}, false
	}
	return clone(registry[i]), true
}

// Profiles returns every registered profile, fallback first.
func Profiles() []Profile {
	out := make([]Profile, len(registry))
	for i, p := range registry {
		out[i] = clone(p)
	}
	return out
}

// Default is the profile used when a candidate name cannot be resolved.
func Default() Profile { return clone(registry[0]) }

func clone(p Profile) Profile {
	p.Brands = slices.Clone(p.Brands)
	return p
}
