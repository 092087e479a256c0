package fingerprint

import (
	"fmt"
	"maps"
	"net/http"
	"strings"
)

// RequestKind selects the Sec-Fetch group a request carries.
type RequestKind int

const (
	// KindHead is a bare resource probe.
	KindHead RequestKind = iota
	// KindNavigate is a top-level document navigation.
	KindNavigate
	// KindImage is an image subresource GET fired by a loaded page, such
	// as the favicon.
	KindImage
)

const imageAccept = "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8"

// Headers is a synthesized header set keyed by wire name. Client-hint keys
// are lower-case the way Chromium sends them.
type Headers map[string]string

// BuildHeaders synthesizes the request headers a real browser matching p
// would send for a request of the given kind.
func BuildHeaders(p Profile, kind RequestKind) Headers {
	h := Headers{
		"User-Agent":                p.UserAgent,
		"Accept":                    p.Accept,
		"Accept-Language":           p.AcceptLanguage,
		"Accept-Encoding":           acceptEncoding(p.Family),
		"DNT":                       "1",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Cache-Control":             "max-age=0",
		"Pragma":                    "no-cache",
	}

	switch p.Family {
	case Chromium:
		h["sec-ch-ua"] = brandList(p.Brands, false)
		h["sec-ch-ua-mobile"] = boolHint(p.Mobile)
		h["sec-ch-ua-platform"] = quote(p.Platform)
		h["sec-ch-ua-arch"] = quote(p.Arch)
		h["sec-ch-ua-bitness"] = quote(p.Bitness)
		h["sec-ch-ua-full-version-list"] = brandList(p.Brands, true)
		h["sec-ch-ua-model"] = quote("")
		h["sec-ch-ua-platform-version"] = quote(p.PlatformVersion)
	case Firefox, Safari:
		// no client hints
	}

	h["Sec-Fetch-Site"] = "none"
	switch kind {
	case KindNavigate:
		h["Sec-Fetch-Mode"] = "navigate"
		h["Sec-Fetch-User"] = "?1"
		h["Sec-Fetch-Dest"] = "document"
	case KindImage:
		h["Accept"] = imageAccept
		h["Sec-Fetch-Site"] = "same-origin"
		h["Sec-Fetch-Mode"] = "no-cors"
		h["Sec-Fetch-Dest"] = "image"
	default:
		h["Sec-Fetch-Mode"] = "no-cors"
		h["Sec-Fetch-Dest"] = "empty"
	}
	if kind != KindHead {
		h["sec-purpose"] = "prefetch;prerender"
		h["purpose"] = "prefetch"
	}
	return h
}

// Apply writes h onto dst keeping the exact key spelling.
func (h Headers) Apply(dst http.Header) {
	for k, v := range h {
		dst[k] = []string{v}
	}
}

// Map returns a copy suitable for debug output.
func (h Headers) Map() map[string]string {
	return maps.Clone(map[string]string(h))
}

func acceptEncoding(f Family) string {
	switch f {
	case Chromium, Firefox:
		return "gzip, deflate, br, zstd"
	case Safari:
		return "gzip, deflate, br"
	}
	return "gzip, deflate"
}

// brandList renders `"<brand>";v="<version>"`, comma+space joined. With full
// set, versions are expanded to the four-part form.
func brandList(brands []Brand, full bool) string {
	parts := make([]string, 0, len(brands))
	for _, b := range brands {
		v := b.Version
		if full {
			v += ".0.0.0"
		}
		parts = append(parts, fmt.Sprintf("%q;v=%q", b.Name, v))
	}
	return strings.Join(parts, ", ")
}

func boolHint(b bool) string {
	if b {
		return "?1"
	}
	return "?0"
}

func quote(s string) string { return `"` + s + `"` }
