// Package protection knows which CDN/WAF vendors front a site. It is purely
// observational: results are logged, never used to steer probing.
package protection

import (
	"net/http"
	"strings"
)

type vendor struct {
	name    string
	domains []string
	// headers maps a response header to a substring of its value ("" = any).
	headers map[string]string
}

var vendors = []vendor{
	{
		name:    "cloudflare",
		domains: []string{"cloudflare.com", "discord.com", "medium.com", "canva.com", "shopify.com"},
		headers: map[string]string{"Cf-Ray": "", "Server": "cloudflare"},
	},
	{
		name:    "akamai",
		domains: []string{"akamai.com", "apple.com", "airbnb.com", "nike.com", "adobe.com"},
		headers: map[string]string{"X-Akamai-Transformed": "", "Server": "akamaighost", "Akamai-Grn": ""},
	},
	{
		name:    "imperva",
		domains: []string{"imperva.com", "incapsula.com"},
		headers: map[string]string{"X-Iinfo": "", "X-Cdn": "incapsula"},
	},
	{
		name:    "fastly",
		domains: []string{"fastly.com", "github.com", "reddit.com", "nytimes.com"},
		headers: map[string]string{"X-Fastly-Request-Id": "", "Via": "varnish"},
	},
	{
		name:    "cloudfront",
		domains: []string{"amazon.com", "aws.amazon.com", "primevideo.com"},
		headers: map[string]string{"X-Amz-Cf-Id": "", "Via": "cloudfront"},
	},
	{
		name:    "sucuri",
		domains: []string{"sucuri.net"},
		headers: map[string]string{"X-Sucuri-Id": "", "Server": "sucuri"},
	},
	{
		name:    "f5",
		domains: []string{"f5.com"},
		headers: map[string]string{"X-Wa-Info": "", "Server": "big-ip"},
	},
	{
		name:    "datadome",
		domains: []string{"datadome.co", "leboncoin.fr", "tripadvisor.com", "footlocker.com"},
		headers: map[string]string{"X-Datadome": "", "X-Dd-B": ""},
	},
	{
		name:    "perimeterx",
		domains: []string{"humansecurity.com", "zillow.com", "stockx.com"},
		headers: map[string]string{"X-Px-Authorization": ""},
	},
}

// IsHighProtection reports whether host (or a parent domain of it) is a
// known heavily protected site, and by which vendor.
func IsHighProtection(host string) (string, bool) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, v := range vendors {
		for _, d := range v.domains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return v.name, true
			}
		}
	}
	return "", false
}

// DetectVendor sniffs response headers for a CDN/WAF signature. Returns ""
// when nothing matches.
func DetectVendor(h http.Header) string {
	for _, v := range vendors {
		for key, want := range v.headers {
			got := h.Get(key)
			if got == "" {
				continue
			}
			if want == "" || strings.Contains(strings.ToLower(got), want) {
				return v.name
			}
		}
	}
	return ""
}
