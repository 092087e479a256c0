package fingerprint

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"testing"
)

func TestSelect_Deterministic(t *testing.T) {
	urls := []string{
		"https://example.com",
		"https://www.github.com/hazyhaar",
		"http://unknown.test/path?q=1",
		"::not a url::",
		"",
	}
	for _, u := range urls {
		first := Select(u)
		for i := 0; i < 50; i++ {
			if got := Select(u); got.Name != first.Name {
				t.Fatalf("Select(%q) call %d = %s, first = %s", u, i, got.Name, first.Name)
			}
		}
	}
}

func TestSelect_TableCoverage(t *testing.T) {
	// WHAT: every listed domain only ever yields one of its own candidates.
	// WHY: the table exists so a site sees the browsers its real visitors use.
	for domain, names := range domainTable {
		for i := 0; i < 40; i++ {
			for _, prefix := range []string{"https://", "https://www."} {
				u := fmt.Sprintf("%s%s/page/%d", prefix, domain, i)
				got := Select(u)
				if !slices.Contains(names, got.Name) {
					t.Fatalf("Select(%q) = %s, not in %v", u, got.Name, names)
				}
			}
		}
	}
}

func TestSelect_CommercialFallback(t *testing.T) {
	for i := 0; i < 200; i++ {
		u := fmt.Sprintf("https://unlisted-shop-%d.com/item", i)
		got := Select(u)
		if !slices.Contains(commercialCandidates, got.Name) {
			t.Fatalf("Select(%q) = %s, want one of %v", u, got.Name, commercialCandidates)
		}
		if got.Family != Chromium {
			t.Fatalf("Select(%q) family = %s, want chromium", u, got.Family)
		}
	}
}

func TestCandidates_TLDClasses(t *testing.T) {
	tests := []struct {
		host string
		want []string
	}{
		{"www.google.com", domainTable["google.com"]},
		{"GitHub.com", domainTable["github.com"]},
		{"shop.example.net", commercialCandidates},
		{"foundation.org", commercialCandidates},
		{"mit.edu", educationCandidates},
		{"unimelb.edu.au", educationCandidates},
		{"example.fr", fallbackCandidates},
		{"", fallbackCandidates},
		{"10.0.0.1", fallbackCandidates},
	}
	for _, tt := range tests {
		if got := Candidates(tt.host); !slices.Equal(got, tt.want) {
			t.Errorf("Candidates(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestTables_ResolveToRegisteredProfiles(t *testing.T) {
	all := [][]string{commercialCandidates, educationCandidates, fallbackCandidates}
	for _, names := range domainTable {
		all = append(all, names)
	}
	for _, names := range all {
		for _, n := range names {
			if _, ok := Lookup(n); !ok {
				t.Fatalf("candidate %q is not registered", n)
			}
		}
	}
}

func TestBuildHeaders_ClientHintsByFamily(t *testing.T) {
	hints := []string{
		"sec-ch-ua", "sec-ch-ua-mobile", "sec-ch-ua-platform", "sec-ch-ua-arch",
		"sec-ch-ua-bitness", "sec-ch-ua-full-version-list", "sec-ch-ua-model",
		"sec-ch-ua-platform-version",
	}
	for _, p := range Profiles() {
		h := BuildHeaders(p, KindNavigate)
		for _, k := range hints {
			_, ok := h[k]
			if p.Family == Chromium && !ok {
				t.Errorf("%s: missing %s", p.Name, k)
			}
			if p.Family != Chromium && ok {
				t.Errorf("%s: unexpected %s", p.Name, k)
			}
		}
		for _, k := range []string{"User-Agent", "Accept", "Accept-Language", "Accept-Encoding", "DNT", "Connection", "Upgrade-Insecure-Requests"} {
			if h[k] == "" {
				t.Errorf("%s: baseline header %s empty", p.Name, k)
			}
		}
	}
}

func TestBuildHeaders_ChromiumValues(t *testing.T) {
	p, _ := Lookup("chrome-win")
	h := BuildHeaders(p, KindHead)

	if got := h["sec-ch-ua-platform"]; got != `"Windows"` {
		t.Fatalf("sec-ch-ua-platform = %s", got)
	}
	if got := h["sec-ch-ua-mobile"]; got != "?0" {
		t.Fatalf("sec-ch-ua-mobile = %s", got)
	}
	want := `"Google Chrome";v="131.0.0.0", "Chromium";v="131.0.0.0", "Not_A Brand";v="24.0.0.0"`
	if got := h["sec-ch-ua-full-version-list"]; got != want {
		t.Fatalf("full-version-list:\n got %s\nwant %s", got, want)
	}
	if got := h["sec-ch-ua"]; !strings.HasPrefix(got, `"Google Chrome";v="131", `) {
		t.Fatalf("sec-ch-ua = %s", got)
	}
}

func TestBuildHeaders_RequestKind(t *testing.T) {
	p, _ := Lookup("firefox-win")

	head := BuildHeaders(p, KindHead)
	if head["Sec-Fetch-Mode"] != "no-cors" || head["Sec-Fetch-Dest"] != "empty" || head["Sec-Fetch-Site"] != "none" {
		t.Fatalf("HEAD sec-fetch group: %v", head)
	}
	if _, ok := head["Sec-Fetch-User"]; ok {
		t.Fatal("HEAD must not carry Sec-Fetch-User")
	}
	if _, ok := head["sec-purpose"]; ok {
		t.Fatal("HEAD must not carry speculative headers")
	}

	nav := BuildHeaders(p, KindNavigate)
	if nav["Sec-Fetch-Mode"] != "navigate" || nav["Sec-Fetch-User"] != "?1" || nav["Sec-Fetch-Dest"] != "document" {
		t.Fatalf("navigate sec-fetch group: %v", nav)
	}
	if nav["sec-purpose"] != "prefetch;prerender" || nav["purpose"] != "prefetch" {
		t.Fatalf("navigate speculative headers: %v", nav)
	}
	img := BuildHeaders(p, KindImage)
	if img["Sec-Fetch-Mode"] != "no-cors" || img["Sec-Fetch-Dest"] != "image" || img["Sec-Fetch-Site"] != "same-origin" {
		t.Fatalf("image sec-fetch group: %v", img)
	}
	if !strings.HasPrefix(img["Accept"], "image/") || img["sec-purpose"] != "prefetch;prerender" {
		t.Fatalf("image accept/speculative headers: %v", img)
	}
	if _, ok := img["Sec-Fetch-User"]; ok {
		t.Fatal("image request must not carry Sec-Fetch-User")
	}

	for _, h := range []Headers{head, nav, img} {
		if h["Cache-Control"] != "max-age=0" || h["Pragma"] != "no-cache" {
			t.Fatalf("cache headers: %v", h)
		}
	}
}

func TestHeaders_ApplyKeepsSpelling(t *testing.T) {
	p, _ := Lookup("chrome-mac")
	dst := http.Header{}
	BuildHeaders(p, KindHead).Apply(dst)
	if _, ok := dst["sec-ch-ua"]; !ok {
		t.Fatal("client hint key was canonicalised")
	}
	if dst.Get("User-Agent") != p.UserAgent {
		t.Fatalf("User-Agent = %q", dst.Get("User-Agent"))
	}
}

func TestTLS_FamilyPresets(t *testing.T) {
	chrome, _ := Lookup("chrome-win")
	firefox, _ := Lookup("firefox-mac")
	safari, _ := Lookup("safari-mac")

	c, f, s := TLS(chrome), TLS(firefox), TLS(safari)
	if !c.GREASE || f.GREASE || s.GREASE {
		t.Fatalf("GREASE flags: chromium=%v firefox=%v safari=%v", c.GREASE, f.GREASE, s.GREASE)
	}
	if slices.Equal(c.Ciphers, f.Ciphers) || slices.Equal(f.Ciphers, s.Ciphers) {
		t.Fatal("presets must differ per family")
	}
	for _, p := range []TLSParams{c, f, s} {
		if len(p.Ciphers) == 0 || len(p.Curves) == 0 || len(p.SignatureAlgorithms) == 0 {
			t.Fatalf("empty preset: %+v", p)
		}
		if p.Curves[0] != 0x001d {
			t.Fatalf("first curve = %#x, want X25519", p.Curves[0])
		}
	}

	// Callers get copies.
	c.Ciphers[0] = 0
	if TLS(chrome).Ciphers[0] == 0 {
		t.Fatal("TLS returned shared slice")
	}
}

func TestLookup_ReturnsCopy(t *testing.T) {
	p, _ := Lookup("chrome-win")
	p.Brands[0].Name = "mutated"
	again, _ := Lookup("chrome-win")
	if again.Brands[0].Name == "mutated" {
		t.Fatal("registry mutated through Lookup result")
	}
}
