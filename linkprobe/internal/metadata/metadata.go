// Package metadata pulls the title, description and favicon out of an HTML
// document. It never fails: unparseable input yields empty fields.
package metadata

import (
	"bytes"
	"io"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

const (
	maxTitle       = 512
	maxDescription = 1024
)

var strict = bluemonday.StrictPolicy()

// Metadata is what a page says about itself.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Favicon     string `json:"favicon,omitempty"`
}

// icon link priorities; higher wins.
const (
	iconNone = iota
	iconApple
	iconPlain
)

type scan struct {
	title         string
	description   string
	ogDescription string
	icon          string
	iconRank      int
}

// Extract parses body and returns its metadata. The body is converted to
// UTF-8 from the charset named by contentType, a BOM or a <meta charset>
// declaration. A relative favicon href is resolved against base's origin.
func Extract(body []byte, contentType, base string) Metadata {
	doc, err := html.Parse(bytes.NewReader(toUTF8(body, contentType)))
	if err != nil {
		return Metadata{}
	}

	var s scan
	s.walk(doc)

	desc := s.description
	if desc == "" {
		desc = s.ogDescription
	}
	return Metadata{
		Title:       clean(s.title, maxTitle),
		Description: clean(desc, maxDescription),
		Favicon:     ResolveFavicon(s.icon, base),
	}
}

func toUTF8(body []byte, contentType string) []byte {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return out
}

func (s *scan) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Title:
			if s.title == "" {
				s.title = text(n)
			}
		case atom.Meta:
			s.meta(n)
		case atom.Link:
			s.link(n)
		case atom.Script, atom.Style, atom.Svg:
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.walk(c)
	}
}

func (s *scan) meta(n *html.Node) {
	name := strings.ToLower(attr(n, "name"))
	prop := strings.ToLower(attr(n, "property"))
	content := attr(n, "content")
	switch {
	case name == "description" && s.description == "":
		s.description = content
	case prop == "og:description" && s.ogDescription == "":
		s.ogDescription = content
	}
}

func (s *scan) link(n *html.Node) {
	href := strings.TrimSpace(attr(n, "href"))
	if href == "" {
		return
	}
	rank := iconNone
	for _, tok := range strings.Fields(strings.ToLower(attr(n, "rel"))) {
		switch tok {
		case "icon":
			if rank < iconPlain {
				rank = iconPlain
			}
		case "apple-touch-icon", "apple-touch-icon-precomposed":
			if rank < iconApple {
				rank = iconApple
			}
		}
	}
	if rank > s.iconRank {
		s.icon, s.iconRank = href, rank
	}
}

// ResolveFavicon turns href into an absolute URL using base's origin.
// Absolute and protocol-relative hrefs keep their own host.
func ResolveFavicon(href, base string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		if ref.IsAbs() {
			return ref.String()
		}
		return ""
	}
	origin := &url.URL{Scheme: b.Scheme, Host: b.Host, Path: "/"}
	return origin.ResolveReference(ref).String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return b.String()
}

// clean strips markup, unescapes entities, collapses whitespace and caps
// the length in runes.
func clean(s string, limit int) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(strict.Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > limit {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:limit]))
	}
	return s
}
