package linkprobe

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/hazyhaar/urlgate/horosafe"
	"github.com/hazyhaar/urlgate/linkprobe/internal/classify"
	"github.com/hazyhaar/urlgate/linkprobe/internal/fingerprint"
	"github.com/hazyhaar/urlgate/linkprobe/internal/metadata"
	"github.com/hazyhaar/urlgate/linkprobe/internal/protection"
	"github.com/hazyhaar/urlgate/linkprobe/internal/timing"
	"github.com/hazyhaar/urlgate/linkprobe/internal/transport"
)

// prober is the HTTP plumbing shared by the request-sending strategies.
type prober struct {
	cfg    *Config
	logger *slog.Logger
	sleep  timing.Sleeper
	jitter func() timing.Jitter
	trOpts []transport.Option
	guard  URLGuard
}

type fetchRequest struct {
	method       string
	url          string
	profile      fingerprint.Profile
	kind         fingerprint.RequestKind
	timeout      time.Duration
	maxRedirects int
	readBody     bool
	anyType      bool // read non-HTML bodies too
}

type response struct {
	status     int
	header     http.Header
	requestURL string
	finalURL   string
	body       []byte
	elapsed    time.Duration
}

// fetch sends one fingerprinted request over a fresh transport. The body is
// read only for HTML when asked, up to MaxBodyBytes.
func (p *prober) fetch(ctx context.Context, fr fetchRequest) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, fr.timeout)
	defer cancel()

	if err := p.admit(ctx, fr.url); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, fr.method, fr.url, nil)
	if err != nil {
		return nil, err
	}
	fingerprint.BuildHeaders(fr.profile, fr.kind).Apply(req.Header)

	client := &http.Client{
		Transport: transport.New(fingerprint.TLS(fr.profile), p.trOpts...),
		CheckRedirect: func(next *http.Request, via []*http.Request) error {
			if len(via) > fr.maxRedirects {
				return classify.ErrTooManyRedirects
			}
			return p.admit(next.Context(), next.URL.String())
		},
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &response{
		status:     resp.StatusCode,
		header:     resp.Header,
		requestURL: fr.url,
		finalURL:   resp.Request.URL.String(),
	}
	if fr.readBody && (fr.anyType || isHTML(resp.Header)) {
		// A truncated or interrupted body still feeds the extractor.
		out.body, _ = horosafe.ReadAtMost(resp.Body, p.cfg.MaxBodyBytes)
	}
	out.elapsed = time.Since(start)

	p.logger.Debug("linkprobe: fetch",
		"method", fr.method, "url", fr.url, "profile", fr.profile.Name,
		"status", out.status, "elapsed_ms", out.elapsed.Milliseconds())
	return out, nil
}

// admit runs the URL guard, marking refusals with classify.ErrRejected.
func (p *prober) admit(ctx context.Context, rawURL string) error {
	if p.guard == nil {
		return nil
	}
	if err := p.guard(ctx, rawURL); err != nil {
		p.logger.Warn("linkprobe: request rejected", "url", rawURL, "error", err)
		return fmt.Errorf("%w: %s: %w", classify.ErrRejected, rawURL, err)
	}
	return nil
}

func (r *response) metadata() *Metadata {
	m := &Metadata{
		StatusCode:   r.status,
		ResponseTime: r.elapsed.Milliseconds(),
		ContentType:  r.header.Get("Content-Type"),
		LastModified: r.header.Get("Last-Modified"),
		Server:       r.header.Get("Server"),
	}
	if r.finalURL != r.requestURL {
		m.RedirectURL = r.finalURL
	}
	return m
}

// fromError classifies a transport failure into res.
func fromError(res Result, err error) Result {
	o := classify.Error(err)
	res.Exists, res.Accessible = o.Exists, false
	res.debug("error", err.Error())
	res.debug("code", o.Code)
	return res
}

// fromResponse classifies an HTTP response into res and fills metadata.
func fromResponse(res Result, r *response) Result {
	o := classify.Status(r.status)
	res.Exists, res.Accessible = o.Exists, o.Accessible
	res.Metadata = r.metadata()
	if o.Inconclusive() {
		res.debug("status", r.status)
	}
	if v := protection.DetectVendor(r.header); v != "" {
		res.debug("vendor", v)
	}
	return res
}

// addPage extracts title, description and favicon from an HTML body.
func addPage(m *Metadata, r *response) {
	if len(r.body) == 0 {
		return
	}
	page := metadata.Extract(r.body, r.header.Get("Content-Type"), r.finalURL)
	m.Title = page.Title
	m.Description = page.Description
	m.Favicon = page.Favicon
}

func isHTML(h http.Header) bool {
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && (mt == "text/html" || mt == "application/xhtml+xml")
}
