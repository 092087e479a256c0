package linkprobe

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/urlgate/linkprobe/internal/classify"
	"github.com/hazyhaar/urlgate/linkprobe/internal/fingerprint"
	"github.com/hazyhaar/urlgate/linkprobe/internal/metadata"
	"github.com/hazyhaar/urlgate/linkprobe/internal/resolve"
)

// stealth sends a single HEAD: the cheapest, least conspicuous probe.
type stealth struct{ p *prober }

func (s stealth) Method() Method { return MethodStealth }

func (s stealth) Attempt(ctx context.Context, target string) Result {
	res := Result{Method: MethodStealth, Attempts: 1}
	profile := fingerprint.Select(target)

	if err := s.p.sleep(ctx, s.p.jitter().PreDelay); err != nil {
		res.debug("error", err.Error())
		return res
	}

	resp, err := s.p.fetch(ctx, fetchRequest{
		method:       http.MethodHead,
		url:          target,
		profile:      profile,
		kind:         fingerprint.KindHead,
		timeout:      s.p.cfg.Stealth.Timeout,
		maxRedirects: s.p.cfg.Stealth.MaxRedirects,
	})
	if err != nil {
		return fromError(res, err)
	}
	return fromResponse(res, resp)
}

// enhanced retries with growing patience and pauses between attempts.
type enhanced struct{ p *prober }

func (e enhanced) Method() Method { return MethodEnhanced }

func (e enhanced) Attempt(ctx context.Context, target string) Result {
	res := Result{Method: MethodEnhanced}
	profile := fingerprint.Select(target)
	gap := e.p.jitter().BetweenRequests
	attempts := e.p.cfg.Enhanced.Attempts

	var lastErr error
	lastStatus := 0
	for i, a := range attempts {
		if err := e.p.sleep(ctx, gap*time.Duration(i+1)); err != nil {
			res.debug("error", err.Error())
			return res
		}
		res.Attempts = i + 1

		method := strings.ToUpper(a.Method)
		kind := fingerprint.KindNavigate
		if method == http.MethodHead {
			kind = fingerprint.KindHead
		}
		resp, err := e.p.fetch(ctx, fetchRequest{
			method:       method,
			url:          target,
			profile:      profile,
			kind:         kind,
			timeout:      a.Timeout,
			maxRedirects: e.p.cfg.Enhanced.MaxRedirects,
			readBody:     method == http.MethodGet,
		})
		if err != nil {
			if classify.IsNotFound(err) {
				return fromError(res, err)
			}
			lastErr = err
			continue
		}
		if resp.status >= 500 {
			lastStatus = resp.status
			continue
		}

		out := fromResponse(res, resp)
		if method == http.MethodGet {
			addPage(out.Metadata, resp)
		}
		return out
	}

	res.Exists, res.Accessible = true, false
	if lastErr != nil {
		res.debug("error", lastErr.Error())
		res.debug("code", classify.Error(lastErr).Code)
	}
	if lastStatus != 0 {
		res.debug("status", lastStatus)
	}
	return res
}

// behavioral behaves like a page visit: a short pause, a navigation, then
// the favicon fetch a browser would fire.
type behavioral struct{ p *prober }

func (b behavioral) Method() Method { return MethodBehavioral }

func (b behavioral) Attempt(ctx context.Context, target string) Result {
	res := Result{Method: MethodBehavioral, Attempts: 1}
	profile := fingerprint.Select(target)
	cfg := b.p.cfg.Behavioral

	if err := b.p.sleep(ctx, cfg.PrefetchDelay); err != nil {
		res.debug("error", err.Error())
		return res
	}

	resp, err := b.p.fetch(ctx, fetchRequest{
		method:       http.MethodGet,
		url:          target,
		profile:      profile,
		kind:         fingerprint.KindNavigate,
		timeout:      cfg.Timeout,
		maxRedirects: cfg.MaxRedirects,
		readBody:     true,
	})
	if err != nil {
		return fromError(res, err)
	}
	out := fromResponse(res, resp)
	if resp.status >= 500 {
		return out
	}

	var (
		faviconHash uint32
		faviconOK   bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		faviconHash, faviconOK = b.favicon(gctx, resp.finalURL, profile)
		return nil
	})
	g.Go(func() error {
		addPage(out.Metadata, resp)
		return nil
	})
	_ = g.Wait()

	if faviconOK {
		out.debug("faviconHash", faviconHash)
		if out.Metadata.Favicon == "" {
			out.Metadata.Favicon = metadata.ResolveFavicon("/favicon.ico", resp.finalURL)
		}
	}
	return out
}

// favicon fetches /favicon.ico best-effort and hashes it. Failures are
// swallowed.
func (b behavioral) favicon(ctx context.Context, pageURL string, profile fingerprint.Profile) (uint32, bool) {
	u := metadata.ResolveFavicon("/favicon.ico", pageURL)
	if u == "" {
		return 0, false
	}
	resp, err := b.p.fetch(ctx, fetchRequest{
		method:       http.MethodGet,
		url:          u,
		profile:      profile,
		kind:         fingerprint.KindImage,
		timeout:      b.p.cfg.Behavioral.FaviconTimeout,
		maxRedirects: b.p.cfg.Behavioral.MaxRedirects,
		readBody:     true,
		anyType:      true,
	})
	if err != nil || resp.status != http.StatusOK || len(resp.body) == 0 {
		return 0, false
	}
	return murmur3.Sum32(resp.body), true
}

// dnsFallback only asks whether the name resolves.
type dnsFallback struct {
	resolver resolve.Resolver
	timeout  time.Duration
}

func (d dnsFallback) Method() Method { return MethodDNS }

func (d dnsFallback) Attempt(ctx context.Context, target string) Result {
	res := Result{Method: MethodDNS, Attempts: 1}
	host := hostOf(target)
	if host == "" {
		res.debug("error", "no host")
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	records, err := d.resolver.LookupA(ctx, host)
	if err != nil || len(records) == 0 {
		if err != nil {
			res.debug("error", err.Error())
		}
		return res
	}
	res.Exists = true
	res.debug("dnsRecords", records)
	return res
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Hostname()
}
