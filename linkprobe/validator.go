// Package linkprobe decides, without a browser, whether a URL points to a
// real and reachable resource, even behind CDN/WAF defenses.
//
// A Validator runs an ordered cascade of strategies, cheapest first:
//
//	stealth     one fingerprinted HEAD
//	enhanced    GET 5s, GET 8s, HEAD 10s with growing pauses
//	behavioral  a page-visit GET plus the favicon follow-up
//	dns         A-record lookup only
//
// The first strategy reporting the target both existing and accessible
// ends the cascade. Validate never returns an error and never panics.
//
// Usage:
//
//	v := linkprobe.New(&linkprobe.Config{}, logger)
//	res := v.Validate(ctx, "https://example.com")
package linkprobe

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net"

	"github.com/hazyhaar/urlgate/linkprobe/internal/classify"
	"github.com/hazyhaar/urlgate/linkprobe/internal/protection"
	"github.com/hazyhaar/urlgate/linkprobe/internal/resolve"
	"github.com/hazyhaar/urlgate/linkprobe/internal/timing"
	"github.com/hazyhaar/urlgate/linkprobe/internal/transport"
)

// NoteDNSOnly is attached when only DNS could confirm the domain.
const NoteDNSOnly = "domain exists via DNS but HTTP access blocked"

// Validator runs the cascade. Safe for concurrent use.
type Validator struct {
	cfg        *Config
	logger     *slog.Logger
	strategies []Strategy
	guard      URLGuard
}

// URLGuard vets a URL before any request is sent to it. It sees the
// submitted URL, every redirect hop and the favicon follow-up.
type URLGuard func(ctx context.Context, rawURL string) error

type options struct {
	strategies []Strategy
	resolver   resolve.Resolver
	sleep      timing.Sleeper
	dial       func(ctx context.Context, network, addr string) (net.Conn, error)
	guard      URLGuard
	addrGuard  func(net.IP) error
}

// Option customises a Validator.
type Option func(*options)

// WithStrategies replaces the default cascade.
func WithStrategies(s ...Strategy) Option {
	return func(o *options) { o.strategies = s }
}

// WithResolver replaces the resolver used by the DNS strategy.
func WithResolver(r resolve.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithSleeper replaces the pause function. Tests pass timing.NoSleep.
func WithSleeper(s timing.Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// WithURLGuard rejects URLs before they are fetched. A rejected redirect
// hop fails the request with code EREJECTED.
func WithURLGuard(g URLGuard) Option {
	return func(o *options) { o.guard = g }
}

// WithAddrGuard checks the IP of every connection the probe opens.
func WithAddrGuard(fn func(net.IP) error) Option {
	return func(o *options) { o.addrGuard = fn }
}

// WithDialContext replaces the TCP dial function used by every request.
func WithDialContext(fn func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(o *options) { o.dial = fn }
}

// New creates a Validator. cfg may be nil.
func New(cfg *Config, logger *slog.Logger, opts ...Option) *Validator {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	o := options{sleep: timing.Sleep}
	for _, fn := range opts {
		fn(&o)
	}

	v := &Validator{cfg: cfg, logger: logger, strategies: o.strategies, guard: o.guard}
	if len(v.strategies) == 0 {
		v.strategies = defaultStrategies(cfg, logger, o)
	}
	return v
}

func defaultStrategies(cfg *Config, logger *slog.Logger, o options) []Strategy {
	var trOpts []transport.Option
	if cfg.InsecureSkipVerify {
		trOpts = append(trOpts, transport.WithInsecureSkipVerify())
	}
	if o.dial != nil {
		trOpts = append(trOpts, transport.WithDialContext(o.dial))
	}
	if o.addrGuard != nil {
		trOpts = append(trOpts, transport.WithAddrGuard(o.addrGuard))
	}

	r := o.resolver
	if r == nil {
		if cfg.DNS.Mode == "direct" {
			r = resolve.NewDirect(cfg.DNS.Servers, cfg.DNS.Timeout)
		} else {
			r = resolve.NewSystem()
		}
	}

	p := &prober{
		cfg:    cfg,
		logger: logger,
		sleep:  o.sleep,
		jitter: timing.New,
		trOpts: trOpts,
		guard:  o.guard,
	}
	return []Strategy{
		stealth{p: p},
		enhanced{p: p},
		behavioral{p: p},
		dnsFallback{resolver: r, timeout: cfg.DNS.Timeout},
	}
}

// Admit runs the URL guard on rawURL. It returns nil when no guard is set.
func (v *Validator) Admit(ctx context.Context, rawURL string) error {
	if v.guard == nil {
		return nil
	}
	if err := v.guard(ctx, rawURL); err != nil {
		return fmt.Errorf("%w: %w", classify.ErrRejected, err)
	}
	return nil
}

// Validate runs the cascade for rawURL. When ctx ends early the best result
// gathered so far is returned with debugInfo.aborted set. A URL refused by
// the guard runs no strategy.
func (v *Validator) Validate(ctx context.Context, rawURL string) Result {
	if v.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.Deadline)
		defer cancel()
	}

	if err := v.Admit(ctx, rawURL); err != nil {
		v.logger.Warn("linkprobe: url rejected", "url", rawURL, "error", err)
		res := Result{Method: MethodStealth}
		res.debug("error", err.Error())
		res.debug("code", classify.CodeRejected)
		return res.normalize()
	}

	var best *Result
	var last Result
	for i, s := range v.strategies {
		if err := ctx.Err(); err != nil {
			return v.aborted(rawURL, best, s.Method(), i, err)
		}

		res := v.run(ctx, s, rawURL)
		if err := ctx.Err(); err != nil {
			// In-flight requests failed because of the abort, not the target.
			return v.aborted(rawURL, best, s.Method(), i, err)
		}

		v.logger.Debug("linkprobe: strategy done",
			"url", rawURL, "method", res.Method, "exists", res.Exists,
			"accessible", res.Accessible, "attempts", res.Attempts)

		if res.Exists && res.Accessible {
			return v.finish(rawURL, res)
		}
		if best == nil || !best.Exists {
			r := res
			best = &r
		}
		if i == 0 {
			v.observeProtection(rawURL)
		}
		last = res
	}

	total := len(v.strategies)
	if last.Exists {
		last.Accessible = false
		last.Attempts = total
		last.debug("note", NoteDNSOnly)
		return v.finish(rawURL, last)
	}
	return v.finish(rawURL, Result{Method: last.Method, Attempts: total})
}

// run calls one strategy inside a panic boundary.
func (v *Validator) run(ctx context.Context, s Strategy, target string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			v.logger.Error("linkprobe: strategy panicked",
				"method", s.Method(), "url", target, "panic", p)
			res = Result{Method: s.Method(), Attempts: 1}
			res.debug("panic", fmt.Sprint(p))
		}
	}()
	return s.Attempt(ctx, target)
}

func (v *Validator) aborted(target string, best *Result, m Method, done int, err error) Result {
	var res Result
	if best != nil {
		res = *best
		res.DebugInfo = maps.Clone(best.DebugInfo)
	} else {
		res = Result{Method: m, Attempts: done}
	}
	res.debug("aborted", err.Error())
	v.logger.Warn("linkprobe: validation aborted",
		"url", target, "error", err, "strategies_run", done)
	return res.normalize()
}

func (v *Validator) finish(target string, res Result) Result {
	res = res.normalize()
	v.logger.Info("linkprobe: validated",
		"url", target, "exists", res.Exists, "accessible", res.Accessible,
		"method", res.Method, "attempts", res.Attempts)
	return res
}

func (v *Validator) observeProtection(target string) {
	if vendor, ok := protection.IsHighProtection(hostOf(target)); ok {
		v.logger.Info("linkprobe: high-protection domain",
			"url", target, "vendor", vendor)
	}
}
