// Command linkprobe validates URLs without a browser.
//
// Usage:
//
//	linkprobe -config linkprobe.yaml         # serve the JSON API
//	linkprobe -url https://example.com       # validate one URL, print JSON
//	linkprobe -mcp                           # serve MCP tools over stdio
//	linkprobe -hash-key <key>                # print the API_KEY_HASH for key
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/urlgate/checklog"
	"github.com/hazyhaar/urlgate/horosafe"
	"github.com/hazyhaar/urlgate/linkprobe"
	"github.com/hazyhaar/urlgate/shield"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to linkprobe.yaml config file")
	singleURL := flag.String("url", "", "validate a single URL and print the result")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools over stdio")
	addr := flag.String("addr", "", "listen address (overrides config and PORT)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	hashKey := flag.String("hash-key", "", "print the bcrypt hash of an API key and exit")
	flag.Parse()

	if *hashKey != "" {
		if err := printKeyHash(os.Stdout, *hashKey); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig(*configPath, os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, closeLog := newLogger(cfg.Log, os.Stderr)
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var urlOpts []horosafe.URLOption
	if cfg.Server.AllowPrivate {
		urlOpts = append(urlOpts, horosafe.AllowPrivate())
	}
	v := linkprobe.New(&cfg.Probe, logger, probeOptions(urlOpts, !cfg.Server.AllowPrivate)...)

	switch {
	case *singleURL != "":
		err = runSingle(ctx, v, *singleURL)
	case *serveMCP:
		err = runMCP(ctx, v)
	default:
		err = runServer(ctx, logger, cfg, v, urlOpts)
	}
	if err != nil {
		logger.Error("linkprobe: fatal", "error", err)
		closeLog()
		os.Exit(1)
	}
}

// probeOptions applies the route's URL admission to every request the
// cascade sends, redirects included. checkDial adds the private-address
// check on the connected IP.
func probeOptions(urlOpts []horosafe.URLOption, checkDial bool) []linkprobe.Option {
	opts := []linkprobe.Option{
		linkprobe.WithURLGuard(func(ctx context.Context, rawURL string) error {
			return horosafe.ValidateURL(ctx, rawURL, urlOpts...)
		}),
	}
	if checkDial {
		opts = append(opts, linkprobe.WithAddrGuard(horosafe.CheckIP))
	}
	return opts
}

func printKeyHash(w io.Writer, key string) error {
	h, err := shield.HashKey(key)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, h)
	return err
}

func runSingle(ctx context.Context, v *linkprobe.Validator, rawURL string) error {
	res := v.Validate(ctx, rawURL)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runMCP(ctx context.Context, v *linkprobe.Validator) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: "linkprobe", Version: version}, nil)
	v.RegisterMCP(srv)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func runServer(ctx context.Context, logger *slog.Logger, cfg *fileConfig, v *linkprobe.Validator, urlOpts []horosafe.URLOption) error {
	var store recorder
	if cfg.Checklog.Path != "" {
		cl, err := checklog.Open(cfg.Checklog.Path)
		if err != nil {
			return err
		}
		defer cl.Close()
		go pruneLoop(ctx, logger, cl, cfg.Checklog.Keep, cfg.Checklog.PruneInterval)
		store = cl
	}

	rl := shield.NewRateLimiter(cfg.RateLimits, "/health")
	rl.StartGC(10*time.Minute, ctx.Done())

	var keys *shield.APIKeys
	if len(cfg.Server.APIKeyHashes) > 0 {
		var err error
		keys, err = shield.NewAPIKeys(cfg.Server.APIKeyHashes, "/health")
		if err != nil {
			return err
		}
	} else {
		logger.Warn("linkprobe: no API key configured, API is open")
	}

	proxies, err := shield.ParsePrefixes(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("server: trusted_proxies: %w", err)
	}
	stack := append([]func(http.Handler) http.Handler{shield.RealIP(proxies)}, shield.DefaultAPIStack(rl, keys)...)

	a := newAPI(v, store, logger, cfg.Server.RequestTimeout, urlOpts...)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.routes(stack...),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func pruneLoop(ctx context.Context, logger *slog.Logger, cl *checklog.Store, keep int, every time.Duration) {
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			n, err := cl.Prune(ctx, keep)
			if err != nil {
				logger.Warn("checklog: prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("checklog: pruned", "deleted", n)
			}
		}
	}
}
