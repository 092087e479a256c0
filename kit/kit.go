// Package kit is the transport-agnostic glue shared by the HTTP and MCP
// surfaces: a uniform Endpoint signature, composable middleware and the
// request-scoped context values both transports populate.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is one operation exposed over any transport.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs each call with its transport, trace ID, duration and error.
func Logging(logger *slog.Logger, name string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"trace_id", GetTraceID(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if id := GetRequestID(ctx); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			if addr := GetRemoteAddr(ctx); addr != "" {
				attrs = append(attrs, "remote_addr", addr)
			}
			if err != nil {
				logger.WarnContext(ctx, "kit: endpoint failed", append(attrs, "error", err)...)
				return resp, err
			}
			logger.DebugContext(ctx, "kit: endpoint done", attrs...)
			return resp, nil
		}
	}
}

// Timeout bounds every call with d. A zero d disables the bound.
func Timeout(d time.Duration) Middleware {
	return func(next Endpoint) Endpoint {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req any) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}
