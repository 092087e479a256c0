package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/urlgate/idgen"
	"github.com/hazyhaar/urlgate/kit"
)

const (
	// TraceHeader carries the trace ID in both directions.
	TraceHeader = "X-Trace-ID"
	// RequestIDHeader carries the per-hop request ID in responses.
	RequestIDHeader = "X-Request-ID"
)

var (
	newTraceID   = idgen.NanoID(16)
	newRequestID = idgen.Prefixed("req_", idgen.NanoID(12))
)

// TraceID assigns each request a trace ID (reusing a well-formed incoming
// X-Trace-ID) and a fresh request ID, and injects them into the context,
// the response headers and a per-request structured logger. The IDs are
// stored under kit.TraceIDKey and kit.RequestIDKey, the client IP under
// kit.RemoteAddrKey and the logger under LoggerKey.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if !validTraceID(traceID) {
			traceID = newTraceID()
		}
		requestID := newRequestID()
		ip := ExtractIP(r)

		ctx := kit.WithTraceID(r.Context(), traceID)
		ctx = kit.WithRequestID(ctx, requestID)
		ctx = kit.WithRemoteAddr(ctx, ip)
		ctx = kit.WithTransport(ctx, "http")
		w.Header().Set(TraceHeader, traceID)
		w.Header().Set(RequestIDHeader, requestID)

		logger := slog.Default().With(
			"trace_id", traceID,
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", ip,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Info("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func validTraceID(s string) bool {
	if len(s) < 8 || len(s) > 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
