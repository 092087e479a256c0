// Package shield provides the HTTP middleware wrapped around the public
// JSON API: security headers, request body limits, request tracing,
// per-IP rate limiting and optional API-key authentication.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders(shield.APIHeaders()))
//	r.Use(shield.MaxJSONBody(16 * 1024))
//	r.Use(shield.TraceID)
//	r.Use(shield.NewRateLimiter(rules).Middleware)
//
// Or apply the default API stack in one call:
//
//	for _, mw := range shield.DefaultAPIStack(rl, keys) {
//	    r.Use(mw)
//	}
package shield

import (
	"encoding/json"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultMaxJSONBody caps API request bodies (16 KiB).
const DefaultMaxJSONBody int64 = 16 * 1024

// DefaultAPIStack returns the standard middleware stack for the JSON API.
// Order: SecurityHeaders → MaxJSONBody → TraceID → RateLimiter → APIKey.
// rl and keys may be nil to skip the corresponding middleware.
func DefaultAPIStack(rl *RateLimiter, keys *APIKeys) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		SecurityHeaders(APIHeaders()),
		MaxJSONBody(DefaultMaxJSONBody),
		TraceID,
	}
	if rl != nil {
		stack = append(stack, rl.Middleware)
	}
	if keys != nil {
		stack = append(stack, keys.Middleware)
	}
	return stack
}

// writeError writes {"error": msg} with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
