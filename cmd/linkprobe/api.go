package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/urlgate/checklog"
	"github.com/hazyhaar/urlgate/horosafe"
	"github.com/hazyhaar/urlgate/kit"
	"github.com/hazyhaar/urlgate/linkprobe"
	"github.com/hazyhaar/urlgate/shield"
)

// validator is the slice of *linkprobe.Validator the API needs.
type validator interface {
	Validate(ctx context.Context, rawURL string) linkprobe.Result
}

// recorder is the slice of *checklog.Store the API needs.
type recorder interface {
	Record(ctx context.Context, e *checklog.Entry) error
	Recent(ctx context.Context, limit int) ([]*checklog.Entry, error)
	ByHost(ctx context.Context, host string, limit int) ([]*checklog.Entry, error)
}

type api struct {
	logger  *slog.Logger
	store   recorder // nil when the check log is disabled
	urlOpts []horosafe.URLOption
	probe   kit.Endpoint
	group   singleflight.Group
}

func newAPI(v validator, store recorder, logger *slog.Logger, timeout time.Duration, urlOpts ...horosafe.URLOption) *api {
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{logger: logger, store: store, urlOpts: urlOpts}
	a.probe = kit.Chain(
		kit.Logging(logger, "validate"),
		kit.Timeout(timeout),
	)(func(ctx context.Context, req any) (any, error) {
		return v.Validate(ctx, req.(string)), nil
	})
	return a
}

func (a *api) routes(stack ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	for _, mw := range stack {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/validate", func(r chi.Router) {
		r.Post("/", a.handleValidate)
		r.Post("/check-url", a.handleValidate)
		r.Get("/recent", a.handleRecent)
	})
	return r
}

type validateRequest struct {
	URL *string `json:"url"`
}

// validateData is the success payload of the validate endpoints.
type validateData struct {
	Exists           bool   `json:"exists"`
	Accessible       bool   `json:"accessible"`
	ValidationMethod string `json:"validationMethod"`
	StatusCode       int    `json:"statusCode,omitempty"`
	Title            string `json:"title,omitempty"`
	Description      string `json:"description,omitempty"`
	Favicon          string `json:"favicon,omitempty"`
	ResponseTime     int64  `json:"responseTime,omitempty"`
	Attempts         int    `json:"attempts"`
}

func newValidateData(res linkprobe.Result) validateData {
	d := validateData{
		Exists:           res.Exists,
		Accessible:       res.Accessible,
		ValidationMethod: string(res.Method),
		Attempts:         res.Attempts,
	}
	if m := res.Metadata; m != nil {
		d.StatusCode = m.StatusCode
		d.Title = m.Title
		d.Description = m.Description
		d.Favicon = m.Favicon
		d.ResponseTime = m.ResponseTime
	}
	return d
}

func (a *api) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := shield.GetLogger(ctx)

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "INVALID_BODY", "request body too large")
			return
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "url" {
			writeError(w, http.StatusBadRequest, "INVALID_URL", "url must be a string")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object with a url string")
		return
	}
	if req.URL == nil || strings.TrimSpace(*req.URL) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_URL", "url is required")
		return
	}
	rawURL := strings.TrimSpace(*req.URL)
	if err := horosafe.ValidateURL(ctx, rawURL, a.urlOpts...); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_URL", err.Error())
		return
	}

	// Identical in-flight URLs share one cascade. The cascade is detached
	// from the first caller so its disconnect cannot abort the others.
	ch := a.group.DoChan(rawURL, func() (any, error) {
		return a.probe(context.WithoutCancel(ctx), rawURL)
	})

	var out singleflight.Result
	select {
	case out = <-ch:
	case <-ctx.Done():
		logger.Info("validate: client gone", "url", rawURL)
		return
	}
	res := out.Val.(linkprobe.Result)
	if out.Shared {
		logger.Debug("validate: coalesced", "url", rawURL)
	}

	a.record(ctx, logger, rawURL, res)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": newValidateData(res)})
}

func (a *api) record(ctx context.Context, logger *slog.Logger, rawURL string, res linkprobe.Result) {
	if a.store == nil {
		return
	}
	e := &checklog.Entry{
		URL:        rawURL,
		Exists:     res.Exists,
		Accessible: res.Accessible,
		Method:     string(res.Method),
		Attempts:   res.Attempts,
		TraceID:    kit.GetTraceID(ctx),
	}
	if m := res.Metadata; m != nil {
		e.StatusCode = m.StatusCode
		e.ResponseTimeMs = m.ResponseTime
	}
	if err := a.store.Record(context.WithoutCancel(ctx), e); err != nil {
		logger.Warn("validate: checklog record failed", "url", rawURL, "error", err)
	}
}

func (a *api) handleRecent(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusNotFound, "CHECKLOG_DISABLED", "check log is not configured")
		return
	}
	limit := queryInt(r, "limit", checklog.DefaultLimit)
	var entries []*checklog.Entry
	var err error
	if host := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("host"))); host != "" {
		entries, err = a.store.ByHost(r.Context(), host, limit)
	} else {
		entries, err = a.store.Recent(r.Context(), limit)
	}
	if err != nil {
		shield.GetLogger(r.Context()).Error("validate: checklog recent", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not list recent checks")
		return
	}
	if entries == nil {
		entries = []*checklog.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": entries})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, map[string]any{
		"success": false,
		"error":   map[string]string{"code": errCode, "message": msg},
	})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
