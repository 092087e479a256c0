package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/urlgate/checklog"
	"github.com/hazyhaar/urlgate/dbopen"
	"github.com/hazyhaar/urlgate/horosafe"
	"github.com/hazyhaar/urlgate/linkprobe"
	"github.com/hazyhaar/urlgate/shield"
)

type stubValidator struct {
	res   linkprobe.Result
	calls atomic.Int32
	gate  chan struct{} // when set, Validate blocks until closed
}

func (s *stubValidator) Validate(ctx context.Context, _ string) linkprobe.Result {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.res
}

func publicLookup(context.Context, string) ([]string, error) {
	return []string{"93.184.216.34"}, nil
}

func testServer(t *testing.T, v validator, store recorder) *httptest.Server {
	t.Helper()
	a := newAPI(v, store, slog.New(slog.NewTextHandler(io.Discard, nil)), 5*time.Second,
		horosafe.WithLookup(publicLookup))
	srv := httptest.NewServer(a.routes(shield.DefaultAPIStack(nil, nil)...))
	t.Cleanup(srv.Close)
	return srv
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func post(t *testing.T, srv *httptest.Server, path, body string) (int, envelope) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, env
}

func TestValidate_InputErrors(t *testing.T) {
	// WHAT: malformed input is the only path to a 400.
	// WHY: clients distinguish "bad request" from "URL does not exist".
	v := &stubValidator{}
	srv := testServer(t, v, nil)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"empty url", `{"url":""}`, "INVALID_URL"},
		{"blank url", `{"url":"   "}`, "INVALID_URL"},
		{"missing url", `{}`, "INVALID_URL"},
		{"non-string url", `{"url":42}`, "INVALID_URL"},
		{"bad scheme", `{"url":"ftp://example.com"}`, "INVALID_URL"},
		{"private target", `{"url":"http://127.0.0.1/admin"}`, "INVALID_URL"},
		{"not json", `url=https://example.com`, "INVALID_BODY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := post(t, srv, "/api/validate", tt.body)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", status)
			}
			if env.Success || env.Error == nil || env.Error.Code != tt.code {
				t.Fatalf("envelope = %+v", env)
			}
		})
	}
	if v.calls.Load() != 0 {
		t.Fatal("validator called on invalid input")
	}
}

func TestValidate_NotExistsIs200(t *testing.T) {
	v := &stubValidator{res: linkprobe.Result{Method: linkprobe.MethodDNS, Attempts: 4}}
	srv := testServer(t, v, nil)

	for _, path := range []string{"/api/validate", "/api/validate/check-url"} {
		status, env := post(t, srv, path, `{"url":"https://nonexistent-domain-xyz123.test"}`)
		if status != http.StatusOK || !env.Success {
			t.Fatalf("%s: status = %d, env = %+v", path, status, env)
		}
		var data validateData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatal(err)
		}
		if data.Exists || data.Accessible || data.ValidationMethod != "dns" || data.Attempts != 4 {
			t.Fatalf("%s: data = %+v", path, data)
		}
	}
}

func TestValidate_SuccessFieldsAndChecklog(t *testing.T) {
	v := &stubValidator{res: linkprobe.Result{
		Exists: true, Accessible: true, Method: linkprobe.MethodStealth, Attempts: 1,
		Metadata: &linkprobe.Metadata{StatusCode: 200, Title: "Example Domain", ResponseTime: 87,
			Favicon: "https://example.com/favicon.ico"},
	}}
	store := checklog.New(dbopen.OpenMemory(t, dbopen.WithSchema(checklog.Schema)))
	srv := testServer(t, v, store)

	status, env := post(t, srv, "/api/validate", `{"url":"https://example.com"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var data validateData
	json.Unmarshal(env.Data, &data)
	if data.StatusCode != 200 || data.Title != "Example Domain" || data.ResponseTime != 87 ||
		data.ValidationMethod != "stealth" || data.Favicon != "https://example.com/favicon.ico" {
		t.Fatalf("data = %+v", data)
	}

	resp, err := http.Get(srv.URL + "/api/validate/recent?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var recent struct {
		Success bool              `json:"success"`
		Data    []*checklog.Entry `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&recent)
	if len(recent.Data) != 1 {
		t.Fatalf("recent = %d entries", len(recent.Data))
	}
	e := recent.Data[0]
	if e.URL != "https://example.com" || !e.Accessible || e.StatusCode != 200 || e.TraceID == "" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestValidate_Coalesces(t *testing.T) {
	// WHAT: identical concurrent requests share one cascade.
	// WHY: a burst for the same URL must not multiply outbound probes.
	v := &stubValidator{gate: make(chan struct{}), res: linkprobe.Result{Exists: true, Accessible: true, Method: linkprobe.MethodStealth}}
	srv := testServer(t, v, nil)

	var wg sync.WaitGroup
	codes := make([]int, 4)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(srv.URL+"/api/validate", "application/json", strings.NewReader(`{"url":"https://example.com"}`))
			if err != nil {
				return
			}
			resp.Body.Close()
			codes[i] = resp.StatusCode
		}()
	}
	// Let all requests join the in-flight call before releasing it.
	deadline := time.Now().Add(2 * time.Second)
	for v.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	close(v.gate)
	wg.Wait()

	for i, c := range codes {
		if c != http.StatusOK {
			t.Fatalf("request %d: status %d", i, c)
		}
	}
	if n := v.calls.Load(); n >= int32(len(codes)) {
		t.Fatalf("validator calls = %d, want fewer than %d", n, len(codes))
	}
}

func TestRecent_ByHost(t *testing.T) {
	store := checklog.New(dbopen.OpenMemory(t, dbopen.WithSchema(checklog.Schema)))
	ctx := context.Background()
	for _, u := range []string{"https://a.example/1", "https://b.example/", "https://a.example/2"} {
		if err := store.Record(ctx, &checklog.Entry{URL: u, Method: "stealth"}); err != nil {
			t.Fatal(err)
		}
	}
	srv := testServer(t, &stubValidator{}, store)

	resp, err := http.Get(srv.URL + "/api/validate/recent?host=A.example")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct {
		Data []*checklog.Entry `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Data) != 2 {
		t.Fatalf("entries = %d, want 2", len(out.Data))
	}
	for _, e := range out.Data {
		if e.Host != "a.example" {
			t.Fatalf("entry host = %q", e.Host)
		}
	}
}

func TestRecent_Disabled(t *testing.T) {
	srv := testServer(t, &stubValidator{}, nil)
	resp, err := http.Get(srv.URL + "/api/validate/recent")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(t, &stubValidator{}, nil)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" || resp.Header.Get(shield.TraceHeader) == "" {
		t.Fatalf("missing shield headers: %v", resp.Header)
	}
}

func TestValidate_EndToEnd(t *testing.T) {
	// WHAT: the real cascade behind the API reports a reachable local page.
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<title>Local</title>")
	}))
	defer target.Close()

	v := linkprobe.New(nil, slog.New(slog.NewTextHandler(io.Discard, nil)),
		linkprobe.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
	a := newAPI(v, nil, nil, 10*time.Second, horosafe.AllowPrivate())
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	status, env := post(t, srv, "/api/validate", `{"url":"`+target.URL+`"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var data validateData
	json.Unmarshal(env.Data, &data)
	if !data.Exists || !data.Accessible || data.ValidationMethod != "stealth" {
		t.Fatalf("data = %+v", data)
	}
}
