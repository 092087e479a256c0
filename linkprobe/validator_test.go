package linkprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/urlgate/linkprobe/internal/classify"
	"github.com/hazyhaar/urlgate/linkprobe/internal/timing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubStrategy struct {
	method Method
	res    Result
	fn     func(ctx context.Context) Result
	calls  atomic.Int32
}

func (s *stubStrategy) Method() Method { return s.method }

func (s *stubStrategy) Attempt(ctx context.Context, _ string) Result {
	s.calls.Add(1)
	if s.fn != nil {
		return s.fn(ctx)
	}
	r := s.res
	r.Method = s.method
	return r
}

func cascade(results ...Result) []*stubStrategy {
	methods := []Method{MethodStealth, MethodEnhanced, MethodBehavioral, MethodDNS}
	out := make([]*stubStrategy, len(methods))
	for i, m := range methods {
		out[i] = &stubStrategy{method: m}
		if i < len(results) {
			out[i].res = results[i]
		}
	}
	return out
}

func newStubValidator(stubs []*stubStrategy, cfg *Config, opts ...Option) *Validator {
	s := make([]Strategy, len(stubs))
	for i, st := range stubs {
		s[i] = st
	}
	return New(cfg, quietLogger(), append([]Option{WithStrategies(s...)}, opts...)...)
}

var errPrivateTarget = errors.New("private target")

// rejectContaining refuses every URL that contains one of parts.
func rejectContaining(parts ...string) URLGuard {
	return func(_ context.Context, rawURL string) error {
		for _, p := range parts {
			if strings.Contains(rawURL, p) {
				return errPrivateTarget
			}
		}
		return nil
	}
}

type stubResolver struct {
	addrs []string
	err   error
}

func (r stubResolver) LookupA(context.Context, string) ([]string, error) { return r.addrs, r.err }

func failDial(err error) func(context.Context, string, string) (net.Conn, error) {
	return func(context.Context, string, string) (net.Conn, error) { return nil, err }
}

func TestValidate_ShortCircuit(t *testing.T) {
	// WHAT: a stealth success ends the cascade.
	// WHY: every extra request is one more chance to trip a WAF.
	stubs := cascade(Result{Exists: true, Accessible: true, Attempts: 1})
	v := newStubValidator(stubs, nil)

	res := v.Validate(context.Background(), "https://example.com")
	if !res.Exists || !res.Accessible || res.Method != MethodStealth {
		t.Fatalf("result = %+v", res)
	}
	for _, s := range stubs[1:] {
		if n := s.calls.Load(); n != 0 {
			t.Fatalf("%s called %d times", s.method, n)
		}
	}
}

func TestValidate_Fallthrough(t *testing.T) {
	stubs := cascade(
		Result{Exists: true},
		Result{Exists: true, Attempts: 3},
		Result{Exists: true},
		Result{Exists: true, DebugInfo: map[string]any{"dnsRecords": []string{"93.184.216.34"}}},
	)
	v := newStubValidator(stubs, nil)

	res := v.Validate(context.Background(), "https://example.com")
	if !res.Exists || res.Accessible || res.Method != MethodDNS {
		t.Fatalf("result = %+v", res)
	}
	if res.DebugInfo["note"] != NoteDNSOnly {
		t.Fatalf("note = %v", res.DebugInfo["note"])
	}
	for _, s := range stubs {
		if s.calls.Load() != 1 {
			t.Fatalf("%s calls = %d", s.method, s.calls.Load())
		}
	}
}

func TestValidate_TotalFailure(t *testing.T) {
	stubs := cascade(Result{}, Result{}, Result{}, Result{DebugInfo: map[string]any{"error": "nxdomain"}})
	v := newStubValidator(stubs, nil)

	res := v.Validate(context.Background(), "https://nonexistent.test")
	want := Result{Exists: false, Accessible: false, Method: MethodDNS, Attempts: 4}
	if res.Exists != want.Exists || res.Accessible != want.Accessible ||
		res.Method != want.Method || res.Attempts != want.Attempts ||
		res.Metadata != nil || res.DebugInfo != nil {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
}

func TestValidate_PanicContained(t *testing.T) {
	stubs := cascade()
	stubs[0].fn = func(context.Context) Result { panic("boom") }
	stubs[1].res = Result{Exists: true, Accessible: true}
	v := newStubValidator(stubs, nil)

	res := v.Validate(context.Background(), "https://example.com")
	if res.Method != MethodEnhanced || !res.Accessible {
		t.Fatalf("result = %+v", res)
	}
}

func TestValidate_AbortReturnsBestSoFar(t *testing.T) {
	// WHAT: cancelling mid-cascade returns the first existing result.
	ctx, cancel := context.WithCancel(context.Background())
	stubs := cascade(Result{Exists: true, Attempts: 1})
	stubs[1].fn = func(ctx context.Context) Result {
		cancel()
		<-ctx.Done()
		// What a strategy reports after its requests were cut.
		return Result{Method: MethodEnhanced, Exists: true, DebugInfo: map[string]any{"code": "ECANCELED"}}
	}
	v := newStubValidator(stubs, nil)

	res := v.Validate(ctx, "https://example.com")
	if res.Method != MethodStealth || !res.Exists || res.Accessible {
		t.Fatalf("result = %+v", res)
	}
	if res.DebugInfo["aborted"] == nil {
		t.Fatalf("missing aborted flag: %+v", res.DebugInfo)
	}
	if stubs[2].calls.Load() != 0 || stubs[3].calls.Load() != 0 {
		t.Fatal("strategies ran after abort")
	}
}

func TestValidate_ConfigDeadline(t *testing.T) {
	stubs := cascade()
	stubs[0].fn = func(ctx context.Context) Result {
		<-ctx.Done()
		return Result{Method: MethodStealth}
	}
	v := newStubValidator(stubs, &Config{Deadline: 20 * time.Millisecond})

	start := time.Now()
	res := v.Validate(context.Background(), "https://example.com")
	if time.Since(start) > 2*time.Second {
		t.Fatal("deadline not honoured")
	}
	if res.Exists || res.DebugInfo["aborted"] == nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestValidate_GuardRejectsEntry(t *testing.T) {
	// WHAT: a URL refused by the guard runs no strategy at all.
	stubs := cascade(Result{Exists: true, Accessible: true})
	v := newStubValidator(stubs, nil, WithURLGuard(rejectContaining("169.254.169.254")))

	res := v.Validate(context.Background(), "http://169.254.169.254/latest/meta-data")
	if res.Exists || res.Accessible || res.DebugInfo["code"] != classify.CodeRejected {
		t.Fatalf("result = %+v", res)
	}
	for _, s := range stubs {
		if s.calls.Load() != 0 {
			t.Fatalf("%s ran for a rejected URL", s.method)
		}
	}
	if err := v.Admit(context.Background(), "http://169.254.169.254/"); !errors.Is(err, errPrivateTarget) {
		t.Fatalf("Admit = %v", err)
	}
}

func TestValidate_ConcurrentCalls(t *testing.T) {
	// WHAT: one Validator serves parallel calls without mixing results.
	// WHY: the route layer shares a single Validator across requests.
	mux := http.NewServeMux()
	mux.HandleFunc("/start/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final/"+r.PathValue("id"), http.StatusFound)
	})
	mux.HandleFunc("/final/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	v := New(nil, quietLogger(), WithSleeper(timing.NoSleep))

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := strconv.Itoa(i)
			res := v.Validate(context.Background(), srv.URL+"/start/"+id)
			if !res.Accessible || res.Metadata == nil || res.Metadata.RedirectURL != srv.URL+"/final/"+id {
				errs <- fmt.Sprintf("call %d: result = %+v metadata = %+v", i, res, res.Metadata)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestScenarioA_NonexistentDomain(t *testing.T) {
	notFound := &net.DNSError{Err: "no such host", Name: "nonexistent-domain-xyz123.test", IsNotFound: true}
	var dials atomic.Int32
	v := New(nil, quietLogger(),
		WithSleeper(timing.NoSleep),
		WithResolver(stubResolver{err: notFound}),
		WithDialContext(func(context.Context, string, string) (net.Conn, error) {
			dials.Add(1)
			return nil, notFound
		}),
	)

	res := v.Validate(context.Background(), "https://nonexistent-domain-xyz123.test")
	if res.Exists || res.Accessible || res.Method != MethodDNS || res.Attempts != 4 {
		t.Fatalf("result = %+v", res)
	}
	// stealth 1 + enhanced 1 (short-circuits on ENOTFOUND) + behavioral 1
	if n := dials.Load(); n != 3 {
		t.Fatalf("dials = %d, want 3", n)
	}
}

func TestScenarioB_StealthSuccess(t *testing.T) {
	var heads atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<title>Example</title>")
	}))
	defer srv.Close()

	addr := srv.Listener.Addr().String()
	v := New(&Config{InsecureSkipVerify: true}, quietLogger(),
		WithSleeper(timing.NoSleep),
		WithDialContext(func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		}),
	)

	res := v.Validate(context.Background(), "https://example.com")
	if !res.Exists || !res.Accessible || res.Method != MethodStealth {
		t.Fatalf("result = %+v", res)
	}
	if res.Metadata == nil || res.Metadata.StatusCode != 200 {
		t.Fatalf("metadata = %+v", res.Metadata)
	}
	if heads.Load() != 1 {
		t.Fatalf("HEAD requests = %d", heads.Load())
	}
}

func TestScenarioC_OnlyDNS(t *testing.T) {
	v := New(nil, quietLogger(),
		WithSleeper(timing.NoSleep),
		WithResolver(stubResolver{addrs: []string{"93.184.216.34"}}),
		WithDialContext(failDial(context.DeadlineExceeded)),
	)

	res := v.Validate(context.Background(), "https://blocked.example.com")
	if !res.Exists || res.Accessible || res.Method != MethodDNS {
		t.Fatalf("result = %+v", res)
	}
	note, _ := res.DebugInfo["note"].(string)
	if !strings.Contains(note, "blocked") {
		t.Fatalf("note = %q", note)
	}
}
