package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gigaelk/worrybox/internal/core/config"
	"github.com/gigaelk/worrybox/internal/core/domain"
	"github.com/gigaelk/worrybox/internal/dbrecovery"
	"github.com/gigaelk/worrybox/internal/recovery"
)

func newTestServer(t *testing.T, mutate func(cfg *config.AppConfig)) (*Server, *recovery.Service) {
	t.Helper()

	cfg := &config.AppConfig{
		Env:      "development",
		Recovery: recovery.DefaultConfig(),
		Database: dbrecovery.DefaultConfig(),
		Timeouts: config.TimeoutConfig{Default: 5 * time.Second},
	}
	cfg.Server.Port = 0
	if mutate != nil {
		mutate(cfg)
	}

	rec := recovery.New(cfg.Recovery, nil)
	dbrec := dbrecovery.New(cfg.Database)
	return New(rec, dbrec, nil, cfg), rec
}

func decodeEnvelope(t *testing.T, body string) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		t.Fatalf("invalid envelope %q: %v", body, err)
	}
	return env
}

func TestCorrelationID_Echoed(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/diagnostics/metrics", nil)
	req.Header.Set("X-Correlation-ID", "client-supplied-id")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Correlation-ID"); got != "client-supplied-id" {
		t.Errorf("correlation header = %q, want client-supplied-id", got)
	}
}

func TestCorrelationID_GeneratedWhenAbsent(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/diagnostics/metrics", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected a generated correlation ID header")
	}
}

func TestCorrelationID_OverlongReplaced(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/diagnostics/metrics", nil)
	req.Header.Set("X-Correlation-ID", strings.Repeat("x", 200))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	got := rr.Header().Get("X-Correlation-ID")
	if got == "" || len(got) > maxCorrelationIDLength {
		t.Errorf("overlong client ID must be replaced, got %q", got)
	}
}

func TestBodyCapture_SanitizedIntoRequestMeta(t *testing.T) {
	var meta domain.RequestMeta
	var rawBody string
	h := bodyCaptureMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rawBody = string(data)
		meta = metaFrom(r)
	}))

	payload := `{"worry":"rent","password":"hunter2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/worries", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rawBody != payload {
		t.Errorf("handler read %q, body must be restored intact", rawBody)
	}
	if meta.Body == nil {
		t.Fatal("expected a captured request body")
	}
	if meta.Body["worry"] != "rent" {
		t.Errorf("worry = %v, want rent", meta.Body["worry"])
	}
	if meta.Body["password"] != "[REDACTED]" {
		t.Errorf("password = %v, must be redacted", meta.Body["password"])
	}
}

func TestBodyCapture_SkipsNonJSONAndGET(t *testing.T) {
	var meta domain.RequestMeta
	h := bodyCaptureMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta = metaFrom(r)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/worries", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if meta.Body != nil {
		t.Errorf("non-JSON body must not be captured, got %v", meta.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/worries", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if meta.Body != nil {
		t.Errorf("GET must not capture a body, got %v", meta.Body)
	}
}

func TestErrorEnvelope_Development(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/diagnostics/test-error?kind=validation", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	env := decodeEnvelope(t, rr.Body.String())
	if env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q, want VALIDATION_ERROR", env.Error.Code)
	}
	if !strings.Contains(env.Error.Message, "worry is required") {
		t.Errorf("development message must carry raw detail, got %q", env.Error.Message)
	}
	if env.Error.Stack == "" {
		t.Error("development envelope must include a stack")
	}
	if env.Error.CorrelationID == "" {
		t.Error("envelope must carry a correlation ID")
	}
	if env.Error.Recoverable || env.Error.Retryable {
		t.Error("validation errors are neither recoverable nor retryable")
	}
}

func TestErrorEnvelope_ProductionHidesDetail(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.Env = "production"
	})

	req := httptest.NewRequest(http.MethodPost, "/diagnostics/test-error?kind=validation", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	env := decodeEnvelope(t, rr.Body.String())
	if env.Error.Message != "The request contains invalid data." {
		t.Errorf("production message = %q, want generic text", env.Error.Message)
	}
	if strings.Contains(env.Error.Message, "worry") {
		t.Error("production message leaked raw detail")
	}
	if env.Error.Stack != "" {
		t.Error("production envelope must not include a stack")
	}
}

func TestDegradedResponse_ServedWithOK(t *testing.T) {
	srv, rec := newTestServer(t, nil)
	rec.RegisterStrategy(recovery.NewReadOnlyModeStrategy())

	req := httptest.NewRequest(http.MethodPost, "/diagnostics/test-error?kind=database", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for degraded response", rr.Code)
	}
	var resp recovery.DegradedResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid degraded payload: %v", err)
	}
	if !resp.Degraded || resp.Source != "read_only_mode" {
		t.Errorf("unexpected degraded payload %+v", resp)
	}
}

func TestBreaker_OpensAfterRepeatedFailures(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/diagnostics/test-error?kind=database", nil)
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, req)
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("request %d: status = %d, want 503", i, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/diagnostics/test-error?kind=database", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	env := decodeEnvelope(t, rr.Body.String())
	if env.Error.Code != "CIRCUIT_BREAKER_OPEN" {
		t.Errorf("code = %q, want CIRCUIT_BREAKER_OPEN", env.Error.Code)
	}
	if env.Error.RetryAfter == "" {
		t.Error("breaker rejection must carry retryAfter")
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("breaker rejection must set the Retry-After header")
	}
}

func TestTimeout_Returns408Once(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.Timeouts.PerRoute = map[string]time.Duration{
			"/diagnostics/test-error": 50 * time.Millisecond,
		}
	})

	req := httptest.NewRequest(http.MethodPost, "/diagnostics/test-error?kind=timeout", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestTimeout {
		t.Fatalf("status = %d, want 408", rr.Code)
	}
	env := decodeEnvelope(t, rr.Body.String())
	if env.Error.Code != "REQUEST_TIMEOUT" {
		t.Errorf("code = %q, want REQUEST_TIMEOUT", env.Error.Code)
	}
	if env.Error.Timeout != "50ms" {
		t.Errorf("timeout = %q, want 50ms", env.Error.Timeout)
	}

	// Give the late handler resolution time to attempt a second write; the
	// body must remain a single envelope.
	time.Sleep(50 * time.Millisecond)
	if got := strings.Count(rr.Body.String(), "\"error\""); got != 1 {
		t.Errorf("expected exactly one error object in body, found %d: %s", got, rr.Body.String())
	}
}

func TestTimeoutResolution_MethodUsedWhenNoRoute(t *testing.T) {
	cfg := config.TimeoutConfig{
		Default:   30 * time.Second,
		PerMethod: map[string]time.Duration{"POST": 10 * time.Second},
		PerRoute:  map[string]time.Duration{"/api/export": time.Minute},
	}

	if got := cfg.Resolve("POST", "/api/export"); got != time.Minute {
		t.Errorf("route timeout = %s, want 1m", got)
	}
	if got := cfg.Resolve("POST", "/api/worries"); got != 10*time.Second {
		t.Errorf("method timeout = %s, want 10s", got)
	}
	if got := cfg.Resolve("GET", "/api/worries"); got != 30*time.Second {
		t.Errorf("default timeout = %s, want 30s", got)
	}
}

func TestTimeoutWriter_SuppressesLateWrites(t *testing.T) {
	rr := httptest.NewRecorder()
	tw := &timeoutWriter{ResponseWriter: rr}

	if !tw.markTimedOut() {
		t.Fatal("first markTimedOut must succeed")
	}
	if tw.markTimedOut() {
		t.Error("second markTimedOut must fail")
	}

	tw.WriteHeader(http.StatusOK)
	if _, err := tw.Write([]byte("late")); err != nil {
		t.Fatalf("suppressed write errored: %v", err)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("late write leaked to the client: %q", rr.Body.String())
	}
}

func TestTimeoutWriter_NoTimeoutAfterResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	tw := &timeoutWriter{ResponseWriter: rr}

	tw.WriteHeader(http.StatusOK)
	if tw.markTimedOut() {
		t.Error("markTimedOut must fail once the handler has responded")
	}
}

func TestHealth_CriticalWithoutDatabase(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "critical" {
		t.Errorf("status = %q, want critical", body["status"])
	}
}

func TestSanitizeBody_RedactsSensitiveFields(t *testing.T) {
	in := map[string]any{
		"worry":    "everything",
		"password": "hunter2",
		"Token":    "abc",
		"profile": map[string]any{
			"apiKey": "xyz",
			"name":   "gina",
		},
	}

	out := SanitizeBody(in)

	if out["worry"] != "everything" {
		t.Error("non-sensitive field must pass through")
	}
	if out["password"] != "[REDACTED]" || out["Token"] != "[REDACTED]" {
		t.Errorf("top-level secrets not redacted: %+v", out)
	}
	nested := out["profile"].(map[string]any)
	if nested["apiKey"] != "[REDACTED]" {
		t.Error("nested secret not redacted")
	}
	if nested["name"] != "gina" {
		t.Error("nested non-sensitive field must pass through")
	}
	if in["password"] != "hunter2" {
		t.Error("input map must not be mutated")
	}
}

type fakeResponseCache struct {
	saved chan savedFallback
}

type savedFallback struct {
	path string
	body string
}

func (f *fakeResponseCache) PutFallback(_ context.Context, path string, body []byte, _ time.Duration) error {
	f.saved <- savedFallback{path: path, body: string(body)}
	return nil
}

func TestFallbackCapture_SavesGoodGETResponses(t *testing.T) {
	cache := &fakeResponseCache{saved: make(chan savedFallback, 1)}
	s := &Server{fallback: cache}

	h := s.fallbackCaptureMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"worries":[1,2]}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/worries", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	select {
	case got := <-cache.saved:
		if got.path != "/api/worries" || got.body != `{"worries":[1,2]}` {
			t.Errorf("captured %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("response was not captured")
	}
}

func TestFallbackCapture_SkipsFailuresAndOperationalPaths(t *testing.T) {
	cache := &fakeResponseCache{saved: make(chan savedFallback, 1)}
	s := &Server{fallback: cache}

	fail := s.fallbackCaptureMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	rr := httptest.NewRecorder()
	fail.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/worries", nil))

	ok := s.fallbackCaptureMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	rr = httptest.NewRecorder()
	ok.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	select {
	case got := <-cache.saved:
		t.Fatalf("unexpected capture %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAlertEndpoints_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/diagnostics/alerts/nope/acknowledge", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}
