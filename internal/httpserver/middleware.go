package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gigaelk/worrybox/internal/core/domain"
	"github.com/gigaelk/worrybox/internal/metrics"
)

type ctxKey int

const (
	correlationKey ctxKey = iota
	bodyKey
)

// CorrelationFrom returns the correlation ID attached to the request
// context, or empty.
func CorrelationFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// maxCorrelationIDLength bounds client-supplied correlation IDs; anything
// longer is replaced rather than carried into logs and the archive.
const maxCorrelationIDLength = 128

// correlationMiddleware assigns every request a correlation ID, honoring
// one supplied by the caller, and echoes it in the response header.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" || len(id) > maxCorrelationIDLength {
			id = uuid.New().String()
		}
		w.Header().Set("X-Correlation-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey, id)))
	})
}

// sensitiveHeaders are never captured into error contexts.
var sensitiveHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"set-cookie":    {},
	"x-api-key":     {},
}

// sensitiveFields are redacted from captured request bodies.
var sensitiveFields = []string{"password", "token", "secret", "authorization", "apikey"}

// SanitizeBody returns a copy of body with sensitive fields redacted.
// Nested maps are sanitized recursively.
func SanitizeBody(body map[string]any) map[string]any {
	if body == nil {
		return nil
	}
	out := make(map[string]any, len(body))
	for k, v := range body {
		lower := strings.ToLower(k)
		redacted := false
		for _, field := range sensitiveFields {
			if strings.Contains(lower, field) {
				out[k] = "[REDACTED]"
				redacted = true
				break
			}
		}
		if redacted {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = SanitizeBody(nested)
		} else {
			out[k] = v
		}
	}
	return out
}

// maxCapturedRequestBody bounds how much of a request body is retained for
// error contexts.
const maxCapturedRequestBody = 64 << 10

// bodyCaptureMiddleware retains a sanitized copy of JSON bodies on mutating
// requests so error contexts can carry them. The body is restored for the
// handler; oversized or non-JSON bodies pass through uncaptured.
func bodyCaptureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !capturableBody(r) {
			next.ServeHTTP(w, r)
			return
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, maxCapturedRequestBody+1))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(data))

		if len(data) <= maxCapturedRequestBody {
			var body map[string]any
			if json.Unmarshal(data, &body) == nil {
				r = r.WithContext(context.WithValue(r.Context(), bodyKey, SanitizeBody(body)))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func capturableBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	return strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

func capturedBody(ctx context.Context) map[string]any {
	body, _ := ctx.Value(bodyKey).(map[string]any)
	return body
}

// metaFrom captures sanitized request metadata for error contexts.
func metaFrom(r *http.Request) domain.RequestMeta {
	headers := make(map[string]string)
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if _, sensitive := sensitiveHeaders[lower]; sensitive {
			continue
		}
		if len(values) > 0 {
			headers[lower] = values[0]
		}
	}
	headers["x-correlation-id"] = CorrelationFrom(r.Context())

	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}

	return domain.RequestMeta{
		Path:    r.URL.Path,
		Method:  r.Method,
		UserID:  r.Header.Get("X-User-ID"),
		IP:      ip,
		Headers: headers,
		Body:    capturedBody(r.Context()),
	}
}

// ResponseCache stores the last good response per path for the
// cache_fallback degradation strategy.
type ResponseCache interface {
	PutFallback(ctx context.Context, path string, body []byte, ttl time.Duration) error
}

// captureWriter tees the response body up to a size cap.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
	capped bool
}

func (cw *captureWriter) WriteHeader(status int) {
	if cw.status == 0 {
		cw.status = status
	}
	cw.ResponseWriter.WriteHeader(status)
}

func (cw *captureWriter) Write(p []byte) (int, error) {
	if cw.status == 0 {
		cw.status = http.StatusOK
	}
	if !cw.capped {
		if cw.body.Len()+len(p) > maxCapturedBody {
			cw.capped = true
			cw.body.Reset()
		} else {
			cw.body.Write(p)
		}
	}
	return cw.ResponseWriter.Write(p)
}

const maxCapturedBody = 1 << 20

// fallbackCaptureMiddleware saves successful GET responses so the
// cache_fallback strategy has something to serve during an outage.
// Operational surfaces are skipped; stale health output is worse than none.
func (s *Server) fallbackCaptureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.fallback == nil || r.Method != http.MethodGet || skipCapture(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cw := &captureWriter{ResponseWriter: w}
		next.ServeHTTP(cw, r)

		if cw.status != http.StatusOK || cw.capped || cw.body.Len() == 0 {
			return
		}
		body := append([]byte(nil), cw.body.Bytes()...)
		path := r.URL.Path
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.fallback.PutFallback(ctx, path, body, time.Hour); err != nil {
				slog.Debug("Fallback capture failed", "path", path, "error", err)
			}
		}()
	})
}

func skipCapture(path string) bool {
	return path == "/health" || path == "/metrics" ||
		strings.HasPrefix(path, "/health/") || strings.HasPrefix(path, "/diagnostics")
}

// timeoutWriter suppresses handler writes once the request has timed out,
// so a late handler resolution never produces a second response.
type timeoutWriter struct {
	http.ResponseWriter
	mu       sync.Mutex
	timedOut bool
	wrote    bool
}

func (tw *timeoutWriter) WriteHeader(status int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return
	}
	tw.wrote = true
	tw.ResponseWriter.WriteHeader(status)
}

func (tw *timeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return len(p), nil
	}
	tw.wrote = true
	return tw.ResponseWriter.Write(p)
}

// markTimedOut flags the writer; it reports whether the 408 may still be
// written (the handler has not responded yet).
func (tw *timeoutWriter) markTimedOut() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.wrote || tw.timedOut {
		return false
	}
	tw.timedOut = true
	return true
}

// timeoutMiddleware aborts requests that exceed their resolved deadline
// with a 408. Handlers that ignore the context keep running; their result
// is discarded.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := s.timeouts.Resolve(r.Method, r.URL.Path)
		if d <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()

		correlationID := CorrelationFrom(r.Context())
		deregister := s.recovery.RegisterTimeout(correlationID, cancel)
		defer deregister()

		tw := &timeoutWriter{ResponseWriter: w}
		done := make(chan struct{})
		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					if tw.markTimedOut() {
						s.handlePanic(tw.ResponseWriter, r, rec)
					}
				}
				close(done)
			}()
			next.ServeHTTP(tw, r.WithContext(ctx))
		}()

		select {
		case <-done:
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded && tw.markTimedOut() {
				metrics.RequestTimeoutsTotal.WithLabelValues(r.URL.Path).Inc()
				writeTimeout(w, correlationID, d)
			}
		}
	})
}

// handlePanic routes a recovered panic through the error pipeline.
func (s *Server) handlePanic(w http.ResponseWriter, r *http.Request, rec any) {
	err := fmt.Errorf("panic: %v", rec)
	ectx := s.recovery.NewErrorContext(metaFrom(r), nil)
	enhanced, actions := s.recovery.Handle(r.Context(), err, ectx)
	writeError(w, s.production, enhanced, actions)
}
