package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gigaelk/worrybox/internal/core/domain"
)

// DegradedResponse is the payload served instead of a hard failure. The
// HTTP layer serializes it with a 200 status and degraded set to true.
type DegradedResponse struct {
	Degraded bool            `json:"degraded"`
	Source   string          `json:"source"`
	ReadOnly bool            `json:"read_only,omitempty"`
	Message  string          `json:"message,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// CacheFallbackStrategy serves the last good response for the request path
// from the fallback store.
type CacheFallbackStrategy struct {
	store FallbackStore
}

// NewCacheFallbackStrategy creates the cache fallback strategy. A nil
// store disables it.
func NewCacheFallbackStrategy(store FallbackStore) *CacheFallbackStrategy {
	return &CacheFallbackStrategy{store: store}
}

func (d *CacheFallbackStrategy) Name() string  { return "cache_fallback" }
func (d *CacheFallbackStrategy) Priority() int { return 30 }

func (d *CacheFallbackStrategy) Condition(_ *domain.EnhancedError, ectx *domain.ErrorContext) bool {
	return d.store != nil && ectx.Request.Method == http.MethodGet && ectx.Request.Path != ""
}

func (d *CacheFallbackStrategy) Action(ctx context.Context, _ *domain.EnhancedError, ectx *domain.ErrorContext) (any, error) {
	body, found, err := d.store.GetFallback(ctx, ectx.Request.Path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New("no cached fallback available")
	}
	return &DegradedResponse{
		Degraded: true,
		Source:   d.Name(),
		Data:     json.RawMessage(body),
	}, nil
}

// ReadOnlyModeStrategy signals that the service should serve reads only
// while the database is unhealthy.
type ReadOnlyModeStrategy struct{}

// NewReadOnlyModeStrategy creates the read-only-mode strategy.
func NewReadOnlyModeStrategy() *ReadOnlyModeStrategy {
	return &ReadOnlyModeStrategy{}
}

func (d *ReadOnlyModeStrategy) Name() string  { return "read_only_mode" }
func (d *ReadOnlyModeStrategy) Priority() int { return 20 }

func (d *ReadOnlyModeStrategy) Condition(err *domain.EnhancedError, _ *domain.ErrorContext) bool {
	return err.Category == domain.CategoryDatabase
}

func (d *ReadOnlyModeStrategy) Action(_ context.Context, _ *domain.EnhancedError, _ *domain.ErrorContext) (any, error) {
	return &DegradedResponse{
		Degraded: true,
		Source:   d.Name(),
		ReadOnly: true,
		Message:  "service is temporarily read-only",
	}, nil
}

// SimplifiedResponseStrategy is the last resort: a minimal degraded
// payload for any recoverable error.
type SimplifiedResponseStrategy struct{}

// NewSimplifiedResponseStrategy creates the simplified-response strategy.
func NewSimplifiedResponseStrategy() *SimplifiedResponseStrategy {
	return &SimplifiedResponseStrategy{}
}

func (d *SimplifiedResponseStrategy) Name() string  { return "simplified_response" }
func (d *SimplifiedResponseStrategy) Priority() int { return 10 }

func (d *SimplifiedResponseStrategy) Condition(err *domain.EnhancedError, _ *domain.ErrorContext) bool {
	return err.Recoverable
}

func (d *SimplifiedResponseStrategy) Action(_ context.Context, _ *domain.EnhancedError, _ *domain.ErrorContext) (any, error) {
	return &DegradedResponse{
		Degraded: true,
		Source:   d.Name(),
		Message:  "partial content due to a temporary issue",
	}, nil
}
