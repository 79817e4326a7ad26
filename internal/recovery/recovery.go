// Package recovery implements the central error handling service: error
// classification, handler-based recovery, per-endpoint circuit breakers,
// graceful degradation and operator alerts.
package recovery

import (
	"context"

	"github.com/gigaelk/worrybox/internal/core/domain"
)

// Handler attempts in-process recovery for a class of errors.
type Handler interface {
	// Name identifies the handler in recovery action reasons.
	Name() string

	// Priority orders dispatch, highest first. Ties keep registration order.
	Priority() int

	// CanHandle reports whether this handler applies to the error.
	CanHandle(err *domain.EnhancedError, ectx *domain.ErrorContext) bool

	// Handle attempts recovery. A nil return means the error was recovered.
	Handle(ctx context.Context, err *domain.EnhancedError, ectx *domain.ErrorContext) error
}

// DegradationStrategy produces a reduced-functionality response instead of
// a hard failure.
type DegradationStrategy interface {
	Name() string
	Priority() int

	// Condition reports whether the strategy applies.
	Condition(err *domain.EnhancedError, ectx *domain.ErrorContext) bool

	// Action produces the degraded result.
	Action(ctx context.Context, err *domain.EnhancedError, ectx *domain.ErrorContext) (any, error)
}

// Archiver persists handled errors out of band. Implementations must be
// best-effort; failures are logged and never propagate.
type Archiver interface {
	Archive(ctx context.Context, err *domain.EnhancedError, ectx *domain.ErrorContext) error
}

// DatabaseRecoverer is the slice of the database recovery service the
// default database handler needs.
type DatabaseRecoverer interface {
	ForceRecovery(ctx context.Context) bool
}

// FallbackStore is the slice of the cache client the cache-fallback
// degradation strategy needs.
type FallbackStore interface {
	GetFallback(ctx context.Context, path string) (body []byte, found bool, err error)
}
