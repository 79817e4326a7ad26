package recovery

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/gigaelk/worrybox/internal/core/domain"
)

// DatabaseHandler recovers database errors by forcing a reconnect through
// the database recovery service.
type DatabaseHandler struct {
	db DatabaseRecoverer
}

// NewDatabaseHandler creates the default database recovery handler.
func NewDatabaseHandler(db DatabaseRecoverer) *DatabaseHandler {
	return &DatabaseHandler{db: db}
}

func (h *DatabaseHandler) Name() string  { return "database_reconnect" }
func (h *DatabaseHandler) Priority() int { return 100 }

func (h *DatabaseHandler) CanHandle(err *domain.EnhancedError, _ *domain.ErrorContext) bool {
	return h.db != nil && err.Category == domain.CategoryDatabase
}

func (h *DatabaseHandler) Handle(ctx context.Context, _ *domain.EnhancedError, _ *domain.ErrorContext) error {
	if h.db.ForceRecovery(ctx) {
		return nil
	}
	return errors.New("database reconnect failed")
}

// MemoryHandler responds to memory pressure errors by forcing a collection
// and returning freed pages to the OS.
type MemoryHandler struct{}

// NewMemoryHandler creates the default memory pressure handler.
func NewMemoryHandler() *MemoryHandler {
	return &MemoryHandler{}
}

func (h *MemoryHandler) Name() string  { return "memory_release" }
func (h *MemoryHandler) Priority() int { return 90 }

func (h *MemoryHandler) CanHandle(err *domain.EnhancedError, _ *domain.ErrorContext) bool {
	if err.Category != domain.CategorySystem {
		return false
	}
	msg := strings.ToLower(err.Err.Error())
	return strings.Contains(msg, "memory") || strings.Contains(msg, "heap") ||
		strings.Contains(msg, "allocation failed")
}

func (h *MemoryHandler) Handle(_ context.Context, _ *domain.EnhancedError, _ *domain.ErrorContext) error {
	runtime.GC()
	debug.FreeOSMemory()
	return nil
}

// Prober verifies network connectivity. The default handler has no probe
// and reports failure, leaving the caller to retry upstream.
type Prober func(ctx context.Context) error

// NetworkHandler recovers network errors by probing connectivity.
type NetworkHandler struct {
	probe Prober
}

// NewNetworkHandler creates the default network handler. probe may be nil.
func NewNetworkHandler(probe Prober) *NetworkHandler {
	return &NetworkHandler{probe: probe}
}

func (h *NetworkHandler) Name() string  { return "network_probe" }
func (h *NetworkHandler) Priority() int { return 80 }

func (h *NetworkHandler) CanHandle(err *domain.EnhancedError, _ *domain.ErrorContext) bool {
	return err.Category == domain.CategoryNetwork || err.Category == domain.CategoryExternalAPI
}

func (h *NetworkHandler) Handle(ctx context.Context, _ *domain.EnhancedError, _ *domain.ErrorContext) error {
	if h.probe == nil {
		return errors.New("no connectivity probe configured")
	}
	return h.probe(ctx)
}
