package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gigaelk/worrybox/internal/core/domain"
	"github.com/gigaelk/worrybox/internal/metrics"
	"github.com/gigaelk/worrybox/internal/resilience/breaker"
	"github.com/gigaelk/worrybox/internal/resilience/retry"
)

// Config controls the error handling service.
type Config struct {
	DisableBreaker bool           `yaml:"disable_breaker"`
	Breaker        breaker.Config `yaml:"breaker"`
	Retry          retry.Policy   `yaml:"retry"`

	RecentErrorsCap int `yaml:"recent_errors_cap"`
	ActionsCap      int `yaml:"actions_cap"`
	AlertsCap       int `yaml:"alerts_cap"`

	// An alert fires when more than ErrorRateThreshold errors arrive
	// within ErrorRateWindow.
	ErrorRateThreshold int           `yaml:"error_rate_threshold"`
	ErrorRateWindow    time.Duration `yaml:"error_rate_window"`

	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// DefaultConfig mirrors the service defaults.
func DefaultConfig() Config {
	return Config{
		Breaker:            breaker.DefaultConfig,
		Retry:              retry.DefaultPolicy,
		RecentErrorsCap:    500,
		ActionsCap:         1000,
		AlertsCap:          100,
		ErrorRateThreshold: 10,
		ErrorRateWindow:    5 * time.Minute,
		MetricsInterval:    60 * time.Second,
	}
}

// ErrorRecord is one entry of the recent-errors history.
type ErrorRecord struct {
	CorrelationID string                  `json:"correlation_id"`
	Code          string                  `json:"code"`
	Category      domain.ErrorCategory    `json:"category"`
	Severity      domain.Severity         `json:"severity"`
	Message       string                  `json:"message"`
	Path          string                  `json:"path"`
	Method        string                  `json:"method"`
	Timestamp     time.Time               `json:"timestamp"`
	Actions       []domain.RecoveryAction `json:"actions"`
}

// ErrorMetrics is the aggregate view exposed to diagnostics.
type ErrorMetrics struct {
	TotalErrors int64                          `json:"total_errors"`
	ByCategory  map[domain.ErrorCategory]int64 `json:"by_category"`
	BySeverity  map[domain.Severity]int64      `json:"by_severity"`
	ByEndpoint  map[string]int64               `json:"by_endpoint"`
	WindowCount int                            `json:"window_count"`
	LastError   time.Time                      `json:"last_error,omitempty"`
}

type registered[T any] struct {
	value    T
	priority int
	order    int
}

// Service is the error handling service. Construct with New, wire into the
// application, and drive its lifecycle with Start/Stop.
type Service struct {
	cfg        Config
	classifier Classifier
	breakers   *breaker.Registry
	archiver   Archiver

	mu         sync.Mutex
	handlers   []registered[Handler]
	strategies []registered[DegradationStrategy]
	nextOrder  int

	recent    []ErrorRecord
	actions   []domain.RecoveryAction
	alerts    []*domain.Alert
	errTimes  []time.Time
	lastRate  time.Time
	aggregate ErrorMetrics

	activeTimeouts map[string]context.CancelFunc

	startedAt time.Time
	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an error handling service. The archiver may be nil.
func New(cfg Config, archiver Archiver) *Service {
	if cfg.RecentErrorsCap <= 0 {
		cfg.RecentErrorsCap = 500
	}
	if cfg.ActionsCap <= 0 {
		cfg.ActionsCap = 1000
	}
	if cfg.AlertsCap <= 0 {
		cfg.AlertsCap = 100
	}
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = 10
	}
	if cfg.ErrorRateWindow <= 0 {
		cfg.ErrorRateWindow = 5 * time.Minute
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = 60 * time.Second
	}

	return &Service{
		cfg:      cfg,
		breakers: breaker.NewRegistry(cfg.Breaker),
		archiver: archiver,
		aggregate: ErrorMetrics{
			ByCategory: make(map[domain.ErrorCategory]int64),
			BySeverity: make(map[domain.Severity]int64),
			ByEndpoint: make(map[string]int64),
		},
		activeTimeouts: make(map[string]context.CancelFunc),
		startedAt:      time.Now(),
		done:           make(chan struct{}),
	}
}

// Start registers the default handlers and degradation strategies and
// starts the periodic sweep. Safe to call more than once; later calls are
// no-ops.
func (s *Service) Start(ctx context.Context, db DatabaseRecoverer, store FallbackStore) {
	s.startOnce.Do(func() {
		s.RegisterHandler(NewDatabaseHandler(db))
		s.RegisterHandler(NewMemoryHandler())
		s.RegisterHandler(NewNetworkHandler(nil))
		s.RegisterStrategy(NewCacheFallbackStrategy(store))
		s.RegisterStrategy(NewReadOnlyModeStrategy())
		s.RegisterStrategy(NewSimplifiedResponseStrategy())

		sweepCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		go s.sweepLoop(sweepCtx)

		slog.Info("Error recovery service started",
			"breaker_enabled", !s.cfg.DisableBreaker,
			"failure_threshold", s.cfg.Breaker.FailureThreshold)
	})
}

// Stop stops background work, cancels active request timeouts and clears
// all registries. Callers must drain in-flight error handling first.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		for _, cancel := range s.activeTimeouts {
			cancel()
		}
		s.activeTimeouts = make(map[string]context.CancelFunc)
		s.handlers = nil
		s.strategies = nil
		s.breakers.Clear()
	})
}

func (s *Service) sweepLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep prunes the error-rate window and logs an aggregate summary.
func (s *Service) sweep() {
	s.mu.Lock()
	s.pruneRateWindowLocked(time.Now())
	total := s.aggregate.TotalErrors
	window := len(s.errTimes)
	s.mu.Unlock()

	slog.Debug("Error metrics", "total", total, "window_count", window)
}

func (s *Service) pruneRateWindowLocked(now time.Time) {
	cutoff := now.Add(-s.cfg.ErrorRateWindow)
	kept := s.errTimes[:0]
	for _, t := range s.errTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.errTimes = kept
	s.aggregate.WindowCount = len(kept)
}

// RegisterHandler adds a recovery handler. Dispatch order is descending
// priority, ties broken by registration order.
func (s *Service) RegisterHandler(h Handler) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers = append(s.handlers, registered[Handler]{value: h, priority: h.Priority(), order: s.nextOrder})
	s.nextOrder++
	sortRegistered(s.handlers)
}

// RegisterStrategy adds a graceful degradation strategy.
func (s *Service) RegisterStrategy(d DegradationStrategy) {
	if d == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.strategies = append(s.strategies, registered[DegradationStrategy]{value: d, priority: d.Priority(), order: s.nextOrder})
	s.nextOrder++
	sortRegistered(s.strategies)
}

func sortRegistered[T any](items []registered[T]) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].priority != items[j].priority {
			return items[i].priority > items[j].priority
		}
		return items[i].order < items[j].order
	})
}

// NewErrorContext builds an immutable error context from request metadata
// plus a live system snapshot.
func (s *Service) NewErrorContext(meta domain.RequestMeta, extra map[string]any) *domain.ErrorContext {
	correlationID := ""
	if meta.Headers != nil {
		correlationID = meta.Headers["x-correlation-id"]
	}
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	return &domain.ErrorContext{
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
		Request:       meta,
		System:        domain.CaptureSystem(s.startedAt),
		Extra:         extra,
	}
}

// Handle classifies the error, updates breaker state for the endpoint, and
// runs recovery handlers until one succeeds. It returns the enhanced error
// and every recovery action attempted.
func (s *Service) Handle(ctx context.Context, err error, ectx *domain.ErrorContext) (*domain.EnhancedError, []domain.RecoveryAction) {
	if ectx == nil {
		ectx = s.NewErrorContext(domain.RequestMeta{}, nil)
	}

	enhanced := s.classifier.Classify(err, ectx.CorrelationID)
	s.recordError(enhanced, ectx)
	s.logError(enhanced, ectx)

	if s.archiver != nil {
		go func() {
			actx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if aerr := s.archiver.Archive(actx, enhanced, ectx); aerr != nil {
				slog.Debug("Error archive failed", "error", aerr)
			}
		}()
	}

	var actions []domain.RecoveryAction

	if !s.cfg.DisableBreaker && ectx.Request.Path != "" {
		b := s.breakers.Get(ectx.Request.Path)
		if berr := b.Allow(); berr != nil {
			action := domain.RecoveryAction{
				Type:      domain.ActionCircuitBreaker,
				Success:   false,
				Reason:    fmt.Sprintf("circuit breaker open for %s", ectx.Request.Path),
				Timestamp: time.Now(),
			}
			actions = append(actions, action)
			s.finishHandling(enhanced, ectx, actions)
			s.publishBreakerMetrics(ectx.Request.Path, b)
			return enhanced, actions
		}

		wasOpen := b.State() == breaker.StateHalfOpen
		b.RecordFailure()
		if b.State() == breaker.StateOpen && !wasOpen {
			metrics.BreakerTransitionsTotal.WithLabelValues(ectx.Request.Path).Inc()
		}
		defer s.publishBreakerMetrics(ectx.Request.Path, b)
	}

	actions = append(actions, s.dispatchHandlers(ctx, enhanced, ectx)...)

	if !s.cfg.DisableBreaker && ectx.Request.Path != "" && anySucceeded(actions) {
		s.breakers.Get(ectx.Request.Path).RecordSuccess()
	}

	s.finishHandling(enhanced, ectx, actions)
	return enhanced, actions
}

func (s *Service) dispatchHandlers(ctx context.Context, enhanced *domain.EnhancedError, ectx *domain.ErrorContext) []domain.RecoveryAction {
	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h.value)
	}
	s.mu.Unlock()

	var actions []domain.RecoveryAction
	for _, h := range handlers {
		if !h.CanHandle(enhanced, ectx) {
			continue
		}

		start := time.Now()
		herr := s.safeHandle(ctx, h, enhanced, ectx)
		action := domain.RecoveryAction{
			Type:      domain.ActionRetry,
			Success:   herr == nil,
			Duration:  time.Since(start),
			Reason:    h.Name(),
			Timestamp: time.Now(),
		}
		if herr != nil {
			action.Reason = fmt.Sprintf("%s: %v", h.Name(), herr)
		}
		actions = append(actions, action)
		metrics.RecoveryAttemptsTotal.WithLabelValues(string(action.Type), strconv.FormatBool(action.Success)).Inc()

		if herr == nil {
			break
		}
	}
	return actions
}

// safeHandle runs a handler, converting panics into errors so a broken
// handler never takes down error handling itself.
func (s *Service) safeHandle(ctx context.Context, h Handler, enhanced *domain.EnhancedError, ectx *domain.ErrorContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Name(), r)
		}
	}()
	return h.Handle(ctx, enhanced, ectx)
}

func (s *Service) publishBreakerMetrics(path string, b *breaker.Breaker) {
	var v float64
	switch b.State() {
	case breaker.StateHalfOpen:
		v = 1
	case breaker.StateOpen:
		v = 2
	}
	metrics.BreakerState.WithLabelValues(path).Set(v)
}

func anySucceeded(actions []domain.RecoveryAction) bool {
	for _, a := range actions {
		if a.Success {
			return true
		}
	}
	return false
}

func (s *Service) recordError(enhanced *domain.EnhancedError, ectx *domain.ErrorContext) {
	metrics.ErrorsTotal.WithLabelValues(string(enhanced.Category), string(enhanced.Severity)).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.aggregate.TotalErrors++
	s.aggregate.ByCategory[enhanced.Category]++
	s.aggregate.BySeverity[enhanced.Severity]++
	if ectx.Request.Path != "" {
		s.aggregate.ByEndpoint[ectx.Request.Path]++
	}
	s.aggregate.LastError = now
	s.errTimes = append(s.errTimes, now)
	s.pruneRateWindowLocked(now)
}

func (s *Service) logError(enhanced *domain.EnhancedError, ectx *domain.ErrorContext) {
	attrs := []any{
		"correlation_id", ectx.CorrelationID,
		"code", enhanced.Code,
		"category", enhanced.Category,
		"path", ectx.Request.Path,
		"error", enhanced.Err,
	}
	switch {
	case enhanced.Severity.AtLeast(domain.SeverityHigh):
		slog.Error("Error handled", attrs...)
	case enhanced.Severity.AtLeast(domain.SeverityMedium):
		slog.Warn("Error handled", attrs...)
	default:
		slog.Info("Error handled", attrs...)
	}
}

// finishHandling appends histories and evaluates alert rules.
func (s *Service) finishHandling(enhanced *domain.EnhancedError, ectx *domain.ErrorContext, actions []domain.RecoveryAction) {
	enhanced.Actions = actions

	s.mu.Lock()
	defer s.mu.Unlock()

	record := ErrorRecord{
		CorrelationID: ectx.CorrelationID,
		Code:          enhanced.Code,
		Category:      enhanced.Category,
		Severity:      enhanced.Severity,
		Message:       enhanced.Err.Error(),
		Path:          ectx.Request.Path,
		Method:        ectx.Request.Method,
		Timestamp:     time.Now(),
		Actions:       actions,
	}
	s.recent = append(s.recent, record)
	if len(s.recent) > s.cfg.RecentErrorsCap {
		s.recent = s.recent[len(s.recent)-s.cfg.RecentErrorsCap:]
	}

	s.actions = append(s.actions, actions...)
	if len(s.actions) > s.cfg.ActionsCap {
		s.actions = s.actions[len(s.actions)-s.cfg.ActionsCap:]
	}

	s.evaluateAlertsLocked(enhanced, ectx, actions)
}

func (s *Service) evaluateAlertsLocked(enhanced *domain.EnhancedError, ectx *domain.ErrorContext, actions []domain.RecoveryAction) {
	if enhanced.Severity.AtLeast(domain.SeverityCritical) {
		s.raiseAlertLocked(domain.AlertCritical, "critical_error",
			fmt.Sprintf("critical %s error: %v", enhanced.Category, enhanced.Err), ectx.CorrelationID)
	}

	if len(actions) > 0 && !anySucceeded(actions) {
		s.raiseAlertLocked(domain.AlertError, "recovery_failed",
			fmt.Sprintf("all %d recovery attempts failed for %s", len(actions), enhanced.Code), ectx.CorrelationID)
	}

	if len(s.errTimes) > s.cfg.ErrorRateThreshold {
		// Rate-limit to one alert per window.
		if time.Since(s.lastRate) > s.cfg.ErrorRateWindow {
			s.lastRate = time.Now()
			s.raiseAlertLocked(domain.AlertWarning, "error_rate",
				fmt.Sprintf("%d errors in the last %s", len(s.errTimes), s.cfg.ErrorRateWindow), ectx.CorrelationID)
		}
	}
}

func (s *Service) raiseAlertLocked(level domain.AlertLevel, alertType, message, correlationID string) {
	alert := &domain.Alert{
		ID:            uuid.New().String(),
		Level:         level,
		Type:          alertType,
		Message:       message,
		CorrelationID: correlationID,
		CreatedAt:     time.Now(),
	}
	s.alerts = append(s.alerts, alert)
	if len(s.alerts) > s.cfg.AlertsCap {
		s.alerts = s.alerts[len(s.alerts)-s.cfg.AlertsCap:]
	}
	metrics.AlertsTotal.WithLabelValues(string(level)).Inc()
	slog.Warn("Alert raised", "level", level, "type", alertType, "message", message)
}

// RetryOperation runs op with the service retry policy, recording every
// attempt as a recovery action. When all attempts fail the last error is
// returned wrapped with the accumulated action history.
func (s *Service) RetryOperation(ctx context.Context, op func(ctx context.Context) (any, error), ectx *domain.ErrorContext, policy *retry.Policy) (any, error) {
	if ectx == nil {
		ectx = s.NewErrorContext(domain.RequestMeta{}, nil)
	}
	p := s.cfg.Retry
	if policy != nil {
		p = *policy
	}

	var result any
	var attempts []domain.RecoveryAction

	err := retry.Do(ctx, func(ctx context.Context) error {
		v, oerr := op(ctx)
		if oerr == nil {
			result = v
		}
		return oerr
	}, p, func(a retry.Attempt) {
		action := domain.RecoveryAction{
			Type:      domain.ActionRetry,
			Success:   a.Err == nil,
			Duration:  a.Duration,
			Reason:    fmt.Sprintf("attempt %d", a.Number),
			Timestamp: time.Now(),
		}
		if a.Err != nil {
			action.Reason = fmt.Sprintf("attempt %d: %v", a.Number, a.Err)
		}
		attempts = append(attempts, action)
		metrics.RecoveryAttemptsTotal.WithLabelValues(string(domain.ActionRetry), strconv.FormatBool(a.Err == nil)).Inc()
	})

	s.mu.Lock()
	s.actions = append(s.actions, attempts...)
	if len(s.actions) > s.cfg.ActionsCap {
		s.actions = s.actions[len(s.actions)-s.cfg.ActionsCap:]
	}
	s.mu.Unlock()

	if err != nil {
		enhanced := s.classifier.Classify(err, ectx.CorrelationID)
		enhanced.Actions = attempts
		return nil, enhanced
	}
	return result, nil
}

// Degrade attempts graceful degradation, trying applicable strategies in
// descending priority. It returns the first strategy's result, or the
// original error when none apply or all fail.
func (s *Service) Degrade(ctx context.Context, err error, ectx *domain.ErrorContext) (any, error) {
	if ectx == nil {
		ectx = s.NewErrorContext(domain.RequestMeta{}, nil)
	}
	enhanced := s.classifier.Classify(err, ectx.CorrelationID)

	s.mu.Lock()
	strategies := make([]DegradationStrategy, 0, len(s.strategies))
	for _, d := range s.strategies {
		strategies = append(strategies, d.value)
	}
	s.mu.Unlock()

	for _, strategy := range strategies {
		if !strategy.Condition(enhanced, ectx) {
			continue
		}

		start := time.Now()
		result, serr := s.safeDegrade(ctx, strategy, enhanced, ectx)
		action := domain.RecoveryAction{
			Type:      domain.ActionGracefulDegradation,
			Success:   serr == nil,
			Duration:  time.Since(start),
			Reason:    strategy.Name(),
			Timestamp: time.Now(),
		}
		if serr != nil {
			action.Reason = fmt.Sprintf("%s: %v", strategy.Name(), serr)
		}

		s.mu.Lock()
		s.actions = append(s.actions, action)
		if len(s.actions) > s.cfg.ActionsCap {
			s.actions = s.actions[len(s.actions)-s.cfg.ActionsCap:]
		}
		s.mu.Unlock()
		metrics.RecoveryAttemptsTotal.WithLabelValues(string(domain.ActionGracefulDegradation), strconv.FormatBool(serr == nil)).Inc()

		if serr == nil {
			slog.Info("Graceful degradation applied",
				"strategy", strategy.Name(), "correlation_id", ectx.CorrelationID)
			return result, nil
		}
	}

	return nil, err
}

func (s *Service) safeDegrade(ctx context.Context, d DegradationStrategy, enhanced *domain.EnhancedError, ectx *domain.ErrorContext) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", d.Name(), r)
		}
	}()
	return d.Action(ctx, enhanced, ectx)
}

// RegisterTimeout tracks a cancel func for an in-flight request timeout so
// Stop can abort it. Returns a deregister func.
func (s *Service) RegisterTimeout(correlationID string, cancel context.CancelFunc) func() {
	s.mu.Lock()
	s.activeTimeouts[correlationID] = cancel
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.activeTimeouts, correlationID)
		s.mu.Unlock()
	}
}

// Classify exposes the classifier for middleware use.
func (s *Service) Classify(err error, correlationID string) *domain.EnhancedError {
	return s.classifier.Classify(err, correlationID)
}

// Metrics returns an aggregate snapshot.
func (s *Service) Metrics() ErrorMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := ErrorMetrics{
		TotalErrors: s.aggregate.TotalErrors,
		ByCategory:  make(map[domain.ErrorCategory]int64, len(s.aggregate.ByCategory)),
		BySeverity:  make(map[domain.Severity]int64, len(s.aggregate.BySeverity)),
		ByEndpoint:  make(map[string]int64, len(s.aggregate.ByEndpoint)),
		WindowCount: len(s.errTimes),
		LastError:   s.aggregate.LastError,
	}
	for k, v := range s.aggregate.ByCategory {
		out.ByCategory[k] = v
	}
	for k, v := range s.aggregate.BySeverity {
		out.BySeverity[k] = v
	}
	for k, v := range s.aggregate.ByEndpoint {
		out.ByEndpoint[k] = v
	}
	return out
}

// BreakerStates returns a snapshot of every endpoint breaker.
func (s *Service) BreakerStates() map[string]breaker.Snapshot {
	return s.breakers.Snapshot()
}

// Breaker returns the breaker for an endpoint path.
func (s *Service) Breaker(path string) *breaker.Breaker {
	return s.breakers.Get(path)
}

// BreakerEnabled reports whether per-endpoint breakers are active.
func (s *Service) BreakerEnabled() bool {
	return !s.cfg.DisableBreaker
}

// RecentErrors returns up to limit most recent errors, newest first.
func (s *Service) RecentErrors(limit int) []ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]ErrorRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.recent[len(s.recent)-1-i]
	}
	return out
}

// RecoveryActions returns up to limit most recent recovery actions, newest
// first.
func (s *Service) RecoveryActions(limit int) []domain.RecoveryAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.actions) {
		limit = len(s.actions)
	}
	out := make([]domain.RecoveryAction, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.actions[len(s.actions)-1-i]
	}
	return out
}

// ActiveAlerts returns unacknowledged, unresolved alerts.
func (s *Service) ActiveAlerts() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Alert
	for _, a := range s.alerts {
		if !a.Acknowledged && a.ResolvedAt == nil {
			out = append(out, *a)
		}
	}
	return out
}

// AcknowledgeAlert marks an alert acknowledged.
func (s *Service) AcknowledgeAlert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts {
		if a.ID == id {
			a.Acknowledged = true
			return true
		}
	}
	return false
}

// ResolveAlert marks an alert resolved.
func (s *Service) ResolveAlert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts {
		if a.ID == id {
			now := time.Now()
			a.ResolvedAt = &now
			return true
		}
	}
	return false
}
