// Package dbrecovery owns the PostgreSQL connection lifecycle: health
// checked reconnection with backoff, breaker-gated access, and queueing of
// operations while the connection is unhealthy.
package dbrecovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gigaelk/worrybox/internal/infra/storage/postgres"
	"github.com/gigaelk/worrybox/internal/metrics"
	"github.com/gigaelk/worrybox/internal/resilience/breaker"
	"github.com/gigaelk/worrybox/internal/resilience/retry"
)

var (
	// ErrBreakerOpen is returned when the connection breaker is open.
	ErrBreakerOpen = errors.New("database circuit breaker open")

	// ErrQueueTimeout is returned when a queued operation expires before a
	// healthy connection becomes available.
	ErrQueueTimeout = errors.New("queued operation timed out")

	// ErrShuttingDown rejects queued operations during shutdown.
	ErrShuttingDown = errors.New("database recovery service shutting down")
)

// ConnState is the connection lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateRecovering   ConnState = "recovering"
)

// Config controls the database recovery service.
type Config struct {
	Postgres postgres.Config `yaml:"postgres"`

	HealthInterval   time.Duration  `yaml:"health_interval"`
	OperationTimeout time.Duration  `yaml:"operation_timeout"`
	QueueTimeout     time.Duration  `yaml:"queue_timeout"`
	SlowThreshold    time.Duration  `yaml:"slow_threshold"`
	Breaker          breaker.Config `yaml:"breaker"`
	Retry            retry.Policy   `yaml:"retry"`
}

// DefaultConfig mirrors the service defaults.
func DefaultConfig() Config {
	return Config{
		HealthInterval:   60 * time.Second,
		OperationTimeout: 30 * time.Second,
		QueueTimeout:     30 * time.Second,
		SlowThreshold:    2 * time.Second,
		Breaker:          breaker.DefaultConfig,
		Retry: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    10 * time.Second,
			Exponential: true,
			Jitter:      true,
			NonRetryablePatterns: []string{
				"unique constraint", "duplicate key",
				"foreign key constraint", "violates",
			},
		},
	}
}

// Operation is one database call executed under the recovery service.
type Operation func(ctx context.Context, db *postgres.DB) (any, error)

// errorEntry is one recent failure kept for health reporting.
type errorEntry struct {
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Service owns the single database handle. All access funnels through
// Execute or Conn; no other component may hold the handle across a
// blocking call.
type Service struct {
	cfg Config

	mu           sync.Mutex
	db           *postgres.DB
	state        ConnState
	isRecovering bool
	consecutive  int
	totalFails   int64
	totalOps     int64
	lastSuccess  time.Time
	latencies    []time.Duration
	slowOps      int64
	recentErrs   []errorEntry

	brk       *breaker.Breaker
	queue     *opQueue
	startedAt time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates the service without connecting.
func New(cfg Config) *Service {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 60 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 30 * time.Second
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = cfg.OperationTimeout
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 2 * time.Second
	}

	s := &Service{
		cfg:       cfg,
		state:     StateDisconnected,
		brk:       breaker.New(cfg.Breaker),
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	s.queue = newOpQueue(s.canDrain, s.shouldRequeue, s.runQueued)
	return s
}

// canDrain reports whether queued operations may run: the breaker window
// must have lapsed (or never opened), no recovery may be active, and a
// handle must exist. A lapsed-open breaker drains exactly one item as the
// half-open probe.
func (s *Service) canDrain() bool {
	if s.brk.RetryAfter() > 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.isRecovering && s.db != nil
}

// Start opens the initial connection, applies migrations, and starts the
// health check loop and the queue drain goroutine.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if err := s.connect(ctx); err != nil {
			// Initial connect failure is not fatal: the health loop keeps
			// retrying and operations queue in the meantime.
			slog.Error("Initial database connection failed", "error", err)
			s.setState(StateDisconnected)
		}

		loopCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.queue.start(loopCtx)
		go s.healthLoop(loopCtx)
	})
}

// Stop halts the health loop, rejects all queued operations and closes the
// connection.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
			s.queue.wait()
		}
		s.queue.shutdown(ErrShuttingDown)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.db != nil {
			_ = s.db.Close()
			s.db = nil
		}
		s.state = StateDisconnected
	})
}

func (s *Service) healthLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			db := s.db
			s.mu.Unlock()

			if db == nil {
				go s.recoverConnection(ctx)
				continue
			}

			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := db.Health(pingCtx)
			cancel()
			if err != nil {
				slog.Warn("Database health check failed", "error", err)
				go s.recoverConnection(ctx)
			}
		}
	}
}

func (s *Service) connect(ctx context.Context) error {
	s.setState(StateConnecting)

	db, err := postgres.Open(ctx, s.cfg.Postgres)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return err
	}

	s.mu.Lock()
	if s.db != nil {
		_ = s.db.Close()
	}
	s.db = db
	s.state = StateConnected
	s.consecutive = 0
	s.lastSuccess = time.Now()
	s.mu.Unlock()

	s.brk.RecordSuccess()
	s.queue.wake()
	slog.Info("Database connected")
	return nil
}

// recoverConnection reconnects with exponential backoff. Concurrent calls
// collapse into one attempt.
func (s *Service) recoverConnection(ctx context.Context) bool {
	s.mu.Lock()
	if s.isRecovering {
		s.mu.Unlock()
		return false
	}
	s.isRecovering = true
	s.state = StateRecovering
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRecovering = false
		s.mu.Unlock()
	}()

	err := retry.Do(ctx, func(ctx context.Context) error {
		return s.connect(ctx)
	}, retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   s.cfg.Retry.BaseDelay,
		MaxDelay:    s.cfg.Retry.MaxDelay,
		Exponential: true,
		Jitter:      true,
	}, nil)

	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.consecutive++
		s.totalFails++
		s.mu.Unlock()
		s.brk.RecordFailure()
		slog.Error("Database recovery failed", "error", err)
		return false
	}
	return true
}

// ForceRecovery forces a reconnect attempt and reports whether the
// connection is healthy afterwards.
func (s *Service) ForceRecovery(ctx context.Context) bool {
	if s.recoverConnection(ctx) {
		return true
	}
	// A concurrent recovery may have just finished; report current health.
	return s.State() == StateConnected
}

// State returns the connection state.
func (s *Service) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) setState(state ConnState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Conn returns the live database handle, failing fast while the breaker is
// open and probing liveness before handing it out.
func (s *Service) Conn(ctx context.Context) (*postgres.DB, error) {
	if err := s.brk.Allow(); err != nil {
		return nil, fmt.Errorf("%w: retry after %s", ErrBreakerOpen, s.brk.RetryAfter())
	}

	s.mu.Lock()
	db := s.db
	s.mu.Unlock()

	if db == nil {
		if !s.recoverConnection(ctx) {
			return nil, ErrBreakerOpen
		}
		s.mu.Lock()
		db = s.db
		s.mu.Unlock()
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Health(pingCtx); err != nil {
		if !s.recoverConnection(ctx) {
			return nil, fmt.Errorf("database connection unhealthy: %w", err)
		}
		s.mu.Lock()
		db = s.db
		s.mu.Unlock()
	}
	return db, nil
}

// shouldQueue reports whether an operation must wait for a healthy
// connection instead of running immediately.
func (s *Service) shouldQueue() bool {
	if s.brk.State() == breaker.StateOpen {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRecovering || s.queue.depth() > 0
}

// Execute runs op under the recovery service. Operations are queued while
// the breaker is open, a recovery is active, or earlier operations are
// still queued; queued calls keep FIFO order, drain strictly one at a time
// once the connection is usable again, and are rejected only by their own
// queue timeout while they wait.
func (s *Service) Execute(ctx context.Context, name string, op Operation) (any, error) {
	if s.shouldQueue() {
		return s.queue.enqueue(ctx, name, op, s.cfg.QueueTimeout)
	}
	return s.run(ctx, name, op)
}

// runQueued is the drain callback: a queued operation gets one attempt per
// drain; retryable failures send it back to the queue instead of looping
// with backoff here, so a dead connection parks the whole backlog rather
// than burning each item's retry budget against it.
func (s *Service) runQueued(ctx context.Context, name string, op Operation) (any, error) {
	return s.runOnce(ctx, name, op)
}

// shouldRequeue reports whether a failed queued operation goes back to the
// queue for another attempt. The item's own timer still bounds its total
// wait.
func (s *Service) shouldRequeue(err error, retries int) bool {
	if retries >= s.cfg.Retry.MaxAttempts-1 {
		return false
	}
	return s.cfg.Retry.Retryable(err)
}

func (s *Service) run(ctx context.Context, name string, op Operation) (any, error) {
	var result any
	err := retry.Do(ctx, func(ctx context.Context) error {
		v, oerr := s.runOnce(ctx, name, op)
		if oerr == nil {
			result = v
		}
		return oerr
	}, s.cfg.Retry, nil)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// runOnce executes op once under the operation timeout. Operations that
// ignore ctx keep running; their result is discarded.
func (s *Service) runOnce(ctx context.Context, name string, op Operation) (any, error) {
	if err := s.brk.Allow(); err != nil {
		return nil, fmt.Errorf("%w: retry after %s", ErrBreakerOpen, s.brk.RetryAfter())
	}

	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		s.recordFailure(name, errors.New("no database connection"))
		return nil, errors.New("no database connection")
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	ch := make(chan outcome, 1)
	start := time.Now()
	go func() {
		v, err := op(opCtx, db)
		ch <- outcome{result: v, err: err}
	}()

	select {
	case <-opCtx.Done():
		err := fmt.Errorf("operation %s timed out after %s", name, s.cfg.OperationTimeout)
		s.recordFailure(name, err)
		metrics.DBOperationSeconds.WithLabelValues(name, "timeout").Observe(time.Since(start).Seconds())
		return nil, err
	case out := <-ch:
		elapsed := time.Since(start)
		if out.err != nil {
			s.recordFailure(name, out.err)
			metrics.DBOperationSeconds.WithLabelValues(name, "error").Observe(elapsed.Seconds())
			if looksLikeConnectionError(out.err) {
				go s.recoverConnection(context.Background())
			}
			return nil, out.err
		}
		s.recordSuccess(name, elapsed)
		metrics.DBOperationSeconds.WithLabelValues(name, "ok").Observe(elapsed.Seconds())
		return out.result, nil
	}
}

func (s *Service) recordSuccess(name string, elapsed time.Duration) {
	s.brk.RecordSuccess()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalOps++
	s.consecutive = 0
	s.lastSuccess = time.Now()
	s.latencies = append(s.latencies, elapsed)
	if len(s.latencies) > 100 {
		s.latencies = s.latencies[1:]
	}
	if elapsed > s.cfg.SlowThreshold {
		s.slowOps++
		slog.Warn("Slow database operation", "operation", name, "elapsed", elapsed)
	}
}

func (s *Service) recordFailure(name string, err error) {
	s.brk.RecordFailure()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalOps++
	s.totalFails++
	s.consecutive++
	s.recentErrs = append(s.recentErrs, errorEntry{Message: fmt.Sprintf("%s: %v", name, err), Time: time.Now()})
	if len(s.recentErrs) > 50 {
		s.recentErrs = s.recentErrs[1:]
	}
}

// looksLikeConnectionError matches errors that indicate a dead connection
// rather than a bad query.
func looksLikeConnectionError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused", "connection reset", "broken pipe",
		"bad connection", "server closed", "eof", "no database connection",
		"econnrefused", "econnreset",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
