package dbrecovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gigaelk/worrybox/internal/infra/storage/postgres"
)

func noopOp(_ context.Context, _ *postgres.DB) (any, error) {
	return nil, nil
}

func alwaysReady() bool { return true }

func TestQueue_DrainsInFIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var ran []string

	q := newOpQueue(alwaysReady, nil, func(ctx context.Context, name string, op Operation) (any, error) {
		mu.Lock()
		ran = append(ran, name)
		mu.Unlock()
		return op(ctx, nil)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.start(ctx)

	var wg sync.WaitGroup
	results := make([]error, 5)
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.enqueue(context.Background(), fmt.Sprintf("op%d", i), noopOp, time.Second)
			results[i] = err
		}()
		// Stagger so arrival order is deterministic.
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Fatalf("op%d: %v", i, err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	for i, name := range ran {
		if want := fmt.Sprintf("op%d", i); name != want {
			t.Errorf("position %d ran %s, want %s", i, name, want)
		}
	}
}

func TestQueue_SerializesOperations(t *testing.T) {
	var mu sync.Mutex
	running := 0
	maxRunning := 0

	q := newOpQueue(alwaysReady, nil, func(ctx context.Context, name string, op Operation) (any, error) {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.enqueue(context.Background(), "op", noopOp, 5*time.Second)
		}()
	}
	wg.Wait()

	if maxRunning != 1 {
		t.Errorf("max concurrent operations = %d, want 1", maxRunning)
	}
}

func TestQueue_TimesOutPendingOperation(t *testing.T) {
	release := make(chan struct{})
	q := newOpQueue(alwaysReady, nil, func(ctx context.Context, name string, op Operation) (any, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.start(ctx)
	defer close(release)

	// Occupy the drain goroutine with a long-running op.
	go q.enqueue(context.Background(), "blocker", noopOp, time.Minute)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	_, err := q.enqueue(context.Background(), "victim", noopOp, 50*time.Millisecond)
	if !errors.Is(err, ErrQueueTimeout) {
		t.Fatalf("expected ErrQueueTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout took far longer than the configured deadline")
	}
	if q.depth() != 0 {
		t.Errorf("timed-out op must be removed, depth = %d", q.depth())
	}
}

func TestQueue_ContextCancelUnblocksCaller(t *testing.T) {
	release := make(chan struct{})
	q := newOpQueue(alwaysReady, nil, func(ctx context.Context, name string, op Operation) (any, error) {
		<-release
		return nil, nil
	})

	drainCtx, cancelDrain := context.WithCancel(context.Background())
	defer cancelDrain()
	q.start(drainCtx)
	defer close(release)

	go q.enqueue(context.Background(), "blocker", noopOp, time.Minute)
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := q.enqueue(ctx, "cancelled", noopOp, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestQueue_ShutdownRejectsPendingAndNew(t *testing.T) {
	release := make(chan struct{})
	q := newOpQueue(alwaysReady, nil, func(ctx context.Context, name string, op Operation) (any, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	q.start(ctx)
	defer close(release)

	go q.enqueue(context.Background(), "blocker", noopOp, time.Minute)
	time.Sleep(20 * time.Millisecond)

	pendingErr := make(chan error, 1)
	go func() {
		_, err := q.enqueue(context.Background(), "pending", noopOp, time.Minute)
		pendingErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	q.shutdown(ErrShuttingDown)

	select {
	case err := <-pendingErr:
		if !errors.Is(err, ErrShuttingDown) {
			t.Errorf("pending op got %v, want ErrShuttingDown", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending op never resolved after shutdown")
	}

	if _, err := q.enqueue(context.Background(), "late", noopOp, time.Second); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("new op after shutdown got %v, want ErrShuttingDown", err)
	}
}

func TestQueue_HoldsItemsWhileUnready(t *testing.T) {
	var ready atomic.Bool
	var calls atomic.Int32

	q := newOpQueue(ready.Load, nil, func(ctx context.Context, name string, op Operation) (any, error) {
		calls.Add(1)
		return "ok", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.start(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := q.enqueue(context.Background(), "held", noopOp, 5*time.Second)
		done <- err
	}()

	// While the connection is unusable the item must sit in the queue.
	time.Sleep(100 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("operation ran %d times while unready", n)
	}
	if q.depth() != 1 {
		t.Fatalf("depth = %d, want 1 while holding", q.depth())
	}

	ready.Store(true)
	q.wake()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected success once ready, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("item never drained after becoming ready")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestQueue_UnreadyItemRejectsOnlyAtOwnTimeout(t *testing.T) {
	never := func() bool { return false }
	q := newOpQueue(never, nil, func(ctx context.Context, name string, op Operation) (any, error) {
		t.Error("operation must not run while unready")
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.start(ctx)

	start := time.Now()
	_, err := q.enqueue(context.Background(), "waiting", noopOp, 100*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrQueueTimeout) {
		t.Fatalf("expected ErrQueueTimeout, got %v", err)
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("rejected after %s, before the 100ms queue timeout", elapsed)
	}
	if q.depth() != 0 {
		t.Errorf("timed-out op must be removed, depth = %d", q.depth())
	}
}

func TestQueue_RequeuesRetryableFailures(t *testing.T) {
	var calls atomic.Int32

	requeue := func(err error, retries int) bool {
		return retries < 2 && looksLikeConnectionError(err)
	}
	q := newOpQueue(alwaysReady, requeue, func(ctx context.Context, name string, op Operation) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("read tcp: connection reset by peer")
		}
		return "recovered", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.start(ctx)

	result, err := q.enqueue(context.Background(), "flaky", noopOp, 5*time.Second)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if result != "recovered" {
		t.Errorf("result = %v, want recovered", result)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestQueue_RequeueBudgetExhausted(t *testing.T) {
	opErr := errors.New("driver: bad connection")
	requeue := func(err error, retries int) bool { return retries < 1 }
	q := newOpQueue(alwaysReady, requeue, func(ctx context.Context, name string, op Operation) (any, error) {
		return nil, opErr
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.start(ctx)

	_, err := q.enqueue(context.Background(), "doomed", noopOp, 5*time.Second)
	if !errors.Is(err, opErr) {
		t.Fatalf("expected the operation error after the requeue budget, got %v", err)
	}
}

func TestQueue_WaitReturnsAfterDrainExit(t *testing.T) {
	q := newOpQueue(alwaysReady, nil, func(ctx context.Context, name string, op Operation) (any, error) {
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	q.start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		q.wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after the drain goroutine exited")
	}
}

func TestServiceRequeuePolicy(t *testing.T) {
	s := New(DefaultConfig())

	if !s.shouldRequeue(errors.New("connection refused"), 0) {
		t.Error("retryable failure with budget left must requeue")
	}
	if s.shouldRequeue(errors.New("duplicate key value violates unique constraint"), 0) {
		t.Error("non-retryable failure must not requeue")
	}
	if s.shouldRequeue(errors.New("connection refused"), s.cfg.Retry.MaxAttempts-1) {
		t.Error("exhausted budget must not requeue")
	}
}

func TestLooksLikeConnectionError(t *testing.T) {
	tests := []struct {
		err  string
		want bool
	}{
		{"dial tcp 10.0.0.5:5432: connection refused", true},
		{"read tcp: connection reset by peer", true},
		{"write: broken pipe", true},
		{"driver: bad connection", true},
		{"unexpected EOF", true},
		{"no database connection", true},
		{"ERROR: duplicate key value violates unique constraint", false},
		{"pq: relation \"worries\" does not exist", false},
		{"context deadline exceeded", false},
	}
	for _, tt := range tests {
		if got := looksLikeConnectionError(errors.New(tt.err)); got != tt.want {
			t.Errorf("looksLikeConnectionError(%q) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
