package dbrecovery

import (
	"context"
	"sync"
	"time"

	"github.com/gigaelk/worrybox/internal/metrics"
)

type opOutcome struct {
	result any
	err    error
}

// queuedOp is one pending database call awaiting a healthy connection.
type queuedOp struct {
	name    string
	op      Operation
	ctx     context.Context
	created time.Time
	retries int

	once   sync.Once
	result chan opOutcome
	timer  *time.Timer
}

// complete resolves the operation exactly once.
func (q *queuedOp) complete(out opOutcome) {
	q.once.Do(func() {
		if q.timer != nil {
			q.timer.Stop()
		}
		q.result <- out
	})
}

// completed reports whether the op has already been resolved (timed out or
// abandoned) without consuming the resolution.
func (q *queuedOp) completed() bool {
	select {
	case out := <-q.result:
		// Put it back for the waiter.
		q.result <- out
		return true
	default:
		return false
	}
}

// opQueue is a FIFO of pending operations drained strictly one at a time
// by a single goroutine. New operations can be queued while an earlier one
// runs; they simply wait their turn. Draining is gated on ready: while the
// connection is unhealthy items stay queued and only their own timers can
// reject them.
type opQueue struct {
	mu        sync.Mutex
	items     []*queuedOp
	stopped   bool
	stopErr   error
	signal    chan struct{}
	ready     func() bool
	requeue   func(err error, retries int) bool
	runOp     func(ctx context.Context, name string, op Operation) (any, error)
	drainDone chan struct{}
}

// drainRecheckInterval bounds how long a drainable backlog can sit waiting
// when no wake event fires (e.g. the breaker window lapses with no
// reconnect in between).
const drainRecheckInterval = 250 * time.Millisecond

func newOpQueue(ready func() bool, requeue func(err error, retries int) bool, runOp func(ctx context.Context, name string, op Operation) (any, error)) *opQueue {
	return &opQueue{
		signal:    make(chan struct{}, 1),
		ready:     ready,
		requeue:   requeue,
		runOp:     runOp,
		drainDone: make(chan struct{}),
	}
}

func (q *opQueue) start(ctx context.Context) {
	go q.drainLoop(ctx)
}

// wake nudges the drain goroutine, e.g. after a successful reconnect.
func (q *opQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// wait blocks until the drain goroutine has exited.
func (q *opQueue) wait() {
	<-q.drainDone
}

func (q *opQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// enqueue adds an operation and blocks until it resolves. The operation is
// rejected with ErrQueueTimeout if it is still pending when its timeout
// elapses.
func (q *opQueue) enqueue(ctx context.Context, name string, op Operation, timeout time.Duration) (any, error) {
	item := &queuedOp{
		name:    name,
		op:      op,
		ctx:     ctx,
		created: time.Now(),
		result:  make(chan opOutcome, 1),
	}
	item.timer = time.AfterFunc(timeout, func() {
		q.remove(item)
		item.complete(opOutcome{err: ErrQueueTimeout})
	})

	q.mu.Lock()
	if q.stopped {
		err := q.stopErr
		q.mu.Unlock()
		item.timer.Stop()
		return nil, err
	}
	q.items = append(q.items, item)
	depth := len(q.items)
	q.mu.Unlock()
	metrics.DBQueueDepth.Set(float64(depth))
	q.wake()

	select {
	case out := <-item.result:
		return out.result, out.err
	case <-ctx.Done():
		q.remove(item)
		item.complete(opOutcome{err: ctx.Err()})
		out := <-item.result
		return out.result, out.err
	}
}

func (q *opQueue) remove(target *queuedOp) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item == target {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	metrics.DBQueueDepth.Set(float64(len(q.items)))
}

func (q *opQueue) pop() *queuedOp {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	metrics.DBQueueDepth.Set(float64(len(q.items)))
	return item
}

func (q *opQueue) drainLoop(ctx context.Context) {
	defer close(q.drainDone)
	ticker := time.NewTicker(drainRecheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.signal:
		case <-ticker.C:
		}

		// Items drain only while the connection is usable; otherwise they
		// stay queued until their own timer rejects them.
		for q.ready() {
			item := q.pop()
			if item == nil {
				break
			}
			if item.completed() {
				continue
			}

			result, err := q.runOp(item.ctx, item.name, item.op)
			if err != nil && q.requeue != nil && q.requeue(err, item.retries) && !item.completed() {
				item.retries++
				q.push(item)
				continue
			}
			item.complete(opOutcome{result: result, err: err})
		}
	}
}

// push re-adds a requeued item at the back of the line, keeping its
// original timer.
func (q *opQueue) push(item *queuedOp) {
	q.mu.Lock()
	if q.stopped {
		err := q.stopErr
		q.mu.Unlock()
		item.complete(opOutcome{err: err})
		return
	}
	q.items = append(q.items, item)
	depth := len(q.items)
	q.mu.Unlock()
	metrics.DBQueueDepth.Set(float64(depth))
}

// shutdown rejects every queued operation with err and refuses new ones.
func (q *opQueue) shutdown(err error) {
	q.mu.Lock()
	q.stopped = true
	q.stopErr = err
	items := q.items
	q.items = nil
	q.mu.Unlock()
	metrics.DBQueueDepth.Set(0)

	for _, item := range items {
		item.complete(opOutcome{err: err})
	}
}
