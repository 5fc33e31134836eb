package writequeue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"Murmur/internal/core/retry"
)

// Priority classifies a queued mutation. High-priority work (likes,
// comments, moderation actions) always runs immediately; low-priority work
// (view-count increments) yields under load.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

// Operation is a deferred unit of work. Implementations must be safe to run
// after the request that submitted them has already returned.
type Operation func(ctx context.Context) error

// Options controls admission for a single submission.
type Options struct {
	Priority Priority

	// LoadThreshold is the in-flight execution count above which a
	// low-priority operation is deferred instead of run immediately.
	LoadThreshold int64
}

// Config sizes the queue.
type Config struct {
	// MaxPending bounds the deferred backlog per priority class. When the
	// low-priority backlog is full, the oldest entry is dropped.
	MaxPending int

	// DrainInterval is how often the drainer re-checks load when the
	// backlog is non-empty.
	DrainInterval time.Duration

	// Retry is the policy applied to every executed operation.
	Retry retry.Config
}

// DefaultConfig suits a single AppView instance.
var DefaultConfig = Config{
	MaxPending:    4096,
	DrainInterval: 50 * time.Millisecond,
	Retry:         retry.Config{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second},
}

type pending struct {
	op        Operation
	threshold int64
}

// Queue decides, per submission, whether a mutation runs now or waits for
// load to subside. Submissions never block the caller and never surface
// execution failures back to it: a failed deferred operation is logged and
// dropped, since the durable record it denormalizes already exists.
type Queue struct {
	cfg    Config
	logger *slog.Logger

	inFlight atomic.Int64 // executions currently running

	mu      sync.Mutex
	high    []pending
	low     []pending
	dropped atomic.Int64

	wake   chan struct{}
	stop   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
}

// New creates a write queue and starts its drainer.
func New(cfg Config, logger *slog.Logger) *Queue {
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultConfig.MaxPending
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = DefaultConfig.DrainInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		cfg:    cfg,
		logger: logger,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	q.wg.Add(1)
	go q.drain()
	return q
}

// ExecuteOrQueue runs op immediately when it is high priority or current
// load is below opts.LoadThreshold; otherwise it is deferred. Fire and
// forget: the call returns without waiting for execution and the operation's
// outcome is never reported to the caller.
func (q *Queue) ExecuteOrQueue(op Operation, opts Options) {
	select {
	case <-q.stop:
		q.dropped.Add(1)
		return
	default:
	}

	if opts.Priority == PriorityHigh || q.inFlight.Load() < opts.LoadThreshold {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.run(op)
		}()
		return
	}

	q.enqueue(pending{op: op, threshold: opts.LoadThreshold}, opts.Priority)
}

// Load returns the number of executions currently in flight.
func (q *Queue) Load() int64 {
	return q.inFlight.Load()
}

// PendingLow returns the deferred low-priority backlog size.
func (q *Queue) PendingLow() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.low)
}

// Dropped returns how many operations were discarded under overload or
// after shutdown.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Close stops admission, waits for in-flight executions, then runs one
// final drain of the backlog so a clean shutdown does not shed work.
func (q *Queue) Close() {
	q.closed.Do(func() {
		close(q.stop)
		q.wg.Wait()

		q.mu.Lock()
		rest := append(q.high, q.low...)
		q.high, q.low = nil, nil
		q.mu.Unlock()

		for _, p := range rest {
			q.run(p.op)
		}
	})
}

func (q *Queue) enqueue(p pending, prio Priority) {
	q.mu.Lock()
	if prio == PriorityHigh {
		q.high = append(q.high, p)
	} else {
		if len(q.low) >= q.cfg.MaxPending {
			// Shed the oldest deferred increment rather than grow without
			// bound; the underlying view record is already durable.
			q.low = q.low[1:]
			q.dropped.Add(1)
			q.logger.Debug("write queue full, dropped oldest low-priority mutation")
		}
		q.low = append(q.low, p)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain executes deferred work FIFO within each priority class, high before
// low, and only releases low-priority work while load stays below its
// submission threshold.
func (q *Queue) drain() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-q.wake:
		case <-ticker.C:
		}

		for {
			p, ok := q.next()
			if !ok {
				break
			}
			q.run(p.op)
		}
	}
}

// next pops the oldest eligible pending operation, high priority first.
func (q *Queue) next() (pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.high) > 0 {
		p := q.high[0]
		q.high = q.high[1:]
		return p, true
	}
	if len(q.low) > 0 && q.inFlight.Load() < q.low[0].threshold {
		p := q.low[0]
		q.low = q.low[1:]
		return p, true
	}
	return pending{}, false
}

func (q *Queue) run(op Operation) {
	q.inFlight.Add(1)
	defer q.inFlight.Add(-1)

	err := retry.Do(context.Background(), op, q.cfg.Retry)
	if err != nil {
		// By the time a deferred mutation fails its caller has long since
		// returned; the only correct surface is the log.
		q.dropped.Add(1)
		q.logger.Error("deferred mutation failed, dropping", "error", err)
	}
}
