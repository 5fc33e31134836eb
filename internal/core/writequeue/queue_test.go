package writequeue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Murmur/internal/core/retry"
)

func testConfig() Config {
	return Config{
		MaxPending:    16,
		DrainInterval: 5 * time.Millisecond,
		Retry:         retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestLowPriorityRunsImmediatelyUnderThreshold(t *testing.T) {
	q := New(testConfig(), nil)
	defer q.Close()

	var ran atomic.Bool
	q.ExecuteOrQueue(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}, Options{Priority: PriorityLow, LoadThreshold: 10})

	waitFor(t, ran.Load)
}

func TestHighPriorityNeverDeferred(t *testing.T) {
	q := New(testConfig(), nil)
	defer q.Close()

	// Saturate load well past any threshold.
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		q.ExecuteOrQueue(func(ctx context.Context) error {
			wg.Done()
			<-release
			return nil
		}, Options{Priority: PriorityHigh, LoadThreshold: 0})
	}
	wg.Wait()
	require.GreaterOrEqual(t, q.Load(), int64(5))

	var ran atomic.Bool
	q.ExecuteOrQueue(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}, Options{Priority: PriorityHigh, LoadThreshold: 0})

	waitFor(t, ran.Load)
	close(release)
}

func TestLowPriorityDeferredAboveThreshold(t *testing.T) {
	q := New(testConfig(), nil)
	defer q.Close()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	for i := 0; i < 2; i++ {
		q.ExecuteOrQueue(func(ctx context.Context) error {
			started.Done()
			<-release
			return nil
		}, Options{Priority: PriorityHigh, LoadThreshold: 0})
	}
	started.Wait()

	var ran atomic.Bool
	q.ExecuteOrQueue(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}, Options{Priority: PriorityLow, LoadThreshold: 2})

	// Load is 2, threshold is 2: must defer, not run.
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.Equal(t, 1, q.PendingLow())

	// Load subsides, drainer picks it up.
	close(release)
	waitFor(t, ran.Load)
	assert.Equal(t, 0, q.PendingLow())
}

func TestDeferredDrainOrderIsFIFO(t *testing.T) {
	q := New(testConfig(), nil)
	defer q.Close()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	q.ExecuteOrQueue(func(ctx context.Context) error {
		started.Done()
		<-release
		return nil
	}, Options{Priority: PriorityHigh, LoadThreshold: 0})
	started.Wait()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		n := i
		q.ExecuteOrQueue(func(ctx context.Context) error {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return nil
		}, Options{Priority: PriorityLow, LoadThreshold: 1})
	}

	close(release)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestOldestLowPriorityDroppedWhenFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPending = 3
	q := New(cfg, nil)
	defer q.Close()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	q.ExecuteOrQueue(func(ctx context.Context) error {
		started.Done()
		<-release
		return nil
	}, Options{Priority: PriorityHigh, LoadThreshold: 0})
	started.Wait()

	var mu sync.Mutex
	var ran []int
	for i := 0; i < 5; i++ {
		n := i
		q.ExecuteOrQueue(func(ctx context.Context) error {
			mu.Lock()
			ran = append(ran, n)
			mu.Unlock()
			return nil
		}, Options{Priority: PriorityLow, LoadThreshold: 1})
	}

	assert.Equal(t, 3, q.PendingLow())
	assert.Equal(t, int64(2), q.Dropped())

	close(release)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ran) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 3, 4}, ran, "the two oldest submissions are shed")
}

func TestFailedDeferredOperationIsDroppedNotRetriedForever(t *testing.T) {
	q := New(testConfig(), nil)
	defer q.Close()

	var calls atomic.Int32
	q.ExecuteOrQueue(func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("counter store down")
	}, Options{Priority: PriorityLow, LoadThreshold: 10})

	waitFor(t, func() bool { return q.Dropped() >= 1 })
	assert.Equal(t, int32(2), calls.Load(), "bounded by the retry policy")
}

func TestCloseDrainsBacklog(t *testing.T) {
	q := New(testConfig(), nil)

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	q.ExecuteOrQueue(func(ctx context.Context) error {
		started.Done()
		<-release
		return nil
	}, Options{Priority: PriorityHigh, LoadThreshold: 0})
	started.Wait()

	var ran atomic.Bool
	q.ExecuteOrQueue(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}, Options{Priority: PriorityLow, LoadThreshold: 1})

	close(release)
	q.Close()
	assert.True(t, ran.Load(), "Close must flush deferred work")
}
