package transition_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mu-semtech/network-monitor/internal/core/domain"
	"github.com/mu-semtech/network-monitor/internal/core/transition"
)

// recordingRunner tracks the start time of each WorkItem it runs, to assert
// serialization within a container.
type recordingRunner struct {
	mu      sync.Mutex
	starts  []time.Time
	ends    []time.Time
	delay   time.Duration
	running int32
	maxPar  int32
}

func (r *recordingRunner) Run(ctx context.Context, item transition.WorkItem) error {
	n := atomic.AddInt32(&r.running, 1)
	for {
		max := atomic.LoadInt32(&r.maxPar)
		if n <= max || atomic.CompareAndSwapInt32(&r.maxPar, max, n) {
			break
		}
	}
	r.mu.Lock()
	r.starts = append(r.starts, time.Now())
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.ends = append(r.ends, time.Now())
	r.mu.Unlock()
	atomic.AddInt32(&r.running, -1)
	return nil
}

func TestEngine_SerialPerContainer(t *testing.T) {
	runner := &recordingRunner{delay: 5 * time.Millisecond}
	eng := transition.New(runner, nil)

	const n = 10
	for i := 0; i < n; i++ {
		eng.Enqueue(context.Background(), "c1", transition.WorkItem{Action: transition.ActionCreateMonitor})
	}

	require.NoError(t, eng.Wait(context.Background(), "c1"))

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.starts, n)
	for i := 1; i < n; i++ {
		assert.True(t, !runner.starts[i].Before(runner.ends[i-1]),
			"action %d started before action %d completed", i, i-1)
	}
}

func TestEngine_ParallelAcrossContainers(t *testing.T) {
	runner := &recordingRunner{delay: 20 * time.Millisecond}
	eng := transition.New(runner, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		id := "c" + string(rune('a'+i))
		go func() {
			defer wg.Done()
			eng.Enqueue(context.Background(), id, transition.WorkItem{Action: transition.ActionCreateMonitor})
		}()
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		id := "c" + string(rune('a'+i))
		require.NoError(t, eng.Wait(context.Background(), id))
	}

	assert.Greater(t, atomic.LoadInt32(&runner.maxPar), int32(1), "expected actions on distinct containers to overlap")
}

func TestEngine_WaitReturnsImmediatelyForUnknownContainer(t *testing.T) {
	eng := transition.New(&recordingRunner{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, eng.Wait(ctx, "never-enqueued"))
}

func TestEngine_WaitHonorsContextCancellation(t *testing.T) {
	runner := &recordingRunner{delay: 200 * time.Millisecond}
	eng := transition.New(runner, nil)
	eng.Enqueue(context.Background(), "c1", transition.WorkItem{Action: transition.ActionCreateMonitor})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := eng.Wait(ctx, "c1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_EnqueueDoesNotBlock(t *testing.T) {
	runner := &recordingRunner{delay: 100 * time.Millisecond}
	eng := transition.New(runner, nil)

	done := make(chan struct{})
	go func() {
		eng.Enqueue(context.Background(), "c1", transition.WorkItem{Action: transition.ActionCreateMonitor})
		eng.Enqueue(context.Background(), "c1", transition.WorkItem{Action: transition.ActionCreateMonitor})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("Enqueue blocked on in-flight action")
	}
}

// erroringRunner always fails, to assert that a failed action never panics
// the drain goroutine and subsequent items still run.
type erroringRunner struct {
	ran int32
}

func (r *erroringRunner) Run(ctx context.Context, item transition.WorkItem) error {
	atomic.AddInt32(&r.ran, 1)
	return domain.ErrNotFound
}

func TestEngine_FailedActionDoesNotStallQueue(t *testing.T) {
	runner := &erroringRunner{}
	eng := transition.New(runner, nil)

	eng.Enqueue(context.Background(), "c1", transition.WorkItem{Action: transition.ActionCreateMonitor})
	eng.Enqueue(context.Background(), "c1", transition.WorkItem{Action: transition.ActionRemoveMonitor, Monitor: &domain.Monitor{}})

	require.NoError(t, eng.Wait(context.Background(), "c1"))
	assert.EqualValues(t, 2, atomic.LoadInt32(&runner.ran))
}
