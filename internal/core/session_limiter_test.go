package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLimiter_AcquireRelease(t *testing.T) {
	limiter := NewSessionLimiter(2, time.Second)
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx))
	require.NoError(t, limiter.Acquire(ctx))
	assert.Equal(t, 2, limiter.ActiveCount())
	assert.Equal(t, 0, limiter.Status().Available)

	limiter.Release()
	assert.Equal(t, 1, limiter.ActiveCount())
	assert.Equal(t, 1, limiter.Status().Available)

	limiter.Release()
	assert.Equal(t, 0, limiter.ActiveCount())
}

func TestSessionLimiter_TimesOutWhenFull(t *testing.T) {
	limiter := NewSessionLimiter(1, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx))
	defer limiter.Release()

	start := time.Now()
	err := limiter.Acquire(ctx)
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSessionLimiter_ContextCancellation(t *testing.T) {
	limiter := NewSessionLimiter(1, 5*time.Second)
	require.NoError(t, limiter.Acquire(context.Background()))
	defer limiter.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	assert.ErrorIs(t, limiter.Acquire(ctx), context.Canceled)
}

func TestSessionLimiter_UnblocksWaiter(t *testing.T) {
	limiter := NewSessionLimiter(1, time.Second)
	require.NoError(t, limiter.Acquire(context.Background()))

	done := make(chan error, 1)
	go func() { done <- limiter.Acquire(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	limiter.Release()

	select {
	case err := <-done:
		require.NoError(t, err)
		limiter.Release()
	case <-time.After(time.Second):
		t.Fatal("waiter was not unblocked by Release")
	}
}

func TestSessionLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewSessionLimiter(3, time.Second)

	var peak, current atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			limiter.Release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Equal(t, 0, limiter.ActiveCount())
}

func TestSessionLimiter_WaitForDrain(t *testing.T) {
	limiter := NewSessionLimiter(2, time.Second)
	require.NoError(t, limiter.Acquire(context.Background()))

	drained := make(chan error, 1)
	go func() { drained <- limiter.WaitForDrain(context.Background()) }()

	select {
	case <-drained:
		t.Fatal("WaitForDrain returned while a session was active")
	case <-time.After(80 * time.Millisecond):
	}

	limiter.Release()
	select {
	case err := <-drained:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitForDrain did not return after Release")
	}
}

func TestSessionLimiter_WaitForDrainContextCancelled(t *testing.T) {
	limiter := NewSessionLimiter(1, time.Second)
	require.NoError(t, limiter.Acquire(context.Background()))
	defer limiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, limiter.WaitForDrain(ctx), context.DeadlineExceeded)
}

func TestSessionLimiter_Defaults(t *testing.T) {
	limiter := NewSessionLimiter(0, 0)
	status := limiter.Status()
	assert.Equal(t, DefaultMaxConcurrentSessions, status.MaxConcurrent)
	assert.Equal(t, DefaultMaxConcurrentSessions, status.Available)
	assert.Equal(t, DefaultMaxWaitTime, limiter.maxWait)
}
