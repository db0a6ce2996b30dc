package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/syncta/internal/shared"
)

func testLimiter(maxAttempts int) *Limiter {
	cfg := shared.DefaultConfig().Sync
	cfg.RetryMaxAttempts = maxAttempts
	cfg.RetryBaseDelayMS = 1
	return NewLimiter(cfg)
}

func TestLimiterRetriesTransientFailures(t *testing.T) {
	limiter := testLimiter(5)

	var calls int
	err := limiter.Do(context.Background(), "spotify", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: flaky network", shared.ErrTransient)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestLimiterRetriesRateLimits(t *testing.T) {
	limiter := testLimiter(5)

	var calls int
	err := limiter.Do(context.Background(), "spotify", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("%w: 429", shared.ErrRateLimited)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after one retry, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestLimiterExhaustsAttemptBudget(t *testing.T) {
	limiter := testLimiter(3)

	var calls int
	err := limiter.Do(context.Background(), "spotify", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("%w: still down", shared.ErrTransient)
	})
	if !errors.Is(err, shared.ErrTransient) {
		t.Fatalf("expected the last transient error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected the attempt budget to cap at 3, got %d", calls)
	}
}

func TestLimiterNeverRetriesAuthFailures(t *testing.T) {
	limiter := testLimiter(5)

	var calls int
	err := limiter.Do(context.Background(), "spotify", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("%w: token revoked", shared.ErrAuthFailed)
	})
	if !errors.Is(err, shared.ErrAuthFailed) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("auth failures must not retry, got %d attempts", calls)
	}
}

func TestLimiterNeverRetriesPermissionErrors(t *testing.T) {
	limiter := testLimiter(5)

	var calls int
	err := limiter.Do(context.Background(), "spotify", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("%w: read-only playlist", shared.ErrNotPermitted)
	})
	if !errors.Is(err, shared.ErrNotPermitted) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("permission errors must not retry, got %d attempts", calls)
	}
}

func TestLimiterUnregisteredAdapterPassesThrough(t *testing.T) {
	limiter := testLimiter(1)

	start := time.Now()
	err := limiter.Do(context.Background(), "unknown", func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("unregistered adapter should not throttle, took %v", elapsed)
	}
}

func TestLimiterWaitHonorsCancellation(t *testing.T) {
	limiter := testLimiter(1)
	limiter.Register("spotify", 60)

	// drain the initial burst so the next wait actually blocks
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		if err := limiter.Wait(ctx, "spotify"); err != nil {
			break
		}
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Wait(cancelled, "spotify"); !errors.Is(err, shared.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func TestQueueRunsJobs(t *testing.T) {
	queue := NewQueue(2, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	var done sync.WaitGroup
	var ran atomic.Int32

	for i := 0; i < 5; i++ {
		done.Add(1)
		_, err := queue.Submit(&Job{
			ID:      fmt.Sprintf("job-%d", i),
			Adapter: "spotify",
			Run: func(ctx context.Context) error {
				ran.Add(1)
				return nil
			},
			Done: func(err error) { done.Done() },
		})
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	done.Wait()
	queue.Shutdown()

	if ran.Load() != 5 {
		t.Errorf("expected 5 jobs to run, got %d", ran.Load())
	}
}

func TestQueueBoundsPerAdapterConcurrency(t *testing.T) {
	queue := NewQueue(4, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	var done sync.WaitGroup
	var inFlight, peak atomic.Int32

	for i := 0; i < 6; i++ {
		done.Add(1)
		queue.Submit(&Job{
			ID:      fmt.Sprintf("job-%d", i),
			Adapter: "spotify",
			Run: func(ctx context.Context) error {
				now := inFlight.Add(1)
				for {
					current := peak.Load()
					if now <= current || peak.CompareAndSwap(current, now) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			},
			Done: func(err error) { done.Done() },
		})
	}

	done.Wait()
	queue.Shutdown()

	if peak.Load() != 1 {
		t.Errorf("per-adapter bound violated: peak concurrency %d", peak.Load())
	}
}

func TestQueueDistinctAdaptersRunConcurrently(t *testing.T) {
	queue := NewQueue(2, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	release := make(chan struct{})
	started := make(chan string, 2)
	var done sync.WaitGroup

	for _, adapter := range []string{"spotify", "youtube"} {
		adapter := adapter
		done.Add(1)
		queue.Submit(&Job{
			ID:      "job-" + adapter,
			Adapter: adapter,
			Run: func(ctx context.Context) error {
				started <- adapter
				<-release
				return nil
			},
			Done: func(err error) { done.Done() },
		})
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("jobs on distinct adapters should run concurrently")
		}
	}
	close(release)
	done.Wait()
	queue.Shutdown()
}

func TestQueuePriorityJumpsQueue(t *testing.T) {
	queue := NewQueue(1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var order []string
	var done sync.WaitGroup

	release := make(chan struct{})
	done.Add(1)
	queue.Submit(&Job{
		ID:      "blocker",
		Adapter: "spotify",
		Run: func(ctx context.Context) error {
			<-release
			return nil
		},
		Done: func(err error) { done.Done() },
	})

	record := func(id string, priority bool) {
		done.Add(1)
		queue.Submit(&Job{
			ID:       id,
			Adapter:  "spotify",
			Priority: priority,
			Run: func(ctx context.Context) error {
				mu.Lock()
				order = append(order, id)
				mu.Unlock()
				return nil
			},
			Done: func(err error) { done.Done() },
		})
	}

	record("normal", false)
	record("urgent", true)

	queue.Start(ctx)
	close(release)
	done.Wait()
	queue.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "urgent" {
		t.Errorf("priority job should run first, got %v", order)
	}
}

func TestQueueCancelPendingJob(t *testing.T) {
	queue := NewQueue(1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)

	release := make(chan struct{})
	var done sync.WaitGroup
	done.Add(1)
	queue.Submit(&Job{
		ID:      "blocker",
		Adapter: "spotify",
		Run: func(ctx context.Context) error {
			<-release
			return nil
		},
		Done: func(err error) { done.Done() },
	})

	cancelled := make(chan error, 1)
	queue.Submit(&Job{
		ID:      "victim",
		Adapter: "spotify",
		Run:     func(ctx context.Context) error { return nil },
		Done:    func(err error) { cancelled <- err },
	})

	if !queue.Cancel("victim") {
		t.Fatal("expected Cancel to find the pending job")
	}
	select {
	case err := <-cancelled:
		if !errors.Is(err, shared.ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled job's Done callback never fired")
	}

	if queue.Cancel("unknown") {
		t.Error("cancelling an unknown job should report false")
	}

	close(release)
	done.Wait()
	queue.Shutdown()
}

func TestQueueShutdownRejectsSubmissions(t *testing.T) {
	queue := NewQueue(1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	queue.Shutdown()

	_, err := queue.Submit(&Job{
		ID:      "late",
		Adapter: "spotify",
		Run:     func(ctx context.Context) error { return nil },
	})
	if !errors.Is(err, shared.ErrStopped) {
		t.Errorf("expected ErrStopped after shutdown, got %v", err)
	}
}
