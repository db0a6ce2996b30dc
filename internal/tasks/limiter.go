package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/desertthunder/syncta/internal/shared"
	"golang.org/x/time/rate"
)

// Limiter maintains one token bucket per adapter and applies the retry
// policy to remote calls. Rate-limited and transient failures retry with
// exponential backoff and jitter; authentication errors never retry.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter

	maxAttempts int
	baseDelay   time.Duration
	jitterRatio float64
}

// NewLimiter creates a Limiter with the configured retry policy.
func NewLimiter(cfg shared.SyncConfig) *Limiter {
	return &Limiter{
		buckets:     make(map[string]*rate.Limiter),
		maxAttempts: cfg.RetryMaxAttempts,
		baseDelay:   time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond,
		jitterRatio: cfg.RetryJitterRatio,
	}
}

// Register declares an adapter's rate budget. Calls for unregistered
// adapters pass through unthrottled.
func (l *Limiter) Register(adapter string, budgetPerMinute int) {
	if budgetPerMinute <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[adapter] = rate.NewLimiter(rate.Limit(float64(budgetPerMinute)/60.0), budgetPerMinute/10+1)
}

// Wait blocks until a token is available for the adapter or the context
// is cancelled. Cancellation reaches a waiting caller within one
// token-acquisition cycle.
func (l *Limiter) Wait(ctx context.Context, adapter string) error {
	l.mu.Lock()
	bucket := l.buckets[adapter]
	l.mu.Unlock()

	if bucket == nil {
		return ctx.Err()
	}
	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCancelled, err)
	}
	return nil
}

// Do runs fn with token acquisition and retry. Each attempt waits for a
// token first; retryable failures back off exponentially with jitter,
// capped at the configured attempt budget.
func (l *Limiter) Do(ctx context.Context, adapter string, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.baseDelay
	policy.RandomizationFactor = l.jitterRatio
	policy.MaxElapsedTime = 0

	attempts := uint64(l.maxAttempts)
	if attempts == 0 {
		attempts = 1
	}

	operation := func() error {
		if err := l.Wait(ctx, adapter); err != nil {
			return backoff.Permanent(err)
		}
		if err := fn(ctx); err != nil {
			if shared.Retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, attempts-1), ctx))
}
