// Package dispatcher drives bounded-concurrency batch execution over a
// CredentialPool and RateBudget: it owns the credential lease lifecycle
// around each unit of work and retries transient failures with backoff,
// grounded on the teacher's webhooks.Dispatcher worker-pool-over-channel
// shape.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ocx/inkgrade/internal/apperr"
	"github.com/ocx/inkgrade/internal/credentialpool"
	"github.com/ocx/inkgrade/internal/metrics"
	"github.com/ocx/inkgrade/internal/ratebudget"
)

// TaskRunner executes one unit of work using a leased credential.
type TaskRunner[Item any, Result any] func(ctx context.Context, item Item, cred *credentialpool.Credential) (Result, error)

type Dispatcher struct {
	Pool          credentialpool.Pool
	Budget        ratebudget.Budget
	MaxConcurrent int
	RetryCount    int
}

func New(pool credentialpool.Pool, budget ratebudget.Budget, maxConcurrent, retryCount int) *Dispatcher {
	return &Dispatcher{Pool: pool, Budget: budget, MaxConcurrent: maxConcurrent, RetryCount: retryCount}
}

// DispatchAll runs runner(item, credential) for each item concurrently.
// Result order matches input order; a permanently failed entry appears
// as the zero value of Result with its error recorded at the same index.
func DispatchAll[Item any, Result any](ctx context.Context, d *Dispatcher, items []Item, runner TaskRunner[Item, Result]) ([]Result, []error) {
	results := make([]Result, len(items))
	errs := make([]error, len(items))

	concurrency := d.MaxConcurrent
	if available := d.Pool.AvailableCount(); available > 0 && available < concurrency {
		concurrency = available
	}
	if len(items) < concurrency {
		concurrency = len(items)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var completed int64
	var mu sync.Mutex

	for i, item := range items {
		i, item := i, item
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := executeWithRetry(ctx, d, item, runner)
			results[i] = res
			errs[i] = err

			mu.Lock()
			completed++
			n := completed
			mu.Unlock()
			if n%5 == 0 {
				slog.Info("dispatcher: progress", "completed", n, "total", len(items))
			}
		}()
	}
	wg.Wait()
	slog.Info("dispatcher: batch complete", "completed", len(items))

	return results, errs
}

// executeWithRetry runs up to RetryCount+1 attempts (default 4).
func executeWithRetry[Item any, Result any](ctx context.Context, d *Dispatcher, item Item, runner TaskRunner[Item, Result]) (Result, error) {
	var zero Result
	maxAttempts := d.RetryCount + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cred, err := d.borrowCredentialWithRate(ctx)
		if err != nil {
			lastErr = err
			metrics.DispatcherRetries.WithLabelValues("exhausted").Inc()
			if !sleepCtx(ctx, time.Duration(2000*attempt)*time.Millisecond) {
				return zero, ctx.Err()
			}
			continue
		}

		res, runErr := runner(ctx, item, cred)
		if runErr == nil {
			d.Pool.Return(cred)
			return res, nil
		}

		d.Pool.MarkFailed(cred)
		lastErr = runErr
		metrics.DispatcherRetries.WithLabelValues("upstream_error").Inc()
		if !sleepCtx(ctx, time.Duration(1000*attempt)*time.Millisecond) {
			return zero, ctx.Err()
		}
	}

	return zero, apperr.AIError("重试次数耗尽", lastErr)
}

// borrowCredentialWithRate borrows a credential and admits it against the
// rate budget, retrying the borrow up to 3 times if admission is denied.
func (d *Dispatcher) borrowCredentialWithRate(ctx context.Context) (*credentialpool.Credential, error) {
	const subAttempts = 3
	for i := 0; i < subAttempts; i++ {
		cred, err := d.Pool.Borrow(ctx)
		if err != nil {
			return nil, apperr.Exhausted()
		}
		if d.Budget.TryAcquire(cred.Fingerprint) {
			return cred, nil
		}
		d.Pool.Return(cred)
		metrics.RateBudgetRejections.Inc()
		if !sleepCtx(ctx, time.Second) {
			return nil, ctx.Err()
		}
	}
	return nil, apperr.Exhausted()
}

// sleepCtx sleeps for d unless ctx is cancelled first; returns false on
// cancellation so callers can bail out instead of sleeping needlessly.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
