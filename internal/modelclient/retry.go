package modelclient

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
)

// RetryPolicy mirrors spec.md §4.A's retry table: a base delay, doubled each
// attempt with jitter, capped at maxAttempts, abandoned once the task
// deadline has passed. It does not estimate whether another round trip would
// finish before the deadline.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// callWithRetry runs fn, retrying transient errors (see retryable) with
// exponential backoff and jitter. It gives up immediately on a permanent
// error, once MaxAttempts is exhausted, or once ctx's deadline has passed —
// checked before each attempt and while waiting between attempts — in that
// last case it returns a domain.ErrTimeout PipelineError. An attempt that
// starts before the deadline is made even if it cannot finish in time; ctx
// cuts it short.
func callWithRetry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	deadline, hasDeadline := ctx.Deadline()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.25
	bo.MaxElapsedTime = 0 // attempt count and deadline are enforced explicitly below
	withCtx := backoff.WithContext(bo, ctx)

	attempt := 0
	var result T
	var lastErr error

	op := func() error {
		attempt++
		if hasDeadline {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				lastErr = domain.NewPipelineError(domain.ErrTimeout, "deadline exceeded before retry attempt", lastErr)
				return backoff.Permanent(lastErr)
			}
		}

		v, err := fn(ctx)
		if err == nil {
			result = v
			return nil
		}
		lastErr = err
		if attempt >= policy.MaxAttempts || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, withCtx); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return zero, perm.Err
		}
		if errors.Is(err, context.DeadlineExceeded) && domain.CodeOf(lastErr) != domain.ErrTimeout {
			return zero, domain.NewPipelineError(domain.ErrTimeout, "deadline exceeded while retrying", lastErr)
		}
		return zero, lastErr
	}
	return result, nil
}
