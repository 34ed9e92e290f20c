package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds an operation: at most Retries extra attempts, exponential
// backoff starting at Backoff, and a per-attempt Timeout when positive.
type Policy struct {
	Retries int
	Backoff time.Duration
	Timeout time.Duration
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the retry budget
// is spent or ctx is done. The last error is returned unwrapped.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	if p.Backoff > 0 {
		exp.InitialInterval = p.Backoff
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := p.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)

	return backoff.Retry(func() error {
		attemptCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		err := op(attemptCtx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(errors.Join(err, ctx.Err()))
		}
		return err
	}, b)
}
