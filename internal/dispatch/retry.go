package dispatch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the send attempts for one queue entry within a tick.
// Each retry goes through a different mailbox; an operation marks an error
// as final with backoff.Permanent.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2}
}

// Do runs op until it succeeds, returns a permanent error, or the attempts
// are used up. op receives the 1-based attempt number.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error) error {
	attempts := max(p.MaxAttempts, 1)

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(attempts-1))

	n := 0
	operation := func() error {
		n++
		return op(n)
	}
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
