package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy(t *testing.T) {
	retryable := errors.New("connection reset")
	final := errors.New("550 rejected")

	tests := []struct {
		name      string
		policy    RetryPolicy
		results   []error
		wantCalls int
		wantErr   error
	}{
		{name: "first attempt succeeds", policy: DefaultRetryPolicy(), results: []error{nil}, wantCalls: 1},
		{name: "retry then succeed", policy: DefaultRetryPolicy(), results: []error{retryable, nil}, wantCalls: 2},
		{name: "attempts exhausted", policy: DefaultRetryPolicy(), results: []error{retryable, retryable, nil}, wantCalls: 2, wantErr: retryable},
		{name: "permanent stops", policy: RetryPolicy{MaxAttempts: 5}, results: []error{backoff.Permanent(final), nil}, wantCalls: 1, wantErr: final},
		{name: "zero attempts means one", policy: RetryPolicy{}, results: []error{retryable, nil}, wantCalls: 1, wantErr: retryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := tt.policy.Do(context.Background(), func(attempt int) error {
				calls++
				assert.Equal(t, calls, attempt)
				return tt.results[attempt-1]
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
