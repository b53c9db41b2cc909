package spaced_repetition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyRun(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Microsecond}

	calls := 0
	err := policy.Run(context.Background(), func() error {
		calls++
		if calls < 3 {
			return ErrConflict
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = policy.Run(context.Background(), func() error {
		calls++
		return ErrConflict
	})
	assert.ErrorIs(t, err, ErrConflictExhausted)
	assert.Equal(t, 3, calls)

	boom := errors.New("disk on fire")
	calls = 0
	err = policy.Run(context.Background(), func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "non-conflict errors are not retried")
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := policy.Run(ctx, func() error {
		calls++
		cancel()
		return ErrConflict
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
