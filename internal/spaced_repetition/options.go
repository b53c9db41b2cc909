package spaced_repetition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

type options struct {
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Scheduler, DueSetQuery or StatsAggregator
type Option func(*options)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used for store failures
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// instant returns the current time as stored: UTC with microsecond precision,
// which is what postgres keeps, so stored and returned timestamps compare equal.
func (o options) instant() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}

// storeError classifies a failure coming back from a ProgressStore.
// Known sentinels and context errors pass through, anything else becomes ErrStoreUnavailable.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrConflictExhausted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("failed to %s: %w", op, err)
	default:
		return fmt.Errorf("failed to %s: %w: %v", op, ErrStoreUnavailable, err)
	}
}
