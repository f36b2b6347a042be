package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
)

// ExhaustedRetriesError is returned when every attempt failed. Err is the
// error of the final attempt.
type ExhaustedRetriesError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("completion failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Err }

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryingClient wraps a Provider with bounded, linear-backoff retry on
// opening the stream. Every transport error is treated the same way.
type RetryingClient struct {
	inner       Provider
	maxAttempts int
	baseDelay   time.Duration
	sleep       SleepFunc
	logger      *slog.Logger
}

// RetryOption customises a RetryingClient.
type RetryOption func(*RetryingClient)

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn SleepFunc) RetryOption {
	return func(c *RetryingClient) { c.sleep = fn }
}

// WithRetryLogger sets the logger used for attempt failures.
func WithRetryLogger(l *slog.Logger) RetryOption {
	return func(c *RetryingClient) { c.logger = l }
}

// NewRetryingClient creates a RetryingClient.
// maxAttempts <= 0 falls back to DefaultMaxAttempts; baseDelay < 0 to DefaultBaseDelay.
func NewRetryingClient(inner Provider, maxAttempts int, baseDelay time.Duration, opts ...RetryOption) *RetryingClient {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay < 0 {
		baseDelay = DefaultBaseDelay
	}
	c := &RetryingClient{
		inner:       inner,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepContext,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *RetryingClient) DefaultModel() string { return c.inner.DefaultModel() }

// MaxAttempts returns the configured attempt bound.
func (c *RetryingClient) MaxAttempts() int { return c.maxAttempts }

// Stream opens a completion stream, retrying up to MaxAttempts times.
// After failed attempt i it waits baseDelay*i before the next one.
func (c *RetryingClient) Stream(ctx context.Context, req Request) (DeltaStream, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s, err := c.inner.Stream(ctx, req)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("provider: retry succeeded", "attempt", attempt)
			}
			return s, nil
		}
		lastErr = err

		c.logger.Warn("provider: attempt failed",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"err", err,
		)

		if attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, c.baseDelay*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}

	return nil, &ExhaustedRetriesError{Attempts: c.maxAttempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
