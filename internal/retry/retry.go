// Package retry implements the retry policy shared by token refresh and
// chunk upload: exponential backoff with jitter up to a capped maximum,
// bounded by a configured attempt budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Operation kinds, used for logging and error reporting.
const (
	KindInitiation   = "upload-initiation"
	KindChunkUpload  = "chunk-upload"
	KindTokenRefresh = "token-refresh"
)

// Policy describes a backoff schedule and attempt budget.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration
	// Multiplier grows the delay each retry.
	Multiplier float64
	// JitterFraction is the fraction of the delay randomized (±).
	JitterFraction float64
}

// DefaultPolicy matches the upload retry schedule: up to 10 retries,
// 1s doubling to a 60s cap, ±25% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     10,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// RefreshPolicy is the tighter schedule for token refresh. An exhausted
// refresh falls back to full re-authorization, so the budget is small.
func RefreshPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// Decision is the controller's answer for one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Decide returns the decision for the given zero-based count of failures so
// far: retry with a backoff delay, or give up once the budget is spent.
func (p Policy) Decide(failures int) Decision {
	if failures >= p.MaxRetries {
		return Decision{}
	}

	return Decision{Retry: true, Delay: p.backoff(failures)}
}

// backoff computes the exponential delay with jitter for the nth retry.
func (p Policy) backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}

	jitter := d * p.JitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	d += jitter

	return time.Duration(d)
}

// ExhaustedError reports a retry budget spent without success.
type ExhaustedError struct {
	Kind     string
	Attempts int
	Err      error // last error observed
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: %s failed after %d attempts: %v", e.Kind, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Controller runs operations under a Policy. It is consulted by both the
// authorizer (token refresh) and the transfer session (initiation, chunks);
// each call site constructs one per operation kind.
type Controller struct {
	policy Policy
	kind   string
	logger *slog.Logger

	// sleepFunc waits between retries. Tests override this to avoid
	// real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates a Controller for the given operation kind.
func New(kind string, policy Policy, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		policy:    policy,
		kind:      kind,
		logger:    logger,
		sleepFunc: Sleep,
	}
}

// SetSleepFunc replaces the delay function. Intended for tests.
func (c *Controller) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	c.sleepFunc = fn
}

// Do runs fn, retrying per the policy while retryable reports the error as
// transient. Non-retryable errors propagate unmodified. A spent budget
// returns an *ExhaustedError wrapping the last failure.
func (c *Controller) Do(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var lastErr error

	for failures := 0; ; failures++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		// Context cancellation is never retried.
		if ctx.Err() != nil {
			return fmt.Errorf("retry: %s canceled: %w", c.kind, ctx.Err())
		}

		if !retryable(err) {
			return err
		}

		lastErr = err

		d := c.policy.Decide(failures)
		if !d.Retry {
			return &ExhaustedError{Kind: c.kind, Attempts: failures + 1, Err: lastErr}
		}

		c.logger.Warn("retrying after transient error",
			slog.String("operation", c.kind),
			slog.Int("attempt", failures+1),
			slog.Duration("backoff", d.Delay),
			slog.String("error", err.Error()),
		)

		if sleepErr := c.sleepFunc(ctx, d.Delay); sleepErr != nil {
			return fmt.Errorf("retry: %s canceled: %w", c.kind, sleepErr)
		}
	}
}

// Sleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Controller.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsExhausted reports whether err is a spent retry budget.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}
