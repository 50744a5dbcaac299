package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy controls retry behavior. It is read-only during execution.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Classify decides the fate of each failure. Nil means Classify.
	Classify func(error) ErrorClass
	// OnRetry is called before each backoff wait.
	OnRetry func(RetryEvent)
}

// RetryEvent describes one scheduled retry.
type RetryEvent struct {
	Attempt int
	Delay   time.Duration
	Err     error
}

// DefaultRetryPolicy is suitable for most remote calls.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:   3,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
}

// Backoff returns min(InitialDelay * 2^attempt, MaxDelay). Attempt is zero-based.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.InitialDelay
	for range attempt {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p RetryPolicy) classify(err error) ErrorClass {
	if p.Classify != nil {
		return p.Classify(err)
	}
	return Classify(err)
}

// RetryDo retries fn up to MaxRetries times with exponential backoff.
// Retries only retryable errors; returns immediately on fatal and reauth
// errors or context cancellation. The last error is never swallowed.
func RetryDo[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if p.classify(err) != Retryable {
			return zero, err
		}

		if attempt < p.MaxRetries {
			delay := p.Backoff(attempt)
			slog.Warn("retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", p.MaxRetries),
				slog.Duration("delay", delay),
				slog.Any("error", err))
			metrics.Retries.Add(1)
			if p.OnRetry != nil {
				p.OnRetry(RetryEvent{Attempt: attempt + 1, Delay: delay, Err: err})
			}
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return zero, ctx.Err()
			}
		}
	}
	return zero, lastErr
}

// Reauthenticator refreshes the credentials used by an operation.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context) error
}

// Executor runs operations under a retry policy. If Reauth is set, a
// reauth-class failure refreshes the session once and restarts the retry
// loop from the top. A second expiry inside the same call is fatal.
type Executor struct {
	Policy RetryPolicy
	Reauth Reauthenticator
}

// Execute runs op through ex. It is a function rather than a method because
// methods cannot take type parameters.
func Execute[T any](ctx context.Context, ex Executor, op func(context.Context) (T, error)) (T, error) {
	res, err := RetryDo(ctx, ex.Policy, op)
	if err == nil || ex.Policy.classify(err) != Reauth {
		return res, err
	}

	var zero T
	if ex.Reauth == nil {
		return zero, fmt.Errorf("%w: %w", ErrReauthExhausted, err)
	}

	slog.Info("session expired, re-authenticating", slog.Any("error", err))
	metrics.Reauths.Add(1)
	if rerr := ex.Reauth.Reauthenticate(ctx); rerr != nil {
		if errors.Is(rerr, ErrLoginFailed) || errors.Is(rerr, ErrReauthExhausted) {
			return zero, rerr
		}
		return zero, fmt.Errorf("%w: %w", ErrLoginFailed, rerr)
	}

	res, err = RetryDo(ctx, ex.Policy, op)
	if err != nil && ex.Policy.classify(err) == Reauth {
		return zero, fmt.Errorf("%w: %w", ErrReauthExhausted, err)
	}
	return res, err
}
