// Package retry repeats fallible calls with a backoff between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

const defaultDelay = 100 * time.Millisecond

// Backoff returns the pause after the given failed attempt, counted from 1.
type Backoff func(attempt int) time.Duration

type ShouldRetry func(error) bool

// OnRetry observes a failed attempt before the pause.
type OnRetry func(attempt int, err error, wait time.Duration)

// Policy configures [Do]. The zero value runs a call once.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	ShouldRetry ShouldRetry
	OnRetry     OnRetry
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Backoff == nil {
		p.Backoff = ExponentialBackoff(defaultDelay)
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = func(error) bool { return true }
	}
	if p.OnRetry == nil {
		p.OnRetry = func(int, error, time.Duration) {}
	}
	return p
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }

func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth another attempt regardless of
// ShouldRetry. [Do] returns the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// ExponentialBackoff doubles delay per attempt and adds up to half of it
// as jitter.
func ExponentialBackoff(delay time.Duration) Backoff {
	return func(attempt int) time.Duration {
		base := time.Duration(1<<attempt) * delay
		jitter := time.Duration(rand.Int64N(int64(base/2) + 1))
		return base + jitter
	}
}

func LinearBackoff(delay time.Duration) Backoff {
	return func(int) time.Duration {
		return delay
	}
}

// Do calls fn until it succeeds, the error is permanent or rejected by
// ShouldRetry, attempts run out or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func() error) error {
	_, err := DoWithResult(ctx, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func DoWithResult[T any](
	ctx context.Context, p Policy, fn func() (T, error),
) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	p = p.withDefaults()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		var perm permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if attempt == p.MaxAttempts || !p.ShouldRetry(err) {
			return zero, err
		}

		wait := p.Backoff(attempt)
		p.OnRetry(attempt, err, wait)

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%w: %w", ctx.Err(), err)
		case <-timer.C:
		}
	}
}
