// Package retry runs operations under an exponential backoff policy and computes the
// deterministic schedule persisted for quarantine entries.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

// IsPermanent reports whether err is marked fatal or declares itself non-retryable.
func IsPermanent(err error) bool {
	var f FatalError
	if errors.As(err, &f) && f.IsFatal() {
		return true
	}
	var r RetryableError
	return errors.As(err, &r) && !r.IsRetryable()
}

// Policy bounds a retry loop. MaxElapsedTime of zero means no wall clock limit.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		MaxElapsedTime:  5 * time.Minute,
	}
}

// Delay is InitialInterval * Multiplier^n capped at MaxInterval. It has no jitter so
// persisted schedules are reproducible.
func (p Policy) Delay(n int) time.Duration {
	d := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(n))
	if p.MaxInterval > 0 && d > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	return time.Duration(d)
}

// NextAttemptAt schedules the attempt after completedAttempts failures. The first retry
// is one InitialInterval after the original failure.
func (p Policy) NextAttemptAt(now time.Time, completedAttempts int) time.Time {
	return now.Add(p.Delay(max(completedAttempts, 0)))
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = p.MaxElapsedTime
	return backoff.WithMaxRetries(backoff.WithContext(exp, ctx), uint64(p.MaxAttempts-1))
}

func Retry(ctx context.Context, policy Policy, fn func() error) error {
	return RetryWithCallback(ctx, policy, fn, nil)
}

// RetryWithCallback is Retry with a hook invoked before every retry. Permanent errors
// end the loop without calling onRetry.
func RetryWithCallback(ctx context.Context, policy Policy, fn func() error, onRetry func(attempt int, err error, nextDelay time.Duration)) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return backoff.Permanent(err)
		}
		if onRetry != nil && attempt < policy.MaxAttempts {
			onRetry(attempt, err, policy.Delay(attempt))
		}
		return err
	}, policy.backOff(ctx))
}
