// Package circuitbreaker guards calls to the durable stores with sony/gobreaker and
// exports the breaker state as Prometheus metrics.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"labor/internal/config"
	apperrors "labor/pkg/errors"
	"labor/pkg/metrics"
)

const (
	defaultMaxRequests  = 3
	defaultInterval     = time.Minute
	defaultTimeout      = time.Minute
	defaultMinRequests  = 3
	defaultFailureRatio = 0.5
)

// Breaker wraps one gobreaker.CircuitBreaker. A nil *Breaker is valid and passes every
// call straight through.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New returns nil when cfg is disabled. Zero values in cfg fall back to the package
// defaults.
func New(name string, cfg config.CircuitBreakerConfig) *Breaker {
	if !cfg.Enabled {
		return nil
	}

	minRequests, ratio := uint32(defaultMinRequests), defaultFailureRatio
	if cfg.MinRequests > 0 && cfg.FailureRatio > 0 {
		minRequests, ratio = cfg.MinRequests, cfg.FailureRatio
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: orDefault(cfg.MaxRequests, defaultMaxRequests),
		Interval:    orDefault(cfg.Interval, defaultInterval),
		Timeout:     orDefault(cfg.Timeout, defaultTimeout),
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= minRequests && float64(c.TotalFailures)/float64(c.Requests) >= ratio
		},
		IsSuccessful: healthy,
		OnStateChange: func(name string, _, to gobreaker.State) {
			setStateGauge(name, to)
		},
	})
	setStateGauge(name, cb.State())
	return &Breaker{cb: cb}
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// healthy reports whether err says nothing about the backend. Misses, conflicts,
// validation failures and caller cancellations do not count against the breaker.
func healthy(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		apperrors.IsNotFound(err) ||
		apperrors.IsConflict(err) ||
		apperrors.IsValidation(err)
}

func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Do runs fn through b. Calls rejected by an open breaker fail with
// ErrServiceUnavailable, which callers treat as transient.
func Do[T any](ctx context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	b.count(err)

	if rejected(err) {
		return zero, apperrors.ErrServiceUnavailable.WithCause(fmt.Errorf("circuit breaker %s: %w", b.cb.Name(), err))
	}
	// Domain errors may still come with a typed result, e.g. a nil pointer.
	typed, ok := out.(T)
	if !ok && out != nil && err == nil {
		return zero, fmt.Errorf("circuit breaker %s: unexpected result type %T", b.cb.Name(), out)
	}
	return typed, err
}

// StateName is "disabled" on a nil breaker.
func (b *Breaker) StateName() string {
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

func (b *Breaker) count(err error) {
	name := b.cb.Name()
	metrics.CircuitBreakerRequests.WithLabelValues(name, b.cb.State().String()).Inc()
	if rejected(err) || !healthy(err) {
		metrics.CircuitBreakerFailures.WithLabelValues(name).Inc()
	}
}

// setStateGauge exports closed=0, half-open=1, open=2.
func setStateGauge(name string, state gobreaker.State) {
	v := map[gobreaker.State]float64{
		gobreaker.StateClosed:   0,
		gobreaker.StateHalfOpen: 1,
		gobreaker.StateOpen:     2,
	}[state]
	metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
}
