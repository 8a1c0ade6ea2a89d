package owner

import (
	"context"

	"labor/internal/config"
	"labor/pkg/circuitbreaker"
)

type CircuitBreakerDirectory struct {
	next Directory
	cb   *circuitbreaker.Breaker
}

func NewCircuitBreakerDirectory(next Directory, cfg config.CircuitBreakerConfig) *CircuitBreakerDirectory {
	return &CircuitBreakerDirectory{
		next: next,
		cb:   circuitbreaker.New("owner-directory", cfg),
	}
}

func (d *CircuitBreakerDirectory) LookupOwner(ctx context.Context, bsnr, lanr string) (*Owner, error) {
	return circuitbreaker.Do(ctx, d.cb, func() (*Owner, error) {
		return d.next.LookupOwner(ctx, bsnr, lanr)
	})
}

func (d *CircuitBreakerDirectory) GetOwner(ctx context.Context, id string) (*Owner, error) {
	return circuitbreaker.Do(ctx, d.cb, func() (*Owner, error) {
		return d.next.GetOwner(ctx, id)
	})
}

func (d *CircuitBreakerDirectory) State() string {
	return d.cb.StateName()
}
