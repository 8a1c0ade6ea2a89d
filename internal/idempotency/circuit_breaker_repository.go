package idempotency

import (
	"context"
	"time"

	"labor/internal/config"
	"labor/internal/message"
	"labor/pkg/circuitbreaker"
)

// CircuitBreakerRepository fails fast while the raw message store is unhealthy.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Breaker
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.New("postgres-raw-messages", cfg),
	}
}

func (r *CircuitBreakerRepository) Insert(ctx context.Context, raw *message.Raw) (bool, error) {
	return circuitbreaker.Do(ctx, r.cb, func() (bool, error) {
		return r.repo.Insert(ctx, raw)
	})
}

func (r *CircuitBreakerRepository) GetByKey(ctx context.Context, key string) (*message.Raw, error) {
	return circuitbreaker.Do(ctx, r.cb, func() (*message.Raw, error) {
		return r.repo.GetByKey(ctx, key)
	})
}

func (r *CircuitBreakerRepository) GetByID(ctx context.Context, id string) (*message.Raw, error) {
	return circuitbreaker.Do(ctx, r.cb, func() (*message.Raw, error) {
		return r.repo.GetByID(ctx, id)
	})
}

func (r *CircuitBreakerRepository) Reclaim(ctx context.Context, key string, staleBefore, now time.Time) (*message.Raw, error) {
	return circuitbreaker.Do(ctx, r.cb, func() (*message.Raw, error) {
		return r.repo.Reclaim(ctx, key, staleBefore, now)
	})
}

func (r *CircuitBreakerRepository) Release(ctx context.Context, id string) error {
	_, err := circuitbreaker.Do(ctx, r.cb, func() (struct{}, error) {
		return struct{}{}, r.repo.Release(ctx, id)
	})
	return err
}

func (r *CircuitBreakerRepository) State() string {
	return r.cb.StateName()
}
