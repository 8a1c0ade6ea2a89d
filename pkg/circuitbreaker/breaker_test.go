package circuitbreaker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labor/internal/config"
	apperrors "labor/pkg/errors"
)

var tripFast = config.CircuitBreakerConfig{Enabled: true, MaxRequests: 1, FailureRatio: 0.5, MinRequests: 2}

func TestNew_DisabledPassesThrough(t *testing.T) {
	b := New("test", config.CircuitBreakerConfig{})
	require.Nil(t, b)

	got, err := Do(context.Background(), b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, "disabled", b.StateName())
}

func TestDo_InfrastructureErrorsTrip(t *testing.T) {
	b := New("test-trip", tripFast)
	calls := 0
	fail := func() (string, error) {
		calls++
		return "", errors.New("connection refused")
	}

	for i := 0; i < 2; i++ {
		_, _ = Do(context.Background(), b, fail)
	}
	assert.Equal(t, "open", b.StateName())

	_, err := Do(context.Background(), b, fail)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrServiceUnavailable))
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, 2, calls)
}

func TestDo_DomainErrorsKeepBreakerClosed(t *testing.T) {
	b := New("test-domain", tripFast)

	for i := 0; i < 5; i++ {
		got, err := Do(context.Background(), b, func() (*struct{}, error) {
			return nil, apperrors.ErrNotFound
		})
		assert.Nil(t, got)
		assert.True(t, apperrors.IsNotFound(err))
	}
	assert.Equal(t, "closed", b.StateName())
}

func TestDo_CanceledContext(t *testing.T) {
	b := New("test-cancel", tripFast)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := Do(ctx, b, func() (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
