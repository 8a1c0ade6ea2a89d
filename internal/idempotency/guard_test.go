package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labor/internal/config"
	"labor/internal/logger"
	"labor/internal/message"
	apperrors "labor/pkg/errors"
	"labor/pkg/models"
)

type memoryRepository struct {
	mu        sync.Mutex
	byKey     map[string]*message.Raw
	insertErr error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{byKey: make(map[string]*message.Raw)}
}

func (r *memoryRepository) Insert(_ context.Context, raw *message.Raw) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return false, r.insertErr
	}
	if _, ok := r.byKey[raw.IdempotencyKey]; ok {
		return false, nil
	}
	stored := *raw
	r.byKey[raw.IdempotencyKey] = &stored
	return true, nil
}

func (r *memoryRepository) GetByKey(_ context.Context, key string) (*message.Raw, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.byKey[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := *raw
	return &out, nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*message.Raw, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, raw := range r.byKey {
		if raw.ID == id {
			out := *raw
			return &out, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memoryRepository) Reclaim(_ context.Context, key string, staleBefore, now time.Time) (*message.Raw, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.byKey[key]
	if !ok {
		return nil, nil
	}
	stale := raw.Status == message.StatusReceived && raw.ClaimedAt.Before(staleBefore)
	if raw.Status != message.StatusReleased && !stale {
		return nil, nil
	}
	raw.Status = message.StatusReceived
	raw.ClaimedAt = now
	out := *raw
	return &out, nil
}

func (r *memoryRepository) Release(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, raw := range r.byKey {
		if raw.ID == id && raw.Status == message.StatusReceived {
			raw.Status = message.StatusReleased
		}
	}
	return nil
}

func (r *memoryRepository) setStatus(key string, status message.Status, resultID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[key].Status = status
	if resultID != "" {
		r.byKey[key].ResultID = &resultID
	}
}

func newTestGuard(repo Repository) *Guard {
	return NewGuard(repo, config.IngestionConfig{
		HashAlgorithm: "sha256",
		ClaimTTL:      time.Minute,
	}, logger.NopLogger())
}

func delivery(payload string) *models.Delivery {
	return models.NewDeliveryBuilder(models.SourceHTTP).WithPayload([]byte(payload)).Build()
}

func TestGuard_Claim_FirstDeliveryAcquires(t *testing.T) {
	repo := newMemoryRepository()
	g := newTestGuard(repo)

	claim, err := g.Claim(context.Background(), delivery("01380008230"))
	require.NoError(t, err)

	assert.True(t, claim.Acquired)
	assert.False(t, claim.Reclaimed)
	assert.Equal(t, message.StatusReceived, claim.Raw.Status)
	assert.Contains(t, claim.Raw.IdempotencyKey, "sha256:")
}

func TestGuard_Claim_DuplicateReturnsOriginal(t *testing.T) {
	repo := newMemoryRepository()
	g := newTestGuard(repo)
	ctx := context.Background()

	first, err := g.Claim(ctx, delivery("01380008230"))
	require.NoError(t, err)
	repo.setStatus(first.Raw.IdempotencyKey, message.StatusStored, "result-1")

	second, err := g.Claim(ctx, delivery("01380008230"))
	require.NoError(t, err)

	assert.False(t, second.Acquired)
	assert.Equal(t, first.Raw.ID, second.Raw.ID)
	require.NotNil(t, second.Raw.ResultID)
	assert.Equal(t, "result-1", *second.Raw.ResultID)
}

func TestGuard_Claim_ExplicitKeyWins(t *testing.T) {
	repo := newMemoryRepository()
	g := newTestGuard(repo)
	ctx := context.Background()

	d1 := models.NewDeliveryBuilder(models.SourceKafka).WithIdempotencyKey("k-1").WithPayload([]byte("a")).Build()
	d2 := models.NewDeliveryBuilder(models.SourceKafka).WithIdempotencyKey("k-1").WithPayload([]byte("b")).Build()

	first, err := g.Claim(ctx, d1)
	require.NoError(t, err)
	second, err := g.Claim(ctx, d2)
	require.NoError(t, err)

	assert.True(t, first.Acquired)
	assert.False(t, second.Acquired)
	assert.Equal(t, "k-1", second.Raw.IdempotencyKey)
}

func TestGuard_Claim_ReleasedClaimIsReclaimed(t *testing.T) {
	repo := newMemoryRepository()
	g := newTestGuard(repo)
	ctx := context.Background()

	first, err := g.Claim(ctx, delivery("payload"))
	require.NoError(t, err)
	require.NoError(t, g.Release(ctx, first.Raw))

	second, err := g.Claim(ctx, delivery("payload"))
	require.NoError(t, err)

	assert.True(t, second.Acquired)
	assert.True(t, second.Reclaimed)
	assert.Equal(t, first.Raw.ID, second.Raw.ID)
}

func TestGuard_Claim_InFlightClaimIsDuplicate(t *testing.T) {
	repo := newMemoryRepository()
	g := newTestGuard(repo)
	ctx := context.Background()

	_, err := g.Claim(ctx, delivery("payload"))
	require.NoError(t, err)

	second, err := g.Claim(ctx, delivery("payload"))
	require.NoError(t, err)
	assert.False(t, second.Acquired)
	assert.Nil(t, second.Raw.ResultID)
}

func TestGuard_Claim_StaleClaimIsReclaimed(t *testing.T) {
	repo := newMemoryRepository()
	g := newTestGuard(repo)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return start }
	_, err := g.Claim(ctx, delivery("payload"))
	require.NoError(t, err)

	g.now = func() time.Time { return start.Add(2 * time.Minute) }
	second, err := g.Claim(ctx, delivery("payload"))
	require.NoError(t, err)

	assert.True(t, second.Reclaimed)
	assert.Equal(t, start.Add(2*time.Minute), second.Raw.ClaimedAt)
}

func TestGuard_Claim_StoreFailure(t *testing.T) {
	repo := newMemoryRepository()
	repo.insertErr = apperrors.ErrStoreFailure.WithCause(errors.New("connection refused"))
	g := newTestGuard(repo)

	_, err := g.Claim(context.Background(), delivery("payload"))
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreFailure(err))
}

func TestGuard_Claim_ConcurrentDeliveriesAcquireOnce(t *testing.T) {
	repo := newMemoryRepository()
	g := newTestGuard(repo)
	ctx := context.Background()

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claim, err := g.Claim(ctx, delivery("same payload"))
			if err != nil {
				return
			}
			if claim.Acquired {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired)
}

func TestHasher_Key(t *testing.T) {
	payload := []byte("01380008230")

	sha256Key := NewHasher("SHA256").Key("", payload)
	assert.Equal(t, sha256Key, NewHasher("sha256").Key("", payload))
	assert.Len(t, sha256Key, len("sha256:")+64)

	sha512Key := NewHasher("sha512").Key("", payload)
	assert.Len(t, sha512Key, len("sha512:")+128)

	assert.Equal(t, sha256Key, NewHasher("md5").Key("", payload), "unknown algorithms fall back to sha256")
	assert.Equal(t, "explicit", NewHasher("sha256").Key("  explicit ", payload))
	assert.NotEqual(t, sha256Key, NewHasher("sha256").Key("", []byte("01380008231")))
}
