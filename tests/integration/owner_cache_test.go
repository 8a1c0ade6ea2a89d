package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labor/internal/config"
	"labor/internal/owner"
	"labor/internal/quarantine"
)

func TestCachedDirectory_CachesHitsAndMisses(t *testing.T) {
	infra := setupInfra(t, withPostgres|withRedis)
	ctx := context.Background()

	cache := owner.NewCachedDirectory(
		owner.NewPostgresDirectory(infra.PostgresDB, "integration-test"),
		infra.RedisClient,
		config.OwnerCacheConfig{Enabled: true, TTL: time.Minute, NegativeTTL: time.Minute},
		createTestLogger(),
	)

	_, err := cache.LookupOwner(ctx, practiceOwner.BSNR, practiceOwner.LANR)
	require.True(t, owner.IsNotFound(err))

	seedOwner(t, infra.PostgresDB, practiceOwner)

	_, err = cache.LookupOwner(ctx, practiceOwner.BSNR, practiceOwner.LANR)
	assert.True(t, owner.IsNotFound(err), "the cached miss hides the new owner until it expires")

	require.NoError(t, cache.Invalidate(ctx, practiceOwner.BSNR, practiceOwner.LANR))

	got, err := cache.LookupOwner(ctx, practiceOwner.BSNR, practiceOwner.LANR)
	require.NoError(t, err)
	assert.Equal(t, practiceOwner.ID, got.ID)

	_, err = infra.PostgresDB.ExecContext(ctx, `DELETE FROM owners WHERE id = $1`, practiceOwner.ID)
	require.NoError(t, err)

	got, err = cache.LookupOwner(ctx, practiceOwner.BSNR, practiceOwner.LANR)
	require.NoError(t, err, "hits are served from the cache")
	assert.Equal(t, practiceOwner.TenantID, got.TenantID)
}

func TestCachedDirectory_NegativeEntriesExpire(t *testing.T) {
	infra := setupInfra(t, withPostgres|withRedis)
	ctx := context.Background()

	cache := owner.NewCachedDirectory(
		owner.NewPostgresDirectory(infra.PostgresDB, "integration-test"),
		infra.RedisClient,
		config.OwnerCacheConfig{Enabled: true, TTL: time.Minute, NegativeTTL: time.Second},
		createTestLogger(),
	)

	_, err := cache.LookupOwner(ctx, practiceOwner.BSNR, practiceOwner.LANR)
	require.True(t, owner.IsNotFound(err))

	seedOwner(t, infra.PostgresDB, practiceOwner)
	time.Sleep(1500 * time.Millisecond)

	got, err := cache.LookupOwner(ctx, practiceOwner.BSNR, practiceOwner.LANR)
	require.NoError(t, err)
	assert.Equal(t, practiceOwner.ID, got.ID)
}

func TestRedisLock_ExcludesSecondHolder(t *testing.T) {
	infra := setupInfra(t, withRedis)
	ctx := context.Background()

	first, err := quarantine.NewRedisLock(infra.RedisClient, "lock:test", time.Minute)
	require.NoError(t, err)
	second, err := quarantine.NewRedisLock(infra.RedisClient, "lock:test", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx), "releasing a lock not held is a no-op")
	exists, err := infra.RedisClient.Exists(ctx, "lock:test").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	require.NoError(t, first.Release(ctx))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
