package owner

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"labor/internal/config"
	"labor/internal/constants"
	"labor/internal/logger"
	"labor/pkg/metrics"
)

// cacheEntry distinguishes a cached miss from a cached owner.
type cacheEntry struct {
	Found bool   `json:"found"`
	Owner *Owner `json:"owner,omitempty"`
}

// CachedDirectory is a read-through Redis cache in front of another Directory. Misses
// are cached for NegativeTTL so that unknown pairs do not hammer the store, while a
// newly registered owner becomes visible after at most that long. Cache errors are
// logged and fall through to the backing directory.
type CachedDirectory struct {
	next   Directory
	client *redis.Client
	cfg    config.OwnerCacheConfig
	logger logger.Logger
}

func NewCachedDirectory(next Directory, client *redis.Client, cfg config.OwnerCacheConfig, log logger.Logger) *CachedDirectory {
	return &CachedDirectory{next: next, client: client, cfg: cfg, logger: log}
}

func pairKey(bsnr, lanr string) string {
	return constants.CacheKeyPrefixOwner + bsnr + ":" + lanr
}

func (d *CachedDirectory) LookupOwner(ctx context.Context, bsnr, lanr string) (*Owner, error) {
	key := pairKey(bsnr, lanr)

	if entry, ok := d.get(ctx, key); ok {
		if !entry.Found {
			metrics.IncOwnerCache("negative_hit")
			return nil, ErrOwnerNotFound.WithDetail("bsnr", bsnr).WithDetail("lanr", lanr)
		}
		metrics.IncOwnerCache("hit")
		return entry.Owner, nil
	}
	metrics.IncOwnerCache("miss")

	o, err := d.next.LookupOwner(ctx, bsnr, lanr)
	switch {
	case err == nil:
		d.set(ctx, key, cacheEntry{Found: true, Owner: o}, d.cfg.TTL)
	case IsNotFound(err):
		d.set(ctx, key, cacheEntry{Found: false}, d.cfg.NegativeTTL)
	}
	return o, err
}

// GetOwner is not cached; it serves the admin path only.
func (d *CachedDirectory) GetOwner(ctx context.Context, id string) (*Owner, error) {
	return d.next.GetOwner(ctx, id)
}

// Invalidate drops the cached entry for a pair.
func (d *CachedDirectory) Invalidate(ctx context.Context, bsnr, lanr string) error {
	return d.client.Del(ctx, pairKey(bsnr, lanr)).Err()
}

func (d *CachedDirectory) get(ctx context.Context, key string) (cacheEntry, bool) {
	val, err := d.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cacheEntry{}, false
	}
	if err != nil {
		metrics.IncOwnerCache("error")
		d.logger.WarnwCtx(ctx, "Owner cache read failed", "key", key, "error", err)
		return cacheEntry{}, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		d.logger.WarnwCtx(ctx, "Discarding corrupt owner cache entry", "key", key, "error", err)
		return cacheEntry{}, false
	}
	return entry, true
}

func (d *CachedDirectory) set(ctx context.Context, key string, entry cacheEntry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := d.client.Set(ctx, key, data, ttl).Err(); err != nil {
		metrics.IncOwnerCache("error")
		d.logger.WarnwCtx(ctx, "Owner cache write failed", "key", key, "error", err)
	}
}
