package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/streakhub/internal/domain/holiday"
)

// FreezeCache implements holiday.Cache: the periods of an owner are stored as one
// JSON list so a freeze index can be rebuilt without touching the database.
type FreezeCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewFreezeCache creates a new FreezeCache. A non-positive ttl uses TTLFreezeState.
func NewFreezeCache(cache *Cache, ttl time.Duration) *FreezeCache {
	if ttl <= 0 {
		ttl = TTLFreezeState
	}
	return &FreezeCache{cache: cache, ttl: ttl}
}

// Get returns the cached periods of an owner; ok is false on a miss.
func (f *FreezeCache) Get(ctx context.Context, ownerID string) ([]holiday.Period, bool, error) {
	var periods []holiday.Period
	err := f.cache.Get(ctx, f.key(ownerID), &periods)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return periods, true, nil
}

// Set stores the periods of an owner.
func (f *FreezeCache) Set(ctx context.Context, ownerID string, periods []holiday.Period) error {
	if periods == nil {
		periods = []holiday.Period{}
	}
	return f.cache.Set(ctx, f.key(ownerID), periods, f.ttl)
}

// Invalidate drops the cached periods of an owner.
func (f *FreezeCache) Invalidate(ctx context.Context, ownerID string) error {
	return f.cache.Delete(ctx, f.key(ownerID))
}

func (f *FreezeCache) key(ownerID string) string {
	return f.cache.Key(PrefixFreeze, ownerID)
}
