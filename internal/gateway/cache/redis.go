package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/redis"
	"github.com/rs/zerolog/log"
)

const (
	entryPrefix = "cache:exact:"
	hitsPrefix  = "cache:hits:"
)

// RedisClient is the subset of the shared Redis client the store uses
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RedisStore shares cache entries between gateway instances. Redis expires
// keys itself, so Purge has nothing to do.
type RedisStore struct {
	client RedisClient
	now    func() time.Time
}

// NewRedisStore creates a store on top of the shared Redis client
func NewRedisStore(client RedisClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Lookup(ctx context.Context, key string) (*models.CacheEntry, error) {
	val, err := s.client.Get(ctx, entryPrefix+key)
	if errors.Is(err, redis.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to deserialize cache entry: %w", err)
	}

	remaining := entry.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return nil, nil
	}

	hits, err := s.client.Incr(ctx, hitsPrefix+key)
	if err != nil {
		return nil, fmt.Errorf("failed to count cache hit: %w", err)
	}
	// Refreshed on every hit so a failed Expire heals on the next lookup
	if err := s.client.Expire(ctx, hitsPrefix+key, remaining); err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("failed to set cache hit counter ttl")
	}
	entry.HitCount = hits
	return &entry, nil
}

func (s *RedisStore) Save(ctx context.Context, entry models.CacheEntry) error {
	ttl := entry.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	entry.HitCount = 0

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize cache entry: %w", err)
	}
	if err := s.client.Set(ctx, entryPrefix+entry.Key, string(data), ttl); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return s.client.Del(ctx, hitsPrefix+entry.Key)
}

func (s *RedisStore) Purge(ctx context.Context) (int, error) {
	return 0, nil
}
