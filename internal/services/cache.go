package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/twalsh/matchup-edge/internal/nfl"
	"github.com/twalsh/matchup-edge/pkg/logger"
	"github.com/twalsh/matchup-edge/pkg/metrics"
)

// RedisCache backs the dataset and provider caches with a shared Redis
// instance so multiple replicas see the same fetch results.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
	}
}

func (s *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := s.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

func (s *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordCacheMiss("redis")
			return fmt.Errorf("key not found")
		}
		return fmt.Errorf("failed to get cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	metrics.RecordCacheHit("redis")
	return nil
}

func (s *RedisCache) Delete(key string) error {
	if err := s.client.Del(context.Background(), key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}

// Convenience methods without context (use background context)
func (s *RedisCache) SetSimple(key string, value interface{}, expiration time.Duration) error {
	return s.Set(context.Background(), key, value, expiration)
}

func (s *RedisCache) GetSimple(key string, dest interface{}) error {
	return s.Get(context.Background(), key, dest)
}

// Close releases the underlying Redis connection on shutdown
func (s *RedisCache) Close() error {
	return s.client.Close()
}

// MemoryCache is the default single-process backend. Values take the same
// JSON round-trip as Redis so both backends fill dest identically.
type MemoryCache struct {
	store *gocache.Cache
}

func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		store: gocache.New(defaultTTL, 10*time.Minute),
	}
}

func (s *MemoryCache) SetSimple(key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	s.store.Set(key, data, expiration)
	return nil
}

func (s *MemoryCache) GetSimple(key string, dest interface{}) error {
	raw, found := s.store.Get(key)
	if !found {
		metrics.RecordCacheMiss("memory")
		return fmt.Errorf("key not found")
	}

	data, ok := raw.([]byte)
	if !ok {
		return fmt.Errorf("unexpected cache entry type for key %s", key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	metrics.RecordCacheHit("memory")
	return nil
}

func (s *MemoryCache) Delete(key string) error {
	s.store.Delete(key)
	return nil
}

// NewCache builds the configured cache backend. An unreachable Redis falls
// back to the in-process cache rather than failing startup.
func NewCache(backend, redisURL string, defaultTTL time.Duration) nfl.CacheProvider {
	if backend == "redis" {
		log := logger.WithComponent("cache")
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.WithError(err).Warn("Invalid REDIS_URL, falling back to in-memory cache")
			return NewMemoryCache(defaultTTL)
		}

		client := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("Redis unreachable, falling back to in-memory cache")
			return NewMemoryCache(defaultTTL)
		}

		log.Info("Using Redis cache backend")
		return NewRedisCache(client)
	}

	return NewMemoryCache(defaultTTL)
}

// Cache key generators
func ScheduleCacheKey(season int) string {
	return fmt.Sprintf("nflverse:schedule:%d", season)
}

func UnitMetricsCacheKey(season, week int) string {
	return fmt.Sprintf("nflverse:unitmetrics:%d:%d", season, week)
}

func BoardCacheKey(season, week int) string {
	return fmt.Sprintf("board:%d:%d", season, week)
}

func UnifiedTableCacheKey(season, week int) string {
	return fmt.Sprintf("table:%d:%d", season, week)
}
