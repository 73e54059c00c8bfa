package cachestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"edgecache/internal/core"
)

const (
	// redisKeyPrefix prefixes every cache key so an instance can share a
	// Redis database with other applications.
	redisKeyPrefix = "edgecache:entry:"

	// redisNamespaceIndex is the set tracking which namespaces exist.
	redisNamespaceIndex = "edgecache:namespaces"

	// DefaultRedisTTL is a safety expiry on entries. Version sweeps remain
	// the real eviction mechanism; the TTL only bounds orphaned data.
	DefaultRedisTTL = 7 * 24 * time.Hour
)

// RedisStore implements Store on Redis for multi-instance deployments
// behind a load balancer.
type RedisStore struct {
	client   *redis.Client
	ttl      time.Duration
	compress bool
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(url string, ttl time.Duration, compress bool) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}

	slog.Info("redis cache store connected", "ttl", ttl)

	return &RedisStore{client: client, ttl: ttl, compress: compress}, nil
}

func redisKey(namespace, url string) string {
	return redisKeyPrefix + namespace + ":" + entryKey(url)
}

// Get retrieves a snapshot from Redis.
func (s *RedisStore) Get(ctx context.Context, namespace, url string) (*core.Response, error) {
	data, err := s.client.Get(ctx, redisKey(namespace, url)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // miss
		}
		return nil, fmt.Errorf("failed to get cache entry from redis: %w", err)
	}
	return decodeEntry(data)
}

// Set stores a snapshot and registers the namespace in the index set.
func (s *RedisStore) Set(ctx context.Context, namespace, url string, resp *core.Response) error {
	data, err := encodeEntry(resp, s.compress)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisKey(namespace, url), data, s.ttl)
	pipe.SAdd(ctx, redisNamespaceIndex, namespace)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set cache entry in redis: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (s *RedisStore) Delete(ctx context.Context, namespace, url string) error {
	if err := s.client.Del(ctx, redisKey(namespace, url)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry from redis: %w", err)
	}
	return nil
}

// Namespaces lists registered namespaces.
func (s *RedisStore) Namespaces(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, redisNamespaceIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces from redis: %w", err)
	}
	return names, nil
}

// DeleteNamespace scans and deletes every key under the namespace, then
// removes it from the index.
func (s *RedisStore) DeleteNamespace(ctx context.Context, namespace string) error {
	pattern := redisKeyPrefix + namespace + ":*"
	iter := s.client.Scan(ctx, 0, pattern, 256).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 256 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan namespace %s: %w", namespace, err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
		}
	}

	if err := s.client.SRem(ctx, redisNamespaceIndex, namespace).Err(); err != nil {
		return fmt.Errorf("failed to unregister namespace %s: %w", namespace, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
