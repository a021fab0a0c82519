package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// absentMarker is stored for keys known to be missing from storage. A
// serialized cart never consists of a single NUL byte.
const absentMarker = "\x00"

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, key string) (string, error) {
	payload, err := r.client.Get(ctx, cacheKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	if payload == absentMarker {
		return "", ErrCachedAbsent
	}
	return payload, nil
}

func (r RedisCache) Set(ctx context.Context, key, payload string) error {
	if err := r.client.Set(ctx, cacheKey(key), payload, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) SetIfAbsent(ctx context.Context, key, payload string) (bool, error) {
	stored, err := r.client.SetNX(ctx, cacheKey(key), payload, r.ttl()).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return stored, nil
}

func (r RedisCache) MarkAbsent(ctx context.Context, key string) error {
	if err := r.client.Set(ctx, cacheKey(key), absentMarker, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) ttl() time.Duration {
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	return r.baseTTL + jitter
}

func (r RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(key string) string {
	return fmt.Sprintf("cartkv:%s", key)
}
