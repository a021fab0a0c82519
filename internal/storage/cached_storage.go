package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/fjod/go_marketplace/internal/cache"
	"golang.org/x/sync/singleflight"
)

// CachedStorage serves reads from a payload cache and falls back to the
// backend on a miss. Writes go to the backend first and then replace the
// cached entry, a removal leaving an absent marker behind. A miss only fills
// the cache while the key is still empty there, so a read that raced a write
// never replaces what the write cached.
type CachedStorage struct {
	backend Storage
	cache   cache.PayloadCache
	sfg     singleflight.Group // collapses concurrent misses for one key
}

func NewCachedStorage(backend Storage, c cache.PayloadCache) *CachedStorage {
	return &CachedStorage{
		backend: backend,
		cache:   c,
	}
}

func (s *CachedStorage) Get(ctx context.Context, key string) (string, error) {
	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		payload, err := s.cache.Get(ctx, key)
		if err == nil {
			return payload, nil
		}
		if errors.Is(err, cache.ErrCachedAbsent) {
			return "", ErrNotFound
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v", err) // log cache error but continue
		}

		payload, err = s.backend.Get(ctx, key)
		if err != nil {
			return "", err
		}

		if _, errSet := s.cache.SetIfAbsent(ctx, key, payload); errSet != nil {
			log.Printf("cache set error: %v", errSet)
		}

		return payload, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

func (s *CachedStorage) Set(ctx context.Context, key, value string) error {
	if err := s.backend.Set(ctx, key, value); err != nil {
		return err
	}

	s.refresh(key, func(ctx context.Context) error {
		return s.cache.Set(ctx, key, value)
	})
	return nil
}

func (s *CachedStorage) Remove(ctx context.Context, key string) error {
	if err := s.backend.Remove(ctx, key); err != nil {
		return err
	}

	s.refresh(key, func(ctx context.Context) error {
		return s.cache.MarkAbsent(ctx, key)
	})
	return nil
}

func (s *CachedStorage) Ping(ctx context.Context) error {
	return Ping(ctx, s.backend)
}

// refresh applies update to the cache, dropping the entry when that fails.
func (s *CachedStorage) refresh(key string, update func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := update(ctx)
	if err == nil {
		return
	}
	log.Printf("cache update error: %v", err)
	if err := s.cache.Delete(ctx, key); err != nil {
		log.Printf("cache invalidate error: %v", err)
	}
}
