package cache

import (
	"context"
	"errors"
)

// PayloadCache holds serialized cart snapshots keyed by their storage key.
// Besides payloads it can remember that a key is absent from storage.
type PayloadCache interface {
	// Get returns ErrCacheMiss when nothing is cached and ErrCachedAbsent
	// when the key was marked absent.
	Get(ctx context.Context, key string) (string, error)
	// Set overwrites whatever is cached for key.
	Set(ctx context.Context, key, payload string) error
	// SetIfAbsent stores payload only when nothing, not even an absent
	// marker, is cached for key. It reports whether payload was stored.
	SetIfAbsent(ctx context.Context, key, payload string) (bool, error)
	MarkAbsent(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
}

var (
	ErrCacheMiss    = errors.New("cache miss")
	ErrCachedAbsent = errors.New("key cached as absent")
)
