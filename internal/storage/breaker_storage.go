package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerStorage fails fast with gobreaker.ErrOpenState once the backend has
// failed repeatedly. ErrNotFound is a normal answer and never trips it.
type BreakerStorage struct {
	backend Storage
	cb      *gobreaker.CircuitBreaker[string]
}

type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func NewBreakerStorage(backend Storage, settings BreakerSettings) *BreakerStorage {
	if settings.Name == "" {
		settings.Name = "cart-storage"
	}
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.OpenTimeout == 0 {
		settings.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &BreakerStorage{backend: backend, cb: cb}
}

func (b *BreakerStorage) Get(ctx context.Context, key string) (string, error) {
	value, err := b.cb.Execute(func() (string, error) {
		return b.backend.Get(ctx, key)
	})
	if err != nil {
		return "", wrapBreakerErr(err)
	}
	return value, nil
}

func (b *BreakerStorage) Set(ctx context.Context, key, value string) error {
	_, err := b.cb.Execute(func() (string, error) {
		return "", b.backend.Set(ctx, key, value)
	})
	return wrapBreakerErr(err)
}

func (b *BreakerStorage) Remove(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() (string, error) {
		return "", b.backend.Remove(ctx, key)
	})
	return wrapBreakerErr(err)
}

func (b *BreakerStorage) Ping(ctx context.Context) error {
	return Ping(ctx, b.backend)
}

func (b *BreakerStorage) State() gobreaker.State {
	return b.cb.State()
}

func wrapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("storage unavailable: %w", err)
	}
	return err
}
