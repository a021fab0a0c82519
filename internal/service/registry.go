package service

import (
	"errors"
	"strings"
	"sync"

	"github.com/fjod/go_marketplace/internal/storage"
)

var ErrInvalidUser = errors.New("user id must not be empty")

// Registry hands out one CartStore per user. Stores are created lazily and
// share the registry's storage; each persists under "<baseKey>:<userID>".
type Registry struct {
	storage storage.Storage
	baseKey string
	opts    []Option

	mu     sync.Mutex
	stores map[string]*CartStore
}

func NewRegistry(st storage.Storage, baseKey string, opts ...Option) *Registry {
	if baseKey == "" {
		baseKey = DefaultKey
	}
	return &Registry{
		storage: st,
		baseKey: baseKey,
		opts:    opts,
		stores:  make(map[string]*CartStore),
	}
}

func (r *Registry) Store(userID string) (*CartStore, error) {
	if r == nil || r.storage == nil {
		return nil, ErrNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUser
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[userID]; ok {
		return s, nil
	}

	opts := append([]Option{}, r.opts...)
	opts = append(opts, WithKey(r.KeyFor(userID)))
	s := NewCartStore(r.storage, opts...)
	r.stores[userID] = s
	return s, nil
}

func (r *Registry) KeyFor(userID string) string {
	return r.baseKey + ":" + userID
}

// Storage exposes the backend shared by every store, for health checks.
func (r *Registry) Storage() storage.Storage {
	return r.storage
}
