package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/fjod/go_marketplace/internal/domain"
	"github.com/fjod/go_marketplace/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultKey is the storage key a single cart is persisted under.
const DefaultKey = "@GoMarketplace:products"

var ErrNotConfigured = errors.New("cart store used without being configured with storage")

// CartStore owns one ordered list of cart items and keeps a copy of it in
// storage. Mutations are serialized: each one hydrates, computes the next
// list, persists it, and only then makes it visible.
type CartStore struct {
	storage   storage.Storage
	key       string
	versioned bool
	strict    bool
	tracer    trace.Tracer

	mu       sync.Mutex
	items    []domain.CartItem
	hydrated bool

	subMu  sync.Mutex
	subs   map[int]chan []domain.CartItem
	nextID int
}

type Option func(*CartStore)

func WithKey(key string) Option {
	return func(s *CartStore) {
		s.key = key
	}
}

// WithVersionedSnapshots persists {"version":1,"items":[...]} instead of a bare list.
func WithVersionedSnapshots() Option {
	return func(s *CartStore) {
		s.versioned = true
	}
}

// WithStrictHydration makes Hydrate return domain.ErrMalformedSnapshot instead
// of silently starting from an empty cart.
func WithStrictHydration() Option {
	return func(s *CartStore) {
		s.strict = true
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *CartStore) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func NewCartStore(st storage.Storage, opts ...Option) *CartStore {
	s := &CartStore{
		storage: st,
		key:     DefaultKey,
		tracer:  otel.Tracer("github.com/fjod/go_marketplace/internal/service"),
		items:   []domain.CartItem{},
		subs:    make(map[int]chan []domain.CartItem),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CartStore) Key() string {
	if s == nil {
		return ""
	}
	return s.key
}

func (s *CartStore) configured() error {
	if s == nil || s.storage == nil {
		return ErrNotConfigured
	}
	return nil
}

// Hydrate loads the persisted cart once. A storage failure is returned and
// the load is attempted again on the next call.
func (s *CartStore) Hydrate(ctx context.Context) error {
	if err := s.configured(); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "CartStore.Hydrate")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	return recordErr(span, s.hydrateLocked(ctx))
}

func (s *CartStore) hydrateLocked(ctx context.Context) error {
	if s.hydrated {
		return nil
	}

	payload, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		s.hydrated = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load cart %s: %w", s.key, err)
	}

	items, err := domain.DecodeItems(payload)
	s.hydrated = true
	if err != nil {
		if s.strict {
			return err
		}
		log.Printf("discarding saved cart %s: %v", s.key, err)
		return nil
	}

	s.items = items
	s.notifyLocked()
	return nil
}

// Products returns a copy of the current list in display order.
func (s *CartStore) Products() []domain.CartItem {
	if s == nil {
		return []domain.CartItem{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.CloneItems(s.items)
}

func (s *CartStore) Totals() domain.Totals {
	return domain.ComputeTotals(s.Products())
}

// AddToCart appends p with quantity 1, or increments it when already present.
func (s *CartStore) AddToCart(ctx context.Context, p domain.Product) error {
	_, err := s.AddToCartSnapshot(ctx, p)
	return err
}

// AddToCartSnapshot is AddToCart returning the list this call committed.
func (s *CartStore) AddToCartSnapshot(ctx context.Context, p domain.Product) ([]domain.CartItem, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "CartStore.AddToCart")
	defer span.End()

	items, err := s.mutate(ctx, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		if idx := domain.FindItem(items, p.ID); idx >= 0 {
			items[idx].Quantity++
			return items, true
		}
		return append(items, domain.NewCartItem(p)), true
	})
	return items, recordErr(span, err)
}

// Increment raises the quantity of id by one. An unknown id leaves the list
// unchanged but the list is still written.
func (s *CartStore) Increment(ctx context.Context, id string) error {
	_, err := s.IncrementSnapshot(ctx, id)
	return err
}

func (s *CartStore) IncrementSnapshot(ctx context.Context, id string) ([]domain.CartItem, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "CartStore.Increment")
	defer span.End()

	items, err := s.mutate(ctx, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		if idx := domain.FindItem(items, id); idx >= 0 {
			items[idx].Quantity++
		}
		return items, true
	})
	return items, recordErr(span, err)
}

// Decrement lowers the quantity of id by one, removing the item when it
// reaches zero. An unknown id is a no-op and nothing is written.
func (s *CartStore) Decrement(ctx context.Context, id string) error {
	_, err := s.DecrementSnapshot(ctx, id)
	return err
}

func (s *CartStore) DecrementSnapshot(ctx context.Context, id string) ([]domain.CartItem, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "CartStore.Decrement")
	defer span.End()

	items, err := s.mutate(ctx, func(items []domain.CartItem) ([]domain.CartItem, bool) {
		idx := domain.FindItem(items, id)
		if idx < 0 {
			return items, false
		}
		if items[idx].Quantity <= 1 {
			return domain.RemoveItem(items, idx), true
		}
		items[idx].Quantity--
		return items, true
	})
	return items, recordErr(span, err)
}

// Clear empties the cart and removes its storage entry.
func (s *CartStore) Clear(ctx context.Context) error {
	if err := s.configured(); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "CartStore.Clear")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Remove(ctx, s.key); err != nil {
		return recordErr(span, fmt.Errorf("failed to remove cart %s: %w", s.key, err))
	}

	s.items = []domain.CartItem{}
	s.hydrated = true
	s.notifyLocked()
	return nil
}

// mutate runs fn against a private copy of the list. When fn reports a write,
// the returned list is persisted and then committed. The result is a copy of
// the list as it stands when the lock is released.
func (s *CartStore) mutate(ctx context.Context, fn func([]domain.CartItem) ([]domain.CartItem, bool)) ([]domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.hydrateLocked(ctx); err != nil {
		return nil, err
	}

	next, write := fn(domain.CloneItems(s.items))
	if !write {
		return domain.CloneItems(s.items), nil
	}

	payload, err := domain.EncodeItems(next, s.versioned)
	if err != nil {
		return nil, err
	}
	if err := s.storage.Set(ctx, s.key, payload); err != nil {
		return nil, fmt.Errorf("failed to persist cart %s: %w", s.key, err)
	}

	s.items = next
	s.notifyLocked()
	return domain.CloneItems(next), nil
}

// Subscribe returns a channel that always holds the most recent committed
// list. Slow readers only miss intermediate states. The returned func
// unsubscribes and closes the channel.
func (s *CartStore) Subscribe() (<-chan []domain.CartItem, func()) {
	ch := make(chan []domain.CartItem, 1)
	if s == nil {
		close(ch)
		return ch, func() {}
	}

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *CartStore) notifyLocked() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		snapshot := domain.CloneItems(s.items)
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

func recordErr(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
