package service

import (
	"context"
	"sync"
	"testing"

	"github.com/fjod/go_marketplace/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_StorePerUser(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStorage()
	reg := NewRegistry(st, "")

	alice, err := reg.Store("alice")
	require.NoError(t, err)
	bob, err := reg.Store("bob")
	require.NoError(t, err)

	require.NoError(t, alice.AddToCart(ctx, shirt))

	assert.Len(t, alice.Products(), 1)
	assert.Empty(t, bob.Products())
	assert.Equal(t, DefaultKey+":alice", alice.Key())

	_, err = st.Get(ctx, DefaultKey+":alice")
	assert.NoError(t, err)
	_, err = st.Get(ctx, DefaultKey+":bob")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegistry_SameStoreReturned(t *testing.T) {
	reg := NewRegistry(storage.NewMemoryStorage(), "carts")

	var wg sync.WaitGroup
	got := make([]*CartStore, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := reg.Store("u1")
			assert.NoError(t, err)
			got[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, "carts:u1", got[0].Key())
}

func TestRegistry_OptionsApplied(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStorage()
	reg := NewRegistry(st, "carts", WithVersionedSnapshots())

	s, err := reg.Store("u1")
	require.NoError(t, err)
	require.NoError(t, s.AddToCart(ctx, shirt))

	payload, err := st.Get(ctx, "carts:u1")
	require.NoError(t, err)
	assert.Contains(t, payload, `"version":1`)
}

func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry(storage.NewMemoryStorage(), "")
	_, err := reg.Store("  ")
	assert.ErrorIs(t, err, ErrInvalidUser)

	var nilReg *Registry
	_, err = nilReg.Store("u1")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewRegistry(nil, "").Store("u1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
