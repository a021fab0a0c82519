package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestRedisStorage_Contract(t *testing.T) {
	client, _ := setupTestRedis(t)
	runStorageContract(t, NewRedisStorage(client))
}

func TestRedisStorage_NoExpiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	s := NewRedisStorage(client)

	require.NoError(t, s.Set(context.Background(), "@GoMarketplace:products", "[]"))
	assert.Zero(t, mr.TTL("@GoMarketplace:products"))
}

func TestRedisStorage_ServerDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	s := NewRedisStorage(client)
	mr.Close()

	_, err := s.Get(context.Background(), "key")
	assert.ErrorContains(t, err, "redis get failed")
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.ErrorContains(t, s.Set(context.Background(), "key", "[]"), "redis set failed")
	assert.Error(t, s.Ping(context.Background()))
}
