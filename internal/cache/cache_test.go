package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/element-scan/holders-indexer/internal/cache"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store, err := cache.NewMemoryStore(16)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "holders", "genesis", payload{Name: "a", Count: 3}, 0))

	var got payload
	found, err := store.Get(ctx, "holders", "genesis", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "a", Count: 3}, got)
}

func TestMemoryStore_Miss(t *testing.T) {
	store, err := cache.NewMemoryStore(16)
	require.NoError(t, err)

	var got payload
	found, err := store.Get(context.Background(), "holders", "nope", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_NamespaceIsolation(t *testing.T) {
	store, err := cache.NewMemoryStore(16)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "holders", "genesis", payload{Count: 1}, 0))

	var got payload
	found, err := store.Get(ctx, "state", "genesis", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	store, err := cache.NewMemoryStore(16)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "holders", "genesis", payload{Count: 1}, 10*time.Millisecond))

	time.Sleep(30 * time.Millisecond)

	var got payload
	found, err := store.Get(ctx, "holders", "genesis", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_Delete(t *testing.T) {
	store, err := cache.NewMemoryStore(16)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "holders", "genesis", payload{Count: 1}, 0))
	require.NoError(t, store.Delete(ctx, "holders", "genesis"))

	var got payload
	found, err := store.Get(ctx, "holders", "genesis", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

// fakeRedisClient is an in-memory stand-in for the Redis adapter
type fakeRedisClient struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{data: make(map[string]string)}
}

func (f *fakeRedisClient) Ping(context.Context) error { return nil }

func (f *fakeRedisClient) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeRedisClient) Set(_ context.Context, key string, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeRedisClient) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeRedisClient) Close() error { return nil }

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedisClient()

	store, err := cache.NewRedisStore(ctx, client)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "state", "genesis", payload{Name: "b", Count: 7}, time.Minute))

	var got payload
	found, err := store.Get(ctx, "state", "genesis", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "b", Count: 7}, got)

	// miss translates redis.Nil into absence, not an error
	found, err = store.Get(ctx, "state", "other", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Delete(ctx, "state", "genesis"))
	found, err = store.Get(ctx, "state", "genesis", &got)
	require.NoError(t, err)
	assert.False(t, found)
}
