package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/element-scan/holders-indexer/internal/adapter"
)

// RedisStore implements Store on top of a Redis client
type RedisStore struct {
	client adapter.RedisClient
}

// NewRedisStore wraps a Redis client as a Store. It pings the server so a
// misconfigured address fails at startup rather than on first request.
func NewRedisStore(ctx context.Context, client adapter.RedisClient) (*RedisStore, error) {
	if err := client.Ping(ctx); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, namespace, key string, out interface{}) (bool, error) {
	raw, err := s.client.Get(ctx, storageKey(namespace, key))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := unmarshalValue([]byte(raw), out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error {
	data, err := marshalValue(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, storageKey(namespace, key), string(data), ttl)
}

func (s *RedisStore) Delete(ctx context.Context, namespace, key string) error {
	return s.client.Del(ctx, storageKey(namespace, key))
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
