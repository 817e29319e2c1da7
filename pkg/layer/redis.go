package layer

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

// redisStore adapts a go-redis client to the RemoteStore port
type redisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps a go-redis client as a RemoteStore
func NewRedisStore(client redis.UniversalClient) RemoteStore {
	return &redisStore{client: client}
}

// NewRedis builds a remote layer directly over a go-redis client
func NewRedis[K comparable, V any](client redis.UniversalClient, codec types.Codec[V], config *RemoteConfig) *Remote[K, V] {
	return NewRemote[K, V](NewRedisStore(client), codec, config)
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *redisStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *redisStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
