package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "quiniela:page:"
	DefaultTTL = 6 * time.Hour
)

// RedisStore 把页面存到 Redis，多个 serve 实例共享。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(k Key) (string, error) {
	k, err := k.validate()
	if err != nil {
		return "", err
	}
	return keyPrefix + k.Source + ":" + k.Day, nil
}

func (s *RedisStore) Get(ctx context.Context, k Key) ([]byte, bool, error) {
	key, err := redisKey(k)
	if err != nil {
		return nil, false, err
	}
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, true, nil
}

func (s *RedisStore) Put(ctx context.Context, k Key, data []byte) error {
	key, err := redisKey(k)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}
