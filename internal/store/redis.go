// internal/store/redis.go
//
// Redis-backed Store. Each record is a JSON string at <prefix><key>.
// Records carry no expiry: the session TTL only reclaims memory, persisted
// games stay resumable until they end.

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/robalobadob/seabattle/internal/game"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore pings the server and returns a Store using client.
func NewRedisStore(ctx context.Context, client *redis.Client, prefix string) (Store, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (r *redisStore) Save(ctx context.Context, key string, rec *game.Record) error {
	b, err := encode(rec)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, b, 0).Err(); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (r *redisStore) Load(ctx context.Context, key string) (*game.Record, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return decode(b)
}

func (r *redisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (r *redisStore) Close() error { return r.client.Close() }
