package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore keeps single-use OAuth state values.
type StateStore interface {
	Put(ctx context.Context, state string, ttl time.Duration) error
	// Consume reports whether state existed and removes it.
	Consume(ctx context.Context, state string) (bool, error)
}

const statePrefix = "oauth:state:"

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// SETNX with TTL
func (s *RedisStore) Put(ctx context.Context, state string, ttl time.Duration) error {
	ok, err := s.rdb.SetNX(ctx, statePrefix+state, "1", ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("oauth state already issued")
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, state string) (bool, error) {
	_, err := s.rdb.GetDel(ctx, statePrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
