package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type (
	RedisService struct {
		rdb *redis.Client
	}
)

func NewRedis(rdb *redis.Client) *RedisService {
	return &RedisService{
		rdb: rdb,
	}
}

// Push appends values to the list at key.
func (r *RedisService) Push(ctx context.Context, key string, values ...any) error {
	return r.rdb.RPush(ctx, key, values...).Err()
}

// Drain returns the whole list at key and deletes it.
func (r *RedisService) Drain(ctx context.Context, key string) ([]string, error) {
	vals, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return nil, err
	}
	return vals, nil
}
