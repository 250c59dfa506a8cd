package storage

import (
	"context"
	"errors"
	"io"

	"github.com/redis/go-redis/v9"
)

// Redis Redis存储
type Redis struct {
	client redis.Cmdable
	closer io.Closer
}

// NewRedis 创建Redis存储，closer 可为空
func NewRedis(client redis.Cmdable, closer io.Closer) *Redis {
	return &Redis{client: client, closer: closer}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Close 关闭连接
func (r *Redis) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
