package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCredentialRepository keeps each profile in one Redis hash, which lets
// several bot replicas share sessions.
type RedisCredentialRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisCredentialRepository(client *redis.Client, prefix string) *RedisCredentialRepository {
	if prefix == "" {
		prefix = "kawah:cred:"
	}
	return &RedisCredentialRepository{client: client, prefix: prefix}
}

func (r *RedisCredentialRepository) key(profile string) string {
	return r.prefix + profile
}

func (r *RedisCredentialRepository) Get(ctx context.Context, profile, key string) (string, bool, error) {
	value, err := r.client.HGet(ctx, r.key(profile), key).Result()
	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, redis.Nil):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("redis hget %s: %w", key, err)
	}
}

func (r *RedisCredentialRepository) Set(ctx context.Context, profile string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	if err := r.client.HSet(ctx, r.key(profile), fields).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *RedisCredentialRepository) Delete(ctx context.Context, profile string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.key(profile), keys...).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}
