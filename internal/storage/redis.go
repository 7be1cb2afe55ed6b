package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps the document under a single Redis key. Conditional
// writes use WATCH/MULTI so a concurrent writer aborts the transaction.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend parses redisURL, connects and pings the server.
func NewRedisBackend(redisURL, key string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return newRedisBackend(client, key), nil
}

func newRedisBackend(client *redis.Client, key string) *RedisBackend {
	if strings.TrimSpace(key) == "" {
		key = "notes"
	}
	return &RedisBackend{client: client, key: key}
}

func (r *RedisBackend) Read(ctx context.Context) ([]byte, string, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, "", ErrNotExist
	}
	if err != nil {
		return nil, "", fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return data, contentRevision(data), nil
}

func (r *RedisBackend) Write(ctx context.Context, data []byte, rev string) (string, error) {
	if rev == AnyRevision {
		if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
			return "", fmt.Errorf("redis set %s: %w", r.key, err)
		}
		return contentRevision(data), nil
	}

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, r.key).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}
		if !revisionMatches(rev, exists, current) {
			return ErrRevisionMismatch
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, data, 0)
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txf, r.key)
	switch {
	case err == nil:
		return contentRevision(data), nil
	case errors.Is(err, ErrRevisionMismatch), errors.Is(err, redis.TxFailedErr):
		return "", ErrRevisionMismatch
	default:
		return "", fmt.Errorf("redis write %s: %w", r.key, err)
	}
}

func (r *RedisBackend) Name() string {
	return "redis"
}

// Ping reports whether Redis answers.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
