// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis"
)

// Redis is a Client backed by a redis server.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to the redis server at address.
func NewRedis(address, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	if err := client.Ping().Err(); err != nil {
		return nil, Error.New("cannot connect to %q: %v", address, err)
	}
	return &Redis{client: client}, nil
}

// Get implements Client.
func (cache *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := cache.client.WithContext(ctx).Get(key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss.New("%q", key)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return value, nil
}

// Put implements Client.
func (cache *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return Error.Wrap(cache.client.WithContext(ctx).Set(key, value, ttl).Err())
}

// Del implements Client.
func (cache *Redis) Del(ctx context.Context, key string) error {
	return Error.Wrap(cache.client.WithContext(ctx).Del(key).Err())
}

// Close implements Client.
func (cache *Redis) Close() error {
	return cache.client.Close()
}
