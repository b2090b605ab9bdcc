// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL expires artifacts; zero keeps them forever.
	TTL time.Duration
}

// RedisStorage keeps artifacts as Redis strings under a key prefix, so that
// servers and workers on different hosts share handles.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage connects to Redis and checks the connection.
func NewRedisStorage(cfg RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStorageFromClient(client, cfg.TTL), nil
}

// NewRedisStorageFromClient wraps an existing client.
func NewRedisStorageFromClient(client *redis.Client, ttl time.Duration) *RedisStorage {
	return &RedisStorage{
		client: client,
		prefix: "gnosis:artifact:",
		ttl:    ttl,
	}
}

func (s *RedisStorage) key(handle Handle) string {
	return s.prefix + string(handle)
}

func (s *RedisStorage) Store(ctx context.Context, data []byte) (Handle, error) {
	handle := ComputeHandle(data)
	// SetNX keeps the first copy; content addressing makes later writes identical.
	if err := s.client.SetNX(ctx, s.key(handle), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return handle, nil
}

func (s *RedisStorage) Load(ctx context.Context, handle Handle) ([]byte, error) {
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.key(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	return data, nil
}

func (s *RedisStorage) Delete(ctx context.Context, handle Handle) error {
	if err := handle.Validate(); err != nil {
		return err
	}
	n, err := s.client.Del(ctx, s.key(handle)).Result()
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStorage) Exists(ctx context.Context, handle Handle) (bool, error) {
	if err := handle.Validate(); err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, s.key(handle)).Result()
	if err != nil {
		return false, fmt.Errorf("check artifact: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
