// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"fmt"

	"github.com/mahanfr/GnosisDB/internal/queue"
	"github.com/mahanfr/GnosisDB/internal/storage"
)

// OpenStorage creates the configured artifact store.
func (c *Config) OpenStorage() (storage.Storage, error) {
	switch c.Storage {
	case StorageMemory:
		return storage.NewMemoryStorage(c.StorageCapacityMB), nil
	case StorageFile:
		return storage.NewFileStorage(c.StoragePath)
	case StorageRedis:
		return storage.NewRedisStorage(storage.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
	}
	return nil, fmt.Errorf("unknown storage backend %q", c.Storage)
}

// OpenQueue creates the configured job queue.
func (c *Config) OpenQueue() (queue.Queue, error) {
	switch c.Queue {
	case QueueMemory:
		return queue.NewMemoryQueue(), nil
	case QueueRedis:
		return queue.NewRedisQueue(queue.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		}, c.QueueName)
	}
	return nil, fmt.Errorf("unknown queue backend %q", c.Queue)
}
