// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package config loads the settings shared by the pre-server, pre-worker
// and pre-demo commands.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mahanfr/GnosisDB/pre"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// Queue backends.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

const (
	defaultLogLevel          = "info"
	defaultHTTPAddr          = ":8448"
	defaultMetricsAddr       = ":9090"
	defaultStorage           = StorageMemory
	defaultStoragePath       = "/tmp/gnosis-storage"
	defaultStorageCapacityMB = 1024
	defaultRedisAddr         = "localhost:6379"
	defaultQueue             = QueueMemory
	defaultQueueName         = "default"
)

var defaultWorkers = runtime.NumCPU()

// Config is the flattened configuration of every command.
type Config struct {
	LogLevel          string `mapstructure:"log-level" json:"log-level"`
	HTTPAddr          string `mapstructure:"http-addr" json:"http-addr"`
	MetricsAddr       string `mapstructure:"metrics-addr" json:"metrics-addr"`
	Storage           string `mapstructure:"storage" json:"storage"`
	StoragePath       string `mapstructure:"storage-path" json:"storage-path"`
	StorageCapacityMB int64  `mapstructure:"storage-capacity-mb" json:"storage-capacity-mb"`
	RedisAddr         string `mapstructure:"redis-addr" json:"redis-addr"`
	RedisDB           int    `mapstructure:"redis-db" json:"redis-db"`
	RedisPassword     string `mapstructure:"redis-password" json:"-"`
	Queue             string `mapstructure:"queue" json:"queue"`
	QueueName         string `mapstructure:"queue-name" json:"queue-name"`
	Workers           int    `mapstructure:"workers" json:"workers"`

	RingDim          int    `mapstructure:"ring-dim" json:"ring-dim"`
	HopBudget        int    `mapstructure:"hop-budget" json:"hop-budget"`
	PlaintextModulus uint64 `mapstructure:"plaintext-modulus" json:"plaintext-modulus"`
	PREMode          string `mapstructure:"pre-mode" json:"pre-mode"`
	// EnvelopeKey is the hex envelope authentication key. Processes that
	// share storage must share it; empty draws a random per-process key.
	EnvelopeKey string `mapstructure:"envelope-key" json:"-"`
}

// Validate checks the values that can be checked without connecting to
// anything.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	switch c.Storage {
	case StorageMemory:
		if c.StorageCapacityMB <= 0 {
			return fmt.Errorf("storage capacity must be positive, got %d MB", c.StorageCapacityMB)
		}
	case StorageFile:
		if c.StoragePath == "" {
			return errors.New("file storage requires a storage path")
		}
	case StorageRedis:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	switch c.Queue {
	case QueueMemory, QueueRedis:
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue)
	}
	if (c.Storage == StorageRedis || c.Queue == QueueRedis) && c.RedisAddr == "" {
		return errors.New("redis address not set")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if _, err := c.SchemeParameters(); err != nil {
		return err
	}
	if _, err := c.EnvelopeKeyBytes(); err != nil {
		return err
	}
	return nil
}

// EnvelopeKeyBytes decodes EnvelopeKey. It returns nil when no key is set.
func (c *Config) EnvelopeKeyBytes() ([]byte, error) {
	if c.EnvelopeKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.EnvelopeKey)
	if err != nil {
		return nil, fmt.Errorf("invalid envelope key: %w", err)
	}
	if len(key) != pre.EnvelopeKeySize {
		return nil, fmt.Errorf("invalid envelope key: want %d hex-encoded bytes, got %d", pre.EnvelopeKeySize, len(key))
	}
	return key, nil
}

// ContextOptions returns the pre.Context options the configuration implies.
func (c *Config) ContextOptions(log *zap.Logger) ([]pre.Option, error) {
	key, err := c.EnvelopeKeyBytes()
	if err != nil {
		return nil, err
	}
	return []pre.Option{pre.WithLogger(log), pre.WithEnvelopeKey(key)}, nil
}

// SchemeParameters applies the scheme settings to pre.DefaultParameters.
func (c *Config) SchemeParameters() (pre.SchemeParameters, error) {
	p := pre.DefaultParameters()
	p.RingDim = c.RingDim
	p.HopBudget = c.HopBudget
	p.PlaintextModulus = c.PlaintextModulus

	mode, err := pre.ParseMode(c.PREMode)
	if err != nil {
		return p, err
	}
	p.Mode = mode

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// NewLogger builds a production zap logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
