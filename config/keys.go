// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"

	// Environment variables are the upper-cased keys with this prefix.
	EnvPrefix = "GNOSIS"

	// Top-level configuration keys
	LogLevelKey          = "log-level"
	HTTPAddrKey          = "http-addr"
	MetricsAddrKey       = "metrics-addr"
	StorageKey           = "storage"
	StoragePathKey       = "storage-path"
	StorageCapacityMBKey = "storage-capacity-mb"
	RedisAddrKey         = "redis-addr"
	RedisDBKey           = "redis-db"
	RedisPasswordKey     = "redis-password"
	QueueKey             = "queue"
	QueueNameKey         = "queue-name"
	WorkersKey           = "workers"

	// Scheme keys
	RingDimKey          = "ring-dim"
	HopBudgetKey        = "hop-budget"
	PlaintextModulusKey = "plaintext-modulus"
	PREModeKey          = "pre-mode"
	EnvelopeKeyKey      = "envelope-key"
)
