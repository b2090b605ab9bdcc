// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mahanfr/GnosisDB/pre"
)

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// AddFlags registers every configuration key on fs.
func AddFlags(fs *pflag.FlagSet) {
	p := pre.DefaultParameters()

	fs.String(ConfigFileKey, "", "Path to a JSON or YAML config file")
	fs.String(LogLevelKey, defaultLogLevel, "Log level (debug, info, warn, error)")
	fs.String(HTTPAddrKey, defaultHTTPAddr, "HTTP API address")
	fs.String(MetricsAddrKey, defaultMetricsAddr, "Metrics and health address")
	fs.String(StorageKey, defaultStorage, "Artifact storage backend (memory, file, redis)")
	fs.String(StoragePathKey, defaultStoragePath, "Directory of the file storage backend")
	fs.Int64(StorageCapacityMBKey, defaultStorageCapacityMB, "Capacity of the memory storage backend in MB")
	fs.String(RedisAddrKey, defaultRedisAddr, "Redis address")
	fs.Int(RedisDBKey, 0, "Redis database number")
	fs.String(RedisPasswordKey, "", "Redis password")
	fs.String(QueueKey, defaultQueue, "Job queue backend (memory, redis)")
	fs.String(QueueNameKey, defaultQueueName, "Job queue name")
	fs.Int(WorkersKey, defaultWorkers, "Number of worker goroutines")
	fs.Int(RingDimKey, p.RingDim, "Ring dimension (power of two)")
	fs.Int(HopBudgetKey, p.HopBudget, "Maximum number of re-encryption hops")
	fs.Uint64(PlaintextModulusKey, p.PlaintextModulus, "Plaintext modulus")
	fs.String(PREModeKey, p.Mode.String(), "Re-encryption security mode (INDCPA, FIXED_NOISE_HRA, NOISE_FLOODING_HRA)")
	fs.String(EnvelopeKeyKey, "", "Hex-encoded 32-byte key authenticating stored ciphertexts and re-encryption keys")
}

// BuildViper binds fs and the GNOSIS_ environment. A config file is read
// when one is named by flag or environment.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// Map flag names to env var names. Flags are capitalized, and hyphens are replaced with underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if filename := v.GetString(ConfigFileKey); filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	p := pre.DefaultParameters()

	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(HTTPAddrKey, defaultHTTPAddr)
	v.SetDefault(MetricsAddrKey, defaultMetricsAddr)
	v.SetDefault(StorageKey, defaultStorage)
	v.SetDefault(StoragePathKey, defaultStoragePath)
	v.SetDefault(StorageCapacityMBKey, defaultStorageCapacityMB)
	v.SetDefault(RedisAddrKey, defaultRedisAddr)
	v.SetDefault(QueueKey, defaultQueue)
	v.SetDefault(QueueNameKey, defaultQueueName)
	v.SetDefault(WorkersKey, defaultWorkers)
	v.SetDefault(RingDimKey, p.RingDim)
	v.SetDefault(HopBudgetKey, p.HopBudget)
	v.SetDefault(PlaintextModulusKey, p.PlaintextModulus)
	v.SetDefault(PREModeKey, p.Mode.String())
}

// BuildConfig constructs the config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment
//  3. Config file
//  4. Defaults
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}
