// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mahanfr/GnosisDB/internal/queue"
	"github.com/mahanfr/GnosisDB/internal/storage"
	"github.com/mahanfr/GnosisDB/pre"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))

	v, err := BuildViper(fs)
	require.NoError(t, err)
	return NewConfig(v)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, StorageMemory, cfg.Storage)
	require.Equal(t, QueueMemory, cfg.Queue)
	require.Positive(t, cfg.Workers)

	p, err := cfg.SchemeParameters()
	require.NoError(t, err)
	require.Equal(t, pre.DefaultParameters(), p)
}

func TestPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "gnosis.yaml")
	require.NoError(t, os.WriteFile(file, []byte("ring-dim: 4096\nhop-budget: 3\npre-mode: indcpa\nworkers: 7\n"), 0o600))

	t.Setenv("GNOSIS_HOP_BUDGET", "5")

	cfg, err := load(t, "--config-file", file, "--workers", "2")
	require.NoError(t, err)

	require.Equal(t, 4096, cfg.RingDim)
	require.Equal(t, 5, cfg.HopBudget)
	require.Equal(t, 2, cfg.Workers)

	p, err := cfg.SchemeParameters()
	require.NoError(t, err)
	require.Equal(t, pre.ModeINDCPA, p.Mode)
	require.Equal(t, 4096, p.RingDim)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"LogLevel", []string{"--log-level", "loud"}},
		{"Storage", []string{"--storage", "tape"}},
		{"Queue", []string{"--queue", "kafka"}},
		{"Workers", []string{"--workers", "0"}},
		{"Capacity", []string{"--storage-capacity-mb", "0"}},
		{"FilePath", []string{"--storage", "file", "--storage-path", ""}},
		{"RedisAddr", []string{"--queue", "redis", "--redis-addr", ""}},
		{"RingDim", []string{"--ring-dim", "1000"}},
		{"HopBudget", []string{"--hop-budget", "0"}},
		{"Mode", []string{"--pre-mode", "plain"}},
		{"EnvelopeKeyHex", []string{"--envelope-key", "zz"}},
		{"EnvelopeKeyLength", []string{"--envelope-key", "abcd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestEnvelopeKey(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)
	key, err := cfg.EnvelopeKeyBytes()
	require.NoError(t, err)
	require.Nil(t, key)

	t.Setenv("GNOSIS_ENVELOPE_KEY", strings.Repeat("ab", pre.EnvelopeKeySize))
	cfg, err = load(t)
	require.NoError(t, err)
	key, err = cfg.EnvelopeKeyBytes()
	require.NoError(t, err)
	require.Len(t, key, pre.EnvelopeKeySize)
	require.Equal(t, byte(0xab), key[0])

	opts, err := cfg.ContextOptions(zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, opts, 2)
}

func TestOpenBackends(t *testing.T) {
	cfg, err := load(t, "--storage", "file", "--storage-path", t.TempDir())
	require.NoError(t, err)

	s, err := cfg.OpenStorage()
	require.NoError(t, err)
	require.IsType(t, &storage.FileStorage{}, s)
	require.NoError(t, s.Close())

	q, err := cfg.OpenQueue()
	require.NoError(t, err)
	require.IsType(t, &queue.MemoryQueue{}, q)
	require.NoError(t, q.Close())
}
