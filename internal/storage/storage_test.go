// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package storage

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()

	file, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	out := map[string]Storage{
		"memory": NewMemoryStorage(1),
		"file":   file,
	}
	if addr := os.Getenv("GNOSIS_TEST_REDIS_ADDR"); addr != "" {
		r, err := NewRedisStorage(RedisConfig{Addr: addr})
		require.NoError(t, err)
		out["redis"] = r
	}
	return out
}

func TestStorageRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			data := []byte("ciphertext envelope " + name)
			h, err := s.Store(ctx, data)
			require.NoError(t, err)
			require.Equal(t, ComputeHandle(data), h)
			require.NoError(t, h.Validate())

			again, err := s.Store(ctx, data)
			require.NoError(t, err)
			require.Equal(t, h, again)

			ok, err := s.Exists(ctx, h)
			require.NoError(t, err)
			require.True(t, ok)

			got, err := s.Load(ctx, h)
			require.NoError(t, err)
			require.Equal(t, data, got)

			require.NoError(t, s.Delete(ctx, h))
			_, err = s.Load(ctx, h)
			require.ErrorIs(t, err, ErrNotFound)
			require.ErrorIs(t, s.Delete(ctx, h), ErrNotFound)

			ok, err = s.Exists(ctx, h)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestStorageRejectsBadHandles(t *testing.T) {
	ctx := context.Background()
	bad := []Handle{"", "abc", Handle(strings.Repeat("Z", 64)), Handle("../" + strings.Repeat("a", 61))}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			for _, h := range bad {
				_, err := s.Load(ctx, h)
				require.ErrorIs(t, err, ErrInvalidHandle)
				_, err = s.Exists(ctx, h)
				require.ErrorIs(t, err, ErrInvalidHandle)
				require.ErrorIs(t, s.Delete(ctx, h), ErrInvalidHandle)
			}
		})
	}
}

func TestMemoryStorageCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage(1)

	big := make([]byte, 1024*1024)
	_, err := s.Store(ctx, big)
	require.NoError(t, err)
	require.EqualValues(t, len(big), s.Size())

	_, err = s.Store(ctx, []byte{1})
	require.ErrorIs(t, err, ErrStorageFull)

	// Deduplicated writes do not count against capacity.
	_, err = s.Store(ctx, big)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, ComputeHandle(big)))
	require.Zero(t, s.Size())
}

func TestMemoryStorageCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage(1)

	data := []byte{1, 2, 3}
	h, err := s.Store(ctx, data)
	require.NoError(t, err)
	data[0] = 9

	got, err := s.Load(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)

	got[1] = 9
	again, err := s.Load(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, again)
}
