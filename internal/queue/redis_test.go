// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package queue

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func newRedisQueue(t *testing.T) *RedisQueue {
	t.Helper()
	addr := os.Getenv("GNOSIS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GNOSIS_TEST_REDIS_ADDR not set")
	}
	q, err := NewRedisQueue(RedisConfig{Addr: addr}, "test-"+NewJobID())
	require.NoError(t, err)
	return q
}

func TestRedisQueue(t *testing.T) {
	ctx := context.Background()
	q := newRedisQueue(t)
	defer q.Close()

	for _, p := range []string{"alice", "bob"} {
		require.NoError(t, q.Push(ctx, &Job{Operation: OpGenKeyPair, Principal: p}))
	}

	first, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", first.Principal)
	require.Equal(t, StatusPending, first.Status)
	require.Equal(t, OpGenKeyPair, first.Operation)

	first.Status = StatusCompleted
	first.ResultHandle = "pk"
	require.NoError(t, q.Update(ctx, first))

	got, err := q.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "pk", got.ResultHandle)

	second, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "bob", second.Principal)

	_, err = q.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
	require.ErrorIs(t, q.Update(ctx, &Job{ID: "missing"}), ErrJobNotFound)
}

func TestRedisQueueClosed(t *testing.T) {
	q := newRedisQueue(t)
	require.NoError(t, q.Close())

	_, err := q.Pop(context.Background())
	require.ErrorIs(t, err, ErrQueueClosed)
}
