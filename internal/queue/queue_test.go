// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	defer q.Close()

	for _, p := range []string{"alice", "bob", "carol"} {
		require.NoError(t, q.Push(ctx, &Job{Operation: OpGenKeyPair, Principal: p}))
	}
	require.Equal(t, 3, q.Len())

	for _, p := range []string{"alice", "bob", "carol"} {
		job, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, p, job.Principal)
		require.Equal(t, StatusPending, job.Status)
		require.NotEmpty(t, job.ID)
	}
	require.Zero(t, q.Len())
}

func TestMemoryQueueUpdate(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	defer q.Close()

	job := &Job{Operation: OpEncrypt, KeyHandle: "pk", Payload: []byte("hi")}
	require.NoError(t, q.Push(ctx, job))

	job.Status = StatusCompleted
	job.ResultHandle = "ct"
	require.NoError(t, q.Update(ctx, job))

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "ct", got.ResultHandle)
	require.True(t, got.Status.Done())

	_, err = q.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
	require.ErrorIs(t, q.Update(ctx, &Job{ID: "missing"}), ErrJobNotFound)
}

func TestMemoryQueuePopBlocks(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan *Job, 1)
	go func() {
		job, err := q.Pop(context.Background())
		if err == nil {
			got <- job
		}
	}()

	require.NoError(t, q.Push(context.Background(), &Job{ID: "late", Operation: OpDecrypt}))
	select {
	case job := <-got:
		require.Equal(t, "late", job.ID)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestMemoryQueueConcurrentPop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q := NewMemoryQueue()
	defer q.Close()

	const n = 64
	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := q.Pop(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[job.ID] = true
				done := len(seen) == n
				mu.Unlock()
				if done {
					cancel()
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		require.NoError(t, q.Push(context.Background(), &Job{Operation: OpReEncrypt}))
	}
	wg.Wait()
	require.Len(t, seen, n)
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue()

	errs := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		errs <- err
	}()

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	require.ErrorIs(t, <-errs, ErrQueueClosed)
	require.ErrorIs(t, q.Push(context.Background(), &Job{}), ErrQueueClosed)
}

func TestJobJSON(t *testing.T) {
	job := Job{ID: "1", Operation: OpGenReKey, Principal: "alice", KeyHandle: "pk", Status: StatusFailed, Error: "boom"}
	data, err := json.Marshal(job)
	require.NoError(t, err)
	require.JSONEq(t,
		`{"id":"1","operation":"genReKey","principal":"alice","key_handle":"pk","status":3,"error":"boom",`+
			`"created_at":"0001-01-01T00:00:00Z","updated_at":"0001-01-01T00:00:00Z"}`,
		string(data))
}

func TestOpAndStatus(t *testing.T) {
	for _, op := range []Op{OpGenKeyPair, OpEncrypt, OpGenReKey, OpReEncrypt, OpDecrypt} {
		require.True(t, op.Valid(), op)
	}
	require.False(t, Op("add").Valid())

	require.Equal(t, "processing", StatusProcessing.String())
	require.False(t, StatusPending.Done())
	require.Len(t, NewJobID(), 32)
	require.NotEqual(t, NewJobID(), NewJobID())
}
