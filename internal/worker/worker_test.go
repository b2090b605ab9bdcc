// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mahanfr/GnosisDB/internal/queue"
)

func TestPoolDo(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Do(context.Background(), func(context.Context) error {
			calls.Add(1)
			return nil
		}))
	}
	require.EqualValues(t, 10, calls.Load())

	boom := errors.New("boom")
	require.ErrorIs(t, p.Do(context.Background(), func(context.Context) error { return boom }), boom)
}

func TestPoolBounded(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	var running, peak atomic.Int32
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			errs <- p.Do(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-errs)
	}
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPoolCancel(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go p.Do(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	// The only slot is busy, so the caller gives up while queued.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Do(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestPoolAbandonRunning(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		errs <- p.Do(ctx, func(context.Context) error {
			<-release
			return nil
		})
	}()

	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)
	close(release)
}

func TestPoolPanic(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	err := p.Do(context.Background(), func(context.Context) error { panic("bad") })
	require.ErrorContains(t, err, "worker panic")
	require.NoError(t, p.Do(context.Background(), func(context.Context) error { return nil }))
}

func TestPoolClosed(t *testing.T) {
	p := NewPool(1)
	p.Close()
	p.Close()
	require.ErrorIs(t, p.Do(context.Background(), func(context.Context) error { return nil }), ErrPoolClosed)
}

func TestConsumer(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	defer q.Close()

	h := HandlerFunc(func(_ context.Context, job *queue.Job) error {
		if job.Principal == "mallory" {
			return errors.New("unknown principal")
		}
		job.ResultHandle = "pk-" + job.Principal
		return nil
	})
	c := NewConsumer(2, q, h, nil, zaptest.NewLogger(t))
	require.NoError(t, c.Start(ctx))
	require.Error(t, c.Start(ctx))

	ok := &queue.Job{Operation: queue.OpGenKeyPair, Principal: "alice"}
	bad := &queue.Job{Operation: queue.OpGenKeyPair, Principal: "mallory"}
	require.NoError(t, q.Push(ctx, ok))
	require.NoError(t, q.Push(ctx, bad))

	require.Eventually(t, func() bool {
		return c.Succeeded() == 1 && c.Failed() == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	got, err := q.Get(ctx, ok.ID)
	require.NoError(t, err)
	require.Equal(t, queue.StatusCompleted, got.Status)
	require.Equal(t, "pk-alice", got.ResultHandle)

	got, err = q.Get(ctx, bad.ID)
	require.NoError(t, err)
	require.Equal(t, queue.StatusFailed, got.Status)
	require.Equal(t, "unknown principal", got.Error)
}
