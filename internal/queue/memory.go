// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process FIFO queue. It backs single-binary
// deployments and tests.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    map[string]Job
	pending []string
	notify  chan struct{}
	done    chan struct{}
	closed  bool
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:   make(map[string]Job),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Push(_ context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = NewJobID()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	job.Status = StatusPending

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.jobs[job.ID] = *job
	q.pending = append(q.pending, job.ID)
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *MemoryQueue) Pop(ctx context.Context) (*Job, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		if len(q.pending) > 0 {
			id := q.pending[0]
			q.pending = q.pending[1:]
			job := q.jobs[id]
			more := len(q.pending) > 0
			q.mu.Unlock()

			// Pass the wakeup on so concurrent poppers drain the backlog.
			if more {
				q.signal()
			}
			return &job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, ErrQueueClosed
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) Update(_ context.Context, job *Job) error {
	job.UpdatedAt = time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	q.jobs[job.ID] = *job
	return nil
}

func (q *MemoryQueue) Get(_ context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

// Len returns the number of jobs waiting to be popped.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
