// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mahanfr/GnosisDB/internal/metrics"
	"github.com/mahanfr/GnosisDB/internal/queue"
)

// Handler executes one job. It fills the job's result fields on success.
type Handler interface {
	HandleJob(ctx context.Context, job *queue.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *queue.Job) error

func (f HandlerFunc) HandleJob(ctx context.Context, job *queue.Job) error { return f(ctx, job) }

const (
	shutdownTimeout = 30 * time.Second
	popRetryDelay   = time.Second
)

// Consumer pops jobs from a queue and runs them through a Handler.
type Consumer struct {
	numWorkers int
	queue      queue.Queue
	handler    Handler
	metrics    *metrics.Metrics
	log        *zap.Logger

	wg           sync.WaitGroup
	cancel       context.CancelFunc
	running      atomic.Bool
	successCount atomic.Int64
	failureCount atomic.Int64
}

// NewConsumer creates a consumer with numWorkers goroutines. m may be nil.
func NewConsumer(numWorkers int, q queue.Queue, h Handler, m *metrics.Metrics, log *zap.Logger) *Consumer {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		numWorkers: numWorkers,
		queue:      q,
		handler:    h,
		metrics:    m,
		log:        log,
	}
}

// Start launches the workers.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("consumer already running")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.log.Info("starting workers", zap.Int("workers", c.numWorkers))

	for i := 0; i < c.numWorkers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}
	return nil
}

// Stop cancels the workers and waits for in-flight jobs.
func (c *Consumer) Stop() error {
	if !c.running.Load() {
		return nil
	}

	c.log.Info("stopping workers")
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.log.Info("workers stopped")
	case <-time.After(shutdownTimeout):
		c.log.Warn("shutdown timeout exceeded")
		return errors.New("shutdown timeout")
	}

	c.running.Store(false)
	return nil
}

// Succeeded returns the number of completed jobs.
func (c *Consumer) Succeeded() int64 { return c.successCount.Load() }

// Failed returns the number of failed jobs.
func (c *Consumer) Failed() int64 { return c.failureCount.Load() }

func (c *Consumer) worker(ctx context.Context, id int) {
	defer c.wg.Done()

	log := c.log.With(zap.Int("worker", id))
	log.Debug("worker started")

	for {
		job, err := c.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrQueueClosed) {
				log.Debug("worker stopping")
				return
			}
			log.Warn("failed to pop job", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(popRetryDelay):
			}
			continue
		}

		c.process(ctx, log, job)
	}
}

func (c *Consumer) process(ctx context.Context, log *zap.Logger, job *queue.Job) {
	log = log.With(zap.String("job", job.ID), zap.String("op", string(job.Operation)))
	log.Debug("processing job")

	job.Status = queue.StatusProcessing
	if err := c.queue.Update(ctx, job); err != nil {
		log.Warn("failed to update job status", zap.Error(err))
	}

	err := c.handler.HandleJob(ctx, job)
	c.metrics.ObserveJob(string(job.Operation), err)
	if err != nil {
		job.Status = queue.StatusFailed
		job.Error = err.Error()
		c.failureCount.Add(1)
		log.Info("job failed", zap.Error(err))
	} else {
		job.Status = queue.StatusCompleted
		job.Error = ""
		c.successCount.Add(1)
		log.Debug("job completed")
	}

	// The job outcome is recorded even when the worker is shutting down.
	if err := c.queue.Update(context.WithoutCancel(ctx), job); err != nil {
		log.Warn("failed to update job result", zap.Error(err))
	}
}
