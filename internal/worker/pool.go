// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package worker runs blocking engine calls on a bounded set of goroutines
// and drains the job queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned by Do after Close.
var ErrPoolClosed = errors.New("worker pool closed")

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool executes functions on a fixed number of goroutines.
type Pool struct {
	tasks chan task
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewPool starts size goroutines. size below one is treated as one.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		tasks: make(chan task),
		quit:  make(chan struct{}),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case t := <-p.tasks:
			t.done <- p.call(t)
		}
	}
}

func (p *Pool) call(t task) (err error) {
	if err := t.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return t.fn(t.ctx)
}

// Do runs fn on the pool and waits for it. If ctx is done first, Do returns
// ctx.Err() at once; fn keeps its slot until it returns.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the goroutines after their current call and waits for them.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}
