// Package workpool bounds how many blocking relational store calls run at
// once and applies a per-call deadline to each of them.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrAcquire is returned when a slot could not be obtained before the
// caller's context or the pool deadline expired.
var ErrAcquire = errors.New("workpool: no slot available")

const defaultMaxConcurrency = 16

// Pool is a weighted semaphore with a per-call timeout.
type Pool struct {
	sem      *semaphore.Weighted
	size     int64
	timeout  time.Duration
	inflight atomic.Int64
}

// New creates a pool allowing maxConcurrency calls at once. A non-positive
// timeout disables the per-call deadline.
func New(maxConcurrency int, timeout time.Duration) *Pool {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(maxConcurrency)),
		size:    int64(maxConcurrency),
		timeout: timeout,
	}
}

// Run executes fn once a slot is free. The deadline covers both the wait for
// a slot and fn itself.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	if err := p.sem.Acquire(callCtx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrAcquire, err)
	}
	p.inflight.Add(1)
	defer func() {
		p.inflight.Add(-1)
		p.sem.Release(1)
	}()

	return fn(callCtx)
}

// Do is Run for calls that produce a value.
func Do[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p *Pool) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// InFlight reports how many calls currently hold a slot.
func (p *Pool) InFlight() int64 {
	return p.inflight.Load()
}

// Size is the configured concurrency bound.
func (p *Pool) Size() int64 {
	return p.size
}
