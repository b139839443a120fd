// Package limiter bounds how many backend calls a session may have in flight.
package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is the per-session cap on concurrent backend calls.
const DefaultCapacity = 3

// ErrInvalidCapacity is returned when a limiter is built with capacity < 1.
var ErrInvalidCapacity = errors.New("limiter capacity must be positive")

// Limiter is a counting semaphore. Every Acquire must be paired with exactly
// one Release, on success and on failure alike.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
}

// New creates a limiter with the given capacity.
func New(capacity int) (*Limiter, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}, nil
}

// Permit is held while a call is in flight.
type Permit struct {
	owner *Limiter
	once  sync.Once
}

// Release returns the permit. Calling it more than once is a no-op.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.owner.inUse.Add(-1)
		p.owner.sem.Release(1)
	})
}

// Acquire blocks until a permit is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) (*Permit, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	l.inUse.Add(1)
	return &Permit{owner: l}, nil
}

// TryAcquire takes a permit only if one is free right now.
func (l *Limiter) TryAcquire() (*Permit, bool) {
	if !l.sem.TryAcquire(1) {
		return nil, false
	}
	l.inUse.Add(1)
	return &Permit{owner: l}, true
}

// Release returns p to the limiter. Permits issued by another limiter are ignored.
func (l *Limiter) Release(p *Permit) {
	if p == nil || p.owner != l {
		return
	}
	p.Release()
}

// Do runs fn while holding a permit. The permit is released when fn returns,
// panics included.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	permit, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer permit.Release()
	return fn(ctx)
}

// Capacity returns the configured maximum.
func (l *Limiter) Capacity() int {
	return int(l.capacity)
}

// InUse returns the number of permits currently held.
func (l *Limiter) InUse() int {
	return int(l.inUse.Load())
}
