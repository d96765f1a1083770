package engine

import (
	"context"
	"sync"
)

// Lazy builds a shared engine on first use and caches it once construction
// succeeds. A failed build is retried by the next caller. Callers waiting
// on another caller's build give up when their own ctx ends.
type Lazy[T any] struct {
	mu      sync.Mutex
	build   func(ctx context.Context) (T, error)
	value   T
	ready   bool
	pending chan struct{} // closed when the running build finishes
}

func NewLazy[T any](build func(ctx context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{build: build}
}

// Eager wraps an already constructed engine.
func Eager[T any](v T) *Lazy[T] {
	return &Lazy[T]{value: v, ready: true}
}

// Get returns the cached value, building it if needed.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		l.mu.Lock()
		if l.ready {
			v := l.value
			l.mu.Unlock()
			return v, nil
		}
		wait := l.pending
		if wait == nil {
			break
		}
		l.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	// l.mu is held here and no build is running
	done := make(chan struct{})
	l.pending = done
	l.mu.Unlock()

	var (
		v     T
		built bool
	)
	// a panicking build leaves the value unset for the next caller
	defer func() {
		l.mu.Lock()
		if built {
			l.value = v
			l.ready = true
		}
		l.pending = nil
		l.mu.Unlock()
		close(done)
	}()
	v, err := l.build(ctx)
	if err != nil {
		return zero, err
	}
	built = true
	return v, nil
}

// limiter bounds concurrent calls into one engine instance.
type limiter struct {
	ch chan struct{}
}

func newLimiter(capacity int) *limiter {
	if capacity <= 0 {
		capacity = 1
	}
	return &limiter{ch: make(chan struct{}, capacity)}
}

func (l *limiter) acquire(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limiter) release() {
	<-l.ch
}
