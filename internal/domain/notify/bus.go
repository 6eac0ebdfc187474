// Package notify provides the typed pending/expired/complete notification
// channels a compilation publishes to its consumers.
package notify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Bus carries three independent notifications. H is the pending handle type
// and C the completion payload type.
//
// Within one signal, expired is raised before pending. Complete handlers run
// concurrently and Complete returns once all of them have returned.
type Bus[H, C any] struct {
	mu        sync.RWMutex
	pending   []func(H)
	expired   []func()
	complete  []func(context.Context, C) error
	expiredOK bool
}

// NewBus creates an empty bus.
func NewBus[H, C any]() *Bus[H, C] {
	return &Bus[H, C]{expiredOK: true}
}

// OnPending registers a handler for new pending handles.
func (b *Bus[H, C]) OnPending(fn func(H)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, fn)
}

// OnExpired registers a handler for invalidation of the latched handle.
func (b *Bus[H, C]) OnExpired(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expired = append(b.expired, fn)
}

// OnComplete registers a handler for completions.
func (b *Bus[H, C]) OnComplete(fn func(context.Context, C) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.complete = append(b.complete, fn)
}

// Expire raises expired synchronously.
func (b *Bus[H, C]) Expire() {
	b.mu.Lock()
	b.expiredOK = true
	handlers := append([]func(){}, b.expired...)
	b.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// Publish raises pending synchronously. If expired has not been raised since
// the previous pending, it is raised first.
func (b *Bus[H, C]) Publish(handle H) {
	b.mu.Lock()
	needExpire := !b.expiredOK
	b.mu.Unlock()
	if needExpire {
		b.Expire()
	}

	b.mu.Lock()
	b.expiredOK = false
	handlers := append([]func(H){}, b.pending...)
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(handle)
	}
}

// Complete runs every complete handler concurrently and waits for all of
// them. Handler errors are joined.
func (b *Bus[H, C]) Complete(ctx context.Context, payload C) error {
	b.mu.RLock()
	handlers := append([]func(context.Context, C) error{}, b.complete...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, fn := range handlers {
		g.Go(func() error {
			if err := fn(ctx, payload); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Latch holds the most recent pending handle until it expires.
type Latch[H any] struct {
	mu     sync.RWMutex
	handle H
	ok     bool
}

// Subscribe attaches the latch to a bus.
func Subscribe[H, C any](b *Bus[H, C]) *Latch[H] {
	l := &Latch[H]{}
	b.OnPending(l.set)
	b.OnExpired(l.clear)
	return l
}

func (l *Latch[H]) set(h H) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handle, l.ok = h, true
}

func (l *Latch[H]) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero H
	l.handle, l.ok = zero, false
}

// Get returns the latched handle, if any.
func (l *Latch[H]) Get() (H, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.handle, l.ok
}
