// Package eventbus is a small in-process publish/subscribe hub. Transport,
// executor and store publish lifecycle events; logging and telemetry
// subscribe to them.
package eventbus

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
)

// Handler processes events of type T.
type Handler[T any] func(context.Context, T)

type subscription struct {
	id uint64
	fn func(context.Context, any)
}

// Bus dispatches events synchronously to the handlers registered for the
// event's dynamic type. It is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[reflect.Type][]subscription
}

// New creates a new Bus.
func New() *Bus { return &Bus{subs: make(map[reflect.Type][]subscription)} }

func (b *Bus) subscribe(t reflect.Type, fn func(context.Context, any)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[t]
			for i, s := range subs {
				if s.id == id {
					subs = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(subs) == 0 {
				delete(b.subs, t)
			} else {
				b.subs[t] = subs
			}
		})
	}
}

func (b *Bus) emit(ctx context.Context, e any) {
	t := reflect.TypeOf(e)
	b.mu.RLock()
	subs := b.subs[t]
	b.mu.RUnlock()
	// subs is never mutated in place, so iterating without the lock is safe.
	for _, s := range subs {
		dispatch(ctx, t, s.fn, e)
	}
}

// dispatch isolates publishers from misbehaving subscribers.
func dispatch(ctx context.Context, t reflect.Type, fn func(context.Context, any), e any) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "eventbus: subscriber panicked", "event", t.String(), "panic", r)
		}
	}()
	fn(ctx, e)
}

var global atomic.Pointer[Bus]

// Use sets the global bus. Passing nil disables event publishing.
func Use(b *Bus) { global.Store(b) }

// Subscribe registers h with the global bus. It is a no-op returning a no-op
// unsubscribe when no bus is installed.
func Subscribe[T any](h Handler[T]) (unsubscribe func()) {
	b := global.Load()
	if b == nil {
		return func() {}
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	return b.subscribe(t, func(ctx context.Context, v any) { h(ctx, v.(T)) })
}

// Publish sends e through the global bus.
func Publish[T any](ctx context.Context, e T) {
	if b := global.Load(); b != nil {
		b.emit(ctx, e)
	}
}
