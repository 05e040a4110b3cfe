// Package event provides typed in-process notification feeds.
//
// A Feed delivers values to its subscribers in subscription order. A
// subscription that is released while a value is being delivered, including
// from inside another subscriber of the same feed, does not receive that value
// or any later one.
package event

import (
	"sync"
	"sync/atomic"
)

// Subscription is the handle returned by Feed.Subscribe.
type Subscription struct {
	released atomic.Bool
	release  func()
}

// Unsubscribe detaches the handler. It is safe to call more than once and on
// a nil subscription.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	if s.released.Swap(true) {
		return
	}
	if s.release != nil {
		s.release()
	}
}

// Active reports whether the handler is still attached.
func (s *Subscription) Active() bool {
	return s != nil && !s.released.Load()
}

type handler[T any] struct {
	fn  func(T)
	sub *Subscription
}

// Feed is a list of handlers for values of type T. The zero value is ready to
// use.
type Feed[T any] struct {
	mu       sync.Mutex
	handlers []*handler[T]
}

// Subscribe registers fn and returns its handle.
func (f *Feed[T]) Subscribe(fn func(T)) *Subscription {
	h := &handler[T]{fn: fn}
	h.sub = &Subscription{release: func() { f.remove(h) }}

	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	f.mu.Unlock()
	return h.sub
}

// Emit delivers value to every attached handler and returns how many ran.
func (f *Feed[T]) Emit(value T) int {
	f.mu.Lock()
	snapshot := make([]*handler[T], len(f.handlers))
	copy(snapshot, f.handlers)
	f.mu.Unlock()

	delivered := 0
	for _, h := range snapshot {
		if !h.sub.Active() {
			continue
		}
		h.fn(value)
		delivered++
	}
	return delivered
}

// Len returns the number of attached handlers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *Feed[T]) remove(target *handler[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, h := range f.handlers {
		if h == target {
			f.handlers = append(f.handlers[:i:i], f.handlers[i+1:]...)
			return
		}
	}
}

// Group collects subscriptions so they can be released together.
type Group struct {
	subs []*Subscription
}

// Add tracks sub and returns it.
func (g *Group) Add(sub *Subscription) *Subscription {
	g.subs = append(g.subs, sub)
	return sub
}

// Len returns the number of tracked subscriptions.
func (g *Group) Len() int {
	return len(g.subs)
}

// Unsubscribe releases every tracked subscription and forgets them.
func (g *Group) Unsubscribe() {
	for _, sub := range g.subs {
		sub.Unsubscribe()
	}
	g.subs = nil
}
