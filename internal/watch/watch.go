// Package watch provides a small snapshot-oriented pub/sub hub. Storage
// feeds publish the full current result set after every write; subscribers
// always observe complete snapshots, never deltas.
package watch

import (
	"context"
	"sync"
)

// Hub fan-outs snapshots to all active subscribers. A slow subscriber never
// blocks a publisher: each subscriber holds a one-slot buffer and a newer
// snapshot replaces a stale undelivered one.
type Hub[T any] struct {
	mu   sync.Mutex
	subs map[int]chan T
	next int
}

// NewHub initialises an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a subscriber and returns its snapshot channel. The
// channel is closed when the provided context ends.
func (h *Hub[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish delivers the snapshot to every subscriber, replacing any
// undelivered older snapshot.
func (h *Hub[T]) Publish(snapshot T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- snapshot:
		default:
			// Drop the stale snapshot, then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub[T]) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
