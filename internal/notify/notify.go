// Package notify is a small broadcast hub for change notifications.
package notify

import "sync"

const bufferSize = 16

// Hub fans values out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the value.
type Hub[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]chan T
}

// Subscribe registers a subscriber. The returned cancel func unsubscribes
// and closes the channel; calling it more than once is safe.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]chan T)
	}
	id := h.next
	h.next++
	ch := make(chan T, bufferSize)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers v to every current subscriber.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Len returns the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
