// Package events fans out session notifications (connection state, sync
// progress, job and GPU snapshots) to any number of observers.
package events

import (
	"fmt"
	"log/slog"
	"sync"
)

const defaultBuffer = 100

// Broker broadcasts values of type T to its subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the value.
type Broker[T any] struct {
	name   string
	buffer int

	mu     sync.RWMutex
	subs   map[chan T]struct{}
	closed bool
}

func NewBroker[T any](name string) *Broker[T] {
	return &Broker[T]{
		name:   name,
		buffer: defaultBuffer,
		subs:   make(map[chan T]struct{}),
	}
}

// Subscribe creates a new channel receiving every value published from now on.
// On a closed broker the returned channel is already closed.
func (b *Broker[T]) Subscribe() chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the channel from the subscribers and closes it. It is a
// no-op for unknown channels.
func (b *Broker[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

func (b *Broker[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			slog.Warn("Discarding event (channel full)",
				slog.String("broker", b.name),
				slog.String("data", fmt.Sprintf("%v", v)),
			)
		}
	}
}

func (b *Broker[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	clear(b.subs)
}
