package broadcast

import (
	"context"
	"sync"
)

// Subject is a lossless in-memory Broadcaster that remembers the latest value.
// Every subscriber observes every broadcast in publication order; a new
// subscriber first receives the latest value, if any.
// All methods are safe for concurrent use.
type Subject[T any] struct {
	subscribers map[*subscriber[T]]struct{}
	latest      T
	hasLatest   bool
	closed      bool
	mu          sync.Mutex
}

var _ Broadcaster[int] = (*Subject[int])(nil)

// NewSubject creates a subject with no initial value.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
	}
}

// NewBehaviorSubject creates a subject seeded with an initial value that is
// replayed to every new subscriber until the first broadcast replaces it.
func NewBehaviorSubject[T any](initial T) *Subject[T] {
	s := NewSubject[T]()
	s.latest = initial
	s.hasLatest = true
	return s
}

// Subscribe registers a new subscriber. The subscription ends when ctx is
// cancelled or the subscriber is closed. Subscribing to a closed subject
// returns a subscriber whose channel is already closed.
func (s *Subject[T]) Subscribe(ctx context.Context) Subscriber[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := newSubscriber(s)
	if s.closed {
		sub.drain()
		return sub
	}

	if s.hasLatest {
		sub.enqueue(Message[T]{Data: s.latest})
	}
	s.subscribers[sub] = struct{}{}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-sub.quit:
			}
		}()
	}

	return sub
}

// Broadcast records msg as the latest value and queues it for every subscriber.
// It never blocks on slow subscribers.
func (s *Subject[T]) Broadcast(ctx context.Context, msg Message[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.latest = msg.Data
	s.hasLatest = true
	for sub := range s.subscribers {
		sub.enqueue(msg)
	}
	return nil
}

// Publish is shorthand for Broadcast with a bare value.
func (s *Subject[T]) Publish(v T) {
	_ = s.Broadcast(context.Background(), Message[T]{Data: v})
}

// Value returns the latest published value.
func (s *Subject[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasLatest
}

// Len returns the number of active subscribers.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Close stops accepting broadcasts. Subscribers receive whatever is already
// queued for them and then see their channel closed. Close is idempotent.
func (s *Subject[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for sub := range s.subscribers {
		sub.drain()
	}
	clear(s.subscribers)
	return nil
}

func (s *Subject[T]) remove(sub *subscriber[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, sub)
}
