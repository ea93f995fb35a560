package broadcast

import (
	"context"
	"sync"
)

// Message wraps data of type T for type-safe broadcasting.
type Message[T any] struct {
	Data T
}

// Subscriber receives messages from a Broadcaster.
// Implementations must be safe for concurrent use.
type Subscriber[T any] interface {
	// Receive returns a channel for receiving broadcast messages.
	// The channel is closed once the subscriber or its broadcaster is closed.
	Receive(ctx context.Context) <-chan Message[T]

	// Close closes the subscriber and releases resources.
	// Close is idempotent and safe to call multiple times.
	Close() error
}

// Broadcaster sends messages to multiple subscribers.
type Broadcaster[T any] interface {
	// Subscribe creates a new subscriber that will receive all broadcast messages.
	// The context controls the lifetime of the subscription.
	Subscribe(ctx context.Context) Subscriber[T]

	// Broadcast sends a message to all active subscribers.
	Broadcast(ctx context.Context, msg Message[T]) error

	// Close shuts down the broadcaster and closes all subscribers.
	Close() error
}

// subscriber owns an unbounded FIFO mailbox drained by a single pump goroutine.
// Broadcast never blocks on a slow reader and never drops a message.
type subscriber[T any] struct {
	out   chan Message[T]
	wake  chan struct{}
	quit  chan struct{}
	owner *Subject[T]

	mu       sync.Mutex
	queue    []Message[T]
	draining bool
	once     sync.Once
}

func newSubscriber[T any](owner *Subject[T]) *subscriber[T] {
	s := &subscriber[T]{
		out:   make(chan Message[T]),
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
		owner: owner,
	}
	go s.pump()
	return s
}

func (s *subscriber[T]) Receive(ctx context.Context) <-chan Message[T] {
	return s.out
}

func (s *subscriber[T]) Close() error {
	s.once.Do(func() {
		close(s.quit)
		if s.owner != nil {
			s.owner.remove(s)
		}
	})
	return nil
}

// enqueue appends msg to the mailbox. It reports false once the subscriber
// stopped accepting messages.
func (s *subscriber[T]) enqueue(msg Message[T]) bool {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// drain makes the pump deliver what is queued and then close the channel.
func (s *subscriber[T]) drain() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.draining {
			s.mu.Unlock()
			select {
			case <-s.wake:
			case <-s.quit:
				return
			}
			s.mu.Lock()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		msg := s.queue[0]
		s.queue[0] = Message[T]{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- msg:
		case <-s.quit:
			return
		}
	}
}
