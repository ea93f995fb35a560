package broadcast_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
)

func receive[T any](t *testing.T, sub broadcast.Subscriber[T]) T {
	t.Helper()
	select {
	case msg, ok := <-sub.Receive(context.Background()):
		require.True(t, ok, "subscriber channel closed")
		return msg.Data
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	var zero T
	return zero
}

func TestSubject_Subscribe(t *testing.T) {
	t.Parallel()

	t.Run("behavior subject replays initial value", func(t *testing.T) {
		t.Parallel()
		s := broadcast.NewBehaviorSubject(7)
		defer s.Close()

		sub := s.Subscribe(context.Background())
		defer sub.Close()

		assert.Equal(t, 7, receive(t, sub))
	})

	t.Run("late subscriber gets latest value only", func(t *testing.T) {
		t.Parallel()
		s := broadcast.NewSubject[string]()
		defer s.Close()

		s.Publish("a")
		s.Publish("b")

		sub := s.Subscribe(context.Background())
		defer sub.Close()

		assert.Equal(t, "b", receive(t, sub))
	})

	t.Run("subscribe after close returns closed subscriber", func(t *testing.T) {
		t.Parallel()
		s := broadcast.NewSubject[int]()
		require.NoError(t, s.Close())

		sub := s.Subscribe(context.Background())
		select {
		case _, ok := <-sub.Receive(context.Background()):
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("channel should be closed")
		}
	})

	t.Run("context cancellation unsubscribes", func(t *testing.T) {
		t.Parallel()
		s := broadcast.NewSubject[int]()
		defer s.Close()

		ctx, cancel := context.WithCancel(context.Background())
		sub := s.Subscribe(ctx)
		require.Equal(t, 1, s.Len())

		cancel()
		assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)

		select {
		case _, ok := <-sub.Receive(context.Background()):
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("channel should be closed after cancel")
		}
	})
}

func TestSubject_Broadcast(t *testing.T) {
	t.Parallel()

	t.Run("slow subscriber receives every value in order", func(t *testing.T) {
		t.Parallel()
		s := broadcast.NewSubject[int]()
		defer s.Close()

		sub := s.Subscribe(context.Background())
		defer sub.Close()

		const n = 1000
		for i := range n {
			s.Publish(i)
		}

		for i := range n {
			require.Equal(t, i, receive(t, sub))
		}
	})

	t.Run("multiple subscribers see the same sequence", func(t *testing.T) {
		t.Parallel()
		s := broadcast.NewSubject[int]()
		defer s.Close()

		subs := []broadcast.Subscriber[int]{
			s.Subscribe(context.Background()),
			s.Subscribe(context.Background()),
			s.Subscribe(context.Background()),
		}

		var wg sync.WaitGroup
		results := make([][]int, len(subs))
		for i, sub := range subs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 50 {
					msg := <-sub.Receive(context.Background())
					results[i] = append(results[i], msg.Data)
				}
			}()
		}

		for i := range 50 {
			s.Publish(i)
		}
		wg.Wait()

		for _, r := range results {
			assert.Equal(t, results[0], r)
			assert.Len(t, r, 50)
		}
		for _, sub := range subs {
			_ = sub.Close()
		}
	})

	t.Run("close delivers queued values then closes", func(t *testing.T) {
		t.Parallel()
		s := broadcast.NewSubject[int]()
		sub := s.Subscribe(context.Background())

		s.Publish(1)
		s.Publish(2)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		var got []int
		for msg := range sub.Receive(context.Background()) {
			got = append(got, msg.Data)
		}
		assert.Equal(t, []int{1, 2}, got)
	})

	t.Run("value tracks latest broadcast", func(t *testing.T) {
		t.Parallel()
		s := broadcast.NewSubject[bool]()
		defer s.Close()

		_, ok := s.Value()
		assert.False(t, ok)

		s.Publish(true)
		v, ok := s.Value()
		assert.True(t, ok)
		assert.True(t, v)
	})
}
