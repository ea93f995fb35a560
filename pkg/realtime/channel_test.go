package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/bearer"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/realtime"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

var fastBackoff = realtime.ExponentialBackoff{
	InitialInterval: time.Millisecond,
	MaxInterval:     4 * time.Millisecond,
	Multiplier:      2,
}

type harness struct {
	store    *notifications.Store
	dialer   *fakeDialer
	channel  *realtime.Channel
	recorder *countingRecorder
	resyncs  atomic.Int32
}

func newHarness(t *testing.T, dialer *fakeDialer, opts ...realtime.Option) *harness {
	t.Helper()
	h := &harness{
		store:    notifications.NewStore(notifications.WithStoreLogger(logger.Discard())),
		dialer:   dialer,
		recorder: &countingRecorder{},
	}
	base := []realtime.Option{
		realtime.WithLogger(logger.Discard()),
		realtime.WithBackoff(fastBackoff),
		realtime.WithKeepAlive(time.Hour),
		realtime.WithRecorder(h.recorder),
		realtime.WithResyncer(func(ctx context.Context) error {
			h.resyncs.Add(1)
			h.store.EndResync()
			return nil
		}),
	}
	h.channel = realtime.New("ws://hub.test/hubs/notifications", dialer, h.store, append(base, opts...)...)
	t.Cleanup(func() {
		_ = h.channel.Close()
		_ = h.store.Close()
	})
	return h
}

func invocation(t *testing.T, target string, args ...any) realtime.Frame {
	t.Helper()
	f, err := realtime.Invocation("", target, args...)
	require.NoError(t, err)
	return f
}

func notification(id string, read bool) map[string]any {
	return map[string]any{
		"Id":        id,
		"Title":     "title " + id,
		"Message":   "message " + id,
		"Type":      "PickupCompleted",
		"IsRead":    read,
		"CreatedAt": "2024-01-01T00:00:00Z",
	}
}

func TestChannel_StartAndPush(t *testing.T) {
	t.Parallel()
	h := newHarness(t, newFakeDialer())
	ctx := context.Background()

	connected := h.channel.Connected(ctx)
	defer connected.Close()
	events := h.channel.Events(ctx)
	defer events.Close()

	require.NoError(t, h.channel.Start(ctx, "tok"))
	assert.Equal(t, realtime.StateConnected, h.channel.State())
	conn := h.dialer.next(t)

	select {
	case first := <-conn.out:
		assert.JSONEq(t, `{"protocol":"json","version":1}`, string(first[:len(first)-1]))
	case <-time.After(waitFor):
		t.Fatal("no handshake written")
	}

	conn.send(t, invocation(t, "ReceiveNotification", notification("c", false)))

	select {
	case ev := <-events.Receive(ctx):
		assert.Equal(t, realtime.EventReceiveNotification, ev.Data.Name)
		require.NotNil(t, ev.Data.Notification)
		assert.Equal(t, "c", ev.Data.Notification.ID)
	case <-time.After(waitFor):
		t.Fatal("no event published")
	}

	snap := h.store.Snapshot()
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, 1, snap.UnreadCount)
	assert.Equal(t, notifications.CategoryPickup, snap.Notifications[0].Type.Category())

	for _, want := range []bool{false, true} {
		select {
		case msg := <-connected.Receive(ctx):
			assert.Equal(t, want, msg.Data)
		case <-time.After(waitFor):
			t.Fatal("no connection signal")
		}
	}

	require.NoError(t, h.channel.Stop())
	select {
	case msg := <-connected.Receive(ctx):
		assert.False(t, msg.Data)
	case <-time.After(waitFor):
		t.Fatal("no disconnect signal")
	}
	assert.True(t, conn.isClosed())
	assert.Eventually(t, func() bool { return h.resyncs.Load() == 1 }, waitFor, tick)
}

func TestChannel_EventTable(t *testing.T) {
	t.Parallel()
	h := newHarness(t, newFakeDialer())
	ctx := context.Background()

	h.store.ReplaceAll([]notifications.Notification{
		{ID: "a", Title: "a", Message: "a"},
		{ID: "b", Title: "b", Message: "b"},
		{ID: "d", Title: "d", Message: "d"},
	})
	require.NoError(t, h.channel.Start(ctx, "tok"))
	conn := h.dialer.next(t)
	require.Eventually(t, func() bool { return !h.store.Snapshot().Incomplete }, waitFor, tick)

	conn.send(t, invocation(t, "ReceiveNotification", notification("c", false)))
	require.Eventually(t, func() bool { return h.store.Snapshot().UnreadCount == 4 }, waitFor, tick)

	conn.send(t, invocation(t, "notificationmarkedasread", "a"))
	require.Eventually(t, func() bool { return h.store.Snapshot().UnreadCount == 3 }, waitFor, tick)

	conn.send(t, invocation(t, "NotificationBatchRead", map[string]any{"notificationIds": []string{"b", "c"}}))
	require.Eventually(t, func() bool { return h.store.Snapshot().UnreadCount == 1 }, waitFor, tick)

	conn.send(t, invocation(t, "UpdateUnreadCount", 42))
	conn.send(t, invocation(t, "NotificationDeleted", map[string]any{"notificationId": "a"}))
	require.Eventually(t, func() bool { return len(h.store.Snapshot().Notifications) == 3 }, waitFor, tick)
	assert.Equal(t, 1, h.store.Snapshot().UnreadCount, "steady-state count stays derived")

	conn.send(t, invocation(t, "AllNotificationsRead"))
	require.Eventually(t, func() bool { return h.store.Snapshot().UnreadCount == 0 }, waitFor, tick)

	rec := h.recorder.snapshot()
	assert.Equal(t, []string{
		realtime.EventReceiveNotification,
		realtime.EventNotificationMarkedAsRead,
		realtime.EventNotificationBatchRead,
		realtime.EventUpdateUnreadCount,
		realtime.EventNotificationDeleted,
		realtime.EventAllNotificationsRead,
	}, rec.received)
}

func TestChannel_MalformedEventsDropped(t *testing.T) {
	t.Parallel()
	h := newHarness(t, newFakeDialer())
	ctx := context.Background()

	require.NoError(t, h.channel.Start(ctx, "tok"))
	conn := h.dialer.next(t)

	conn.send(t, "not json")
	conn.send(t, `{"target":"x"}`)
	conn.send(t, invocation(t, "ReceiveNotification"))
	conn.send(t, invocation(t, "ReceiveNotification", "oops"))
	conn.send(t, invocation(t, "NotificationBatchRead", map[string]any{"other": 1}))
	conn.send(t, invocation(t, "SomethingElse", 1))
	conn.send(t, realtime.Frame{Type: realtime.MessagePing},
		invocation(t, "ReceiveNotification", notification("ok", false)))

	require.Eventually(t, func() bool { return len(h.store.Snapshot().Notifications) == 1 }, waitFor, tick)
	assert.Equal(t, realtime.StateConnected, h.channel.State())
	assert.False(t, conn.isClosed())

	rec := h.recorder.snapshot()
	assert.Len(t, rec.dropped, 6)
	assert.Equal(t, 1, h.dialer.dialCount())
}

func TestChannel_ReconnectResyncsOncePerReconnection(t *testing.T) {
	t.Parallel()
	dialErr := fmt.Errorf("%w: connection refused", realtime.ErrDial)
	h := newHarness(t, newFakeDialer(nil, dialErr, dialErr, nil))
	ctx := context.Background()

	states := h.channel.States(ctx)
	defer states.Close()

	require.NoError(t, h.channel.Start(ctx, "tok"))
	first := h.dialer.next(t)
	require.Eventually(t, func() bool { return h.resyncs.Load() == 1 }, waitFor, tick)

	require.NoError(t, first.Close())

	second := h.dialer.next(t)
	require.Eventually(t, func() bool { return h.channel.State() == realtime.StateConnected }, waitFor, tick)
	require.Eventually(t, func() bool { return h.resyncs.Load() == 2 }, waitFor, tick)
	assert.Equal(t, 4, h.dialer.dialCount())
	assert.False(t, second.isClosed())

	var seen []realtime.State
	for len(seen) < 5 {
		select {
		case msg := <-states.Receive(ctx):
			seen = append(seen, msg.Data)
		case <-time.After(waitFor):
			t.Fatalf("states so far: %v", seen)
		}
	}
	assert.Equal(t, []realtime.State{
		realtime.StateDisconnected,
		realtime.StateConnecting,
		realtime.StateConnected,
		realtime.StateReconnecting,
		realtime.StateConnected,
	}, seen)

	// Stays stable: no further resyncs without another drop.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), h.resyncs.Load())
	assert.Equal(t, 3, h.recorder.snapshot().attempts)
}

func TestChannel_ResyncWindowAdoptsServerCount(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	store := notifications.NewStore(notifications.WithStoreLogger(logger.Discard()))
	t.Cleanup(func() { _ = store.Close() })
	dialer := newFakeDialer()
	ch := realtime.New("ws://hub.test", dialer, store,
		realtime.WithLogger(logger.Discard()),
		realtime.WithKeepAlive(time.Hour),
		realtime.WithResyncer(func(ctx context.Context) error {
			select {
			case <-release:
			case <-ctx.Done():
				return ctx.Err()
			}
			store.ReplaceAll([]notifications.Notification{{ID: "x"}, {ID: "y"}})
			return nil
		}),
	)
	t.Cleanup(func() { _ = ch.Close() })

	require.NoError(t, ch.Start(context.Background(), "tok"))
	conn := dialer.next(t)
	assert.True(t, store.Snapshot().Incomplete)

	conn.send(t, invocation(t, "UpdateUnreadCount", map[string]any{"count": 7}))
	require.Eventually(t, func() bool { return store.Snapshot().UnreadCount == 7 }, waitFor, tick)

	close(release)
	require.Eventually(t, func() bool { return !store.Snapshot().Incomplete }, waitFor, tick)
	assert.Equal(t, 2, store.Snapshot().UnreadCount)
}

func TestChannel_FailedResyncClosesWindow(t *testing.T) {
	t.Parallel()
	store := notifications.NewStore(notifications.WithStoreLogger(logger.Discard()))
	t.Cleanup(func() { _ = store.Close() })
	rec := &countingRecorder{}
	ch := realtime.New("ws://hub.test", newFakeDialer(), store,
		realtime.WithLogger(logger.Discard()),
		realtime.WithRecorder(rec),
		realtime.WithResyncer(func(context.Context) error { return errors.New("api down") }),
	)
	t.Cleanup(func() { _ = ch.Close() })

	require.NoError(t, ch.Start(context.Background(), "tok"))
	require.Eventually(t, func() bool { return rec.snapshot().resyncs == 1 }, waitFor, tick)
	assert.False(t, store.Snapshot().Incomplete)
}

func TestChannel_AuthFailureOnReconnectIsTerminal(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		authErr error
	)
	unauthorized := fmt.Errorf("%w: status 401", realtime.ErrUnauthorized)
	h := newHarness(t, newFakeDialer(nil, unauthorized),
		realtime.WithAuthFailureHandler(func(err error) {
			mu.Lock()
			defer mu.Unlock()
			authErr = err
		}),
	)

	require.NoError(t, h.channel.Start(context.Background(), "tok"))
	conn := h.dialer.next(t)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return h.channel.State() == realtime.StateDisconnected }, waitFor, tick)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return authErr != nil
	}, waitFor, tick)
	assert.ErrorIs(t, authErr, realtime.ErrUnauthorized)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, h.dialer.dialCount())
}

func TestChannel_ExpiredTokenStopsReconnect(t *testing.T) {
	t.Parallel()
	tokens := bearer.Static("first")
	h := newHarness(t, newFakeDialer(), realtime.WithTokens(tokens))

	require.NoError(t, h.channel.Start(context.Background(), "first"))
	conn := h.dialer.next(t)

	tokens.Clear()
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return h.channel.State() == realtime.StateDisconnected }, waitFor, tick)
	assert.Equal(t, 1, h.dialer.dialCount())
}

func TestChannel_ReconnectUsesFreshToken(t *testing.T) {
	t.Parallel()
	tokens := bearer.Static("first")
	h := newHarness(t, newFakeDialer(), realtime.WithTokens(tokens))

	require.NoError(t, h.channel.Start(context.Background(), "first"))
	conn := h.dialer.next(t)

	tokens.Set("second")
	require.NoError(t, conn.Close())
	h.dialer.next(t)

	h.dialer.mu.Lock()
	defer h.dialer.mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, h.dialer.tokens)
}

func TestChannel_StartFailures(t *testing.T) {
	t.Parallel()

	t.Run("dial error", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, newFakeDialer(fmt.Errorf("%w: refused", realtime.ErrDial)))
		err := h.channel.Start(context.Background(), "tok")
		assert.ErrorIs(t, err, realtime.ErrDial)
		assert.Equal(t, realtime.StateDisconnected, h.channel.State())
	})

	t.Run("unauthorized", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, newFakeDialer(fmt.Errorf("%w: 401", realtime.ErrUnauthorized)))
		err := h.channel.Start(context.Background(), "tok")
		assert.True(t, realtime.IsAuthFailure(err))
		assert.Equal(t, realtime.StateDisconnected, h.channel.State())
	})

	t.Run("handshake rejected", func(t *testing.T) {
		t.Parallel()
		d := newFakeDialer()
		d.handshake = `{"error":"protocol not supported"}`
		h := newHarness(t, d)
		err := h.channel.Start(context.Background(), "tok")
		assert.ErrorIs(t, err, realtime.ErrHandshake)
		assert.Equal(t, realtime.StateDisconnected, h.channel.State())
		assert.True(t, d.next(t).isClosed())
	})

	t.Run("empty token", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, newFakeDialer())
		assert.ErrorIs(t, h.channel.Start(context.Background(), ""), realtime.ErrUnauthorized)
		assert.Equal(t, 0, h.dialer.dialCount())
	})

	t.Run("restart after failure", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, newFakeDialer(fmt.Errorf("%w: refused", realtime.ErrDial)))
		require.Error(t, h.channel.Start(context.Background(), "tok"))
		require.NoError(t, h.channel.Start(context.Background(), "tok"))
		assert.Equal(t, realtime.StateConnected, h.channel.State())
	})
}

func TestChannel_Stop(t *testing.T) {
	t.Parallel()

	t.Run("from disconnected", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, newFakeDialer())
		require.NoError(t, h.channel.Stop())
		require.NoError(t, h.channel.Stop())
		assert.Equal(t, realtime.StateDisconnected, h.channel.State())
	})

	t.Run("twice while connected", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, newFakeDialer())
		require.NoError(t, h.channel.Start(context.Background(), "tok"))
		assert.ErrorIs(t, h.channel.Start(context.Background(), "tok"), realtime.ErrAlreadyStarted)

		require.NoError(t, h.channel.Stop())
		require.NoError(t, h.channel.Stop())
		assert.Equal(t, realtime.StateDisconnected, h.channel.State())

		require.NoError(t, h.channel.Start(context.Background(), "tok"))
		assert.Equal(t, realtime.StateConnected, h.channel.State())
	})

	t.Run("cancels pending reconnect", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, newFakeDialer(), realtime.WithBackoff(realtime.ExponentialBackoff{
			InitialInterval: time.Hour,
			MaxInterval:     time.Hour,
		}))
		require.NoError(t, h.channel.Start(context.Background(), "tok"))
		require.NoError(t, h.dialer.next(t).Close())
		require.Eventually(t, func() bool { return h.channel.State() == realtime.StateReconnecting }, waitFor, tick)

		done := make(chan struct{})
		go func() {
			_ = h.channel.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(waitFor):
			t.Fatal("stop blocked on backoff")
		}
		assert.Equal(t, realtime.StateDisconnected, h.channel.State())
		assert.Equal(t, 1, h.dialer.dialCount())
	})
}

func TestChannel_ServerClose(t *testing.T) {
	t.Parallel()

	t.Run("without reconnect", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, newFakeDialer())
		require.NoError(t, h.channel.Start(context.Background(), "tok"))
		conn := h.dialer.next(t)
		conn.send(t, realtime.Frame{Type: realtime.MessageClose, Error: "server shutting down"})

		require.Eventually(t, func() bool { return h.channel.State() == realtime.StateDisconnected }, waitFor, tick)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 1, h.dialer.dialCount())
	})

	t.Run("allowing reconnect", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, newFakeDialer())
		require.NoError(t, h.channel.Start(context.Background(), "tok"))
		conn := h.dialer.next(t)
		conn.send(t, realtime.Frame{Type: realtime.MessageClose, AllowReconnect: true})

		h.dialer.next(t)
		require.Eventually(t, func() bool { return h.resyncs.Load() == 2 }, waitFor, tick)
	})
}

func TestChannel_Invoke(t *testing.T) {
	t.Parallel()
	h := newHarness(t, newFakeDialer())
	ctx := context.Background()

	assert.ErrorIs(t, h.channel.Invoke(ctx, "MarkAsRead", "a"), realtime.ErrNotConnected)

	require.NoError(t, h.channel.Start(ctx, "tok"))
	conn := h.dialer.next(t)

	// Server side: answer every invocation, failing the ones for "bad".
	go func() {
		for {
			select {
			case <-conn.closed:
				return
			case msg := <-conn.out:
				for _, rec := range realtime.SplitRecords(msg) {
					f, err := realtime.DecodeFrame(rec)
					if err != nil || f.Type != realtime.MessageInvocation {
						continue
					}
					reply := realtime.Frame{Type: realtime.MessageCompletion, InvocationID: f.InvocationID}
					var arg string
					_ = json.Unmarshal(f.Arguments[0], &arg)
					if arg == "bad" {
						reply.Error = "not found"
					}
					b, _ := realtime.Encode(reply)
					conn.in <- b
				}
			}
		}
	}()

	require.NoError(t, h.channel.Invoke(ctx, "MarkAsRead", "a"))
	assert.ErrorIs(t, h.channel.Invoke(ctx, "MarkAsRead", "bad"), realtime.ErrInvocationFailed)
}

func TestChannel_InvokeFailsOnStop(t *testing.T) {
	t.Parallel()
	h := newHarness(t, newFakeDialer())
	require.NoError(t, h.channel.Start(context.Background(), "tok"))
	h.dialer.next(t)

	errs := make(chan error, 1)
	go func() { errs <- h.channel.Invoke(context.Background(), "MarkAsRead", "a") }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, h.channel.Stop())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, realtime.ErrConnectionLost)
	case <-time.After(waitFor):
		t.Fatal("invoke not released")
	}
}
