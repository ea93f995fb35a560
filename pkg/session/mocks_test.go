package session_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/realtime"
)

// MockAPI is a mock implementation of session.API.
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) FetchAll(ctx context.Context) ([]notifications.Notification, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]notifications.Notification), args.Error(1)
}

func (m *MockAPI) FetchUnreadCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockAPI) MarkAllRead(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockAPI) MarkRead(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAPI) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

var errConnClosed = errors.New("connection closed")

// pipeConn answers the handshake and then stays idle until closed.
type pipeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *pipeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *pipeConn) WriteMessage([]byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
		return nil
	}
}

func (c *pipeConn) SetReadDeadline(time.Time) error { return nil }

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// stubDialer fails with err when set, otherwise hands out pipeConns.
type stubDialer struct {
	err error
}

func (d stubDialer) Dial(ctx context.Context, _, _ string) (realtime.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	conn := &pipeConn{in: make(chan []byte, 1), closed: make(chan struct{})}
	conn.in <- append([]byte("{}"), realtime.RecordSeparator)
	return conn, nil
}
