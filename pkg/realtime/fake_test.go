package realtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/realtime"
)

var errFakeClosed = errors.New("fake connection closed")

// fakeConn is an in-memory Conn. The test plays the server through send
// and sent.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return nil, errFakeClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	select {
	case c.out <- append([]byte(nil), data...):
	default:
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// send delivers one server message.
func (c *fakeConn) send(t *testing.T, records ...any) {
	t.Helper()
	var msg []byte
	for _, r := range records {
		switch v := r.(type) {
		case string:
			msg = append(msg, v...)
			msg = append(msg, realtime.RecordSeparator)
		default:
			b, err := realtime.Encode(v)
			require.NoError(t, err)
			msg = append(msg, b...)
		}
	}
	c.in <- msg
}

// fakeDialer hands out fakeConns. Dial results are scripted by errs; a nil
// entry or running past the end means success.
type fakeDialer struct {
	mu        sync.Mutex
	errs      []error
	handshake string
	dials     int
	tokens    []string
	conns     chan *fakeConn
}

func newFakeDialer(errs ...error) *fakeDialer {
	return &fakeDialer{errs: errs, handshake: "{}", conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, _ string, token string) (realtime.Conn, error) {
	d.mu.Lock()
	i := d.dials
	d.dials++
	d.tokens = append(d.tokens, token)
	var err error
	if i < len(d.errs) {
		err = d.errs[i]
	}
	handshake := d.handshake
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	conn := newFakeConn()
	conn.in <- append([]byte(handshake), realtime.RecordSeparator)
	d.conns <- conn
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

type recorded struct {
	attempts int
	received []string
	dropped  []string
	resyncs  int
	changes  []string
}

type countingRecorder struct {
	mu sync.Mutex
	recorded
}

func (r *countingRecorder) StateChanged(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, from+">"+to)
}

func (r *countingRecorder) ReconnectAttempt(int, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
}

func (r *countingRecorder) EventReceived(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, event)
}

func (r *countingRecorder) EventDropped(event, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, event+":"+reason)
}

func (r *countingRecorder) Resynced(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resyncs++
}

func (r *countingRecorder) snapshot() recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorded{
		attempts: r.attempts,
		received: append([]string(nil), r.received...),
		dropped:  append([]string(nil), r.dropped...),
		resyncs:  r.resyncs,
		changes:  append([]string(nil), r.changes...),
	}
}
