package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/bearer"
	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Channel maintains one authenticated push connection and applies pushed
// events to a Sink. Connection drops are retried with backoff until Stop
// is called or the server rejects the token.
type Channel struct {
	url    string
	dialer Dialer
	sink   Sink

	tokens           bearer.Accessor
	backoff          Backoff
	resyncer         Resyncer
	onAuthFailure    func(error)
	keepAlive        time.Duration
	serverTimeout    time.Duration
	handshakeTimeout time.Duration
	logger           *slog.Logger
	recorder         Recorder

	mu         sync.Mutex
	state      State
	connected  bool
	gen        uint64
	token      string
	conn       Conn
	dialCancel context.CancelFunc
	cancel     context.CancelFunc
	done       chan struct{}
	pending    map[string]chan error

	connectedSubj *broadcast.Subject[bool]
	states        *broadcast.Subject[State]
	events        *broadcast.Subject[Event]
}

// New creates a Channel for the hub at rawURL. It is Disconnected until Start.
func New(rawURL string, dialer Dialer, sink Sink, opts ...Option) *Channel {
	c := &Channel{
		url:              rawURL,
		dialer:           dialer,
		sink:             sink,
		backoff:          DefaultBackoff(),
		keepAlive:        15 * time.Second,
		serverTimeout:    30 * time.Second,
		handshakeTimeout: 15 * time.Second,
		logger:           slog.Default(),
		recorder:         nopRecorder{},
		state:            StateDisconnected,
		pending:          make(map[string]chan error),
		connectedSubj:    broadcast.NewBehaviorSubject(false),
		states:           broadcast.NewBehaviorSubject(StateDisconnected),
		events:           broadcast.NewSubject[Event](),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("realtime"))
	return c
}

// Start connects with token and returns once the handshake has completed
// or failed. On failure the channel is left Disconnected. ctx bounds the
// handshake only; the connection lives until Stop.
func (c *Channel) Start(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.gen++
	gen := c.gen
	c.token = token
	dialCtx, dialCancel := context.WithCancel(ctx)
	c.dialCancel = dialCancel
	c.fireLocked(TriggerStart)
	c.mu.Unlock()
	defer dialCancel()

	conn, leftover, err := c.connect(dialCtx, token)
	if err != nil {
		c.dispatch(gen, TriggerFail)
		c.logger.LogAttrs(ctx, slog.LevelWarn, "push channel start failed", logger.Error(err))
		if errors.Is(dialCtx.Err(), context.Canceled) && ctx.Err() == nil {
			return ErrStopped
		}
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrStopped
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.conn = conn
	c.dialCancel = nil
	c.fireLocked(TriggerOpen)
	c.mu.Unlock()

	c.logger.LogAttrs(ctx, slog.LevelInfo, "push channel connected")
	c.resync(runCtx)
	go c.run(runCtx, gen, conn, leftover, done)
	return nil
}

// Stop closes the connection and cancels any pending reconnect. It is safe
// to call repeatedly and from Disconnected.
func (c *Channel) Stop() error {
	c.mu.Lock()
	c.gen++
	cancel, done, dialCancel := c.cancel, c.done, c.dialCancel
	c.cancel, c.done, c.dialCancel, c.conn = nil, nil, nil, nil
	if c.state != StateDisconnected {
		c.fireLocked(TriggerStop)
	}
	c.failPendingLocked(ErrStopped)
	c.mu.Unlock()

	if dialCancel != nil {
		dialCancel()
	}
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// Close stops the channel and completes every subscription.
func (c *Channel) Close() error {
	err := c.Stop()
	_ = c.connectedSubj.Close()
	_ = c.states.Close()
	_ = c.events.Close()
	return err
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected subscribes to the connection signal: true on entering
// Connected, false on leaving it.
func (c *Channel) Connected(ctx context.Context) broadcast.Subscriber[bool] {
	return c.connectedSubj.Subscribe(ctx)
}

// States subscribes to every state change.
func (c *Channel) States(ctx context.Context) broadcast.Subscriber[State] {
	return c.states.Subscribe(ctx)
}

// Events subscribes to push events after they were applied to the sink.
func (c *Channel) Events(ctx context.Context) broadcast.Subscriber[Event] {
	return c.events.Subscribe(ctx)
}

// Invoke calls a hub method and waits for its completion.
func (c *Channel) Invoke(ctx context.Context, target string, args ...any) error {
	id := uuid.NewString()
	frame, err := Invocation(id, target, args...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvocationFailed, err)
	}
	data, err := Encode(frame)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvocationFailed, err)
	}

	c.mu.Lock()
	conn := c.conn
	if c.state != StateConnected || conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	result := make(chan error, 1)
	c.pending[id] = result
	c.mu.Unlock()

	if err := conn.WriteMessage(data); err != nil {
		c.dropPending(id)
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		c.dropPending(id)
		return ctx.Err()
	}
}

// run serves conn and reconnects after unexpected drops until ctx ends.
func (c *Channel) run(ctx context.Context, gen uint64, conn Conn, leftover [][]byte, done chan struct{}) {
	defer close(done)

	for {
		err := c.serve(ctx, conn, leftover)
		_ = conn.Close()
		c.failPending(gen, err)
		if ctx.Err() != nil {
			return
		}

		var closeErr *CloseError
		if errors.As(err, &closeErr) && !closeErr.AllowReconnect {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "push channel closed by server", logger.Error(err))
			c.dispatch(gen, TriggerFail)
			return
		}

		if !c.dispatch(gen, TriggerDrop) {
			return
		}
		c.logger.LogAttrs(ctx, slog.LevelWarn, "push channel dropped", logger.Error(err))

		conn, leftover, err = c.reconnect(ctx, gen)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.dispatch(gen, TriggerFail)
			c.logger.LogAttrs(ctx, slog.LevelError, "push channel reconnect rejected", logger.Error(err))
			if c.onAuthFailure != nil && IsAuthFailure(err) {
				c.onAuthFailure(err)
			}
			return
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.fireLocked(TriggerOpen)
		c.mu.Unlock()

		c.logger.LogAttrs(ctx, slog.LevelInfo, "push channel reconnected")
		c.resync(ctx)
	}
}

// reconnect retries until a connection opens, ctx ends, or the token is rejected.
func (c *Channel) reconnect(ctx context.Context, gen uint64) (Conn, [][]byte, error) {
	for attempt := 1; ; attempt++ {
		delay := c.backoff.NextInterval(attempt)
		c.recorder.ReconnectAttempt(attempt, delay)
		c.logger.LogAttrs(ctx, slog.LevelDebug, "scheduling reconnect",
			logger.Attempt(attempt),
			logger.Duration(delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, ctx.Err()
		case <-timer.C:
		}

		token, err := c.currentToken()
		if err != nil {
			return nil, nil, err
		}

		conn, leftover, err := c.connect(ctx, token)
		if err == nil {
			return conn, leftover, nil
		}
		if IsAuthFailure(err) || ctx.Err() != nil {
			return nil, nil, err
		}

		c.logger.LogAttrs(ctx, slog.LevelDebug, "reconnect attempt failed",
			logger.Attempt(attempt),
			logger.Error(err),
		)
		if !c.dispatch(gen, TriggerRetry) {
			return nil, nil, ErrStopped
		}
	}
}

func (c *Channel) currentToken() (string, error) {
	if c.tokens == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.token, nil
	}
	token, ok := c.tokens.Token()
	if !ok {
		return "", fmt.Errorf("%w: token missing or expired", ErrUnauthorized)
	}
	return token, nil
}

// connect dials and performs the protocol handshake. Records that arrived
// in the same message as the handshake response are returned unprocessed.
func (c *Channel) connect(ctx context.Context, token string) (Conn, [][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(ctx, c.url, token)
	if err != nil {
		return nil, nil, err
	}

	// Unblocks the handshake read if ctx ends first.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	records, err := c.handshake(conn)
	if !stop() {
		_ = conn.Close()
		if err == nil {
			err = ctx.Err()
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, records, nil
}

func (c *Channel) handshake(conn Conn) ([][]byte, error) {
	if err := conn.WriteMessage(EncodeHandshake()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(c.handshakeTimeout)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	records := SplitRecords(data)
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrHandshake)
	}
	if err := DecodeHandshakeResponse(records[0]); err != nil {
		return nil, err
	}
	return records[1:], nil
}

// serve reads frames until the connection fails or ctx ends.
func (c *Channel) serve(ctx context.Context, conn Conn, leftover [][]byte) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	go c.pinger(conn, stop)

	for _, rec := range leftover {
		if err := c.process(ctx, rec); err != nil {
			return err
		}
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.serverTimeout)); err != nil {
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
		data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
		for _, rec := range SplitRecords(data) {
			if err := c.process(ctx, rec); err != nil {
				return err
			}
		}
	}
}

func (c *Channel) pinger(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(pingRecord); err != nil {
				// The read loop notices the broken connection.
				return
			}
		}
	}
}

// process handles one record. Only a close frame ends the connection.
func (c *Channel) process(ctx context.Context, rec []byte) error {
	frame, err := DecodeFrame(rec)
	if err != nil {
		c.recorder.EventDropped("", "malformed_frame")
		c.logger.LogAttrs(ctx, slog.LevelWarn, "dropping malformed frame", logger.Error(err))
		return nil
	}

	switch frame.Type {
	case MessageInvocation:
		c.handle(ctx, frame)
	case MessageCompletion:
		c.complete(ctx, frame)
	case MessageClose:
		return &CloseError{Reason: frame.Error, AllowReconnect: frame.AllowReconnect}
	case MessagePing:
	default:
		c.logger.LogAttrs(ctx, slog.LevelDebug, "ignoring frame", slog.Int("type", int(frame.Type)))
	}
	return nil
}

// handle applies one push event. Failures are logged and the event dropped.
func (c *Channel) handle(ctx context.Context, frame Frame) {
	name, h, ok := lookupHandler(frame.Target)
	if !ok {
		c.recorder.EventDropped(frame.Target, "unknown")
		c.logger.LogAttrs(ctx, slog.LevelDebug, "ignoring unknown event", logger.EventType(frame.Target))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.recorder.EventDropped(name, "panic")
			c.logger.LogAttrs(ctx, slog.LevelError, "push handler panicked",
				logger.EventType(name),
				slog.Any("panic", r),
			)
		}
	}()

	ev := Event{Name: name, ReceivedAt: time.Now()}
	if err := h(c.sink, frame.Arguments, &ev); err != nil {
		c.recorder.EventDropped(name, "malformed")
		c.logger.LogAttrs(ctx, slog.LevelWarn, "dropping malformed event",
			logger.EventType(name),
			logger.Error(err),
		)
		return
	}

	c.recorder.EventReceived(name)
	c.events.Publish(ev)
}

func (c *Channel) complete(ctx context.Context, frame Frame) {
	c.mu.Lock()
	result, ok := c.pending[frame.InvocationID]
	delete(c.pending, frame.InvocationID)
	c.mu.Unlock()

	if frame.Error != "" {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "hub invocation failed",
			slog.String("invocation_id", frame.InvocationID),
			slog.String("reason", frame.Error),
		)
	}
	if !ok {
		return
	}
	if frame.Error != "" {
		result <- fmt.Errorf("%w: %s", ErrInvocationFailed, frame.Error)
		return
	}
	result <- nil
}

// resync opens the sink's resync window and runs the resyncer in the
// background. A failed resync closes the window so the derived count is
// authoritative again.
func (c *Channel) resync(ctx context.Context) {
	c.sink.BeginResync()
	if c.resyncer == nil {
		c.sink.EndResync()
		return
	}
	go func() {
		err := c.resyncer(ctx)
		if err != nil {
			c.sink.EndResync()
			c.logger.LogAttrs(ctx, slog.LevelWarn, "resync failed", logger.Error(err))
		}
		c.recorder.Resynced(err)
	}()
}

// dispatch fires t if gen is still current and reports whether it was.
func (c *Channel) dispatch(gen uint64, t Trigger) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.fireLocked(t)
	return true
}

func (c *Channel) fireLocked(t Trigger) {
	next, err := Next(c.state, t)
	if err != nil {
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, "ignoring trigger", logger.Error(err))
		return
	}
	prev := c.state
	c.state = next
	if next != StateConnected {
		c.conn = nil
	}
	if prev != next {
		c.recorder.StateChanged(string(prev), string(next))
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, "state changed",
			slog.String("from", string(prev)),
			logger.State(string(next)),
		)
		c.states.Publish(next)
	}
	if connected := next == StateConnected; connected != c.connected {
		c.connected = connected
		c.connectedSubj.Publish(connected)
	}
}

func (c *Channel) failPending(gen uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.failPendingLocked(cause)
}

func (c *Channel) failPendingLocked(cause error) {
	if cause == nil {
		cause = ErrConnectionLost
	}
	for id, result := range c.pending {
		result <- fmt.Errorf("%w: %w", ErrConnectionLost, cause)
		delete(c.pending, id)
	}
}

func (c *Channel) dropPending(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}
