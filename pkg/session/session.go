package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/bearer"
	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/realtime"
	"github.com/dmitrymomot/notifykit/pkg/transport"
)

// Session owns the notification state of one signed-in user: the store,
// the REST transport and the push channel. Create it at login and Close it
// at logout.
type Session struct {
	cfg     Config
	tokens  bearer.Accessor
	store   *notifications.Store
	api     API
	channel *realtime.Channel
	logger  *slog.Logger
	now     func() time.Time

	authFailures *broadcast.Subject[error]

	mu     sync.Mutex
	closed bool
}

// New wires a session from cfg. Nothing touches the network until Start.
func New(cfg Config, tokens bearer.Accessor, opts ...Option) (*Session, error) {
	if tokens == nil {
		return nil, fmt.Errorf("%w: token accessor is required", ErrUnauthenticated)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	log := o.logger.With(logger.Component("session"))

	s := &Session{
		cfg:          cfg,
		tokens:       tokens,
		logger:       log,
		now:          o.now,
		authFailures: broadcast.NewSubject[error](),
		store: notifications.NewStore(
			notifications.WithStoreLogger(o.logger.With(logger.Component("store"))),
			notifications.WithClock(o.now),
		),
	}

	s.api = o.api
	if s.api == nil {
		topts := []transport.Option{
			transport.WithLogger(o.logger),
			transport.WithTimeout(cfg.HTTPTimeout),
		}
		if o.httpClient != nil {
			topts = append(topts, transport.WithHTTPClient(o.httpClient))
		}
		if o.registerer != nil {
			topts = append(topts, transport.WithRecorder(metrics.NewTransport(o.registerer, o.namespace)))
		}
		client, err := transport.New(cfg.APIURL, tokens, topts...)
		if err != nil {
			return nil, err
		}
		s.api = client
	}

	dialer := o.dialer
	if dialer == nil {
		dialer = realtime.NewWebsocketDialer(cfg.HandshakeTimeout)
	}
	copts := []realtime.Option{
		realtime.WithLogger(o.logger),
		realtime.WithTokens(tokens),
		realtime.WithResyncer(s.Resync),
		realtime.WithAuthFailureHandler(s.reportAuthFailure),
		realtime.WithBackoff(realtime.ExponentialBackoff{
			InitialInterval: cfg.ReconnectBase,
			MaxInterval:     cfg.ReconnectMax,
			Multiplier:      2,
		}),
		realtime.WithKeepAlive(cfg.KeepAlive),
		realtime.WithServerTimeout(cfg.ServerTimeout),
		realtime.WithHandshakeTimeout(cfg.HandshakeTimeout),
	}
	if o.registerer != nil {
		copts = append(copts, realtime.WithRecorder(metrics.NewRealtime(o.registerer, o.namespace)))
	}
	copts = append(copts, o.channel...)
	s.channel = realtime.New(cfg.Hub(), dialer, s.store, copts...)

	return s, nil
}

// Store returns the session's notification cache.
func (s *Session) Store() *notifications.Store { return s.store }

// Channel returns the session's push channel.
func (s *Session) Channel() *realtime.Channel { return s.channel }

// AuthFailures subscribes to authentication failures seen by any component.
// The session does not log out on its own; subscribers decide.
func (s *Session) AuthFailures(ctx context.Context) broadcast.Subscriber[error] {
	return s.authFailures.Subscribe(ctx)
}

// Start connects the push channel. The post-connect resync loads the list.
// When the channel cannot connect for a reason other than authentication,
// the list is still fetched over REST and the connection error is returned
// so the caller can retry Start.
func (s *Session) Start(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	token, ok := s.tokens.Token()
	if !ok {
		return ErrUnauthenticated
	}

	err := s.channel.Start(ctx, token)
	switch {
	case err == nil:
		if !s.cfg.ResyncFullList {
			return s.Refresh(ctx)
		}
		return nil
	case realtime.IsAuthFailure(err):
		s.reportAuthFailure(err)
		return errors.Join(ErrUnauthenticated, err)
	default:
		s.logger.LogAttrs(ctx, slog.LevelWarn, "push channel unavailable, loading list over rest",
			logger.Error(err),
		)
		if rerr := s.Refresh(ctx); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
}

// Resync reconciles the store with the server after a (re)connect: it
// adopts the authoritative unread count and, with ResyncFullList, reloads
// the list. Without it the window closes right away and the server count
// stands until the next store mutation.
func (s *Session) Resync(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	count, err := s.api.FetchUnreadCount(ctx)
	if err != nil {
		return s.fail(ctx, "fetch unread count failed", err)
	}
	if !s.cfg.ResyncFullList {
		return s.install(func() { s.store.SettleCount(count) })
	}
	if err := s.install(func() { s.store.AdoptServerCount(count) }); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// Refresh replaces the cached list with the server's. Pushes that arrive
// while the request is in flight are kept.
func (s *Session) Refresh(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	rev := s.store.Revision()
	s.store.SetLoading(true)
	defer s.store.SetLoading(false)

	list, err := s.api.FetchAll(ctx)
	if err != nil {
		return s.fail(ctx, "fetch notifications failed", err)
	}
	return s.install(func() { s.store.ReplaceAllAt(rev, list) })
}

// MarkRead marks id read locally and then on the server.
// The local change is not rolled back if the request fails.
func (s *Session) MarkRead(ctx context.Context, id string) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.store.Patch(id, notifications.ReadPatch(s.now()))
	if err := s.api.MarkRead(ctx, id); err != nil {
		return s.fail(ctx, "mark read failed", err, logger.NotificationID(id))
	}
	return nil
}

// MarkAllRead marks everything read locally and then on the server.
func (s *Session) MarkAllRead(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.store.MarkAllLocalRead()
	if err := s.api.MarkAllRead(ctx); err != nil {
		return s.fail(ctx, "mark all read failed", err)
	}
	return nil
}

// Delete removes id locally and then on the server.
func (s *Session) Delete(ctx context.Context, id string) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.store.Remove(id)
	if err := s.api.Delete(ctx, id); err != nil {
		return s.fail(ctx, "delete failed", err, logger.NotificationID(id))
	}
	return nil
}

// Close ends the session: the store is cleared before the channel stops,
// then every observable is completed. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.store.Clear()
	err := s.channel.Close()
	_ = s.store.Close()
	_ = s.authFailures.Close()
	s.logger.LogAttrs(ctx, slog.LevelInfo, "session closed")
	return err
}

// install applies a fetched result to the store unless the session closed
// while the request was in flight. Close clears the store after setting the
// flag, so an install either lands before the clear or not at all.
func (s *Session) install(apply func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	apply()
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) fail(ctx context.Context, msg string, err error, attrs ...slog.Attr) error {
	if transport.IsAuthFailure(err) {
		s.reportAuthFailure(err)
		return err
	}
	attrs = append(attrs, logger.Error(err))
	s.logger.LogAttrs(ctx, slog.LevelWarn, msg, attrs...)
	return err
}

func (s *Session) reportAuthFailure(err error) {
	s.logger.LogAttrs(context.Background(), slog.LevelError, "authentication failed", logger.Error(err))
	s.authFailures.Publish(err)
}
