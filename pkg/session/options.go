package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/realtime"
)

// API is the subset of the REST transport the session drives.
// *transport.Client implements it.
type API interface {
	FetchAll(ctx context.Context) ([]notifications.Notification, error)
	FetchUnreadCount(ctx context.Context) (int, error)
	MarkAllRead(ctx context.Context) error
	MarkRead(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Option configures a Session.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	api        API
	dialer     realtime.Dialer
	httpClient *http.Client
	registerer prometheus.Registerer
	namespace  string
	now        func() time.Time
	channel    []realtime.Option
}

// WithLogger sets the logger shared by the store, transport and channel.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAPI replaces the REST transport built from Config.
func WithAPI(api API) Option {
	return func(o *options) {
		if api != nil {
			o.api = api
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d realtime.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithHTTPClient sets the HTTP client of the REST transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithMetrics registers transport and channel collectors on reg under namespace.
func WithMetrics(reg prometheus.Registerer, namespace string) Option {
	return func(o *options) {
		o.registerer = reg
		o.namespace = namespace
	}
}

// WithClock overrides the time source used for optimistic read timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithChannelOptions appends options for the realtime channel. They are
// applied after the ones derived from Config.
func WithChannelOptions(opts ...realtime.Option) Option {
	return func(o *options) {
		o.channel = append(o.channel, opts...)
	}
}
