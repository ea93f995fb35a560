package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/bearer"
)

// Recorder observes the channel. *metrics.Realtime implements it.
type Recorder interface {
	StateChanged(from, to string)
	ReconnectAttempt(attempt int, delay time.Duration)
	EventReceived(event string)
	EventDropped(event, reason string)
	Resynced(err error)
}

// Resyncer restores authoritative state after every successful connection.
// It runs once per connection, never once per retry.
type Resyncer func(ctx context.Context) error

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger for the Channel.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder attaches an observer.
func WithRecorder(r Recorder) Option {
	return func(c *Channel) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithBackoff replaces DefaultBackoff.
func WithBackoff(b Backoff) Option {
	return func(c *Channel) {
		if b != nil {
			c.backoff = b
		}
	}
}

// WithTokens makes reconnect attempts read a fresh token from a. Without
// it the token passed to Start is reused.
func WithTokens(a bearer.Accessor) Option {
	return func(c *Channel) {
		c.tokens = a
	}
}

// WithResyncer sets the function run after each successful connection.
func WithResyncer(r Resyncer) Option {
	return func(c *Channel) {
		c.resyncer = r
	}
}

// WithAuthFailureHandler is called when a reconnect is rejected as
// unauthorized. The channel is Disconnected by then and will not retry.
func WithAuthFailureHandler(fn func(error)) Option {
	return func(c *Channel) {
		c.onAuthFailure = fn
	}
}

// WithKeepAlive sets the client ping interval. Default is 15 seconds.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.keepAlive = d
		}
	}
}

// WithServerTimeout sets how long the channel waits for any server frame
// before treating the connection as lost. Default is 30 seconds.
func WithServerTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.serverTimeout = d
		}
	}
}

// WithHandshakeTimeout bounds dial plus protocol handshake. Default is 15 seconds.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) StateChanged(string, string)         {}
func (nopRecorder) ReconnectAttempt(int, time.Duration) {}
func (nopRecorder) EventReceived(string)                {}
func (nopRecorder) EventDropped(string, string)         {}
func (nopRecorder) Resynced(error)                      {}
