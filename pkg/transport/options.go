package transport

import (
	"log/slog"
	"net/http"
	"time"
)

// Recorder observes every round-trip. status is 0 when no response arrived.
type Recorder interface {
	ObserveRequest(op string, status int, elapsed time.Duration, err error)
}

// Paths are the API routes relative to the base URL. {id} and {userId} are
// substituted per call.
type Paths struct {
	All         string
	Unread      string
	UnreadCount string
	MarkAllRead string
	MarkRead    string
	Delete      string
	SendToUser  string
	SendToAdmin string
}

// DefaultPaths returns the routes of the notification API.
func DefaultPaths() Paths {
	return Paths{
		All:         "/api/notifications",
		Unread:      "/api/notifications/unread",
		UnreadCount: "/api/notifications/unread-count",
		MarkAllRead: "/api/notifications/mark-all-read",
		MarkRead:    "/api/notifications/{id}/read",
		Delete:      "/api/notifications/{id}",
		SendToUser:  "/api/notifications/users/{userId}",
		SendToAdmin: "/api/notifications/admins",
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the per-request timeout. Default is 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithLogger sets the logger for the Client.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithRecorder attaches a request observer, e.g. *metrics.Transport.
func WithRecorder(r Recorder) Option {
	return func(cl *Client) {
		cl.recorder = r
	}
}

// WithPaths overrides the API routes. Empty fields keep their defaults.
func WithPaths(p Paths) Option {
	return func(cl *Client) {
		def := cl.paths
		pick := func(v, d string) string {
			if v == "" {
				return d
			}
			return v
		}
		cl.paths = Paths{
			All:         pick(p.All, def.All),
			Unread:      pick(p.Unread, def.Unread),
			UnreadCount: pick(p.UnreadCount, def.UnreadCount),
			MarkAllRead: pick(p.MarkAllRead, def.MarkAllRead),
			MarkRead:    pick(p.MarkRead, def.MarkRead),
			Delete:      pick(p.Delete, def.Delete),
			SendToUser:  pick(p.SendToUser, def.SendToUser),
			SendToAdmin: pick(p.SendToAdmin, def.SendToAdmin),
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		if ua != "" {
			cl.userAgent = ua
		}
	}
}
