package notifyserver

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var (
	// ErrNotificationNotFound is returned when a notification does not exist for the user.
	ErrNotificationNotFound = errors.New("notifyserver: notification not found")
	// ErrInvalidNotification is returned when a notification misses required fields.
	ErrInvalidNotification = errors.New("notifyserver: invalid notification")
)

// Storage handles notification persistence and retrieval.
type Storage interface {
	// Create stores a new notification.
	Create(ctx context.Context, n notifications.Notification) error

	// Get retrieves a single notification.
	Get(ctx context.Context, userID, id string) (notifications.Notification, error)

	// List returns notifications for a user, newest first.
	List(ctx context.Context, userID string, opts ListOptions) ([]notifications.Notification, error)

	// MarkRead marks the given notifications read at the given time and
	// returns the ids that were unread before.
	MarkRead(ctx context.Context, userID string, at time.Time, ids ...string) ([]string, error)

	// MarkAllRead marks everything read and returns the ids that changed.
	MarkAllRead(ctx context.Context, userID string, at time.Time) ([]string, error)

	// Delete removes notifications and returns the ids that existed.
	Delete(ctx context.Context, userID string, ids ...string) ([]string, error)

	// CountUnread returns the unread count for a user.
	CountUnread(ctx context.Context, userID string) (int, error)
}

// ListOptions filters and paginates List.
type ListOptions struct {
	Limit      int // 0 = no limit
	Offset     int
	OnlyUnread bool
	Types      []notifications.Type
	Since      *time.Time
}
