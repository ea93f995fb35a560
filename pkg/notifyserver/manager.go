package notifyserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/realtime"
)

// ErrNoAdmins is returned by SendToAdmins when no admin ids are configured.
var ErrNoAdmins = errors.New("notifyserver: no admins configured")

// Manager stores notifications and pushes the matching events, followed by
// the user's new unread count, to their live connections.
type Manager struct {
	storage   Storage
	deliverer Deliverer
	admins    []string
	logger    *slog.Logger
	now       func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the Manager.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithAdmins sets the recipients of SendToAdmins.
func WithAdmins(ids ...string) ManagerOption {
	return func(m *Manager) {
		m.admins = append(m.admins, ids...)
	}
}

// WithManagerClock overrides the time source.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a manager. A nil deliverer stores without pushing.
func NewManager(storage Storage, deliverer Deliverer, opts ...ManagerOption) *Manager {
	if deliverer == nil {
		deliverer = NoOpDeliverer{}
	}
	m := &Manager{
		storage:   storage,
		deliverer: deliverer,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send stores n for n.UserID and pushes it. Missing ids and creation
// times are filled in.
func (m *Manager) Send(ctx context.Context, n notifications.Notification) (notifications.Notification, error) {
	if err := validate(n); err != nil {
		return notifications.Notification{}, err
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}

	// Stored first: delivery is best effort and a missed push is repaired
	// by the client's resync.
	if err := m.storage.Create(ctx, n); err != nil {
		return notifications.Notification{}, fmt.Errorf("store notification: %w", err)
	}
	m.push(ctx, n.UserID, Event{Target: realtime.EventReceiveNotification, Args: []any{ToRecord(n)}})
	return n, nil
}

// SendToUsers sends a copy of template to each user.
func (m *Manager) SendToUsers(ctx context.Context, userIDs []string, template notifications.Notification) ([]notifications.Notification, error) {
	sent := make([]notifications.Notification, 0, len(userIDs))
	for _, userID := range userIDs {
		n := template
		n.ID = ""
		n.UserID = userID
		out, err := m.Send(ctx, n)
		if err != nil {
			return sent, fmt.Errorf("user %s: %w", userID, err)
		}
		sent = append(sent, out)
	}
	return sent, nil
}

// SendToAdmins sends a copy of template to every configured admin.
func (m *Manager) SendToAdmins(ctx context.Context, template notifications.Notification) ([]notifications.Notification, error) {
	if len(m.admins) == 0 {
		return nil, ErrNoAdmins
	}
	return m.SendToUsers(ctx, m.admins, template)
}

// Get returns one notification.
func (m *Manager) Get(ctx context.Context, userID, id string) (notifications.Notification, error) {
	return m.storage.Get(ctx, userID, id)
}

// List returns the user's notifications, newest first.
func (m *Manager) List(ctx context.Context, userID string, opts ListOptions) ([]notifications.Notification, error) {
	return m.storage.List(ctx, userID, opts)
}

// CountUnread returns the user's unread count.
func (m *Manager) CountUnread(ctx context.Context, userID string) (int, error) {
	return m.storage.CountUnread(ctx, userID)
}

// MarkRead marks one notification read. Marking a read notification again
// succeeds without pushing anything.
func (m *Manager) MarkRead(ctx context.Context, userID, id string) error {
	if _, err := m.storage.Get(ctx, userID, id); err != nil {
		return err
	}
	at := m.now()
	changed, err := m.storage.MarkRead(ctx, userID, at, id)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	m.push(ctx, userID, Event{
		Target: realtime.EventNotificationMarkedAsRead,
		Args:   []any{readEvent{NotificationID: id, ReadAt: at}},
	})
	return nil
}

// MarkManyRead marks several notifications read and pushes one batch event.
func (m *Manager) MarkManyRead(ctx context.Context, userID string, ids ...string) error {
	at := m.now()
	changed, err := m.storage.MarkRead(ctx, userID, at, ids...)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	m.push(ctx, userID, Event{
		Target: realtime.EventNotificationBatchRead,
		Args:   []any{batchReadEvent{NotificationIDs: changed, ReadAt: at}},
	})
	return nil
}

// MarkAllRead marks every notification of the user read.
func (m *Manager) MarkAllRead(ctx context.Context, userID string) error {
	if _, err := m.storage.MarkAllRead(ctx, userID, m.now()); err != nil {
		return err
	}
	m.push(ctx, userID, Event{Target: realtime.EventAllNotificationsRead, Args: []any{}})
	return nil
}

// Delete removes one notification.
func (m *Manager) Delete(ctx context.Context, userID, id string) error {
	deleted, err := m.storage.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		return ErrNotificationNotFound
	}
	m.push(ctx, userID, Event{Target: realtime.EventNotificationDeleted, Args: []any{id}})
	return nil
}

// push delivers events followed by the fresh unread count.
func (m *Manager) push(ctx context.Context, userID string, events ...Event) {
	count, err := m.storage.CountUnread(ctx, userID)
	if err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "unread count unavailable", logger.UserID(userID), logger.Error(err))
	} else {
		events = append(events, Event{Target: realtime.EventUpdateUnreadCount, Args: []any{count}})
	}
	if err := m.deliverer.Deliver(ctx, userID, events...); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "push failed, notification state is stored",
			logger.UserID(userID),
			logger.Error(err),
		)
	}
}

func validate(n notifications.Notification) error {
	switch {
	case n.UserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidNotification)
	case strings.TrimSpace(n.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidNotification)
	case strings.TrimSpace(n.Message) == "":
		return fmt.Errorf("%w: message is required", ErrInvalidNotification)
	}
	return nil
}
