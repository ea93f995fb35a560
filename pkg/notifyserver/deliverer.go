package notifyserver

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Event is one push invocation: a target method name and its arguments.
type Event struct {
	Target string
	Args   []any
}

// Deliverer pushes events to a user's live connections.
type Deliverer interface {
	// Deliver sends events to every connection of userID, in order.
	Deliver(ctx context.Context, userID string, events ...Event) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, userID string, events ...Event) error

// Deliver calls f.
func (f DelivererFunc) Deliver(ctx context.Context, userID string, events ...Event) error {
	return f(ctx, userID, events...)
}

// MultiDeliverer fans events out to several deliverers.
type MultiDeliverer struct {
	deliverers []Deliverer
	logger     *slog.Logger
}

// NewMultiDeliverer combines deliverers. Failures are logged and do not
// stop the remaining deliverers.
func NewMultiDeliverer(log *slog.Logger, deliverers ...Deliverer) *MultiDeliverer {
	if log == nil {
		log = slog.Default()
	}
	return &MultiDeliverer{deliverers: deliverers, logger: log}
}

// Deliver sends events through every deliverer.
func (m *MultiDeliverer) Deliver(ctx context.Context, userID string, events ...Event) error {
	for i, d := range m.deliverers {
		if err := d.Deliver(ctx, userID, events...); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "delivery failed",
				logger.UserID(userID),
				slog.Int("deliverer_index", i),
				logger.Error(err),
			)
		}
	}
	return nil
}

// NoOpDeliverer drops every event.
type NoOpDeliverer struct{}

// Deliver does nothing.
func (NoOpDeliverer) Deliver(context.Context, string, ...Event) error { return nil }
