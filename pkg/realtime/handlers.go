package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Server event names.
const (
	EventReceiveNotification      = "ReceiveNotification"
	EventUpdateUnreadCount        = "UpdateUnreadCount"
	EventNotificationMarkedAsRead = "NotificationMarkedAsRead"
	EventNotificationBatchRead    = "NotificationBatchRead"
	EventAllNotificationsRead     = "AllNotificationsRead"
	EventNotificationDeleted      = "NotificationDeleted"
)

// Sink receives the store mutations derived from push events.
// *notifications.Store implements it.
type Sink interface {
	Prepend(n notifications.Notification)
	Patch(id string, p notifications.Patch)
	PatchMany(ids []string, p notifications.Patch)
	MarkAllLocalRead()
	Remove(id string)
	BeginResync()
	AdoptServerCount(n int)
	EndResync()
}

var _ Sink = (*notifications.Store)(nil)

// Event is emitted after a push event has been applied to the sink.
// Presentation side effects (sounds, desktop alerts) subscribe to it.
type Event struct {
	Name         string
	Notification *notifications.Notification
	IDs          []string
	UnreadCount  int
	ReceivedAt   time.Time
}

type handler func(s Sink, args []json.RawMessage, ev *Event) error

var handlers = map[string]handler{
	foldTarget(EventReceiveNotification):      handleReceive,
	foldTarget(EventNotificationMarkedAsRead): handleMarkedAsRead,
	foldTarget(EventNotificationBatchRead):    handleBatchRead,
	foldTarget(EventAllNotificationsRead):     handleAllRead,
	foldTarget(EventNotificationDeleted):      handleDeleted,
	foldTarget(EventUpdateUnreadCount):        handleUnreadCount,
}

var canonicalTargets = map[string]string{
	foldTarget(EventReceiveNotification):      EventReceiveNotification,
	foldTarget(EventNotificationMarkedAsRead): EventNotificationMarkedAsRead,
	foldTarget(EventNotificationBatchRead):    EventNotificationBatchRead,
	foldTarget(EventAllNotificationsRead):     EventAllNotificationsRead,
	foldTarget(EventNotificationDeleted):      EventNotificationDeleted,
	foldTarget(EventUpdateUnreadCount):        EventUpdateUnreadCount,
}

func foldTarget(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// lookupHandler matches event names case-insensitively.
func lookupHandler(target string) (string, handler, bool) {
	key := foldTarget(target)
	h, ok := handlers[key]
	if !ok {
		return target, nil, false
	}
	return canonicalTargets[key], h, true
}

func handleReceive(s Sink, args []json.RawMessage, ev *Event) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing notification", ErrMalformedEvent)
	}
	n, err := notifications.Decode(args[0])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if n.ID == "" {
		return fmt.Errorf("%w: notification without id", ErrMalformedEvent)
	}
	s.Prepend(n)
	ev.Notification = &n
	ev.IDs = []string{n.ID}
	return nil
}

// handleMarkedAsRead accepts (id), (id, readAt) or ({notificationId, readAt}).
func handleMarkedAsRead(s Sink, args []json.RawMessage, ev *Event) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	id, readAt, err := idAndTime(args[0], ev.ReceivedAt, "notificationId", "id")
	if err != nil {
		return err
	}
	if len(args) > 1 {
		if t, ok := notifications.RawTime(args[1]); ok {
			readAt = t
		}
	}
	s.Patch(id, notifications.ReadPatch(readAt))
	ev.IDs = []string{id}
	return nil
}

// handleBatchRead accepts ([ids]), ([ids], readAt) or ({ids, readAt}).
func handleBatchRead(s Sink, args []json.RawMessage, ev *Event) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing ids", ErrMalformedEvent)
	}
	raw := args[0]
	readAt := ev.ReceivedAt
	if isObject(raw) {
		fields, err := notifications.DecodeFields(raw)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		inner, ok := fields.Lookup("notificationIds", "ids")
		if !ok {
			return fmt.Errorf("%w: missing ids", ErrMalformedEvent)
		}
		raw = inner
		if t, ok := fields.Time("readAt"); ok {
			readAt = t
		}
	}
	ids, err := notifications.DecodeIDs(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if len(args) > 1 {
		if t, ok := notifications.RawTime(args[1]); ok {
			readAt = t
		}
	}
	s.PatchMany(ids, notifications.ReadPatch(readAt))
	ev.IDs = ids
	return nil
}

func handleAllRead(s Sink, _ []json.RawMessage, _ *Event) error {
	s.MarkAllLocalRead()
	return nil
}

func handleDeleted(s Sink, args []json.RawMessage, ev *Event) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	id, _, err := idAndTime(args[0], ev.ReceivedAt, "notificationId", "id")
	if err != nil {
		return err
	}
	s.Remove(id)
	ev.IDs = []string{id}
	return nil
}

// handleUnreadCount forwards the server's integer; the sink only adopts it
// while its cache is known to be incomplete.
func handleUnreadCount(s Sink, args []json.RawMessage, ev *Event) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing count", ErrMalformedEvent)
	}
	raw := args[0]
	if isObject(raw) {
		fields, err := notifications.DecodeFields(raw)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		inner, ok := fields.Lookup("count", "unreadCount")
		if !ok {
			return fmt.Errorf("%w: missing count", ErrMalformedEvent)
		}
		raw = inner
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil || n < 0 {
		return fmt.Errorf("%w: invalid count %s", ErrMalformedEvent, raw)
	}
	s.AdoptServerCount(n)
	ev.UnreadCount = n
	return nil
}

func idAndTime(raw json.RawMessage, fallback time.Time, idKeys ...string) (string, time.Time, error) {
	if isObject(raw) {
		fields, err := notifications.DecodeFields(raw)
		if err != nil {
			return "", fallback, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		id := fields.String(idKeys...)
		if id == "" {
			return "", fallback, fmt.Errorf("%w: missing id", ErrMalformedEvent)
		}
		if t, ok := fields.Time("readAt"); ok {
			return id, t, nil
		}
		return id, fallback, nil
	}
	id, ok := notifications.RawString(raw)
	if !ok || id == "" {
		return "", fallback, fmt.Errorf("%w: invalid id %s", ErrMalformedEvent, raw)
	}
	return id, fallback, nil
}

func isObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
