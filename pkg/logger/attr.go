package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// NotificationID records the notification identifier.
func NotificationID(id string) slog.Attr {
	return slog.String("notification_id", id)
}

// EventType records a push event target name.
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Component records the component name.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// State records a connection state.
func State(name string) slog.Attr {
	return slog.String("state", name)
}

// Attempt records a reconnect attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Duration records a duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// RequestID records the request identifier.
func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

// Operation records a transport operation name.
func Operation(op string) slog.Attr {
	return slog.String("op", op)
}
