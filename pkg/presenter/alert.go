package presenter

import (
	"context"
	"io"

	"github.com/dmitrymomot/notifykit/pkg/realtime"
)

// Alerter reacts to push events with a side effect such as a sound or a
// desktop notification. Alert is called from the presenter's Run loop and
// should return quickly.
type Alerter interface {
	Alert(ctx context.Context, ev realtime.Event)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(ctx context.Context, ev realtime.Event)

// Alert calls f.
func (f AlerterFunc) Alert(ctx context.Context, ev realtime.Event) { f(ctx, ev) }

// Bell writes the terminal bell character to w for every new notification.
func Bell(w io.Writer) Alerter {
	return OnNewNotification(func(context.Context, realtime.Event) {
		_, _ = w.Write([]byte{'\a'})
	})
}

// OnNewNotification calls fn only for ReceiveNotification events.
func OnNewNotification(fn AlerterFunc) Alerter {
	return AlerterFunc(func(ctx context.Context, ev realtime.Event) {
		if ev.Name == realtime.EventReceiveNotification && ev.Notification != nil {
			fn(ctx, ev)
		}
	})
}
