// Package realtime keeps a persistent, authenticated push connection to the
// notification hub and applies server events to the notification store.
//
// # Connection lifecycle
//
// The channel is an explicit state machine:
//
//	Disconnected --start--> Connecting --open--> Connected
//	Connected    --drop---> Reconnecting --open--> Connected
//	Reconnecting --retry--> Reconnecting
//	any          --stop/fail--> Disconnected
//
// Every transition goes through one dispatch function. Reconnect delays
// follow Backoff (1s doubling, capped at 30s by default). A reconnect that
// the server rejects as unauthorized ends the session and is reported
// through WithAuthFailureHandler; every other failure is retried until Stop.
//
// # Resync
//
// Push delivery is at-most-once per connection, so every successful
// connection opens the sink's resync window and runs the Resyncer exactly
// once (never once per retry attempt).
//
// # Events
//
// Each server event maps to one Sink call:
//
//	ReceiveNotification      Prepend
//	NotificationMarkedAsRead Patch(id, read)
//	NotificationBatchRead    PatchMany(ids, read)
//	AllNotificationsRead     MarkAllLocalRead
//	NotificationDeleted      Remove
//	UpdateUnreadCount        AdoptServerCount (used only during resync)
//
// Malformed events are logged and dropped; they never close the connection.
// Presentation side effects subscribe to Events instead of living in the
// handler table.
//
// # Wire format
//
// The hub speaks a JSON protocol over WebSocket: a {"protocol":"json",
// "version":1} handshake, then records terminated by 0x1E with numeric
// message types (1 invocation, 3 completion, 6 ping, 7 close).
// The access token travels as the access_token query parameter and as an
// Authorization header.
//
// # Usage
//
//	store := notifications.NewStore()
//	ch := realtime.New(cfg.HubURL, realtime.NewWebsocketDialer(15*time.Second), store,
//	    realtime.WithTokens(tokens),
//	    realtime.WithResyncer(session.Resync),
//	)
//	if err := ch.Start(ctx, token); err != nil {
//		return err
//	}
//	defer ch.Close()
package realtime
