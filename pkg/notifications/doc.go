// Package notifications holds the client-side notification model and the
// observable cache the rest of the application reads from.
//
// # Model
//
// Notification is the canonical shape. Server payloads arrive with mixed
// field casing (camelCase, PascalCase, snake_case), ids as strings or
// numbers, enums as names or ordinals; Decode and DecodeList normalise them
// at the boundary so nothing downstream branches on wire details. Unknown
// notification types are kept verbatim and grouped under CategoryDefault.
//
// # Store
//
// Store is the single write point for both push-driven and fetch-driven
// updates:
//
//	store := notifications.NewStore()
//	defer store.Close()
//
//	store.ReplaceAll(fetched)         // after a bulk fetch
//	store.Prepend(pushed)             // new notification from the push channel
//	store.Patch(id, notifications.ReadPatch(time.Now()))
//	store.MarkAllLocalRead()          // optimistic "mark all read"
//	store.Clear()                     // logout
//
// The unread count is recomputed from the cached sequence after every
// mutation, so push and fetch paths can never drift apart. Subscribers of
// Notifications, UnreadCount and Loading receive the current value first
// and then every subsequent change, in order, without sampling:
//
//	sub := store.UnreadCount(ctx)
//	defer sub.Close()
//	for msg := range sub.Receive(ctx) {
//		renderBadge(msg.Data)
//	}
//
// # Ordering
//
// Mutations apply in arrival order. A bulk fetch that resolves after pushes
// can overwrite them with ReplaceAll; ReplaceAllAt keeps pushes newer than
// the revision captured when the fetch was issued.
//
// # Resync window
//
// After a reconnect the cache may be missing events. BeginResync marks it
// incomplete; during that window AdoptServerCount publishes the server's
// unread integer. The window closes on the next ReplaceAll, ReplaceAllAt,
// Clear or EndResync, after which the derived count is authoritative again.
// SettleCount closes the window with a final server count that stands until
// the next mutation.
package notifications
