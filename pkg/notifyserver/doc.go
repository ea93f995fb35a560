// Package notifyserver is an in-memory notification backend for local
// development and end-to-end tests of the client packages.
//
// It serves the same REST routes the transport client calls, under
// /api/notifications, and a push hub at /hubs/notifications that speaks the
// record-separated JSON protocol the realtime channel expects. Every change
// made through the Manager is stored first and then pushed to all live
// connections of the affected user, followed by an UpdateUnreadCount event.
//
// Requests authenticate with HS256 bearer tokens; websocket clients may pass
// the token as the access_token query parameter instead. Users listed in
// Config.AdminIDs, or holding a token with the admin claim, may create
// notifications.
//
//	srv, err := notifyserver.New(cfg, notifyserver.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	token, _ := srv.IssueToken("user-1", false)
//	log.Info("dev token", "token", token)
//	return srv.Run(ctx)
//
// The hub disconnects clients whose outbound queue is full; they reconnect
// and resynchronise over REST. On shutdown every client receives a close
// record that allows reconnecting.
package notifyserver
