// Package session ties the notification store, the REST transport and the
// push channel to one signed-in user.
//
// A Session is created at login and closed at logout. Close clears the
// store before the push channel stops, so nothing from one user can reach
// the next one.
//
//	var cfg session.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
//	s, err := session.New(cfg, bearer.Static(token),
//		session.WithLogger(log),
//		session.WithMetrics(prometheus.DefaultRegisterer, "notifykit"),
//	)
//	if err != nil {
//		return err
//	}
//	defer s.Close(ctx)
//
//	if err := s.Start(ctx); err != nil {
//		log.Warn("push channel unavailable", logger.Error(err))
//	}
//
// After every (re)connect the channel asks the session to resync: the
// server's unread count is adopted while the store is incomplete, and the
// list is reloaded unless ResyncFullList is off.
//
// MarkRead, MarkAllRead and Delete are optimistic: the store changes first
// and the request follows. Failures are returned but not rolled back.
// Authentication failures from any component are published on
// AuthFailures; the session never logs out by itself.
package session
