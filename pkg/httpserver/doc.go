// Package httpserver runs an http.Server with graceful shutdown.
//
// Run blocks until its context ends, then shuts the server down within the
// configured timeout. Signal handling is left to the caller:
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := httpserver.New(
//		httpserver.WithAddr(":8080"),
//		httpserver.WithLogger(log),
//		httpserver.WithShutdownHook(func() { _ = hub.Close() }),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server failed", logger.Error(err))
//	}
//
// Shutdown hooks run when graceful shutdown begins; owners of hijacked
// connections (websockets) use them to close those connections, since
// net/http does not wait for them.
//
// HealthHandler serves a JSON liveness or readiness report.
package httpserver
