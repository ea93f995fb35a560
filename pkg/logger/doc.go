// Package logger builds *slog.Logger values with consistent defaults and
// keeps attribute names uniform across the client.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "notifybell"),
//	    logger.WithLevelName(cfg.LogLevel),
//	)
//	logger.SetAsDefault(log)
//
//	log.LogAttrs(ctx, slog.LevelInfo, "connected",
//	    logger.Component("realtime"),
//	    logger.Attempt(3),
//	)
//
// Records go to stderr by default so interactive programs can own stdout.
// Error returns an empty attribute for a nil error, so
//
//	log.Info("resync finished", logger.Error(err))
//
// needs no nil check.
package logger
