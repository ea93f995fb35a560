// Command notifyserver runs the in-memory notification backend used for
// local development of notification clients.
//
// Usage:
//
//	notifyserver [-config notifyserver.yaml]
//	notifyserver -issue-token user-1 [-admin]
//
// Settings come from NOTIFYSERVER_* environment variables, optionally
// layered over a YAML file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifyserver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "notifyserver:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		issueFor   = flag.String("issue-token", "", "print an access token for `user` and exit")
		admin      = flag.Bool("admin", false, "with -issue-token, grant the admin role")
	)
	flag.Parse()

	cfg := notifyserver.DefaultConfig()
	if err := config.LoadFile(*configPath, &cfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, "notifyserver"),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(notifyserver.RequestIDExtractor),
	)
	logger.SetAsDefault(log)

	srv, err := notifyserver.New(cfg, notifyserver.WithLogger(log))
	if err != nil {
		return err
	}

	if *issueFor != "" {
		token, err := srv.IssueToken(*issueFor, *admin)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.LogAttrs(ctx, slog.LevelInfo, "starting notification server",
		slog.String("addr", cfg.Addr),
		slog.Int("admins", len(cfg.AdminIDs)),
	)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
