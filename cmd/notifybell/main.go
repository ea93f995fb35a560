// Command notifybell is a terminal notification bell: a live unread badge
// and a dropdown of the latest notifications, kept in sync over the push
// channel.
//
// Usage:
//
//	notifybell -login <token>   store the access token in the OS keyring
//	notifybell -logout          remove the stored token
//	notifybell                  run the bell
//
// NOTIFY_TOKEN overrides the stored token. The remaining settings come from
// NOTIFY_* environment variables, optionally layered over a YAML file given
// with -config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dmitrymomot/notifykit/pkg/bearer"
	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/presenter"
	"github.com/dmitrymomot/notifykit/pkg/session"
)

const serviceName = "notifybell"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "notifybell:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		login      = flag.String("login", "", "store `token` in the keyring and exit")
		logout     = flag.Bool("logout", false, "remove the stored token and exit")
		limit      = flag.Int("limit", presenter.DefaultLimit, "number of notifications to list")
	)
	flag.Parse()

	ring, err := bearer.OpenKeyring(bearer.KeyringConfig{ServiceName: serviceName})
	if err != nil {
		return err
	}
	switch {
	case *login != "":
		if err := ring.Save(*login); err != nil {
			return err
		}
		fmt.Println("token saved")
		return nil
	case *logout:
		if err := ring.Delete(); err != nil {
			return err
		}
		fmt.Println("token removed")
		return nil
	}

	var cfg session.Config
	if err := config.LoadFile(*configPath, &cfg); err != nil {
		return err
	}

	log, closeLog := openLogger(cfg)
	defer closeLog()

	tokens, err := loadToken(ring)
	if err != nil {
		return err
	}

	sess, err := session.New(cfg, tokens, session.WithLogger(log))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := presenter.New(sess.Store(), sess.Channel(),
		presenter.WithActions(sess),
		presenter.WithLimit(*limit),
		presenter.WithAlerter(presenter.Bell(os.Stderr)),
		presenter.WithLogger(log),
	)
	go func() {
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.LogAttrs(ctx, slog.LevelError, "presenter stopped", logger.Error(err))
		}
	}()

	updates := p.Updates(ctx)
	defer updates.Close()
	authFailures := sess.AuthFailures(ctx)
	defer authFailures.Close()

	m := newModel(ctx, p, sess.Start, updates.Receive(ctx), authFailures.Receive(ctx))
	final, runErr := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil {
		log.LogAttrs(closeCtx, slog.LevelWarn, "session close failed", logger.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	if fm, ok := final.(model); ok && fm.fatal != nil {
		if errors.Is(fm.fatal, session.ErrUnauthenticated) {
			return fmt.Errorf("%w; run notifybell -login <token>", fm.fatal)
		}
		return fm.fatal
	}
	return nil
}

// loadToken prefers NOTIFY_TOKEN over the keyring.
func loadToken(ring *bearer.KeyringStore) (*bearer.Holder, error) {
	if token := os.Getenv("NOTIFY_TOKEN"); token != "" {
		return bearer.Static(token), nil
	}
	h, err := ring.Holder()
	if errors.Is(err, bearer.ErrNoStoredToken) {
		return nil, fmt.Errorf("%w; run notifybell -login <token> or set NOTIFY_TOKEN", err)
	}
	return h, err
}

// openLogger writes to a file in the user cache directory; the terminal
// belongs to the UI.
func openLogger(cfg session.Config) (*slog.Logger, func()) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return logger.Discard(), func() {}
	}
	dir = filepath.Join(dir, serviceName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return logger.Discard(), func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, serviceName+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return logger.Discard(), func() {}
	}
	log := logger.New(
		logger.WithEnvironment(cfg.Env, serviceName),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithOutput(f),
	)
	return log, func() { _ = f.Close() }
}
