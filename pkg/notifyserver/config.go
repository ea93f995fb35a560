package notifyserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/httpserver"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("notifyserver: invalid config")

// Config configures the development notification server.
type Config struct {
	Addr             string        `env:"NOTIFYSERVER_ADDR" envDefault:":8080" yaml:"addr"`
	SigningKey       string        `env:"NOTIFYSERVER_SIGNING_KEY" yaml:"signing_key"`
	AdminIDs         []string      `env:"NOTIFYSERVER_ADMIN_IDS" envSeparator:"," yaml:"admin_ids"`
	Buffer           int           `env:"NOTIFYSERVER_BUFFER" envDefault:"64" yaml:"buffer"`
	KeepAlive        time.Duration `env:"NOTIFYSERVER_KEEPALIVE" envDefault:"15s" yaml:"keepalive"`
	ClientTimeout    time.Duration `env:"NOTIFYSERVER_CLIENT_TIMEOUT" envDefault:"30s" yaml:"client_timeout"`
	HandshakeTimeout time.Duration `env:"NOTIFYSERVER_HANDSHAKE_TIMEOUT" envDefault:"15s" yaml:"handshake_timeout"`
	ShutdownTimeout  time.Duration `env:"NOTIFYSERVER_SHUTDOWN_TIMEOUT" envDefault:"5s" yaml:"shutdown_timeout"`
	TokenTTL         time.Duration `env:"NOTIFYSERVER_TOKEN_TTL" envDefault:"24h" yaml:"token_ttl"`
	MetricsNamespace string        `env:"NOTIFYSERVER_METRICS_NAMESPACE" envDefault:"notifyserver" yaml:"metrics_namespace"`
	LogLevel         string        `env:"NOTIFYSERVER_LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	Env              string        `env:"NOTIFYSERVER_ENV" envDefault:"development" yaml:"env"`
}

// DefaultConfig returns the env defaults without reading the environment.
func DefaultConfig() Config {
	return Config{
		Addr:             ":8080",
		Buffer:           defaultSendBuffer,
		KeepAlive:        defaultKeepAlive,
		ClientTimeout:    defaultClientTimeout,
		HandshakeTimeout: defaultHandshakeLimit,
		ShutdownTimeout:  5 * time.Second,
		TokenTTL:         24 * time.Hour,
		MetricsNamespace: "notifyserver",
		LogLevel:         "info",
		Env:              "development",
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.SigningKey == "":
		return fmt.Errorf("%w: signing key is required", ErrInvalidConfig)
	case len(c.SigningKey) < 32:
		return fmt.Errorf("%w: signing key must be at least 32 bytes", ErrInvalidConfig)
	case c.KeepAlive > 0 && c.ClientTimeout > 0 && c.KeepAlive >= c.ClientTimeout:
		return fmt.Errorf("%w: keepalive must be shorter than client timeout", ErrInvalidConfig)
	}
	return nil
}

// HTTP returns the listener settings. WriteTimeout stays off so push
// connections are not cut.
func (c Config) HTTP() httpserver.Config {
	return httpserver.Config{
		Addr:              c.Addr,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   c.ShutdownTimeout,
	}
}
