package session

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the client session configuration.
type Config struct {
	// APIURL is the REST base URL, e.g. https://api.example.com
	APIURL string `env:"NOTIFY_API_URL" yaml:"api_url"`
	// HubURL is the push hub endpoint. Defaults to APIURL + DefaultHubPath.
	HubURL string `env:"NOTIFY_HUB_URL" yaml:"hub_url"`

	HTTPTimeout time.Duration `env:"NOTIFY_HTTP_TIMEOUT" envDefault:"10s" yaml:"http_timeout"`

	ReconnectBase time.Duration `env:"NOTIFY_RECONNECT_BASE" envDefault:"1s" yaml:"reconnect_base"`
	ReconnectMax  time.Duration `env:"NOTIFY_RECONNECT_MAX" envDefault:"30s" yaml:"reconnect_max"`

	KeepAlive        time.Duration `env:"NOTIFY_KEEPALIVE" envDefault:"15s" yaml:"keepalive"`
	ServerTimeout    time.Duration `env:"NOTIFY_SERVER_TIMEOUT" envDefault:"30s" yaml:"server_timeout"`
	HandshakeTimeout time.Duration `env:"NOTIFY_HANDSHAKE_TIMEOUT" envDefault:"15s" yaml:"handshake_timeout"`

	// ResyncFullList re-fetches the whole list after a reconnect. When false
	// only the unread count is refreshed and the store stays marked
	// incomplete until the next Refresh.
	ResyncFullList bool `env:"NOTIFY_RESYNC_FULL_LIST" envDefault:"true" yaml:"resync_full_list"`

	LogLevel string `env:"NOTIFY_LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	Env      string `env:"NOTIFY_ENV" envDefault:"development" yaml:"env"`
}

// DefaultHubPath is appended to APIURL when HubURL is empty.
const DefaultHubPath = "/hubs/notifications"

// DefaultConfig returns the default configuration without endpoints.
func DefaultConfig() Config {
	return Config{
		HTTPTimeout:      10 * time.Second,
		ReconnectBase:    time.Second,
		ReconnectMax:     30 * time.Second,
		KeepAlive:        15 * time.Second,
		ServerTimeout:    30 * time.Second,
		HandshakeTimeout: 15 * time.Second,
		ResyncFullList:   true,
		LogLevel:         "info",
		Env:              "development",
	}
}

// Validate checks that the endpoints are usable.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("%w: api url is required", ErrInvalidConfig)
	}
	for _, raw := range []string{c.APIURL, c.HubURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: invalid url %q", ErrInvalidConfig, raw)
		}
	}
	if c.ServerTimeout > 0 && c.KeepAlive >= c.ServerTimeout {
		return fmt.Errorf("%w: keepalive must be shorter than server timeout", ErrInvalidConfig)
	}
	return nil
}

// Hub returns the effective push hub URL.
func (c Config) Hub() string {
	if c.HubURL != "" {
		return c.HubURL
	}
	return strings.TrimRight(c.APIURL, "/") + DefaultHubPath
}
