package notifyserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for every component of the server.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStorage replaces the in-memory storage.
func WithStorage(st Storage) Option {
	return func(s *Server) {
		if st != nil {
			s.storage = st
		}
	}
}

// WithRegistry sets the Prometheus registry served on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithStartHook is called with the bound address once the listener is up.
func WithStartHook(fn func(addr string)) Option {
	return func(s *Server) {
		if fn != nil {
			s.startHooks = append(s.startHooks, fn)
		}
	}
}

// Server is the development notification backend: REST API, push hub,
// health and metrics endpoints over one in-memory store.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	storage    Storage
	registry   *prometheus.Registry
	startHooks []func(addr string)

	auth    *Authenticator
	hub     *Hub
	manager *Manager
	handler http.Handler
}

// New wires a Server from cfg.
func New(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.storage == nil {
		s.storage = NewMemoryStorage()
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	auth, err := NewAuthenticator([]byte(cfg.SigningKey), cfg.AdminIDs...)
	if err != nil {
		return nil, err
	}
	s.auth = auth

	s.hub = NewHub(auth,
		WithHubLogger(s.logger),
		WithRecorder(metrics.NewServer(s.registry, cfg.MetricsNamespace)),
		WithSendBuffer(cfg.Buffer),
		WithHubKeepAlive(cfg.KeepAlive),
		WithClientTimeout(cfg.ClientTimeout),
		WithHandshakeTimeout(cfg.HandshakeTimeout),
	)
	s.manager = NewManager(s.storage, s.hub,
		WithManagerLogger(s.logger),
		WithAdmins(cfg.AdminIDs...),
	)
	s.hub.Handle("MarkAsRead", markAsRead(s.manager))
	s.hub.Handle("MarkAllAsRead", markAllAsRead(s.manager))

	s.handler = s.router()
	return s, nil
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", httpserver.HealthHandler(s.logger, map[string]httpserver.Check{
		"storage": func(ctx context.Context) error {
			_, err := s.storage.CountUnread(ctx, "")
			return err
		},
	}))
	r.Handle("/metrics", metrics.Handler(s.registry))

	a := &api{manager: s.manager, logger: s.logger}
	r.Route("/api/notifications", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		a.routes(r)
	})
	r.Handle(DefaultHubPath, s.hub)
	return r
}

// DefaultHubPath is where the push hub is mounted.
const DefaultHubPath = "/hubs/notifications"

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Manager returns the notification manager, for seeding and tests.
func (s *Server) Manager() *Manager { return s.manager }

// Hub returns the push hub.
func (s *Server) Hub() *Hub { return s.hub }

// Authenticator returns the token authenticator.
func (s *Server) Authenticator() *Authenticator { return s.auth }

// IssueToken signs an access token with the configured TTL.
func (s *Server) IssueToken(userID string, admin bool) (string, error) {
	return s.auth.Issue(userID, admin, s.cfg.TokenTTL)
}

// Run serves on cfg.Addr until ctx is done. Push clients are closed with
// a reconnectable close record during shutdown.
func (s *Server) Run(ctx context.Context) error {
	return s.httpServer().Run(ctx, s.handler)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	return s.httpServer().Serve(ctx, ln, s.handler)
}

func (s *Server) httpServer() *httpserver.Server {
	opts := []httpserver.Option{
		httpserver.WithLogger(s.logger),
		httpserver.WithShutdownHook(func() { _ = s.hub.Close() }),
	}
	for _, fn := range s.startHooks {
		opts = append(opts, httpserver.WithStartHook(fn))
	}
	return httpserver.NewFromConfig(s.cfg.HTTP(), opts...)
}
