package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server records hub activity of the development notification server.
type Server struct {
	clients   prometheus.Gauge
	delivered *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

// NewServer registers the hub collectors with reg.
func NewServer(reg prometheus.Registerer, namespace string) *Server {
	f := promauto.With(reg)
	return &Server{
		clients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connected_clients",
			Help:      "Current number of connected push clients",
		}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "events_delivered_total",
			Help:      "Total number of events queued to clients",
		}, []string{"event"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "clients_dropped_total",
			Help:      "Total number of clients disconnected by the hub",
		}, []string{"reason"}),
	}
}

func (s *Server) ClientConnected()    { s.clients.Inc() }
func (s *Server) ClientDisconnected() { s.clients.Dec() }

func (s *Server) Delivered(event string) {
	s.delivered.WithLabelValues(event).Inc()
}

func (s *Server) Dropped(reason string) {
	s.dropped.WithLabelValues(reason).Inc()
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
