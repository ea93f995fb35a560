package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transport records REST calls.
type Transport struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewTransport registers the transport collectors with reg.
func NewTransport(reg prometheus.Registerer, namespace string) *Transport {
	f := promauto.With(reg)
	return &Transport{
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "request_duration_seconds",
			Help:      "Duration of notification API requests",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op", "code"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "request_failures_total",
			Help:      "Total number of failed notification API requests",
		}, []string{"op"}),
	}
}

// ObserveRequest records one round-trip. status is 0 when no response was received.
func (t *Transport) ObserveRequest(op string, status int, elapsed time.Duration, err error) {
	t.duration.WithLabelValues(op, strconv.Itoa(status)).Observe(elapsed.Seconds())
	if err != nil {
		t.failures.WithLabelValues(op).Inc()
	}
}
