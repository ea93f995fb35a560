package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// connectionStates lists every state the realtime channel reports, so the
// state gauge always exposes one series per state.
var connectionStates = []string{"Disconnected", "Connecting", "Connected", "Reconnecting"}

// Realtime records the push channel lifecycle.
type Realtime struct {
	state          *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	reconnects     prometheus.Counter
	reconnectDelay prometheus.Histogram
	events         *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	resyncs        *prometheus.CounterVec
}

// NewRealtime registers the channel collectors with reg.
func NewRealtime(reg prometheus.Registerer, namespace string) *Realtime {
	f := promauto.With(reg)
	r := &Realtime{
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connection_state",
			Help:      "Current push channel state (1 for the active state, 0 otherwise)",
		}, []string{"state"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "state_transitions_total",
			Help:      "Total number of push channel state transitions",
		}, []string{"from", "to"}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnect attempts",
		}),
		reconnectDelay: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay before each reconnect attempt",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 30, 60},
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_received_total",
			Help:      "Total number of push events applied to the store",
		}, []string{"event"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_dropped_total",
			Help:      "Total number of push events dropped",
		}, []string{"event", "reason"}),
		resyncs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "resyncs_total",
			Help:      "Total number of post-connect resynchronisations",
		}, []string{"status"}),
	}
	for _, s := range connectionStates {
		r.state.WithLabelValues(s).Set(0)
	}
	r.state.WithLabelValues("Disconnected").Set(1)
	return r
}

// StateChanged moves the active state gauge.
func (r *Realtime) StateChanged(from, to string) {
	r.state.WithLabelValues(from).Set(0)
	r.state.WithLabelValues(to).Set(1)
	r.transitions.WithLabelValues(from, to).Inc()
}

// ReconnectAttempt counts a scheduled reconnect.
func (r *Realtime) ReconnectAttempt(_ int, delay time.Duration) {
	r.reconnects.Inc()
	r.reconnectDelay.Observe(delay.Seconds())
}

// EventReceived counts an applied push event.
func (r *Realtime) EventReceived(event string) {
	r.events.WithLabelValues(event).Inc()
}

// EventDropped counts a push event that could not be applied.
func (r *Realtime) EventDropped(event, reason string) {
	r.dropped.WithLabelValues(event, reason).Inc()
}

// Resynced counts a finished resync.
func (r *Realtime) Resynced(err error) {
	r.resyncs.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
