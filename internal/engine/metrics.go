package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lacquerai/engine/internal/protocol"
)

// Metrics holds the Prometheus collectors updated by the loop. A nil
// *Metrics records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	decodeFailures prometheus.Counter
	duration       prometheus.Histogram
}

// NewMetrics creates the loop collectors and registers them with
// registerer when it is non-nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_requests_total",
			Help: "Total number of input lines answered, by response status",
		}, []string{"status"}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_decode_failures_total",
			Help: "Total number of input lines that could not be decoded",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_request_duration_seconds",
			Help:    "Time spent decoding a line and building its response",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.requests)
		registerer.MustRegister(m.decodeFailures)
		registerer.MustRegister(m.duration)
	}

	return m
}

func (m *Metrics) observe(status protocol.Status, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.requests.WithLabelValues(string(status)).Inc()
	if status == protocol.StatusError {
		m.decodeFailures.Inc()
	}
	m.duration.Observe(elapsed.Seconds())
}
