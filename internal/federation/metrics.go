package federation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the login outcome counters and provider latency histogram.
type Metrics struct {
	logins   *prometheus.CounterVec
	provider *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg (prometheus.DefaultRegisterer in production).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels:
		//   - flow: "consumer", "employee", "callback"
		//   - outcome: "success", "store_selection" or a failure code
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "federation_logins_total",
			Help: "LINE login attempts by flow and outcome",
		}, []string{"flow", "outcome"}),
		provider: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "federation_provider_request_seconds",
			Help:    "Latency of outbound calls to LINE",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"call"}),
	}
}

// ObserveProvider matches line.Config.Observe.
func (m *Metrics) ObserveProvider(call string, took time.Duration) {
	if m == nil {
		return
	}
	m.provider.WithLabelValues(call).Observe(took.Seconds())
}

func (m *Metrics) login(flow string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(AsError(err).Code)
	}
	m.logins.WithLabelValues(flow, outcome).Inc()
}

func (m *Metrics) selection(flow string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(flow, "store_selection").Inc()
}
