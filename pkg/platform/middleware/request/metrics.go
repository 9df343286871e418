package request

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EndpointLatency *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "warden_endpoint_latency_seconds",
			Help: "Latency of endpoints in seconds, by route pattern and status class",
			// Verdicts are expected in single-digit milliseconds.
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"endpoint", "method", "status"}),
	}
}

func (m *Metrics) ObserveEndpointLatency(endpoint, method string, status int, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint, method, statusClass(status)).Observe(durationSeconds)
}

// statusClass keeps label cardinality fixed: 2xx, 4xx, 5xx.
func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
