package apiclient

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records outgoing API calls. One instance is shared by every
// client of the process.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kawah_api_requests_total",
			Help: "Total number of requests sent to the task API.",
		}, []string{"method", "route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kawah_api_request_duration_seconds",
			Help:    "Latency of requests sent to the task API.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *Metrics) observe(method, route, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, code).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// routeLabel collapses resource IDs so label cardinality stays bounded:
// /tasks/abc123 becomes /tasks/:id.
func routeLabel(path string) string {
	path = strings.SplitN(path, "?", 2)[0]
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) >= 2 && segments[0] == "tasks" {
		segments[1] = ":id"
	}
	return "/" + strings.Join(segments, "/")
}
