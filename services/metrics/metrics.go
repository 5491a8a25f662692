package metricsvc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/masomo-admin/core/featureswitch"
)

// Prom implements featureswitch.Metrics backed by Prometheus collectors.
type Prom struct {
	resolutions *prometheus.CounterVec
	fetches     *prometheus.CounterVec
	fetchTime   prometheus.Histogram
	sessions    prometheus.Gauge
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

var _ featureswitch.Metrics = (*Prom)(nil)

// NewProm registers the gate collectors on reg.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	p := &Prom{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_resolutions_total",
			Help:      "Gate resolutions by outcome",
		}, []string{"outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_status_fetches_total",
			Help:      "Feature status fetches by result",
		}, []string{"result"}),
		fetchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feature_status_fetch_duration_seconds",
			Help:      "Feature status fetch latency",
			Buckets:   prometheus.DefBuckets,
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_sessions",
			Help:      "Mounted gate resolvers",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(p.resolutions, p.fetches, p.fetchTime, p.sessions, p.requests, p.latency)
	return p
}

func (p *Prom) IncResolutions(outcome string) {
	p.resolutions.WithLabelValues(outcome).Inc()
}

func (p *Prom) ObserveFetch(durationSeconds float64, failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	p.fetches.WithLabelValues(result).Inc()
	p.fetchTime.Observe(durationSeconds)
}

func (p *Prom) SetSessions(n int) {
	p.sessions.Set(float64(n))
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

// Handler returns an HTTP handler for /metrics.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
