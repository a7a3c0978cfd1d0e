package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantdb"
)

const namespace = "tenancy"

// Metrics holds the Prometheus collectors of the tenancy pipeline. It is the
// recorder of both the tenant middleware and the connection router.
type Metrics struct {
	Resolutions    *prometheus.CounterVec
	CacheRequests  *prometheus.CounterVec
	PoolsOpenGauge prometheus.Gauge
	BindingsGauge  prometheus.Gauge
	BindDuration   *prometheus.HistogramVec
}

var (
	_ tenant.Recorder   = (*Metrics)(nil)
	_ tenantdb.Recorder = (*Metrics)(nil)
)

// New creates the collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Total number of tenant resolutions by outcome.",
		}, []string{"outcome"}), // outcome: bypass, bound, not_found, not_active, registry_unavailable, connection_failed, error
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Total number of tenant directory cache lookups by result.",
		}, []string{"result"}), // result: hit, negative_hit, miss, error
		PoolsOpenGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tenant_pools_open",
			Help:      "Number of tenant database pools kept by the router.",
		}),
		BindingsGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bindings_active",
			Help:      "Number of requests currently bound to a tenant database.",
		}),
		BindDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bind_duration_seconds",
			Help:      "Time to bind a request to its tenant database.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 10},
		}, []string{"status"}), // status: ok, error
	}
}

func (m *Metrics) Resolution(outcome string) {
	m.Resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	m.CacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) BindObserved(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.BindDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) BindingsActive(n int64) {
	m.BindingsGauge.Set(float64(n))
}

func (m *Metrics) PoolsOpen(n int) {
	m.PoolsOpenGauge.Set(float64(n))
}
