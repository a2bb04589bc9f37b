package operator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zulandar/switchboard/internal/exchange"
)

// metrics holds the operator's Prometheus instruments. Each Operator owns
// its own registry so several can coexist in one process.
type metrics struct {
	registry *prometheus.Registry

	registrations  prometheus.Counter
	evictions      prometheus.Counter
	stationsOnline prometheus.Gauge
	patchesBound   prometheus.Gauge
	calls          *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &metrics{
		registry: reg,
		registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "switchboard_registrations_total",
			Help: "Total number of station registrations accepted",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "switchboard_evictions_total",
			Help: "Total number of stations demoted for missed heartbeats",
		}),
		stationsOnline: factory.NewGauge(prometheus.GaugeOpts{
			Name: "switchboard_stations_online",
			Help: "Current number of ONLINE stations",
		}),
		patchesBound: factory.NewGauge(prometheus.GaugeOpts{
			Name: "switchboard_instances_bound",
			Help: "Current number of bound tool instances",
		}),
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "switchboard_proxied_calls_total",
			Help: "Total number of proxied tool calls",
		}, []string{"tool", "op", "status"}),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "switchboard_call_duration_seconds",
			Help:    "Proxied tool call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		}, []string{"tool", "op"}),
	}
}

// handler serves this operator's registry at /metrics.
func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observeSnapshot refreshes the fleet gauges from a registry snapshot.
func (m *metrics) observeSnapshot(snap exchange.Snapshot) {
	m.stationsOnline.Set(float64(snap.OnlineWorkers()))
	m.patchesBound.Set(float64(len(snap.Patches)))
}
