// Package metrics exposes Prometheus counters for upstream calls, catalog
// walks and cache lookups.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements catalog.Recorder and cache.Recorder. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	upstreamCalls *prometheus.CounterVec
	walks         *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
}

// New registers the service collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ymm",
			Name:      "upstream_calls_total",
			Help:      "Upstream catalog calls by kind (page, custom_fields) and outcome",
		}, []string{"kind", "outcome"}),
		walks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ymm",
			Name:      "catalog_walks_total",
			Help:      "Catalog walks by terminal state",
		}, []string{"state"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ymm",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by operation and result",
		}, []string{"op", "result"}),
	}
	reg.MustRegister(m.upstreamCalls, m.walks, m.cacheLookups)
	return m
}

func (m *Metrics) UpstreamCall(kind, outcome string) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) WalkFinished(state string) {
	if m == nil {
		return
	}
	m.walks.WithLabelValues(state).Inc()
}

func (m *Metrics) CacheLookup(op string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(op, result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
