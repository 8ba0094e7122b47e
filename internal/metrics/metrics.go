// Package metrics exposes Prometheus metrics for the request pipeline.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains Prometheus collectors for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	shortCircuits *prometheus.CounterVec
	routeReloads  *prometheus.CounterVec
	routesActive  prometheus.Gauge
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_requests_total",
				Help: "Total requests processed, by outcome and status code",
			},
			[]string{"outcome", "status"},
		),

		shortCircuits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_short_circuits_total",
				Help: "Requests terminated early by a pipeline stage",
			},
			[]string{"stage"},
		),

		routeReloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_route_reloads_total",
				Help: "Route table reloads, by result",
			},
			[]string{"result"},
		),

		routesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tollgate_routes_active",
				Help: "Routes in the current active snapshot",
			},
		),
	}
}

// RecordRequest records a completed request.
func (m *Metrics) RecordRequest(outcome string, status int) {
	m.requestsTotal.WithLabelValues(outcome, strconv.Itoa(status)).Inc()
}

// RecordShortCircuit records a pipeline stage terminating a request early.
func (m *Metrics) RecordShortCircuit(stage string) {
	m.shortCircuits.WithLabelValues(stage).Inc()
}

// RecordReload records a route table reload outcome.
func (m *Metrics) RecordReload(active, skipped int) {
	if skipped > 0 {
		m.routeReloads.WithLabelValues("partial").Inc()
	} else {
		m.routeReloads.WithLabelValues("ok").Inc()
	}
	m.routesActive.Set(float64(active))
}

// Handler returns the Prometheus exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
