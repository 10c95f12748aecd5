// Package metrics provides Prometheus metrics for assetvault.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registry for all assetvault metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// ServeDecisions counts serving outcomes, labeled by kind (blob, redirect, not_found).
	ServeDecisions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assetvault",
		Name:      "serve_decisions_total",
		Help:      "Serving decisions by kind and backend.",
	}, []string{"kind", "backend"})

	UploadsFinished = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assetvault",
		Name:      "uploads_finished_total",
		Help:      "Upload finalize attempts by backend and outcome.",
	}, []string{"backend", "outcome"})

	RetentionProcessed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assetvault",
		Name:      "retention_processed_total",
		Help:      "Pending deletions processed by backend and result.",
	}, []string{"backend", "result"})

	Migrations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assetvault",
		Name:      "migrations_total",
		Help:      "Version migrations to the external backend by result.",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
