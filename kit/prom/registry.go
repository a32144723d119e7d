// Package prom provides a wrapper around a prometheus metrics registry
// so that every component of a member can register its collectors in one place.
package prom

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PrometheusCollector is the interface for a type to expose prometheus metrics.
// This interface is provided as a conventional way to indicate what metrics a
// type exposes.
type PrometheusCollector interface {
	// PrometheusCollectors returns a slice of prometheus collectors
	// containing metrics for the underlying instance.
	PrometheusCollectors() []prometheus.Collector
}

// Registry embeds a prometheus registry and adds a couple convenience methods.
type Registry struct {
	*prometheus.Registry

	log *zap.Logger
}

// NewRegistry returns a new registry.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		Registry: prometheus.NewRegistry(),
		log:      log,
	}
}

// MustRegister registers the collectors of every given PrometheusCollector.
func (r *Registry) MustRegister(pcs ...PrometheusCollector) {
	for _, pc := range pcs {
		r.Registry.MustRegister(pc.PrometheusCollectors()...)
	}
}

// HTTPHandler returns an http.Handler for the registry,
// so that the /metrics HTTP handler is uniformly configured across all apps in the platform.
func (r *Registry) HTTPHandler() http.Handler {
	opts := promhttp.HandlerOpts{
		ErrorLog: promLogger{r: r},
	}
	return promhttp.HandlerFor(r.Registry, opts)
}

// promLogger satisfies the promhttp.Logger interface with the registry.
type promLogger struct {
	r *Registry
}

var _ promhttp.Logger = promLogger{}

// Println implements promhttp.Logger.
func (pl promLogger) Println(v ...interface{}) {
	pl.r.log.Sugar().Warn(v...)
}
