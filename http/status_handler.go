// Package http serves the status of a member over HTTP.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/influxdata/coreraft/cluster"
	"github.com/influxdata/coreraft/kit/errors"
	kithttp "github.com/influxdata/coreraft/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	prefixRole    = "/role"
	prefixStatus  = "/status"
	prefixReady   = "/ready"
	prefixMetrics = "/metrics"
)

// StatusService reports the status of a member.
type StatusService interface {
	Status(ctx context.Context) (*cluster.Status, error)
}

// StatusHandler serves the role, status and readiness of one member, and
// the metrics of the process.
type StatusHandler struct {
	chi.Router

	log          *zap.Logger
	svc          StatusService
	errorHandler kithttp.ErrorHandler

	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewStatusHandler returns a handler for svc. metrics serves /metrics and
// may be nil. labels are attached to the request metrics of the handler.
func NewStatusHandler(log *zap.Logger, svc StatusService, metrics http.Handler, labels prometheus.Labels) *StatusHandler {
	h := &StatusHandler{
		log: log,
		svc: svc,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "raft",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Number of status requests served.",
			ConstLabels: labels,
		}, []string{"handler", "method", "path", "status", "response_code"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "raft",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "Time taken to serve status requests.",
			ConstLabels: labels,
		}, []string{"handler", "method", "path", "status", "response_code"}),
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		middleware.RequestID,
		kithttp.Trace("status"),
		kithttp.Metrics("status", h.requests, h.durations),
	)

	r.Get(prefixRole, h.handleGetRole)
	r.Get(prefixStatus, h.handleGetStatus)
	r.Get(prefixReady, h.handleGetReady)
	if metrics != nil {
		r.Method(http.MethodGet, prefixMetrics, metrics)
	}

	h.Router = r
	return h
}

func (h *StatusHandler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		h.errorHandler.HandleHTTPError(r.Context(), err, w)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, st.Role)
}

func (h *StatusHandler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		h.errorHandler.HandleHTTPError(r.Context(), err, w)
		return
	}
	h.encodeResponse(w, http.StatusOK, st)
}

// handleGetReady reports ready unless the member has panicked.
func (h *StatusHandler) handleGetReady(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		h.errorHandler.HandleHTTPError(r.Context(), err, w)
		return
	}
	if st.Panicked {
		h.errorHandler.HandleHTTPError(r.Context(), errors.Errorf(errors.EPanicked, "member %s panicked", st.Member), w)
		return
	}
	h.encodeResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *StatusHandler) encodeResponse(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("Failed to encode response", zap.Error(err))
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (h *StatusHandler) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{h.requests, h.durations}
}
