package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/influxdata/coreraft/kit/prom/promtest"
	tracetesting "github.com/influxdata/coreraft/kit/tracing/testing"
	kithttp "github.com/influxdata/coreraft/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/jaeger-client-go"
)

func TestMetrics(t *testing.T) {
	reqs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "requests_total"},
		[]string{"handler", "method", "path", "status", "response_code"})
	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "request_duration_seconds"},
		[]string{"handler", "method", "path", "status", "response_code"})
	reg := prometheus.NewRegistry()
	reg.MustRegister(reqs, durs)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	h := kithttp.Metrics("status", reqs, durs)(next)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/role", nil))

	mfs := promtest.MustGather(t, reg)
	m := promtest.MustFindMetric(t, mfs, "requests_total", map[string]string{
		"handler":       "status",
		"method":        http.MethodGet,
		"path":          "/role",
		"status":        "5XX",
		"response_code": "503",
	})
	assert.Equal(t, 1.0, m.GetCounter().GetValue())
}

func TestTrace(t *testing.T) {
	reporter, restore := tracetesting.SetupInMemoryTracing(t.Name())
	defer restore()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-Request-Id", "42")
	kithttp.Trace("status")(next).ServeHTTP(httptest.NewRecorder(), req)

	spans := reporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "status:/status", spans[0].(*jaeger.Span).OperationName())
}

func TestStatusResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := kithttp.NewStatusResponseWriter(rec)
	assert.Equal(t, http.StatusOK, w.Code(), "no header written defaults to 200")

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("missing"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, w.Code())
	assert.Equal(t, "4XX", w.StatusCodeClass())
	assert.Equal(t, 7, w.ResponseBytes())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
