package prom_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/influxdata/coreraft/kit/prom"
	"github.com/influxdata/coreraft/kit/prom/promtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type counterCollector struct {
	c prometheus.Counter
}

func (c counterCollector) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{c.c}
}

func TestRegistry_HTTPHandler(t *testing.T) {
	reg := prom.NewRegistry(zaptest.NewLogger(t))
	cc := counterCollector{c: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "raft",
		Name:      "test_total",
		Help:      "Test counter.",
	})}
	reg.MustRegister(cc)
	cc.c.Add(3)

	srv := httptest.NewServer(reg.HTTPHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	mfs, err := promtest.FromHTTPResponse(resp)
	require.NoError(t, err)

	m := promtest.MustFindMetric(t, mfs, "raft_test_total", nil)
	require.Equal(t, float64(3), m.GetCounter().GetValue())
}
