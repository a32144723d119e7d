// Package promtest provides helpers for parsing and extracting prometheus
// metrics in tests.
package promtest

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// FromHTTPResponse parses the prometheus metrics from the given *http.Response
// and closes its body.
func FromHTTPResponse(r *http.Response) ([]*dto.MetricFamily, error) {
	defer r.Body.Close()

	dec := expfmt.NewDecoder(r.Body, expfmt.ResponseFormat(r.Header))
	var mfs []*dto.MetricFamily
	for {
		mf := new(dto.MetricFamily)
		if err := dec.Decode(mf); err == io.EOF {
			return mfs, nil
		} else if err != nil {
			return nil, err
		}
		mfs = append(mfs, mf)
	}
}

// FindMetric returns the first metric of the family called name whose labels
// equal labels exactly, or nil.
func FindMetric(mfs []*dto.MetricFamily, name string, labels map[string]string) *dto.Metric {
	_, m := findMetric(mfs, name, labels)
	return m
}

// MustFindMetric is FindMetric that fails tb, listing what was available,
// when nothing matches.
func MustFindMetric(tb testing.TB, mfs []*dto.MetricFamily, name string, labels map[string]string) *dto.Metric {
	tb.Helper()

	fam, m := findMetric(mfs, name, labels)
	switch {
	case fam == nil:
		names := make([]string, 0, len(mfs))
		for _, mf := range mfs {
			names = append(names, mf.GetName())
		}
		tb.Fatalf("metric family %q not found; have %s", name, strings.Join(names, ", "))
	case m == nil:
		var sets []string
		for _, m := range fam.Metric {
			pairs := make([]string, len(m.Label))
			for i, l := range m.Label {
				pairs[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
			}
			sets = append(sets, "{"+strings.Join(pairs, ",")+"}")
		}
		tb.Fatalf("metric %q with labels %v not found; have %s", name, labels, strings.Join(sets, " "))
	}
	return m
}

func findMetric(mfs []*dto.MetricFamily, name string, labels map[string]string) (*dto.MetricFamily, *dto.Metric) {
	var fam *dto.MetricFamily
	for _, mf := range mfs {
		if mf.GetName() == name {
			fam = mf
			break
		}
	}
	if fam == nil {
		return nil, nil
	}

next:
	for _, m := range fam.Metric {
		if len(m.Label) != len(labels) {
			continue
		}
		for _, l := range m.Label {
			if labels[l.GetName()] != l.GetValue() {
				continue next
			}
		}
		return fam, m
	}
	return fam, nil
}

// MustGather calls g.Gather and calls tb.Fatal if there was an error.
func MustGather(tb testing.TB, g prometheus.Gatherer) []*dto.MetricFamily {
	tb.Helper()

	mfs, err := g.Gather()
	if err != nil {
		tb.Fatalf("error while gathering metrics: %v", err)
	}
	return mfs
}
