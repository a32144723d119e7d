// Package testing installs an in-memory tracer for tests that assert on spans.
package testing

import (
	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
)

// SetupInMemoryTracing sets the global tracer to an in memory Jaeger instance
// and returns its reporter. The returned function restores the previous
// tracer and should be deferred by the caller.
func SetupInMemoryTracing(name string) (*jaeger.InMemoryReporter, func()) {
	var (
		old            = opentracing.GlobalTracer()
		reporter       = jaeger.NewInMemoryReporter()
		tracer, closer = jaeger.NewTracer(name,
			jaeger.NewConstSampler(true),
			reporter,
		)
	)

	opentracing.SetGlobalTracer(tracer)
	return reporter, func() {
		_ = closer.Close()
		opentracing.SetGlobalTracer(old)
	}
}
