// Package tracing wraps opentracing helpers used around snapshot transfer
// and the status endpoints.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
)

// LogError adds a span log for an error.
// Returns unchanged error, so useful to wrap as in:
//
//	return 0, tracing.LogError(span, err)
func LogError(span opentracing.Span, err error) error {
	if err == nil {
		return nil
	}
	span.SetTag("error", true)
	span.LogFields(log.Error(err))
	return err
}

// InjectToHTTPRequest adds tracing headers to an HTTP request.
func InjectToHTTPRequest(span opentracing.Span, req *http.Request) {
	err := opentracing.GlobalTracer().Inject(span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(req.Header))
	if err != nil {
		span.LogFields(log.String("trace-inject-error", err.Error()))
	}
}

// ExtractFromHTTPRequest gets a child span of the parent referenced in HTTP request headers.
func ExtractFromHTTPRequest(req *http.Request, handlerName string) (opentracing.Span, *http.Request) {
	spanContext, err := opentracing.GlobalTracer().Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(req.Header))
	if err != nil {
		span, ctx := opentracing.StartSpanFromContext(req.Context(), handlerName+":"+req.URL.Path)
		if !errors.Is(err, opentracing.ErrSpanContextNotFound) {
			span.LogFields(log.String("trace-extract-error", err.Error()))
		}
		return span, req.WithContext(ctx)
	}

	span := opentracing.StartSpan(handlerName+":"+req.URL.Path, opentracing.ChildOf(spanContext))
	return span, req.WithContext(opentracing.ContextWithSpan(req.Context(), span))
}

// StartSpanFromContextWithOperationName starts a span named name as a child
// of any span already carried by ctx.
func StartSpanFromContextWithOperationName(ctx context.Context, name string, opts ...opentracing.StartSpanOption) (opentracing.Span, context.Context) {
	return opentracing.StartSpanFromContext(ctx, name, opts...)
}

// StartSpanFromContext uses the calling function as the operation name and
// logs the file:line of the caller.
func StartSpanFromContext(ctx context.Context, opts ...opentracing.StartSpanOption) (opentracing.Span, context.Context) {
	if ctx == nil {
		panic("StartSpanFromContext called with nil context")
	}

	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		span, ctx := opentracing.StartSpanFromContext(ctx, "unknown", opts...)
		span.LogFields(log.Error(errors.New("failed to get calling frame")))
		return span, ctx
	}

	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()

	span, ctx := opentracing.StartSpanFromContext(ctx, frame.Function, opts...)
	span.LogFields(log.String("location", fmt.Sprintf("%s:%d", frame.File, frame.Line)))
	return span, ctx
}
