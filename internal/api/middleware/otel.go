// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/tvrelay/internal/telemetry"
)

// channelRoutes map a path prefix to the span name used for every channel
// under it. Span names must not carry the channel id.
var channelRoutes = []struct{ prefix, name string }{
	{"/stream/", "/stream/{channel}"},
	{"/audio/", "/audio/{channel}"},
	{"/watch/", "/watch/{channel}"},
}

// OTelHTTP starts a server span per request. Probe and scrape requests are
// not traced. Channel routes carry the channel id as a span attribute.
func OTelHTTP(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		tag := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, id := routeOf(r.URL.Path); id != "" {
				trace.SpanFromContext(r.Context()).SetAttributes(telemetry.ChannelAttributes(id, "")...)
			}
			next.ServeHTTP(w, r)
		})
		return otelhttp.NewHandler(tag, serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithPropagators(otel.GetTextMapPropagator()),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				route, _ := routeOf(r.URL.Path)
				return r.Method + " " + route
			}),
		)
	}
}

func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

// routeOf returns the span route for path and, for channel routes, the id.
func routeOf(path string) (route, channel string) {
	for _, cr := range channelRoutes {
		if id, ok := strings.CutPrefix(path, cr.prefix); ok && id != "" && !strings.Contains(id, "/") {
			return cr.name, id
		}
	}
	return path, ""
}

// traceIDs returns the ids of the active span, or empty strings.
func traceIDs(r *http.Request) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(r.Context())
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
