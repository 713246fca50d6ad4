package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestRouteSpansNestServiceSpans checks that spans started inside a handler join the request trace
func TestRouteSpansNestServiceSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	r := mux.NewRouter()
	r.Use(otelmux.Middleware("test-service"))
	r.HandleFunc("/api/v1/goals/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, span := StartSpan(r.Context(), "goals.get_goal")
		EndSpan(span, nil)
		w.WriteHeader(http.StatusOK)
	})

	const traceParent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	tests := []struct {
		name        string
		traceParent string
	}{
		{"new trace", ""},
		{"propagated trace", traceParent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			req := httptest.NewRequest("GET", "/api/v1/goals/g1", nil)
			if tt.traceParent != "" {
				req.Header.Set("traceparent", tt.traceParent)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("Expected status OK, got %d", rr.Code)
			}

			spans := exporter.GetSpans()
			if len(spans) != 2 {
				t.Fatalf("Expected service and route spans, got %d", len(spans))
			}
			service, route := spans[0], spans[1]
			if service.Name != "goals.get_goal" {
				t.Errorf("Expected service span first, got %q", service.Name)
			}
			if service.Parent.SpanID() != route.SpanContext.SpanID() {
				t.Error("Expected service span to be a child of the route span")
			}
			if tt.traceParent != "" && route.SpanContext.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
				t.Errorf("Expected propagated trace id, got %s", route.SpanContext.TraceID())
			}
		})
	}
}
