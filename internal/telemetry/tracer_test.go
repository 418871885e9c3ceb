package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpan_Fail(t *testing.T) {
	rec := installRecorder(t)

	ctx, span := StartSpan(context.Background(), "service.test")
	assert.NotEmpty(t, TraceID(ctx))
	Fail(span, errors.New("boom"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "service.test", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestTraceID_Empty(t *testing.T) {
	assert.Equal(t, "", TraceID(context.Background()))
}

func TestMiddleware_NamesSpanByRoute(t *testing.T) {
	rec := installRecorder(t)

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/books/123", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get(TraceIDHeader))
	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/books/{id}", spans[0].Name())
}
