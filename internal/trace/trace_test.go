package trace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/username/ecoenergy-api/internal/config"
)

// stub swaps the constructors for in-memory ones and restores the globals afterwards.
func stub(t *testing.T) (*tracetest.InMemoryExporter, *string) {
	t.Helper()
	origRes, origHTTP, origGRPC := newResource, newHTTPExporter, newGRPCExporter
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		newResource, newHTTPExporter, newGRPCExporter = origRes, origHTTP, origGRPC
		otel.SetTracerProvider(origTP)
	})

	exp := tracetest.NewInMemoryExporter()
	used := new(string)
	newResource = func(context.Context, ...resource.Option) (*resource.Resource, error) {
		return resource.Default(), nil
	}
	newHTTPExporter = func(context.Context, ...otlptracehttp.Option) (sdktrace.SpanExporter, error) {
		*used = "http"
		return exp, nil
	}
	newGRPCExporter = func(context.Context, ...otlptracegrpc.Option) (sdktrace.SpanExporter, error) {
		*used = "grpc"
		return exp, nil
	}
	return exp, used
}

func TestInit_Disabled(t *testing.T) {
	_, used := stub(t)
	shutdown, err := Init(context.Background(), config.TracingConfig{}, "1.0.0", zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Empty(t, *used)
}

func TestInit_Protocols(t *testing.T) {
	for _, proto := range []string{"http", "grpc"} {
		t.Run(proto, func(t *testing.T) {
			_, used := stub(t)
			cfg := config.TracingConfig{Enabled: true, Protocol: proto, Endpoint: "localhost:4318", ServiceName: "ecoenergy-api"}
			shutdown, err := Init(context.Background(), cfg, "1.0.0", zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, proto, *used)
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestInit_Errors(t *testing.T) {
	stub(t)
	newResource = func(context.Context, ...resource.Option) (*resource.Resource, error) {
		return nil, errors.New("boom")
	}
	_, err := Init(context.Background(), config.TracingConfig{Enabled: true}, "1.0.0", zap.NewNop())
	assert.ErrorContains(t, err, "create resource")

	stub(t)
	newHTTPExporter = func(context.Context, ...otlptracehttp.Option) (sdktrace.SpanExporter, error) {
		return nil, errors.New("boom")
	}
	_, err = Init(context.Background(), config.TracingConfig{Enabled: true, Protocol: "http"}, "1.0.0", zap.NewNop())
	assert.ErrorContains(t, err, "create exporter")
}

func TestMiddleware_RecordsSpan(t *testing.T) {
	exp, _ := stub(t)
	cfg := config.TracingConfig{Enabled: true, Protocol: "http", ServiceName: "ecoenergy-api"}
	shutdown, err := Init(context.Background(), cfg, "1.0.0", zap.NewNop())
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware("ecoenergy-api"))
	r.GET("/api/zones/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/zones/3", nil))

	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)
	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Name, "/api/zones/:id")
	require.NoError(t, shutdown(context.Background()))
}
