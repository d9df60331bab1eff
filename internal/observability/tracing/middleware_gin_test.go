package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTracedEngine(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/invitations/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/cron/reminders", func(c *gin.Context) {
		_ = c.Error(errors.New("run failed"))
		c.Status(http.StatusInternalServerError)
	})
	return r, recorder
}

func serve(r *gin.Engine, method, path string) {
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, nil))
}

func TestGinMiddlewareNamesSpanByRoute(t *testing.T) {
	r, recorder := newTracedEngine(t)

	serve(r, http.MethodGet, "/api/invitations/12345")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/invitations/:id", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestGinMiddlewareSkipsProbes(t *testing.T) {
	r, recorder := newTracedEngine(t)

	serve(r, http.MethodGet, "/health")

	assert.Empty(t, recorder.Ended())
}

func TestGinMiddlewareMarksServerErrors(t *testing.T) {
	r, recorder := newTracedEngine(t)

	serve(r, http.MethodPost, "/api/cron/reminders")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}
