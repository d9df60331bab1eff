package tracing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/toddfishman/meetini/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// untraced routes are polled by infrastructure and carry no useful spans.
var untraced = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// GinMiddleware starts a server span per request, named after the route
// template. It must run after the request logging middleware so the request
// id is already in the context.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("meetini/http")
	return func(c *gin.Context) {
		if untraced[c.Request.URL.Path] {
			c.Next()
			return
		}

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span.SetName(c.Request.Method + " " + route)

		status := c.Writer.Status()
		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		}
		reqCtx := c.Request.Context()
		if id := obscontext.RequestIDFromContext(reqCtx); id != "" {
			attrs = append(attrs, attribute.String("request_id", id))
		}
		if id := obscontext.InvitationIDFromContext(reqCtx); id != "" {
			attrs = append(attrs, attribute.String("invitation_id", id))
		}
		if actorType, _ := obscontext.ActorFromContext(reqCtx); actorType != "" {
			attrs = append(attrs, attribute.String("actor.type", actorType))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		lastErr := c.Errors.Last()
		switch {
		case status >= http.StatusInternalServerError:
			if lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		case lastErr != nil:
			// Client errors leave the span status unset; the reason goes in an event.
			if safeErr := SafeError(lastErr.Err); safeErr != nil {
				span.AddEvent("request.rejected", trace.WithAttributes(
					attribute.String("error", safeErr.Error()),
				))
			}
		}
	}
}
