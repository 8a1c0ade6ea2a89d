package tracing

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"labor/pkg/logging"
)

func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// LogContextMiddleware copies the active trace id into the request context for the
// context-aware logger. It must run after GinMiddleware.
func LogContextMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logging.WithServiceName(c.Request.Context(), serviceName)
		ctx = logging.WithTraceID(ctx, TraceIDFromContext(ctx))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
