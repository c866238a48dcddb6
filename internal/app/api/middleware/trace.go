package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tableside/billing/pkg/logctx"
)

// Trace attaches a trace id to every request. It honors the client's
// X-Request-ID header so provider webhook deliveries can be correlated with
// the provider's own dashboard; otherwise a fresh UUID is generated. The id
// is stored under "traceID" in gin.Context and in the request context, and
// echoed back in the response header.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Request-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set("traceID", traceID)
		c.Request = c.Request.WithContext(logctx.WithTraceID(c.Request.Context(), traceID))

		c.Header("X-Request-ID", traceID)
		c.Next()
	}
}
