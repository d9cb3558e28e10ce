package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// RequestLogger attaches a request id to the request context logger and logs each response
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		ctx := slogctx.With(c.Request.Context(),
			"request_id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		slogctx.Debug(ctx, "Request handled",
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
