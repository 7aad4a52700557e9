package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arclightapps/identity-gateway/internal/infra/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID puts a correlation identifier on the request context, where the
// zap access logger and downstream calls pick it up. Client-supplied IDs are
// echoed back unchanged.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		c.Writer.Header().Set(requestIDHeader, reqID)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID))

		c.Next()
	}
}
