package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/issuedesk/backend/internal/models"
	"go.uber.org/zap"
)

// Logger returns a zap-based request logging middleware. When the request
// carries an authenticated identity the user and org IDs are logged too.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		clientIP := c.ClientIP()
		method := c.Request.Method
		statusCode := 0

		c.Next()

		statusCode = c.Writer.Status()
		latency := time.Since(start)

		fields := []zap.Field{
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("method", method),
			zap.String("path", path),
			zap.String("client_ip", clientIP),
		}
		if val, ok := c.Get(ContextIdentity); ok {
			if identity, ok := val.(models.Identity); ok {
				fields = append(fields,
					zap.String("user_id", identity.UserID.String()),
					zap.String("org_id", identity.OrganizationID.String()),
				)
			}
		}
		logger.Info("request", fields...)
	}
}
