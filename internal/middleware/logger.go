package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/autolog/autoanalysis/internal/logger"
)

// RequestLogger logs every HTTP request through the application logger
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		entry := logger.WithContext(map[string]interface{}{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
			"user":      c.GetString(UserKey),
			"component": "http",
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("API request")
		case c.Writer.Status() >= 400:
			entry.Warn("API request")
		default:
			entry.Info("API request")
		}
	}
}
