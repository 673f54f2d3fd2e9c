package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/logger"
)

// RequestLogger records every HTTP request through the structured
// logger instead of gin's default writer.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.LogRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}
