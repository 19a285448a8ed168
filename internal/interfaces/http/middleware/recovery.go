package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	apperrors "lesson-forge-api/pkg/errors"
	"lesson-forge-api/pkg/logger"
	"lesson-forge-api/pkg/metrics"
)

// Recovery Panic 恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				path := c.FullPath()
				if path == "" {
					path = "unknown"
				}
				metrics.HTTPPanicsTotal.WithLabelValues(path).Inc()

				logger.Error(c.Request.Context(), "panic recovered",
					fmt.Errorf("%v", rec),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":       apperrors.ErrInternalError.Code,
					"message":    apperrors.ErrInternalError.Message,
					"request_id": c.GetString("request_id"),
				})
			}
		}()

		c.Next()
	}
}
