package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dshills/sketchlink/internal/logging"
)

// requestLogger logs one line per request.
func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		l := logger.WithFields(map[string]any{
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Microsecond),
		})
		if id := c.Param("id"); id != "" {
			l = l.WithField("session", id)
		}

		msg := c.Request.Method + " " + c.FullPath()
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			l.Error("%s", msg)
		case len(c.Errors) > 0:
			l.Warn("%s: %s", msg, c.Errors.String())
		default:
			l.Debug("%s", msg)
		}
	}
}

// recovery turns a handler panic into a 500 response.
func recovery(logger *logging.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err any) {
		logger.Error("panic in %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
			Error: "internal error",
			Code:  "internal",
		})
	})
}
