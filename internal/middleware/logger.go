package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestObserver records request measurements.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// Logger logs every request after it is handled. Socket.io polling traffic
// is only measured, not logged.
func Logger(logger *slog.Logger, observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if observer != nil {
			observer.ObserveRequest(c.Request.Method, route, status, latency)
		}
		if strings.HasPrefix(path, "/socket.io") {
			return
		}

		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"ip", c.ClientIP(),
			"latency", latency,
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			attrs = append(attrs, "error", errs)
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("Request handled", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("Request handled", attrs...)
		default:
			logger.Info("Request handled", attrs...)
		}
	}
}
