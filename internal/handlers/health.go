package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwebster45206/closed-ai/internal/services"
)

type HealthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Service    string                 `json:"service"`
	Components map[string]interface{} `json:"components"`
}

type HealthHandler struct {
	redis  services.Pinger
	games  func() int
	logger *slog.Logger
}

// NewHealthHandler reports on redis and the number of live games.
func NewHealthHandler(redis services.Pinger, games func() int, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		redis:  redis,
		games:  games,
		logger: logger,
	}
}

func (h *HealthHandler) ServeHTTP(c *gin.Context) {
	h.logger.Debug("Health check requested",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"remote_addr", c.Request.RemoteAddr)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]interface{})
	overallStatus := "healthy"

	if err := h.redis.Ping(ctx); err != nil {
		h.logger.Warn("Redis health check failed", "error", err)
		components["redis"] = "unhealthy"
		overallStatus = "degraded"
	} else {
		components["redis"] = "healthy"
	}
	if h.games != nil {
		components["games"] = h.games()
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    "closed-ai",
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}
