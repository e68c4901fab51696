// internal/handlers/health.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HealthCheck reports whether one backing service is reachable.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	version string
	checks  map[string]HealthCheck
}

func NewHealthHandler(version string, checks map[string]HealthCheck) *HealthHandler {
	if checks == nil {
		checks = map[string]HealthCheck{}
	}
	return &HealthHandler{version: version, checks: checks}
}

// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			logrus.WithError(err).WithField("component", name).Warn("Health check failed")
			components[name] = "unavailable"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}
