package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orito-labs/orito/pkg/database"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// HealthCheck is one named component check inside the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthHandler handles GET /health.
// Only orito's own components are checked; the LLM provider is excluded so
// an upstream outage never makes the process look dead to an orchestrator.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]any)
	status := healthStatusHealthy

	if s.db != nil {
		dbHealth, err := database.Health(reqCtx, s.db.Pool())
		if err != nil {
			status = healthStatusUnhealthy
			checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = dbHealth
		}
	} else {
		checks["store"] = HealthCheck{Status: healthStatusHealthy, Message: "in-memory"}
	}

	checks["sessions"] = gin.H{"status": healthStatusHealthy, "active": len(s.sessions.List())}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, gin.H{"status": status, "checks": checks})
}
