package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"convoy/internal/utils"
)

// Pinger is a dependency the health check can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ConnectionCounter interface {
	ConnectionCount() int
}

type HealthHandler struct {
	deps        map[string]Pinger
	connections ConnectionCounter
}

func NewHealthHandler(connections ConnectionCounter, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps, connections: connections}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.deps))
	healthy := true
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	body := gin.H{
		"status":    "healthy",
		"service":   utils.AppName,
		"version":   utils.AppVersion,
		"checks":    checks,
		"timestamp": time.Now().Unix(),
	}
	if h.connections != nil {
		body["connections"] = h.connections.ConnectionCount()
	}

	if !healthy {
		body["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
