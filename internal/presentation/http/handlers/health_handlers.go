package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/performance"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/persistence/database"
)

// HealthHandlers reports service liveness
type HealthHandlers struct {
	db          *database.DB
	perfTracker *performance.Tracker
	startedAt   time.Time
}

// NewHealthHandlers creates health handlers
func NewHealthHandlers(db *database.DB, perfTracker *performance.Tracker) *HealthHandlers {
	return &HealthHandlers{
		db:          db,
		perfTracker: perfTracker,
		startedAt:   time.Now(),
	}
}

// GetHealth handles GET /health
func (h *HealthHandlers) GetHealth(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	if err := h.db.Ping(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status": status,
		"uptime": time.Since(h.startedAt).String(),
	})
}

// GetMetrics handles GET /health/metrics - recent operation markers.
func (h *HealthHandlers) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime":  h.perfTracker.Uptime().String(),
		"metrics": h.perfTracker.GetRecentMetrics(15 * time.Minute),
	})
}
