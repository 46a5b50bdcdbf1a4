package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/calebwren/rapport/internal/service"
)

// HealthHandler handles liveness and readiness endpoints.
type HealthHandler struct {
	db    *gorm.DB
	index service.VectorIndex
}

// NewHealthHandler creates a new health handler.
// Parameters:
//   - db: GORM database handle, pinged on readiness checks.
//   - index: vector index, health-checked on readiness checks.
// Returns:
//   - *HealthHandler: initialized handler.
func NewHealthHandler(db *gorm.DB, index service.VectorIndex) *HealthHandler {
	return &HealthHandler{db: db, index: index}
}

// Health handles GET /healthz. It only reports that the process is up.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles GET /readyz: the service is ready when both the database
// and the vector index answer.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if sqlDB, err := h.db.DB(); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.index == nil {
		checks["vector_index"] = "not configured"
	} else if err := h.index.HealthCheck(c.Request.Context()); err != nil {
		checks["vector_index"] = err.Error()
		healthy = false
	} else {
		checks["vector_index"] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"checks": checks,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"checks": checks,
	})
}
