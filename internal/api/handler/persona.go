package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/calebwren/rapport/internal/service"
)

// PersonaHandler handles persona graph endpoints.
type PersonaHandler struct {
	personas *service.PersonaService
}

// NewPersonaHandler creates a new persona handler.
// Parameters:
//   - personas: persona service instance.
// Returns:
//   - *PersonaHandler: initialized handler.
func NewPersonaHandler(personas *service.PersonaService) *PersonaHandler {
	return &PersonaHandler{personas: personas}
}

// seedPersonasRequest is the body of POST /api/v1/personas.
type seedPersonasRequest struct {
	UserID string                     `json:"user_id"`
	Nodes  []service.PersonaNodeInput `json:"nodes"`
}

// Seed handles POST /api/v1/personas. Labels are embedded and indexed
// before the rows are stored; the request fails as a whole if any node
// cannot be embedded.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PersonaHandler) Seed(c *gin.Context) {
	var req seedPersonasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "user_id is required",
		})
		return
	}
	if len(req.Nodes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "At least one node is required",
		})
		return
	}
	for i, node := range req.Nodes {
		if strings.TrimSpace(node.Label) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Node %d has an empty label", i),
			})
			return
		}
	}

	nodes, err := h.personas.SeedNodes(c.Request.Context(), req.UserID, req.Nodes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to seed personas: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id": req.UserID,
		"nodes":   nodes,
		"total":   len(nodes),
	})
}

// List handles GET /api/v1/users/:user_id/personas.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PersonaHandler) List(c *gin.Context) {
	nodes, err := h.personas.ListNodes(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list personas: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"personas": nodes,
		"total":    len(nodes),
	})
}

// Delete handles DELETE /api/v1/users/:user_id/personas, removing the
// user's persona graph from both stores.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PersonaHandler) Delete(c *gin.Context) {
	deleted, err := h.personas.DeleteNodes(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete personas: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted": deleted,
	})
}
