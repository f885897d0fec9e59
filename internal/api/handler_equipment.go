package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"equipment-tracker-backend/internal/engine"
	"equipment-tracker-backend/internal/model"
	"equipment-tracker-backend/internal/store"
)

// GetAllEquipment handles GET /api/equipment.
func (h *Handler) GetAllEquipment(c *gin.Context) {
	snapshots, err := h.engine.ListEquipment(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve equipment"})
		return
	}
	c.JSON(http.StatusOK, snapshots)
}

// GetEquipmentByID handles GET /api/equipment/{id}.
func (h *Handler) GetEquipmentByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid equipment ID"})
		return
	}

	snapshot, err := h.engine.GetEquipment(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Equipment not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve equipment"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

type updateStateRequest struct {
	// Pointer so that Stopped (0) survives required-field validation.
	NewState  *int   `json:"newState" binding:"required"`
	ChangedBy string `json:"changedBy" binding:"required"`
	Notes     string `json:"notes"`
}

// UpdateState handles PUT /api/equipment/{id}/state.
func (h *Handler) UpdateState(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid equipment ID"})
		return
	}

	var req updateStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := h.engine.UpdateState(
		c.Request.Context(),
		id,
		model.ProductionState(*req.NewState),
		req.ChangedBy,
		req.Notes,
	)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrValidation):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Equipment not found"})
		case errors.Is(err, store.ErrConflict):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Concurrent state change detected, retry with fresh state"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to update state"})
		}
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
