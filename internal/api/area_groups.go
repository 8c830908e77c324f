package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"landmatch/server/config"
	"landmatch/server/internal/models"
)

type AreaGroupRequest struct {
	Cities []string `json:"cities" binding:"required,min=1"`
}

func (h *Handler) areaGroupsConfigured(c *gin.Context) bool {
	if h.areaGroups == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Area groups are not configured"})
		return false
	}
	return true
}

// ListAreaGroups returns all named area groups
func (h *Handler) ListAreaGroups(c *gin.Context) {
	if !h.areaGroupsConfigured(c) {
		return
	}
	c.JSON(http.StatusOK, h.areaGroups.List())
}

// UpsertAreaGroup creates or replaces a group's member cities
func (h *Handler) UpsertAreaGroup(c *gin.Context) {
	if !h.areaGroupsConfigured(c) {
		return
	}

	var request AreaGroupRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group := models.AreaGroup{Name: c.Param("name"), Cities: request.Cities}
	if err := h.areaGroups.Upsert(group); err != nil {
		h.logger.WithError(err).Error("Failed to save area group")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save area group"})
		return
	}

	c.JSON(http.StatusOK, h.areaGroups.Get(group.Name))
}

func (h *Handler) DeleteAreaGroup(c *gin.Context) {
	if !h.areaGroupsConfigured(c) {
		return
	}

	err := h.areaGroups.Delete(c.Param("name"))
	if errors.Is(err, config.ErrAreaGroupNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Area group not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete area group")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete area group"})
		return
	}

	c.Status(http.StatusNoContent)
}
