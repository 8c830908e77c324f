package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"landmatch/server/internal/extraction"
	"landmatch/server/internal/models"
)

// ExtractionResponse returns the partial update read from a document together
// with the stored record after merging it.
type ExtractionResponse struct {
	Extracted  models.ConditionsUpdate `json:"extracted"`
	Conditions models.LandConditions   `json:"conditions"`
}

// GetConditions returns the customer's conditions, creating defaults on first access
func (h *Handler) GetConditions(c *gin.Context) {
	conditions, err := h.db.GetOrCreateConditions(c.Param("customerId"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to get conditions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get conditions"})
		return
	}
	c.JSON(http.StatusOK, conditions)
}

// SaveConditions replaces the customer's conditions with an operator-edited record
func (h *Handler) SaveConditions(c *gin.Context) {
	var request models.LandConditions
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing, err := h.db.GetOrCreateConditions(c.Param("customerId"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to get conditions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get conditions"})
		return
	}

	request.ID = existing.ID
	request.CustomerID = existing.CustomerID
	request.CreatedAt = existing.CreatedAt
	request.Priorities = request.Priorities.Clamp()
	if request.ShapePreference == "" {
		request.ShapePreference = models.ShapeAny
	}
	request.LastUpdatedFrom = models.SourceManual
	request.LastUpdatedAt = time.Now()

	if h.validate(c, &request) && h.save(c, &request) {
		c.JSON(http.StatusOK, request)
	}
}

// UpdateConditions applies a field-level manual edit through the merge policy
func (h *Handler) UpdateConditions(c *gin.Context) {
	var update models.ConditionsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.applyDocument(c, extraction.ManualEdit{Update: update})
}

func (h *Handler) ExtractHearingSheet(c *gin.Context) {
	var sheet extraction.HearingSheet
	if err := c.ShouldBindJSON(&sheet); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.applyDocument(c, sheet)
}

func (h *Handler) ExtractReception(c *gin.Context) {
	var reception extraction.Reception
	if err := c.ShouldBindJSON(&reception); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.applyDocument(c, reception)
}

func (h *Handler) ExtractNegotiation(c *gin.Context) {
	var negotiation extraction.Negotiation
	if err := c.ShouldBindJSON(&negotiation); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.applyDocument(c, negotiation)
}

func (h *Handler) applyDocument(c *gin.Context, doc extraction.Extractor) {
	existing, err := h.db.GetOrCreateConditions(c.Param("customerId"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to get conditions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get conditions"})
		return
	}

	update := doc.Extract(existing, h.heuristics)
	merged := extraction.Merge(existing, update)

	// Only operator edits are held to consistent ranges; extracted documents are
	// stored as read and scored as-is
	if doc.Source() == models.SourceManual && !h.validate(c, &merged) {
		return
	}
	if !h.save(c, &merged) {
		return
	}
	h.logger.WithFields(logrus.Fields{
		"customer_id": merged.CustomerID,
		"source":      doc.Source(),
	}).Info("Updated land conditions")

	c.JSON(http.StatusOK, ExtractionResponse{Extracted: update, Conditions: merged})
}

// validate and save write the error response themselves and return false on failure
func (h *Handler) validate(c *gin.Context, conditions *models.LandConditions) bool {
	if err := conditions.Validate(); err != nil {
		if errors.Is(err, models.ErrInvalidConditions) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return false
		}
		h.logger.WithError(err).Error("Failed to validate conditions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate conditions"})
		return false
	}
	return true
}

func (h *Handler) save(c *gin.Context, conditions *models.LandConditions) bool {
	if err := h.db.SaveConditions(conditions); err != nil {
		h.logger.WithError(err).Error("Failed to save conditions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save conditions"})
		return false
	}
	return true
}
