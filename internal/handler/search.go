package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carmatch/internal/model"
	"carmatch/internal/repository"
)

// Searcher ranks the catalog and reads single vehicles
type Searcher interface {
	Search(ctx context.Context, profile model.CustomerProfile, limit int) ([]model.ScoredMatch, error)
	GetVehicle(ctx context.Context, id string) (*model.CatalogItem, error)
}

// SearchHandler handles search-related HTTP requests
type SearchHandler struct {
	search       Searcher
	defaultLimit int
	maxLimit     int
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(search Searcher, defaultLimit, maxLimit int) *SearchHandler {
	return &SearchHandler{
		search:       search,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req model.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if req.Limit <= 0 {
		req.Limit = h.defaultLimit
	}
	if h.maxLimit > 0 && req.Limit > h.maxLimit {
		req.Limit = h.maxLimit
	}

	start := time.Now()
	results, err := h.search.Search(c.Request.Context(), req.Profile, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed: " + err.Error()})
		return
	}
	if results == nil {
		results = []model.ScoredMatch{}
	}

	c.JSON(http.StatusOK, model.SearchResponse{
		Results: results,
		Total:   len(results),
		Took:    time.Since(start).Milliseconds(),
	})
}

// GetVehicle handles GET /api/v1/vehicles/:id
func (h *SearchHandler) GetVehicle(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
		return
	}

	vehicle, err := h.search.GetVehicle(c.Request.Context(), id)
	if errors.Is(err, repository.ErrVehicleNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get vehicle: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, vehicle)
}
