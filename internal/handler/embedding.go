package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"carmatch/internal/model"
)

// EmbeddingUpdater stores vehicle embeddings
type EmbeddingUpdater interface {
	UpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string)
}

// EmbeddingHandler handles embedding-related HTTP requests
type EmbeddingHandler struct {
	updater EmbeddingUpdater
}

// NewEmbeddingHandler creates a new embedding handler
func NewEmbeddingHandler(updater EmbeddingUpdater) *EmbeddingHandler {
	return &EmbeddingHandler{updater: updater}
}

// BatchUpdate handles POST /api/v1/embeddings/batch. Items carrying text
// instead of a vector are embedded on the server.
func (h *EmbeddingHandler) BatchUpdate(c *gin.Context) {
	var req model.EmbeddingBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if len(req.Embeddings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No embeddings provided"})
		return
	}

	success, errs := h.updater.UpdateEmbeddings(c.Request.Context(), req.Embeddings)

	response := model.EmbeddingBatchResponse{
		Success: success,
		Failed:  len(req.Embeddings) - success,
		Errors:  errs,
	}

	if len(errs) > 0 {
		c.JSON(http.StatusPartialContent, response)
	} else {
		c.JSON(http.StatusOK, response)
	}
}
