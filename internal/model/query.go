package model

// MessageRequest is an inbound customer message from a transport adapter
type MessageRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Text      string `json:"text"`
}

// MessageResponse carries the reply to send back to the customer
type MessageResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Took      int64  `json:"took_ms"`
}

// SearchRequest ranks the catalog for an explicit profile
type SearchRequest struct {
	Profile CustomerProfile `json:"profile"`
	Limit   int             `json:"limit"`
}

// SearchResponse represents a ranking result response
type SearchResponse struct {
	Results []ScoredMatch `json:"results"`
	Total   int           `json:"total"`
	Took    int64         `json:"took_ms"`
}

// EmbeddingBatchRequest represents a batch embedding update request
type EmbeddingBatchRequest struct {
	Embeddings []EmbeddingItem `json:"embeddings" binding:"required"`
}

// EmbeddingItem represents a single embedding with vehicle info
type EmbeddingItem struct {
	VehicleID string    `json:"vehicle_id" binding:"required"`
	Embedding []float32 `json:"embedding"`
	Text      string    `json:"text,omitempty"` // embedded on the server when Embedding is empty
}

// EmbeddingBatchResponse represents the response for batch embedding update
type EmbeddingBatchResponse struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// FeedbackRequest represents customer reaction to a recommended vehicle
type FeedbackRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	VehicleID string `json:"vehicle_id" binding:"required"`
	Action    string `json:"action" binding:"required"` // click, contact, view_details, dismiss
}

// FeedbackResponse represents feedback response
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
