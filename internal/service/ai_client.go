package service

import (
	"context"
	"errors"
)

// ErrInferenceUnavailable is returned when no inference provider is configured
// or every provider is failing.
var ErrInferenceUnavailable = errors.New("inference unavailable")

// ChatMessage represents a single message sent to an inference provider
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions tunes one completion call
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
	JSON        bool // ask for a JSON object response where the provider supports it
}

// Completer generates text from a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (string, error)
}

// Embedder turns text into a vector. Vectors from one Embedder share a dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder embeds many texts in one call.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NamedCompleter is a Completer that can be identified in logs and metrics.
type NamedCompleter interface {
	Completer
	Name() string
}

// Ensure providers implement the interfaces
var (
	_ NamedCompleter = (*OpenAIClient)(nil)
	_ BatchEmbedder  = (*OpenAIClient)(nil)
	_ NamedCompleter = (*AnthropicClient)(nil)
	_ Completer      = (*ProviderChain)(nil)
)
