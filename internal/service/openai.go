package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"carmatch/internal/config"
	"carmatch/internal/logger"
	"carmatch/internal/metrics"
)

// embeddingConcurrency bounds the embedding requests in flight per batch call.
const embeddingConcurrency = 4

// OpenAIClient talks to any OpenAI-compatible API for chat and embeddings
type OpenAIClient struct {
	config *config.OpenAIConfig
	client *openai.Client
	logger *logger.Logger
}

// NewOpenAIClient creates a client for the configured base URL
func NewOpenAIClient(cfg *config.OpenAIConfig, log *logger.Logger) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		clientCfg.BaseURL = cfg.APIBase
	}
	return &OpenAIClient{
		config: cfg,
		client: openai.NewClientWithConfig(clientCfg),
		logger: log.Named("openai"),
	}
}

// Name identifies the provider
func (c *OpenAIClient) Name() string { return "openai" }

// Timeout is the per-call deadline for this provider
func (c *OpenAIClient) Timeout() time.Duration { return c.config.Timeout }

// IsEnabled returns whether the client is configured and ready
func (c *OpenAIClient) IsEnabled() bool {
	return c.config.Enabled
}

// Complete runs a chat completion and returns the first choice
func (c *OpenAIClient) Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (string, error) {
	if !c.config.Enabled {
		return "", fmt.Errorf("openai: %w", ErrInferenceUnavailable)
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.ChatModel,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.config.ChatMaxTokens
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		metrics.InferenceDuration.WithLabelValues(c.Name(), "error").Observe(time.Since(start).Seconds())
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	metrics.InferenceDuration.WithLabelValues(c.Name(), "ok").Observe(time.Since(start).Seconds())

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: no choices returned")
	}
	c.logger.Debug("chat completion",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("took", time.Since(start)),
	)
	return resp.Choices[0].Message.Content, nil
}

// Embed creates the embedding of a single text
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty result")
	}
	return vecs[0], nil
}

// EmbedBatch creates embeddings for the given texts, BatchSize at a time
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.config.Enabled {
		return nil, fmt.Errorf("openai: %w", ErrInferenceUnavailable)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	batchSize := c.config.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	all := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embeddingConcurrency)
	for i := 0; i < len(texts); i += batchSize {
		start, end := i, i+batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			resp, err := c.client.CreateEmbeddings(gctx, openai.EmbeddingRequest{
				Input: texts[start:end],
				Model: openai.EmbeddingModel(c.config.EmbeddingModel),
			})
			if err != nil {
				return fmt.Errorf("failed to create embeddings for batch %d: %w", start/batchSize, err)
			}
			for _, item := range resp.Data {
				if item.Index >= 0 && start+item.Index < end {
					all[start+item.Index] = item.Embedding
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Debug("created embeddings", zap.Int("count", len(all)), zap.String("model", c.config.EmbeddingModel))
	return all, nil
}
