package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"carmatch/internal/config"
	"carmatch/internal/logger"
	"carmatch/internal/metrics"
)

// AnthropicClient is the secondary inference provider
type AnthropicClient struct {
	client *anthropic.Client
	config *config.AnthropicConfig
	logger *logger.Logger
}

// NewAnthropicClient creates a client; the config must carry an API key.
func NewAnthropicClient(cfg *config.AnthropicConfig, log *logger.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		config: cfg,
		logger: log.Named("anthropic"),
	}, nil
}

// Name identifies the provider
func (c *AnthropicClient) Name() string { return "anthropic" }

// Timeout is the per-call deadline for this provider
func (c *AnthropicClient) Timeout() time.Duration { return c.config.Timeout }

// Complete sends the conversation to the Messages API
func (c *AnthropicClient) Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	system, turns := toAlternatingTurns(messages)
	params := make([]anthropic.MessageParam, 0, len(turns))
	for _, msg := range turns {
		params = append(params, anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		})
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.F(c.config.Model),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(params),
	}
	if system != "" {
		req.System = anthropic.F([]anthropic.TextBlockParam{{
			Type: anthropic.F(anthropic.TextBlockParamTypeText),
			Text: anthropic.F(system),
		}})
	}
	if opts.Temperature > 0 {
		req.Temperature = anthropic.F(math.Min(opts.Temperature, 1))
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, req)
	if err != nil {
		metrics.InferenceDuration.WithLabelValues(c.Name(), "error").Observe(time.Since(start).Seconds())
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	metrics.InferenceDuration.WithLabelValues(c.Name(), "ok").Observe(time.Since(start).Seconds())

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content.WriteString(block.Text)
		}
	}
	c.logger.Debug("message completed",
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("took", time.Since(start)),
	)
	return content.String(), nil
}

// toAlternatingTurns splits out the system prompts and merges consecutive
// messages of the same role, which the Messages API requires. A conversation
// with no turns sends the system prompt as the only user turn.
func toAlternatingTurns(messages []ChatMessage) (string, []ChatMessage) {
	var system []string
	var out []ChatMessage
	for _, m := range messages {
		role := m.Role
		if role == "system" {
			system = append(system, m.Content)
			continue
		}
		if role != "assistant" {
			role = "user"
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, ChatMessage{Role: role, Content: m.Content})
	}

	prompt := strings.Join(system, "\n\n")
	if len(out) == 0 && prompt != "" {
		return "", []ChatMessage{{Role: "user", Content: prompt}}
	}
	return prompt, out
}
