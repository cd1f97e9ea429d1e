package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"carmatch/internal/logger"
)

type chainedProvider struct {
	provider NamedCompleter
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration
}

// timeoutProvider is a provider with its own per-call deadline.
type timeoutProvider interface {
	Timeout() time.Duration
}

// ProviderChain tries inference providers in order. Each provider sits behind
// its own breaker and per-call timeout.
type ProviderChain struct {
	providers []chainedProvider
	logger    *logger.Logger
}

// NewProviderChain wraps providers in priority order. timeout applies to
// providers that do not declare their own; zero means no per-call deadline.
func NewProviderChain(providers []NamedCompleter, timeout time.Duration, settings BreakerSettings, log *logger.Logger) *ProviderChain {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("inference")
	chain := &ProviderChain{logger: log}
	for _, p := range providers {
		callTimeout := timeout
		if tp, ok := p.(timeoutProvider); ok && tp.Timeout() > 0 {
			callTimeout = tp.Timeout()
		}
		chain.providers = append(chain.providers, chainedProvider{
			provider: p,
			breaker:  newBreaker("inference_"+p.Name(), settings, isCallerDone, log),
			timeout:  callTimeout,
		})
	}
	return chain
}

// Len returns the number of configured providers
func (c *ProviderChain) Len() int { return len(c.providers) }

// Complete returns the first successful provider response
func (c *ProviderChain) Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (string, error) {
	if len(c.providers) == 0 {
		return "", ErrInferenceUnavailable
	}

	var errs []error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out, err := p.breaker.Execute(func() (interface{}, error) {
			callCtx := ctx
			if p.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, p.timeout)
				defer cancel()
			}
			return p.provider.Complete(callCtx, messages, opts)
		})
		if err == nil {
			return out.(string), nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", p.provider.Name(), err))
		if !isBreakerOpen(err) {
			c.logger.Warn("inference provider failed, trying next",
				zap.String("provider", p.provider.Name()),
				zap.Error(err),
			)
		}
	}
	return "", fmt.Errorf("%w: %v", ErrInferenceUnavailable, errors.Join(errs...))
}
