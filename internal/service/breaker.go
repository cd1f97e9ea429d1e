package service

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"carmatch/internal/logger"
	"carmatch/internal/metrics"
)

// BreakerSettings configures one circuit breaker
type BreakerSettings struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultBreakerSettings trips after 3 consecutive failures and retries after 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{FailureThreshold: 3, Cooldown: 30 * time.Second}
}

// newBreaker builds a breaker that only counts unexpected failures. Errors for
// which benign returns true (no candidates, cancelled caller) leave it closed.
func newBreaker(name string, s BreakerSettings, benign func(error) bool, log *logger.Logger) *gobreaker.CircuitBreaker {
	threshold := uint32(s.FailureThreshold)
	if threshold == 0 {
		threshold = 1
	}
	metrics.BreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || benign(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func isCallerDone(err error) bool {
	return errors.Is(err, context.Canceled)
}

func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
