package agents

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/resilience"
)

// GuardedClient stops calling the backend after repeated failures so a
// batch against a dead backend fails fast instead of waiting out every
// timeout.
type GuardedClient struct {
	next    LLMClient
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewGuardedClient wraps next with breaker.
func NewGuardedClient(next LLMClient, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *GuardedClient {
	return &GuardedClient{
		next:    next,
		breaker: breaker,
		logger:  logger.With().Str("component", "llm_guard").Str("breaker", breaker.Name()).Logger(),
	}
}

// Generate forwards req unless the circuit is open.
func (g *GuardedClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	var reply string
	before := g.breaker.State()
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		reply, err = g.next.Generate(ctx, req)
		return err
	}, tripsBreaker)

	if after := g.breaker.State(); after != before {
		g.logger.Warn().Str("from", string(before)).Str("to", string(after)).Msg("Backend circuit changed state")
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "", apperrors.NewBackendError(apperrors.ReasonCircuitOpen, 0, err)
	}
	return reply, err
}

// Breaker returns the underlying circuit breaker.
func (g *GuardedClient) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}

// tripsBreaker reports whether err says the backend itself is unhealthy.
// Caller cancellation and per-request problems do not count.
func tripsBreaker(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var backendErr *apperrors.BackendError
	if errors.As(err, &backendErr) {
		switch backendErr.Reason {
		case apperrors.ReasonBadRequest, apperrors.ReasonEmptyResponse:
			return false
		}
	}
	return true
}
