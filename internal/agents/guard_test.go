package agents

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/resilience"
)

func TestGuardedClient_FailsFastWhenOpen(t *testing.T) {
	llm := new(MockLLM)
	llm.On("Generate", mock.Anything, mock.Anything).
		Return("", apperrors.NewBackendError(apperrors.ReasonServerError, 503, nil)).Twice()

	breaker := resilience.NewCircuitBreaker("openai", resilience.CircuitBreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})
	guarded := NewGuardedClient(llm, breaker, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := guarded.Generate(context.Background(), GenerationRequest{Prompt: "p"})
		assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
	}
	assert.Equal(t, resilience.CircuitOpen, guarded.Breaker().State())

	_, err := guarded.Generate(context.Background(), GenerationRequest{Prompt: "p"})
	var backendErr *apperrors.BackendError
	assert.ErrorAs(t, err, &backendErr)
	assert.Equal(t, apperrors.ReasonCircuitOpen, backendErr.Reason)
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
	llm.AssertNumberOfCalls(t, "Generate", 2)
}

func TestGuardedClient_BadRequestsDoNotTrip(t *testing.T) {
	llm := new(MockLLM)
	llm.On("Generate", mock.Anything, mock.Anything).
		Return("", apperrors.NewBackendError(apperrors.ReasonBadRequest, 400, nil)).Times(3)
	llm.On("Generate", mock.Anything, mock.Anything).Return(`{"signal":"HOLD"}`, nil).Once()

	breaker := resilience.NewCircuitBreaker("openai", resilience.CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	guarded := NewGuardedClient(llm, breaker, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, _ = guarded.Generate(context.Background(), GenerationRequest{Prompt: "p"})
	}
	reply, err := guarded.Generate(context.Background(), GenerationRequest{Prompt: "p"})
	assert.NoError(t, err)
	assert.Equal(t, `{"signal":"HOLD"}`, reply)
	assert.Equal(t, resilience.CircuitClosed, breaker.State())
}
