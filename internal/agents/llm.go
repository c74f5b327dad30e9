// Package agents turns indicator snapshots into signals with a generative model.
package agents

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/logging"
)

// GenerationRequest is one prompt plus generation parameters.
type GenerationRequest struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// LLMClient defines the interface for generative backends.
// Implementations return *errors.BackendError on failure.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// OpenAIConfig configures an OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	JSONMode bool
}

// OpenAIClient implements LLMClient using an OpenAI-compatible chat API.
type OpenAIClient struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	jsonMode bool
	logger   zerolog.Logger
}

// NewOpenAIClient creates a new OpenAI LLM client.
func NewOpenAIClient(cfg OpenAIConfig, logger zerolog.Logger) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		jsonMode: cfg.JSONMode,
		logger:   logger.With().Str("component", "llm").Str("model", cfg.Model).Logger(),
	}
}

// Generate sends the request and returns the first choice's content.
func (c *OpenAIClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if c.jsonMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	logging.LogAPICall(c.logger, "POST", "chat/completions", time.Since(start), err)
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", apperrors.NewBackendError(apperrors.ReasonEmptyResponse, 0, errors.New("no content in response"))
	}
	return resp.Choices[0].Message.Content, nil
}

// Model returns the model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// classifyError maps client failures onto a BackendError.
func classifyError(err error) error {
	var backendErr *apperrors.BackendError
	if errors.As(err, &backendErr) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewBackendError(apperrors.ReasonForStatus(apiErr.HTTPStatusCode), apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return apperrors.NewBackendError(apperrors.ReasonForStatus(reqErr.HTTPStatusCode), reqErr.HTTPStatusCode, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewBackendError(apperrors.ReasonTimeout, 0, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewBackendError(apperrors.ReasonTimeout, 0, err)
	}

	return apperrors.NewBackendError(apperrors.ReasonUnknown, 0, err)
}
