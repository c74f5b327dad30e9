package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stock-advisor/internal/analysis/indicators"
	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/logging"
	"stock-advisor/internal/models"
	"stock-advisor/internal/signal"
)

// AnalysisRequest contains all data needed for one synthesis.
type AnalysisRequest struct {
	Symbol       string
	Snapshot     *indicators.Snapshot
	Fundamentals models.Fundamentals    // optional
	Targets      *models.AnalystTargets // optional
}

// Analysis is the synthesizer output for one symbol.
type Analysis struct {
	Symbol    string
	Signal    models.Signal
	Source    signal.Source
	Details   signal.Details
	Partial   bool // prompt was built from an incomplete snapshot
	Raw       string
	Latency   time.Duration
	Timestamp time.Time
}

// SynthesizerConfig holds generation parameters.
type SynthesizerConfig struct {
	Temperature float32
	MaxTokens   int
}

// DefaultSynthesizerConfig returns conservative generation parameters.
func DefaultSynthesizerConfig() SynthesizerConfig {
	return SynthesizerConfig{
		Temperature: 0.3,
		MaxTokens:   1200,
	}
}

// Synthesizer builds the analysis prompt, calls the backend and classifies
// the reply into a Signal.
type Synthesizer struct {
	llm       LLMClient
	validator *signal.Validator
	cfg       SynthesizerConfig
	logger    zerolog.Logger
}

// NewSynthesizer creates a new synthesizer. A nil validator uses the default
// keyword table.
func NewSynthesizer(llm LLMClient, validator *signal.Validator, cfg SynthesizerConfig, logger zerolog.Logger) *Synthesizer {
	if validator == nil {
		validator = signal.NewValidator(nil, logger)
	}
	return &Synthesizer{
		llm:       llm,
		validator: validator,
		cfg:       cfg,
		logger:    logger.With().Str("component", "synthesizer").Logger(),
	}
}

// Synthesize produces a signal for req. A backend failure is returned as a
// *errors.BackendError and no signal is invented. Malformed replies are not
// errors; they resolve through the validator's fallback.
func (s *Synthesizer) Synthesize(ctx context.Context, req AnalysisRequest) (*Analysis, error) {
	if req.Snapshot == nil || req.Snapshot.Bars == 0 {
		return nil, fmt.Errorf("synthesize %s: %w", req.Symbol, apperrors.ErrInsufficientData)
	}
	log := logging.WithSymbol(s.logger, req.Symbol)

	start := time.Now()
	raw, err := s.llm.Generate(ctx, GenerationRequest{
		System:      systemPrompt,
		Prompt:      BuildPrompt(req),
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	latency := time.Since(start)
	if err != nil {
		var backendErr *apperrors.BackendError
		if !errors.As(err, &backendErr) {
			err = classifyError(err)
		}
		log.Warn().Err(err).Dur("latency", latency).Msg("Backend call failed")
		return nil, err
	}

	res := s.validator.Parse(raw)
	sig := res.Signal
	if res.Details.ShortTerm != nil && res.Details.LongTerm != nil {
		sig.Confidence = signal.FuseConfidence(res.Details.ShortTerm.Confidence, res.Details.LongTerm.Confidence)
	}

	logging.LogSignal(log, req.Symbol, string(sig.Type), sig.Confidence, string(res.Source))

	return &Analysis{
		Symbol:    req.Symbol,
		Signal:    sig,
		Source:    res.Source,
		Details:   res.Details,
		Partial:   !req.Snapshot.Complete(),
		Raw:       raw,
		Latency:   latency,
		Timestamp: time.Now(),
	}, nil
}
