// Package pipeline drives the analysis flow across a symbol universe:
// fetch, indicators, pre-filter, synthesis and conditional persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"stock-advisor/internal/agents"
	"stock-advisor/internal/analysis/indicators"
	"stock-advisor/internal/analysis/screening"
	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/logging"
	"stock-advisor/internal/marketdata"
	"stock-advisor/internal/models"
	"stock-advisor/internal/store"
)

// Config holds orchestrator settings. HistoryDays and FetchTimeout are
// configured under [data].
type Config struct {
	Concurrency            int           `mapstructure:"concurrency"`
	MinConfidence          float64       `mapstructure:"min_confidence"`
	DefaultStopLossPercent float64       `mapstructure:"default_stop_loss_percent"`
	MaxAICalls             int           `mapstructure:"max_ai_calls"`
	HistoryDays            int           `mapstructure:"-"`
	FetchTimeout           time.Duration `mapstructure:"-"`
	SynthesisTimeout       time.Duration `mapstructure:"synthesis_timeout"`
	Watchlist              []string      `mapstructure:"watchlist"`
}

// DefaultConfig returns default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		Concurrency:            4,
		MinConfidence:          70,
		DefaultStopLossPercent: 7,
		HistoryDays:            400,
		FetchTimeout:           30 * time.Second,
		SynthesisTimeout:       90 * time.Second,
	}
}

// Analyzer produces a signal from an indicator snapshot.
type Analyzer interface {
	Synthesize(ctx context.Context, req agents.AnalysisRequest) (*agents.Analysis, error)
}

// Dependencies are the collaborators of an Orchestrator. Targets, Screener
// and Store are optional.
type Dependencies struct {
	Prices   marketdata.PriceSeriesProvider
	Targets  marketdata.AnalystTargetProvider
	Engine   *indicators.Engine
	Screener *screening.Screener
	Analyzer Analyzer
	Store    store.RecommendationStore
}

// Orchestrator runs the per-symbol pipeline with bounded parallelism.
type Orchestrator struct {
	deps   Dependencies
	config Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(deps Dependencies, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = DefaultConfig().HistoryDays
	}
	if deps.Engine == nil {
		deps.Engine = indicators.NewEngine(indicators.DefaultSnapshotConfig())
	}
	return &Orchestrator{
		deps:   deps,
		config: cfg,
		logger: logger.With().Str("component", "orchestrator").Logger(),
		now:    time.Now,
	}
}

// Config returns the orchestrator settings.
func (o *Orchestrator) Config() Config {
	return o.config
}

// Run analyzes symbols and returns every per-symbol outcome. It never fails
// as a whole: fetch, backend and persistence failures are skips. When ctx is
// cancelled, finished results are kept and unstarted symbols are reported as
// cancelled. A nil budget uses the configured max_ai_calls.
func (o *Orchestrator) Run(ctx context.Context, symbols []string, budget *CallBudget) *BatchReport {
	start := o.now()
	if budget == nil {
		budget = NewCallBudget(o.config.MaxAICalls)
	}
	symbols = NormalizeSymbols(symbols)

	var mu sync.Mutex
	results := make([]SymbolResult, 0, len(symbols))
	collect := func(res SymbolResult) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	}

	o.logger.Info().Int("symbols", len(symbols)).Int("concurrency", o.config.Concurrency).Msg("Starting batch")

	p := pool.New().WithMaxGoroutines(o.config.Concurrency)
	for _, symbol := range symbols {
		symbol := symbol
		if err := ctx.Err(); err != nil {
			collect(SymbolResult{Symbol: symbol, Skip: SkipCancelled, Err: err})
			continue
		}
		p.Go(func() {
			collect(o.guard(symbol, func() SymbolResult {
				return o.analyzeSymbol(ctx, symbol, budget)
			}))
		})
	}
	p.Wait()

	report := partition(results)
	for _, res := range results {
		if res.calledAI {
			report.AICalls++
		}
	}
	report.Duration = time.Since(start)

	o.logger.Info().
		Int("analyzed", len(report.Analyses)).
		Int("skipped", report.SkippedCount()).
		Int("recommendations", len(report.Recommendations)).
		Int("ai_calls", report.AICalls).
		Dur("duration", report.Duration).
		Msg("Batch complete")

	return report
}

// AnalyzeSymbol runs the pipeline for a single symbol.
func (o *Orchestrator) AnalyzeSymbol(ctx context.Context, symbol string, budget *CallBudget) SymbolResult {
	if budget == nil {
		budget = NewCallBudget(o.config.MaxAICalls)
	}
	return o.analyzeSymbol(ctx, strings.ToUpper(strings.TrimSpace(symbol)), budget)
}

func (o *Orchestrator) analyzeSymbol(ctx context.Context, symbol string, budget *CallBudget) (res SymbolResult) {
	start := o.now()
	res.Symbol = symbol
	log := logging.WithSymbol(o.logger, symbol)
	defer func() {
		res.Duration = time.Since(start)
		if res.Skip != "" {
			logging.LogSkip(log, symbol, string(res.Skip), res.Err)
		}
	}()

	res, fundamentals := o.screenSymbol(ctx, res, log)
	if !res.OK() {
		return res
	}
	snap := res.Snapshot

	if !budget.TryAcquire() {
		return skipped(ctx, res, SkipBudgetExhausted, apperrors.ErrBudgetExhausted)
	}
	res.calledAI = true

	targets := o.fetchTargets(ctx, symbol, log)

	sctx := ctx
	if o.config.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, o.config.SynthesisTimeout)
		defer cancel()
	}
	analysis, err := o.deps.Analyzer.Synthesize(sctx, agents.AnalysisRequest{
		Symbol:       symbol,
		Snapshot:     snap,
		Fundamentals: fundamentals,
		Targets:      targets,
	})
	if err != nil {
		reason := SkipBackendUnavailable
		if errors.Is(err, apperrors.ErrInsufficientData) {
			reason = SkipDataUnavailable
		}
		return skipped(ctx, res, reason, err)
	}
	res.Analysis = analysis

	rec, ok := o.recommendation(symbol, snap, analysis, targets)
	if !ok || o.deps.Store == nil {
		return res
	}
	if err := o.deps.Store.Create(ctx, rec); err != nil {
		return skipped(ctx, res, SkipPersistenceFailed, err)
	}
	res.Recommendation = rec
	return res
}

// Screen fetches data and applies the pre-filter without calling the
// backend. Symbols that pass have an empty Skip. Results are ordered by
// symbol.
func (o *Orchestrator) Screen(ctx context.Context, symbols []string) []SymbolResult {
	symbols = NormalizeSymbols(symbols)

	var mu sync.Mutex
	results := make([]SymbolResult, 0, len(symbols))

	p := pool.New().WithMaxGoroutines(o.config.Concurrency)
	for _, symbol := range symbols {
		symbol := symbol
		p.Go(func() {
			start := o.now()
			res := o.guard(symbol, func() SymbolResult {
				res, _ := o.screenSymbol(ctx, SymbolResult{Symbol: symbol}, logging.WithSymbol(o.logger, symbol))
				return res
			})
			res.Duration = time.Since(start)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		})
	}
	p.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	return results
}

// guard runs fn and turns a panic into an internal_error skip for symbol.
func (o *Orchestrator) guard(symbol string, fn func() SymbolResult) SymbolResult {
	var res SymbolResult
	var pc panics.Catcher
	pc.Try(func() { res = fn() })
	if r := pc.Recovered(); r != nil {
		o.logger.Error().
			Str("symbol", symbol).
			Str("panic", fmt.Sprint(r.Value)).
			Str("stack", string(r.Stack)).
			Msg("Recovered panic in symbol pipeline")
		return SymbolResult{
			Symbol: symbol,
			Skip:   SkipInternal,
			Detail: fmt.Sprint(r.Value),
			Err:    r.AsError(),
		}
	}
	return res
}

// screenSymbol fetches bars and fundamentals, builds the snapshot and
// applies the screener.
func (o *Orchestrator) screenSymbol(ctx context.Context, res SymbolResult, log zerolog.Logger) (SymbolResult, models.Fundamentals) {
	symbol := res.Symbol
	if err := ctx.Err(); err != nil {
		return skipped(ctx, res, SkipCancelled, err), nil
	}

	bars, err := o.fetchBars(ctx, symbol)
	if err != nil {
		return skipped(ctx, res, SkipDataUnavailable, err), nil
	}
	fundamentals := o.fetchFundamentals(ctx, symbol, log)

	snap, err := o.deps.Engine.Snapshot(bars)
	if err != nil {
		return skipped(ctx, res, SkipDataUnavailable, apperrors.NewDataError(marketdata.DataBars, symbol, "indicator snapshot failed", err)), nil
	}
	res.Snapshot = snap

	if o.deps.Screener != nil {
		screen := o.deps.Screener.Screen(snap, fundamentals)
		res.Screen = &screen
		if !screen.Passed {
			res.Skip = SkipFiltered
			res.Detail = screen.Reason()
		}
	}
	return res, fundamentals
}

// skipped marks res with reason, or cancelled when the batch context ended.
func skipped(ctx context.Context, res SymbolResult, reason SkipReason, err error) SymbolResult {
	if ctx.Err() != nil {
		reason = SkipCancelled
	}
	res.Skip = reason
	res.Err = err
	if err != nil {
		res.Detail = err.Error()
	}
	return res
}

func (o *Orchestrator) fetchCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.config.FetchTimeout > 0 {
		return context.WithTimeout(ctx, o.config.FetchTimeout)
	}
	return context.WithCancel(ctx)
}

func (o *Orchestrator) fetchBars(ctx context.Context, symbol string) ([]models.PriceBar, error) {
	fctx, cancel := o.fetchCtx(ctx)
	defer cancel()

	to := o.now()
	from := to.AddDate(0, 0, -o.config.HistoryDays)
	bars, err := o.deps.Prices.GetBars(fctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, apperrors.NewDataError(marketdata.DataBars, symbol, "empty price series", nil)
	}
	return bars, nil
}

func (o *Orchestrator) fetchFundamentals(ctx context.Context, symbol string, log zerolog.Logger) models.Fundamentals {
	fctx, cancel := o.fetchCtx(ctx)
	defer cancel()

	f, err := o.deps.Prices.GetFundamentals(fctx, symbol)
	if err != nil {
		log.Debug().Err(err).Msg("Fundamentals unavailable")
		return nil
	}
	return f
}

func (o *Orchestrator) fetchTargets(ctx context.Context, symbol string, log zerolog.Logger) *models.AnalystTargets {
	if o.deps.Targets == nil {
		return nil
	}
	fctx, cancel := o.fetchCtx(ctx)
	defer cancel()

	t, err := o.deps.Targets.GetAnalystTargets(fctx, symbol)
	if err != nil {
		log.Debug().Err(err).Msg("Analyst targets unavailable")
		return nil
	}
	return t
}

// recommendation builds the record to persist. Only BUY signals at or above
// min_confidence with a numeric target qualify; the model's target wins over
// the analyst mean. A missing or non-protective stop-loss is replaced by the
// configured percentage below the current price.
func (o *Orchestrator) recommendation(symbol string, snap *indicators.Snapshot, a *agents.Analysis, targets *models.AnalystTargets) (*models.Recommendation, bool) {
	if a.Signal.Type != models.SignalBuy || a.Signal.Confidence < o.config.MinConfidence {
		return nil, false
	}
	price := snap.CurrentPrice
	if !(price > 0) {
		return nil, false
	}

	// A target must sit above the entry price; the analyst mean stands in
	// for a missing or unreachable model target.
	var target float64
	switch {
	case a.Details.TargetPrice != nil && *a.Details.TargetPrice > price:
		target = *a.Details.TargetPrice
	case targets.HasMean() && targets.Mean > price:
		target = targets.Mean
	}
	if !(target > price) {
		return nil, false
	}

	var stop float64
	if a.Details.StopLoss != nil && *a.Details.StopLoss < price {
		stop = *a.Details.StopLoss
	}
	if stop <= 0 && o.config.DefaultStopLossPercent > 0 {
		stop = price * (1 - o.config.DefaultStopLossPercent/100)
	}

	return &models.Recommendation{
		Symbol:              symbol,
		RecommendedPrice:    models.RoundPrice(price),
		CurrentPrice:        models.RoundPrice(price),
		TargetPrice:         models.RoundPrice(target),
		StopLoss:            models.RoundPrice(stop),
		Confidence:          a.Signal.Confidence,
		AISignal:            a.Signal.Summary,
		TechnicalAnalysis:   a.Details.TechnicalAnalysis,
		FundamentalAnalysis: a.Details.FundamentalAnalysis,
		Risks:               a.Details.Risks,
		Opportunities:       a.Details.Opportunities,
	}, true
}

// NormalizeSymbols upper-cases, trims and de-duplicates symbols, keeping
// first-seen order.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

