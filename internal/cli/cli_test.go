package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-advisor/internal/agents"
	"stock-advisor/internal/analysis/screening"
	"stock-advisor/internal/config"
	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/marketdata"
	"stock-advisor/internal/models"
	"stock-advisor/internal/pipeline"
	"stock-advisor/internal/signal"
)

type fakeMarket struct {
	mu     sync.Mutex
	quotes map[string]float64
	broken map[string]bool
}

func (m *fakeMarket) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	if m.broken[symbol] {
		return nil, apperrors.NewDataError(marketdata.DataBars, symbol, "no data", nil)
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, 120)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = models.PriceBar{Date: start.AddDate(0, 0, i), Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 1000}
	}
	return bars, nil
}

func (m *fakeMarket) GetFundamentals(ctx context.Context, symbol string) (models.Fundamentals, error) {
	return models.Fundamentals{models.RatioPE: 12, models.RatioROE: 18}, nil
}

func (m *fakeMarket) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.quotes[symbol]; ok {
		return p, nil
	}
	return 0, apperrors.NewDataError(marketdata.DataQuote, symbol, "no quote", nil)
}

type replyLLM struct {
	reply string
	calls int
	mu    sync.Mutex
}

func (l *replyLLM) Generate(ctx context.Context, req agents.GenerationRequest) (string, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.reply, nil
}

const buyReply = `{"signalType":"BUY","confidence":80,"summary":"Xu hướng tăng ổn định","targetPrice":250,"stopLoss":205,"risks":["Thanh khoản thấp"]}`

func testApp(t *testing.T) (*App, *fakeMarket, *replyLLM) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Dir = dir
	cfg.Store.DSN = filepath.Join(dir, "advisor.db")
	cfg.Screening = screening.Config{}
	cfg.Pipeline.Watchlist = []string{"FPT", "HPG"}
	cfg.Credentials.OpenAI.APIKey = "sk-secret"

	market := &fakeMarket{quotes: map[string]float64{}, broken: map[string]bool{}}
	llm := &replyLLM{reply: buyReply}
	app := &App{Config: cfg, Logger: zerolog.Nop(), Market: market, LLM: llm}
	t.Cleanup(func() { _ = app.Close() })
	return app, market, llm
}

func run(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(app)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRecsLifecycle(t *testing.T) {
	app, _, _ := testApp(t)

	out, err := run(t, app, "recs", "create", "fpt", "--price", "100", "--target", "120", "--stop", "90",
		"--confidence", "75", "--signal", "Khuyến nghị mua", "--risk", "Biến động", "--json")
	require.NoError(t, err)
	var created models.Recommendation
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "FPT", created.Symbol)
	assert.Equal(t, models.StatusActive, created.Status)
	assert.Equal(t, 100.0, created.CurrentPrice)
	assert.Equal(t, []string{"Biến động"}, created.Risks)

	out, err = run(t, app, "recs", "list", "--status", "active", "--json")
	require.NoError(t, err)
	var listed []models.Recommendation
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)

	// Prefix lookup and stop-loss derivation.
	out, err = run(t, app, "recs", "update-status", ShortID(created.ID), "--price", "85", "--json")
	require.NoError(t, err)
	var updated models.Recommendation
	require.NoError(t, json.Unmarshal([]byte(out), &updated))
	assert.Equal(t, models.StatusStopped, updated.Status)
	assert.Equal(t, 85.0, updated.CurrentPrice)

	_, err = run(t, app, "recs", "update-status", created.ID, "--price", "130", "--status", "active")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	out, err = run(t, app, "recs", "performance", "--json")
	require.NoError(t, err)
	var perf models.PerformanceMetrics
	require.NoError(t, json.Unmarshal([]byte(out), &perf))
	assert.Equal(t, 1, perf.Stopped)
	assert.InDelta(t, -0.15, perf.AvgRealizedGain, 1e-9)

	out, err = run(t, app, "recs", "show", created.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "FPT")
	assert.Contains(t, out, "stopped")
	assert.Contains(t, out, "Biến động")
}

func TestRecsCreate_Validation(t *testing.T) {
	app, _, _ := testApp(t)

	_, err := run(t, app, "recs", "create", "FPT", "--confidence", "75", "--signal", "mua")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = run(t, app, "recs", "list", "--status", "pending")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = run(t, app, "recs", "show", "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRecsRefresh(t *testing.T) {
	app, market, _ := testApp(t)

	_, err := run(t, app, "recs", "create", "HPG", "--price", "25000", "--target", "28000", "--stop", "23000",
		"--confidence", "70", "--signal", "mua")
	require.NoError(t, err)
	market.quotes["HPG"] = 28500

	out, err := run(t, app, "recs", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "active → completed")

	out, err = run(t, app, "recs", "list", "--status", "completed")
	require.NoError(t, err)
	assert.Contains(t, out, "HPG")
	assert.Contains(t, out, "28,500")
}

func TestAnalyze_SavesBuyRecommendation(t *testing.T) {
	app, market, llm := testApp(t)
	market.broken["BAD"] = true

	out, err := run(t, app, "analyze", "fpt", "bad", "--json")
	require.NoError(t, err)

	var report pipeline.BatchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Analyses, 1)
	assert.Equal(t, "FPT", report.Analyses[0].Symbol)
	require.Len(t, report.Recommendations, 1)
	rec := report.Recommendations[0]
	assert.Equal(t, 219.0, rec.RecommendedPrice)
	assert.Equal(t, 250.0, rec.TargetPrice)
	assert.Equal(t, 205.0, rec.StopLoss)
	assert.Equal(t, "Xu hướng tăng ổn định", rec.AISignal)
	assert.Equal(t, []string{"BAD"}, report.SkippedFor(pipeline.SkipDataUnavailable))
	assert.Equal(t, 1, llm.calls)

	out, err = run(t, app, "recs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "FPT")
}

func TestAnalyze_WatchlistDryRunAndBudget(t *testing.T) {
	app, _, llm := testApp(t)

	out, err := run(t, app, "analyze", "--dry-run", "--max-ai-calls", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run")
	assert.Contains(t, out, "budget_exhausted")
	assert.Equal(t, 1, llm.calls)

	out, err = run(t, app, "recs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No recommendations found")
}

func TestAnalyze_UsesConfiguredKeywordTable(t *testing.T) {
	app, _, llm := testApp(t)
	table := "version: 2\nbuy: [long]\nsell: [short]\nhold: [wait]\n"
	require.NoError(t, os.WriteFile(filepath.Join(app.Config.Dir, "keywords.yaml"), []byte(table), 0644))
	app.Config.Signal.KeywordsFile = "keywords.yaml"
	llm.reply = "Go long, long and long again."

	out, err := run(t, app, "analyze", "FPT", "--dry-run", "--json")
	require.NoError(t, err)

	var report pipeline.BatchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Analyses, 1)
	a := report.Analyses[0].Analysis
	assert.Equal(t, models.SignalBuy, a.Signal.Type)
	assert.Equal(t, signal.SourceFallback, a.Source)
}

func TestAnalyze_RequiresCredentials(t *testing.T) {
	app, _, _ := testApp(t)
	app.LLM = nil
	app.Config.Credentials.OpenAI.APIKey = ""

	_, err := run(t, app, "analyze", "FPT")
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func TestScreen_TextOutput(t *testing.T) {
	app, market, llm := testApp(t)
	market.broken["GONE"] = true
	app.Config.Screening = screening.Config{MaxPE: 10}

	out, err := run(t, app, "screen", "FPT", "GONE")
	require.NoError(t, err)
	assert.Contains(t, out, "filtered")
	assert.Contains(t, out, "data_unavailable")
	assert.Contains(t, out, "0 of 2 symbols passed")
	assert.Zero(t, llm.calls)
}

type flakyRunner struct {
	calls [][]string
}

func (r *flakyRunner) Run(ctx context.Context, symbols []string, budget *pipeline.CallBudget) *pipeline.BatchReport {
	r.calls = append(r.calls, symbols)
	report := &pipeline.BatchReport{SkipCounts: map[pipeline.SkipReason]int{}}
	for _, s := range symbols {
		res := pipeline.SymbolResult{Symbol: s}
		if s == "FLAKY" && len(r.calls) == 1 {
			res.Skip = pipeline.SkipBackendUnavailable
			report.Skipped = append(report.Skipped, res)
			report.SkipCounts[res.Skip]++
			continue
		}
		report.Analyses = append(report.Analyses, res)
	}
	return report
}

func TestRunWithRetries(t *testing.T) {
	retryInitialInterval = time.Millisecond
	defer func() { retryInitialInterval = 5 * time.Second }()

	runner := &flakyRunner{}
	report := runWithRetries(context.Background(), runner, []string{"FLAKY", "OK"}, nil, 2, zerolog.Nop())

	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{"FLAKY"}, runner.calls[1])
	assert.Len(t, report.Analyses, 2)
	assert.Zero(t, report.SkippedCount())

	noRetry := &flakyRunner{}
	report = runWithRetries(context.Background(), noRetry, []string{"FLAKY", "OK"}, nil, 0, zerolog.Nop())
	assert.Len(t, noRetry.calls, 1)
	assert.Equal(t, 1, report.SkippedCount())
}

func TestConfigCommands(t *testing.T) {
	app, _, _ := testApp(t)

	out, err := run(t, app, "config", "show", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-secret")
	assert.Contains(t, out, `"openai": true`)

	out, err = run(t, app, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	out, err = run(t, app, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, app.Config.Dir, strings.TrimSpace(out))

	out, err = run(t, app, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

func TestOutput_TableAlignsUnicode(t *testing.T) {
	var buf bytes.Buffer
	output := &Output{writer: &buf}
	table := NewTable(output, "SYMBOL", "NOTE")
	table.AddRow("FPT", "tích lũy")
	table.AddRow("VNM", "ok")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "SYMBOL  NOTE", lines[0])
	assert.Equal(t, "FPT     tích lũy", lines[2])
	assert.Equal(t, "VNM     ok", lines[3])
}
