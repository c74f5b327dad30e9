package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/piquette/finance-go/quote"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/logging"
	"stock-advisor/internal/models"
)

// YahooConfig configures the Yahoo Finance adapter.
type YahooConfig struct {
	// Suffix is appended to symbols without an exchange suffix, e.g. ".VN".
	Suffix  string
	Timeout time.Duration
}

// YahooProvider implements Provider on top of piquette/finance-go.
type YahooProvider struct {
	suffix  string
	timeout time.Duration
	logger  zerolog.Logger

	fetchChart  func(*chart.Params) ([]*finance.ChartBar, error)
	fetchEquity func(string) (*finance.Equity, error)
	fetchQuote  func(string) (*finance.Quote, error)
}

// NewYahooProvider creates a Yahoo Finance provider.
func NewYahooProvider(cfg YahooConfig, logger zerolog.Logger) *YahooProvider {
	return &YahooProvider{
		suffix:      cfg.Suffix,
		timeout:     cfg.Timeout,
		logger:      logger.With().Str("component", "yahoo").Logger(),
		fetchChart:  chartBars,
		fetchEquity: equity.Get,
		fetchQuote:  quote.Get,
	}
}

func chartBars(params *chart.Params) ([]*finance.ChartBar, error) {
	iter := chart.Get(params)
	var bars []*finance.ChartBar
	for iter.Next() {
		bars = append(bars, iter.Bar())
	}
	return bars, iter.Err()
}

// ticker maps a local symbol onto a Yahoo ticker.
func (p *YahooProvider) ticker(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if p.suffix != "" && !strings.Contains(symbol, ".") {
		symbol += p.suffix
	}
	return symbol
}

// GetBars returns daily bars between from and to.
func (p *YahooProvider) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	ticker := p.ticker(symbol)
	params := &chart.Params{
		Symbol:   ticker,
		Start:    datetime.New(&from),
		End:      datetime.New(&to),
		Interval: datetime.OneDay,
	}

	start := time.Now()
	raw, err := p.call(ctx, func() (any, error) { return p.fetchChart(params) })
	logging.LogAPICall(p.logger, "GET", "chart/"+ticker, time.Since(start), err)
	if err != nil {
		return nil, apperrors.NewDataError(DataBars, symbol, "chart request failed", err)
	}

	series, _ := raw.([]*finance.ChartBar)
	bars := make([]models.PriceBar, 0, len(series))
	for _, b := range series {
		if b == nil || b.Close.IsZero() {
			continue
		}
		bars = append(bars, models.PriceBar{
			Date:   time.Unix(int64(b.Timestamp), 0).UTC(),
			Open:   b.Open.InexactFloat64(),
			High:   b.High.InexactFloat64(),
			Low:    b.Low.InexactFloat64(),
			Close:  b.Close.InexactFloat64(),
			Volume: float64(b.Volume),
		})
	}
	if len(bars) == 0 {
		return nil, apperrors.NewDataError(DataBars, symbol, "no bars returned", nil)
	}
	return models.NormalizeBars(bars), nil
}

// GetFundamentals derives ratio codes from the equity quote. ROE is computed
// from trailing EPS over book value per share.
func (p *YahooProvider) GetFundamentals(ctx context.Context, symbol string) (models.Fundamentals, error) {
	ticker := p.ticker(symbol)

	start := time.Now()
	raw, err := p.call(ctx, func() (any, error) { return p.fetchEquity(ticker) })
	logging.LogAPICall(p.logger, "GET", "equity/"+ticker, time.Since(start), err)
	if err != nil {
		return nil, apperrors.NewDataError(DataFundamentals, symbol, "equity request failed", err)
	}
	eq, _ := raw.(*finance.Equity)
	if eq == nil {
		return nil, apperrors.NewDataError(DataFundamentals, symbol, "no equity data", nil)
	}

	f := models.Fundamentals{}
	setNonZero(f, models.RatioPE, eq.TrailingPE)
	setNonZero(f, models.RatioPB, eq.PriceToBook)
	setNonZero(f, models.RatioEPS, eq.EpsTrailingTwelveMonths)
	setNonZero(f, models.RatioBVPS, eq.BookValue)
	setNonZero(f, models.RatioDividendYield, eq.TrailingAnnualDividendYield*100)
	setNonZero(f, models.RatioMarketCap, float64(eq.MarketCap))
	if eq.BookValue > 0 && eq.EpsTrailingTwelveMonths != 0 {
		f[models.RatioROE] = eq.EpsTrailingTwelveMonths / eq.BookValue * 100
	}

	if len(f) == 0 {
		return nil, apperrors.NewDataError(DataFundamentals, symbol, "no ratios available", nil)
	}
	return f, nil
}

// GetLatestPrice returns the regular market price.
func (p *YahooProvider) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	ticker := p.ticker(symbol)

	start := time.Now()
	raw, err := p.call(ctx, func() (any, error) { return p.fetchQuote(ticker) })
	logging.LogAPICall(p.logger, "GET", "quote/"+ticker, time.Since(start), err)
	if err != nil {
		return 0, apperrors.NewDataError(DataQuote, symbol, "quote request failed", err)
	}
	q, _ := raw.(*finance.Quote)
	if q == nil || q.RegularMarketPrice <= 0 {
		return 0, apperrors.NewDataError(DataQuote, symbol, "no price in quote", nil)
	}
	return q.RegularMarketPrice, nil
}

// call runs a blocking client call, giving up when ctx or the configured
// timeout expires. The library has no context support, so an abandoned call
// finishes in the background.
func (p *YahooProvider) call(ctx context.Context, fn func() (any, error)) (any, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		var pc panics.Catcher
		pc.Try(func() { r.v, r.err = fn() })
		if rec := pc.Recovered(); rec != nil {
			r = result{err: fmt.Errorf("yahoo: %w", rec.AsError())}
		}
		done <- r
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("yahoo: %w", ctx.Err())
	}
}

func setNonZero(f models.Fundamentals, code string, v float64) {
	if v != 0 {
		f[code] = v
	}
}
