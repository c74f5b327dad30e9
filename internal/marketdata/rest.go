package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/logging"
	"stock-advisor/internal/models"
)

// RESTConfig configures the JSON market data adapter.
type RESTConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// RESTProvider implements Provider and AnalystTargetProvider against a JSON
// vendor API exposing /bars, /fundamentals, /quote and /targets.
type RESTProvider struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewRESTProvider creates a rate-limited REST provider.
func NewRESTProvider(cfg RESTConfig, logger zerolog.Logger) *RESTProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}

	return &RESTProvider{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		logger:  logger.With().Str("component", "rest_marketdata").Logger(),
	}
}

type restBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type barsResponse struct {
	Symbol string    `json:"symbol"`
	Bars   []restBar `json:"bars"`
}

type fundamentalsResponse struct {
	Ratios map[string]float64 `json:"ratios"`
}

type quoteResponse struct {
	Price float64 `json:"price"`
}

// GetBars returns daily bars between from and to.
func (p *RESTProvider) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	var out barsResponse
	err := p.get(ctx, "/bars", map[string]string{
		"symbol": symbol,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}, &out)
	if err != nil {
		return nil, apperrors.NewDataError(DataBars, symbol, "bars request failed", err)
	}

	bars := make([]models.PriceBar, 0, len(out.Bars))
	for _, b := range out.Bars {
		date, err := parseDate(b.Date)
		if err != nil {
			p.logger.Debug().Str("symbol", symbol).Str("date", b.Date).Msg("Skipping bar with bad date")
			continue
		}
		bars = append(bars, models.PriceBar{
			Date:   date,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	if len(bars) == 0 {
		return nil, apperrors.NewDataError(DataBars, symbol, "no bars returned", nil)
	}
	return models.NormalizeBars(bars), nil
}

// GetFundamentals returns ratios keyed by upper-case code.
func (p *RESTProvider) GetFundamentals(ctx context.Context, symbol string) (models.Fundamentals, error) {
	var out fundamentalsResponse
	if err := p.get(ctx, "/fundamentals", map[string]string{"symbol": symbol}, &out); err != nil {
		return nil, apperrors.NewDataError(DataFundamentals, symbol, "fundamentals request failed", err)
	}
	if len(out.Ratios) == 0 {
		return nil, apperrors.NewDataError(DataFundamentals, symbol, "no ratios available", nil)
	}
	f := make(models.Fundamentals, len(out.Ratios))
	for code, v := range out.Ratios {
		f[strings.ToUpper(code)] = v
	}
	return f, nil
}

// GetLatestPrice returns the latest traded price.
func (p *RESTProvider) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	var out quoteResponse
	if err := p.get(ctx, "/quote", map[string]string{"symbol": symbol}, &out); err != nil {
		return 0, apperrors.NewDataError(DataQuote, symbol, "quote request failed", err)
	}
	if out.Price <= 0 {
		return 0, apperrors.NewDataError(DataQuote, symbol, "no price in quote", nil)
	}
	return out.Price, nil
}

// GetAnalystTargets returns consensus targets.
func (p *RESTProvider) GetAnalystTargets(ctx context.Context, symbol string) (*models.AnalystTargets, error) {
	var out models.AnalystTargets
	if err := p.get(ctx, "/targets", map[string]string{"symbol": symbol}, &out); err != nil {
		return nil, apperrors.NewDataError(DataTargets, symbol, "targets request failed", err)
	}
	if !out.HasMean() {
		return nil, apperrors.NewDataError(DataTargets, symbol, "no consensus target", nil)
	}
	return &out, nil
}

// get waits for the limiter, performs one GET and decodes the JSON body.
func (p *RESTProvider) get(ctx context.Context, path string, query map[string]string, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err == nil && resp.StatusCode() != http.StatusOK {
		err = fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode())
	}
	logging.LogAPICall(p.logger, "GET", path, time.Since(start), err)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
