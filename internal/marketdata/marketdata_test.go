package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/models"
)

func newVendorServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/bars", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		if r.URL.Query().Get("symbol") == "DOWN" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		write(w, map[string]any{
			"symbol": r.URL.Query().Get("symbol"),
			"bars": []map[string]any{
				{"date": "2024-03-05", "open": 11, "high": 12, "low": 10, "close": 11.5, "volume": 300},
				{"date": "2024-03-04", "open": 10, "high": 11, "low": 9, "close": 10.5, "volume": 200},
				{"date": "2024-03-05", "open": 11, "high": 13, "low": 10, "close": 12, "volume": 310},
				{"date": "bad", "close": 1},
			},
		})
	})
	mux.HandleFunc("/fundamentals", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"ratios": map[string]float64{"pe": 12.5, "ROE": 18}})
	})
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"price": 101.25})
	})
	mux.HandleFunc("/targets", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "NONE" {
			write(w, map[string]any{"count": 0})
			return
		}
		write(w, map[string]any{"low": 90, "mean": 120, "high": 150, "count": 7})
	})
	return httptest.NewServer(mux)
}

func newTestREST(url string) *RESTProvider {
	return NewRESTProvider(RESTConfig{
		BaseURL:           url,
		APIKey:            "secret",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 100,
	}, zerolog.Nop())
}

func TestRESTProvider_GetBars(t *testing.T) {
	srv := newVendorServer(t)
	defer srv.Close()
	p := newTestREST(srv.URL)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars, err := p.GetBars(context.Background(), "FPT", from, from.AddDate(0, 0, 10))

	require.NoError(t, err)
	require.Len(t, bars, 2, "duplicate date collapsed and bad date dropped")
	assert.Equal(t, 10.5, bars[0].Close)
	assert.Equal(t, 12.0, bars[1].Close, "later duplicate wins")
	assert.True(t, bars[0].Date.Before(bars[1].Date))
}

func TestRESTProvider_Errors(t *testing.T) {
	srv := newVendorServer(t)
	defer srv.Close()
	p := newTestREST(srv.URL)

	_, err := p.GetBars(context.Background(), "DOWN", time.Now().AddDate(0, -1, 0), time.Now())
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
	var dataErr *apperrors.DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, DataBars, dataErr.DataType)
	assert.Equal(t, "DOWN", dataErr.Symbol)

	_, err = p.GetAnalystTargets(context.Background(), "NONE")
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.GetLatestPrice(ctx, "FPT")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRESTProvider_FundamentalsQuoteTargets(t *testing.T) {
	srv := newVendorServer(t)
	defer srv.Close()
	p := newTestREST(srv.URL)
	ctx := context.Background()

	f, err := p.GetFundamentals(ctx, "FPT")
	require.NoError(t, err)
	assert.Equal(t, models.Fundamentals{models.RatioPE: 12.5, models.RatioROE: 18}, f)

	price, err := p.GetLatestPrice(ctx, "FPT")
	require.NoError(t, err)
	assert.Equal(t, 101.25, price)

	targets, err := p.GetAnalystTargets(ctx, "FPT")
	require.NoError(t, err)
	assert.Equal(t, 120.0, targets.Mean)
	assert.Equal(t, 7, targets.Count)
}

func TestYahooProvider(t *testing.T) {
	p := NewYahooProvider(YahooConfig{Suffix: ".VN", Timeout: time.Second}, zerolog.Nop())
	var gotSymbol string
	p.fetchChart = func(params *chart.Params) ([]*finance.ChartBar, error) {
		gotSymbol = params.Symbol
		day := int(time.Date(2024, 5, 2, 2, 0, 0, 0, time.UTC).Unix())
		return []*finance.ChartBar{
			{Timestamp: day + 86400, Open: decimal.NewFromFloat(21), High: decimal.NewFromFloat(22), Low: decimal.NewFromFloat(20), Close: decimal.NewFromFloat(21.5), Volume: 900},
			{Timestamp: day, Open: decimal.NewFromFloat(20), High: decimal.NewFromFloat(21), Low: decimal.NewFromFloat(19), Close: decimal.NewFromFloat(20.5), Volume: 800},
			{Timestamp: day + 2*86400},
		}, nil
	}
	p.fetchEquity = func(string) (*finance.Equity, error) {
		return &finance.Equity{
			TrailingPE:              15,
			PriceToBook:             2,
			EpsTrailingTwelveMonths: 4,
			BookValue:               20,
		}, nil
	}
	p.fetchQuote = func(string) (*finance.Quote, error) {
		return &finance.Quote{RegularMarketPrice: 21.7}, nil
	}
	ctx := context.Background()

	bars, err := p.GetBars(ctx, "hpg", time.Now().AddDate(-1, 0, 0), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "HPG.VN", gotSymbol)
	require.Len(t, bars, 2, "zero close dropped")
	assert.Equal(t, 20.5, bars[0].Close)
	assert.Equal(t, 900.0, bars[1].Volume)

	f, err := p.GetFundamentals(ctx, "HPG")
	require.NoError(t, err)
	assert.InDelta(t, 20.0, f[models.RatioROE], 1e-9)
	assert.Equal(t, 15.0, f[models.RatioPE])
	_, hasYield := f.Get(models.RatioDividendYield)
	assert.False(t, hasYield)

	price, err := p.GetLatestPrice(ctx, "HPG")
	require.NoError(t, err)
	assert.Equal(t, 21.7, price)
}

func TestYahooProvider_Timeout(t *testing.T) {
	p := NewYahooProvider(YahooConfig{Timeout: 20 * time.Millisecond}, zerolog.Nop())
	release := make(chan struct{})
	defer close(release)
	p.fetchQuote = func(string) (*finance.Quote, error) {
		<-release
		return nil, nil
	}

	_, err := p.GetLatestPrice(context.Background(), "AAPL")
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestYahooProvider_PanicBecomesDataError(t *testing.T) {
	p := NewYahooProvider(YahooConfig{Timeout: time.Second}, zerolog.Nop())
	p.fetchEquity = func(string) (*finance.Equity, error) {
		var eq *finance.Equity
		_ = eq.TrailingPE
		return eq, nil
	}

	var err error
	require.NotPanics(t, func() { _, err = p.GetFundamentals(context.Background(), "VNM") })
	assert.ErrorIs(t, err, apperrors.ErrDataUnavailable)
}
