// Package marketdata defines the price and fundamental data sources consumed
// by the analysis pipeline, with Yahoo Finance and generic REST adapters.
package marketdata

import (
	"context"
	"time"

	"stock-advisor/internal/models"
)

// PriceSeriesProvider supplies ordered daily bars and fundamental ratios.
// Bars are returned ascending by date without duplicate dates.
type PriceSeriesProvider interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error)
	GetFundamentals(ctx context.Context, symbol string) (models.Fundamentals, error)
}

// QuoteProvider supplies the latest traded price.
type QuoteProvider interface {
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// AnalystTargetProvider supplies consensus analyst price targets.
type AnalystTargetProvider interface {
	GetAnalystTargets(ctx context.Context, symbol string) (*models.AnalystTargets, error)
}

// Provider is a full market data source.
type Provider interface {
	PriceSeriesProvider
	QuoteProvider
}

// Data types used in DataError.
const (
	DataBars         = "bars"
	DataFundamentals = "fundamentals"
	DataQuote        = "quote"
	DataTargets      = "analyst_targets"
)
