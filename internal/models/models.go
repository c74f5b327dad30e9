// Package models provides domain models for the stock advisor.
package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar represents OHLCV data for one trading day.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// NormalizeBars returns a copy of bars sorted by date ascending with one bar
// per calendar day. When a day appears twice the later entry in the input wins.
func NormalizeBars(bars []PriceBar) []PriceBar {
	if len(bars) == 0 {
		return nil
	}

	byDay := make(map[string]int, len(bars))
	out := make([]PriceBar, 0, len(bars))
	for _, b := range bars {
		key := b.Date.UTC().Format("2006-01-02")
		if idx, ok := byDay[key]; ok {
			out[idx] = b
			continue
		}
		byDay[key] = len(out)
		out = append(out, b)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// ClosePrices extracts close prices from bars.
func ClosePrices(bars []PriceBar) []float64 {
	prices := make([]float64, len(bars))
	for i, b := range bars {
		prices[i] = b.Close
	}
	return prices
}

// Volumes extracts volumes from bars.
func Volumes(bars []PriceBar) []float64 {
	vols := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = b.Volume
	}
	return vols
}

// RoundPrice rounds a price to two decimal places without float drift.
func RoundPrice(p float64) float64 {
	return decimal.NewFromFloat(p).Round(2).InexactFloat64()
}
