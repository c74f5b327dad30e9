package models

import "sort"

// Fundamental ratio codes.
const (
	RatioPE            = "PE"
	RatioPB            = "PB"
	RatioROE           = "ROE"
	RatioEPS           = "EPS"
	RatioBVPS          = "BVPS"
	RatioDividendYield = "DIVIDEND_YIELD"
	RatioMarketCap     = "MARKET_CAP"
)

// Fundamentals holds named fundamental ratios keyed by code.
type Fundamentals map[string]float64

// Get returns the ratio for code and whether it is present.
func (f Fundamentals) Get(code string) (float64, bool) {
	if f == nil {
		return 0, false
	}
	v, ok := f[code]
	return v, ok
}

// Codes returns the ratio codes in sorted order.
func (f Fundamentals) Codes() []string {
	codes := make([]string, 0, len(f))
	for code := range f {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// AnalystTargets summarizes analyst price targets for a symbol.
type AnalystTargets struct {
	Low   float64 `json:"low"`
	Mean  float64 `json:"mean"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// HasMean reports whether a usable consensus target exists.
func (t *AnalystTargets) HasMean() bool {
	return t != nil && t.Mean > 0
}
