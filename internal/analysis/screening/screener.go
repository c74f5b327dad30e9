// Package screening applies cheap technical and fundamental pre-filters to a
// symbol before any generative analysis is requested.
package screening

import (
	"fmt"
	"strings"

	"stock-advisor/internal/analysis/indicators"
	"stock-advisor/internal/models"
)

// FilterType represents the type of screener filter.
type FilterType string

const (
	FilterGoldenCross FilterType = "golden_cross"
	FilterPE          FilterType = "pe"
	FilterPB          FilterType = "pb"
	FilterROE         FilterType = "roe"
	FilterVolumeRatio FilterType = "volume_ratio"
	FilterPrice       FilterType = "price"
	FilterMomentum    FilterType = "momentum"
)

// Fundamental reports whether the filter reads fundamental ratios.
func (t FilterType) Fundamental() bool {
	switch t {
	case FilterPE, FilterPB, FilterROE:
		return true
	}
	return false
}

// FilterOperator represents the comparison operator for a filter.
type FilterOperator string

const (
	OpGreaterThan      FilterOperator = ">"
	OpLessThan         FilterOperator = "<"
	OpGreaterThanEqual FilterOperator = ">="
	OpLessThanEqual    FilterOperator = "<="
	OpEqual            FilterOperator = "="
	OpNotEqual         FilterOperator = "!="
)

// Filter represents a single screener filter condition.
type Filter struct {
	Type     FilterType
	Operator FilterOperator
	Value    float64
	Period   int // momentum lookback or golden cross window
}

func (f Filter) String() string {
	if f.Type == FilterGoldenCross {
		if f.Period > 0 {
			return fmt.Sprintf("golden_cross within %d bars", f.Period)
		}
		return "golden_cross"
	}
	if f.Period > 0 {
		return fmt.Sprintf("%s(%d) %s %g", f.Type, f.Period, f.Operator, f.Value)
	}
	return fmt.Sprintf("%s %s %g", f.Type, f.Operator, f.Value)
}

// Config holds the pre-filter thresholds. Zero thresholds are disabled.
// The momentum filter is enabled by a positive MomentumPeriod, which must be
// one of the snapshot's momentum periods.
type Config struct {
	GoldenCross         bool    `mapstructure:"golden_cross"`
	CrossLookback       int     `mapstructure:"cross_lookback"`
	MaxPE               float64 `mapstructure:"max_pe"`
	MinROE              float64 `mapstructure:"min_roe"`
	MaxPB               float64 `mapstructure:"max_pb"`
	MinVolumeRatio      float64 `mapstructure:"min_volume_ratio"`
	MinPrice            float64 `mapstructure:"min_price"`
	MaxPrice            float64 `mapstructure:"max_price"`
	MomentumPeriod      int     `mapstructure:"momentum_period"`
	MinMomentum         float64 `mapstructure:"min_momentum"`
	RequireFundamentals bool    `mapstructure:"require_fundamentals"`
}

// Filters expands the configuration into filter conditions. A P/E ceiling
// also requires a positive P/E.
func (c Config) Filters() []Filter {
	var filters []Filter
	if c.GoldenCross {
		filters = append(filters, Filter{Type: FilterGoldenCross, Period: c.CrossLookback})
	}
	if c.MaxPE > 0 {
		filters = append(filters,
			Filter{Type: FilterPE, Operator: OpGreaterThan, Value: 0},
			Filter{Type: FilterPE, Operator: OpLessThanEqual, Value: c.MaxPE},
		)
	}
	if c.MinROE > 0 {
		filters = append(filters, Filter{Type: FilterROE, Operator: OpGreaterThanEqual, Value: c.MinROE})
	}
	if c.MaxPB > 0 {
		filters = append(filters, Filter{Type: FilterPB, Operator: OpLessThanEqual, Value: c.MaxPB})
	}
	if c.MinVolumeRatio > 0 {
		filters = append(filters, Filter{Type: FilterVolumeRatio, Operator: OpGreaterThanEqual, Value: c.MinVolumeRatio})
	}
	if c.MinPrice > 0 {
		filters = append(filters, Filter{Type: FilterPrice, Operator: OpGreaterThanEqual, Value: c.MinPrice})
	}
	if c.MaxPrice > 0 {
		filters = append(filters, Filter{Type: FilterPrice, Operator: OpLessThanEqual, Value: c.MaxPrice})
	}
	if c.MomentumPeriod > 0 {
		filters = append(filters, Filter{Type: FilterMomentum, Operator: OpGreaterThanEqual, Value: c.MinMomentum, Period: c.MomentumPeriod})
	}
	return filters
}

// Result represents the outcome of screening one symbol.
type Result struct {
	Passed  bool
	Reasons []string           // why the symbol was rejected
	Skipped []string           // filters not evaluated for lack of fundamentals
	Matches map[string]float64 // filter -> observed value
}

// Reason joins the rejection reasons.
func (r Result) Reason() string {
	return strings.Join(r.Reasons, "; ")
}

// Screener evaluates filters against a snapshot and fundamentals.
// All filters are combined with AND logic.
type Screener struct {
	filters             []Filter
	requireFundamentals bool
}

// NewScreener creates a screener from configuration.
func NewScreener(cfg Config) *Screener {
	return &Screener{
		filters:             cfg.Filters(),
		requireFundamentals: cfg.RequireFundamentals,
	}
}

// Filters returns the active filters.
func (s *Screener) Filters() []Filter {
	return s.filters
}

// Screen evaluates every filter. It never errors: an indicator that is
// undefined fails its filter, and a missing fundamental ratio skips its filter
// unless fundamentals are required.
func (s *Screener) Screen(snap *indicators.Snapshot, fundamentals models.Fundamentals) Result {
	result := Result{
		Passed:  true,
		Matches: make(map[string]float64),
	}
	if snap == nil {
		result.Passed = false
		result.Reasons = append(result.Reasons, "no indicator snapshot")
		return result
	}

	for _, filter := range s.filters {
		value, ok := s.observe(snap, fundamentals, filter)
		if !ok {
			if filter.Type.Fundamental() && !s.requireFundamentals {
				result.Skipped = append(result.Skipped, filter.String())
				continue
			}
			result.Passed = false
			result.Reasons = append(result.Reasons, fmt.Sprintf("%s: no data", filter))
			continue
		}

		result.Matches[filter.String()] = value

		if filter.Type == FilterGoldenCross {
			if !goldenCrossPassed(snap.Trend, filter.Period) {
				result.Passed = false
				result.Reasons = append(result.Reasons, goldenCrossReason(snap.Trend, filter.Period))
			}
			continue
		}

		if !compareValues(value, filter.Operator, filter.Value) {
			result.Passed = false
			result.Reasons = append(result.Reasons, fmt.Sprintf("%s (got %.2f)", filter, value))
		}
	}

	return result
}

// observe reads the value a filter compares against.
func (s *Screener) observe(snap *indicators.Snapshot, fundamentals models.Fundamentals, filter Filter) (float64, bool) {
	switch filter.Type {
	case FilterGoldenCross:
		if !snap.MAShort.Valid || !snap.MALong.Valid {
			return 0, false
		}
		return float64(snap.Trend.BarsSinceGoldenCross), true
	case FilterPE:
		return fundamentals.Get(models.RatioPE)
	case FilterPB:
		return fundamentals.Get(models.RatioPB)
	case FilterROE:
		return fundamentals.Get(models.RatioROE)
	case FilterVolumeRatio:
		return snap.Volume.Ratio.Float()
	case FilterPrice:
		return snap.CurrentPrice, true
	case FilterMomentum:
		v, ok := snap.Momentum[filter.Period]
		if !ok {
			return 0, false
		}
		return v.Float()
	default:
		return 0, false
	}
}

// goldenCrossPassed requires the short average above the long one and, with a
// positive window, a cross within that many bars.
func goldenCrossPassed(trend indicators.TrendState, window int) bool {
	if !trend.ShortAboveLong {
		return false
	}
	if window <= 0 {
		return true
	}
	return trend.BarsSinceGoldenCross >= 0 && trend.BarsSinceGoldenCross <= window
}

func goldenCrossReason(trend indicators.TrendState, window int) string {
	if !trend.ShortAboveLong {
		return "golden_cross: short average not above long average"
	}
	if trend.BarsSinceGoldenCross < 0 {
		return fmt.Sprintf("golden_cross: no cross within %d bars", window)
	}
	return fmt.Sprintf("golden_cross: last cross %d bars ago, window %d", trend.BarsSinceGoldenCross, window)
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op FilterOperator, expected float64) bool {
	switch op {
	case OpGreaterThan:
		return actual > expected
	case OpLessThan:
		return actual < expected
	case OpGreaterThanEqual:
		return actual >= expected
	case OpLessThanEqual:
		return actual <= expected
	case OpEqual:
		return actual == expected
	case OpNotEqual:
		return actual != expected
	default:
		return false
	}
}
