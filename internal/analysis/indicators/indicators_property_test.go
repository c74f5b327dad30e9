package indicators

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/models"
)

// priceSliceGen generates strictly positive price series.
func priceSliceGen(minLen, maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, gen.Float64Range(1.0, 1000.0)).Map(func(prices []float64) []float64 {
		for len(prices) < minLen {
			prices = append(prices, 100.0)
		}
		return prices
	})
}

// barsFromCloses builds daily bars with one bar per day ending today.
func barsFromCloses(closes []float64, volume float64) []models.PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: volume,
		}
	}
	return bars
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Property: wherever Bollinger Bands are defined, upper >= middle >= lower.
func TestProperty_BollingerOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("upper >= middle >= lower", prop.ForAll(
		func(prices []float64, period int, multiplier float64) bool {
			for _, b := range BollingerBands(prices, period, multiplier) {
				if !b.Defined() {
					continue
				}
				if b.Upper.V < b.Middle.V || b.Middle.V < b.Lower.V {
					return false
				}
			}
			return true
		},
		priceSliceGen(1, 80),
		gen.IntRange(1, 30),
		gen.Float64Range(-1.0, 4.0),
	))

	properties.TestingRun(t)
}

// Property: a moving average is undefined exactly before period samples exist
// and always lies within the window's min and max.
func TestProperty_MovingAverageDefinedness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("undefined before period, bounded after", prop.ForAll(
		func(prices []float64, period int) bool {
			ma := MovingAverage(prices, period)
			if len(ma) != len(prices) {
				return false
			}
			for i, v := range ma {
				if i < period-1 {
					if v.Valid {
						return false
					}
					continue
				}
				if !v.Valid {
					return false
				}
				lo, hi := math.Inf(1), math.Inf(-1)
				for _, p := range prices[i-period+1 : i+1] {
					lo = math.Min(lo, p)
					hi = math.Max(hi, p)
				}
				if v.V < lo-1e-9 || v.V > hi+1e-9 {
					return false
				}
			}
			return true
		},
		priceSliceGen(1, 60),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}

// Property: momentum over positive prices is defined iff there is lookback+1
// history and never below -100%.
func TestProperty_MomentumBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("momentum defined with enough history", prop.ForAll(
		func(prices []float64, lookback int) bool {
			v, err := Momentum(prices, lookback)
			if err != nil {
				return false
			}
			if len(prices) < lookback+1 {
				return !v.Valid
			}
			return v.Valid && v.V > -100
		},
		priceSliceGen(1, 70),
		gen.IntRange(1, 60),
	))

	properties.TestingRun(t)
}

func TestBollingerBands_ZeroVolatility(t *testing.T) {
	bands := BollingerBands(constant(20, 10), 20, 2)

	for i := 0; i < 19; i++ {
		assert.False(t, bands[i].Defined(), "index %d", i)
	}
	b := bands[19]
	require.True(t, b.Defined())
	assert.Equal(t, 10.0, b.Upper.V)
	assert.Equal(t, 10.0, b.Middle.V)
	assert.Equal(t, 10.0, b.Lower.V)
	assert.Equal(t, 0.0, b.Width().V)
}

func TestBollingerBands_NegativeMultiplierClamped(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}
	b := BollingerBands(prices, 5, -3)[4]
	require.True(t, b.Defined())
	assert.Equal(t, b.Middle.V, b.Upper.V)
	assert.Equal(t, b.Middle.V, b.Lower.V)
}

func TestStandardDeviation_Population(t *testing.T) {
	prices := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	sd := StandardDeviation(prices, 8, 7)
	require.True(t, sd.Valid)
	assert.InDelta(t, 2.0, sd.V, 1e-12)

	assert.False(t, StandardDeviation(prices, 9, 7).Valid)
}

func TestMomentum(t *testing.T) {
	t.Run("percentage change", func(t *testing.T) {
		v, err := Momentum([]float64{100, 105, 110}, 2)
		require.NoError(t, err)
		assert.InDelta(t, 10.0, v.V, 1e-9)
	})

	t.Run("insufficient history is undefined", func(t *testing.T) {
		v, err := Momentum([]float64{100, 105}, 5)
		require.NoError(t, err)
		assert.False(t, v.Valid)
	})

	t.Run("zero base price", func(t *testing.T) {
		_, err := Momentum([]float64{0, 5, 10}, 2)
		assert.True(t, errors.Is(err, ErrZeroBasePrice))
	})

	t.Run("invalid lookback", func(t *testing.T) {
		_, err := Momentum([]float64{1, 2}, 0)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})
}

func TestVolumeRatio(t *testing.T) {
	vols := append(constant(20, 1000), 2500)

	avg := TrailingVolumeAverage(vols, 20)
	require.True(t, avg.Valid)
	assert.Equal(t, 1000.0, avg.V)

	r := VolumeRatio(vols, 20)
	require.True(t, r.Valid)
	assert.InDelta(t, 2.5, r.V, 1e-9)

	assert.False(t, VolumeRatio(constant(20, 1000), 20).Valid, "needs avgPeriod+1 values")
	assert.False(t, VolumeRatio(append(constant(20, 0), 10), 20).Valid, "zero average")
}

func TestBarsSinceGoldenCross(t *testing.T) {
	// Falling then rising: the 3-bar average overtakes the 5-bar average.
	prices := []float64{10, 9, 8, 7, 6, 5, 6, 8, 10, 12, 14}
	short := MovingAverage(prices, 3)
	long := MovingAverage(prices, 5)

	n := BarsSinceGoldenCross(short, long)
	assert.GreaterOrEqual(t, n, 0)
	assert.True(t, ShortAboveLong(short, long))

	flat := MovingAverage(constant(10, 5), 3)
	assert.Equal(t, -1, BarsSinceGoldenCross(flat, flat))
}

func TestWeek52Range(t *testing.T) {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := []models.PriceBar{
		{Date: start, High: 500, Low: 1, Close: 200},
		{Date: start.AddDate(0, 6, 0), High: 150, Low: 90, Close: 120},
		{Date: start.AddDate(1, 1, 0), High: 130, Low: 110, Close: 125},
	}

	r := Week52Range(bars)
	require.True(t, r.High.Valid)
	assert.Equal(t, 150.0, r.High.V)
	assert.Equal(t, 90.0, r.Low.V)

	assert.False(t, Week52Range(nil).High.Valid)
}

func TestValue_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Value `json:"a"`
		B Value `json:"b"`
	}{A: Defined(1.5), B: Undefined})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.5,"b":null}`, string(data))

	var v Value
	require.NoError(t, json.Unmarshal([]byte("null"), &v))
	assert.False(t, v.Valid)
	require.NoError(t, json.Unmarshal([]byte("0"), &v))
	assert.True(t, v.Valid)
	assert.Equal(t, 0.0, v.V)
}

func TestBuildSnapshot(t *testing.T) {
	cfg := DefaultSnapshotConfig()

	t.Run("empty series", func(t *testing.T) {
		_, err := BuildSnapshot(nil, cfg)
		assert.ErrorIs(t, err, apperrors.ErrInsufficientData)
	})

	t.Run("short series is partial", func(t *testing.T) {
		snap, err := BuildSnapshot(barsFromCloses(constant(20, 10), 1000), cfg)
		require.NoError(t, err)
		assert.Equal(t, 10.0, snap.CurrentPrice)
		assert.True(t, snap.MAShort.Valid)
		assert.False(t, snap.MALong.Valid)
		assert.True(t, snap.Bollinger.Defined())
		assert.False(t, snap.Momentum[20].Valid)
		assert.True(t, snap.Momentum[5].Valid)
		assert.False(t, snap.Complete())
		assert.Equal(t, []int{5, 20, 60}, snap.MomentumPeriods())
	})

	t.Run("long series is complete", func(t *testing.T) {
		prices := make([]float64, cfg.LongestPeriod()+10)
		for i := range prices {
			prices[i] = 100 + float64(i)
		}
		snap, err := BuildSnapshot(barsFromCloses(prices, 1000), cfg)
		require.NoError(t, err)
		assert.True(t, snap.Complete())
		assert.True(t, snap.Trend.ShortAboveLong)
		assert.InDelta(t, 1.0, snap.Volume.Ratio.V, 1e-9)
	})

	t.Run("zero base price", func(t *testing.T) {
		prices := append([]float64{0}, constant(5, 10)...)
		_, err := BuildSnapshot(barsFromCloses(prices, 1000), cfg)
		assert.ErrorIs(t, err, ErrZeroBasePrice)
	})
}

func TestEngine_Snapshot(t *testing.T) {
	cfg := DefaultSnapshotConfig()
	engine := NewEngine(cfg)
	assert.Equal(t, cfg, engine.Config())

	snap, err := engine.Snapshot(barsFromCloses(constant(30, 20), 100))
	require.NoError(t, err)
	assert.Equal(t, 20.0, snap.CurrentPrice)

	_, err = engine.Snapshot(nil)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)
}
