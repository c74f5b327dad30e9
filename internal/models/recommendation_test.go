package models

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "stock-advisor/internal/errors"
)

func validRecommendation() Recommendation {
	return Recommendation{
		Symbol:           "FPT",
		RecommendedPrice: 100,
		CurrentPrice:     100,
		TargetPrice:      120,
		StopLoss:         90,
		Confidence:       80,
		AISignal:         "BUY",
		Status:           StatusActive,
	}
}

func TestValidate_MissingFields(t *testing.T) {
	cases := []struct {
		field  string
		mutate func(r *Recommendation)
	}{
		{"symbol", func(r *Recommendation) { r.Symbol = " " }},
		{"recommended_price", func(r *Recommendation) { r.RecommendedPrice = 0 }},
		{"current_price", func(r *Recommendation) { r.CurrentPrice = 0 }},
		{"confidence", func(r *Recommendation) { r.Confidence = 0 }},
		{"ai_signal", func(r *Recommendation) { r.AISignal = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			r := validRecommendation()
			tc.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrValidation)

			var ve *apperrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	r := validRecommendation()
	assert.NoError(t, r.Validate())
}

func TestDeriveStatus_StopLossThenTerminal(t *testing.T) {
	r := validRecommendation()

	next := r.DeriveStatus(85)
	assert.Equal(t, StatusStopped, next)
	require.NoError(t, r.Transition(next))

	// Once stopped a favorable move changes nothing.
	assert.Equal(t, StatusStopped, r.DeriveStatus(130))
	assert.ErrorIs(t, r.Transition(StatusActive), apperrors.ErrInvalidTransition)
	assert.ErrorIs(t, r.Transition(StatusCompleted), apperrors.ErrInvalidTransition)
	assert.NoError(t, r.Transition(StatusStopped))
}

func TestDeriveStatus_BothThresholdsCrossed(t *testing.T) {
	r := validRecommendation()
	// Stale stop-loss above the target.
	r.StopLoss = 125
	assert.Equal(t, StatusStopped, r.DeriveStatus(122))
}

func TestDeriveStatus_ZeroThresholdsIgnored(t *testing.T) {
	r := validRecommendation()
	r.TargetPrice = 0
	r.StopLoss = 0
	assert.Equal(t, StatusActive, r.DeriveStatus(1))
	assert.Equal(t, StatusActive, r.DeriveStatus(1e6))
}

func TestProperty_CompletedNeverReverts(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("price >= target completes and later prices never reactivate", prop.ForAll(
		func(target, overshoot float64, later []float64) bool {
			r := validRecommendation()
			r.TargetPrice = target
			r.StopLoss = target * 0.5

			next := r.DeriveStatus(target + overshoot)
			if next != StatusCompleted {
				return false
			}
			if err := r.Transition(next); err != nil {
				return false
			}
			for _, p := range later {
				if r.DeriveStatus(p) != StatusCompleted {
					return false
				}
			}
			return r.Transition(StatusActive) != nil
		},
		gen.Float64Range(1, 10000),
		gen.Float64Range(0, 1000),
		gen.SliceOf(gen.Float64Range(0, 20000)),
	))

	properties.TestingRun(t)
}

func TestComputePerformance(t *testing.T) {
	recs := []Recommendation{
		{RecommendedPrice: 100, CurrentPrice: 120, Confidence: 80, Status: StatusCompleted},
		{RecommendedPrice: 100, CurrentPrice: 90, Confidence: 70, Status: StatusStopped},
		{RecommendedPrice: 50, CurrentPrice: 60, Confidence: 90, Status: StatusCompleted},
		{RecommendedPrice: 100, CurrentPrice: 105, Confidence: 60, Status: StatusActive},
	}

	m := ComputePerformance(recs)
	assert.Equal(t, 4, m.Total)
	assert.Equal(t, 1, m.Active)
	assert.Equal(t, 2, m.Completed)
	assert.Equal(t, 1, m.Stopped)
	assert.InDelta(t, 2.0/3.0, m.WinRate, 1e-9)
	assert.InDelta(t, (0.2-0.1+0.2)/3, m.AvgRealizedGain, 1e-9)
	assert.InDelta(t, 0.2, m.BestRealizedGain, 1e-9)
	assert.InDelta(t, -0.1, m.WorstRealizedGain, 1e-9)
	assert.InDelta(t, 0.05, m.AvgOpenGain, 1e-9)
	assert.InDelta(t, 75, m.AvgConfidence, 1e-9)

	// Pure: the same input gives the same output.
	assert.Equal(t, m, ComputePerformance(recs))
}

func TestComputePerformance_Empty(t *testing.T) {
	m := ComputePerformance(nil)
	assert.Equal(t, PerformanceMetrics{}, m)
}

func TestNormalizeBars(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC) }
	in := []PriceBar{
		{Date: d(3), Close: 3},
		{Date: d(1), Close: 1},
		{Date: d(2), Close: 2},
		{Date: d(1).Add(7 * time.Hour), Close: 11},
	}

	out := NormalizeBars(in)
	require.Len(t, out, 3)
	assert.Equal(t, []float64{11, 2, 3}, ClosePrices(out))
	// Input untouched.
	assert.Equal(t, 3.0, in[0].Close)
}

func TestParseSignalType(t *testing.T) {
	cases := map[string]SignalType{
		"buy":        SignalBuy,
		" Sell ":     SignalSell,
		"hold.":      SignalHold,
		"mua":        SignalBuy,
		"bán":        SignalSell,
		"nắm  giữ":   SignalHold,
		"Strong Buy": SignalBuy,
	}
	for in, want := range cases {
		got, ok := ParseSignalType(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseSignalType("maybe")
	assert.False(t, ok)
}

func TestRoundPrice(t *testing.T) {
	assert.Equal(t, 10.13, RoundPrice(10.125))
	assert.Equal(t, 0.3, RoundPrice(0.1+0.2))
}
