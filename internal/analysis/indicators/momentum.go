package indicators

import "fmt"

// Momentum returns the percentage change of the last price against the price
// lookback bars earlier: (current - base) / base * 100.
// Insufficient history yields Undefined with a nil error. A zero base price is
// an error rather than an infinite or NaN reading.
func Momentum(prices []float64, lookback int) (Value, error) {
	if lookback < 1 {
		return Undefined, ErrInvalidPeriod
	}
	n := len(prices)
	if n < lookback+1 {
		return Undefined, nil
	}

	base := prices[n-lookback-1]
	if base == 0 {
		return Undefined, fmt.Errorf("momentum %d: %w", lookback, ErrZeroBasePrice)
	}
	return Defined((prices[n-1] - base) / base * 100), nil
}
