package indicators

// StandardDeviation returns the population standard deviation (divide by
// period) over the window ending at index. Undefined before period samples.
func StandardDeviation(prices []float64, period, index int) Value {
	w, ok := window(prices, period, index)
	if !ok {
		return Undefined
	}
	return Defined(stdDev(w))
}

// Band is one Bollinger Bands reading.
type Band struct {
	Upper  Value `json:"upper"`
	Middle Value `json:"middle"`
	Lower  Value `json:"lower"`
}

// Defined reports whether all three lines are defined.
func (b Band) Defined() bool {
	return b.Upper.Valid && b.Middle.Valid && b.Lower.Valid
}

// Width returns (upper - lower) / middle when defined and middle is non-zero.
func (b Band) Width() Value {
	if !b.Defined() || b.Middle.V == 0 {
		return Undefined
	}
	return Defined((b.Upper.V - b.Lower.V) / b.Middle.V)
}

// Default Bollinger parameters.
const (
	DefaultBollingerPeriod     = 20
	DefaultBollingerMultiplier = 2.0
)

// BollingerBands calculates Bollinger Bands at each index. The middle line is
// the moving average and upper/lower are middle ± multiplier·stddev, so
// upper >= middle >= lower wherever defined. A negative multiplier is
// treated as zero.
func BollingerBands(prices []float64, period int, multiplier float64) []Band {
	if !(multiplier >= 0) {
		multiplier = 0
	}
	result := make([]Band, len(prices))
	for i := range prices {
		w, ok := window(prices, period, i)
		if !ok {
			continue
		}
		middle := mean(w)
		offset := multiplier * stdDev(w)
		result[i] = Band{
			Upper:  Defined(middle + offset),
			Middle: Defined(middle),
			Lower:  Defined(middle - offset),
		}
	}
	return result
}
