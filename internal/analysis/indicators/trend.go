package indicators

// MovingAverage returns the simple moving average of the last period values at
// each index. Indexes with fewer than period values are Undefined. A
// non-positive period yields an all-Undefined series.
func MovingAverage(prices []float64, period int) []Value {
	result := make([]Value, len(prices))
	for i := range prices {
		if w, ok := window(prices, period, i); ok {
			result[i] = Defined(mean(w))
		}
	}
	return result
}

// BarsSinceGoldenCross returns how many bars ago short last crossed above
// long, or -1 if no cross is visible in the series. A cross at the final bar
// returns 0.
func BarsSinceGoldenCross(short, long []Value) int {
	n := len(short)
	if len(long) < n {
		n = len(long)
	}
	for i := n - 1; i > 0; i-- {
		prevS, prevL := short[i-1], long[i-1]
		curS, curL := short[i], long[i]
		if !prevS.Valid || !prevL.Valid || !curS.Valid || !curL.Valid {
			break
		}
		if prevS.V <= prevL.V && curS.V > curL.V {
			return n - 1 - i
		}
	}
	return -1
}

// ShortAboveLong reports whether the last defined short reading is above the
// last long reading.
func ShortAboveLong(short, long []Value) bool {
	s, l := last(short), last(long)
	return s.Valid && l.Valid && s.V > l.V
}
