package indicators

import (
	"stock-advisor/internal/models"
)

// Range is a high/low pair.
type Range struct {
	High Value `json:"high"`
	Low  Value `json:"low"`
}

// week52 is the 52-week lookback measured in days.
const week52 = 52 * 7

// Week52Range returns the highest high and lowest low over the 52 weeks
// ending at the last bar. Bars with a zero high or low fall back to close.
func Week52Range(bars []models.PriceBar) Range {
	if len(bars) == 0 {
		return Range{}
	}
	cutoff := bars[len(bars)-1].Date.AddDate(0, 0, -week52)

	var r Range
	for _, b := range bars {
		if b.Date.Before(cutoff) {
			continue
		}
		high, low := b.High, b.Low
		if high == 0 {
			high = b.Close
		}
		if low == 0 {
			low = b.Close
		}
		if !r.High.Valid || high > r.High.V {
			r.High = Defined(high)
		}
		if !r.Low.Valid || low < r.Low.V {
			r.Low = Defined(low)
		}
	}
	return r
}
