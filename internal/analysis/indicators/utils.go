package indicators

import (
	"encoding/json"
	"errors"
	"math"
)

var (
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
	// ErrZeroBasePrice is returned when a percentage change would divide by a zero price.
	ErrZeroBasePrice = errors.New("historical base price is zero")
)

// Value is an indicator reading that may be undefined. An undefined reading
// is distinct from a real zero.
type Value struct {
	V     float64
	Valid bool
}

// Defined returns a valid reading of v.
func Defined(v float64) Value {
	return Value{V: v, Valid: true}
}

// Undefined is the marker for readings without enough history.
var Undefined = Value{}

// Float returns the reading and whether it is defined.
func (v Value) Float() (float64, bool) {
	return v.V, v.Valid
}

// MarshalJSON encodes undefined readings as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.V)
}

// UnmarshalJSON decodes null as undefined.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Undefined
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Defined(f)
	return nil
}

// last returns the final element of values or Undefined.
func last(values []Value) Value {
	if len(values) == 0 {
		return Undefined
	}
	return values[len(values)-1]
}

// sum calculates the sum of a slice of float64.
func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// mean calculates the arithmetic mean of a slice of float64.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// stdDev calculates the population standard deviation of a slice of float64.
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// window returns values[index-period+1 : index+1] or false when out of range.
func window(values []float64, period, index int) ([]float64, bool) {
	if period <= 0 || index < period-1 || index >= len(values) {
		return nil, false
	}
	return values[index-period+1 : index+1], true
}
