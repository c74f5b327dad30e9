package indicators

// VolumeStats holds the volume part of a snapshot.
type VolumeStats struct {
	Current float64 `json:"current"`
	Average Value   `json:"average"`
	Ratio   Value   `json:"ratio"`
	Period  int     `json:"period"`
}

// TrailingVolumeAverage returns the mean of the avgPeriod volumes before the
// last one. Undefined without avgPeriod+1 values.
func TrailingVolumeAverage(volumes []float64, avgPeriod int) Value {
	n := len(volumes)
	if avgPeriod <= 0 || n < avgPeriod+1 {
		return Undefined
	}
	return Defined(mean(volumes[n-1-avgPeriod : n-1]))
}

// VolumeRatio divides the current volume by its trailing average over
// avgPeriod. Undefined if history is insufficient or the average is zero.
func VolumeRatio(volumes []float64, avgPeriod int) Value {
	avg := TrailingVolumeAverage(volumes, avgPeriod)
	if !avg.Valid || avg.V == 0 {
		return Undefined
	}
	return Defined(volumes[len(volumes)-1] / avg.V)
}
