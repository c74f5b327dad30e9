package models

// PerformanceMetrics aggregates recommendation outcomes. It is always derived
// from the stored recommendations and never persisted.
type PerformanceMetrics struct {
	Total             int     `json:"total"`
	Active            int     `json:"active"`
	Completed         int     `json:"completed"`
	Stopped           int     `json:"stopped"`
	WinRate           float64 `json:"winRate"`         // completed / (completed + stopped)
	AvgRealizedGain   float64 `json:"avgRealizedGain"` // fraction, terminal records only
	BestRealizedGain  float64 `json:"bestRealizedGain"`
	WorstRealizedGain float64 `json:"worstRealizedGain"`
	AvgOpenGain       float64 `json:"avgOpenGain"` // fraction, active records only
	AvgConfidence     float64 `json:"avgConfidence"`
}

// ComputePerformance derives metrics from recs without modifying them.
func ComputePerformance(recs []Recommendation) PerformanceMetrics {
	var m PerformanceMetrics
	var realizedSum, openSum, confSum float64
	first := true

	for i := range recs {
		r := &recs[i]
		m.Total++
		confSum += r.Confidence

		switch r.Status {
		case StatusActive:
			m.Active++
			openSum += r.Gain()
			continue
		case StatusCompleted:
			m.Completed++
		case StatusStopped:
			m.Stopped++
		default:
			continue
		}

		g := r.Gain()
		realizedSum += g
		if first || g > m.BestRealizedGain {
			m.BestRealizedGain = g
		}
		if first || g < m.WorstRealizedGain {
			m.WorstRealizedGain = g
		}
		first = false
	}

	terminal := m.Completed + m.Stopped
	if terminal > 0 {
		m.WinRate = float64(m.Completed) / float64(terminal)
		m.AvgRealizedGain = realizedSum / float64(terminal)
	}
	if m.Active > 0 {
		m.AvgOpenGain = openSum / float64(m.Active)
	}
	if m.Total > 0 {
		m.AvgConfidence = confSum / float64(m.Total)
	}
	return m
}
