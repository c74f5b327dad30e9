package models

import (
	"fmt"
	"math"
	"strings"
)

// SignalType represents the direction of a trading signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// signalAliases maps normalized spellings onto signal types.
var signalAliases = map[string]SignalType{
	"BUY":         SignalBuy,
	"STRONG BUY":  SignalBuy,
	"MUA":         SignalBuy,
	"SELL":        SignalSell,
	"STRONG SELL": SignalSell,
	"BÁN":         SignalSell,
	"BAN":         SignalSell,
	"HOLD":        SignalHold,
	"NEUTRAL":     SignalHold,
	"GIỮ":         SignalHold,
	"NẮM GIỮ":     SignalHold,
	"THEO DÕI":    SignalHold,
}

// ParseSignalType case-normalizes s into a SignalType.
func ParseSignalType(s string) (SignalType, bool) {
	key := strings.ToUpper(strings.Join(strings.Fields(s), " "))
	key = strings.Trim(key, ".!\"'")
	t, ok := signalAliases[key]
	return t, ok
}

// Signal is the normalized output of one analysis.
type Signal struct {
	Type       SignalType `json:"signalType"`
	Confidence float64    `json:"confidence"`
	Summary    string     `json:"summary"`
}

// Validate checks the signal contract.
func (s Signal) Validate() error {
	switch s.Type {
	case SignalBuy, SignalSell, SignalHold:
	default:
		return fmt.Errorf("unknown signal type %q", s.Type)
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 100 {
		return fmt.Errorf("confidence must be between 0 and 100, got %f", s.Confidence)
	}
	if strings.TrimSpace(s.Summary) == "" {
		return fmt.Errorf("summary is required")
	}
	return nil
}

// ClampConfidence ensures confidence is within valid range [0, 100].
// NaN maps to 0.
func ClampConfidence(confidence float64) float64 {
	if math.IsNaN(confidence) || confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}
