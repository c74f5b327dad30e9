package models

import (
	"math"
	"strings"
	"time"

	apperrors "stock-advisor/internal/errors"
)

// RecommendationStatus represents the lifecycle state of a recommendation.
type RecommendationStatus string

const (
	StatusActive    RecommendationStatus = "active"
	StatusCompleted RecommendationStatus = "completed"
	StatusStopped   RecommendationStatus = "stopped"
)

// IsTerminal reports whether the status can no longer change.
func (s RecommendationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusStopped
}

// Valid reports whether s is a known status.
func (s RecommendationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusStopped:
		return true
	}
	return false
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (RecommendationStatus, bool) {
	st := RecommendationStatus(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}

// Recommendation is a persisted BUY call tracked until it resolves.
type Recommendation struct {
	ID                  string               `json:"id"`
	Symbol              string               `json:"symbol"`
	RecommendedPrice    float64              `json:"recommendedPrice"`
	CurrentPrice        float64              `json:"currentPrice"`
	TargetPrice         float64              `json:"targetPrice"`
	StopLoss            float64              `json:"stopLoss"`
	Confidence          float64              `json:"confidence"`
	AISignal            string               `json:"aiSignal"`
	TechnicalAnalysis   []string             `json:"technicalAnalysis"`
	FundamentalAnalysis []string             `json:"fundamentalAnalysis"`
	Risks               []string             `json:"risks"`
	Opportunities       []string             `json:"opportunities"`
	Status              RecommendationStatus `json:"status"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

// Validate checks the fields required to create a recommendation.
// Zero prices and confidence count as missing.
func (r *Recommendation) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return apperrors.NewValidationError("symbol", r.Symbol, "is required")
	}
	if !(r.RecommendedPrice > 0) {
		return apperrors.NewValidationError("recommended_price", r.RecommendedPrice, "is required and must be positive")
	}
	if !(r.CurrentPrice > 0) {
		return apperrors.NewValidationError("current_price", r.CurrentPrice, "is required and must be positive")
	}
	if math.IsNaN(r.Confidence) || r.Confidence <= 0 {
		return apperrors.NewValidationError("confidence", r.Confidence, "is required")
	}
	if r.Confidence > 100 {
		return apperrors.NewValidationError("confidence", r.Confidence, "must be between 0 and 100")
	}
	if strings.TrimSpace(r.AISignal) == "" {
		return apperrors.NewValidationError("ai_signal", r.AISignal, "is required")
	}
	if r.TargetPrice < 0 {
		return apperrors.NewValidationError("target_price", r.TargetPrice, "must not be negative")
	}
	if r.StopLoss < 0 {
		return apperrors.NewValidationError("stop_loss", r.StopLoss, "must not be negative")
	}
	return nil
}

// DeriveStatus returns the status implied by price. Terminal records keep
// their status. When a single price crosses both thresholds the stop-loss
// wins. A zero target or stop-loss disables that side of the check.
func (r *Recommendation) DeriveStatus(price float64) RecommendationStatus {
	if r.Status.IsTerminal() {
		return r.Status
	}
	if r.StopLoss > 0 && price <= r.StopLoss {
		return StatusStopped
	}
	if r.TargetPrice > 0 && price >= r.TargetPrice {
		return StatusCompleted
	}
	return r.Status
}

// Transition validates a move from the current status to next.
func (r *Recommendation) Transition(next RecommendationStatus) error {
	if !next.Valid() {
		return apperrors.NewValidationError("status", next, "unknown status")
	}
	if next == r.Status {
		return nil
	}
	if r.Status.IsTerminal() {
		return apperrors.Wrapf(apperrors.ErrInvalidTransition, "%s is terminal, cannot move to %s", r.Status, next)
	}
	r.Status = next
	return nil
}

// Gain returns (current - recommended) / recommended.
func (r *Recommendation) Gain() float64 {
	if r.RecommendedPrice == 0 {
		return 0
	}
	return (r.CurrentPrice - r.RecommendedPrice) / r.RecommendedPrice
}
