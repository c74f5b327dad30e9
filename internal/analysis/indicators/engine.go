// Package indicators provides technical indicator calculations.
package indicators

import (
	"stock-advisor/internal/models"
)

// Engine builds indicator snapshots with a fixed configuration. Callers
// fan out across symbols; an Engine is safe for concurrent use.
type Engine struct {
	config SnapshotConfig
}

// NewEngine creates an indicator engine.
func NewEngine(cfg SnapshotConfig) *Engine {
	return &Engine{config: cfg}
}

// Config returns the engine's snapshot configuration.
func (e *Engine) Config() SnapshotConfig {
	return e.config
}

// Snapshot computes the snapshot for a single series.
func (e *Engine) Snapshot(bars []models.PriceBar) (*Snapshot, error) {
	return BuildSnapshot(bars, e.config)
}
