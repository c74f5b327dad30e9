// Package store provides recommendation persistence and lifecycle tracking.
package store

import (
	"context"
	"sync"

	"stock-advisor/internal/models"
)

// RecommendationStore defines the interface for recommendation persistence.
// It exclusively owns writes to recommendations; updates to one id are
// serialized while distinct ids proceed concurrently.
type RecommendationStore interface {
	// Create validates rec, assigns an ID when missing and inserts it as active.
	Create(ctx context.Context, rec *models.Recommendation) error
	Get(ctx context.Context, id string) (*models.Recommendation, error)
	List(ctx context.Context, filter ListFilter) ([]models.Recommendation, error)

	// RefreshPrice records a new current price without touching status.
	RefreshPrice(ctx context.Context, id string, price float64) (*models.Recommendation, error)
	// UpdateStatus records price and applies status, or derives it from the
	// thresholds when status is nil. Terminal records never change status.
	UpdateStatus(ctx context.Context, id string, price float64, status *models.RecommendationStatus) (*models.Recommendation, error)

	// ComputePerformance is a pure read over all stored recommendations.
	ComputePerformance(ctx context.Context) (models.PerformanceMetrics, error)
	// ActiveSymbols returns the distinct symbols with active recommendations.
	ActiveSymbols(ctx context.Context) ([]string, error)

	Close() error
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status models.RecommendationStatus
	Symbol string
	Limit  int
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
