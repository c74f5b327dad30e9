package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"stock-advisor/internal/logging"
	"stock-advisor/internal/marketdata"
	"stock-advisor/internal/models"
)

// TrackerConfig configures price refreshes.
type TrackerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	QuoteTimeout time.Duration `mapstructure:"quote_timeout"`
}

// DefaultTrackerConfig returns defaults for the tracker.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{Concurrency: 4, QuoteTimeout: 15 * time.Second}
}

// StatusChange records one recommendation leaving the active state.
type StatusChange struct {
	ID     string                      `json:"id"`
	Symbol string                      `json:"symbol"`
	From   models.RecommendationStatus `json:"from"`
	To     models.RecommendationStatus `json:"to"`
	Price  float64                     `json:"price"`
}

// RefreshReport summarizes one RefreshAll run.
type RefreshReport struct {
	Symbols  int              `json:"symbols"`
	Updated  int              `json:"updated"`
	Changes  []StatusChange   `json:"changes,omitempty"`
	Failures map[string]error `json:"-"`
	Duration time.Duration    `json:"duration"`
}

// Tracker refreshes active recommendations against live quotes.
type Tracker struct {
	store  RecommendationStore
	quotes marketdata.QuoteProvider
	config TrackerConfig
	logger zerolog.Logger
}

// NewTracker creates a tracker.
func NewTracker(store RecommendationStore, quotes marketdata.QuoteProvider, cfg TrackerConfig, logger zerolog.Logger) *Tracker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Tracker{
		store:  store,
		quotes: quotes,
		config: cfg,
		logger: logger.With().Str("component", "tracker").Logger(),
	}
}

// RefreshAll fetches one price per active symbol and applies it to every
// active recommendation on that symbol. A failing symbol is reported and
// does not stop the others.
func (t *Tracker) RefreshAll(ctx context.Context) (*RefreshReport, error) {
	start := time.Now()
	active, err := t.store.List(ctx, ListFilter{Status: models.StatusActive})
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string][]models.Recommendation)
	for _, rec := range active {
		bySymbol[rec.Symbol] = append(bySymbol[rec.Symbol], rec)
	}

	report := &RefreshReport{
		Symbols:  len(bySymbol),
		Failures: make(map[string]error),
	}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(t.config.Concurrency)
	for symbol, recs := range bySymbol {
		symbol, recs := symbol, recs
		p.Go(func() {
			var (
				changes []StatusChange
				updated int
				err     error
			)
			var pc panics.Catcher
			pc.Try(func() { changes, updated, err = t.refreshSymbol(ctx, symbol, recs) })
			if r := pc.Recovered(); r != nil {
				err = fmt.Errorf("refreshing %s: %w", symbol, r.AsError())
			}

			mu.Lock()
			defer mu.Unlock()
			report.Updated += updated
			report.Changes = append(report.Changes, changes...)
			if err != nil {
				report.Failures[symbol] = err
				logging.LogSkip(t.logger, symbol, "refresh_failed", err)
			}
		})
	}
	p.Wait()

	sort.Slice(report.Changes, func(i, j int) bool {
		if report.Changes[i].Symbol != report.Changes[j].Symbol {
			return report.Changes[i].Symbol < report.Changes[j].Symbol
		}
		return report.Changes[i].ID < report.Changes[j].ID
	})
	report.Duration = time.Since(start)

	t.logger.Info().
		Int("symbols", report.Symbols).
		Int("updated", report.Updated).
		Int("changes", len(report.Changes)).
		Int("failures", len(report.Failures)).
		Dur("duration", report.Duration).
		Msg("Refresh complete")

	return report, nil
}

func (t *Tracker) refreshSymbol(ctx context.Context, symbol string, recs []models.Recommendation) ([]StatusChange, int, error) {
	qctx := ctx
	if t.config.QuoteTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, t.config.QuoteTimeout)
		defer cancel()
	}

	price, err := t.quotes.GetLatestPrice(qctx, symbol)
	if err != nil {
		return nil, 0, err
	}

	var changes []StatusChange
	updated := 0
	var firstErr error
	for _, rec := range recs {
		next, err := t.store.UpdateStatus(ctx, rec.ID, price, nil)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		updated++
		if next.Status != rec.Status {
			changes = append(changes, StatusChange{
				ID:     rec.ID,
				Symbol: symbol,
				From:   rec.Status,
				To:     next.Status,
				Price:  price,
			})
		}
	}
	return changes, updated, firstErr
}
