package indicators

import (
	"fmt"
	"sort"
	"time"

	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/models"
)

// SnapshotConfig selects the periods used to build a Snapshot.
type SnapshotConfig struct {
	MAShort             int     `mapstructure:"ma_short"`
	MALong              int     `mapstructure:"ma_long"`
	BollingerPeriod     int     `mapstructure:"bollinger_period"`
	BollingerMultiplier float64 `mapstructure:"bollinger_multiplier"`
	MomentumPeriods     []int   `mapstructure:"momentum_periods"`
	VolumePeriod        int     `mapstructure:"volume_period"`
}

// DefaultSnapshotConfig returns the periods used when none are configured.
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		MAShort:             20,
		MALong:              50,
		BollingerPeriod:     DefaultBollingerPeriod,
		BollingerMultiplier: DefaultBollingerMultiplier,
		MomentumPeriods:     []int{5, 20, 60},
		VolumePeriod:        20,
	}
}

// LongestPeriod returns the number of bars needed for every reading to be defined.
func (c SnapshotConfig) LongestPeriod() int {
	longest := c.MAShort
	for _, p := range []int{c.MALong, c.BollingerPeriod, c.VolumePeriod + 1} {
		if p > longest {
			longest = p
		}
	}
	for _, p := range c.MomentumPeriods {
		if p+1 > longest {
			longest = p + 1
		}
	}
	return longest
}

// TrendState describes the short/long moving average relationship.
type TrendState struct {
	ShortAboveLong bool `json:"shortAboveLong"`
	// BarsSinceGoldenCross is -1 when no cross is visible.
	BarsSinceGoldenCross int `json:"barsSinceGoldenCross"`
}

// Snapshot is the derived indicator view of a price series at its last bar.
// It is never stored.
type Snapshot struct {
	AsOf          time.Time     `json:"asOf"`
	Bars          int           `json:"bars"`
	CurrentPrice  float64       `json:"currentPrice"`
	MAShort       Value         `json:"movingAverageShort"`
	MALong        Value         `json:"movingAverageLong"`
	MAShortPeriod int           `json:"maShortPeriod"`
	MALongPeriod  int           `json:"maLongPeriod"`
	Bollinger     Band          `json:"bollinger"`
	Momentum      map[int]Value `json:"momentum"`
	Volume        VolumeStats   `json:"volume"`
	Week52        Range         `json:"week52"`
	Trend         TrendState    `json:"trend"`
}

// MomentumPeriods returns the momentum lookbacks in ascending order.
func (s *Snapshot) MomentumPeriods() []int {
	periods := make([]int, 0, len(s.Momentum))
	for p := range s.Momentum {
		periods = append(periods, p)
	}
	sort.Ints(periods)
	return periods
}

// Complete reports whether every reading is defined.
func (s *Snapshot) Complete() bool {
	if !s.MAShort.Valid || !s.MALong.Valid || !s.Bollinger.Defined() || !s.Volume.Ratio.Valid {
		return false
	}
	for _, v := range s.Momentum {
		if !v.Valid {
			return false
		}
	}
	return true
}

// BuildSnapshot computes a Snapshot from ascending, de-duplicated bars.
// Short series give a partial snapshot; an empty series is an error, as is a
// zero historical price under a momentum lookback.
func BuildSnapshot(bars []models.PriceBar, cfg SnapshotConfig) (*Snapshot, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("snapshot: %w", apperrors.ErrInsufficientData)
	}

	closes := models.ClosePrices(bars)
	vols := models.Volumes(bars)
	n := len(closes)

	maShort := MovingAverage(closes, cfg.MAShort)
	maLong := MovingAverage(closes, cfg.MALong)
	bands := BollingerBands(closes, cfg.BollingerPeriod, cfg.BollingerMultiplier)

	snap := &Snapshot{
		AsOf:          bars[n-1].Date,
		Bars:          n,
		CurrentPrice:  closes[n-1],
		MAShort:       last(maShort),
		MALong:        last(maLong),
		MAShortPeriod: cfg.MAShort,
		MALongPeriod:  cfg.MALong,
		Bollinger:     bands[n-1],
		Momentum:      make(map[int]Value, len(cfg.MomentumPeriods)),
		Volume: VolumeStats{
			Current: vols[n-1],
			Average: TrailingVolumeAverage(vols, cfg.VolumePeriod),
			Ratio:   VolumeRatio(vols, cfg.VolumePeriod),
			Period:  cfg.VolumePeriod,
		},
		Week52: Week52Range(bars),
		Trend: TrendState{
			ShortAboveLong:       ShortAboveLong(maShort, maLong),
			BarsSinceGoldenCross: BarsSinceGoldenCross(maShort, maLong),
		},
	}

	for _, p := range cfg.MomentumPeriods {
		v, err := Momentum(closes, p)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		snap.Momentum[p] = v
	}

	return snap, nil
}
