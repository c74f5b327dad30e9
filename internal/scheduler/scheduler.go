// Package scheduler runs recommendation refreshes and watchlist analysis on
// cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"stock-advisor/internal/pipeline"
	"stock-advisor/internal/store"
)

// Refresher refreshes active recommendations.
type Refresher interface {
	RefreshAll(ctx context.Context) (*store.RefreshReport, error)
}

// BatchRunner analyzes a list of symbols.
type BatchRunner interface {
	Run(ctx context.Context, symbols []string, budget *pipeline.CallBudget) *pipeline.BatchReport
}

// Config configures the scheduler.
type Config struct {
	RefreshCron string
	AnalyzeCron string
	Location    *time.Location
	Watchlist   []string
	// MaxAICalls caps backend calls per scheduled analysis run (0 = unlimited).
	MaxAICalls int
	// JobTimeout bounds one job run.
	JobTimeout time.Duration
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	runner    BatchRunner
	config    Config
	logger    zerolog.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	onReport func(any)
}

// New creates a scheduler. Either refresher or runner may be nil to disable
// the matching job.
func New(cfg Config, refresher Refresher, runner BatchRunner, logger zerolog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	log := logger.With().Str("component", "scheduler").Logger()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
		),
		refresher: refresher,
		runner:    runner,
		config:    cfg,
		logger:    log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnReport registers a callback receiving every *store.RefreshReport and
// *pipeline.BatchReport produced by a job.
func (s *Scheduler) OnReport(fn func(any)) {
	s.mu.Lock()
	s.onReport = fn
	s.mu.Unlock()
}

// RegisterAll registers the refresh and analysis jobs.
func (s *Scheduler) RegisterAll() error {
	registered := 0
	if s.config.RefreshCron != "" && s.refresher != nil {
		if _, err := s.cron.AddFunc(s.config.RefreshCron, s.refreshTask); err != nil {
			return fmt.Errorf("register refresh task: %w", err)
		}
		registered++
	}
	if s.config.AnalyzeCron != "" && s.runner != nil && len(s.config.Watchlist) > 0 {
		if _, err := s.cron.AddFunc(s.config.AnalyzeCron, s.analyzeTask); err != nil {
			return fmt.Errorf("register analyze task: %w", err)
		}
		registered++
	}
	if registered == 0 {
		return fmt.Errorf("no jobs to schedule")
	}
	return nil
}

// Entries returns the next run time of each registered job.
func (s *Scheduler) Entries() []time.Time {
	var next []time.Time
	for _, e := range s.cron.Entries() {
		next = append(next, e.Next)
	}
	return next
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().
		Str("refresh_cron", s.config.RefreshCron).
		Str("analyze_cron", s.config.AnalyzeCron).
		Str("location", s.config.Location.String()).
		Msg("Scheduler started")
}

// Stop stops the scheduler, cancels running jobs and waits for them.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// RunRefreshNow executes the refresh job immediately.
func (s *Scheduler) RunRefreshNow() {
	s.refreshTask()
}

// RunAnalyzeNow executes the analysis job immediately.
func (s *Scheduler) RunAnalyzeNow() {
	s.analyzeTask()
}

func (s *Scheduler) refreshTask() {
	if s.refresher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.config.JobTimeout)
	defer cancel()

	s.logger.Info().Msg("Running refresh task")
	report, err := s.refresher.RefreshAll(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Refresh task failed")
		return
	}
	s.emit(report)
}

func (s *Scheduler) analyzeTask() {
	if s.runner == nil || len(s.config.Watchlist) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.config.JobTimeout)
	defer cancel()

	s.logger.Info().Int("symbols", len(s.config.Watchlist)).Msg("Running analyze task")
	report := s.runner.Run(ctx, s.config.Watchlist, pipeline.NewCallBudget(s.config.MaxAICalls))
	s.emit(report)
}

func (s *Scheduler) emit(report any) {
	s.mu.Lock()
	fn := s.onReport
	s.mu.Unlock()
	if fn != nil {
		fn(report)
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
