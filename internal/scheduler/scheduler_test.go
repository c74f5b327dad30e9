package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-advisor/internal/pipeline"
	"stock-advisor/internal/store"
)

type stubRefresher struct {
	mu    sync.Mutex
	calls int
	block bool
	err   error
}

func (r *stubRefresher) RefreshAll(ctx context.Context) (*store.RefreshReport, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &store.RefreshReport{Symbols: 2, Updated: 2}, r.err
}

type stubRunner struct {
	symbols []string
	budget  *pipeline.CallBudget
}

func (r *stubRunner) Run(ctx context.Context, symbols []string, budget *pipeline.CallBudget) *pipeline.BatchReport {
	r.symbols = symbols
	r.budget = budget
	return &pipeline.BatchReport{}
}

func TestScheduler_RegisterAll(t *testing.T) {
	s := New(Config{RefreshCron: "*/5 * * * *", AnalyzeCron: "0 9 * * 1-5", Watchlist: []string{"FPT"}},
		&stubRefresher{}, &stubRunner{}, zerolog.Nop())
	require.NoError(t, s.RegisterAll())
	assert.Len(t, s.cron.Entries(), 2)

	bad := New(Config{RefreshCron: "whenever"}, &stubRefresher{}, nil, zerolog.Nop())
	assert.Error(t, bad.RegisterAll())

	none := New(Config{AnalyzeCron: "0 9 * * *"}, nil, &stubRunner{}, zerolog.Nop())
	assert.Error(t, none.RegisterAll(), "analysis without a watchlist schedules nothing")
}

func TestScheduler_RunNow(t *testing.T) {
	refresher := &stubRefresher{}
	runner := &stubRunner{}
	s := New(Config{Watchlist: []string{"FPT", "HPG"}, MaxAICalls: 3}, refresher, runner, zerolog.Nop())

	var reports []any
	s.OnReport(func(r any) { reports = append(reports, r) })

	s.RunRefreshNow()
	s.RunAnalyzeNow()

	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, []string{"FPT", "HPG"}, runner.symbols)
	assert.Equal(t, 3, runner.budget.Remaining())
	require.Len(t, reports, 2)
	assert.IsType(t, &store.RefreshReport{}, reports[0])
	assert.IsType(t, &pipeline.BatchReport{}, reports[1])
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	refresher := &stubRefresher{block: true}
	s := New(Config{RefreshCron: "* * * * *"}, refresher, nil, zerolog.Nop())
	require.NoError(t, s.RegisterAll())
	s.Start()

	done := make(chan struct{})
	go func() {
		s.RunRefreshNow()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job not cancelled by Stop")
	}
}
