package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"stock-advisor/internal/pipeline"
	"stock-advisor/internal/scheduler"
	"stock-advisor/internal/store"
)

func newScheduleCmd(app *App) *cobra.Command {
	var (
		runNow    bool
		noAnalyze bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run refresh and analysis jobs on their cron schedules",
		Long: `Run in the foreground, refreshing active recommendations and analyzing the
watchlist on the cron expressions in the [schedule] section. Stops on
interrupt; running jobs are cancelled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			tracker, err := app.tracker()
			if err != nil {
				return err
			}

			var runner scheduler.BatchRunner
			if !noAnalyze && app.Config.Schedule.AnalyzeCron != "" {
				orch, err := app.orchestrator(orchestratorOptions{})
				if err != nil {
					return err
				}
				runner = orch
			}

			sched := scheduler.New(scheduler.Config{
				RefreshCron: app.Config.Schedule.RefreshCron,
				AnalyzeCron: app.Config.Schedule.AnalyzeCron,
				Location:    app.Config.Location(),
				Watchlist:   app.Config.Pipeline.Watchlist,
				MaxAICalls:  app.Config.Pipeline.MaxAICalls,
			}, tracker, runner, app.Logger)
			var mu sync.Mutex
			sched.OnReport(func(report any) {
				mu.Lock()
				defer mu.Unlock()
				printJobReport(output, report)
			})

			if err := sched.RegisterAll(); err != nil {
				return fmt.Errorf("scheduling jobs: %w", err)
			}

			sched.Start()
			if !output.IsJSON() {
				output.Success("✓ Scheduler started (%s)", app.Config.Location())
				for _, next := range sched.Entries() {
					output.Dim("  next run: %s", FormatDateTime(next))
				}
			}

			if runNow {
				sched.RunRefreshNow()
				sched.RunAnalyzeNow()
			}

			<-cmd.Context().Done()
			sched.Stop()
			if !output.IsJSON() {
				output.Info("Scheduler stopped")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&runNow, "now", false, "run every job once immediately")
	cmd.Flags().BoolVar(&noAnalyze, "refresh-only", false, "only refresh recommendations, never analyze")
	return cmd
}

func printJobReport(output *Output, report any) {
	if output.IsJSON() {
		_ = output.JSON(report)
		return
	}
	stamp := output.DimText(FormatDateTime(time.Now()))
	switch r := report.(type) {
	case *store.RefreshReport:
		output.Printf("%s refresh: %d updated, %d status changes, %d failures\n",
			stamp, r.Updated, len(r.Changes), len(r.Failures))
	case *pipeline.BatchReport:
		output.Printf("%s analyze: %s\n", stamp, r.String())
	}
}
