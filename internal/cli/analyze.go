package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stock-advisor/internal/pipeline"
	"stock-advisor/internal/scheduler"
)

// retryInitialInterval is the first wait before re-running skipped symbols.
var retryInitialInterval = 5 * time.Second

func newAnalyzeCmd(app *App) *cobra.Command {
	var (
		retries     int
		maxAICalls  int
		concurrency int
		noFilter    bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [symbols...]",
		Short: "Analyze symbols and save BUY recommendations",
		Long: `Analyze symbols with technical indicators, the fundamental pre-filter and the
generative model. BUY signals at or above the configured confidence with a
price target are saved as recommendations.

Without arguments the configured watchlist is analyzed.`,
		Example: `  advisor analyze FPT HPG VNM
  advisor analyze --retries 2 --max-ai-calls 10
  advisor analyze MWG --no-filter --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			symbols := pipeline.NormalizeSymbols(args)
			if len(symbols) == 0 {
				symbols = pipeline.NormalizeSymbols(app.Config.Pipeline.Watchlist)
			}
			if len(symbols) == 0 {
				return fmt.Errorf("no symbols given and the watchlist is empty")
			}

			orch, err := app.orchestrator(orchestratorOptions{
				NoFilter:    noFilter,
				DryRun:      dryRun,
				Concurrency: concurrency,
			})
			if err != nil {
				return err
			}

			limit := app.Config.Pipeline.MaxAICalls
			if cmd.Flags().Changed("max-ai-calls") {
				limit = maxAICalls
			}
			budget := pipeline.NewCallBudget(limit)

			if !output.IsJSON() {
				output.Info("Analyzing %d symbols...", len(symbols))
			}
			report := runWithRetries(cmd.Context(), orch, symbols, budget, retries, app.Logger)

			if output.IsJSON() {
				return output.JSON(report)
			}
			renderBatchReport(output, report, dryRun)
			return nil
		},
	}

	cmd.Flags().IntVar(&retries, "retries", 0, "re-run symbols skipped for unavailable data or backend up to N times")
	cmd.Flags().IntVar(&maxAICalls, "max-ai-calls", 0, "maximum AI calls for this run (0 = unlimited)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "symbols analyzed in parallel (default from config)")
	cmd.Flags().BoolVar(&noFilter, "no-filter", false, "skip the fundamental and trend pre-filter")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "analyze without saving recommendations")

	return cmd
}

// runWithRetries runs the batch, then re-runs symbols skipped for transient
// reasons with exponential backoff. The budget is shared by every attempt.
func runWithRetries(ctx context.Context, runner scheduler.BatchRunner, symbols []string, budget *pipeline.CallBudget, retries int, logger zerolog.Logger) *pipeline.BatchReport {
	var report *pipeline.BatchReport
	pending := symbols

	operation := func() error {
		result := runner.Run(ctx, pending, budget)
		if report == nil {
			report = result
		} else {
			report.Merge(result)
		}

		pending = report.Retryable()
		if len(pending) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return fmt.Errorf("%d symbols skipped for transient reasons", len(pending))
	}

	if retries <= 0 {
		_ = operation()
		return report
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)

	notify := func(err error, wait time.Duration) {
		logger.Warn().Err(err).Strs("symbols", pending).Dur("wait", wait).Msg("Retrying skipped symbols")
	}
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		logger.Debug().Err(err).Msg("Retries exhausted")
	}
	return report
}

func renderBatchReport(output *Output, report *pipeline.BatchReport, dryRun bool) {
	output.Println()
	if len(report.Analyses) > 0 {
		output.Bold("Signals")
		table := NewTable(output, "SYMBOL", "SIGNAL", "CONF", "PRICE", "SOURCE", "SUMMARY")
		for _, res := range report.Analyses {
			a := res.Analysis
			price := "-"
			if res.Snapshot != nil {
				price = FormatPrice(res.Snapshot.CurrentPrice)
			}
			table.AddRow(
				res.Symbol,
				output.Signal(a.Signal.Type),
				FormatConfidence(a.Signal.Confidence),
				price,
				output.SourceTag(a.Source),
				TruncateString(a.Signal.Summary, 60),
			)
		}
		table.Render()
		output.Println()
	}

	if len(report.Recommendations) > 0 {
		output.Bold("Saved Recommendations")
		renderRecommendations(output, report.Recommendations)
		output.Println()
	} else if dryRun {
		output.Dim("Dry run: no recommendations saved")
	}

	if len(report.Skipped) > 0 {
		output.Bold("Skipped")
		table := NewTable(output, "SYMBOL", "REASON", "DETAIL")
		for _, res := range report.Skipped {
			table.AddRow(res.Symbol, output.Yellow(string(res.Skip)), TruncateString(res.Detail, 80))
		}
		table.Render()
		output.Println()
	}

	output.Dim("%s · %d AI calls · %s", report.String(), report.AICalls, FormatDuration(report.Duration))
}

func newScreenCmd(app *App) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "screen [symbols...]",
		Short: "Apply the pre-filter without calling the AI",
		Long: `Fetch prices and fundamentals, compute indicators and apply the configured
trend and fundamental filters. No AI calls are made and nothing is saved.

Without arguments the configured watchlist is screened.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			symbols := pipeline.NormalizeSymbols(args)
			if len(symbols) == 0 {
				symbols = pipeline.NormalizeSymbols(app.Config.Pipeline.Watchlist)
			}
			if len(symbols) == 0 {
				return fmt.Errorf("no symbols given and the watchlist is empty")
			}

			orch, err := app.orchestrator(orchestratorOptions{NoBackend: true, Concurrency: concurrency})
			if err != nil {
				return err
			}
			results := orch.Screen(cmd.Context(), symbols)

			if output.IsJSON() {
				return output.JSON(results)
			}

			table := NewTable(output, "SYMBOL", "RESULT", "PRICE", "TREND", "DETAIL")
			passed := 0
			for _, res := range results {
				verdict := output.Green("pass")
				switch {
				case res.Skip == pipeline.SkipFiltered:
					verdict = output.Yellow("filtered")
				case !res.OK():
					verdict = output.Red(string(res.Skip))
				default:
					passed++
				}

				price, trend := "-", "-"
				if res.Snapshot != nil {
					price = FormatPrice(res.Snapshot.CurrentPrice)
					trend = "MA short < long"
					if res.Snapshot.Trend.ShortAboveLong {
						trend = "MA short > long"
					}
				}
				table.AddRow(res.Symbol, verdict, price, trend, TruncateString(res.Detail, 70))
			}
			table.Render()
			output.Println()
			output.Dim("%d of %d symbols passed", passed, len(results))
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "symbols screened in parallel (default from config)")
	return cmd
}
