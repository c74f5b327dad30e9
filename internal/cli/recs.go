package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/models"
	"stock-advisor/internal/store"
)

func newRecsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recs",
		Aliases: []string{"recommendations"},
		Short:   "Manage saved recommendations",
		Long:    "List, inspect, create and update saved BUY recommendations and report their performance.",
	}

	cmd.AddCommand(newRecsListCmd(app))
	cmd.AddCommand(newRecsShowCmd(app))
	cmd.AddCommand(newRecsCreateCmd(app))
	cmd.AddCommand(newRecsUpdateStatusCmd(app))
	cmd.AddCommand(newRecsRefreshCmd(app))
	cmd.AddCommand(newRecsPerformanceCmd(app))

	return cmd
}

func newRecsListCmd(app *App) *cobra.Command {
	var (
		status string
		symbol string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recommendations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			filter := store.ListFilter{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Limit: limit}
			if status != "" {
				st, ok := models.ParseStatus(status)
				if !ok {
					return apperrors.NewValidationError("status", status, "must be active, completed or stopped")
				}
				filter.Status = st
			}

			s, err := app.RecommendationStore()
			if err != nil {
				return err
			}
			recs, err := s.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if recs == nil {
					recs = []models.Recommendation{}
				}
				return output.JSON(recs)
			}
			if len(recs) == 0 {
				output.Dim("No recommendations found")
				return nil
			}

			ptrs := make([]*models.Recommendation, len(recs))
			for i := range recs {
				ptrs[i] = &recs[i]
			}
			renderRecommendations(output, ptrs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (active, completed, stopped)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "filter by symbol")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum recommendations to show (0 = all)")
	return cmd
}

func renderRecommendations(output *Output, recs []*models.Recommendation) {
	table := NewTable(output, "ID", "SYMBOL", "STATUS", "ENTRY", "CURRENT", "TARGET", "STOP", "GAIN", "CONF", "CREATED")
	for _, r := range recs {
		table.AddRow(
			ShortID(r.ID),
			r.Symbol,
			output.Status(r.Status),
			FormatPrice(r.RecommendedPrice),
			FormatPrice(r.CurrentPrice),
			priceOrDash(r.TargetPrice),
			priceOrDash(r.StopLoss),
			output.FormatGain(r.Gain()),
			FormatConfidence(r.Confidence),
			FormatDate(r.CreatedAt),
		)
	}
	table.Render()
}

func priceOrDash(p float64) string {
	if p <= 0 {
		return "-"
	}
	return FormatPrice(p)
}

func newRecsShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recommendation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			s, err := app.RecommendationStore()
			if err != nil {
				return err
			}
			rec, err := resolveRecommendation(cmd.Context(), s, args[0])
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(rec)
			}
			showRecommendation(output, rec)
			return nil
		},
	}
}

func showRecommendation(output *Output, r *models.Recommendation) {
	lines := []string{
		fmt.Sprintf("Status:      %s", output.Status(r.Status)),
		fmt.Sprintf("Entry:       %s", FormatVND(r.RecommendedPrice)),
		fmt.Sprintf("Current:     %s (%s)", FormatVND(r.CurrentPrice), output.FormatGain(r.Gain())),
		fmt.Sprintf("Target:      %s", priceOrDash(r.TargetPrice)),
		fmt.Sprintf("Stop Loss:   %s", priceOrDash(r.StopLoss)),
		fmt.Sprintf("Confidence:  %s", FormatConfidence(r.Confidence)),
		fmt.Sprintf("Created:     %s", FormatDateTime(r.CreatedAt)),
		fmt.Sprintf("Updated:     %s", FormatDateTime(r.UpdatedAt)),
	}
	output.Box(fmt.Sprintf("%s  %s", r.Symbol, output.DimText(r.ID)), lines)

	output.Println()
	output.Bold("Signal")
	output.Printf("  %s\n", r.AISignal)

	sections := []struct {
		title string
		items []string
	}{
		{"Technical Analysis", r.TechnicalAnalysis},
		{"Fundamental Analysis", r.FundamentalAnalysis},
		{"Risks", r.Risks},
		{"Opportunities", r.Opportunities},
	}
	for _, sec := range sections {
		if len(sec.items) == 0 {
			continue
		}
		output.Println()
		output.Bold(sec.title)
		for _, item := range sec.items {
			output.Printf("  • %s\n", item)
		}
	}
}

// resolveRecommendation finds a recommendation by full ID or unique prefix.
func resolveRecommendation(ctx context.Context, s store.RecommendationStore, id string) (*models.Recommendation, error) {
	rec, err := s.Get(ctx, id)
	if err == nil || !errors.Is(err, apperrors.ErrNotFound) {
		return rec, err
	}

	recs, listErr := s.List(ctx, store.ListFilter{})
	if listErr != nil {
		return nil, listErr
	}
	var match *models.Recommendation
	for i := range recs {
		if strings.HasPrefix(recs[i].ID, id) {
			if match != nil {
				return nil, apperrors.NewValidationError("id", id, "matches more than one recommendation")
			}
			match = &recs[i]
		}
	}
	if match == nil {
		return nil, err
	}
	return match, nil
}

func newRecsCreateCmd(app *App) *cobra.Command {
	var (
		rec           models.Recommendation
		current       float64
		technical     []string
		fundamental   []string
		risks         []string
		opportunities []string
	)

	cmd := &cobra.Command{
		Use:   "create <symbol>",
		Short: "Save a recommendation manually",
		Example: `  advisor recs create FPT --price 125400 --target 140000 --stop 116000 \
    --confidence 75 --signal "Xu hướng tăng, khuyến nghị mua"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			rec.Symbol = args[0]
			rec.CurrentPrice = current
			if !cmd.Flags().Changed("current") {
				rec.CurrentPrice = rec.RecommendedPrice
			}
			rec.TechnicalAnalysis = technical
			rec.FundamentalAnalysis = fundamental
			rec.Risks = risks
			rec.Opportunities = opportunities

			s, err := app.RecommendationStore()
			if err != nil {
				return err
			}
			if err := s.Create(cmd.Context(), &rec); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(rec)
			}
			output.Success("✓ Recommendation %s saved for %s", ShortID(rec.ID), rec.Symbol)
			return nil
		},
	}

	cmd.Flags().Float64Var(&rec.RecommendedPrice, "price", 0, "recommended entry price (required)")
	cmd.Flags().Float64Var(&current, "current", 0, "current price (default: entry price)")
	cmd.Flags().Float64Var(&rec.TargetPrice, "target", 0, "target price")
	cmd.Flags().Float64Var(&rec.StopLoss, "stop", 0, "stop-loss price")
	cmd.Flags().Float64Var(&rec.Confidence, "confidence", 0, "confidence 0-100 (required)")
	cmd.Flags().StringVar(&rec.AISignal, "signal", "", "signal summary (required)")
	cmd.Flags().StringArrayVar(&technical, "technical", nil, "technical analysis point (repeatable)")
	cmd.Flags().StringArrayVar(&fundamental, "fundamental", nil, "fundamental analysis point (repeatable)")
	cmd.Flags().StringArrayVar(&risks, "risk", nil, "risk (repeatable)")
	cmd.Flags().StringArrayVar(&opportunities, "opportunity", nil, "opportunity (repeatable)")
	return cmd
}

func newRecsUpdateStatusCmd(app *App) *cobra.Command {
	var (
		price  float64
		status string
	)

	cmd := &cobra.Command{
		Use:   "update-status <id>",
		Short: "Record a price and update the status",
		Long: `Record a new current price for a recommendation. Without --status the status
is derived from the target and stop-loss; the stop-loss wins when both are
crossed. Completed and stopped recommendations never change status.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			var explicit *models.RecommendationStatus
			if status != "" {
				st, ok := models.ParseStatus(status)
				if !ok {
					return apperrors.NewValidationError("status", status, "must be active, completed or stopped")
				}
				explicit = &st
			}

			s, err := app.RecommendationStore()
			if err != nil {
				return err
			}
			rec, err := resolveRecommendation(cmd.Context(), s, args[0])
			if err != nil {
				return err
			}
			before := rec.Status

			updated, err := s.UpdateStatus(cmd.Context(), rec.ID, price, explicit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(updated)
			}
			if updated.Status != before {
				output.Success("✓ %s %s: %s → %s at %s", updated.Symbol, ShortID(updated.ID),
					before, updated.Status, FormatPrice(updated.CurrentPrice))
			} else {
				output.Info("%s %s: %s at %s (%s)", updated.Symbol, ShortID(updated.ID),
					updated.Status, FormatPrice(updated.CurrentPrice), output.FormatGain(updated.Gain()))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&price, "price", 0, "current price (required)")
	cmd.Flags().StringVar(&status, "status", "", "explicit status (active, completed, stopped)")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newRecsRefreshCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh active recommendations with live prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			tracker, err := app.tracker()
			if err != nil {
				return err
			}
			report, err := tracker.RefreshAll(cmd.Context())
			if err != nil {
				return err
			}

			if output.IsJSON() {
				failures := make(map[string]string, len(report.Failures))
				for symbol, ferr := range report.Failures {
					failures[symbol] = ferr.Error()
				}
				return output.JSON(map[string]interface{}{
					"report":   report,
					"failures": failures,
				})
			}

			output.Info("Refreshed %d recommendations across %d symbols in %s",
				report.Updated, report.Symbols, FormatDuration(report.Duration))
			for _, c := range report.Changes {
				line := fmt.Sprintf("%s %s: %s → %s at %s", c.Symbol, ShortID(c.ID), c.From, c.To, FormatPrice(c.Price))
				if c.To == models.StatusCompleted {
					output.Success("✓ %s", line)
				} else {
					output.Warning("✗ %s", line)
				}
			}
			for symbol, ferr := range report.Failures {
				output.Error("%s: %v", symbol, ferr)
			}
			return nil
		},
	}
}

func newRecsPerformanceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "performance",
		Short: "Show recommendation performance",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			s, err := app.RecommendationStore()
			if err != nil {
				return err
			}
			m, err := s.ComputePerformance(cmd.Context())
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(m)
			}
			if m.Total == 0 {
				output.Dim("No recommendations yet")
				return nil
			}

			output.Box("Recommendation Performance", []string{
				fmt.Sprintf("Total:          %d", m.Total),
				fmt.Sprintf("Active:         %d", m.Active),
				fmt.Sprintf("Completed:      %d", m.Completed),
				fmt.Sprintf("Stopped:        %d", m.Stopped),
				fmt.Sprintf("Win Rate:       %.1f%%", m.WinRate*100),
				fmt.Sprintf("Avg Realized:   %s", output.FormatGain(m.AvgRealizedGain)),
				fmt.Sprintf("Best / Worst:   %s / %s", output.FormatGain(m.BestRealizedGain), output.FormatGain(m.WorstRealizedGain)),
				fmt.Sprintf("Avg Open Gain:  %s", output.FormatGain(m.AvgOpenGain)),
				fmt.Sprintf("Avg Confidence: %s", FormatConfidence(m.AvgConfidence)),
			})
			return nil
		},
	}
}
