package pipeline

import (
	"fmt"
	"sort"
	"time"

	"stock-advisor/internal/agents"
	"stock-advisor/internal/analysis/indicators"
	"stock-advisor/internal/analysis/screening"
	"stock-advisor/internal/models"
)

// SkipReason explains why a symbol produced no analysis.
type SkipReason string

const (
	SkipDataUnavailable    SkipReason = "data_unavailable"
	SkipBackendUnavailable SkipReason = "backend_unavailable"
	SkipFiltered           SkipReason = "filtered"
	SkipPersistenceFailed  SkipReason = "persistence_failed"
	SkipBudgetExhausted    SkipReason = "budget_exhausted"
	SkipCancelled          SkipReason = "cancelled"
	SkipInternal           SkipReason = "internal_error"
)

// Transient reports whether a later attempt may succeed.
func (r SkipReason) Transient() bool {
	return r == SkipDataUnavailable || r == SkipBackendUnavailable
}

// SymbolResult is the outcome for one symbol. Skip is empty on success.
type SymbolResult struct {
	Symbol         string                 `json:"symbol"`
	Snapshot       *indicators.Snapshot   `json:"snapshot,omitempty"`
	Analysis       *agents.Analysis       `json:"analysis,omitempty"`
	Screen         *screening.Result      `json:"screen,omitempty"`
	Recommendation *models.Recommendation `json:"recommendation,omitempty"`
	Skip           SkipReason             `json:"skip,omitempty"`
	Detail         string                 `json:"detail,omitempty"`
	Err            error                  `json:"-"`
	Duration       time.Duration          `json:"duration"`

	calledAI bool
}

// OK reports whether the symbol was analyzed without a skip.
func (r SymbolResult) OK() bool {
	return r.Skip == ""
}

// BatchReport partitions the per-symbol results of one run.
type BatchReport struct {
	Analyses        []SymbolResult           `json:"analyses"`
	Skipped         []SymbolResult           `json:"skipped"`
	Recommendations []*models.Recommendation `json:"recommendations"`
	SkipCounts      map[SkipReason]int       `json:"skipCounts"`
	AICalls         int                      `json:"aiCalls"`
	Duration        time.Duration            `json:"duration"`
}

// SkippedCount returns the number of symbols without an analysis.
func (r *BatchReport) SkippedCount() int {
	return len(r.Skipped)
}

// SkippedFor returns the skipped symbols with reason.
func (r *BatchReport) SkippedFor(reason SkipReason) []string {
	var out []string
	for _, res := range r.Skipped {
		if res.Skip == reason {
			out = append(out, res.Symbol)
		}
	}
	return out
}

// partition splits results into successes and skips, ordered by symbol.
func partition(results []SymbolResult) *BatchReport {
	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })

	report := &BatchReport{SkipCounts: make(map[SkipReason]int)}
	for _, res := range results {
		if res.Recommendation != nil {
			report.Recommendations = append(report.Recommendations, res.Recommendation)
		}
		if res.OK() {
			report.Analyses = append(report.Analyses, res)
			continue
		}
		report.Skipped = append(report.Skipped, res)
		report.SkipCounts[res.Skip]++
	}
	return report
}

// String summarizes the report in one line.
func (r *BatchReport) String() string {
	return fmt.Sprintf("%d analyzed, %d skipped, %d recommendations",
		len(r.Analyses), r.SkippedCount(), len(r.Recommendations))
}

// Retryable returns the symbols skipped for a transient reason.
func (r *BatchReport) Retryable() []string {
	var out []string
	for _, res := range r.Skipped {
		if res.Skip.Transient() {
			out = append(out, res.Symbol)
		}
	}
	return out
}

// Merge replaces the outcomes of every symbol present in retry.
func (r *BatchReport) Merge(retry *BatchReport) {
	if retry == nil {
		return
	}
	retried := make(map[string]bool)
	var results []SymbolResult
	for _, res := range append(append([]SymbolResult{}, retry.Analyses...), retry.Skipped...) {
		retried[res.Symbol] = true
		results = append(results, res)
	}
	for _, res := range append(append([]SymbolResult{}, r.Analyses...), r.Skipped...) {
		if !retried[res.Symbol] {
			results = append(results, res)
		}
	}

	merged := partition(results)
	merged.AICalls = r.AICalls + retry.AICalls
	merged.Duration = r.Duration + retry.Duration
	*r = *merged
}
