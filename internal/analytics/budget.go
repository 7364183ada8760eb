package analytics

import (
	"cmp"
	"sort"
	"time"

	"finsight/internal/models"
	"finsight/internal/window"
	"finsight/pkg/errors"
	"finsight/pkg/logger"

	"github.com/shopspring/decimal"
)

// BudgetStatus classifies actual spend against a budget
type BudgetStatus string

const (
	StatusOverBudget  BudgetStatus = "Over Budget"
	StatusUnderBudget BudgetStatus = "Under Budget"
	StatusOnTrack     BudgetStatus = "On Track"
)

// UnderBudgetRatio is the share of the budget below which spend is Under Budget
var UnderBudgetRatio = decimal.RequireFromString("0.8")

// BudgetVariance is one budget joined with its actual spend
type BudgetVariance struct {
	BudgetID         string              `json:"budget_id,omitempty"`
	Category         string              `json:"category"`
	Period           models.BudgetPeriod `json:"period"`
	StartDate        time.Time           `json:"start_date"`
	EndDate          time.Time           `json:"end_date"`
	Budgeted         decimal.Decimal     `json:"budgeted"`
	Actual           decimal.Decimal     `json:"actual"`
	Variance         decimal.Decimal     `json:"variance"`
	VariancePct      float64             `json:"variance_pct"`
	Status           BudgetStatus        `json:"status"`
	Quartile         int                 `json:"quartile"`
	TransactionCount int                 `json:"transaction_count"`
}

// BudgetSummary totals a budget variance report
type BudgetSummary struct {
	TotalBudgets       int     `json:"total_budgets"`
	OverBudget         int     `json:"over_budget"`
	UnderBudget        int     `json:"under_budget"`
	OnTrack            int     `json:"on_track"`
	AverageVariancePct float64 `json:"average_variance_pct"`
}

// BudgetVarianceReport compares every budget of a user with actual spend
type BudgetVarianceReport struct {
	Meta
	Budgets []BudgetVariance `json:"budgets"`
	Summary BudgetSummary    `json:"summary"`
}

// BudgetStatusFor classifies actual spend against budgeted
func BudgetStatusFor(actual, budgeted decimal.Decimal) BudgetStatus {
	switch {
	case actual.GreaterThan(budgeted):
		return StatusOverBudget
	case actual.LessThan(budgeted.Mul(UnderBudgetRatio)):
		return StatusUnderBudget
	default:
		return StatusOnTrack
	}
}

// VariancePct returns (actual-budgeted)/budgeted·100, or 0 when budgeted is not positive
func VariancePct(actual, budgeted decimal.Decimal) float64 {
	if !budgeted.IsPositive() {
		return 0
	}
	return actual.Sub(budgeted).Div(budgeted).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// BudgetVariance joins each of the user's budgets with the spend in its
// category between its start and end dates. Budgets with an unknown category
// or an invalid range are skipped. Rows are ordered by variance descending.
func (e *Engine) BudgetVariance(records []models.TransactionRecord, userID string) (*BudgetVarianceReport, error) {
	skipped := e.newSkipList(ReportBudgets)
	report := &BudgetVarianceReport{Meta: e.newMeta(ReportBudgets, userID, Period{})}

	for _, b := range e.budgets {
		if userID != "" && b.UserID != userID {
			continue
		}
		key := b.CategoryName + " " + b.StartDate.Format("2006-01-02")
		if err := b.Validate(); err != nil {
			skipped.add(errors.ReferenceDataError(errors.CodeInvalidBudget, "budget", key, err.Error()))
			continue
		}
		if _, ok := e.categoryType(b.CategoryName); !ok {
			skipped.add(errors.ReferenceDataError(errors.CodeUnknownCategory, "budget", key,
				"category "+b.CategoryName+" is not in the reference data"))
			continue
		}
		if !b.Amount.IsPositive() {
			e.logger.WithFields(logger.Fields{"budget": key, "amount": b.Amount.String()}).
				Warn("Non-positive budget amount, variance reported as 0")
		}

		row := BudgetVariance{
			BudgetID:  b.ID,
			Category:  b.CategoryName,
			Period:    b.Period,
			StartDate: b.StartDate,
			EndDate:   b.EndDate,
			Budgeted:  b.Amount,
			Actual:    decimal.Zero,
		}
		for i := range records {
			r := &records[i]
			if r.UserID != b.UserID || r.CategoryName != b.CategoryName || !b.Contains(r.TransactionDate) {
				continue
			}
			row.Actual = row.Actual.Add(e.amount(r))
			row.TransactionCount++
		}
		row.Variance = row.Actual.Sub(row.Budgeted)
		row.VariancePct = VariancePct(row.Actual, row.Budgeted)
		row.Status = BudgetStatusFor(row.Actual, row.Budgeted)
		report.Budgets = append(report.Budgets, row)

		if report.Period.Start.IsZero() || b.StartDate.Before(report.Period.Start) {
			report.Period.Start = b.StartDate
		}
		if b.EndDate.After(report.Period.End) {
			report.Period.End = b.EndDate
		}
	}
	report.Skipped = skipped.items

	if len(report.Budgets) == 0 {
		report.markNoData()
		return report, nil
	}

	pcts := make([]float64, len(report.Budgets))
	for i, row := range report.Budgets {
		pcts[i] = row.VariancePct
	}
	for i, q := range window.Ntile(pcts, 4, cmp.Compare[float64]) {
		report.Budgets[i].Quartile = q
	}

	sort.SliceStable(report.Budgets, func(i, j int) bool {
		return report.Budgets[i].VariancePct > report.Budgets[j].VariancePct
	})

	var sum float64
	for _, row := range report.Budgets {
		sum += row.VariancePct
		switch row.Status {
		case StatusOverBudget:
			report.Summary.OverBudget++
		case StatusUnderBudget:
			report.Summary.UnderBudget++
		default:
			report.Summary.OnTrack++
		}
	}
	report.Summary.TotalBudgets = len(report.Budgets)
	report.Summary.AverageVariancePct = sum / float64(len(report.Budgets))

	return report, nil
}
