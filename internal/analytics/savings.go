package analytics

import (
	"sort"
	"time"

	"finsight/internal/models"
	"finsight/internal/window"

	"github.com/shopspring/decimal"
)

// Savings trend labels
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
)

// SavingsMonth is one month of income, expense and savings totals
type SavingsMonth struct {
	Month                 time.Time       `json:"month"`
	Income                decimal.Decimal `json:"income"`
	Expenses              decimal.Decimal `json:"expenses"`
	Savings               decimal.Decimal `json:"savings"`
	Discretionary         decimal.Decimal `json:"discretionary_income"`
	SavingsRatePct        float64         `json:"savings_rate_pct"`
	RollingSavingsRatePct float64         `json:"rolling_savings_rate_pct"`
}

// SavingsSummary summarizes a savings report
type SavingsSummary struct {
	AvgMonthlySavings decimal.Decimal `json:"avg_monthly_savings"`
	AvgSavingsRatePct float64         `json:"avg_savings_rate_pct"`
	TotalSavings      decimal.Decimal `json:"total_savings"`
	Trend             string          `json:"trend"`
}

// SavingsReport lists monthly savings, latest month first
type SavingsReport struct {
	Meta
	Months  []SavingsMonth `json:"months"`
	Summary SavingsSummary `json:"summary"`
}

// Percent returns part/whole·100, or 0 when whole is not positive
func Percent(part, whole decimal.Decimal) float64 {
	if !whole.IsPositive() {
		return 0
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// Savings sums income, expense and savings categories per calendar month over
// the last months and derives the savings rate and its 3-month rolling mean.
func (e *Engine) Savings(records []models.TransactionRecord, userID string, months int) (*SavingsReport, error) {
	if months <= 0 {
		months = e.config.SavingsMonths
	}
	period := e.trailingPeriod(months)
	skipped := e.newSkipList(ReportSavings)
	report := &SavingsReport{Meta: e.newMeta(ReportSavings, userID, period)}

	selected := e.selectRecords(records, userID, &period, skipped)
	report.Skipped = skipped.items
	if len(selected) == 0 {
		report.markNoData()
		return report, nil
	}

	byType := window.Dimension{Name: "category_type", Value: func(r *models.TransactionRecord) string {
		t, _ := e.categoryType(r.CategoryName)
		return string(t)
	}}
	acc, err := window.NewAccumulator(&window.Config{
		Unit:           window.Month,
		Dimension:      byType,
		Measure:        e.measure(),
		RollingPeriods: 3,
	})
	if err != nil {
		return nil, err
	}
	chunk := make([]models.TransactionRecord, len(selected))
	for i, t := range selected {
		chunk[i] = *t.record
	}
	acc.Add(chunk)

	monthly := map[int64]*SavingsMonth{}
	for _, m := range acc.Metrics() {
		sm, ok := monthly[m.Window.Unix()]
		if !ok {
			sm = &SavingsMonth{Month: m.Window}
			monthly[m.Window.Unix()] = sm
		}
		switch models.CategoryType(m.Dimension) {
		case models.CategoryTypeIncome:
			sm.Income = sm.Income.Add(m.Total)
		case models.CategoryTypeSavings:
			sm.Savings = sm.Savings.Add(m.Total)
		default:
			sm.Expenses = sm.Expenses.Add(m.Total)
		}
	}

	ordered := make([]SavingsMonth, 0, len(monthly))
	for _, sm := range monthly {
		sm.Discretionary = sm.Income.Sub(sm.Expenses).Sub(sm.Savings)
		sm.SavingsRatePct = Percent(sm.Savings, sm.Income)
		ordered = append(ordered, *sm)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Month.Before(ordered[j].Month) })

	rates := make([]float64, len(ordered))
	for i, sm := range ordered {
		rates[i] = sm.SavingsRatePct
	}
	for i, r := range window.TrailingMeanFloat(rates, 3) {
		ordered[i].RollingSavingsRatePct = r
	}

	var rateSum float64
	for _, sm := range ordered {
		report.Summary.TotalSavings = report.Summary.TotalSavings.Add(sm.Savings)
		rateSum += sm.SavingsRatePct
	}
	n := len(ordered)
	report.Summary.AvgMonthlySavings = report.Summary.TotalSavings.Div(decimal.NewFromInt(int64(n)))
	report.Summary.AvgSavingsRatePct = rateSum / float64(n)
	report.Summary.Trend = TrendDecreasing
	if ordered[n-1].SavingsRatePct > ordered[0].SavingsRatePct {
		report.Summary.Trend = TrendIncreasing
	}

	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	report.Months = ordered
	return report, nil
}
