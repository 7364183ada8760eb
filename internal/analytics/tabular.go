package analytics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func pct(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}

func month(t time.Time) string {
	return t.Format("2006-01")
}

// Title implements the reporter's tabular interface
func (r *SpendingTrendReport) Title() string {
	return fmt.Sprintf("Spending trends, last %d months", r.Months)
}

func (r *SpendingTrendReport) Header() []string {
	return []string{"Month", "Category", "Total", "Count", "Average", "Previous", "Rolling Avg", "Percentile", "Quartile", "Change %"}
}

func (r *SpendingTrendReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Metrics))
	for _, m := range r.Metrics {
		prev := ""
		if m.PreviousPeriodTotal != nil {
			prev = money(*m.PreviousPeriodTotal)
		}
		rows = append(rows, []string{
			month(m.Window), m.Dimension, money(m.Total), strconv.Itoa(m.Count), money(m.Average),
			prev, money(m.RollingAverage), pct(m.PercentileRank), strconv.Itoa(m.Quartile), pct(m.PeriodOverPeriodChangePct),
		})
	}
	return rows
}

func (r *BudgetVarianceReport) Title() string {
	return fmt.Sprintf("Budget variance: %d budgets, %d over", r.Summary.TotalBudgets, r.Summary.OverBudget)
}

func (r *BudgetVarianceReport) Header() []string {
	return []string{"Category", "Period", "Start", "End", "Budgeted", "Actual", "Variance", "Variance %", "Status", "Quartile", "Transactions"}
}

func (r *BudgetVarianceReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Budgets))
	for _, b := range r.Budgets {
		rows = append(rows, []string{
			b.Category, string(b.Period), day(b.StartDate), day(b.EndDate), money(b.Budgeted), money(b.Actual),
			money(b.Variance), pct(b.VariancePct), string(b.Status), strconv.Itoa(b.Quartile), strconv.Itoa(b.TransactionCount),
		})
	}
	return rows
}

func (r *SavingsReport) Title() string {
	return fmt.Sprintf("Savings: total %s, average rate %s%%, %s", money(r.Summary.TotalSavings),
		pct(r.Summary.AvgSavingsRatePct), r.Summary.Trend)
}

func (r *SavingsReport) Header() []string {
	return []string{"Month", "Income", "Expenses", "Savings", "Discretionary", "Savings Rate %", "Rolling Rate %"}
}

func (r *SavingsReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Months))
	for _, m := range r.Months {
		rows = append(rows, []string{
			month(m.Month), money(m.Income), money(m.Expenses), money(m.Savings), money(m.Discretionary),
			pct(m.SavingsRatePct), pct(m.RollingSavingsRatePct),
		})
	}
	return rows
}

func (r *ExpenseFeatureReport) Title() string {
	return fmt.Sprintf("Expense features: %d expenses, %d anomalies (%s%%)", r.Insights.TotalExpenses,
		r.Insights.AnomalyCount, pct(r.Insights.AnomalyPct))
}

func (r *ExpenseFeatureReport) Header() []string {
	return []string{"Date", "Category", "Merchant", "Amount", "Category Avg", "Category Std", "Frequency", "Percentile", "Trailing Avg", "Flag"}
}

func (r *ExpenseFeatureReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Features))
	for _, f := range r.Features {
		rows = append(rows, []string{
			day(f.TransactionDate), f.Category, f.Merchant, money(f.Amount), pct(f.CategoryMean), pct(f.CategoryStdDev),
			strconv.Itoa(f.CategoryFrequency), pct(f.PercentileInCategory), money(f.TrailingAverage), string(f.Flag),
		})
	}
	return rows
}

func (r *HealthReport) Title() string {
	return fmt.Sprintf("Financial health %s to %s", day(r.Period.Start), day(r.Period.End))
}

func (r *HealthReport) Header() []string {
	return []string{"Metric", "Value"}
}

func (r *HealthReport) Rows() [][]string {
	res := r.Result
	return [][]string{
		{"Total income", money(res.TotalIncome)},
		{"Total expenses", money(res.TotalExpenses)},
		{"Total savings", money(res.TotalSavings)},
		{"Essential expenses", money(res.EssentialExpenses)},
		{"Discretionary expenses", money(res.DiscretionaryExpenses)},
		{"Savings rate %", pct(res.SavingsRatePct)},
		{"Expense ratio %", pct(res.ExpenseRatioPct)},
		{"Essential expense ratio %", pct(res.EssentialExpenseRatioPct)},
		{"Net cash flow", money(res.NetCashFlow)},
		{"Active days", strconv.Itoa(res.ActiveDays)},
		{"Transactions", strconv.Itoa(res.TotalTransactions)},
		{"Anomalies", strconv.Itoa(res.AnomalyCount)},
		{"Grade", string(res.Grade)},
		{"Score", pct(res.Score)},
	}
}

func (r *InsightsReport) Title() string {
	return fmt.Sprintf("Insights for %s", r.UserID)
}

func (r *InsightsReport) Header() []string {
	return []string{"Section", "Metric", "Value"}
}

func (r *InsightsReport) Rows() [][]string {
	rows := [][]string{
		{"data", "transactions", strconv.Itoa(r.Data.TotalTransactions)},
		{"data", "date range", day(r.Data.DateRange.Start) + " to " + day(r.Data.DateRange.End)},
		{"data", "total amount", money(r.Data.TotalAmount)},
		{"data", "categories", strconv.Itoa(r.Data.UniqueCategories)},
		{"data", "merchants", strconv.Itoa(r.Data.UniqueMerchants)},
	}
	if r.Health != nil && !r.Health.NoData {
		rows = append(rows,
			[]string{"health", "score", pct(r.Health.Result.Score)},
			[]string{"health", "grade", string(r.Health.Result.Grade)},
		)
	}
	rows = append(rows, []string{"health", "trend", r.Trend})
	for _, m := range r.HealthTrend {
		rows = append(rows, []string{"health", month(m.Month), pct(m.Score) + " " + string(m.Grade)})
	}
	rows = append(rows,
		[]string{"anomalies", "total", strconv.Itoa(r.Anomalies.TotalAnomalies)},
		[]string{"anomalies", "rate %", pct(r.Anomalies.AnomalyRatePct)},
	)
	for _, a := range r.Anomalies.Recent {
		rows = append(rows, []string{"anomalies", day(a.TransactionDate), a.CategoryName + " " + money(a.Amount) + " " + a.Description})
	}
	return rows
}
