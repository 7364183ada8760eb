package analytics

import (
	"finsight/internal/models"
	"finsight/internal/window"
	"finsight/pkg/logger"

	"github.com/shopspring/decimal"
)

// TrendSummary totals a spending trend report
type TrendSummary struct {
	Categories   int             `json:"categories"`
	Transactions int             `json:"transactions"`
	Total        decimal.Decimal `json:"total"`
}

// SpendingTrendReport is the monthly spend per expense category
type SpendingTrendReport struct {
	Meta
	Months  int                     `json:"months"`
	Metrics []models.WindowedMetric `json:"metrics"`
	Summary TrendSummary            `json:"summary"`
}

// SpendingTrends aggregates expense-type records of the last months by
// calendar month and category. months <= 0 uses the configured default.
func (e *Engine) SpendingTrends(records []models.TransactionRecord, userID string, months int) (*SpendingTrendReport, error) {
	if months <= 0 {
		months = e.config.TrendMonths
	}
	period := e.trailingPeriod(months)
	skipped := e.newSkipList(ReportTrends)

	report := &SpendingTrendReport{Meta: e.newMeta(ReportTrends, userID, period), Months: months}

	var expenses []models.TransactionRecord
	for _, t := range e.selectRecords(records, userID, &period, skipped) {
		if t.kind == models.CategoryTypeExpense {
			expenses = append(expenses, *t.record)
		}
	}
	report.Skipped = skipped.items

	if len(expenses) == 0 {
		report.markNoData()
		return report, nil
	}

	acc, err := window.NewAccumulator(&window.Config{
		Unit:           window.Month,
		Dimension:      window.Category,
		Measure:        e.measure(),
		RollingPeriods: 3,
	})
	if err != nil {
		return nil, err
	}
	acc.Add(expenses)
	report.Metrics = acc.Metrics()

	categories := map[string]bool{}
	for _, m := range report.Metrics {
		categories[m.Dimension] = true
		report.Summary.Total = report.Summary.Total.Add(m.Total)
	}
	report.Summary.Categories = len(categories)
	report.Summary.Transactions = acc.Records()

	e.logger.WithFields(logger.Fields{
		"user_id": userID,
		"months":  months,
		"metrics": len(report.Metrics),
		"records": len(expenses),
		"skipped": len(report.Skipped),
	}).Debug("Spending trends computed")

	return report, nil
}

func (e *Engine) measure() window.Measure {
	if e.config.AbsoluteAmounts {
		return window.Absolute
	}
	return window.Signed
}
