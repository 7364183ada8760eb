package analytics

import (
	"math"
	"time"

	"finsight/internal/models"
	"finsight/internal/outlier"
	"finsight/internal/window"
	"finsight/pkg/logger"

	"github.com/shopspring/decimal"
)

// HealthReport is the financial health score of one user
type HealthReport struct {
	Meta
	Result models.HealthScoreResult `json:"result"`
}

// healthTotals accumulates the category-type sums a health score is built from
type healthTotals struct {
	income, expenses, savings, essential decimal.Decimal
}

func (e *Engine) addTotals(h *healthTotals, t typed) {
	switch t.kind {
	case models.CategoryTypeIncome:
		h.income = h.income.Add(t.amount)
	case models.CategoryTypeSavings:
		h.savings = h.savings.Add(t.amount)
	default:
		h.expenses = h.expenses.Add(t.amount)
		if e.essential[t.record.CategoryName] {
			h.essential = h.essential.Add(t.amount)
		}
	}
}

// fill derives ratios, cash flow, grade and score from the totals
func (h *healthTotals) fill(res *models.HealthScoreResult) {
	res.TotalIncome = h.income
	res.TotalExpenses = h.expenses
	res.TotalSavings = h.savings
	res.EssentialExpenses = h.essential
	res.DiscretionaryExpenses = h.expenses.Sub(h.essential)
	res.SavingsRatePct = Percent(h.savings, h.income)
	res.ExpenseRatioPct = Percent(h.expenses, h.income)
	res.EssentialExpenseRatioPct = Percent(h.essential, h.expenses)
	res.NetCashFlow = h.income.Sub(h.expenses).Sub(h.savings)
	res.Grade = GradeFor(res.SavingsRatePct, res.ExpenseRatioPct, res.EssentialExpenseRatioPct)
	res.Score = ScoreFor(res.SavingsRatePct, res.ExpenseRatioPct, res.EssentialExpenseRatioPct, res.NetCashFlow)
}

type gradeThreshold struct {
	grade                    models.Grade
	minSavings               float64
	maxExpense, maxEssential float64
}

// checked in order, first satisfied row wins
var gradeTable = []gradeThreshold{
	{models.GradeExcellent, 20, 80, 60},
	{models.GradeGood, 15, 85, 70},
	{models.GradeFair, 10, 90, 80},
}

// GradeFor assigns the health grade from the three ratios
func GradeFor(savingsRate, expenseRatio, essentialRatio float64) models.Grade {
	for _, g := range gradeTable {
		if savingsRate >= g.minSavings && expenseRatio <= g.maxExpense && essentialRatio <= g.maxEssential {
			return g.grade
		}
	}
	return models.GradeNeedsImprovement
}

// ScoreFor computes the 0-100 health score:
// 2·savingsRate + expense component (20, less 1 per point above 80) +
// essential component (15, less 0.5 per point above 60) + 15 when net cash
// flow is not negative.
func ScoreFor(savingsRate, expenseRatio, essentialRatio float64, netCashFlow decimal.Decimal) float64 {
	expense := 20.0
	if expenseRatio > 80 {
		expense = math.Max(0, 20-(expenseRatio-80))
	}
	essential := 15.0
	if essentialRatio > 60 {
		essential = math.Max(0, 15-(essentialRatio-60)*0.5)
	}
	cashFlow := 0.0
	if !netCashFlow.IsNegative() {
		cashFlow = 15
	}
	return math.Min(100, math.Max(0, savingsRate*2+expense+essential+cashFlow))
}

// HealthScore scores the user's finances over the trailing health window.
// The anomaly count uses the IQR + z-score policy grouped by category and user.
func (e *Engine) HealthScore(records []models.TransactionRecord, userID string) (*HealthReport, error) {
	period := e.trailingPeriod(e.config.HealthMonths)
	skipped := e.newSkipList(ReportHealth)
	report := &HealthReport{Meta: e.newMeta(ReportHealth, userID, period)}

	selected := e.selectRecords(records, userID, &period, skipped)
	report.Skipped = skipped.items
	report.Result = models.HealthScoreResult{UserID: userID, PeriodStart: period.Start, PeriodEnd: period.End}
	if len(selected) == 0 {
		report.markNoData()
		return report, nil
	}

	var totals healthTotals
	days := map[time.Time]bool{}
	windowRecords := make([]models.TransactionRecord, len(selected))
	for i, t := range selected {
		e.addTotals(&totals, t)
		days[window.Day.Truncate(t.record.TransactionDate)] = true
		windowRecords[i] = *t.record
	}
	totals.fill(&report.Result)

	detector, err := outlier.NewDetector(outlier.IQRZScorePolicy())
	if err != nil {
		return nil, err
	}
	report.Result.AnomalyCount = detector.CountAnomalies(windowRecords)
	report.Result.ActiveDays = len(days)
	report.Result.TotalTransactions = len(selected)

	e.logger.WithFields(logger.Fields{
		"user_id": userID,
		"score":   report.Result.Score,
		"grade":   report.Result.Grade,
	}).Debug("Health score computed")

	return report, nil
}
