package analytics

import (
	"fmt"
	"math"
	"testing"
	"time"

	"finsight/internal/models"
	"finsight/internal/outlier"
	"finsight/pkg/errors"
	"finsight/pkg/logger"

	"github.com/shopspring/decimal"
)

func init() {
	logger.SetGlobalLogger(logger.NewNopLogger())
}

var asOf = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return asOf }

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func rec(user, category, day, amount string) models.TransactionRecord {
	a := decimal.RequireFromString(amount)
	return models.TransactionRecord{
		UserID:          user,
		CategoryName:    category,
		Amount:          a,
		AmountAbs:       a.Abs(),
		Description:     category + " purchase",
		Merchant:        category + " Shop",
		TransactionDate: date(day),
	}
}

func referenceCategories() []models.Category {
	return []models.Category{
		{Name: "Groceries", Type: models.CategoryTypeExpense},
		{Name: "Housing", Type: models.CategoryTypeExpense},
		{Name: "Utilities", Type: models.CategoryTypeExpense},
		{Name: "Transportation", Type: models.CategoryTypeExpense},
		{Name: "Dining", Type: models.CategoryTypeExpense},
		{Name: "Shopping", Type: models.CategoryTypeExpense},
		{Name: "Income", Type: models.CategoryTypeIncome},
		{Name: "Savings", Type: models.CategoryTypeSavings},
	}
}

func newEngine(t *testing.T, budgets ...models.Budget) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Clock = fixedClock
	e, err := NewEngine(cfg, Reference{Categories: referenceCategories(), Budgets: budgets})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"zero trend months", func(c *Config) { c.TrendMonths = 0 }, true},
		{"zero health months", func(c *Config) { c.HealthMonths = 0 }, true},
		{"zero trailing", func(c *Config) { c.TrailingTransactions = 0 }, true},
		{"zero top categories", func(c *Config) { c.TopCategories = 0 }, true},
		{"negative recent anomalies", func(c *Config) { c.RecentAnomalies = -1 }, true},
		{"blank essential", func(c *Config) { c.EssentialCategories = []string{"Housing", ""} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGradeAndScore(t *testing.T) {
	grades := []struct {
		savings, expense, essential float64
		want                        models.Grade
	}{
		{20, 80, 60, models.GradeExcellent},
		{20, 70, 61, models.GradeGood},
		{15, 85, 70, models.GradeGood},
		{10, 90, 80, models.GradeFair},
		{25, 95, 50, models.GradeNeedsImprovement},
		{9.99, 50, 50, models.GradeNeedsImprovement},
	}
	for _, g := range grades {
		if got := GradeFor(g.savings, g.expense, g.essential); got != g.want {
			t.Errorf("GradeFor(%v, %v, %v) = %s, want %s", g.savings, g.expense, g.essential, got, g.want)
		}
	}

	scores := []struct {
		savings, expense, essential float64
		net                         int64
		want                        float64
	}{
		{20, 70, 57, 500, 90},
		{5, 90, 80, -1, 25},
		{0, 200, 100, -10, 0},
		{60, 10, 10, 100, 100},
	}
	for _, s := range scores {
		got := ScoreFor(s.savings, s.expense, s.essential, decimal.NewFromInt(s.net))
		if !approx(got, s.want) {
			t.Errorf("ScoreFor(%v, %v, %v, %d) = %v, want %v", s.savings, s.expense, s.essential, s.net, got, s.want)
		}
	}
}

func TestHealthScore_Scenario(t *testing.T) {
	e := newEngine(t)
	records := []models.TransactionRecord{
		rec("u1", "Income", "2024-05-01", "5000"),
		rec("u1", "Housing", "2024-05-02", "-1500"),
		rec("u1", "Groceries", "2024-05-10", "-500"),
		rec("u1", "Dining", "2024-06-10", "-1500"),
		rec("u1", "Savings", "2024-06-10", "-1000"),
		rec("u1", "Income", "2024-01-01", "9999"),
		rec("u2", "Income", "2024-05-01", "100"),
	}

	report, err := e.HealthScore(records, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if report.NoData {
		t.Fatal("unexpected NoData")
	}

	res := report.Result
	if !res.TotalIncome.Equal(decimal.NewFromInt(5000)) || !res.TotalExpenses.Equal(decimal.NewFromInt(3500)) ||
		!res.TotalSavings.Equal(decimal.NewFromInt(1000)) || !res.EssentialExpenses.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("unexpected totals %+v", res)
	}
	if !approx(res.SavingsRatePct, 20) || !approx(res.ExpenseRatioPct, 70) || !approx(res.EssentialExpenseRatioPct, 2000.0/3500.0*100) {
		t.Errorf("ratios = %v %v %v", res.SavingsRatePct, res.ExpenseRatioPct, res.EssentialExpenseRatioPct)
	}
	if !res.NetCashFlow.Equal(decimal.NewFromInt(500)) || !res.DiscretionaryExpenses.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("net=%s discretionary=%s", res.NetCashFlow, res.DiscretionaryExpenses)
	}
	if res.Grade != models.GradeExcellent || !approx(res.Score, 90) {
		t.Errorf("grade=%s score=%v, want Excellent 90", res.Grade, res.Score)
	}
	if res.ActiveDays != 4 || res.TotalTransactions != 5 || res.AnomalyCount != 0 {
		t.Errorf("days=%d txns=%d anomalies=%d", res.ActiveDays, res.TotalTransactions, res.AnomalyCount)
	}
}

func TestHealthScore_NoData(t *testing.T) {
	e := newEngine(t)
	report, err := e.HealthScore([]models.TransactionRecord{rec("u1", "Income", "2024-05-01", "1")}, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if !report.NoData || !report.Empty() || report.NoDataReason == "" {
		t.Errorf("expected NoData, got %+v", report.Meta)
	}
}

func TestHealthScore_CountsAnomalies(t *testing.T) {
	e := newEngine(t)
	var records []models.TransactionRecord
	for i := 1; i <= 9; i++ {
		records = append(records, rec("u1", "Dining", fmt.Sprintf("2024-06-%02d", i), "-20"))
	}
	records = append(records, rec("u1", "Dining", "2024-06-15", "-900"))

	report, err := e.HealthScore(records, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if report.Result.AnomalyCount != 1 {
		t.Errorf("AnomalyCount = %d, want 1", report.Result.AnomalyCount)
	}
}

func TestBudgetVariance(t *testing.T) {
	march := func(category, amount string) models.Budget {
		return models.Budget{
			ID:           category,
			UserID:       "u1",
			CategoryName: category,
			Amount:       decimal.RequireFromString(amount),
			Period:       models.BudgetPeriodMonthly,
			StartDate:    date("2024-03-01"),
			EndDate:      date("2024-03-31"),
		}
	}
	reversed := march("Utilities", "100")
	reversed.StartDate, reversed.EndDate = reversed.EndDate, reversed.StartDate

	e := newEngine(t,
		march("Groceries", "500"),
		march("Dining", "500"),
		march("Housing", "1000"),
		march("Shopping", "0"),
		march("Travel", "300"),
		reversed,
		models.Budget{UserID: "u2", CategoryName: "Groceries", Amount: decimal.NewFromInt(1), Period: models.BudgetPeriodMonthly,
			StartDate: date("2024-03-01"), EndDate: date("2024-03-31")},
	)

	last := rec("u1", "Groceries", "2024-03-31", "-200")
	last.TransactionDate = last.TransactionDate.Add(15 * time.Hour)
	records := []models.TransactionRecord{
		rec("u1", "Groceries", "2024-03-05", "-400"),
		last,
		rec("u1", "Groceries", "2024-04-01", "-999"),
		rec("u2", "Groceries", "2024-03-05", "-1000"),
		rec("u1", "Dining", "2024-03-12", "-350"),
		rec("u1", "Housing", "2024-03-01", "-900"),
		rec("u1", "Shopping", "2024-03-20", "-50"),
	}

	report, err := e.BudgetVariance(records, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if report.NoData {
		t.Fatal("unexpected NoData")
	}

	want := []struct {
		category string
		pct      float64
		status   BudgetStatus
		quartile int
	}{
		{"Groceries", 20, StatusOverBudget, 4},
		{"Shopping", 0, StatusOverBudget, 3},
		{"Housing", -10, StatusOnTrack, 2},
		{"Dining", -30, StatusUnderBudget, 1},
	}
	if len(report.Budgets) != len(want) {
		t.Fatalf("got %d budgets, want %d", len(report.Budgets), len(want))
	}
	for i, w := range want {
		got := report.Budgets[i]
		if got.Category != w.category || !approx(got.VariancePct, w.pct) || got.Status != w.status || got.Quartile != w.quartile {
			t.Errorf("row %d = %s %.2f %s q%d, want %s %.2f %s q%d", i,
				got.Category, got.VariancePct, got.Status, got.Quartile, w.category, w.pct, w.status, w.quartile)
		}
	}
	if !report.Budgets[0].Actual.Equal(decimal.NewFromInt(600)) || report.Budgets[0].TransactionCount != 2 {
		t.Errorf("groceries actual = %s over %d", report.Budgets[0].Actual, report.Budgets[0].TransactionCount)
	}

	s := report.Summary
	if s.TotalBudgets != 4 || s.OverBudget != 2 || s.UnderBudget != 1 || s.OnTrack != 1 || !approx(s.AverageVariancePct, -5) {
		t.Errorf("unexpected summary %+v", s)
	}

	if len(report.Skipped) != 2 {
		t.Fatalf("expected 2 skipped budgets, got %+v", report.Skipped)
	}
	codes := map[errors.ErrorCode]bool{}
	for _, item := range report.Skipped {
		codes[item.Err.Code] = true
	}
	if !codes[errors.CodeInvalidBudget] || !codes[errors.CodeUnknownCategory] {
		t.Errorf("unexpected skip codes %v", codes)
	}
}

func TestBudgetVariance_Scenarios(t *testing.T) {
	tests := []struct {
		actual, budgeted string
		pct              float64
		status           BudgetStatus
	}{
		{"600", "500", 20, StatusOverBudget},
		{"350", "500", -30, StatusUnderBudget},
		{"400", "500", -20, StatusOnTrack},
		{"500", "500", 0, StatusOnTrack},
		{"10", "0", 0, StatusOverBudget},
	}
	for _, tt := range tests {
		actual, budgeted := decimal.RequireFromString(tt.actual), decimal.RequireFromString(tt.budgeted)
		if got := VariancePct(actual, budgeted); !approx(got, tt.pct) {
			t.Errorf("VariancePct(%s, %s) = %v, want %v", tt.actual, tt.budgeted, got, tt.pct)
		}
		if got := BudgetStatusFor(actual, budgeted); got != tt.status {
			t.Errorf("BudgetStatusFor(%s, %s) = %s, want %s", tt.actual, tt.budgeted, got, tt.status)
		}
	}
}

func TestBudgetVariance_NoBudgets(t *testing.T) {
	e := newEngine(t)
	report, err := e.BudgetVariance([]models.TransactionRecord{rec("u1", "Dining", "2024-03-01", "-5")}, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !report.NoData {
		t.Error("expected NoData without budgets")
	}
}

func savingsRecords() []models.TransactionRecord {
	return []models.TransactionRecord{
		rec("u1", "Income", "2024-04-01", "4000"),
		rec("u1", "Savings", "2024-04-02", "-400"),
		rec("u1", "Housing", "2024-04-03", "-3000"),
		rec("u1", "Income", "2024-05-01", "4000"),
		rec("u1", "Savings", "2024-05-02", "-800"),
		rec("u1", "Groceries", "2024-05-03", "-2500"),
		rec("u1", "Income", "2024-06-01", "5000"),
		rec("u1", "Savings", "2024-06-02", "-1500"),
		rec("u1", "Dining", "2024-06-03", "-2000"),
		rec("u1", "Mystery", "2024-06-04", "-10"),
		rec("u1", "Mystery", "2024-06-05", "-10"),
	}
}

func TestSavings(t *testing.T) {
	e := newEngine(t)
	report, err := e.Savings(savingsRecords(), "u1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if report.NoData || len(report.Months) != 3 {
		t.Fatalf("expected 3 months, got %+v", report)
	}

	jun, may, apr := report.Months[0], report.Months[1], report.Months[2]
	if month(jun.Month) != "2024-06" || month(apr.Month) != "2024-04" {
		t.Fatalf("months must be latest first: %s..%s", month(jun.Month), month(apr.Month))
	}
	if !approx(apr.SavingsRatePct, 10) || !approx(may.SavingsRatePct, 20) || !approx(jun.SavingsRatePct, 30) {
		t.Errorf("rates = %v %v %v", apr.SavingsRatePct, may.SavingsRatePct, jun.SavingsRatePct)
	}
	if !approx(apr.RollingSavingsRatePct, 10) || !approx(may.RollingSavingsRatePct, 15) || !approx(jun.RollingSavingsRatePct, 20) {
		t.Errorf("rolling = %v %v %v", apr.RollingSavingsRatePct, may.RollingSavingsRatePct, jun.RollingSavingsRatePct)
	}
	if !jun.Discretionary.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("june discretionary = %s", jun.Discretionary)
	}

	s := report.Summary
	if !s.TotalSavings.Equal(decimal.NewFromInt(2700)) || !s.AvgMonthlySavings.Equal(decimal.NewFromInt(900)) ||
		!approx(s.AvgSavingsRatePct, 20) || s.Trend != TrendIncreasing {
		t.Errorf("unexpected summary %+v", s)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Key != "Mystery" {
		t.Errorf("expected one skipped category, got %+v", report.Skipped)
	}
}

func TestSavings_ZeroIncome(t *testing.T) {
	e := newEngine(t)
	report, err := e.Savings([]models.TransactionRecord{rec("u1", "Savings", "2024-06-02", "-100")}, "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Months[0].SavingsRatePct != 0 || report.Summary.Trend != TrendDecreasing {
		t.Errorf("zero income must give rate 0: %+v", report.Months[0])
	}
}

func TestSpendingTrends(t *testing.T) {
	e := newEngine(t)
	report, err := e.SpendingTrends(savingsRecords(), "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Months != 12 || report.NoData {
		t.Fatalf("unexpected report %+v", report.Meta)
	}
	for _, m := range report.Metrics {
		if m.Dimension == "Income" || m.Dimension == "Savings" || m.Dimension == "Mystery" {
			t.Errorf("non-expense category in trends: %s", m.Dimension)
		}
	}
	if report.Summary.Categories != 3 || report.Summary.Transactions != 3 ||
		!report.Summary.Total.Equal(decimal.NewFromInt(7500)) {
		t.Errorf("unexpected summary %+v", report.Summary)
	}
	if month(report.Metrics[0].Window) != "2024-06" {
		t.Errorf("latest month first, got %s", report.Metrics[0].Window)
	}

	empty, err := e.SpendingTrends([]models.TransactionRecord{rec("u1", "Income", "2024-06-01", "1")}, "u1", 12)
	if err != nil {
		t.Fatal(err)
	}
	if !empty.NoData {
		t.Error("income-only input must produce NoData")
	}
}

func TestSpendingTrends_InferMissingCategories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Clock = fixedClock
	cfg.InferMissingCategories = true
	e, err := NewEngine(cfg, Reference{})
	if err != nil {
		t.Fatal(err)
	}
	report, err := e.SpendingTrends(savingsRecords(), "u1", 12)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Skipped) != 0 || report.Summary.Categories != 4 {
		t.Errorf("expected inferred expense categories, got %+v / %+v", report.Skipped, report.Summary)
	}
}

func featureRecords() []models.TransactionRecord {
	var records []models.TransactionRecord
	for i := 1; i <= 9; i++ {
		records = append(records, rec("u1", "Dining", fmt.Sprintf("2024-05-%02d", i), "-20"))
	}
	records = append(records,
		rec("u1", "Dining", "2024-05-20", "-200"),
		rec("u1", "Groceries", "2024-05-21", "-100"),
		rec("u1", "Groceries", "2024-05-22", "-100"),
		rec("u1", "Income", "2024-05-01", "3000"),
	)
	return records
}

func TestExpenseFeatures(t *testing.T) {
	e := newEngine(t)
	report, err := e.ExpenseFeatures(featureRecords(), "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.NoData || len(report.Features) != 12 {
		t.Fatalf("expected 12 expense features, got %d", len(report.Features))
	}
	if day(report.Features[0].TransactionDate) != "2024-05-22" {
		t.Errorf("latest first, got %s", day(report.Features[0].TransactionDate))
	}
	// 2024-05-22 is a Wednesday
	if got := report.Features[0].DayOfWeek; got != 2 {
		t.Errorf("expected Monday-based day of week 2, got %d", got)
	}

	var big, small ExpenseFeature
	for _, f := range report.Features {
		if f.Category == "Dining" && f.Amount.Equal(decimal.NewFromInt(200)) {
			big = f
		}
		if f.Category == "Dining" && day(f.TransactionDate) == "2024-05-01" {
			small = f
		}
	}
	if big.Flag != outlier.BandHigh || !approx(big.CategoryMean, 38) || big.CategoryFrequency != 10 || big.PercentileInCategory != 1 {
		t.Errorf("unexpected high outlier %+v", big)
	}
	if small.Flag != outlier.BandNormal || small.PercentileInCategory != 0 || !small.TrailingAverage.Equal(decimal.NewFromInt(20)) {
		t.Errorf("unexpected regular expense %+v", small)
	}
	if big.TrailingAverage.String() != decimal.NewFromInt(20*6+200).Div(decimal.NewFromInt(7)).String() {
		t.Errorf("trailing average = %s", big.TrailingAverage)
	}

	ins := report.Insights
	if ins.TotalExpenses != 12 || ins.AnomalyCount != 1 || !approx(ins.AnomalyPct, 100.0/12.0) {
		t.Errorf("unexpected insights %+v", ins)
	}
	if len(ins.TopCategories) != 2 || ins.TopCategories[0].Category != "Dining" ||
		!ins.TopCategories[0].Total.Equal(decimal.NewFromInt(380)) {
		t.Errorf("unexpected top categories %+v", ins.TopCategories)
	}
}

func TestInsights(t *testing.T) {
	e := newEngine(t)
	records := append(featureRecords(), savingsRecords()...)

	report, err := e.Insights(records, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if report.NoData {
		t.Fatal("unexpected NoData")
	}
	if report.Data.TotalTransactions != len(records) || report.Data.UniqueCategories != 6 {
		t.Errorf("unexpected data summary %+v", report.Data)
	}
	if day(report.Data.DateRange.Start) != "2024-04-01" || day(report.Data.DateRange.End) != "2024-06-05" {
		t.Errorf("date range = %s..%s", day(report.Data.DateRange.Start), day(report.Data.DateRange.End))
	}
	if report.Health == nil || report.Health.NoData {
		t.Error("expected a health score")
	}
	if len(report.HealthTrend) != 3 {
		t.Errorf("expected 3 monthly scores, got %d", len(report.HealthTrend))
	}
	// Dining holds 11 records: nine 20s, one 200 and one 2000
	if report.Anomalies.TotalAnomalies != 2 || report.Anomalies.Evaluated != 11 || len(report.Anomalies.Recent) != 2 {
		t.Fatalf("unexpected anomalies %+v", report.Anomalies)
	}
	recent := report.Anomalies.Recent
	if !recent[0].IsAnomaly || !recent[0].AmountAbs.Equal(decimal.NewFromInt(2000)) || !recent[1].AmountAbs.Equal(decimal.NewFromInt(200)) {
		t.Errorf("recent anomalies must be latest first, got %s then %s", recent[0].AmountAbs, recent[1].AmountAbs)
	}

	none, err := e.Insights(records, "u9")
	if err != nil {
		t.Fatal(err)
	}
	if !none.NoData {
		t.Error("expected NoData for unknown user")
	}
}

type tabular interface {
	Title() string
	Header() []string
	Rows() [][]string
	Empty() bool
}

func TestTabularProjections(t *testing.T) {
	budget := models.Budget{UserID: "u1", CategoryName: "Dining", Amount: decimal.NewFromInt(100),
		Period: models.BudgetPeriodMonthly, StartDate: date("2024-05-01"), EndDate: date("2024-05-31")}
	e := newEngine(t, budget)
	records := append(featureRecords(), savingsRecords()...)

	trends, _ := e.SpendingTrends(records, "u1", 0)
	budgets, _ := e.BudgetVariance(records, "u1")
	savings, _ := e.Savings(records, "u1", 0)
	features, _ := e.ExpenseFeatures(records, "u1", 0)
	health, _ := e.HealthScore(records, "u1")
	insights, _ := e.Insights(records, "u1")

	for _, r := range []tabular{trends, budgets, savings, features, health, insights} {
		if r.Empty() {
			t.Errorf("%s: unexpected empty report", r.Title())
			continue
		}
		rows := r.Rows()
		if len(rows) == 0 {
			t.Errorf("%s: no rows", r.Title())
		}
		for i, row := range rows {
			if len(row) != len(r.Header()) {
				t.Errorf("%s: row %d has %d cells, header has %d", r.Title(), i, len(row), len(r.Header()))
			}
		}
	}
}
