package pipeline

import (
	"context"
	"strings"
	"time"

	"finsight/internal/analytics"
	"finsight/internal/models"
	"finsight/pkg/errors"
)

// Report is any analytics report in its tabular projection
type Report interface {
	Title() string
	Header() []string
	Rows() [][]string
	Empty() bool
}

// ReportKinds lists the names accepted by ReportSet.Build
var ReportKinds = []string{"trends", "budgets", "savings", "expenses", "health", "insights"}

// ReportSet binds an analytics engine to the records of one user
type ReportSet struct {
	Engine  *analytics.Engine
	Records []models.TransactionRecord
	UserID  string
}

// NewReportSet builds an engine over the given reference data
func NewReportSet(config *analytics.Config, ref analytics.Reference, records []models.TransactionRecord, userID string) (*ReportSet, error) {
	engine, err := analytics.NewEngine(config, ref)
	if err != nil {
		return nil, err
	}
	return &ReportSet{Engine: engine, Records: records, UserID: userID}, nil
}

// Reports loads the user's transactions, every category and the user's
// budgets from the repository and prepares an engine over them
func (s *Service) Reports(ctx context.Context, userID string) (*ReportSet, error) {
	records, err := s.repo.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	budgets, err := s.repo.ListBudgets(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewReportSet(s.config.Analytics, analytics.Reference{Categories: categories, Budgets: budgets}, records, userID)
}

// AsOf returns a copy of the set whose trailing windows end at t
func (rs *ReportSet) AsOf(t time.Time) *ReportSet {
	cp := *rs
	cp.Engine = rs.Engine.WithClock(func() time.Time { return t })
	return &cp
}

// Build computes the named report. months <= 0 uses the engine default and
// is ignored by reports without a month window.
func (rs *ReportSet) Build(kind string, months int) (Report, error) {
	var (
		report Report
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "trends", analytics.ReportTrends:
		report, err = rs.Engine.SpendingTrends(rs.Records, rs.UserID, months)
	case "budgets", analytics.ReportBudgets:
		report, err = rs.Engine.BudgetVariance(rs.Records, rs.UserID)
	case "savings":
		report, err = rs.Engine.Savings(rs.Records, rs.UserID, months)
	case "expenses", analytics.ReportExpenses:
		report, err = rs.Engine.ExpenseFeatures(rs.Records, rs.UserID, months)
	case "health", analytics.ReportHealth:
		report, err = rs.Engine.HealthScore(rs.Records, rs.UserID)
	case "insights":
		report, err = rs.Engine.Insights(rs.Records, rs.UserID)
	default:
		return nil, errors.ValidationError(errors.CodeInvalidFormat, "report", kind, nil).
			WithSuggestion("use one of: " + strings.Join(ReportKinds, ", "))
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}
