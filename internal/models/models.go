package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CategoryType classifies a category for report composition
type CategoryType string

const (
	CategoryTypeExpense CategoryType = "expense"
	CategoryTypeIncome  CategoryType = "income"
	CategoryTypeSavings CategoryType = "savings"
)

// IsValid checks if the category type is one of the known types
func (t CategoryType) IsValid() bool {
	switch t {
	case CategoryTypeExpense, CategoryTypeIncome, CategoryTypeSavings:
		return true
	default:
		return false
	}
}

// Category is reference data describing a category label
type Category struct {
	ID          string       `json:"id,omitempty"`
	Name        string       `json:"name"`
	Type        CategoryType `json:"type"`
	Description string       `json:"description,omitempty"`
}

// Validate performs basic validation on the Category
func (c *Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("category name cannot be empty")
	}
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid category type: %s", c.Type)
	}
	return nil
}

var (
	incomeKeywords  = []string{"income", "salary", "bonus"}
	savingsKeywords = []string{"savings", "investment", "401k"}
)

// InferCategoryType derives the type of an auto-created category from its name
func InferCategoryType(name string) CategoryType {
	lowered := strings.ToLower(name)
	for _, kw := range incomeKeywords {
		if strings.Contains(lowered, kw) {
			return CategoryTypeIncome
		}
	}
	for _, kw := range savingsKeywords {
		if strings.Contains(lowered, kw) {
			return CategoryTypeSavings
		}
	}
	return CategoryTypeExpense
}

// BudgetPeriod is the recurrence label of a budget
type BudgetPeriod string

const (
	BudgetPeriodWeekly  BudgetPeriod = "weekly"
	BudgetPeriodMonthly BudgetPeriod = "monthly"
	BudgetPeriodYearly  BudgetPeriod = "yearly"
)

// IsValid checks if the budget period is supported
func (p BudgetPeriod) IsValid() bool {
	return p == BudgetPeriodWeekly || p == BudgetPeriodMonthly || p == BudgetPeriodYearly
}

// Budget is a planned spend for one category over a date range
type Budget struct {
	ID           string          `json:"id,omitempty"`
	UserID       string          `json:"user_id"`
	CategoryName string          `json:"category"`
	Amount       decimal.Decimal `json:"amount"`
	Period       BudgetPeriod    `json:"period"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
}

// Validate reports structural problems with the budget. A non-positive
// amount is not an error here; variance reports guard it instead.
func (b *Budget) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return fmt.Errorf("budget user cannot be empty")
	}
	if strings.TrimSpace(b.CategoryName) == "" {
		return fmt.Errorf("budget category cannot be empty")
	}
	if !b.Period.IsValid() {
		return fmt.Errorf("invalid budget period: %s", b.Period)
	}
	if b.StartDate.IsZero() || b.EndDate.IsZero() {
		return fmt.Errorf("budget start and end dates are required")
	}
	if b.EndDate.Before(b.StartDate) {
		return fmt.Errorf("budget end date %s is before start date %s",
			b.EndDate.Format("2006-01-02"), b.StartDate.Format("2006-01-02"))
	}
	return nil
}

// Contains reports whether t falls inside the budget range, both ends inclusive by day
func (b *Budget) Contains(t time.Time) bool {
	day := truncateDay(t)
	return !day.Before(truncateDay(b.StartDate)) && !day.After(truncateDay(b.EndDate))
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Row is a loosely-typed input row keyed by column name
type Row map[string]interface{}

// RawRecord is a row after schema resolution. Nil fields were absent or empty.
type RawRecord struct {
	Line          int
	ID            *string
	UserID        *string
	Amount        *string
	Description   *string
	Date          *string
	Merchant      *string
	PaymentMethod *string
	Category      *string
	IsRecurring   *string
	Location      *string
	Tags          *string

	// RowDigest fingerprints the columns no field is mapped from
	RowDigest *string
}

// Key returns the projection used for exact duplicate detection. Together
// with RowDigest it covers every column of the source row.
func (r *RawRecord) Key() string {
	fields := []*string{r.ID, r.UserID, r.Amount, r.Description, r.Date, r.Merchant,
		r.PaymentMethod, r.Category, r.IsRecurring, r.Location, r.Tags, r.RowDigest}
	parts := make([]string, len(fields))
	for i, f := range fields {
		if f == nil {
			parts[i] = "\x00"
			continue
		}
		parts[i] = *f
	}
	return strings.Join(parts, "\x1f")
}

// TransactionRecord is the canonical, enriched transaction
type TransactionRecord struct {
	ID              string          `json:"id,omitempty"`
	UserID          string          `json:"user_id"`
	CategoryName    string          `json:"category"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	TransactionDate time.Time       `json:"transaction_date"`
	Merchant        string          `json:"merchant"`
	PaymentMethod   string          `json:"payment_method"`
	IsRecurring     bool            `json:"is_recurring"`
	IsAnomaly       bool            `json:"is_anomaly"`
	Location        string          `json:"location,omitempty"`
	Tags            []string        `json:"tags,omitempty"`

	// RowDigest keeps rows apart that differed only in unmapped columns
	RowDigest string `json:"row_digest,omitempty"`

	// Derived features; DayOfWeek is Monday = 0
	Month     int             `json:"month"`
	DayOfWeek int             `json:"day_of_week"`
	IsWeekend bool            `json:"is_weekend"`
	AmountAbs decimal.Decimal `json:"amount_abs"`
}

// Column names used when a record is rendered back to a Row
const (
	ColumnID            = "id"
	ColumnUserID        = "user_id"
	ColumnCategory      = "category"
	ColumnAmount        = "amount"
	ColumnDescription   = "description"
	ColumnDate          = "transaction_date"
	ColumnMerchant      = "merchant"
	ColumnPaymentMethod = "payment_method"
	ColumnIsRecurring   = "is_recurring"
	ColumnLocation      = "location"
	ColumnTags          = "tags"
	ColumnRowDigest     = "row_digest"
)

// ToRow renders the record with canonical column names so it can be normalized again
func (t *TransactionRecord) ToRow() Row {
	row := Row{
		ColumnUserID:        t.UserID,
		ColumnCategory:      t.CategoryName,
		ColumnAmount:        t.Amount.String(),
		ColumnDescription:   t.Description,
		ColumnDate:          t.TransactionDate.Format(time.RFC3339Nano),
		ColumnMerchant:      t.Merchant,
		ColumnPaymentMethod: t.PaymentMethod,
		ColumnIsRecurring:   strconv.FormatBool(t.IsRecurring),
	}
	if t.ID != "" {
		row[ColumnID] = t.ID
	}
	if t.Location != "" {
		row[ColumnLocation] = t.Location
	}
	if len(t.Tags) > 0 {
		row[ColumnTags] = strings.Join(t.Tags, ";")
	}
	if t.RowDigest != "" {
		row[ColumnRowDigest] = t.RowDigest
	}
	return row
}

// String returns a string representation of the record
func (t *TransactionRecord) String() string {
	return fmt.Sprintf("Transaction{User: %s, Amount: %s, Category: %s, Date: %s}",
		t.UserID, t.Amount.String(), t.CategoryName, t.TransactionDate.Format("2006-01-02"))
}

// MarshalJSON renders amounts as strings and the date as RFC3339
func (t TransactionRecord) MarshalJSON() ([]byte, error) {
	type Alias TransactionRecord
	return json.Marshal(&struct {
		Amount          string `json:"amount"`
		AmountAbs       string `json:"amount_abs"`
		TransactionDate string `json:"transaction_date"`
		Alias
	}{
		Amount:          t.Amount.String(),
		AmountAbs:       t.AmountAbs.String(),
		TransactionDate: t.TransactionDate.Format(time.RFC3339),
		Alias:           Alias(t),
	})
}

// AnomalyFlag records the outlier verdict for one record and the statistics behind it
type AnomalyFlag struct {
	Index         int     `json:"index"`
	TransactionID string  `json:"transaction_id,omitempty"`
	GroupKey      string  `json:"group"`
	Evaluated     bool    `json:"evaluated"`
	IsAnomaly     bool    `json:"is_anomaly"`
	IQRAnomaly    bool    `json:"iqr_anomaly"`
	ZScoreAnomaly bool    `json:"zscore_anomaly"`
	LowerBound    float64 `json:"lower_bound"`
	UpperBound    float64 `json:"upper_bound"`
	ZScore        float64 `json:"z_score"`
	Mean          float64 `json:"mean"`
	StdDev        float64 `json:"std_dev"`
}

// WindowedMetric is one (window, dimension) aggregate with its ordered-window features
type WindowedMetric struct {
	Window                    time.Time        `json:"window"`
	Dimension                 string           `json:"dimension"`
	Total                     decimal.Decimal  `json:"total"`
	Count                     int              `json:"count"`
	Average                   decimal.Decimal  `json:"average"`
	PreviousPeriodTotal       *decimal.Decimal `json:"previous_period_total"`
	RollingAverage            decimal.Decimal  `json:"rolling_average"`
	PercentileRank            float64          `json:"percentile_rank"`
	Quartile                  int              `json:"quartile"`
	PeriodOverPeriodChangePct float64          `json:"period_over_period_change_pct"`
}

// Grade is the financial-health grade
type Grade string

const (
	GradeExcellent        Grade = "Excellent"
	GradeGood             Grade = "Good"
	GradeFair             Grade = "Fair"
	GradeNeedsImprovement Grade = "Needs Improvement"
)

// HealthScoreResult summarizes a user's trailing financial health
type HealthScoreResult struct {
	UserID                   string          `json:"user_id"`
	PeriodStart              time.Time       `json:"period_start"`
	PeriodEnd                time.Time       `json:"period_end"`
	TotalIncome              decimal.Decimal `json:"total_income"`
	TotalExpenses            decimal.Decimal `json:"total_expenses"`
	TotalSavings             decimal.Decimal `json:"total_savings"`
	EssentialExpenses        decimal.Decimal `json:"essential_expenses"`
	DiscretionaryExpenses    decimal.Decimal `json:"discretionary_expenses"`
	ActiveDays               int             `json:"active_days"`
	TotalTransactions        int             `json:"total_transactions"`
	AnomalyCount             int             `json:"anomaly_count"`
	SavingsRatePct           float64         `json:"savings_rate_pct"`
	ExpenseRatioPct          float64         `json:"expense_ratio_pct"`
	EssentialExpenseRatioPct float64         `json:"essential_expense_ratio_pct"`
	NetCashFlow              decimal.Decimal `json:"net_cash_flow"`
	Grade                    Grade           `json:"grade"`
	Score                    float64         `json:"score"`
}

// ParseDecimalFromString parses a decimal amount, tolerating currency symbols,
// thousand separators and accounting-style parentheses for negatives
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	if negative {
		d = d.Neg()
	}
	return d, nil
}

// TimeFormats lists the layouts accepted by ParseTimeWithFormats, in order
var TimeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006/01/02",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"20060102",
}

// ParseTimeWithFormats attempts to parse time from string using multiple common formats
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	var lastErr error
	for _, format := range TimeFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// ParseBool accepts the flag spellings found in bank exports
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean '%s'", s)
	}
}
