// Package analytics composes reports over normalized transactions and
// externally supplied category and budget reference data.
//
// Every report is computed synchronously from the records passed in. A report
// over zero matching records comes back with NoData set instead of an error,
// and reference data that cannot be used is listed in Skipped with a reason.
// An Engine holds no mutable state, so one value can serve concurrent callers.
package analytics

import (
	"fmt"
	"strings"
	"time"

	"finsight/internal/models"
	"finsight/pkg/errors"
	"finsight/pkg/logger"

	"github.com/shopspring/decimal"
)

// DefaultEssentialCategories are the expense categories treated as essential
var DefaultEssentialCategories = []string{"Housing", "Utilities", "Groceries", "Transportation"}

// Config configures an Engine
type Config struct {
	// Clock supplies the as-of time for trailing windows
	Clock func() time.Time `json:"-" yaml:"-"`

	TrendMonths   int `json:"trend_months" yaml:"trend_months"`
	SavingsMonths int `json:"savings_months" yaml:"savings_months"`
	FeatureMonths int `json:"feature_months" yaml:"feature_months"`
	HealthMonths  int `json:"health_months" yaml:"health_months"`

	EssentialCategories []string `json:"essential_categories" yaml:"essential_categories"`

	// AbsoluteAmounts sums |amount| so that exports with negative debits
	// and positive credits report positive totals for every category type
	AbsoluteAmounts bool `json:"absolute_amounts" yaml:"absolute_amounts"`

	// InferMissingCategories derives the type of categories absent from the
	// reference data from their name instead of skipping them
	InferMissingCategories bool `json:"infer_missing_categories" yaml:"infer_missing_categories"`

	TrailingTransactions int `json:"trailing_transactions" yaml:"trailing_transactions"`
	TopCategories        int `json:"top_categories" yaml:"top_categories"`
	RecentAnomalies      int `json:"recent_anomalies" yaml:"recent_anomalies"`
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		Clock:                time.Now,
		TrendMonths:          12,
		SavingsMonths:        12,
		FeatureMonths:        6,
		HealthMonths:         3,
		EssentialCategories:  append([]string(nil), DefaultEssentialCategories...),
		AbsoluteAmounts:      true,
		TrailingTransactions: 7,
		TopCategories:        5,
		RecentAnomalies:      5,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	months := map[string]int{
		"trend_months":   c.TrendMonths,
		"savings_months": c.SavingsMonths,
		"feature_months": c.FeatureMonths,
		"health_months":  c.HealthMonths,
	}
	for name, v := range months {
		if v < 1 {
			return errors.ConfigurationError(errors.CodeInvalidConfig, name, v, fmt.Errorf("must be at least 1"))
		}
	}
	if c.TrailingTransactions < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "trailing_transactions", c.TrailingTransactions, nil)
	}
	if c.TopCategories < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "top_categories", c.TopCategories, nil)
	}
	if c.RecentAnomalies < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "recent_anomalies", c.RecentAnomalies, nil)
	}
	for _, name := range c.EssentialCategories {
		if strings.TrimSpace(name) == "" {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "essential_categories", c.EssentialCategories,
				fmt.Errorf("empty category name"))
		}
	}
	return nil
}

// Reference is the read-only reference data reports join against
type Reference struct {
	Categories []models.Category
	Budgets    []models.Budget
}

// Engine computes reports
type Engine struct {
	config    Config
	budgets   []models.Budget
	types     map[string]models.CategoryType
	essential map[string]bool
	logger    logger.Logger
}

// NewEngine creates an engine. A nil config uses DefaultConfig. Invalid
// categories in ref are logged and ignored.
func NewEngine(config *Config, ref Reference) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:    *config,
		budgets:   append([]models.Budget(nil), ref.Budgets...),
		types:     make(map[string]models.CategoryType, len(ref.Categories)),
		essential: make(map[string]bool, len(config.EssentialCategories)),
		logger:    logger.GetGlobalLogger().WithComponent("analytics"),
	}
	if e.config.Clock == nil {
		e.config.Clock = time.Now
	}

	for _, c := range ref.Categories {
		if err := c.Validate(); err != nil {
			e.logger.WithError(err).WithField("category", c.Name).Warn("Ignoring invalid category")
			continue
		}
		e.types[c.Name] = c.Type
	}
	for _, name := range config.EssentialCategories {
		e.essential[name] = true
	}

	return e, nil
}

// WithClock returns a copy of the engine that uses clock for as-of times
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	cp := *e
	cp.config.Clock = clock
	return &cp
}

// Config returns a copy of the engine configuration
func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) now() time.Time {
	return e.config.Clock()
}

func (e *Engine) amount(r *models.TransactionRecord) decimal.Decimal {
	if e.config.AbsoluteAmounts {
		return r.AmountAbs
	}
	return r.Amount
}

func (e *Engine) categoryType(name string) (models.CategoryType, bool) {
	if t, ok := e.types[name]; ok {
		return t, true
	}
	if e.config.InferMissingCategories {
		return models.InferCategoryType(name), true
	}
	return "", false
}

// trailingPeriod covers the given number of months up to the end of the as-of day
func (e *Engine) trailingPeriod(months int) Period {
	now := e.now()
	y, m, d := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return Period{
		Start: dayStart.AddDate(0, -months, 0),
		End:   dayStart.AddDate(0, 0, 1).Add(-time.Nanosecond),
	}
}

// typed is a record whose category type is known
type typed struct {
	record *models.TransactionRecord
	kind   models.CategoryType
	amount decimal.Decimal
}

// selectRecords filters records by user and period and resolves category types.
// Records with an unknown category are dropped and reported once per name.
func (e *Engine) selectRecords(records []models.TransactionRecord, userID string, p *Period, skipped *skipList) []typed {
	out := make([]typed, 0, len(records))
	for i := range records {
		r := &records[i]
		if userID != "" && r.UserID != userID {
			continue
		}
		if p != nil && !p.Contains(r.TransactionDate) {
			continue
		}
		kind, ok := e.categoryType(r.CategoryName)
		if !ok {
			skipped.add(errors.ReferenceDataError(errors.CodeUnknownCategory, "category", r.CategoryName,
				"category is not in the reference data"))
			continue
		}
		out = append(out, typed{record: r, kind: kind, amount: e.amount(r)})
	}
	return out
}

func (e *Engine) newSkipList(report string) *skipList {
	return &skipList{seen: map[string]bool{}, logger: e.logger.WithField("report", report)}
}

func (e *Engine) newMeta(report, userID string, period Period) Meta {
	return Meta{Report: report, UserID: userID, GeneratedAt: e.now(), Period: period}
}
