package analytics

import (
	"sort"
	"time"

	"finsight/internal/models"
	"finsight/internal/outlier"
	"finsight/internal/window"

	"github.com/shopspring/decimal"
)

// ExpenseFeature is one expense transaction with statistics of its category
type ExpenseFeature struct {
	TransactionID   string          `json:"transaction_id,omitempty"`
	TransactionDate time.Time       `json:"transaction_date"`
	Category        string          `json:"category"`
	Merchant        string          `json:"merchant"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	HourOfDay       int             `json:"hour_of_day"`
	// DayOfWeek counts from Monday = 0 to Sunday = 6, matching the stored
	// transaction features rather than a Sunday-based weekday
	DayOfWeek            int             `json:"day_of_week"`
	Month                int             `json:"month"`
	IsRecurring          bool            `json:"is_recurring"`
	CategoryMean         float64         `json:"category_avg_amount"`
	CategoryStdDev       float64         `json:"category_std_amount"`
	CategoryFrequency    int             `json:"category_frequency"`
	PercentileInCategory float64         `json:"amount_percentile_in_category"`
	TrailingAverage      decimal.Decimal `json:"rolling_avg_transactions"`
	Flag                 outlier.Band    `json:"anomaly_flag"`
}

// CategorySpend is the total spend of one category
type CategorySpend struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// ExpenseInsights summarizes an expense feature report
type ExpenseInsights struct {
	TotalExpenses int             `json:"total_expenses"`
	AnomalyCount  int             `json:"anomaly_count"`
	AnomalyPct    float64         `json:"anomaly_percentage"`
	TopCategories []CategorySpend `json:"top_categories"`
}

// ExpenseFeatureReport lists expense transactions, latest first
type ExpenseFeatureReport struct {
	Meta
	Features []ExpenseFeature `json:"expense_features"`
	Insights ExpenseInsights  `json:"insights"`
}

// ExpenseFeatures derives per-transaction category statistics for expense
// records of the last months. Transactions outside the category mean ± 2σ
// are flagged outlier_high or outlier_low.
func (e *Engine) ExpenseFeatures(records []models.TransactionRecord, userID string, months int) (*ExpenseFeatureReport, error) {
	if months <= 0 {
		months = e.config.FeatureMonths
	}
	period := e.trailingPeriod(months)
	skipped := e.newSkipList(ReportExpenses)
	report := &ExpenseFeatureReport{Meta: e.newMeta(ReportExpenses, userID, period)}

	var expenses []typed
	for _, t := range e.selectRecords(records, userID, &period, skipped) {
		if t.kind == models.CategoryTypeExpense {
			expenses = append(expenses, t)
		}
	}
	report.Skipped = skipped.items
	if len(expenses) == 0 {
		report.markNoData()
		return report, nil
	}

	features := make([]ExpenseFeature, len(expenses))
	byCategory := map[string][]int{}
	byUser := map[string][]int{}
	for i, t := range expenses {
		r := t.record
		features[i] = ExpenseFeature{
			TransactionID:   r.ID,
			TransactionDate: r.TransactionDate,
			Category:        r.CategoryName,
			Merchant:        r.Merchant,
			Description:     r.Description,
			Amount:          t.amount,
			HourOfDay:       r.TransactionDate.Hour(),
			DayOfWeek:       (int(r.TransactionDate.Weekday()) + 6) % 7,
			Month:           int(r.TransactionDate.Month()),
			IsRecurring:     r.IsRecurring,
		}
		byCategory[r.CategoryName] = append(byCategory[r.CategoryName], i)
		byUser[r.UserID] = append(byUser[r.UserID], i)
	}

	spend := make([]CategorySpend, 0, len(byCategory))
	for category, idx := range byCategory {
		amounts := make([]decimal.Decimal, len(idx))
		values := make([]float64, len(idx))
		total := decimal.Zero
		for j, i := range idx {
			amounts[j] = features[i].Amount
			values[j] = features[i].Amount.InexactFloat64()
			total = total.Add(features[i].Amount)
		}
		mean, std := outlier.MeanStdDev(values)
		ranks := window.PercentRank(amounts, window.CompareDecimal)
		for j, i := range idx {
			f := &features[i]
			f.CategoryMean = mean
			f.CategoryStdDev = std
			f.CategoryFrequency = len(idx)
			f.PercentileInCategory = ranks[j]
			f.Flag = outlier.SigmaBand(values[j], mean, std, outlier.DefaultSigmaMultiplier)
		}
		spend = append(spend, CategorySpend{Category: category, Total: total, Count: len(idx)})
	}

	for _, idx := range byUser {
		sort.SliceStable(idx, func(a, b int) bool {
			return features[idx[a]].TransactionDate.Before(features[idx[b]].TransactionDate)
		})
		amounts := make([]decimal.Decimal, len(idx))
		for j, i := range idx {
			amounts[j] = features[i].Amount
		}
		for j, avg := range window.TrailingMean(amounts, e.config.TrailingTransactions) {
			features[idx[j]].TrailingAverage = avg
		}
	}

	sort.SliceStable(features, func(i, j int) bool {
		return features[i].TransactionDate.After(features[j].TransactionDate)
	})
	report.Features = features

	insights := &report.Insights
	insights.TotalExpenses = len(features)
	for _, f := range features {
		if f.Flag != outlier.BandNormal {
			insights.AnomalyCount++
		}
	}
	insights.AnomalyPct = float64(insights.AnomalyCount) / float64(insights.TotalExpenses) * 100

	sort.Slice(spend, func(i, j int) bool {
		if c := spend[i].Total.Cmp(spend[j].Total); c != 0 {
			return c > 0
		}
		return spend[i].Category < spend[j].Category
	})
	if len(spend) > e.config.TopCategories {
		spend = spend[:e.config.TopCategories]
	}
	insights.TopCategories = spend

	return report, nil
}
