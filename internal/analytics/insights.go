package analytics

import (
	"sort"
	"time"

	"finsight/internal/models"
	"finsight/internal/outlier"
	"finsight/internal/window"

	"github.com/shopspring/decimal"
)

// Health trend labels
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
)

// DataSummary describes the records behind an insights report
type DataSummary struct {
	TotalTransactions int             `json:"total_transactions"`
	DateRange         Period          `json:"date_range"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	UniqueCategories  int             `json:"unique_categories"`
	UniqueMerchants   int             `json:"unique_merchants"`
}

// MonthlyHealth is the health score of a single calendar month
type MonthlyHealth struct {
	Month time.Time    `json:"month"`
	Score float64      `json:"score"`
	Grade models.Grade `json:"grade"`
}

// AnomalySummary lists anomalies found with the IQR + z-score policy
type AnomalySummary struct {
	Evaluated      int                        `json:"evaluated"`
	TotalAnomalies int                        `json:"total_anomalies"`
	AnomalyRatePct float64                    `json:"anomaly_rate"`
	Recent         []models.TransactionRecord `json:"recent_anomalies"`
}

// InsightsReport combines a data summary, the current health score, the
// monthly health trend and recent anomalies
type InsightsReport struct {
	Meta
	Data        DataSummary     `json:"data_summary"`
	Health      *HealthReport   `json:"financial_health"`
	HealthTrend []MonthlyHealth `json:"health_trend"`
	Trend       string          `json:"trend"`
	Anomalies   AnomalySummary  `json:"anomaly_detection"`
}

// Insights builds the composite report over all of the user's records
func (e *Engine) Insights(records []models.TransactionRecord, userID string) (*InsightsReport, error) {
	report := &InsightsReport{Meta: e.newMeta(ReportInsights, userID, Period{})}

	var mine []models.TransactionRecord
	for i := range records {
		if userID == "" || records[i].UserID == userID {
			mine = append(mine, records[i])
		}
	}
	if len(mine) == 0 {
		report.markNoData()
		return report, nil
	}

	report.Data = summarize(mine)
	report.Period = report.Data.DateRange

	health, err := e.HealthScore(mine, userID)
	if err != nil {
		return nil, err
	}
	report.Health = health

	skipped := e.newSkipList(ReportInsights)
	report.HealthTrend = e.monthlyHealth(e.selectRecords(mine, userID, nil, skipped))
	report.Skipped = skipped.items
	report.Trend = TrendDeclining
	if n := len(report.HealthTrend); n > 0 && report.HealthTrend[n-1].Score > report.HealthTrend[0].Score {
		report.Trend = TrendImproving
	}

	anomalies, err := e.anomalies(mine)
	if err != nil {
		return nil, err
	}
	report.Anomalies = anomalies

	return report, nil
}

func summarize(records []models.TransactionRecord) DataSummary {
	s := DataSummary{TotalTransactions: len(records)}
	categories := map[string]bool{}
	merchants := map[string]bool{}
	for i := range records {
		r := &records[i]
		if s.DateRange.Start.IsZero() || r.TransactionDate.Before(s.DateRange.Start) {
			s.DateRange.Start = r.TransactionDate
		}
		if r.TransactionDate.After(s.DateRange.End) {
			s.DateRange.End = r.TransactionDate
		}
		s.TotalAmount = s.TotalAmount.Add(r.AmountAbs)
		categories[r.CategoryName] = true
		if r.Merchant != "" {
			merchants[r.Merchant] = true
		}
	}
	s.UniqueCategories = len(categories)
	s.UniqueMerchants = len(merchants)
	return s
}

// monthlyHealth scores each calendar month separately, oldest first
func (e *Engine) monthlyHealth(selected []typed) []MonthlyHealth {
	totals := map[time.Time]*healthTotals{}
	for _, t := range selected {
		month := window.Month.Truncate(t.record.TransactionDate)
		h, ok := totals[month]
		if !ok {
			h = &healthTotals{}
			totals[month] = h
		}
		e.addTotals(h, t)
	}

	out := make([]MonthlyHealth, 0, len(totals))
	for month, h := range totals {
		var res models.HealthScoreResult
		h.fill(&res)
		out = append(out, MonthlyHealth{Month: month, Score: res.Score, Grade: res.Grade})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

func (e *Engine) anomalies(records []models.TransactionRecord) (AnomalySummary, error) {
	var summary AnomalySummary

	detector, err := outlier.NewDetector(outlier.IQRZScorePolicy())
	if err != nil {
		return summary, err
	}
	flagged, flags := detector.Detect(records)

	var recent []models.TransactionRecord
	for i, f := range flags {
		if !f.Evaluated {
			continue
		}
		summary.Evaluated++
		if f.IsAnomaly {
			summary.TotalAnomalies++
			recent = append(recent, flagged[i])
		}
	}
	if summary.Evaluated > 0 {
		summary.AnomalyRatePct = float64(summary.TotalAnomalies) / float64(summary.Evaluated) * 100
	}

	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].TransactionDate.After(recent[j].TransactionDate)
	})
	if len(recent) > e.config.RecentAnomalies {
		recent = recent[:e.config.RecentAnomalies]
	}
	summary.Recent = recent
	return summary, nil
}
