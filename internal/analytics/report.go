package analytics

import (
	"fmt"
	"time"

	"finsight/pkg/errors"
	"finsight/pkg/logger"
)

// Report names
const (
	ReportTrends   = "spending_trends"
	ReportBudgets  = "budget_variance"
	ReportSavings  = "savings"
	ReportExpenses = "expense_features"
	ReportHealth   = "health_score"
	ReportInsights = "insights"
)

// Period is an inclusive time range
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within the period
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// SkippedItem is reference data left out of a report, with the reason
type SkippedItem struct {
	Kind   string                `json:"kind"`
	Key    string                `json:"key"`
	Reason string                `json:"reason"`
	Err    *errors.FinsightError `json:"-"`
}

// Meta is shared by all reports
type Meta struct {
	Report       string        `json:"report"`
	UserID       string        `json:"user_id"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Period       Period        `json:"period"`
	NoData       bool          `json:"no_data"`
	NoDataReason string        `json:"no_data_reason,omitempty"`
	Skipped      []SkippedItem `json:"skipped,omitempty"`
}

// Empty reports whether the report has no data
func (m *Meta) Empty() bool {
	return m.NoData
}

// Notes lists the no-data reason and every skipped reference item
func (m *Meta) Notes() []string {
	var notes []string
	if m.NoData && m.NoDataReason != "" {
		notes = append(notes, m.NoDataReason)
	}
	for _, s := range m.Skipped {
		notes = append(notes, fmt.Sprintf("skipped %s %q: %s", s.Kind, s.Key, s.Reason))
	}
	return notes
}

func (m *Meta) markNoData() {
	m.NoData = true
	m.NoDataReason = errors.EmptyDatasetError(m.Report, m.UserID).Message
}

type skipList struct {
	items  []SkippedItem
	seen   map[string]bool
	logger logger.Logger
}

func (s *skipList) add(err *errors.FinsightError) {
	kind, _ := err.Context["kind"].(string)
	key, _ := err.Context["key"].(string)
	if s.seen[kind+"\x00"+key] {
		return
	}
	s.seen[kind+"\x00"+key] = true

	s.logger.WithFields(logger.Fields{
		"kind": kind,
		"key":  key,
		"code": err.Code,
	}).Warn(err.Message)
	s.items = append(s.items, SkippedItem{Kind: kind, Key: key, Reason: err.Message, Err: err})
}
