// Package quality scores the completeness and validity of a normalized batch.
package quality

import (
	"fmt"
	"math"
	"strings"

	"finsight/internal/models"
)

// Weights of the two score components
const (
	CompletenessWeight = 0.7
	ValidityWeight     = 0.3
)

// Field names counted by the scorer. The id is assigned by storage and is not counted.
const (
	FieldUser          = "user_id"
	FieldCategory      = "category"
	FieldAmount        = "amount"
	FieldDescription   = "description"
	FieldDate          = "transaction_date"
	FieldMerchant      = "merchant"
	FieldPaymentMethod = "payment_method"
	FieldIsRecurring   = "is_recurring"
	FieldIsAnomaly     = "is_anomaly"
)

// Fields lists the counted fields in report order
var Fields = []string{
	FieldUser, FieldCategory, FieldAmount, FieldDescription, FieldDate,
	FieldMerchant, FieldPaymentMethod, FieldIsRecurring, FieldIsAnomaly,
}

// Report is the quality summary of one batch
type Report struct {
	Score          float64        `json:"score"`
	Completeness   float64        `json:"completeness"`
	Validity       float64        `json:"validity"`
	TotalRecords   int            `json:"total_records"`
	TotalFields    int            `json:"total_fields"`
	MissingFields  int            `json:"missing_fields"`
	MissingByField map[string]int `json:"missing_by_field,omitempty"`
	AnomalyCount   int            `json:"anomaly_count"`
	NoData         bool           `json:"no_data"`
}

// String returns a human-readable summary
func (r Report) String() string {
	if r.NoData {
		return "no data"
	}
	return fmt.Sprintf("score %.2f (completeness %.4f, validity %.4f, %d records, %d anomalies)",
		r.Score, r.Completeness, r.Validity, r.TotalRecords, r.AnomalyCount)
}

// Score computes round(100·(0.7·completeness + 0.3·validity), 2) where
// completeness is the share of non-missing counted fields and validity is the
// share of records not flagged as anomalies. Empty input yields NoData and a
// score of 0.
func Score(records []models.TransactionRecord) Report {
	if len(records) == 0 {
		return Report{NoData: true}
	}

	report := Report{
		TotalRecords:   len(records),
		TotalFields:    len(records) * len(Fields),
		MissingByField: map[string]int{},
	}

	for i := range records {
		r := &records[i]
		for _, field := range missing(r) {
			report.MissingByField[field]++
			report.MissingFields++
		}
		if r.IsAnomaly {
			report.AnomalyCount++
		}
	}

	report.Completeness = 1 - float64(report.MissingFields)/float64(report.TotalFields)
	report.Validity = 1 - float64(report.AnomalyCount)/float64(report.TotalRecords)
	report.Score = Round(100*(CompletenessWeight*report.Completeness+ValidityWeight*report.Validity), 2)
	return report
}

func missing(r *models.TransactionRecord) []string {
	var fields []string
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }

	if blank(r.UserID) {
		fields = append(fields, FieldUser)
	}
	if blank(r.CategoryName) {
		fields = append(fields, FieldCategory)
	}
	if blank(r.Description) {
		fields = append(fields, FieldDescription)
	}
	if r.TransactionDate.IsZero() {
		fields = append(fields, FieldDate)
	}
	if blank(r.Merchant) {
		fields = append(fields, FieldMerchant)
	}
	if blank(r.PaymentMethod) {
		fields = append(fields, FieldPaymentMethod)
	}
	// amount and the two flags are typed values and cannot be absent
	return fields
}

// Round rounds x half away from zero to the given number of decimal places
func Round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
