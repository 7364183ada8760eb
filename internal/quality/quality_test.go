package quality

import (
	"testing"
	"time"

	"finsight/internal/models"

	"github.com/shopspring/decimal"
)

func complete() models.TransactionRecord {
	return models.TransactionRecord{
		UserID:          "u1",
		CategoryName:    "Dining",
		Amount:          decimal.NewFromInt(-12),
		Description:     "Starbucks",
		TransactionDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Merchant:        "Starbucks",
		PaymentMethod:   "Unknown",
	}
}

func TestScore(t *testing.T) {
	anomalous := complete()
	anomalous.IsAnomaly = true
	noMerchant := complete()
	noMerchant.Merchant = ""
	noMerchant.PaymentMethod = " "

	tests := []struct {
		name         string
		records      []models.TransactionRecord
		score        float64
		missing      int
		anomalies    int
		completeness float64
	}{
		{"perfect batch", []models.TransactionRecord{complete(), complete()}, 100, 0, 0, 1},
		{"one anomaly in four", []models.TransactionRecord{complete(), complete(), complete(), anomalous}, 92.5, 0, 1, 1},
		{"missing fields", []models.TransactionRecord{complete(), noMerchant}, 92.22, 2, 0, 1 - 2.0/18.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.records)
			if got.NoData {
				t.Fatal("unexpected NoData")
			}
			if got.Score != tt.score {
				t.Errorf("Score = %v, want %v", got.Score, tt.score)
			}
			if got.MissingFields != tt.missing || got.AnomalyCount != tt.anomalies {
				t.Errorf("missing=%d anomalies=%d", got.MissingFields, got.AnomalyCount)
			}
			if Round(got.Completeness, 6) != Round(tt.completeness, 6) {
				t.Errorf("Completeness = %v, want %v", got.Completeness, tt.completeness)
			}
			if got.TotalFields != len(tt.records)*len(Fields) {
				t.Errorf("TotalFields = %d", got.TotalFields)
			}
		})
	}
}

func TestScore_MissingByField(t *testing.T) {
	r := complete()
	r.UserID = ""
	r.TransactionDate = time.Time{}

	got := Score([]models.TransactionRecord{r})
	if got.MissingByField[FieldUser] != 1 || got.MissingByField[FieldDate] != 1 || got.MissingFields != 2 {
		t.Errorf("unexpected breakdown %v", got.MissingByField)
	}
}

func TestScore_Empty(t *testing.T) {
	got := Score(nil)
	if !got.NoData || got.Score != 0 {
		t.Errorf("expected NoData with score 0, got %+v", got)
	}
	if got.String() != "no data" {
		t.Errorf("unexpected String() %q", got.String())
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{92.2222, 92.22},
		{0.125, 0.13},
		{-0.125, -0.13},
		{70, 70},
	}
	for _, tt := range tests {
		if got := Round(tt.in, 2); got != tt.want {
			t.Errorf("Round(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
