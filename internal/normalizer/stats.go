package normalizer

import (
	"fmt"

	"finsight/pkg/errors"
)

// Stage names the normalization step that rejected a row
type Stage string

const (
	StageDuplicate    Stage = "duplicate"
	StageMissingField Stage = "missing_field"
	StageAmount       Stage = "amount"
	StageDate         Stage = "date"
)

// Rejection describes one dropped row. Row is the 1-based position in the input batch.
type Rejection struct {
	Row   int                   `json:"row"`
	Stage Stage                 `json:"stage"`
	Field string                `json:"field,omitempty"`
	Value string                `json:"value,omitempty"`
	Err   *errors.FinsightError `json:"-"`
}

// RejectionStats counts rows removed at each step of normalization
type RejectionStats struct {
	TotalRows     int         `json:"total_rows"`
	Duplicates    int         `json:"duplicates"`
	MissingFields int         `json:"missing_fields"`
	InvalidAmount int         `json:"invalid_amount"`
	InvalidDate   int         `json:"invalid_date"`
	Accepted      int         `json:"accepted"`
	DateColumn    string      `json:"date_column"`
	Rejections    []Rejection `json:"rejections,omitempty"`

	maxRecorded int
}

func newRejectionStats(total, maxRecorded int) *RejectionStats {
	return &RejectionStats{TotalRows: total, maxRecorded: maxRecorded}
}

func (s *RejectionStats) reject(r Rejection) {
	switch r.Stage {
	case StageDuplicate:
		s.Duplicates++
	case StageMissingField:
		s.MissingFields++
	case StageAmount:
		s.InvalidAmount++
	case StageDate:
		s.InvalidDate++
	}
	if s.maxRecorded == 0 || len(s.Rejections) < s.maxRecorded {
		s.Rejections = append(s.Rejections, r)
	}
}

// Dropped returns the number of rows removed across all steps
func (s *RejectionStats) Dropped() int {
	return s.Duplicates + s.MissingFields + s.InvalidAmount + s.InvalidDate
}

// Errors returns the recorded rejection errors
func (s *RejectionStats) Errors() []*errors.FinsightError {
	errs := make([]*errors.FinsightError, 0, len(s.Rejections))
	for _, r := range s.Rejections {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// SampleRejections returns up to n rejection messages
func (s *RejectionStats) SampleRejections(n int) []string {
	limit := len(s.Rejections)
	if n > 0 && n < limit {
		limit = n
	}
	samples := make([]string, 0, limit)
	for _, r := range s.Rejections[:limit] {
		if r.Err != nil {
			samples = append(samples, r.Err.Message)
			continue
		}
		samples = append(samples, fmt.Sprintf("row %d rejected at %s", r.Row, r.Stage))
	}
	return samples
}

// String returns a human-readable summary
func (s *RejectionStats) String() string {
	return fmt.Sprintf("%d rows: %d accepted, %d duplicates, %d missing fields, %d invalid amounts, %d invalid dates",
		s.TotalRows, s.Accepted, s.Duplicates, s.MissingFields, s.InvalidAmount, s.InvalidDate)
}
