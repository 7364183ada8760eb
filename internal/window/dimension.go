package window

import (
	"finsight/internal/models"

	"github.com/shopspring/decimal"
)

// Dimension derives the non-time grouping key of a record
type Dimension struct {
	Name  string
	Value func(r *models.TransactionRecord) string
}

// Predefined dimensions
var (
	Category = Dimension{Name: "category", Value: func(r *models.TransactionRecord) string { return r.CategoryName }}
	Merchant = Dimension{Name: "merchant", Value: func(r *models.TransactionRecord) string { return r.Merchant }}
	Payment  = Dimension{Name: "payment_method", Value: func(r *models.TransactionRecord) string { return r.PaymentMethod }}
	User     = Dimension{Name: "user", Value: func(r *models.TransactionRecord) string { return r.UserID }}
	All      = Dimension{Name: "all", Value: func(*models.TransactionRecord) string { return "all" }}
)

// Dimensions lists the predefined dimensions by name
var Dimensions = map[string]Dimension{
	Category.Name: Category,
	Merchant.Name: Merchant,
	Payment.Name:  Payment,
	User.Name:     User,
	All.Name:      All,
}

// Measure selects which amount is summed
type Measure string

const (
	Signed   Measure = "signed"
	Absolute Measure = "absolute"
)

func (m Measure) of(r *models.TransactionRecord) decimal.Decimal {
	if m == Absolute {
		return r.AmountAbs
	}
	return r.Amount
}
