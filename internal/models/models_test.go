package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestInferCategoryType(t *testing.T) {
	tests := []struct {
		name     string
		expected CategoryType
	}{
		{"Income", CategoryTypeIncome},
		{"Salary", CategoryTypeIncome},
		{"Annual Bonus", CategoryTypeIncome},
		{"Savings", CategoryTypeSavings},
		{"Investment", CategoryTypeSavings},
		{"401k", CategoryTypeSavings},
		{"Groceries", CategoryTypeExpense},
		{"Other", CategoryTypeExpense},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferCategoryType(tt.name); got != tt.expected {
				t.Errorf("InferCategoryType(%q) = %s, want %s", tt.name, got, tt.expected)
			}
		})
	}
}

func TestCategory_Validate(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		wantErr  bool
	}{
		{"valid", Category{Name: "Dining", Type: CategoryTypeExpense}, false},
		{"empty name", Category{Name: "  ", Type: CategoryTypeExpense}, true},
		{"bad type", Category{Name: "Dining", Type: "luxury"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.category.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBudget_ValidateAndContains(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	valid := Budget{
		UserID:       "u1",
		CategoryName: "Groceries",
		Amount:       decimal.NewFromInt(500),
		Period:       BudgetPeriodMonthly,
		StartDate:    start,
		EndDate:      end,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid budget, got %v", err)
	}

	reversed := valid
	reversed.StartDate, reversed.EndDate = end, start
	if err := reversed.Validate(); err == nil {
		t.Error("expected error for end before start")
	}

	badPeriod := valid
	badPeriod.Period = "daily"
	if err := badPeriod.Validate(); err == nil {
		t.Error("expected error for unsupported period")
	}

	zeroAmount := valid
	zeroAmount.Amount = decimal.Zero
	if err := zeroAmount.Validate(); err != nil {
		t.Errorf("zero amount must pass validation, got %v", err)
	}

	cases := []struct {
		at   time.Time
		want bool
	}{
		{start, true},
		{time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC), true},
		{time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), false},
		{time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), false},
	}
	for _, c := range cases {
		if got := valid.Contains(c.at); got != c.want {
			t.Errorf("Contains(%s) = %v, want %v", c.at, got, c.want)
		}
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"12.34", "12.34", false},
		{"-12.34", "-12.34", false},
		{"$1,234.50", "1234.5", false},
		{"(45.00)", "-45", false},
		{"  7 ", "7", false},
		{"", "", true},
		{"abc", "", true},
		{"1.2.3", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDecimalFromString(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("ParseDecimalFromString(%q) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseTimeWithFormats(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		input   string
		wantErr bool
	}{
		{"2024-01-15", false},
		{"01/15/2024", false},
		{"1/15/2024", false},
		{"2024/01/15", false},
		{"15.01.2024", false},
		{"Jan 15, 2024", false},
		{"January 15, 2024", false},
		{"15 Jan 2024", false},
		{"15-Jan-2024", false},
		{"20240115", false},
		{"2024-01-15T00:00:00Z", false},
		{"not a date", true},
		{"", true},
		{"2024-13-45", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeWithFormats(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimeWithFormats(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(want) {
				t.Errorf("ParseTimeWithFormats(%q) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "Yes", "1", "T"} {
		if v, err := ParseBool(s); err != nil || !v {
			t.Errorf("ParseBool(%q) = %v, %v; want true", s, v, err)
		}
	}
	for _, s := range []string{"false", "no", "0", ""} {
		if v, err := ParseBool(s); err != nil || v {
			t.Errorf("ParseBool(%q) = %v, %v; want false", s, v, err)
		}
	}
	if _, err := ParseBool("maybe"); err == nil {
		t.Error("expected error for 'maybe'")
	}
}

func TestRawRecord_Key(t *testing.T) {
	amount, desc := "10", "coffee"
	empty := ""

	a := RawRecord{Line: 2, Amount: &amount, Description: &desc}
	b := RawRecord{Line: 9, Amount: &amount, Description: &desc}
	c := RawRecord{Line: 2, Amount: &amount, Description: &desc, Merchant: &empty}

	if a.Key() != b.Key() {
		t.Error("line number must not affect the key")
	}
	if a.Key() == c.Key() {
		t.Error("absent and empty fields must produce different keys")
	}

	digest := "3f2a9c"
	d := RawRecord{Line: 2, Amount: &amount, Description: &desc, RowDigest: &digest}
	if a.Key() == d.Key() {
		t.Error("rows with different unmapped columns must produce different keys")
	}
}

func TestTransactionRecord_ToRowAndJSON(t *testing.T) {
	rec := TransactionRecord{
		ID:              "tx-1",
		UserID:          "u1",
		CategoryName:    "Dining",
		Amount:          decimal.RequireFromString("-4.50"),
		Description:     "Starbucks",
		TransactionDate: time.Date(2024, 2, 3, 8, 30, 0, 0, time.UTC),
		Merchant:        "Starbucks",
		PaymentMethod:   "Credit Card",
		IsRecurring:     true,
		Tags:            []string{"coffee", "work"},
		AmountAbs:       decimal.RequireFromString("4.50"),
	}

	row := rec.ToRow()
	if _, ok := row[ColumnRowDigest]; ok {
		t.Error("empty row digest must not be rendered")
	}
	rec.RowDigest = "3f2a9c"
	if got := rec.ToRow()[ColumnRowDigest]; got != "3f2a9c" {
		t.Errorf("unexpected row digest column %v", got)
	}
	if row[ColumnAmount] != "-4.5" {
		t.Errorf("unexpected amount column %v", row[ColumnAmount])
	}
	if row[ColumnIsRecurring] != "true" || row[ColumnTags] != "coffee;work" {
		t.Errorf("unexpected row %v", row)
	}
	parsed, err := ParseTimeWithFormats(row[ColumnDate].(string))
	if err != nil || !parsed.Equal(rec.TransactionDate) {
		t.Errorf("date does not round-trip: %v %v", parsed, err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"amount":"-4.5"`) {
		t.Errorf("expected amount as string, got %s", data)
	}
	if !strings.Contains(string(data), `"transaction_date":"2024-02-03T08:30:00Z"`) {
		t.Errorf("expected RFC3339 date, got %s", data)
	}
}
