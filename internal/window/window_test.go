package window

import (
	"cmp"
	"math"
	"testing"
	"time"

	"finsight/internal/models"

	"github.com/shopspring/decimal"
)

func tx(category string, date string, amount string) models.TransactionRecord {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	a := decimal.RequireFromString(amount)
	return models.TransactionRecord{
		UserID:          "u1",
		CategoryName:    category,
		Amount:          a,
		AmountAbs:       a.Abs(),
		TransactionDate: d,
	}
}

func sample() []models.TransactionRecord {
	return []models.TransactionRecord{
		tx("Dining", "2024-01-03", "-40"),
		tx("Dining", "2024-01-20", "-60"),
		tx("Dining", "2024-02-11", "-150"),
		tx("Dining", "2024-04-02", "-50"),
		tx("Groceries", "2024-01-05", "-210.35"),
		tx("Groceries", "2024-02-05", "-180"),
		tx("Groceries", "2024-02-19", "-75.10"),
		tx("Groceries", "2024-03-01", "-99.99"),
		tx("Income", "2024-01-31", "3000"),
		tx("Income", "2024-02-29", "3000"),
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func find(t *testing.T, metrics []models.WindowedMetric, dim, window string) models.WindowedMetric {
	t.Helper()
	w, _ := time.Parse("2006-01-02", window)
	for _, m := range metrics {
		if m.Dimension == dim && m.Window.Equal(w) {
			return m
		}
	}
	t.Fatalf("metric %s/%s not found", dim, window)
	return models.WindowedMetric{}
}

func TestUnitTruncate(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	tests := []struct {
		unit Unit
		in   time.Time
		want string
	}{
		{Day, time.Date(2024, 3, 10, 18, 45, 0, 0, time.UTC), "2024-03-10"},
		{Week, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), "2024-03-04"},
		{Week, time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), "2024-03-04"},
		{Month, time.Date(2024, 3, 31, 23, 30, 0, 0, est), "2024-03-01"},
		{Quarter, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), "2024-04-01"},
		{Quarter, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), "2024-10-01"},
		{Year, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), "2024-01-01"},
	}
	for _, tt := range tests {
		t.Run(string(tt.unit)+"/"+tt.want, func(t *testing.T) {
			got := tt.unit.Truncate(tt.in)
			if got.Format("2006-01-02") != tt.want || got.Location() != time.UTC {
				t.Errorf("Truncate(%s) = %s", tt.in, got)
			}
		})
	}
}

func TestUnitLabelAndParse(t *testing.T) {
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	labels := map[Unit]string{Day: "2024-04-01", Week: "2024-W14", Month: "2024-04", Quarter: "2024-Q2", Year: "2024"}
	for unit, want := range labels {
		if got := unit.Label(start); got != want {
			t.Errorf("%s label = %q, want %q", unit, got, want)
		}
	}

	if u, err := ParseUnit(" Month "); err != nil || u != Month {
		t.Errorf("ParseUnit = %v, %v", u, err)
	}
	if _, err := ParseUnit("fortnight"); err == nil {
		t.Error("expected error for unknown unit")
	}
	if got := Month.Add(start, -2); got.Format("2006-01-02") != "2024-02-01" {
		t.Errorf("Add = %s", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"bad unit", func(c *Config) { c.Unit = "hour" }, true},
		{"no dimension", func(c *Config) { c.Dimension = Dimension{Name: "x"} }, true},
		{"bad measure", func(c *Config) { c.Measure = "net" }, true},
		{"zero rolling", func(c *Config) { c.RollingPeriods = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAggregate_ConservesTotals(t *testing.T) {
	records := sample()
	for _, unit := range []Unit{Day, Week, Month, Quarter, Year} {
		t.Run(string(unit), func(t *testing.T) {
			metrics, err := Aggregate(records, unit, Category)
			if err != nil {
				t.Fatal(err)
			}

			want := map[string]decimal.Decimal{}
			count := map[string]int{}
			for _, r := range records {
				want[r.CategoryName] = want[r.CategoryName].Add(r.Amount)
				count[r.CategoryName]++
			}
			got := Totals(metrics)
			for dim, total := range want {
				if !got[dim].Equal(total) {
					t.Errorf("%s: aggregated %s, records %s", dim, got[dim], total)
				}
			}

			gotCount := map[string]int{}
			for _, m := range metrics {
				gotCount[m.Dimension] += m.Count
			}
			for dim, n := range count {
				if gotCount[dim] != n {
					t.Errorf("%s: count %d, want %d", dim, gotCount[dim], n)
				}
			}
		})
	}
}

func TestAggregate_PartitionFeatures(t *testing.T) {
	metrics, err := AggregateWith(sample(), &Config{Unit: Month, Dimension: Category, Measure: Absolute, RollingPeriods: 3})
	if err != nil {
		t.Fatal(err)
	}

	jan := find(t, metrics, "Dining", "2024-01-01")
	feb := find(t, metrics, "Dining", "2024-02-01")
	apr := find(t, metrics, "Dining", "2024-04-01")

	if jan.PreviousPeriodTotal != nil || jan.PeriodOverPeriodChangePct != 0 {
		t.Errorf("first window must have no previous total: %+v", jan)
	}
	if !jan.RollingAverage.Equal(jan.Total) {
		t.Errorf("first rolling average %s != total %s", jan.RollingAverage, jan.Total)
	}
	if jan.Count != 2 || !jan.Average.Equal(decimal.NewFromInt(50)) {
		t.Errorf("jan count/average = %d/%s", jan.Count, jan.Average)
	}

	if apr.PreviousPeriodTotal == nil || !apr.PreviousPeriodTotal.Equal(feb.Total) {
		t.Errorf("april previous total should be february's: %v", apr.PreviousPeriodTotal)
	}
	if !approx(apr.PeriodOverPeriodChangePct, (50.0-150.0)/150.0*100) {
		t.Errorf("april change = %v", apr.PeriodOverPeriodChangePct)
	}
	if !apr.RollingAverage.Equal(decimal.NewFromInt(100)) {
		t.Errorf("april rolling = %s, want 100", apr.RollingAverage)
	}
	if !approx(feb.PeriodOverPeriodChangePct, 50) {
		t.Errorf("february change = %v", feb.PeriodOverPeriodChangePct)
	}

	if !approx(jan.PercentileRank, 2.0/3.0) || feb.PercentileRank != 1 || !approx(apr.PercentileRank, 1.0/3.0) {
		t.Errorf("ranks = %v %v %v", jan.PercentileRank, feb.PercentileRank, apr.PercentileRank)
	}
	if apr.Quartile != 1 || jan.Quartile != 2 || feb.Quartile != 3 {
		t.Errorf("quartiles = %d %d %d", jan.Quartile, feb.Quartile, apr.Quartile)
	}
}

func TestAggregate_ZeroPreviousTotal(t *testing.T) {
	records := []models.TransactionRecord{
		tx("Shopping", "2024-01-02", "-50"),
		tx("Shopping", "2024-01-09", "50"),
		tx("Shopping", "2024-02-02", "-20"),
	}
	metrics, err := Aggregate(records, Month, Category)
	if err != nil {
		t.Fatal(err)
	}
	feb := find(t, metrics, "Shopping", "2024-02-01")
	if feb.PreviousPeriodTotal == nil || !feb.PreviousPeriodTotal.IsZero() {
		t.Fatalf("expected zero previous total, got %v", feb.PreviousPeriodTotal)
	}
	if feb.PeriodOverPeriodChangePct != 0 {
		t.Errorf("change against zero must be 0, got %v", feb.PeriodOverPeriodChangePct)
	}
}

func TestAggregate_RankMonotonic(t *testing.T) {
	metrics, err := Aggregate(sample(), Week, All)
	if err != nil {
		t.Fatal(err)
	}

	maxRank := 0.0
	for _, a := range metrics {
		if a.PercentileRank > maxRank {
			maxRank = a.PercentileRank
		}
		for _, b := range metrics {
			if a.Total.LessThan(b.Total) && a.PercentileRank > b.PercentileRank {
				t.Errorf("rank not monotonic: %s(%v) vs %s(%v)", a.Total, a.PercentileRank, b.Total, b.PercentileRank)
			}
		}
	}
	if maxRank != 1 {
		t.Errorf("max rank = %v, want 1", maxRank)
	}
}

func TestAggregate_Ordering(t *testing.T) {
	metrics, err := Aggregate(sample(), Month, Category)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(metrics); i++ {
		prev, cur := metrics[i-1], metrics[i]
		if prev.Window.Before(cur.Window) {
			t.Fatalf("window order broken at %d", i)
		}
		if prev.Window.Equal(cur.Window) && prev.Total.LessThan(cur.Total) {
			t.Fatalf("total order broken at %d", i)
		}
	}
	if metrics[0].Window.Format("2006-01") != "2024-04" {
		t.Errorf("latest window first, got %s", metrics[0].Window)
	}
}

func TestAccumulator_ChunkingDoesNotChangeResults(t *testing.T) {
	records := sample()
	whole, err := Aggregate(records, Month, Category)
	if err != nil {
		t.Fatal(err)
	}

	for _, size := range []int{1, 2, 3, 7} {
		acc, err := NewAccumulator(nil)
		if err != nil {
			t.Fatal(err)
		}
		for start := 0; start < len(records); start += size {
			end := start + size
			if end > len(records) {
				end = len(records)
			}
			acc.Add(records[start:end])
		}
		if acc.Records() != len(records) {
			t.Errorf("records = %d", acc.Records())
		}

		chunked := acc.Metrics()
		if len(chunked) != len(whole) {
			t.Fatalf("chunk size %d: %d metrics, want %d", size, len(chunked), len(whole))
		}
		for i := range whole {
			a, b := whole[i], chunked[i]
			samePrev := (a.PreviousPeriodTotal == nil) == (b.PreviousPeriodTotal == nil) &&
				(a.PreviousPeriodTotal == nil || a.PreviousPeriodTotal.Equal(*b.PreviousPeriodTotal))
			if !a.Window.Equal(b.Window) || a.Dimension != b.Dimension || !a.Total.Equal(b.Total) ||
				a.Count != b.Count || !a.RollingAverage.Equal(b.RollingAverage) || !samePrev ||
				a.PercentileRank != b.PercentileRank || a.Quartile != b.Quartile {
				t.Errorf("chunk size %d: metric %d differs:\n%+v\n%+v", size, i, a, b)
			}
		}
	}
}

func TestRanks(t *testing.T) {
	values := []float64{20, 10, 30, 20}

	inclusive := InclusiveRank(values, cmp.Compare[float64])
	wantInclusive := []float64{0.75, 0.25, 1, 0.75}
	for i := range values {
		if !approx(inclusive[i], wantInclusive[i]) {
			t.Errorf("InclusiveRank[%d] = %v, want %v", i, inclusive[i], wantInclusive[i])
		}
	}

	percent := PercentRank(values, cmp.Compare[float64])
	wantPercent := []float64{1.0 / 3.0, 0, 1, 1.0 / 3.0}
	for i := range values {
		if !approx(percent[i], wantPercent[i]) {
			t.Errorf("PercentRank[%d] = %v, want %v", i, percent[i], wantPercent[i])
		}
	}
	if got := PercentRank([]float64{5}, cmp.Compare[float64]); got[0] != 0 {
		t.Errorf("single PercentRank = %v", got[0])
	}
}

func TestNtile(t *testing.T) {
	values := []int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	got := Ntile(values, 4, cmp.Compare[int])
	want := []int{4, 4, 3, 3, 2, 2, 2, 1, 1, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Ntile = %v, want %v", got, want)
		}
	}

	small := Ntile([]int{3, 1}, 4, cmp.Compare[int])
	if small[0] != 2 || small[1] != 1 {
		t.Errorf("Ntile with fewer rows than buckets = %v", small)
	}
}

func TestTrailingMean(t *testing.T) {
	values := []decimal.Decimal{decimal.NewFromInt(3), decimal.NewFromInt(6), decimal.NewFromInt(9), decimal.NewFromInt(12)}
	got := TrailingMean(values, 3)
	want := []string{"3", "4.5", "6", "9"}
	for i := range want {
		if !got[i].Equal(decimal.RequireFromString(want[i])) {
			t.Errorf("TrailingMean[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	floats := TrailingMeanFloat([]float64{10, 20, 30, 40}, 2)
	wantFloats := []float64{10, 15, 25, 35}
	for i := range wantFloats {
		if !approx(floats[i], wantFloats[i]) {
			t.Errorf("TrailingMeanFloat[%d] = %v, want %v", i, floats[i], wantFloats[i])
		}
	}
}
