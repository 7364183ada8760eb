// Package window aggregates transactions into (time window, dimension)
// buckets and derives ordered-window features within each dimension.
//
// For every dimension value the buckets are ordered by window ascending and
// receive:
//
//   - PreviousPeriodTotal: total of the preceding bucket in the partition, nil for the first
//   - RollingAverage: mean total of the bucket and up to two preceding buckets
//   - PercentileRank: share of the partition's buckets with total <= this total
//   - Quartile: NTILE(4) over total within the partition
//   - PeriodOverPeriodChangePct: 0 when the previous total is nil or zero
//
// The preceding bucket is the previous row of the partition, not necessarily
// the adjacent calendar window. Results are ordered by window descending,
// then total descending, then dimension ascending.
package window

import (
	"fmt"
	"sort"
	"time"

	"finsight/internal/models"
	"finsight/pkg/errors"

	"github.com/shopspring/decimal"
)

// Config configures an Accumulator
type Config struct {
	Unit           Unit      `json:"unit" yaml:"unit"`
	Dimension      Dimension `json:"-" yaml:"-"`
	Measure        Measure   `json:"measure" yaml:"measure"`
	RollingPeriods int       `json:"rolling_periods" yaml:"rolling_periods"`
}

// DefaultConfig aggregates signed amounts by month and category
func DefaultConfig() *Config {
	return &Config{
		Unit:           Month,
		Dimension:      Category,
		Measure:        Signed,
		RollingPeriods: 3,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.Unit.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "unit", c.Unit, nil)
	}
	if c.Dimension.Value == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "dimension", c.Dimension.Name, nil)
	}
	if c.Measure != Signed && c.Measure != Absolute {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "measure", c.Measure, nil)
	}
	if c.RollingPeriods < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "rolling_periods", c.RollingPeriods,
			fmt.Errorf("must be at least 1"))
	}
	return nil
}

type bucketKey struct {
	window int64
	dim    string
}

type bucket struct {
	window time.Time
	dim    string
	total  decimal.Decimal
	count  int
}

// Accumulator collects records in any number of chunks. Grouping is logical,
// so the split into chunks never changes Metrics. It is not safe for
// concurrent use.
type Accumulator struct {
	config  Config
	buckets map[bucketKey]*bucket
	records int
}

// NewAccumulator creates an accumulator. A nil config uses DefaultConfig.
func NewAccumulator(config *Config) (*Accumulator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Accumulator{
		config:  *config,
		buckets: map[bucketKey]*bucket{},
	}, nil
}

// Add folds a chunk of records into the accumulator
func (a *Accumulator) Add(records []models.TransactionRecord) {
	for i := range records {
		r := &records[i]
		start := a.config.Unit.Truncate(r.TransactionDate)
		key := bucketKey{window: start.Unix(), dim: a.config.Dimension.Value(r)}

		b, ok := a.buckets[key]
		if !ok {
			b = &bucket{window: start, dim: key.dim}
			a.buckets[key] = b
		}
		b.total = b.total.Add(a.config.Measure.of(r))
		b.count++
	}
	a.records += len(records)
}

// Records returns the number of records added so far
func (a *Accumulator) Records() int {
	return a.records
}

// Metrics computes the windowed metrics for everything added so far
func (a *Accumulator) Metrics() []models.WindowedMetric {
	partitions := map[string][]*bucket{}
	for _, b := range a.buckets {
		partitions[b.dim] = append(partitions[b.dim], b)
	}

	metrics := make([]models.WindowedMetric, 0, len(a.buckets))
	for _, part := range partitions {
		sort.Slice(part, func(i, j int) bool { return part[i].window.Before(part[j].window) })
		metrics = append(metrics, a.partitionMetrics(part)...)
	}

	SortMetrics(metrics)
	return metrics
}

func (a *Accumulator) partitionMetrics(part []*bucket) []models.WindowedMetric {
	totals := make([]decimal.Decimal, len(part))
	for i, b := range part {
		totals[i] = b.total
	}
	rolling := TrailingMean(totals, a.config.RollingPeriods)
	ranks := InclusiveRank(totals, CompareDecimal)
	quartiles := Ntile(totals, 4, CompareDecimal)

	out := make([]models.WindowedMetric, len(part))
	for i, b := range part {
		m := models.WindowedMetric{
			Window:         b.window,
			Dimension:      b.dim,
			Total:          b.total,
			Count:          b.count,
			Average:        b.total.Div(decimal.NewFromInt(int64(b.count))),
			RollingAverage: rolling[i],
			PercentileRank: ranks[i],
			Quartile:       quartiles[i],
		}
		if i > 0 {
			prev := part[i-1].total
			m.PreviousPeriodTotal = &prev
			m.PeriodOverPeriodChangePct = ChangePct(b.total, prev)
		}
		out[i] = m
	}
	return out
}

// ChangePct returns (current-previous)/previous·100, or 0 when previous is zero
func ChangePct(current, previous decimal.Decimal) float64 {
	if previous.IsZero() {
		return 0
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// SortMetrics orders metrics by window descending, total descending, then dimension
func SortMetrics(metrics []models.WindowedMetric) {
	sort.SliceStable(metrics, func(i, j int) bool {
		mi, mj := metrics[i], metrics[j]
		if !mi.Window.Equal(mj.Window) {
			return mi.Window.After(mj.Window)
		}
		if c := mi.Total.Cmp(mj.Total); c != 0 {
			return c > 0
		}
		return mi.Dimension < mj.Dimension
	})
}

// Aggregate sums signed amounts of records by unit and dimension
func Aggregate(records []models.TransactionRecord, unit Unit, dim Dimension) ([]models.WindowedMetric, error) {
	cfg := DefaultConfig()
	cfg.Unit = unit
	cfg.Dimension = dim
	return AggregateWith(records, cfg)
}

// AggregateWith aggregates records in one chunk using config
func AggregateWith(records []models.TransactionRecord, config *Config) ([]models.WindowedMetric, error) {
	acc, err := NewAccumulator(config)
	if err != nil {
		return nil, err
	}
	acc.Add(records)
	return acc.Metrics(), nil
}

// Totals sums metric totals by dimension
func Totals(metrics []models.WindowedMetric) map[string]decimal.Decimal {
	totals := map[string]decimal.Decimal{}
	for _, m := range metrics {
		totals[m.Dimension] = totals[m.Dimension].Add(m.Total)
	}
	return totals
}
