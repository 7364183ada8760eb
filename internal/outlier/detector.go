// Package outlier flags statistically unusual transaction amounts.
//
// Three policies exist and are kept separate because different reports rely
// on them:
//
//   - IQR: amounts outside [Q1 - 1.5·IQR, Q3 + 1.5·IQR] within a group.
//   - IQR + z-score: the IQR flag OR'd with |x - mean|/σ > 2.5.
//   - mean ± 2σ banding, see SigmaBand, used by expense features.
//
// Groups smaller than MinGroupSize are never evaluated and never flagged.
// Their records come back with Evaluated=false; they are not negatives.
package outlier

import (
	"fmt"
	"sort"

	"finsight/internal/models"
	"finsight/pkg/errors"
	"finsight/pkg/logger"
)

// GroupBy selects how records are partitioned before detection
type GroupBy string

const (
	GroupByCategory     GroupBy = "category"
	GroupByCategoryUser GroupBy = "category_user"
	GroupByNone         GroupBy = "none"
)

// Method selects the detection rule
type Method string

const (
	MethodIQR       Method = "iqr"
	MethodIQRZScore Method = "iqr_zscore"
)

// Config configures a Detector
type Config struct {
	GroupBy         GroupBy `json:"group_by" yaml:"group_by"`
	Method          Method  `json:"method" yaml:"method"`
	FenceMultiplier float64 `json:"fence_multiplier" yaml:"fence_multiplier"`
	ZThreshold      float64 `json:"z_threshold" yaml:"z_threshold"`
	MinGroupSize    int     `json:"min_group_size" yaml:"min_group_size"`
}

// DefaultConfig returns the IQR policy grouped by category
func DefaultConfig() *Config {
	return IQRPolicy()
}

// IQRPolicy is used when scoring an ingested batch
func IQRPolicy() *Config {
	return &Config{
		GroupBy:         GroupByCategory,
		Method:          MethodIQR,
		FenceMultiplier: 1.5,
		ZThreshold:      2.5,
		MinGroupSize:    10,
	}
}

// IQRZScorePolicy is used by the financial health score
func IQRZScorePolicy() *Config {
	return &Config{
		GroupBy:         GroupByCategoryUser,
		Method:          MethodIQRZScore,
		FenceMultiplier: 1.5,
		ZThreshold:      2.5,
		MinGroupSize:    10,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.GroupBy {
	case GroupByCategory, GroupByCategoryUser, GroupByNone:
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "group_by", c.GroupBy, nil)
	}
	switch c.Method {
	case MethodIQR, MethodIQRZScore:
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "method", c.Method, nil)
	}
	if c.FenceMultiplier <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "fence_multiplier", c.FenceMultiplier,
			fmt.Errorf("must be positive"))
	}
	if c.Method == MethodIQRZScore && c.ZThreshold <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "z_threshold", c.ZThreshold,
			fmt.Errorf("must be positive"))
	}
	if c.MinGroupSize < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "min_group_size", c.MinGroupSize,
			fmt.Errorf("must be at least 1"))
	}
	return nil
}

// Detector applies one outlier policy
type Detector struct {
	config *Config
	logger logger.Logger
}

// NewDetector creates a detector. A nil config uses DefaultConfig.
func NewDetector(config *Config) (*Detector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("outlier"),
	}, nil
}

// Config returns a copy of the detector configuration
func (d *Detector) Config() Config {
	return *d.config
}

// Detect returns a copy of records with IsAnomaly set, and one flag per
// record in input order. Records in skipped groups have IsAnomaly false.
func (d *Detector) Detect(records []models.TransactionRecord) ([]models.TransactionRecord, []models.AnomalyFlag) {
	out := make([]models.TransactionRecord, len(records))
	copy(out, records)
	flags := make([]models.AnomalyFlag, len(records))

	groups := map[string][]int{}
	var order []string
	for i := range out {
		key := d.groupKey(&out[i])
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
		flags[i] = models.AnomalyFlag{Index: i, TransactionID: out[i].ID, GroupKey: key}
		out[i].IsAnomaly = false
	}
	sort.Strings(order)

	evaluated, flagged, skipped := 0, 0, 0
	for _, key := range order {
		idx := groups[key]
		if len(idx) < d.config.MinGroupSize {
			skipped++
			continue
		}
		evaluated++
		flagged += d.evaluateGroup(out, flags, idx)
	}

	d.logger.WithFields(logger.Fields{
		"records":        len(records),
		"groups":         len(order),
		"groups_scored":  evaluated,
		"groups_skipped": skipped,
		"anomalies":      flagged,
		"method":         d.config.Method,
		"group_by":       d.config.GroupBy,
	}).Debug("Outlier detection complete")

	return out, flags
}

// Flags runs detection and returns only the flags
func (d *Detector) Flags(records []models.TransactionRecord) []models.AnomalyFlag {
	_, flags := d.Detect(records)
	return flags
}

// CountAnomalies returns the number of records flagged in records
func (d *Detector) CountAnomalies(records []models.TransactionRecord) int {
	count := 0
	for _, f := range d.Flags(records) {
		if f.IsAnomaly {
			count++
		}
	}
	return count
}

func (d *Detector) evaluateGroup(out []models.TransactionRecord, flags []models.AnomalyFlag, idx []int) int {
	values := make([]float64, len(idx))
	for j, i := range idx {
		values[j] = out[i].AmountAbs.InexactFloat64()
	}

	q1, q3 := Quartiles(values)
	iqr := q3 - q1
	lower := q1 - d.config.FenceMultiplier*iqr
	upper := q3 + d.config.FenceMultiplier*iqr

	var mean, std float64
	withZ := d.config.Method == MethodIQRZScore
	if withZ {
		mean, std = MeanStdDev(values)
	}

	flagged := 0
	for j, i := range idx {
		v := values[j]
		f := &flags[i]
		f.Evaluated = true
		f.LowerBound = lower
		f.UpperBound = upper
		f.IQRAnomaly = v < lower || v > upper
		if withZ {
			f.Mean = mean
			f.StdDev = std
			f.ZScore = ZScore(v, mean, std)
			f.ZScoreAnomaly = f.ZScore > d.config.ZThreshold
		}
		f.IsAnomaly = f.IQRAnomaly || f.ZScoreAnomaly
		out[i].IsAnomaly = f.IsAnomaly
		if f.IsAnomaly {
			flagged++
		}
	}
	return flagged
}

func (d *Detector) groupKey(r *models.TransactionRecord) string {
	switch d.config.GroupBy {
	case GroupByCategoryUser:
		return r.CategoryName + "/" + r.UserID
	case GroupByNone:
		return "all"
	default:
		return r.CategoryName
	}
}
