package pipeline

import (
	"fmt"
	"strings"
	"time"

	"finsight/internal/analytics"
	"finsight/internal/models"
	"finsight/internal/normalizer"
	"finsight/internal/outlier"
	"finsight/internal/quality"
	"finsight/pkg/errors"
)

// Config holds configuration options for the pipeline service
type Config struct {
	// Processing options
	BatchSize         int           `json:"batch_size" yaml:"batch_size"`
	MaxConcurrentRuns int           `json:"max_concurrent_runs" yaml:"max_concurrent_runs"`
	ProgressInterval  time.Duration `json:"progress_interval" yaml:"progress_interval"`

	// Component options; nil uses each component's defaults
	Normalizer *normalizer.Config `json:"normalizer,omitempty" yaml:"normalizer,omitempty"`
	Outlier    *outlier.Config    `json:"outlier,omitempty" yaml:"outlier,omitempty"`
	Analytics  *analytics.Config  `json:"analytics,omitempty" yaml:"analytics,omitempty"`
}

// DefaultConfig returns a default configuration for the pipeline service
func DefaultConfig() *Config {
	return &Config{
		BatchSize:         1000,
		MaxConcurrentRuns: 4,
		ProgressInterval:  5 * time.Second,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "pipeline.batch_size", c.BatchSize,
			fmt.Errorf("batch size must be positive, got %d", c.BatchSize))
	}
	if c.MaxConcurrentRuns <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "pipeline.max_concurrent_runs", c.MaxConcurrentRuns,
			fmt.Errorf("max concurrent runs must be positive, got %d", c.MaxConcurrentRuns))
	}
	if c.ProgressInterval < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "pipeline.progress_interval", c.ProgressInterval, nil)
	}
	if c.Normalizer != nil {
		if err := c.Normalizer.Validate(); err != nil {
			return err
		}
	}
	if c.Outlier != nil {
		if err := c.Outlier.Validate(); err != nil {
			return err
		}
	}
	if c.Analytics != nil {
		if err := c.Analytics.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Request is one dataset to ingest
type Request struct {
	// UserID is assigned to rows without a user column value
	UserID string
	// Source labels the dataset in logs and results, usually the file path
	Source string
	Rows   []models.Row
}

// Validate validates the request
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return errors.ValidationError(errors.CodeMissingField, "source", r.Source, nil)
	}
	return nil
}

// Status is the outcome of a pipeline run
type Status string

const (
	StatusCompleted Status = "completed"
	// StatusPartial means some batches or records could not be stored
	StatusPartial Status = "completed_with_errors"
	StatusFailed  Status = "failed"
)

// LoadStats counts the outcome of the storage step
type LoadStats struct {
	Total             int `json:"total"`
	SuccessfulInserts int `json:"successful_inserts"`
	FailedInserts     int `json:"failed_inserts"`
	CategoriesCreated int `json:"categories_created"`
}

// Result contains the outcome of one pipeline run
type Result struct {
	RunID            string                     `json:"run_id"`
	Source           string                     `json:"source"`
	UserID           string                     `json:"user_id,omitempty"`
	Status           Status                     `json:"status"`
	StartedAt        time.Time                  `json:"started_at"`
	Duration         time.Duration              `json:"duration"`
	RawRecords       int                        `json:"raw_records"`
	ProcessedRecords int                        `json:"processed_records"`
	Anomalies        int                        `json:"anomalies"`
	Rejections       *normalizer.RejectionStats `json:"rejections,omitempty"`
	LoadStats        LoadStats                  `json:"load_stats"`
	DataQuality      quality.Report             `json:"data_quality"`
	Error            string                     `json:"error,omitempty"`
}

// Succeeded reports whether the run stored its records
func (r *Result) Succeeded() bool {
	return r.Status == StatusCompleted
}
