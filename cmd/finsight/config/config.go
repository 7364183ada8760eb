// Package config assembles component configurations from viper settings.
//
// Settings come from, in increasing precedence: the defaults registered by
// SetDefaults, an optional config file, FINSIGHT_* environment variables and
// command-line flags bound to the same keys.
package config

import (
	"fmt"
	"strings"
	"time"

	"finsight/internal/analytics"
	"finsight/internal/classifier"
	"finsight/internal/models"
	"finsight/internal/normalizer"
	"finsight/internal/parsers"
	"finsight/internal/pipeline"
	"finsight/internal/reporter"
	"finsight/internal/storage"
	"finsight/pkg/errors"
	"finsight/pkg/logger"

	"github.com/spf13/viper"
)

// Setting keys
const (
	KeyVerbose   = "verbose"
	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
	KeyLogFile   = "log.file"

	KeyStoreDriver = "store.driver"
	KeyStoreDSN    = "store.dsn"

	KeyRulesFile = "rules.file"

	KeyDefaultUser       = "ingest.default_user"
	KeyDelimiter         = "ingest.delimiter"
	KeyEncodings         = "ingest.fallback_encodings"
	KeyBatchSize         = "ingest.batch_size"
	KeyMaxConcurrentRuns = "ingest.max_concurrent_runs"
	KeyPreferSupplied    = "ingest.prefer_supplied_fields"

	KeyReportFormat    = "report.format"
	KeyReportDelimiter = "report.csv_delimiter"
	KeyReportHeaders   = "report.csv_headers"
	KeyReportMaxRows   = "report.max_rows"

	KeyTrendMonths     = "analytics.trend_months"
	KeySavingsMonths   = "analytics.savings_months"
	KeyFeatureMonths   = "analytics.feature_months"
	KeyHealthMonths    = "analytics.health_months"
	KeyEssentials      = "analytics.essential_categories"
	KeyAbsoluteAmounts = "analytics.absolute_amounts"
	KeyInferMissing    = "analytics.infer_missing_categories"
)

// Config is the resolved configuration of one CLI invocation
type Config struct {
	Log       *logger.Config
	Storage   *storage.Config
	Parse     *parsers.ParseConfig
	Pipeline  *pipeline.Config
	Report    *reporter.ReportConfig
	RulesFile string
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyLogLevel, string(logger.InfoLevel))
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))
	v.SetDefault(KeyLogFile, "")

	store := storage.DefaultConfig()
	v.SetDefault(KeyStoreDriver, string(store.Driver))
	v.SetDefault(KeyStoreDSN, store.DSN)

	v.SetDefault(KeyRulesFile, "")

	norm := normalizer.DefaultConfig()
	parse := parsers.DefaultParseConfig()
	pipe := pipeline.DefaultConfig()
	v.SetDefault(KeyDefaultUser, norm.DefaultUserID)
	v.SetDefault(KeyDelimiter, string(parse.Delimiter))
	v.SetDefault(KeyEncodings, parse.FallbackEncodings)
	v.SetDefault(KeyBatchSize, pipe.BatchSize)
	v.SetDefault(KeyMaxConcurrentRuns, pipe.MaxConcurrentRuns)
	v.SetDefault(KeyPreferSupplied, norm.PreferSuppliedFields)

	report := reporter.DefaultReportConfig()
	v.SetDefault(KeyReportFormat, string(report.Format))
	v.SetDefault(KeyReportDelimiter, string(report.CSVDelimiter))
	v.SetDefault(KeyReportHeaders, report.CSVHeaders)
	v.SetDefault(KeyReportMaxRows, report.MaxRows)

	an := analytics.DefaultConfig()
	v.SetDefault(KeyTrendMonths, an.TrendMonths)
	v.SetDefault(KeySavingsMonths, an.SavingsMonths)
	v.SetDefault(KeyFeatureMonths, an.FeatureMonths)
	v.SetDefault(KeyHealthMonths, an.HealthMonths)
	v.SetDefault(KeyEssentials, an.EssentialCategories)
	v.SetDefault(KeyAbsoluteAmounts, an.AbsoluteAmounts)
	v.SetDefault(KeyInferMissing, an.InferMissingCategories)
}

// Load resolves and validates every component configuration
func Load(v *viper.Viper) (*Config, error) {
	logConfig := logger.DefaultConfig()
	if v.GetBool(KeyVerbose) {
		logConfig = logger.DebugConfig()
	}
	logConfig.Level = logger.Level(strings.ToLower(v.GetString(KeyLogLevel)))
	logConfig.Format = logger.Format(strings.ToLower(v.GetString(KeyLogFormat)))
	if file := v.GetString(KeyLogFile); file != "" {
		logConfig.Output = logger.FileOutput
		logConfig.File = file
	}
	if err := logConfig.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", logConfig.Level, err)
	}

	storeConfig := &storage.Config{
		Driver: storage.Driver(strings.ToLower(v.GetString(KeyStoreDriver))),
		DSN:    v.GetString(KeyStoreDSN),
	}
	if err := storeConfig.Validate(); err != nil {
		return nil, err
	}

	delimiter, err := ParseDelimiter(v.GetString(KeyDelimiter))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyDelimiter, v.GetString(KeyDelimiter), err)
	}
	parseConfig := parsers.DefaultParseConfig()
	parseConfig.Delimiter = delimiter
	parseConfig.FallbackEncodings = v.GetStringSlice(KeyEncodings)
	if err := parseConfig.Validate(); err != nil {
		return nil, err
	}

	normConfig := normalizer.DefaultConfig()
	normConfig.DefaultUserID = v.GetString(KeyDefaultUser)
	normConfig.PreferSuppliedFields = v.GetBool(KeyPreferSupplied)

	analyticsConfig := analytics.DefaultConfig()
	analyticsConfig.TrendMonths = v.GetInt(KeyTrendMonths)
	analyticsConfig.SavingsMonths = v.GetInt(KeySavingsMonths)
	analyticsConfig.FeatureMonths = v.GetInt(KeyFeatureMonths)
	analyticsConfig.HealthMonths = v.GetInt(KeyHealthMonths)
	analyticsConfig.EssentialCategories = v.GetStringSlice(KeyEssentials)
	analyticsConfig.AbsoluteAmounts = v.GetBool(KeyAbsoluteAmounts)
	analyticsConfig.InferMissingCategories = v.GetBool(KeyInferMissing)

	pipelineConfig := pipeline.DefaultConfig()
	pipelineConfig.BatchSize = v.GetInt(KeyBatchSize)
	pipelineConfig.MaxConcurrentRuns = v.GetInt(KeyMaxConcurrentRuns)
	pipelineConfig.Normalizer = normConfig
	pipelineConfig.Analytics = analyticsConfig
	if err := pipelineConfig.Validate(); err != nil {
		return nil, err
	}

	reportConfig, err := CreateReportConfig(v.GetString(KeyReportFormat))
	if err != nil {
		return nil, err
	}
	reportDelimiter, err := ParseDelimiter(v.GetString(KeyReportDelimiter))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyReportDelimiter, v.GetString(KeyReportDelimiter), err)
	}
	reportConfig.CSVDelimiter = reportDelimiter
	reportConfig.CSVHeaders = v.GetBool(KeyReportHeaders)
	reportConfig.MaxRows = v.GetInt(KeyReportMaxRows)
	if err := reportConfig.Validate(); err != nil {
		return nil, err
	}

	return &Config{
		Log:       logConfig,
		Storage:   storeConfig,
		Parse:     parseConfig,
		Pipeline:  pipelineConfig,
		Report:    reportConfig,
		RulesFile: v.GetString(KeyRulesFile),
	}, nil
}

// Classifier builds the classifier from the rules file, or the default
// rules when none is configured
func (c *Config) Classifier() (*classifier.Classifier, error) {
	if c.RulesFile == "" {
		return classifier.NewDefaultClassifier(), nil
	}
	rules, err := classifier.LoadRules(c.RulesFile)
	if err != nil {
		return nil, err
	}
	return classifier.NewClassifier(rules)
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		config.ShowNotes = false
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "format", format,
			fmt.Errorf("invalid output format '%s'", format)).
			WithSuggestion("Valid formats: console, json, csv")
	}

	return config, nil
}

// ParseDelimiter accepts a single character or one of the names tab,
// comma, semicolon and pipe
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return runes[0], nil
}

// ParseDate parses a command-line date. Date-only values are taken as UTC midnight.
func ParseDate(flag, value string) (time.Time, error) {
	t, err := models.ParseTimeWithFormats(value)
	if err != nil {
		return time.Time{}, errors.ValidationError(errors.CodeInvalidDate, flag, value, err).
			WithSuggestion("Use YYYY-MM-DD")
	}
	return t, nil
}

// EndOfDay returns the last nanosecond of t's calendar day
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).Add(24*time.Hour - time.Nanosecond)
}

// BudgetEnd returns the default end date of a budget starting at start
func BudgetEnd(start time.Time, period models.BudgetPeriod) time.Time {
	switch period {
	case models.BudgetPeriodWeekly:
		return start.AddDate(0, 0, 6)
	case models.BudgetPeriodYearly:
		return start.AddDate(1, 0, -1)
	default:
		return start.AddDate(0, 1, -1)
	}
}
