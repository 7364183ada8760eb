// Package reporter renders analytics reports and pipeline results.
//
// Any report exposing a tabular projection can be rendered. The analytics
// reports and pipeline.Report satisfy Tabular without adapters.
//
// Supported output formats:
//   - Console: aligned tables for terminal display
//   - JSON: the report value itself, indented
//   - CSV: the tabular projection, one line per row
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
//		Format:       reporter.FormatCSV,
//		CSVDelimiter: ';',
//		CSVHeaders:   true,
//	})
//	if err != nil {
//		return err
//	}
//	err = generator.GenerateReport(report, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"finsight/internal/pipeline"
	"finsight/pkg/errors"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// Tabular is a report that can be laid out as a titled table
type Tabular interface {
	Title() string
	Header() []string
	Rows() [][]string
	Empty() bool
}

// annotated reports carry notes such as skipped reference data
type annotated interface {
	Notes() []string
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`

	// MaxRows truncates console and CSV tables; 0 means no limit
	MaxRows int `json:"max_rows" mapstructure:"max_rows"`
	// ShowNotes prints skipped reference data under console tables
	ShowNotes bool `json:"show_notes" mapstructure:"show_notes"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:       FormatConsole,
		CSVDelimiter: ',',
		CSVHeaders:   true,
		MaxRows:      0,
		ShowNotes:    true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "format", c.Format,
			fmt.Errorf("invalid output format: %s", c.Format)).
			WithSuggestion("Use one of: console, json, csv")
	}

	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\r' ||
		c.CSVDelimiter == '\n' || c.CSVDelimiter == utf8.RuneError || !utf8.ValidRune(c.CSVDelimiter) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "csv_delimiter", string(c.CSVDelimiter),
			fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter))
	}

	if c.MaxRows < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_rows", c.MaxRows,
			fmt.Errorf("max rows cannot be negative, got %d", c.MaxRows))
	}

	return nil
}

// ReportGenerator renders reports in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes one analytics report to the writer
func (rg *ReportGenerator) GenerateReport(report Tabular, writer io.Writer) error {
	if report == nil {
		return errors.ValidationError(errors.CodeMissingField, "report", nil, nil)
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return writeJSON(writer, report)
	case FormatCSV:
		return rg.writeCSV(writer, report.Header(), report.Rows())
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateResults writes the outcome of one or more pipeline runs
func (rg *ReportGenerator) GenerateResults(results []*pipeline.Result, writer io.Writer) error {
	summary := Summarize(results)

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleResults(results, summary, writer)
	case FormatJSON:
		return writeJSON(writer, struct {
			Runs    []*pipeline.Result `json:"runs"`
			Summary RunSummary         `json:"summary"`
		}{Runs: results, Summary: summary})
	case FormatCSV:
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			rows = append(rows, resultRow(r))
		}
		return rg.writeCSV(writer, resultHeader, rows)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(report Tabular, writer io.Writer) error {
	fmt.Fprintf(writer, "=== %s ===\n", strings.ToUpper(report.Title()))

	if report.Empty() {
		fmt.Fprintf(writer, "No data available\n")
	} else {
		rows, hidden := rg.truncate(report.Rows())
		if err := printTable(writer, report.Header(), rows); err != nil {
			return err
		}
		if hidden > 0 {
			fmt.Fprintf(writer, "... and %d more rows\n", hidden)
		}
	}

	if a, ok := report.(annotated); ok && rg.config.ShowNotes {
		if notes := a.Notes(); len(notes) > 0 {
			fmt.Fprintf(writer, "\nNotes:\n")
			for _, note := range notes {
				fmt.Fprintf(writer, "  - %s\n", note)
			}
		}
	}
	fmt.Fprintf(writer, "\n")
	return nil
}

func (rg *ReportGenerator) generateConsoleResults(results []*pipeline.Result, summary RunSummary, writer io.Writer) error {
	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Fprintf(writer, "=== PIPELINE RUN: %s ===\n", r.Source)
		fmt.Fprintf(writer, "Run ID:            %s\n", r.RunID)
		fmt.Fprintf(writer, "Status:            %s\n", r.Status)
		if r.UserID != "" {
			fmt.Fprintf(writer, "User:              %s\n", r.UserID)
		}
		fmt.Fprintf(writer, "Duration:          %v\n", r.Duration)
		fmt.Fprintf(writer, "Raw Records:       %d\n", r.RawRecords)
		fmt.Fprintf(writer, "Processed Records: %d (%.1f%%)\n", r.ProcessedRecords,
			calculatePercentage(r.ProcessedRecords, r.RawRecords))
		fmt.Fprintf(writer, "Anomalies:         %d\n", r.Anomalies)

		if rej := r.Rejections; rej != nil {
			fmt.Fprintf(writer, "\nRejected Rows:\n")
			fmt.Fprintf(writer, "  Duplicates:      %d\n", rej.Duplicates)
			fmt.Fprintf(writer, "  Missing Fields:  %d\n", rej.MissingFields)
			fmt.Fprintf(writer, "  Invalid Amount:  %d\n", rej.InvalidAmount)
			fmt.Fprintf(writer, "  Invalid Date:    %d\n", rej.InvalidDate)
			for _, sample := range rej.SampleRejections(5) {
				fmt.Fprintf(writer, "    - %s\n", sample)
			}
		}

		fmt.Fprintf(writer, "\nLoad:\n")
		fmt.Fprintf(writer, "  Stored:             %d of %d\n", r.LoadStats.SuccessfulInserts, r.LoadStats.Total)
		fmt.Fprintf(writer, "  Failed:             %d\n", r.LoadStats.FailedInserts)
		fmt.Fprintf(writer, "  Categories Created: %d\n", r.LoadStats.CategoriesCreated)
		fmt.Fprintf(writer, "\nData Quality:        %s\n", r.DataQuality)

		if r.Error != "" {
			fmt.Fprintf(writer, "\nError: %s\n", r.Error)
		}
		fmt.Fprintf(writer, "\n")
	}

	if len(results) > 1 {
		fmt.Fprintf(writer, "=== SUMMARY ===\n")
		fmt.Fprintf(writer, "Runs:       %d (%d completed, %d partial, %d failed)\n",
			summary.Runs, summary.Completed, summary.Partial, summary.Failed)
		fmt.Fprintf(writer, "Records:    %d raw, %d processed\n", summary.RawRecords, summary.ProcessedRecords)
		fmt.Fprintf(writer, "Stored:     %d\n", summary.Stored)
		fmt.Fprintf(writer, "\n")
	}
	return nil
}

func (rg *ReportGenerator) writeCSV(writer io.Writer, header []string, rows [][]string) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(header); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	rows, _ = rg.truncate(rows)
	for i, row := range rows {
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i+1, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// truncate applies MaxRows and returns the number of rows left out
func (rg *ReportGenerator) truncate(rows [][]string) ([][]string, int) {
	if rg.config.MaxRows == 0 || len(rows) <= rg.config.MaxRows {
		return rows, 0
	}
	return rows[:rg.config.MaxRows], len(rows) - rg.config.MaxRows
}

func printTable(writer io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(header, "\t"))
	rules := make([]string, len(header))
	for i, h := range header {
		rules[i] = strings.Repeat("-", utf8.RuneCountInString(h))
	}
	fmt.Fprintln(tw, strings.Join(rules, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func writeJSON(writer io.Writer, v interface{}) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// RunSummary totals a set of pipeline results
type RunSummary struct {
	Runs             int `json:"runs"`
	Completed        int `json:"completed"`
	Partial          int `json:"partial"`
	Failed           int `json:"failed"`
	RawRecords       int `json:"raw_records"`
	ProcessedRecords int `json:"processed_records"`
	Stored           int `json:"stored"`
}

// Summarize totals the results, ignoring nil entries
func Summarize(results []*pipeline.Result) RunSummary {
	var s RunSummary
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Runs++
		switch r.Status {
		case pipeline.StatusCompleted:
			s.Completed++
		case pipeline.StatusPartial:
			s.Partial++
		default:
			s.Failed++
		}
		s.RawRecords += r.RawRecords
		s.ProcessedRecords += r.ProcessedRecords
		s.Stored += r.LoadStats.SuccessfulInserts
	}
	return s
}

var resultHeader = []string{
	"Source", "Run_ID", "Status", "User", "Raw_Records", "Processed_Records", "Anomalies",
	"Duplicates", "Missing_Fields", "Invalid_Amount", "Invalid_Date",
	"Stored", "Failed_Inserts", "Categories_Created", "Quality_Score", "Duration", "Error",
}

func resultRow(r *pipeline.Result) []string {
	var dup, missing, amount, date int
	if r.Rejections != nil {
		dup, missing, amount, date = r.Rejections.Duplicates, r.Rejections.MissingFields,
			r.Rejections.InvalidAmount, r.Rejections.InvalidDate
	}
	return []string{
		r.Source,
		r.RunID,
		string(r.Status),
		r.UserID,
		fmt.Sprint(r.RawRecords),
		fmt.Sprint(r.ProcessedRecords),
		fmt.Sprint(r.Anomalies),
		fmt.Sprint(dup),
		fmt.Sprint(missing),
		fmt.Sprint(amount),
		fmt.Sprint(date),
		fmt.Sprint(r.LoadStats.SuccessfulInserts),
		fmt.Sprint(r.LoadStats.FailedInserts),
		fmt.Sprint(r.LoadStats.CategoriesCreated),
		fmt.Sprintf("%.2f", r.DataQuality.Score),
		r.Duration.String(),
		r.Error,
	}
}

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
