package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finsight/internal/normalizer"
	"finsight/internal/pipeline"
	"finsight/internal/quality"
	"finsight/pkg/logger"
)

func init() {
	logger.SetGlobalLogger(logger.NewNopLogger())
}

type stubReport struct {
	Name   string     `json:"name"`
	Cols   []string   `json:"columns"`
	Data   [][]string `json:"data"`
	NoData bool       `json:"no_data"`
	Extra  []string   `json:"-"`
}

func (s *stubReport) Title() string    { return s.Name }
func (s *stubReport) Header() []string { return s.Cols }
func (s *stubReport) Rows() [][]string { return s.Data }
func (s *stubReport) Empty() bool      { return s.NoData }
func (s *stubReport) Notes() []string  { return s.Extra }

func sampleReport() *stubReport {
	return &stubReport{
		Name: "Spending trends",
		Cols: []string{"Month", "Category", "Total"},
		Data: [][]string{
			{"2024-04", "Dining", "120.00"},
			{"2024-05", "Dining", "80.50"},
			{"2024-06", "Groceries", "310.25"},
		},
		Extra: []string{`skipped budget "Travel": unknown category`},
	}
}

func sampleResults() []*pipeline.Result {
	return []*pipeline.Result{
		{
			RunID:            "run-1",
			Source:           "jan.csv",
			UserID:           "u1",
			Status:           pipeline.StatusCompleted,
			StartedAt:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			Duration:         1500 * time.Millisecond,
			RawRecords:       5,
			ProcessedRecords: 2,
			Anomalies:        0,
			Rejections: &normalizer.RejectionStats{
				TotalRows: 5, Duplicates: 1, InvalidAmount: 1, InvalidDate: 1, Accepted: 2,
			},
			LoadStats:   pipeline.LoadStats{Total: 2, SuccessfulInserts: 2, CategoriesCreated: 2},
			DataQuality: quality.Report{Score: 97.5, TotalRecords: 2},
		},
		{
			RunID:      "run-2",
			Source:     "broken.csv",
			Status:     pipeline.StatusFailed,
			RawRecords: 3,
			Error:      "no date column",
		},
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{"default config", nil, false},
		{"valid config", DefaultReportConfig(), false},
		{"invalid format", &ReportConfig{Format: "xml", CSVDelimiter: ','}, true},
		{"quote delimiter", &ReportConfig{Format: FormatCSV, CSVDelimiter: '"'}, true},
		{"zero delimiter", &ReportConfig{Format: FormatCSV}, true},
		{"negative max rows", &ReportConfig{Format: FormatConsole, CSVDelimiter: ',', MaxRows: -1}, true},
		{"semicolon", &ReportConfig{Format: FormatCSV, CSVDelimiter: ';'}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if tt.format.IsValid() != tt.valid {
				t.Errorf("expected IsValid() = %v for format %s", tt.valid, tt.format)
			}
		})
	}
}

func TestGenerateReport_Console(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	if err != nil {
		t.Fatalf("NewReportGenerator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleReport(), &buf); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"=== SPENDING TRENDS ===",
		"Month",
		"-----",
		"Groceries",
		"310.25",
		"Notes:",
		`skipped budget "Travel"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateReport_ConsoleEmpty(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	report := &stubReport{Name: "Health", Cols: []string{"Metric"}, NoData: true, Extra: []string{"no data for user u9"}}

	var buf bytes.Buffer
	if err := generator.GenerateReport(report, &buf); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "No data available") || !strings.Contains(out, "no data for user u9") {
		t.Errorf("unexpected empty output:\n%s", out)
	}
	if strings.Contains(out, "Metric") {
		t.Errorf("empty report should not print a header:\n%s", out)
	}
}

func TestGenerateReport_MaxRows(t *testing.T) {
	config := DefaultReportConfig()
	config.MaxRows = 1
	config.ShowNotes = false
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleReport(), &buf); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "... and 2 more rows") {
		t.Errorf("expected truncation notice:\n%s", out)
	}
	if strings.Contains(out, "Groceries") || strings.Contains(out, "Notes:") {
		t.Errorf("unexpected content after truncation:\n%s", out)
	}
}

func TestGenerateReport_JSON(t *testing.T) {
	generator, _ := NewReportGenerator(&ReportConfig{Format: FormatJSON, CSVDelimiter: ','})

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleReport(), &buf); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	var decoded stubReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Name != "Spending trends" || len(decoded.Data) != 3 {
		t.Errorf("unexpected decoded report %+v", decoded)
	}
	if !strings.Contains(buf.String(), "\n  \"name\"") {
		t.Errorf("expected indented JSON:\n%s", buf.String())
	}
}

func TestGenerateReport_CSV(t *testing.T) {
	tests := []struct {
		name      string
		delimiter rune
		headers   bool
		maxRows   int
		wantLines int
	}{
		{"comma with headers", ',', true, 0, 4},
		{"semicolon without headers", ';', false, 0, 3},
		{"truncated", ',', true, 2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(&ReportConfig{
				Format:       FormatCSV,
				CSVDelimiter: tt.delimiter,
				CSVHeaders:   tt.headers,
				MaxRows:      tt.maxRows,
			})
			if err != nil {
				t.Fatalf("NewReportGenerator: %v", err)
			}

			var buf bytes.Buffer
			if err := generator.GenerateReport(sampleReport(), &buf); err != nil {
				t.Fatalf("GenerateReport: %v", err)
			}

			r := csv.NewReader(&buf)
			r.Comma = tt.delimiter
			records, err := r.ReadAll()
			if err != nil {
				t.Fatalf("invalid CSV: %v", err)
			}
			if len(records) != tt.wantLines {
				t.Fatalf("expected %d lines, got %d: %v", tt.wantLines, len(records), records)
			}
			if tt.headers && records[0][0] != "Month" {
				t.Errorf("expected header first, got %v", records[0])
			}
			for _, rec := range records {
				if len(rec) != 3 {
					t.Errorf("expected 3 fields, got %v", rec)
				}
			}
		})
	}
}

func TestGenerateReport_Nil(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil report")
	}
}

func TestGenerateResults(t *testing.T) {
	results := sampleResults()

	t.Run("console", func(t *testing.T) {
		generator, _ := NewReportGenerator(nil)
		var buf bytes.Buffer
		if err := generator.GenerateResults(results, &buf); err != nil {
			t.Fatalf("GenerateResults: %v", err)
		}
		out := buf.String()
		for _, want := range []string{
			"=== PIPELINE RUN: jan.csv ===",
			"Processed Records: 2 (40.0%)",
			"Duplicates:      1",
			"Stored:             2 of 2",
			"Error: no date column",
			"=== SUMMARY ===",
			"Runs:       2 (1 completed, 0 partial, 1 failed)",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("console output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		generator, _ := NewReportGenerator(&ReportConfig{Format: FormatJSON, CSVDelimiter: ','})
		var buf bytes.Buffer
		if err := generator.GenerateResults(results, &buf); err != nil {
			t.Fatalf("GenerateResults: %v", err)
		}
		var decoded struct {
			Runs    []map[string]interface{} `json:"runs"`
			Summary RunSummary               `json:"summary"`
		}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded.Runs) != 2 || decoded.Summary.Stored != 2 || decoded.Summary.Failed != 1 {
			t.Errorf("unexpected JSON %+v", decoded)
		}
	})

	t.Run("csv", func(t *testing.T) {
		generator, _ := NewReportGenerator(&ReportConfig{Format: FormatCSV, CSVDelimiter: ',', CSVHeaders: true})
		var buf bytes.Buffer
		if err := generator.GenerateResults(results, &buf); err != nil {
			t.Fatalf("GenerateResults: %v", err)
		}
		records, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected header plus 2 rows, got %d", len(records))
		}
		if records[1][0] != "jan.csv" || records[1][2] != "completed" || records[1][7] != "1" {
			t.Errorf("unexpected row %v", records[1])
		}
		if records[2][len(records[2])-1] != "no date column" {
			t.Errorf("expected error column, got %v", records[2])
		}
	})
}

func TestSummarize(t *testing.T) {
	results := append(sampleResults(), nil, &pipeline.Result{Status: pipeline.StatusPartial, RawRecords: 1})
	s := Summarize(results)
	want := RunSummary{Runs: 3, Completed: 1, Partial: 1, Failed: 1, RawRecords: 9, ProcessedRecords: 2, Stored: 2}
	if s != want {
		t.Errorf("Summarize() = %+v, want %+v", s, want)
	}
}

func TestCalculatePercentage(t *testing.T) {
	tests := []struct {
		part, total int
		expected    float64
	}{
		{50, 100, 50.0},
		{25, 100, 25.0},
		{0, 100, 0.0},
		{100, 100, 100.0},
		{10, 0, 0.0},
	}

	for _, tt := range tests {
		if got := calculatePercentage(tt.part, tt.total); got != tt.expected {
			t.Errorf("calculatePercentage(%d, %d) = %.2f, want %.2f", tt.part, tt.total, got, tt.expected)
		}
	}
}

func TestUpdateConfiguration(t *testing.T) {
	generator, _ := NewReportGenerator(nil)

	if err := generator.UpdateConfiguration(&ReportConfig{Format: "pdf", CSVDelimiter: ','}); err == nil {
		t.Error("expected error for invalid configuration")
	}
	if generator.GetConfiguration().Format != FormatConsole {
		t.Error("invalid update must keep the previous configuration")
	}

	next := &ReportConfig{Format: FormatJSON, CSVDelimiter: ','}
	if err := generator.UpdateConfiguration(next); err != nil {
		t.Fatalf("UpdateConfiguration: %v", err)
	}
	if generator.GetConfiguration() != next {
		t.Error("configuration was not replaced")
	}
}

type failingWriter struct {
	failures int
	buf      bytes.Buffer
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.failures > 0 {
		w.failures--
		return 0, os.ErrClosed
	}
	return w.buf.Write(p)
}

func TestSafeReportGenerator_FallsBackToConsole(t *testing.T) {
	srg, err := NewSafeReportGenerator(&ReportConfig{Format: FormatJSON, CSVDelimiter: ','}, nil)
	if err != nil {
		t.Fatalf("NewSafeReportGenerator: %v", err)
	}

	w := &failingWriter{failures: 1}
	if err := srg.GenerateReportSafely(sampleReport(), w); err != nil {
		t.Fatalf("GenerateReportSafely: %v", err)
	}
	out := w.buf.String()
	if !strings.Contains(out, "fallback format") || !strings.Contains(out, "=== SPENDING TRENDS ===") {
		t.Errorf("expected console fallback output:\n%s", out)
	}
}

func TestSafeReportGenerator_Validation(t *testing.T) {
	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "xml"}, nil); err == nil {
		t.Error("expected configuration error")
	}

	srg, _ := NewSafeReportGenerator(nil, nil)
	if err := srg.GenerateReportSafely(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil report")
	}
	if err := srg.GenerateReportSafely(sampleReport(), nil); err == nil {
		t.Error("expected error for nil writer")
	}
}

func TestSafeReportGenerator_WriteFiles(t *testing.T) {
	dir := t.TempDir()
	srg, _ := NewSafeReportGenerator(&ReportConfig{Format: FormatCSV, CSVDelimiter: ',', CSVHeaders: true}, nil)

	reportPath := filepath.Join(dir, "reports", "trends.csv")
	if err := srg.WriteReportFile(sampleReport(), reportPath); err != nil {
		t.Fatalf("WriteReportFile: %v", err)
	}
	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.HasPrefix(string(data), "Month,Category,Total\n") {
		t.Errorf("unexpected file content:\n%s", data)
	}

	resultsPath := filepath.Join(dir, "results.csv")
	if err := srg.WriteResultsFile(sampleResults(), resultsPath); err != nil {
		t.Fatalf("WriteResultsFile: %v", err)
	}
	if _, err := os.Stat(resultsPath); err != nil {
		t.Errorf("results file missing: %v", err)
	}

	if err := srg.WriteReportFile(sampleReport(), "  "); err == nil {
		t.Error("expected error for blank path")
	}
}

func TestGenerateBackupPath(t *testing.T) {
	tests := []struct {
		input, expected string
	}{
		{"/readonly/out/report.csv", "report_backup.csv"},
		{"summary.json", "summary_backup.json"},
		{"noext", "noext_backup"},
	}
	for _, tt := range tests {
		if got := generateBackupPath(tt.input); got != tt.expected {
			t.Errorf("generateBackupPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
