// Package parsers reads transaction exports into loosely-typed rows.
//
// Parsers do not interpret values: every field stays a string (CSV) or keeps
// its JSON type, and column names are passed through as found in the file.
// Schema resolution, coercion and enrichment belong to the normalizer.
//
// Supported inputs:
//   - CSV with a header row, UTF-8 or a single-byte fallback encoding
//   - JSON array of objects
//
// Example usage:
//
//	parser, err := parsers.NewCSVParser(parsers.DefaultParseConfig())
//	rows, stats, err := parser.ParseFile(ctx, "transactions.csv")
package parsers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"finsight/internal/models"
	"finsight/pkg/errors"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const utf8BOM = "\uFEFF"

// ParseConfig holds configuration for parsing
type ParseConfig struct {
	Delimiter         rune     `json:"delimiter"`
	Comment           rune     `json:"comment"`
	TrimLeadingSpace  bool     `json:"trim_leading_space"`
	SkipEmptyRows     bool     `json:"skip_empty_rows"`
	MaxFileSize       int64    `json:"max_file_size"`
	FallbackEncodings []string `json:"fallback_encodings"`
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:         ',',
		TrimLeadingSpace:  true,
		SkipEmptyRows:     true,
		MaxFileSize:       256 << 20,
		FallbackEncodings: []string{"windows-1252", "iso-8859-1"},
	}
}

// Validate validates the parse configuration
func (c *ParseConfig) Validate() error {
	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '\r' || c.Delimiter == '"' {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", string(c.Delimiter), nil)
	}
	if c.Comment != 0 && c.Comment == c.Delimiter {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "comment", string(c.Comment),
			fmt.Errorf("comment character equals delimiter"))
	}
	if c.MaxFileSize < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_file_size", c.MaxFileSize, nil)
	}
	for _, name := range c.FallbackEncodings {
		if _, ok := lookupEncoding(name); !ok {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "fallback_encodings", name,
				fmt.Errorf("unsupported encoding"))
		}
	}
	return nil
}

func lookupEncoding(name string) (encoding.Encoding, bool) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "windows-1252", "cp1252":
		return charmap.Windows1252, true
	case "iso-8859-1", "latin-1", "latin1":
		return charmap.ISO8859_1, true
	case "iso-8859-15", "latin-9":
		return charmap.ISO8859_15, true
	default:
		return nil, false
	}
}

// decodeText returns data as UTF-8 text, trying the fallback encodings in order
// when data is not valid UTF-8. The name of the encoding used is returned.
func decodeText(data []byte, fallbacks []string) (string, string, error) {
	if utf8.Valid(data) {
		return strings.TrimPrefix(string(data), utf8BOM), "utf-8", nil
	}

	for _, name := range fallbacks {
		enc, ok := lookupEncoding(name)
		if !ok {
			continue
		}
		decoded, err := enc.NewDecoder().Bytes(data)
		if err != nil || bytes.ContainsRune(decoded, utf8.RuneError) {
			continue
		}
		return string(decoded), name, nil
	}

	return "", "", fmt.Errorf("input is not valid UTF-8 and no fallback encoding (%s) could decode it",
		strings.Join(fallbacks, ", "))
}

// Parser reads one export into rows
type Parser interface {
	ParseFile(ctx context.Context, path string) ([]models.Row, *ParseStats, error)
	ParseReader(ctx context.Context, r io.Reader, source string) ([]models.Row, *ParseStats, error)
}

// ForFile picks the parser by file extension: .json files are read as JSON,
// anything else as CSV
func ForFile(path string, config *ParseConfig) (Parser, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return NewJSONParser(config)
	}
	return NewCSVParser(config)
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Source        string
	Encoding      string
	Columns       []string
	TotalLines    int
	RecordsParsed int
	ErrorCount    int
	Errors        []*errors.FinsightError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(source string) *ParseStats {
	return &ParseStats{
		Source: source,
		Errors: make([]*errors.FinsightError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *errors.FinsightError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines from %s (%s), %d rows, %d errors",
		ps.TotalLines, ps.Source, ps.Encoding, ps.RecordsParsed, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}
