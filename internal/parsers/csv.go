package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"finsight/internal/models"
	"finsight/pkg/errors"
	"finsight/pkg/logger"
)

// CSVParser reads CSV exports with a header row into rows
type CSVParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewCSVParser creates a CSV parser
func NewCSVParser(config *ParseConfig) (*CSVParser, error) {
	if config == nil {
		config = DefaultParseConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &CSVParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("csv_parser"),
	}, nil
}

// ParseFile opens and parses a CSV file
func (p *CSVParser) ParseFile(ctx context.Context, path string) ([]models.Row, *ParseStats, error) {
	file, err := openInput(path)
	if err != nil {
		p.logger.WithError(err).WithField("file_path", path).Error("Failed to open CSV file")
		return nil, nil, err
	}
	defer file.Close()

	return p.ParseReader(ctx, file, filepath.Base(path))
}

// ParseReader parses CSV content from r. Rows with a wrong field count or a
// quoting error are recorded in the stats and skipped.
func (p *CSVParser) ParseReader(ctx context.Context, r io.Reader, source string) ([]models.Row, *ParseStats, error) {
	stats := NewParseStats(source)

	data, err := readLimited(r, p.config.MaxFileSize)
	if err != nil {
		return nil, stats, errors.FileError(errors.CodeFileCorrupted, source, err)
	}

	text, enc, err := decodeText(data, p.config.FallbackEncodings)
	if err != nil {
		return nil, stats, errors.ParseError(errors.CodeEncodingError, source, 0, err)
	}
	stats.Encoding = enc
	if enc != "utf-8" {
		p.logger.WithFields(logger.Fields{"source": source, "encoding": enc}).Info("Decoded input with fallback encoding")
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = p.config.Delimiter
	reader.Comment = p.config.Comment
	reader.TrimLeadingSpace = p.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return []models.Row{}, stats, nil
	}
	if err != nil {
		return nil, stats, errors.ParseError(errors.CodeInvalidFormat, source, 1, err)
	}
	headers = cleanHeaders(headers)
	stats.Columns = headers
	stats.TotalLines = 1

	rows := make([]models.Row, 0, 64)
	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, errors.InternalError(errors.CodeCancelled, "csv parsing", err)
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := stats.TotalLines + 1
			if pe, ok := err.(*csv.ParseError); ok {
				line = pe.StartLine
			}
			stats.TotalLines = line
			stats.AddError(errors.ParseError(errors.CodeInvalidFormat, source, line, err))
			continue
		}
		line, _ := reader.FieldPos(0)
		stats.TotalLines = line

		if p.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}
		if len(record) != len(headers) {
			stats.AddError(errors.ParseError(errors.CodeFieldCount, source, line,
				fmt.Errorf("expected %d fields, got %d", len(headers), len(record))))
			continue
		}

		row := make(models.Row, len(headers))
		for i, header := range headers {
			if header == "" {
				continue
			}
			if _, dup := row[header]; dup {
				continue
			}
			row[header] = strings.TrimSpace(record[i])
		}
		rows = append(rows, row)
		stats.RecordsParsed++
	}

	p.logger.WithFields(logger.Fields{
		"source": source,
		"rows":   stats.RecordsParsed,
		"errors": stats.ErrorCount,
	}).Debug("Parsed CSV input")

	return rows, stats, nil
}

func openInput(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err == nil {
		return file, nil
	}
	if os.IsNotExist(err) {
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	}
	if os.IsPermission(err) {
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil, errors.FileError("", path, err)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("input exceeds %d bytes", limit)
	}
	return data, nil
}

func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(strings.TrimPrefix(header, utf8BOM))
	}
	return cleaned
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
