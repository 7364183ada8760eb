package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"finsight/internal/models"
	"finsight/pkg/errors"
	"finsight/pkg/logger"
)

// JSONParser reads a JSON array of objects into rows. Numbers are kept as
// json.Number so amounts are never rounded through float64.
type JSONParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewJSONParser creates a JSON parser
func NewJSONParser(config *ParseConfig) (*JSONParser, error) {
	if config == nil {
		config = DefaultParseConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &JSONParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("json_parser"),
	}, nil
}

// ParseFile opens and parses a JSON file
func (p *JSONParser) ParseFile(ctx context.Context, path string) ([]models.Row, *ParseStats, error) {
	file, err := openInput(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return p.ParseReader(ctx, file, filepath.Base(path))
}

// ParseReader decodes the array element by element. Elements that are not
// objects are recorded as errors and skipped.
func (p *JSONParser) ParseReader(ctx context.Context, r io.Reader, source string) ([]models.Row, *ParseStats, error) {
	stats := NewParseStats(source)
	stats.Encoding = "utf-8"

	if p.config.MaxFileSize > 0 {
		r = io.LimitReader(r, p.config.MaxFileSize)
	}
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	tok, err := decoder.Token()
	if err == io.EOF {
		return []models.Row{}, stats, nil
	}
	if err != nil {
		return nil, stats, errors.ParseError(errors.CodeInvalidFormat, source, 0, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, stats, errors.ParseError(errors.CodeInvalidFormat, source, 0,
			fmt.Errorf("expected a JSON array of objects"))
	}

	columns := map[string]bool{}
	rows := make([]models.Row, 0, 64)
	for index := 1; decoder.More(); index++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, errors.InternalError(errors.CodeCancelled, "json parsing", err)
		}
		stats.TotalLines = index

		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return nil, stats, errors.ParseError(errors.CodeInvalidFormat, source, index, err)
		}

		var obj map[string]interface{}
		if err := decodeObject(raw, &obj); err != nil || obj == nil {
			stats.AddError(errors.ParseError(errors.CodeInvalidFormat, source, index,
				fmt.Errorf("element %d is not an object", index)))
			continue
		}

		row := make(models.Row, len(obj))
		for k, v := range obj {
			row[k] = v
			if !columns[k] {
				columns[k] = true
				stats.Columns = append(stats.Columns, k)
			}
		}
		rows = append(rows, row)
		stats.RecordsParsed++
	}

	if _, err := decoder.Token(); err != nil {
		return nil, stats, errors.ParseError(errors.CodeInvalidFormat, source, stats.TotalLines, err)
	}

	p.logger.WithFields(logger.Fields{"source": source, "rows": stats.RecordsParsed}).Debug("Parsed JSON input")
	return rows, stats, nil
}

func decodeObject(raw json.RawMessage, obj *map[string]interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(obj)
}
