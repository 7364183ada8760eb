package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"finsight/internal/pipeline"
	"finsight/pkg/errors"
	"finsight/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and fallbacks
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		if fe, ok := errors.AsFinsightError(err); ok {
			return nil, fe.WithSuggestion("Check the report configuration values")
		}
		return nil, err
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

type renderFunc func(rg *ReportGenerator, writer io.Writer) error

// GenerateReportSafely renders the report, retrying in console format when
// the requested format fails
func (srg *SafeReportGenerator) GenerateReportSafely(report Tabular, writer io.Writer) error {
	if report == nil {
		return errors.ValidationError(errors.CodeMissingField, "report", nil, nil).
			WithSuggestion("Provide a report to render")
	}
	return srg.generate(report.Title(), writer, func(rg *ReportGenerator, w io.Writer) error {
		return rg.GenerateReport(report, w)
	})
}

// GenerateResultsSafely renders pipeline results with the same fallbacks
func (srg *SafeReportGenerator) GenerateResultsSafely(results []*pipeline.Result, writer io.Writer) error {
	return srg.generate("pipeline results", writer, func(rg *ReportGenerator, w io.Writer) error {
		return rg.GenerateResults(results, w)
	})
}

// WriteReportFile renders the report into path, creating parent directories
func (srg *SafeReportGenerator) WriteReportFile(report Tabular, path string) error {
	return srg.writeFile(path, func(w io.Writer) error {
		return srg.GenerateReportSafely(report, w)
	})
}

// WriteResultsFile renders pipeline results into path
func (srg *SafeReportGenerator) WriteResultsFile(results []*pipeline.Result, path string) error {
	return srg.writeFile(path, func(w io.Writer) error {
		return srg.GenerateResultsSafely(results, w)
	})
}

func (srg *SafeReportGenerator) generate(subject string, writer io.Writer, render renderFunc) error {
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}

	log := srg.logger.WithFields(logger.Fields{
		"format":  srg.config.Format,
		"subject": subject,
		"output":  getWriterDescription(writer),
	})
	log.Debug("Starting report generation")

	err := render(srg.ReportGenerator, writer)
	if err == nil {
		log.Debug("Report generation completed")
		return nil
	}

	if srg.config.Format == FormatConsole {
		log.WithError(err).Error("Report generation failed")
		return srg.wrapGenerationError(err)
	}

	log.WithError(err).Warn("Primary report generation failed, attempting console fallback")

	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallback, ferr := NewReportGenerator(&fallbackConfig)
	if ferr != nil {
		return srg.wrapGenerationError(err)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", err)

	if ferr := render(fallback, writer); ferr != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", err, ferr),
		)
	}

	log.Info("Report generated using console fallback")
	return nil
}

func (srg *SafeReportGenerator) writeFile(path string, write func(io.Writer) error) error {
	if strings.TrimSpace(path) == "" {
		return errors.ValidationError(errors.CodeMissingField, "output_file", path, nil)
	}

	file, err := createFile(path)
	if err != nil {
		if !isFileError(err) {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		backup := generateBackupPath(path)
		srg.logger.WithFields(logger.Fields{
			"original_file": path,
			"backup_file":   backup,
		}).WithError(err).Warn("Cannot create output file, writing to backup location")

		file, err = createFile(backup)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, path, err).
				WithSuggestion("Check that the output directory is writable")
		}
		fmt.Fprintf(os.Stderr, "Warning: Could not write to %s, report saved to %s\n", path, backup)
	}

	if err := write(file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return errors.FileError(errors.CodeFilePermission, file.Name(), err)
	}

	srg.logger.WithField("file", file.Name()).Info("Report written")
	return nil
}

func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if fe, ok := errors.AsFinsightError(err); ok {
		return fe
	}

	return errors.InternalError(
		errors.CodeUnexpectedError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

// isFileError checks if the error is file-related
func isFileError(err error) bool {
	return os.IsPermission(err) ||
		os.IsNotExist(err) ||
		os.IsExist(err) ||
		isSpaceError(err)
}

// generateBackupPath places the backup next to the working directory when
// the original directory is unusable
func generateBackupPath(originalPath string) string {
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return fmt.Sprintf("%s_backup%s", name, ext)
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}
