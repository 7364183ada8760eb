package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"syscall"

	"finsight/pkg/errors"
	"finsight/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler writing to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     os.Stderr,
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if summary, ok := err.(*errors.ErrorSummary); ok {
		return h.handleErrorSummary(summary)
	}

	if fe, ok := errors.AsFinsightError(err); ok {
		return h.handleFinsightError(fe)
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleFinsightError(err *errors.FinsightError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleErrorSummary(summary *errors.ErrorSummary) int {
	fmt.Fprintf(h.out, "Error: %s\n", summary.Error())
	for i, err := range summary.Errors {
		fmt.Fprintf(h.out, "  %d. %s", i+1, err.Message)
		if source, ok := err.Context["source"]; ok {
			fmt.Fprintf(h.out, " (%v)", source)
		}
		fmt.Fprintf(h.out, "\n")
		if i >= 9 && len(summary.Errors) > 10 {
			fmt.Fprintf(h.out, "  ... and %d more errors\n", len(summary.Errors)-10)
			break
		}
	}
	return summary.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	if isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	if isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.out, "\nRun with --verbose for more details\n")
	}
	return 1
}

// getCategoryHelp returns category-specific help text
func getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the file path is correct
• Ensure you have permission to read inputs and write outputs`

	case errors.CategoryParse:
		return `Parse error help:
• Verify the file is a CSV with a header row or a JSON array of objects
• Check --delimiter matches the file
• Save the file as UTF-8 if characters look garbled`

	case errors.CategorySchema:
		return `Schema error help:
• The export needs a date column such as date, transaction_date or posted_date
• Rename the column or add an alias in the configuration file`

	case errors.CategoryCoercion, errors.CategoryValidation:
		return `Validation error help:
• Use YYYY-MM-DD for dates
• Use plain decimal numbers for amounts
• Check that all required flags have values`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and FINSIGHT_* environment variables
• Verify configuration file syntax if using --config
• Use 'finsight <command> --help' to see all available options`

	case errors.CategoryReferenceData:
		return `Reference data help:
• Ingest transactions for the category before adding budgets, or
• Use --infer-categories to derive category types from their names`

	case errors.CategoryStorage:
		return `Storage error help:
• Check --store and --dsn
• For postgres, verify the server is reachable and the credentials are valid
• For sqlite, verify the database directory is writable`

	default:
		return `For more help:
• Use 'finsight --help' for general help
• Use 'finsight <command> --help' for command-specific help`
	}
}

func isFileNotFoundError(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return stderrors.Is(err, fs.ErrPermission) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}
