package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile          ErrorCategory = "file"
	CategoryParse         ErrorCategory = "parse"
	CategorySchema        ErrorCategory = "schema"
	CategoryCoercion      ErrorCategory = "coercion"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryReferenceData ErrorCategory = "reference_data"
	CategoryEmptyDataset  ErrorCategory = "empty_dataset"
	CategoryStorage       ErrorCategory = "storage"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeEncodingError ErrorCode = "encoding_error"
	CodeFieldCount    ErrorCode = "field_count"

	// Schema errors
	CodeMissingDateColumn ErrorCode = "missing_date_column"

	// Coercion and validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeDuplicateRow  ErrorCode = "duplicate_row"
	CodeOutOfRange    ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Reference data errors
	CodeUnknownCategory ErrorCode = "unknown_category"
	CodeInvalidBudget   ErrorCode = "invalid_budget"

	// Empty dataset
	CodeNoData ErrorCode = "no_data"

	// Storage errors
	CodeStorageUnavailable ErrorCode = "storage_unavailable"
	CodeStorageWrite       ErrorCode = "storage_write"
	CodeStorageRead        ErrorCode = "storage_read"
	CodeMigrationFailed    ErrorCode = "migration_failed"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
	CodeCancelled       ErrorCode = "cancelled"
)

// FinsightError is the base error type for all application errors
type FinsightError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *FinsightError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *FinsightError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *FinsightError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategorySchema, CategoryCoercion, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReferenceData, CategoryEmptyDataset, CategoryInternal:
		return 5
	case CategoryStorage:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *FinsightError) WithContext(key string, value interface{}) *FinsightError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *FinsightError) WithSuggestion(suggestion string) *FinsightError {
	e.Suggestion = suggestion
	return e
}

// New creates a new FinsightError
func New(category ErrorCategory, code ErrorCode, message string) *FinsightError {
	return &FinsightError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with FinsightError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *FinsightError {
	if err == nil {
		return nil
	}

	return &FinsightError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func newOrWrap(err error, category ErrorCategory, code ErrorCode, message string) *FinsightError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *FinsightError {
	var message, suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file appears to be corrupted: %s", path)
		suggestion = "verify the file integrity and try using a backup copy"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	return newOrWrap(err, CategoryFile, code, message).
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// ParseError creates an error for input that could not be read as rows
func ParseError(code ErrorCode, source string, line int, err error) *FinsightError {
	var message, suggestion string

	switch code {
	case CodeEncodingError:
		message = fmt.Sprintf("encoding error in %s", source)
		suggestion = "save the file as UTF-8 or Windows-1252"
	case CodeFieldCount:
		message = fmt.Sprintf("wrong number of fields in %s at line %d", source, line)
		suggestion = "check for unquoted delimiters in the row"
	default:
		message = fmt.Sprintf("parse error in %s at line %d", source, line)
		suggestion = "check the file format and data integrity"
	}

	return newOrWrap(err, CategoryParse, code, message).
		WithSuggestion(suggestion).
		WithContext("source", source).
		WithContext("line", line)
}

// SchemaError reports a batch whose columns contain none of the accepted date aliases.
// It is fatal for the batch.
func SchemaError(aliases []string, found []string) *FinsightError {
	sortedFound := append([]string(nil), found...)
	sort.Strings(sortedFound)

	return New(CategorySchema, CodeMissingDateColumn,
		fmt.Sprintf("no date column found (accepted: %s)", strings.Join(aliases, ", "))).
		WithSuggestion("rename the date column to one of the accepted names").
		WithContext("accepted_columns", aliases).
		WithContext("found_columns", sortedFound)
}

// CoercionError reports a row whose amount or date could not be converted.
// The row is dropped and counted; the batch continues.
func CoercionError(code ErrorCode, field string, line int, value string, err error) *FinsightError {
	var message, suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s' at row %d: %q", field, line, value)
		suggestion = "amounts must be decimal numbers such as '-12.34' or '$1,200.00'"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s' at row %d: %q", field, line, value)
		suggestion = "use YYYY-MM-DD, MM/DD/YYYY or RFC3339"
	default:
		message = fmt.Sprintf("could not convert field '%s' at row %d: %q", field, line, value)
		suggestion = "check the field value and format"
	}

	return newOrWrap(err, CategoryCoercion, code, message).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("line", line).
		WithContext("value", value)
}

// EmptyDatasetError describes a report requested over zero matching records.
// Reports carry it as their "no data" reason instead of returning it.
func EmptyDatasetError(report, userID string) *FinsightError {
	return New(CategoryEmptyDataset, CodeNoData,
		fmt.Sprintf("no data for %s report (user %s)", report, userID)).
		WithContext("report", report).
		WithContext("user_id", userID)
}

// ReferenceDataError reports a budget or category that is missing or inconsistent.
func ReferenceDataError(code ErrorCode, kind, key, reason string) *FinsightError {
	var suggestion string

	switch code {
	case CodeUnknownCategory:
		suggestion = "create the category or correct the category name"
	case CodeInvalidBudget:
		suggestion = "fix the budget amount or date range"
	default:
		suggestion = "check the reference data"
	}

	return New(CategoryReferenceData, code, fmt.Sprintf("%s %q skipped: %s", kind, key, reason)).
		WithSuggestion(suggestion).
		WithContext("kind", kind).
		WithContext("key", key)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *FinsightError {
	var message, suggestion string

	switch code {
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return newOrWrap(err, CategoryValidation, code, message).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *FinsightError {
	var message, suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return newOrWrap(err, CategoryConfiguration, code, message).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// StorageError creates a repository-related error
func StorageError(code ErrorCode, operation string, err error) *FinsightError {
	var message, suggestion string

	switch code {
	case CodeStorageUnavailable:
		message = fmt.Sprintf("storage unavailable during %s", operation)
		suggestion = "check the database path or connection string"
	case CodeMigrationFailed:
		message = fmt.Sprintf("schema migration failed during %s", operation)
		suggestion = "inspect the schema_migrations table for a dirty version"
	case CodeStorageWrite:
		message = fmt.Sprintf("write failed during %s", operation)
		suggestion = "check disk space and database permissions"
	default:
		message = fmt.Sprintf("storage error during %s", operation)
		suggestion = "try again or check the database logs"
	}

	return newOrWrap(err, CategoryStorage, code, message).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *FinsightError {
	var message, suggestion string

	switch code {
	case CodeUnexpectedError:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	case CodeCancelled:
		message = fmt.Sprintf("%s cancelled", operation)
		suggestion = "rerun the command; partial results were not persisted"
	default:
		message = fmt.Sprintf("internal error during %s", operation)
		suggestion = "try again or contact support if the problem persists"
	}

	return newOrWrap(err, CategoryInternal, code, message).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*FinsightError      `json:"-"`
	SampleErrors []*FinsightError      `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*FinsightError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if len(errs) == 0 {
		summary.Errors = []*FinsightError{}
		return summary
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	sort.Strings(categories)

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// IsFinsightError checks if an error is a FinsightError
func IsFinsightError(err error) bool {
	_, ok := AsFinsightError(err)
	return ok
}

// AsFinsightError extracts a FinsightError from an error chain
func AsFinsightError(err error) (*FinsightError, bool) {
	var finsightErr *FinsightError
	if errors.As(err, &finsightErr) {
		return finsightErr, true
	}
	return nil, false
}

// IsCategory reports whether err carries a FinsightError of the given category
func IsCategory(err error, category ErrorCategory) bool {
	fe, ok := AsFinsightError(err)
	return ok && fe.Category == category
}

// WrapIfNeeded wraps an error if it's not already a FinsightError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *FinsightError {
	if err == nil {
		return nil
	}

	if finsightErr, ok := AsFinsightError(err); ok {
		return finsightErr
	}

	return Wrap(err, category, code, message)
}
