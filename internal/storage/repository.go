// Package storage persists normalized transactions together with the category
// and budget reference data that reports join against.
//
// Three backends implement Repository: an in-process MemoryStore and a
// database/sql store over SQLite (modernc.org/sqlite) or PostgreSQL
// (lib/pq). SQL schemas are managed with golang-migrate from embedded files.
package storage

import (
	"context"
	"fmt"
	"strings"

	"finsight/internal/models"
	"finsight/pkg/errors"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a looked-up entity does not exist
	ErrNotFound = pkgerrors.New("not found")
	// ErrAlreadyExists is returned when creating an entity whose key is taken
	ErrAlreadyExists = pkgerrors.New("already exists")
)

// Repository is the storage contract used by the pipeline and the CLI
type Repository interface {
	// AppendTransactions inserts records and returns how many were stored.
	// Records without an ID get one. Records whose ID already exists are skipped.
	AppendTransactions(ctx context.Context, records []models.TransactionRecord) (int, error)
	// ListTransactions returns the user's transactions ordered by date; an
	// empty userID lists every user
	ListTransactions(ctx context.Context, userID string) ([]models.TransactionRecord, error)

	GetCategory(ctx context.Context, name string) (*models.Category, error)
	CreateCategory(ctx context.Context, category *models.Category) error
	ListCategories(ctx context.Context) ([]models.Category, error)

	AppendBudget(ctx context.Context, budget *models.Budget) error
	ListBudgets(ctx context.Context, userID string) ([]models.Budget, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Stats counts stored entities
type Stats struct {
	Transactions int `json:"transactions"`
	Categories   int `json:"categories"`
	Budgets      int `json:"budgets"`
	Users        int `json:"users"`
}

// String returns a human-readable summary
func (s Stats) String() string {
	return fmt.Sprintf("%d transactions from %d users, %d categories, %d budgets",
		s.Transactions, s.Users, s.Categories, s.Budgets)
}

// Driver names a storage backend
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config selects and locates a backend
type Config struct {
	Driver Driver `json:"driver" yaml:"driver" mapstructure:"driver"`
	// DSN is a file path for sqlite and a connection string for postgres.
	// A sqlite DSN must name a file; ":memory:" databases are not shared
	// between the migration and query connections.
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
}

// DefaultConfig returns a sqlite store in the working directory
func DefaultConfig() *Config {
	return &Config{Driver: DriverSQLite, DSN: "finsight.db"}
}

// Validate validates the storage configuration
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.DSN) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, "storage.dsn", c.DSN, nil)
		}
		if c.Driver == DriverSQLite && strings.Contains(c.DSN, ":memory:") {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "storage.dsn", c.DSN,
				fmt.Errorf("use the memory driver for in-memory storage"))
		}
		return nil
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "storage.driver", c.Driver,
			fmt.Errorf("supported drivers: memory, sqlite, postgres"))
	}
}

// Open creates the configured repository. SQL backends are migrated to the
// latest schema before Open returns.
func Open(ctx context.Context, config *Config) (Repository, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Driver == DriverMemory {
		return NewMemoryStore(), nil
	}
	return NewSQLStore(ctx, config.Driver, config.DSN)
}

// IsNotFound reports whether err is ErrNotFound
func IsNotFound(err error) bool {
	return pkgerrors.Is(err, ErrNotFound)
}

// IsAlreadyExists reports whether err is ErrAlreadyExists
func IsAlreadyExists(err error) bool {
	return pkgerrors.Is(err, ErrAlreadyExists)
}

// deriveFeatures recomputes the features derived from amount and date, so
// every driver returns the same records whatever the caller appended
func deriveFeatures(r *models.TransactionRecord) {
	r.AmountAbs = r.Amount.Abs()
	r.Month = int(r.TransactionDate.Month())
	r.DayOfWeek = (int(r.TransactionDate.Weekday()) + 6) % 7
	r.IsWeekend = r.DayOfWeek >= 5
}

func validateRecord(r *models.TransactionRecord) error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.ValidationError(errors.CodeMissingField, "user_id", r.ID, nil)
	}
	if r.TransactionDate.IsZero() {
		return errors.ValidationError(errors.CodeMissingField, "transaction_date", r.ID, nil)
	}
	return nil
}
