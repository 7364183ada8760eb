package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"finsight/internal/models"
	"finsight/pkg/errors"
	"finsight/pkg/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Dates are stored as fixed-width UTC text so they sort lexically in both backends
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLStore is a Repository over database/sql
type SQLStore struct {
	db     *sql.DB
	driver Driver
	logger logger.Logger
}

// NewSQLStore opens the database, runs migrations and verifies the connection
func NewSQLStore(ctx context.Context, driver Driver, dsn string) (*SQLStore, error) {
	if driver == DriverSQLite {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.FileError(errors.CodeFilePermission, dir, err)
			}
		}
	}

	db, err := sql.Open(sqlDriverName(driver), dsn)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageUnavailable, "open database", err)
	}
	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY between concurrent pipeline runs
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classify("ping database", err)
	}

	if err := RunMigrations(driver, dsn); err != nil {
		db.Close()
		return nil, err
	}

	l := logger.GetGlobalLogger().WithComponent("storage").WithField("driver", driver)
	l.Info("Storage ready")

	return &SQLStore{db: db, driver: driver, logger: l}, nil
}

// rebind rewrites ? placeholders as $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) AppendTransactions(ctx context.Context, records []models.TransactionRecord) (int, error) {
	for i := range records {
		if err := validateRecord(&records[i]); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO transactions (id, user_id, category_name, amount, description, transaction_date,
			merchant, payment_method, is_recurring, is_anomaly, location, tags, row_digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`))
	if err != nil {
		return 0, classify("prepare insert", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		res, err := stmt.ExecContext(ctx, id, r.UserID, r.CategoryName, r.Amount.String(), r.Description,
			formatTime(r.TransactionDate), r.Merchant, r.PaymentMethod, r.IsRecurring, r.IsAnomaly,
			r.Location, strings.Join(r.Tags, ";"), r.RowDigest)
		if err != nil {
			return 0, classify("insert transaction", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("commit transactions", err)
	}

	s.logger.WithFields(logger.Fields{
		"records":  len(records),
		"inserted": inserted,
	}).Debug("Transactions appended")
	return inserted, nil
}

func (s *SQLStore) ListTransactions(ctx context.Context, userID string) ([]models.TransactionRecord, error) {
	query := `SELECT id, user_id, category_name, amount, description, transaction_date,
		merchant, payment_method, is_recurring, is_anomaly, location, tags, row_digest FROM transactions`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY transaction_date, id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, classify("list transactions", err)
	}
	defer rows.Close()

	var out []models.TransactionRecord
	for rows.Next() {
		var (
			r            models.TransactionRecord
			amount, date string
			tags         string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.CategoryName, &amount, &r.Description, &date,
			&r.Merchant, &r.PaymentMethod, &r.IsRecurring, &r.IsAnomaly, &r.Location, &tags, &r.RowDigest); err != nil {
			return nil, classify("scan transaction", err)
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.StorageError(errors.CodeStorageRead, "decode amount", err)
		}
		if r.TransactionDate, err = parseTime(date); err != nil {
			return nil, errors.StorageError(errors.CodeStorageRead, "decode transaction date", err)
		}
		if tags != "" {
			r.Tags = strings.Split(tags, ";")
		}
		deriveFeatures(&r)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list transactions", err)
	}
	return out, nil
}

func (s *SQLStore) GetCategory(ctx context.Context, name string) (*models.Category, error) {
	var c models.Category
	var kind string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, name, type, description FROM categories WHERE name = ?`), name).
		Scan(&c.ID, &c.Name, &kind, &c.Description)
	if err == sql.ErrNoRows {
		return nil, pkgerrors.Wrapf(ErrNotFound, "category %q", name)
	}
	if err != nil {
		return nil, classify("get category", err)
	}
	c.Type = models.CategoryType(kind)
	return &c, nil
}

func (s *SQLStore) CreateCategory(ctx context.Context, category *models.Category) error {
	if err := category.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidFormat, "category", category.Name, err)
	}
	id := category.ID
	if id == "" {
		id = uuid.NewString()
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO categories (id, name, type, description) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING`),
		id, category.Name, string(category.Type), category.Description)
	if err != nil {
		return classify("create category", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pkgerrors.Wrapf(ErrAlreadyExists, "category %q", category.Name)
	}
	category.ID = id
	return nil
}

func (s *SQLStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, type, description FROM categories ORDER BY name`)
	if err != nil {
		return nil, classify("list categories", err)
	}
	defer rows.Close()

	var out []models.Category
	for rows.Next() {
		var c models.Category
		var kind string
		if err := rows.Scan(&c.ID, &c.Name, &kind, &c.Description); err != nil {
			return nil, classify("scan category", err)
		}
		c.Type = models.CategoryType(kind)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list categories", err)
	}
	return out, nil
}

func (s *SQLStore) AppendBudget(ctx context.Context, budget *models.Budget) error {
	if err := budget.Validate(); err != nil {
		return errors.ReferenceDataError(errors.CodeInvalidBudget, "budget", budget.CategoryName, err.Error())
	}
	id := budget.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO budgets (id, user_id, category_name, amount, period, start_date, end_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		id, budget.UserID, budget.CategoryName, budget.Amount.String(), string(budget.Period),
		formatTime(budget.StartDate), formatTime(budget.EndDate))
	if err != nil {
		return classify("append budget", err)
	}
	budget.ID = id
	return nil
}

func (s *SQLStore) ListBudgets(ctx context.Context, userID string) ([]models.Budget, error) {
	query := `SELECT id, user_id, category_name, amount, period, start_date, end_date FROM budgets`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY start_date, category_name`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, classify("list budgets", err)
	}
	defer rows.Close()

	var out []models.Budget
	for rows.Next() {
		var (
			b                  models.Budget
			amount, period     string
			startDate, endDate string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.CategoryName, &amount, &period, &startDate, &endDate); err != nil {
			return nil, classify("scan budget", err)
		}
		b.Period = models.BudgetPeriod(period)
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.StorageError(errors.CodeStorageRead, "decode budget amount", err)
		}
		if b.StartDate, err = parseTime(startDate); err != nil {
			return nil, errors.StorageError(errors.CodeStorageRead, "decode budget start", err)
		}
		if b.EndDate, err = parseTime(endDate); err != nil {
			return nil, errors.StorageError(errors.CodeStorageRead, "decode budget end", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list budgets", err)
	}
	return out, nil
}

func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM transactions),
			(SELECT COUNT(*) FROM categories),
			(SELECT COUNT(*) FROM budgets),
			(SELECT COUNT(DISTINCT user_id) FROM transactions)`).
		Scan(&st.Transactions, &st.Categories, &st.Budgets, &st.Users)
	if err != nil {
		return Stats{}, classify("stats", err)
	}
	return st, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// classify maps driver errors onto storage error codes. Postgres connection
// failures (SQLSTATE class 08) are reported as unavailable storage.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == context.Canceled || err == context.DeadlineExceeded {
		return errors.InternalError(errors.CodeCancelled, op, err)
	}
	var pqErr *pq.Error
	if pkgerrors.As(err, &pqErr) && pqErr.Code.Class() == "08" {
		return errors.StorageError(errors.CodeStorageUnavailable, op, err)
	}
	code := errors.CodeStorageRead
	if strings.HasPrefix(op, "insert") || strings.HasPrefix(op, "append") || strings.HasPrefix(op, "create") ||
		strings.HasPrefix(op, "commit") {
		code = errors.CodeStorageWrite
	}
	return errors.StorageError(code, op, err)
}
