package storage

import (
	"context"
	"sort"
	"sync"

	"finsight/internal/models"
	"finsight/pkg/errors"
	"finsight/pkg/logger"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

// MemoryStore is a Repository held in process memory
type MemoryStore struct {
	mu           sync.RWMutex
	transactions []models.TransactionRecord
	txIDs        map[string]bool
	categories   map[string]models.Category
	budgets      []models.Budget
	closed       bool
	logger       logger.Logger
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txIDs:      map[string]bool{},
		categories: map[string]models.Category{},
		logger:     logger.GetGlobalLogger().WithComponent("storage").WithField("driver", DriverMemory),
	}
}

func (s *MemoryStore) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errors.InternalError(errors.CodeCancelled, op, err)
	}
	if s.closed {
		return errors.StorageError(errors.CodeStorageUnavailable, op, pkgerrors.New("store is closed"))
	}
	return nil
}

func (s *MemoryStore) AppendTransactions(ctx context.Context, records []models.TransactionRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "append transactions"); err != nil {
		return 0, err
	}

	for i := range records {
		if err := validateRecord(&records[i]); err != nil {
			return 0, err
		}
	}

	inserted := 0
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if s.txIDs[r.ID] {
			continue
		}
		s.txIDs[r.ID] = true
		r.Tags = append([]string(nil), r.Tags...)
		deriveFeatures(&r)
		s.transactions = append(s.transactions, r)
		inserted++
	}

	s.logger.WithFields(logger.Fields{
		"records":  len(records),
		"inserted": inserted,
	}).Debug("Transactions appended")
	return inserted, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, userID string) ([]models.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "list transactions"); err != nil {
		return nil, err
	}

	var out []models.TransactionRecord
	for _, r := range s.transactions {
		if userID == "" || r.UserID == userID {
			out = append(out, r)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (s *MemoryStore) GetCategory(ctx context.Context, name string) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "get category"); err != nil {
		return nil, err
	}

	c, ok := s.categories[name]
	if !ok {
		return nil, pkgerrors.Wrapf(ErrNotFound, "category %q", name)
	}
	return &c, nil
}

func (s *MemoryStore) CreateCategory(ctx context.Context, category *models.Category) error {
	if err := category.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidFormat, "category", category.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "create category"); err != nil {
		return err
	}

	if _, ok := s.categories[category.Name]; ok {
		return pkgerrors.Wrapf(ErrAlreadyExists, "category %q", category.Name)
	}
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	s.categories[category.Name] = *category
	return nil
}

func (s *MemoryStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "list categories"); err != nil {
		return nil, err
	}

	out := make([]models.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) AppendBudget(ctx context.Context, budget *models.Budget) error {
	if err := budget.Validate(); err != nil {
		return errors.ReferenceDataError(errors.CodeInvalidBudget, "budget", budget.CategoryName, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "append budget"); err != nil {
		return err
	}

	if budget.ID == "" {
		budget.ID = uuid.NewString()
	}
	s.budgets = append(s.budgets, *budget)
	return nil
}

func (s *MemoryStore) ListBudgets(ctx context.Context, userID string) ([]models.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "list budgets"); err != nil {
		return nil, err
	}

	var out []models.Budget
	for _, b := range s.budgets {
		if userID == "" || b.UserID == userID {
			out = append(out, b)
		}
	}
	sortBudgets(out)
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "stats"); err != nil {
		return Stats{}, err
	}

	users := map[string]bool{}
	for _, r := range s.transactions {
		users[r.UserID] = true
	}
	return Stats{
		Transactions: len(s.transactions),
		Categories:   len(s.categories),
		Budgets:      len(s.budgets),
		Users:        len(users),
	}, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func sortTransactions(records []models.TransactionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].TransactionDate, records[j].TransactionDate
		if !a.Equal(b) {
			return a.Before(b)
		}
		return records[i].ID < records[j].ID
	})
}

func sortBudgets(budgets []models.Budget) {
	sort.SliceStable(budgets, func(i, j int) bool {
		if !budgets[i].StartDate.Equal(budgets[j].StartDate) {
			return budgets[i].StartDate.Before(budgets[j].StartDate)
		}
		return budgets[i].CategoryName < budgets[j].CategoryName
	})
}
