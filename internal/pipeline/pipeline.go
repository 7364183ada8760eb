// Package pipeline runs the ingestion workflow: normalize loosely-typed rows,
// flag anomalies, score data quality, register unseen categories and append
// the records to a repository in batches.
//
// Independent datasets can be ingested concurrently with RunMany; each run
// owns its rows and shares only the repository, which serializes writes.
//
// Example usage:
//
//	svc, err := pipeline.NewService(nil, repo, nil)
//	svc.AddProgressCallback(func(p pipeline.Progress) {
//		fmt.Printf("%s: %.0f%% - %s\n", p.Source, p.PercentComplete, p.CurrentStep)
//	})
//	result, err := svc.Run(ctx, pipeline.Request{UserID: "u1", Source: "jan.csv", Rows: rows})
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"finsight/internal/classifier"
	"finsight/internal/models"
	"finsight/internal/normalizer"
	"finsight/internal/outlier"
	"finsight/internal/quality"
	"finsight/internal/storage"
	"finsight/pkg/errors"
	"finsight/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Service orchestrates pipeline runs against one repository
type Service struct {
	config     *Config
	repo       storage.Repository
	classifier *classifier.Classifier
	detector   *outlier.Detector
	logger     logger.Logger

	callbackMu sync.RWMutex
	callbacks  []ProgressCallback
}

// NewService creates a pipeline service. A nil config uses DefaultConfig and
// a nil classifier uses the built-in rules.
func NewService(config *Config, repo storage.Repository, c *classifier.Classifier) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "repository", nil, nil).
			WithSuggestion("provide a storage repository")
	}
	if c == nil {
		c = classifier.NewDefaultClassifier()
	}
	policy := config.Outlier
	if policy == nil {
		policy = outlier.IQRPolicy()
	}
	detector, err := outlier.NewDetector(policy)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:     config,
		repo:       repo,
		classifier: c,
		detector:   detector,
		logger:     logger.GetGlobalLogger().WithComponent("pipeline"),
	}, nil
}

// AddProgressCallback adds a progress callback function
func (s *Service) AddProgressCallback(callback ProgressCallback) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

func (s *Service) progressCallbacks() []ProgressCallback {
	s.callbackMu.RLock()
	defer s.callbackMu.RUnlock()
	return append([]ProgressCallback(nil), s.callbacks...)
}

// Prepared is a normalized and anomaly-flagged dataset that has not been stored
type Prepared struct {
	Records    []models.TransactionRecord
	Rejections *normalizer.RejectionStats
	Anomalies  int
}

// Prepare normalizes the request rows and flags anomalies without touching
// the repository. A missing date column is the only error.
func (s *Service) Prepare(req Request) (*Prepared, error) {
	n, err := s.normalizerFor(req.UserID)
	if err != nil {
		return nil, err
	}
	records, stats, err := n.Normalize(req.Rows)
	if err != nil {
		return &Prepared{Rejections: stats}, err
	}
	flagged, flags := s.detector.Detect(records)
	anomalies := 0
	for _, f := range flags {
		if f.IsAnomaly {
			anomalies++
		}
	}
	return &Prepared{Records: flagged, Rejections: stats, Anomalies: anomalies}, nil
}

func (s *Service) normalizerFor(userID string) (*normalizer.Normalizer, error) {
	cfg := normalizer.DefaultConfig()
	if s.config.Normalizer != nil {
		cp := *s.config.Normalizer
		cfg = &cp
	}
	if userID != "" {
		cfg.DefaultUserID = userID
	}
	return normalizer.NewNormalizer(cfg, s.classifier)
}

// Run executes every step for one dataset. The returned result is never nil;
// on error its Status is failed and Error carries the message.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.NewString()
	result := &Result{
		RunID:      runID,
		Source:     req.Source,
		UserID:     req.UserID,
		Status:     StatusFailed,
		StartedAt:  time.Now(),
		RawRecords: len(req.Rows),
	}
	fail := func(err error) (*Result, error) {
		result.Duration = time.Since(result.StartedAt)
		result.Error = err.Error()
		return result, err
	}

	if err := req.Validate(); err != nil {
		return fail(err)
	}

	op := logger.NewOperationLogger("pipeline run", s.logger, logger.Fields{
		"run_id": runID,
		"source": req.Source,
		"rows":   len(req.Rows),
	})
	progress := newProgressState(runID, req.Source, s.progressCallbacks())

	// normalize + detect
	progress.update(StepNormalize, 0)
	if err := checkContext(ctx, "normalize"); err != nil {
		op.Error(err, "Pipeline cancelled")
		return fail(err)
	}
	prepared, err := s.Prepare(req)
	if prepared != nil {
		result.Rejections = prepared.Rejections
	}
	if err != nil {
		op.Error(err, "Pipeline failed")
		return fail(err)
	}
	result.ProcessedRecords = len(prepared.Records)
	result.Anomalies = prepared.Anomalies
	progress.records(len(prepared.Records), 0)
	op.Step(StepNormalize, logger.Fields{
		"accepted": prepared.Rejections.Accepted,
		"dropped":  prepared.Rejections.Dropped(),
	})
	progress.update(StepDetect, 1)
	op.Step(StepDetect, logger.Fields{"anomalies": prepared.Anomalies})

	// score
	progress.update(StepScore, 2)
	result.DataQuality = quality.Score(prepared.Records)
	op.Step(StepScore, logger.Fields{"score": result.DataQuality.Score})

	// categories
	progress.update(StepCategories, 3)
	created, err := s.ensureCategories(ctx, prepared.Records)
	result.LoadStats.CategoriesCreated = created
	if err != nil {
		op.Error(err, "Category registration failed")
		return fail(err)
	}
	op.Step(StepCategories, logger.Fields{"created": created})

	// load
	progress.update(StepLoad, 4)
	load, err := s.load(ctx, runID, prepared.Records, progress)
	load.CategoriesCreated = created
	result.LoadStats = load
	if err != nil {
		op.Error(err, "Pipeline cancelled during load")
		return fail(err)
	}

	result.Status = StatusCompleted
	if load.FailedInserts > 0 {
		result.Status = StatusPartial
	}
	progress.update(StepDone, len(steps))
	result.Duration = op.Success("Pipeline completed")

	s.logger.WithFields(logger.Fields{
		"run_id":    runID,
		"source":    req.Source,
		"processed": result.ProcessedRecords,
		"stored":    load.SuccessfulInserts,
		"failed":    load.FailedInserts,
		"quality":   result.DataQuality.Score,
		"status":    result.Status,
	}).Info("Pipeline result")
	return result, nil
}

// ensureCategories creates every category the records use that the
// repository does not know yet, typed from its name
func (s *Service) ensureCategories(ctx context.Context, records []models.TransactionRecord) (int, error) {
	names := map[string]bool{}
	for i := range records {
		names[records[i].CategoryName] = true
	}
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	created := 0
	for _, name := range ordered {
		_, err := s.repo.GetCategory(ctx, name)
		if err == nil {
			continue
		}
		if !storage.IsNotFound(err) {
			return created, err
		}
		category := &models.Category{Name: name, Type: models.InferCategoryType(name)}
		if err := s.repo.CreateCategory(ctx, category); err != nil {
			if storage.IsAlreadyExists(err) {
				continue
			}
			return created, err
		}
		created++
		s.logger.WithFields(logger.Fields{"category": name, "type": category.Type}).Debug("Category created")
	}
	return created, nil
}

// load appends records in batches. A failed batch is counted and the load
// continues; only cancellation stops it.
func (s *Service) load(ctx context.Context, runID string, records []models.TransactionRecord, progress *progressState) (LoadStats, error) {
	stats := LoadStats{Total: len(records)}
	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation:   "load transactions " + runID,
		Total:       int64(len(records)),
		LogInterval: s.config.ProgressInterval,
		Logger:      s.logger,
	})

	for start := 0; start < len(records); start += s.config.BatchSize {
		if err := checkContext(ctx, "load"); err != nil {
			tracker.CompleteWithError(err)
			return stats, err
		}
		end := start + s.config.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		inserted, err := s.repo.AppendTransactions(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				tracker.CompleteWithError(err)
				return stats, checkContext(ctx, "load")
			}
			s.logger.WithError(err).WithFields(logger.Fields{
				"run_id": runID,
				"batch":  start / s.config.BatchSize,
				"size":   len(batch),
			}).Error("Batch insert failed")
			stats.FailedInserts += len(batch)
		} else {
			stats.SuccessfulInserts += inserted
			stats.FailedInserts += len(batch) - inserted
		}
		tracker.Add(int64(len(batch)))
		progress.records(len(records), stats.SuccessfulInserts)
	}

	tracker.Complete()
	return stats, nil
}

// RunMany executes independent runs concurrently, at most MaxConcurrentRuns
// at a time. Results keep the order of reqs. A failing run does not stop the
// others; the returned error summarizes every failure.
func (s *Service) RunMany(ctx context.Context, reqs []Request) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))

	g := new(errgroup.Group)
	g.SetLimit(s.config.MaxConcurrentRuns)
	for i := range reqs {
		i := i
		g.Go(func() error {
			results[i], errs[i] = s.Run(ctx, reqs[i])
			return nil
		})
	}
	g.Wait()

	var failures []*errors.FinsightError
	for i, err := range errs {
		if err == nil {
			continue
		}
		failures = append(failures, errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError,
			"pipeline run failed").WithContext("source", reqs[i].Source))
	}
	if len(failures) > 0 {
		return results, errors.NewErrorSummary(failures)
	}
	return results, nil
}

func checkContext(ctx context.Context, step string) error {
	if err := ctx.Err(); err != nil {
		return errors.InternalError(errors.CodeCancelled, "pipeline "+step, err)
	}
	return nil
}
