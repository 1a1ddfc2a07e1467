package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/doctrans/doctrans/internal/store/model"
)

// Job is the persistence contract for translation jobs. Status transitions
// are guarded single-row updates: each mark operation matches only the
// expected prior status, which keeps the lifecycle strictly forward-only
// even under concurrent dispatch attempts.
type Job interface {
	Create(ctx context.Context, job *model.Job) (*model.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	Count(ctx context.Context, filter *JobQueryFilter) (int64, error)
	// MarkProcessing claims a pending job. It returns false without error
	// when the job already left the pending state, which makes dispatch
	// idempotent.
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, outputFilename, outputPath string) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorDetail string) error
	InitialMigration() error
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Job{})
}

func (s *JobStore) Create(ctx context.Context, job *model.Job) (*model.Job, error) {
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}
	result := s.db.WithContext(ctx).Create(job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating job: %w", result.Error)
	}
	return job, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var job model.Job
	result := s.db.WithContext(ctx).First(&job, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", result.Error)
	}
	return &job, nil
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	var jobs model.JobList

	tx := s.db.WithContext(ctx).Model(&model.Job{})
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if result := tx.Find(&jobs); result.Error != nil {
		return nil, fmt.Errorf("listing jobs: %w", result.Error)
	}
	return jobs, nil
}

func (s *JobStore) Count(ctx context.Context, filter *JobQueryFilter) (int64, error) {
	var total int64

	tx := s.db.WithContext(ctx).Model(&model.Job{})
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if result := tx.Count(&total); result.Error != nil {
		return 0, fmt.Errorf("counting jobs: %w", result.Error)
	}
	return total, nil
}

func (s *JobStore) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&model.Job{}).
		Where("id = ? AND status = ?", id, model.JobStatusPending).
		Update("status", model.JobStatusProcessing)
	if result.Error != nil {
		return false, fmt.Errorf("claiming job: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *JobStore) MarkCompleted(ctx context.Context, id uuid.UUID, outputFilename, outputPath string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&model.Job{}).
		Where("id = ? AND status = ?", id, model.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":          model.JobStatusCompleted,
			"output_filename": outputFilename,
			"output_path":     outputPath,
			"completed_at":    &now,
		})
	if result.Error != nil {
		return fmt.Errorf("completing job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (s *JobStore) MarkFailed(ctx context.Context, id uuid.UUID, errorDetail string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&model.Job{}).
		Where("id = ? AND status = ?", id, model.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":       model.JobStatusFailed,
			"error_detail": errorDetail,
			"completed_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failing job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}
