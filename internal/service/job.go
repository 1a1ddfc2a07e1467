package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doctrans/doctrans/internal/auth"
	"github.com/doctrans/doctrans/internal/dispatcher"
	"github.com/doctrans/doctrans/internal/intake"
	"github.com/doctrans/doctrans/internal/storage"
	"github.com/doctrans/doctrans/internal/store"
	"github.com/doctrans/doctrans/internal/store/model"
	"github.com/doctrans/doctrans/pkg/metrics"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// JobService carries the request-facing semantics: validation and persistence
// of new jobs, ownership checks on reads and result retrieval. Execution
// itself is the dispatcher's business; CreateJob returns as soon as the job
// is recorded and scheduled.
type JobService struct {
	store      store.Store
	storage    storage.Storage
	intake     *intake.Intake
	dispatcher *dispatcher.Dispatcher

	// relaxedOwnership lets any authenticated caller read any job. Meant for
	// static API-key deployments where every caller is the shared system
	// principal.
	relaxedOwnership bool
}

func NewJobService(s store.Store, blobs storage.Storage, in *intake.Intake, d *dispatcher.Dispatcher, relaxedOwnership bool) *JobService {
	return &JobService{
		store:            s,
		storage:          blobs,
		intake:           in,
		dispatcher:       d,
		relaxedOwnership: relaxedOwnership,
	}
}

// CreateJob validates and persists the upload, records a pending job owned by
// the calling user and schedules it for processing. The returned job is still
// pending; callers poll for the outcome.
func (svc *JobService) CreateJob(ctx context.Context, upload intake.Upload) (*model.Job, error) {
	user := auth.MustHaveUser(ctx)

	ref, err := svc.intake.Save(ctx, upload)
	if err != nil {
		return nil, err
	}

	job := &model.Job{
		ID:                uuid.New(),
		OrgID:             user.Organization,
		Username:          user.Username,
		SourceLanguage:    upload.SourceLanguage,
		TargetLanguage:    upload.TargetLanguage,
		DocumentType:      upload.DocumentType,
		OriginalFilename:  ref.Filename,
		OriginalPath:      ref.Path,
		OriginalSizeBytes: ref.SizeBytes,
		Status:            model.JobStatusPending,
	}

	created, err := svc.store.Job().Create(ctx, job)
	if err != nil {
		// The upload is orphaned without a job row; remove it best-effort.
		if derr := svc.storage.Delete(ctx, ref.Path); derr != nil {
			zap.S().Named("service").Warnw("failed to remove orphaned upload", "path", ref.Path, "error", derr)
		}
		return nil, fmt.Errorf("creating job: %w", err)
	}

	metrics.JobsCreatedTotal.Inc()
	svc.dispatcher.Dispatch(created.ID)
	return created, nil
}

// GetJob returns the job if the caller is authorized to read it.
func (svc *JobService) GetJob(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job, err := svc.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("fetching job: %w", err)
	}
	if err := svc.authorize(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns the caller's jobs newest-first, plus the total count for
// the same scope. Admins and relaxed deployments see every job. A non-empty
// status narrows both the page and the total to that lifecycle state.
func (svc *JobService) ListJobs(ctx context.Context, limit, offset int, status model.JobStatus) (model.JobList, int64, error) {
	user := auth.MustHaveUser(ctx)

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	filter := store.NewJobQueryFilter()
	if !user.Admin && !svc.relaxedOwnership {
		filter = filter.ByOwner(user.Organization, user.Username)
	}
	if status != "" {
		filter = filter.ByStatus(status)
	}

	opts := store.NewJobQueryOptions().WithNewestFirst().WithLimit(limit).WithOffset(offset)

	jobs, err := svc.store.Job().List(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}
	total, err := svc.store.Job().Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting jobs: %w", err)
	}
	return jobs, total, nil
}

// GetJobResult streams the translated file of a completed job. The caller
// owns closing the reader.
func (svc *JobService) GetJobResult(ctx context.Context, id uuid.UUID) (io.ReadCloser, int64, *model.Job, error) {
	job, err := svc.GetJob(ctx, id)
	if err != nil {
		return nil, 0, nil, err
	}

	if job.Status != model.JobStatusCompleted {
		return nil, 0, nil, ErrJobNotReady
	}
	if job.OutputPath == nil || job.OutputFilename == nil {
		zap.S().Named("service").Errorw("completed job has no output reference", "job_id", job.ID)
		return nil, 0, nil, ErrJobResultMissing
	}

	r, size, err := svc.storage.Open(ctx, *job.OutputPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			zap.S().Named("service").Errorw("translated file missing from storage", "job_id", job.ID, "path", *job.OutputPath)
			return nil, 0, nil, ErrJobResultMissing
		}
		return nil, 0, nil, fmt.Errorf("opening translated file: %w", err)
	}
	return r, size, job, nil
}

// authorize applies the ownership rule: admins read everything, relaxed
// deployments skip the check, everyone else must own the job.
func (svc *JobService) authorize(ctx context.Context, job *model.Job) error {
	user := auth.MustHaveUser(ctx)
	if user.Admin || svc.relaxedOwnership {
		return nil
	}
	if job.OrgID != user.Organization || job.Username != user.Username {
		return ErrJobAccessForbidden
	}
	return nil
}
