package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doctrans/doctrans/internal/executor"
	"github.com/doctrans/doctrans/internal/intake"
	"github.com/doctrans/doctrans/internal/storage"
	"github.com/doctrans/doctrans/internal/store"
	"github.com/doctrans/doctrans/internal/store/model"
	"github.com/doctrans/doctrans/pkg/metrics"
)

// TranslatedPrefix is the storage area for translation outputs.
const TranslatedPrefix = "translated"

const (
	timedOutDetail  = "execution timed out"
	errorDetailSize = 512
)

// Dispatcher owns the job lifecycle: it claims pending jobs, stages the
// source file onto local scratch space, runs the executor under a deadline
// and records the terminal state. Every executor fault ends as a failed
// job; nothing escapes the processing goroutine.
type Dispatcher struct {
	store    store.Store
	storage  storage.Storage
	executor executor.Executor
	timeout  time.Duration

	wg sync.WaitGroup
}

func New(s store.Store, blobs storage.Storage, exec executor.Executor, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		store:    s,
		storage:  blobs,
		executor: exec,
		timeout:  timeout,
	}
}

// Dispatch schedules processing for the job and returns immediately. It is
// idempotent: only the invocation that claims the pending record runs the
// executor, later ones are no-ops.
func (d *Dispatcher) Dispatch(jobID uuid.UUID) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.process(context.Background(), jobID)
	}()
}

// Wait blocks until all in-flight jobs have reached a terminal state. Used
// on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) process(ctx context.Context, jobID uuid.UUID) {
	logger := zap.S().Named("dispatcher").With("job_id", jobID.String())

	claimed, err := d.store.Job().MarkProcessing(ctx, jobID)
	if err != nil {
		logger.Errorw("failed to claim job", "error", err)
		return
	}
	if !claimed {
		logger.Debugw("job already dispatched, skipping")
		return
	}

	job, err := d.store.Job().Get(ctx, jobID)
	if err != nil {
		logger.Errorw("failed to load claimed job", "error", err)
		d.recordFailure(jobID, fmt.Sprintf("internal error: %v", err), logger)
		return
	}

	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outputFilename, outputPath, err := d.run(runCtx, job)
	if err != nil {
		detail := sanitizeError(err)
		logger.Warnw("translation failed", "error", err)
		d.recordFailure(jobID, detail, logger)
		metrics.JobsFinishedTotal.WithLabelValues(string(model.JobStatusFailed)).Inc()
		metrics.JobDurationSeconds.Observe(time.Since(start).Seconds())
		return
	}

	// Final status writes use a fresh context: the run deadline must not
	// prevent recording the outcome.
	if err := d.store.Job().MarkCompleted(context.Background(), jobID, outputFilename, outputPath); err != nil {
		// The job must not stay processing; downgrade to failed.
		logger.Errorw("failed to record completion", "error", err)
		d.recordFailure(jobID, "internal error: failed to record completion", logger)
		metrics.JobsFinishedTotal.WithLabelValues(string(model.JobStatusFailed)).Inc()
		metrics.JobDurationSeconds.Observe(time.Since(start).Seconds())
		return
	}
	logger.Infow("translation completed", "output_path", outputPath, "duration", time.Since(start))
	metrics.JobsFinishedTotal.WithLabelValues(string(model.JobStatusCompleted)).Inc()
	metrics.JobDurationSeconds.Observe(time.Since(start).Seconds())
}

// run stages the source file, executes the translation and uploads the
// result. The scratch directory is removed on every exit path.
func (d *Dispatcher) run(ctx context.Context, job *model.Job) (string, string, error) {
	scratch, err := os.MkdirTemp("", "doctrans-job-*")
	if err != nil {
		return "", "", fmt.Errorf("creating scratch directory: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(scratch)
	}()

	sourcePath := filepath.Join(scratch, job.OriginalFilename)
	if err := d.stageSource(ctx, job.OriginalPath, sourcePath); err != nil {
		return "", "", err
	}

	outputFilename := fmt.Sprintf("translated_%s%s", job.ID, intake.OutputExtension(job.OriginalFilename))
	targetPath := filepath.Join(scratch, outputFilename)

	if err := d.executor.Execute(ctx, executor.Request{
		SourcePath:     sourcePath,
		TargetPath:     targetPath,
		SourceLanguage: job.SourceLanguage,
		TargetLanguage: job.TargetLanguage,
		DocumentType:   job.DocumentType,
	}); err != nil {
		return "", "", err
	}

	outputPath := fmt.Sprintf("%s/%s", TranslatedPrefix, outputFilename)
	if err := d.publishOutput(ctx, targetPath, outputPath); err != nil {
		return "", "", err
	}
	return outputFilename, outputPath, nil
}

func (d *Dispatcher) stageSource(ctx context.Context, storagePath, localPath string) error {
	blob, _, err := d.storage.Open(ctx, storagePath)
	if err != nil {
		return fmt.Errorf("opening original file: %w", err)
	}
	defer blob.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("staging original file: %w", err)
	}
	if _, err := io.Copy(f, blob); err != nil {
		_ = f.Close()
		return fmt.Errorf("staging original file: %w", err)
	}
	return f.Close()
}

// publishOutput moves the translated bytes into durable storage. A job is
// not completed until this succeeds.
func (d *Dispatcher) publishOutput(ctx context.Context, localPath, storagePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening translated file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stating translated file: %w", err)
	}

	if err := d.storage.Write(ctx, storagePath, f, fi.Size()); err != nil {
		return fmt.Errorf("publishing translated file: %w", err)
	}
	return nil
}

func (d *Dispatcher) recordFailure(jobID uuid.UUID, detail string, logger *zap.SugaredLogger) {
	if err := d.store.Job().MarkFailed(context.Background(), jobID, detail); err != nil {
		logger.Errorw("failed to record job failure", "error", err)
	}
}

// sanitizeError bounds the persisted detail and collapses timeouts into a
// distinct, stable message.
func sanitizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return timedOutDetail
	}
	detail := strings.Join(strings.Fields(err.Error()), " ")
	if len(detail) > errorDetailSize {
		detail = detail[:errorDetailSize]
	}
	return detail
}
