package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/logger"
)

// maxErrorLength bounds stored error messages so a pathological provider
// response cannot bloat the jobs table.
const maxErrorLength = 500

// Repository handles database operations for processing jobs
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new jobs repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("jobs.repo")),
	}
}

// Insert persists a new job and fills in generated fields.
func (r *Repository) Insert(ctx context.Context, job *ProcessingJob) error {
	_, err := r.db.NewInsert().
		Model(job).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithMessage("failed to create job").WithInternal(err)
	}
	return nil
}

// FindByID returns a job or a not-found error.
func (r *Repository) FindByID(ctx context.Context, id string) (*ProcessingJob, error) {
	job := &ProcessingJob{}
	err := r.db.NewSelect().
		Model(job).
		Where("pj.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("job", id)
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to load job").WithInternal(err)
	}
	return job, nil
}

// FindByDocument returns all jobs of a document, newest first.
func (r *Repository) FindByDocument(ctx context.Context, documentID string) ([]*ProcessingJob, error) {
	var out []*ProcessingJob
	err := r.db.NewSelect().
		Model(&out).
		Where("pj.document_id = ?", documentID).
		Order("pj.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to list jobs").WithInternal(err)
	}
	return out, nil
}

// FindLiveByDocumentKind returns the live (pending or processing) job for a
// (document, kind) pair, or nil when none exists.
func (r *Repository) FindLiveByDocumentKind(ctx context.Context, documentID string, kind JobKind) (*ProcessingJob, error) {
	job := &ProcessingJob{}
	err := r.db.NewSelect().
		Model(job).
		Where("pj.document_id = ?", documentID).
		Where("pj.kind = ?", kind).
		Where("pj.status IN ('pending', 'processing')").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to check live jobs").WithInternal(err)
	}
	return job, nil
}

// FindCompletedByDocumentKind returns the most recent completed job of a kind
// for a document, or nil. Stage handlers use it to read upstream results.
func (r *Repository) FindCompletedByDocumentKind(ctx context.Context, documentID string, kind JobKind) (*ProcessingJob, error) {
	job := &ProcessingJob{}
	err := r.db.NewSelect().
		Model(job).
		Where("pj.document_id = ?", documentID).
		Where("pj.kind = ?", kind).
		Where("pj.status = ?", StatusCompleted).
		Order("pj.completed_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to load completed job").WithInternal(err)
	}
	return job, nil
}

// Claim atomically moves the highest-priority due pending job to processing
// and stamps the worker id. Returns nil when the queue is empty. Concurrent
// workers never claim the same job.
func (r *Repository) Claim(ctx context.Context, workerID string) (*ProcessingJob, error) {
	var claimed []*ProcessingJob
	err := r.db.NewRaw(`WITH cte AS (
		SELECT id FROM kb.processing_jobs
		WHERE status = 'pending'
			AND (not_before IS NULL OR not_before <= now())
		ORDER BY priority DESC, created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	)
	UPDATE kb.processing_jobs j
	SET status = 'processing',
		worker_id = ?,
		started_at = now(),
		updated_at = now()
	FROM cte WHERE j.id = cte.id
	RETURNING j.*`, workerID).Scan(ctx, &claimed)
	if err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to claim job").WithInternal(err)
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	return claimed[0], nil
}

// MarkCompleted finishes a processing job and stores its result payload.
func (r *Repository) MarkCompleted(ctx context.Context, id string, result JSON) error {
	res, err := r.db.NewUpdate().
		Model((*ProcessingJob)(nil)).
		Set("status = ?", StatusCompleted).
		Set("result = ?", result).
		Set("last_error = NULL").
		Set("error_code = NULL").
		Set("completed_at = now()").
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status = ?", StatusProcessing).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithMessage("failed to complete job").WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrConflict.WithMessage(fmt.Sprintf("job %s is not processing", id))
	}
	return nil
}

// MarkFailed moves a processing job to failed and records the error.
func (r *Repository) MarkFailed(ctx context.Context, id, errMessage, errCode string) error {
	_, err := r.db.NewUpdate().
		Model((*ProcessingJob)(nil)).
		Set("status = ?", StatusFailed).
		Set("last_error = ?", truncateError(errMessage)).
		Set("error_code = ?", errCode).
		Set("completed_at = now()").
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status = ?", StatusProcessing).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithMessage("failed to mark job failed").WithInternal(err)
	}
	return nil
}

// Requeue moves a job back to pending for another attempt, bumping the retry
// count and deferring the next claim until notBefore. Works from processing
// (worker retry path) and from failed (retry sweep).
func (r *Repository) Requeue(ctx context.Context, id, errMessage, errCode string, notBefore time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*ProcessingJob)(nil)).
		Set("status = ?", StatusPending).
		Set("retry_count = retry_count + 1").
		Set("last_error = ?", truncateError(errMessage)).
		Set("error_code = ?", errCode).
		Set("not_before = ?", notBefore).
		Set("worker_id = NULL").
		Set("started_at = NULL").
		Set("completed_at = NULL").
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status IN ('processing', 'failed')").
		Where("retry_count < max_retries").
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithMessage("failed to requeue job").WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrConflict.WithMessage(fmt.Sprintf("job %s has no retries left or is not retryable", id))
	}
	return nil
}

// FindRetryableFailures returns failed jobs whose error class permits another
// attempt and that still have retry budget.
func (r *Repository) FindRetryableFailures(ctx context.Context, limit int) ([]*ProcessingJob, error) {
	var out []*ProcessingJob
	q := r.db.NewSelect().
		Model(&out).
		Where("pj.status = ?", StatusFailed).
		Where("pj.retry_count < pj.max_retries").
		Where("pj.error_code IN (?)", bun.In([]string{
			apperror.CodeExternalService,
			apperror.CodeTimeout,
			apperror.CodeExtractionFailed,
			apperror.CodeDatabase,
		})).
		Order("pj.updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to list retryable failures").WithInternal(err)
	}
	return out, nil
}

// CancelByDocument cancels every live job of a document and returns the count.
func (r *Repository) CancelByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := r.db.NewUpdate().
		Model((*ProcessingJob)(nil)).
		Set("status = ?", StatusCancelled).
		Set("completed_at = now()").
		Set("updated_at = now()").
		Where("document_id = ?", documentID).
		Where("status IN ('pending', 'processing')").
		Exec(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithMessage("failed to cancel jobs").WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Cancel cancels one live job.
func (r *Repository) Cancel(ctx context.Context, id string) error {
	res, err := r.db.NewUpdate().
		Model((*ProcessingJob)(nil)).
		Set("status = ?", StatusCancelled).
		Set("completed_at = now()").
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status IN ('pending', 'processing')").
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithMessage("failed to cancel job").WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrBusinessRule.WithMessage(fmt.Sprintf("job %s is not in a live state", id))
	}
	return nil
}

// RecoverStale requeues processing jobs whose worker disappeared. Recovered
// attempts do not consume retry budget.
func (r *Repository) RecoverStale(ctx context.Context, threshold time.Duration) (int, error) {
	res, err := r.db.NewRaw(`UPDATE kb.processing_jobs
		SET status = 'pending',
			worker_id = NULL,
			started_at = NULL,
			not_before = now(),
			updated_at = now()
		WHERE status = 'processing'
			AND started_at < now() - (? || ' seconds')::interval`,
		fmt.Sprintf("%d", int(threshold.Seconds()))).Exec(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithMessage("failed to recover stale jobs").WithInternal(err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.log.Warn("recovered stale jobs", slog.Int64("count", n))
	}
	return int(n), nil
}

// CountByStatus returns job counts per status.
func (r *Repository) CountByStatus(ctx context.Context) (map[JobStatus]int, error) {
	var rows []struct {
		Status JobStatus `bun:"status"`
		Count  int       `bun:"count"`
	}
	err := r.db.NewSelect().
		Model((*ProcessingJob)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to count jobs").WithInternal(err)
	}

	out := make(map[JobStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// DeleteByDocument removes all jobs of a document; used by cascade deletes.
func (r *Repository) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := r.db.NewDelete().
		Model((*ProcessingJob)(nil)).
		Where("document_id = ?", documentID).
		Exec(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithMessage("failed to delete document jobs").WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// truncateError bounds an error message for storage.
func truncateError(msg string) string {
	if len(msg) > maxErrorLength {
		return msg[:maxErrorLength]
	}
	return msg
}
