package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/internal/eventbus"
	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/logger"
)

const (
	baseRetryDelay = 30 * time.Second
	maxRetryDelay  = 30 * time.Minute
)

// backoffDelay returns the wait before the next attempt of a job that has
// already failed retryCount times: base * 2^retryCount, capped.
func backoffDelay(retryCount int) time.Duration {
	delay := baseRetryDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// effectiveMaxRetries caps the retry budget per error class. Internal errors
// get a single retry; everything else uses the job's own budget.
func effectiveMaxRetries(code string, jobMax int) int {
	if code == apperror.CodeInternal && jobMax > 1 {
		return 1
	}
	return jobMax
}

// Engine runs the bounded worker pool that drives jobs through their stage
// handlers. At most MaxConcurrent jobs are ever processing at once.
type Engine struct {
	repo    *Repository
	service *Service
	stages  *Stages
	bus     *eventbus.Bus
	cfg     *config.Config
	log     *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// inflight maps worker id to the job it is currently processing so
	// shutdown can fail-fast the stragglers.
	inflight sync.Map

	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// NewEngine creates the job engine
func NewEngine(repo *Repository, service *Service, stages *Stages, bus *eventbus.Bus, cfg *config.Config, log *slog.Logger) *Engine {
	return &Engine{
		repo:    repo,
		service: service,
		stages:  stages,
		bus:     bus,
		cfg:     cfg,
		log:     log.With(logger.Scope("jobs.engine")),
	}
}

// Start launches the worker pool.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	go func() {
		if _, err := e.repo.RecoverStale(ctx, e.cfg.Processing.StaleThreshold); err != nil {
			e.log.Warn("stale job recovery on startup failed", logger.Error(err))
		}
	}()

	workers := e.cfg.Processing.MaxConcurrent
	e.log.Info("job engine starting",
		slog.Int("workers", workers),
		slog.Duration("poll_interval", e.cfg.Processing.PollInterval),
		slog.Duration("job_timeout", e.cfg.Processing.JobTimeout))

	for i := 0; i < workers; i++ {
		workerID := fmt.Sprintf("worker-%d-%s", i, uuid.NewString()[:8])
		e.wg.Add(1)
		go e.runWorker(ctx, workerID)
	}
	return nil
}

// Stop stops claiming new jobs and waits for in-flight ones up to the
// context deadline; stragglers are marked failed so the retry sweep can pick
// them up on the next start.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.log.Info("job engine stopped gracefully")
	case <-ctx.Done():
		e.log.Warn("job engine stop timed out, failing in-flight jobs")
		e.failInflight()
	}
	return nil
}

// failInflight marks jobs that did not finish within the shutdown grace
// period as failed with a retryable timeout error.
func (e *Engine) failInflight() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.inflight.Range(func(_, value any) bool {
		jobID := value.(string)
		if err := e.repo.MarkFailed(ctx, jobID, "interrupted by shutdown", apperror.CodeTimeout); err != nil {
			e.log.Error("failed to fail in-flight job",
				slog.String("job_id", jobID), logger.Error(err))
		}
		return true
	})
}

func (e *Engine) runWorker(ctx context.Context, workerID string) {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := e.repo.Claim(ctx, workerID)
		if err != nil {
			e.log.Warn("claim failed", slog.String("worker_id", workerID), logger.Error(err))
			e.sleep()
			continue
		}
		if job == nil {
			e.sleep()
			continue
		}

		e.process(ctx, workerID, job)
	}
}

func (e *Engine) sleep() {
	timer := time.NewTimer(e.cfg.Processing.PollInterval)
	defer timer.Stop()
	select {
	case <-e.stopCh:
	case <-timer.C:
	}
}

// process runs one claimed job through its stage handler under the job's
// soft deadline.
func (e *Engine) process(ctx context.Context, workerID string, job *ProcessingJob) {
	e.inflight.Store(workerID, job.ID)
	defer e.inflight.Delete(workerID)
	defer e.processed.Add(1)

	handler, ok := e.stages.Handler(job.Kind)
	if !ok {
		e.fail(ctx, job, apperror.NewValidation(fmt.Sprintf("no handler for job kind %q", job.Kind)))
		return
	}

	stageCtx, cancel := context.WithTimeout(ctx, e.cfg.Processing.JobTimeout)
	defer cancel()

	start := time.Now()
	result, err := handler(stageCtx, job)
	if err != nil {
		if stageCtx.Err() == context.DeadlineExceeded {
			err = apperror.ErrTimeout.WithMessage("job exceeded its deadline").WithInternal(err)
		}
		e.handleFailure(ctx, job, err)
		return
	}

	if err := e.repo.MarkCompleted(ctx, job.ID, result); err != nil {
		e.log.Error("failed to mark job completed",
			slog.String("job_id", job.ID), logger.Error(err))
		e.failed.Add(1)
		return
	}
	e.succeeded.Add(1)

	e.log.Info("job completed",
		slog.String("job_id", job.ID),
		slog.String("document_id", job.DocumentID),
		slog.String("kind", string(job.Kind)),
		slog.Duration("took", time.Since(start)))

	if _, err := e.service.CreateNextStage(ctx, job); err != nil {
		// A live successor can already exist after a stale-job recovery
		// replay; per-document uniqueness makes that harmless.
		if apperror.CodeOf(err) == apperror.CodeBusinessRule {
			e.log.Debug("next stage already live",
				slog.String("job_id", job.ID), logger.Error(err))
			return
		}
		e.log.Error("failed to chain next stage",
			slog.String("job_id", job.ID), logger.Error(err))
	}
}

// handleFailure classifies a stage error and either requeues the job with
// backoff or fails it permanently.
func (e *Engine) handleFailure(ctx context.Context, job *ProcessingJob, stageErr error) {
	code := apperror.CodeOf(stageErr)
	maxRetries := effectiveMaxRetries(code, job.MaxRetries)

	if apperror.Retryable(stageErr) && job.RetryCount < maxRetries {
		delay := backoffDelay(job.RetryCount)
		if err := e.repo.Requeue(ctx, job.ID, stageErr.Error(), code, time.Now().Add(delay)); err == nil {
			e.log.Warn("job requeued",
				slog.String("job_id", job.ID),
				slog.String("kind", string(job.Kind)),
				slog.String("error_code", code),
				slog.Int("retry", job.RetryCount+1),
				slog.Duration("backoff", delay))
			return
		}
		// Requeue can race the retry budget; fall through to a permanent
		// failure.
	}

	e.fail(ctx, job, stageErr)
}

// fail marks a job permanently failed and publishes processing.failed.
func (e *Engine) fail(ctx context.Context, job *ProcessingJob, stageErr error) {
	code := apperror.CodeOf(stageErr)
	if err := e.repo.MarkFailed(ctx, job.ID, stageErr.Error(), code); err != nil {
		e.log.Error("failed to mark job failed",
			slog.String("job_id", job.ID), logger.Error(err))
	}
	e.failed.Add(1)

	e.log.Error("job failed permanently",
		slog.String("job_id", job.ID),
		slog.String("document_id", job.DocumentID),
		slog.String("kind", string(job.Kind)),
		slog.String("error_code", code),
		logger.Error(stageErr))

	if err := e.bus.Publish(ctx, eventbus.TopicProcessingFailed, job.DocumentID, eventbus.ProcessingFailedData{
		JobID:        job.ID,
		DocumentID:   job.DocumentID,
		Kind:         string(job.Kind),
		ErrorKind:    code,
		ErrorMessage: truncateError(stageErr.Error()),
	}); err != nil {
		e.log.Warn("failed to publish processing.failed", logger.Error(err))
	}
}

// Metrics returns engine counters.
func (e *Engine) Metrics() EngineMetrics {
	return EngineMetrics{
		Processed: e.processed.Load(),
		Succeeded: e.succeeded.Load(),
		Failed:    e.failed.Load(),
	}
}

// EngineMetrics contains worker pool counters
type EngineMetrics struct {
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// IsRunning reports whether the pool is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// RetryFailures requeues failed jobs whose error class permits another
// attempt. The scheduler calls this periodically.
func (e *Engine) RetryFailures(ctx context.Context, limit int) (int, error) {
	failures, err := e.repo.FindRetryableFailures(ctx, limit)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, job := range failures {
		message := ""
		if job.LastError != nil {
			message = *job.LastError
		}
		code := ""
		if job.ErrorCode != nil {
			code = *job.ErrorCode
		}
		if err := e.repo.Requeue(ctx, job.ID, message, code, time.Now().Add(backoffDelay(job.RetryCount))); err != nil {
			e.log.Warn("failed to requeue failed job",
				slog.String("job_id", job.ID), logger.Error(err))
			continue
		}
		requeued++
	}

	if requeued > 0 {
		e.log.Info("requeued retryable failures", slog.Int("count", requeued))
	}
	return requeued, nil
}
