package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/quarry-ai/quarry/domain/jobs"
	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/logger"
)

// StaleJobRecoveryTask requeues processing jobs whose worker disappeared
// without marking them failed (crash, kill -9). Recovered attempts do not
// consume retry budget.
type StaleJobRecoveryTask struct {
	repo      *jobs.Repository
	threshold time.Duration
	log       *slog.Logger
}

// NewStaleJobRecoveryTask creates a new stale job recovery task
func NewStaleJobRecoveryTask(repo *jobs.Repository, cfg *config.Config, log *slog.Logger) *StaleJobRecoveryTask {
	return &StaleJobRecoveryTask{
		repo:      repo,
		threshold: cfg.Processing.StaleThreshold,
		log:       log.With(logger.Scope("scheduler.stale_recovery")),
	}
}

// Run executes the stale job recovery
func (t *StaleJobRecoveryTask) Run(ctx context.Context) error {
	recovered, err := t.repo.RecoverStale(ctx, t.threshold)
	if err != nil {
		return err
	}
	if recovered > 0 {
		t.log.Info("recovered stale jobs", slog.Int("count", recovered))
	}
	return nil
}

// RetrySweepTask requeues failed jobs whose error class permits another
// attempt. Together with the worker's direct requeue path this implements the
// failed -> pending retry transition.
type RetrySweepTask struct {
	engine *jobs.Engine
	batch  int
	log    *slog.Logger
}

// NewRetrySweepTask creates a new retry sweep task
func NewRetrySweepTask(engine *jobs.Engine, cfg *Config, log *slog.Logger) *RetrySweepTask {
	return &RetrySweepTask{
		engine: engine,
		batch:  cfg.RetrySweepBatch,
		log:    log.With(logger.Scope("scheduler.retry_sweep")),
	}
}

// Run executes the retry sweep
func (t *RetrySweepTask) Run(ctx context.Context) error {
	_, err := t.engine.RetryFailures(ctx, t.batch)
	return err
}

// OrphanVectorSweepTask deletes vector points whose chunk no longer exists.
// Dedup and cascade deletes remove vectors first, so orphans only appear when
// a crash lands between the vector write and the chunk write.
type OrphanVectorSweepTask struct {
	db  *bun.DB
	log *slog.Logger
}

// NewOrphanVectorSweepTask creates a new orphan vector sweep task
func NewOrphanVectorSweepTask(db *bun.DB, log *slog.Logger) *OrphanVectorSweepTask {
	return &OrphanVectorSweepTask{
		db:  db,
		log: log.With(logger.Scope("scheduler.orphan_sweep")),
	}
}

// Run executes the orphan vector sweep
func (t *OrphanVectorSweepTask) Run(ctx context.Context) error {
	start := time.Now()

	result, err := t.db.ExecContext(ctx, `
		DELETE FROM kb.vector_points vp
		WHERE NOT EXISTS (
			SELECT 1 FROM kb.text_chunks tc
			WHERE tc.id::text = vp.payload->>'chunk_id'
		)
	`)
	if err != nil {
		return err
	}

	removed, _ := result.RowsAffected()
	if removed > 0 {
		t.log.Info("removed orphan vectors",
			slog.Int64("count", removed),
			slog.Duration("duration", time.Since(start)))
	}
	return nil
}
