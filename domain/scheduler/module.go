package scheduler

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/quarry-ai/quarry/domain/jobs"
	"github.com/quarry-ai/quarry/internal/config"
)

// Module provides scheduled task functionality
var Module = fx.Module("scheduler",
	fx.Provide(
		NewConfig,
		NewScheduler,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler *Scheduler
	DB        *bun.DB
	JobsRepo  *jobs.Repository
	Engine    *jobs.Engine
	AppCfg    *config.Config
	Cfg       *Config
	Log       *slog.Logger
}

// RegisterTasks registers all scheduled tasks
func RegisterTasks(p TaskParams) error {
	if !p.Cfg.Enabled {
		p.Log.Info("scheduler disabled, skipping task registration")
		return nil
	}

	staleTask := NewStaleJobRecoveryTask(p.JobsRepo, p.AppCfg, p.Log)
	if err := p.Scheduler.AddIntervalTask("stale_job_recovery",
		p.Cfg.StaleRecoveryInterval, staleTask.Run); err != nil {
		return err
	}

	retryTask := NewRetrySweepTask(p.Engine, p.Cfg, p.Log)
	if err := p.Scheduler.AddIntervalTask("retry_sweep",
		p.Cfg.RetrySweepInterval, retryTask.Run); err != nil {
		return err
	}

	orphanTask := NewOrphanVectorSweepTask(p.DB, p.Log)
	if err := p.Scheduler.AddIntervalTask("orphan_vector_sweep",
		p.Cfg.OrphanSweepInterval, orphanTask.Run); err != nil {
		return err
	}

	p.Log.Info("registered scheduled tasks",
		slog.Any("tasks", p.Scheduler.ListTasks()))
	return nil
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *Config) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
