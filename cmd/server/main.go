// Package main provides the entry point for the Quarry API server.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/quarry-ai/quarry/domain/answers"
	"github.com/quarry-ai/quarry/domain/chunks"
	"github.com/quarry-ai/quarry/domain/dedup"
	"github.com/quarry-ai/quarry/domain/documents"
	"github.com/quarry-ai/quarry/domain/health"
	"github.com/quarry-ai/quarry/domain/jobs"
	"github.com/quarry-ai/quarry/domain/scheduler"
	"github.com/quarry-ai/quarry/domain/search"
	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/internal/database"
	"github.com/quarry-ai/quarry/internal/eventbus"
	"github.com/quarry-ai/quarry/internal/server"
	"github.com/quarry-ai/quarry/internal/vectorindex"
	"github.com/quarry-ai/quarry/pkg/embeddings"
	"github.com/quarry-ai/quarry/pkg/extractor"
	"github.com/quarry-ai/quarry/pkg/llm"
	"github.com/quarry-ai/quarry/pkg/logger"
)

func main() {
	// Load .env if present (for local development)
	_ = godotenv.Load()

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		server.Module,
		eventbus.Module,
		vectorindex.Module,

		// Provider clients
		embeddings.Module,
		extractor.Module,
		llm.Module,

		// Domain modules
		health.Module,
		documents.Module,
		chunks.Module,
		jobs.Module,
		dedup.Module,
		search.Module,
		answers.Module,

		// Scheduler module (cron-based maintenance tasks)
		scheduler.Module,
	).Run()
}
