package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/chunker"
	"github.com/quarry-ai/quarry/pkg/logger"
)

// Service owns job creation and lifecycle operations. Stage execution lives
// in the Engine; the service is the single place jobs are validated and
// uniqueness is enforced.
type Service struct {
	repo *Repository
	cfg  *config.Config
	log  *slog.Logger
}

// NewService creates a new jobs service
func NewService(repo *Repository, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		cfg:  cfg,
		log:  log.With(logger.Scope("jobs.service")),
	}
}

// CreateJobOptions describes a job to create.
type CreateJobOptions struct {
	DocumentID string
	UserID     string
	Kind       JobKind
	Priority   int
	Parameters JSON
}

// Create validates and persists a new job. At most one live job may exist
// per (document, kind); a second is rejected as a business rule violation.
func (s *Service) Create(ctx context.Context, opts CreateJobOptions) (*ProcessingJob, error) {
	if _, err := uuid.Parse(opts.DocumentID); err != nil {
		return nil, apperror.NewValidation("document_id must be a valid UUID")
	}
	if opts.UserID == "" {
		return nil, apperror.NewValidation("user_id is required")
	}
	if err := validateParameters(opts.Kind, opts.Parameters); err != nil {
		return nil, err
	}

	live, err := s.repo.FindLiveByDocumentKind(ctx, opts.DocumentID, opts.Kind)
	if err != nil {
		return nil, err
	}
	if live != nil {
		return nil, apperror.ErrBusinessRule.WithMessage(
			fmt.Sprintf("a %s job for document %s is already %s", opts.Kind, opts.DocumentID, live.Status)).
			WithDetails(map[string]any{"job_id": live.ID})
	}

	job := &ProcessingJob{
		DocumentID: opts.DocumentID,
		UserID:     opts.UserID,
		Kind:       opts.Kind,
		Status:     StatusPending,
		Priority:   opts.Priority,
		Parameters: opts.Parameters,
		MaxRetries: s.cfg.Processing.MaxRetries,
	}
	if err := s.repo.Insert(ctx, job); err != nil {
		return nil, err
	}

	s.log.Info("job created",
		slog.String("job_id", job.ID),
		slog.String("document_id", job.DocumentID),
		slog.String("kind", string(job.Kind)))
	return job, nil
}

// CreateNextStage chains the stage that follows a completed job, carrying the
// pipeline parameters forward. Returns nil when the pipeline is done.
func (s *Service) CreateNextStage(ctx context.Context, completed *ProcessingJob) (*ProcessingJob, error) {
	next := NextStage(completed.Kind)
	if next == "" {
		return nil, nil
	}

	params := JSON{}
	for k, v := range completed.Parameters {
		params[k] = v
	}
	s.fillStageDefaults(next, params)

	return s.Create(ctx, CreateJobOptions{
		DocumentID: completed.DocumentID,
		UserID:     completed.UserID,
		Kind:       next,
		Priority:   completed.Priority,
		Parameters: params,
	})
}

// fillStageDefaults completes the parameter set a stage needs from
// configuration, without overriding caller-supplied values.
func (s *Service) fillStageDefaults(kind JobKind, params JSON) {
	switch kind {
	case KindChunk:
		if params.String("chunk_type") == "" {
			params["chunk_type"] = string(chunker.KindFixedSize)
		}
		if params.Int("chunk_size") == 0 {
			params["chunk_size"] = s.cfg.Processing.ChunkSize
		}
		if params.Int("chunk_overlap") == 0 {
			params["chunk_overlap"] = s.cfg.Processing.ChunkOverlap
		}
	case KindEmbed:
		if params.String("model_name") == "" {
			params["model_name"] = s.cfg.Embeddings.Model
		}
	case KindIndex:
		if params.String("collection_name") == "" {
			params["collection_name"] = s.cfg.Vector.Collection
		}
	}
}

// validateParameters checks the per-kind parameter contract before a job is
// persisted.
func validateParameters(kind JobKind, params JSON) error {
	switch kind {
	case KindExtract, KindFullPipeline:
		if params.String("file_path") == "" {
			return apperror.NewValidation(fmt.Sprintf("%s jobs require a file_path parameter", kind))
		}
		if params.String("file_type") == "" {
			return apperror.NewValidation(fmt.Sprintf("%s jobs require a file_type parameter", kind))
		}
	case KindChunk:
		chunkType := params.String("chunk_type")
		if chunkType == "" {
			return apperror.NewValidation("chunk jobs require a chunk_type parameter")
		}
		if _, err := chunker.ParseKind(chunkType); err != nil {
			return err
		}
		if _, present := params["chunk_size"]; present && params.Int("chunk_size") <= 0 {
			return apperror.NewValidation("chunk_size must be positive")
		}
	case KindEmbed:
		if params.String("model_name") == "" {
			return apperror.NewValidation("embed jobs require a model_name parameter")
		}
	case KindDedup:
		// No required parameters.
	case KindIndex:
		if params.String("collection_name") == "" {
			return apperror.NewValidation("index jobs require a collection_name parameter")
		}
	default:
		return apperror.NewValidation(fmt.Sprintf("unknown job kind %q", kind))
	}
	return nil
}

// Get returns one job by id.
func (s *Service) Get(ctx context.Context, id string) (*ProcessingJob, error) {
	return s.repo.FindByID(ctx, id)
}

// ListByDocument returns a document's jobs, newest first.
func (s *Service) ListByDocument(ctx context.Context, documentID string) ([]*ProcessingJob, error) {
	return s.repo.FindByDocument(ctx, documentID)
}

// Cancel cancels a live job. Terminal jobs cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.repo.Cancel(ctx, id)
}

// CancelByDocument cancels all live jobs of a document.
func (s *Service) CancelByDocument(ctx context.Context, documentID string) (int, error) {
	return s.repo.CancelByDocument(ctx, documentID)
}

// DeleteByDocument removes a document's job history; used by cascade deletes.
func (s *Service) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	return s.repo.DeleteByDocument(ctx, documentID)
}

// Stats returns job counts per status.
func (s *Service) Stats(ctx context.Context) (map[JobStatus]int, error) {
	return s.repo.CountByStatus(ctx)
}
