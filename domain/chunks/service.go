package chunks

import (
	"context"
	"log/slog"

	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/logger"
)

const maxPageSize = 100

// Service exposes read access to stored chunks.
type Service struct {
	repo *Repository
	log  *slog.Logger
}

// NewService creates a new chunks service
func NewService(repo *Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With(logger.Scope("chunks.service")),
	}
}

// Get returns one chunk by id.
func (s *Service) Get(ctx context.Context, id string) (*TextChunk, error) {
	return s.repo.FindByID(ctx, id)
}

// ChunkPage is one page of a document's chunks.
type ChunkPage struct {
	Chunks []*TextChunk `json:"chunks"`
	Page   int          `json:"page"`
	Size   int          `json:"size"`
	Total  int          `json:"total"`
}

// ListByDocument returns a page of a document's chunks in sequence order.
// Pages are 1-based; size is capped at 100.
func (s *Service) ListByDocument(ctx context.Context, documentID string, page, size int) (*ChunkPage, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > maxPageSize {
		return nil, apperror.NewValidation("page size must be at most 100")
	}

	total, err := s.repo.CountByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	chunks, err := s.repo.ListByDocument(ctx, documentID, (page-1)*size, size)
	if err != nil {
		return nil, err
	}

	return &ChunkPage{
		Chunks: chunks,
		Page:   page,
		Size:   size,
		Total:  total,
	}, nil
}
