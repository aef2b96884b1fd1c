package documents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/quarry-ai/quarry/domain/chunks"
	"github.com/quarry-ai/quarry/domain/jobs"
	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/internal/eventbus"
	"github.com/quarry-ai/quarry/internal/vectorindex"
	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/logger"
)

// Service owns document ingest and the cascade delete across chunks, jobs
// and the vector index.
type Service struct {
	repo   *Repository
	jobs   *jobs.Service
	chunks *chunks.Repository
	index  *vectorindex.Index
	bus    *eventbus.Bus
	cfg    *config.Config
	log    *slog.Logger
}

// NewService creates a new documents service
func NewService(
	repo *Repository,
	jobSvc *jobs.Service,
	chunkRepo *chunks.Repository,
	index *vectorindex.Index,
	bus *eventbus.Bus,
	cfg *config.Config,
	log *slog.Logger,
) *Service {
	return &Service{
		repo:   repo,
		jobs:   jobSvc,
		chunks: chunkRepo,
		index:  index,
		bus:    bus,
		cfg:    cfg,
		log:    log.With(logger.Scope("documents.service")),
	}
}

// UploadOptions describes one incoming file.
type UploadOptions struct {
	UserID   string
	Filename string
	Size     int64
	Content  io.Reader
}

// Upload validates and stores an incoming file, creates the document row and
// kicks off the full processing pipeline for it.
func (s *Service) Upload(ctx context.Context, opts UploadOptions) (*Document, error) {
	if _, err := uuid.Parse(opts.UserID); err != nil {
		return nil, apperror.NewValidation("user_id must be a valid UUID")
	}
	if strings.TrimSpace(opts.Filename) == "" {
		return nil, apperror.NewValidation("filename is required")
	}

	fileType := FileTypeOf(opts.Filename)
	if !s.cfg.Extractor.Allows(fileType) {
		return nil, apperror.ErrUnsupportedFileType.WithMessage(
			fmt.Sprintf("file type %q is not allowed", fileType))
	}
	maxSize := s.cfg.Extractor.MaxFileSize.Int64()
	if maxSize > 0 && opts.Size > maxSize {
		return nil, apperror.ErrFileTooLarge.WithDetails(map[string]any{
			"size_bytes": opts.Size,
			"max_bytes":  maxSize,
		})
	}

	storagePath, written, err := s.storeFile(opts)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		UserID:      opts.UserID,
		Filename:    filepath.Base(opts.Filename),
		FileType:    fileType,
		FileSize:    written,
		StoragePath: storagePath,
		Status:      StatusUploaded,
	}
	if err := s.repo.Insert(ctx, doc); err != nil {
		s.removeFile(storagePath)
		return nil, err
	}

	if _, err := s.jobs.Create(ctx, jobs.CreateJobOptions{
		DocumentID: doc.ID,
		UserID:     doc.UserID,
		Kind:       jobs.KindFullPipeline,
		Parameters: jobs.JSON{
			"file_path": storagePath,
			"file_type": fileType,
		},
	}); err != nil {
		s.removeFile(storagePath)
		_ = s.repo.Delete(ctx, doc.ID)
		return nil, err
	}

	if err := s.bus.Publish(ctx, eventbus.TopicDocumentUploaded, doc.ID, eventbus.DocumentUploadedData{
		DocumentID: doc.ID,
		UserID:     doc.UserID,
		FilePath:   storagePath,
		FileType:   fileType,
	}); err != nil {
		s.log.Warn("failed to publish document.uploaded", logger.Error(err))
	}

	s.log.Info("document uploaded",
		slog.String("document_id", doc.ID),
		slog.String("filename", doc.Filename),
		slog.Int64("size", doc.FileSize))
	return doc, nil
}

// storeFile writes the upload into the data directory under a fresh name.
func (s *Service) storeFile(opts UploadOptions) (string, int64, error) {
	dir := s.cfg.Extractor.DataDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, apperror.NewInternal("create upload directory", err)
	}

	name := uuid.NewString()
	if ext := filepath.Ext(opts.Filename); ext != "" {
		name += strings.ToLower(ext)
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, apperror.NewInternal("create upload file", err)
	}
	defer f.Close()

	// Size is advisory; the copy is bounded so a lying client cannot exceed
	// the configured limit.
	limit := s.cfg.Extractor.MaxFileSize.Int64()
	var src io.Reader = opts.Content
	if limit > 0 {
		src = io.LimitReader(opts.Content, limit+1)
	}

	written, err := io.Copy(f, src)
	if err != nil {
		s.removeFile(path)
		return "", 0, apperror.NewInternal("store upload file", err)
	}
	if limit > 0 && written > limit {
		s.removeFile(path)
		return "", 0, apperror.ErrFileTooLarge.WithDetails(map[string]any{"max_bytes": limit})
	}

	return path, written, nil
}

func (s *Service) removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove stored file", slog.String("path", path), logger.Error(err))
	}
}

// Get returns one document by id.
func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.FindByID(ctx, id)
}

// ListByUser returns a user's documents, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Document, error) {
	return s.repo.FindByUser(ctx, userID)
}

// Delete removes a document and everything derived from it: live jobs are
// cancelled, job history, chunks and vectors are deleted, then the row and
// the stored file.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.jobs.CancelByDocument(ctx, id); err != nil {
		return err
	}

	removed, err := s.index.DeleteByFilter(ctx, (&vectorindex.Filter{}).Eq("document_id", id))
	if err != nil {
		return err
	}

	deletedChunks, err := s.chunks.DeleteByDocument(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.jobs.DeleteByDocument(ctx, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.removeFile(doc.StoragePath)

	s.log.Info("document deleted",
		slog.String("document_id", id),
		slog.Int("chunks", deletedChunks),
		slog.Int("vectors", removed))
	return nil
}

// FileTypeOf derives the ingest file type from a filename extension.
func FileTypeOf(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "htm" {
		return "html"
	}
	if ext == "markdown" {
		return "md"
	}
	return ext
}
