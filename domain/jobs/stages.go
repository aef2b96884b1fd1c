package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"

	"github.com/quarry-ai/quarry/domain/chunks"
	"github.com/quarry-ai/quarry/domain/dedup"
	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/internal/database"
	"github.com/quarry-ai/quarry/internal/eventbus"
	"github.com/quarry-ai/quarry/internal/vectorindex"
	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/chunker"
	"github.com/quarry-ai/quarry/pkg/embeddings"
	"github.com/quarry-ai/quarry/pkg/extractor"
	"github.com/quarry-ai/quarry/pkg/logger"
	"github.com/quarry-ai/quarry/pkg/tracing"
)

const (
	// maxChunkInputBytes caps the text the chunk stage will accept.
	maxChunkInputBytes = 10 << 20
	// embedBatchLimit caps chunk ids per embed batch, deduped.
	embedBatchLimit = 100
)

// StageFunc executes one pipeline stage for a claimed job and returns the
// result payload to persist on completion.
type StageFunc func(ctx context.Context, job *ProcessingJob) (JSON, error)

// Stages holds the stage handlers the engine dispatches to.
type Stages struct {
	db        bun.IDB
	repo      *Repository
	service   *Service
	chunks    *chunks.Repository
	extractor *extractor.Extractor
	embedder  embeddings.Client
	index     *vectorindex.Index
	dedup     *dedup.Engine
	bus       *eventbus.Bus
	cfg       *config.Config
	log       *slog.Logger
}

// NewStages creates the stage handler set
func NewStages(
	db bun.IDB,
	repo *Repository,
	service *Service,
	chunkRepo *chunks.Repository,
	ex *extractor.Extractor,
	embedder embeddings.Client,
	index *vectorindex.Index,
	dedupEngine *dedup.Engine,
	bus *eventbus.Bus,
	cfg *config.Config,
	log *slog.Logger,
) *Stages {
	return &Stages{
		db:        db,
		repo:      repo,
		service:   service,
		chunks:    chunkRepo,
		extractor: ex,
		embedder:  embedder,
		index:     index,
		dedup:     dedupEngine,
		bus:       bus,
		cfg:       cfg,
		log:       log.With(logger.Scope("jobs.stages")),
	}
}

// Handler returns the stage handler for a job kind.
func (s *Stages) Handler(kind JobKind) (StageFunc, bool) {
	switch kind {
	case KindExtract:
		return s.runExtract, true
	case KindChunk:
		return s.runChunk, true
	case KindEmbed:
		return s.runEmbed, true
	case KindDedup:
		return s.runDedup, true
	case KindIndex:
		return s.runIndex, true
	case KindFullPipeline:
		return s.runFullPipeline, true
	default:
		return nil, false
	}
}

// runFullPipeline starts the staged pipeline by creating the extract job.
// Each stage chains the next on completion.
func (s *Stages) runFullPipeline(ctx context.Context, job *ProcessingJob) (JSON, error) {
	extractJob, err := s.service.Create(ctx, CreateJobOptions{
		DocumentID: job.DocumentID,
		UserID:     job.UserID,
		Kind:       KindExtract,
		Priority:   job.Priority,
		Parameters: job.Parameters,
	})
	if err != nil {
		return nil, err
	}
	return JSON{"extract_job_id": extractJob.ID}, nil
}

func (s *Stages) runExtract(ctx context.Context, job *ProcessingJob) (JSON, error) {
	ctx, span := tracing.Start(ctx, "pipeline.extract",
		attribute.String("quarry.document.id", job.DocumentID))
	defer span.End()

	filePath := job.Parameters.String("file_path")
	fileType := job.Parameters.String("file_type")

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperror.NewNotFound("file", filePath)
		}
		return nil, apperror.NewInternal("failed to read source file", err)
	}

	result, err := s.extractor.Extract(ctx, data, fileType, extractor.Options{
		Language: job.Parameters.String("language"),
	})
	if err != nil {
		return nil, err
	}
	if result.Text == "" {
		return nil, apperror.ErrBusinessRule.WithMessage("extraction produced no text")
	}

	if err := s.bus.Publish(ctx, eventbus.TopicTextExtracted, job.DocumentID, eventbus.TextExtractedData{
		DocumentID: job.DocumentID,
		UserID:     job.UserID,
		TextLength: len(result.Text),
		PageCount:  result.PageCount,
	}); err != nil {
		s.log.Warn("failed to publish text.extracted", logger.Error(err))
	}

	return JSON{
		"text":       result.Text,
		"metadata":   result.Metadata,
		"page_count": result.PageCount,
		"word_count": result.WordCount,
	}, nil
}

func (s *Stages) runChunk(ctx context.Context, job *ProcessingJob) (JSON, error) {
	ctx, span := tracing.Start(ctx, "pipeline.chunk",
		attribute.String("quarry.document.id", job.DocumentID))
	defer span.End()

	upstream, err := s.repo.FindCompletedByDocumentKind(ctx, job.DocumentID, KindExtract)
	if err != nil {
		return nil, err
	}
	if upstream == nil {
		return nil, apperror.ErrBusinessRule.WithMessage("no completed extract job for document")
	}
	text := upstream.Result.String("text")
	if text == "" {
		return nil, apperror.ErrBusinessRule.WithMessage("upstream extract result has no text")
	}
	if len(text) > maxChunkInputBytes {
		return nil, apperror.ErrBusinessRule.WithMessage("extracted text exceeds the 10 MB chunking cap")
	}

	kind, err := chunker.ParseKind(job.Parameters.String("chunk_type"))
	if err != nil {
		return nil, err
	}
	frags, err := chunker.Split(text, kind, chunker.Options{
		ChunkSize:    job.Parameters.Int("chunk_size"),
		Overlap:      job.Parameters.Int("chunk_overlap"),
		MinChunkSize: job.Parameters.Int("min_chunk_size"),
		MaxChunkSize: job.Parameters.Int("max_chunk_size"),
	})
	if err != nil {
		return nil, err
	}
	if len(frags) == 0 {
		return nil, apperror.ErrBusinessRule.WithMessage("chunking produced no fragments")
	}

	batch := make([]*chunks.TextChunk, 0, len(frags))
	for i, f := range frags {
		batch = append(batch, &chunks.TextChunk{
			DocumentID:     job.DocumentID,
			UserID:         job.UserID,
			Content:        f.Content,
			Kind:           chunks.ChunkKind(kind),
			SequenceNumber: i,
			StartOffset:    f.Start,
			EndOffset:      f.End,
			Metadata:       chunks.JSON(f.Metadata),
		})
	}

	// One transaction for the whole document so a retried stage never
	// collides with rows a failed attempt left behind.
	if err := s.chunks.ReplaceDocument(ctx, job.DocumentID, batch); err != nil {
		return nil, err
	}
	chunkIDs := make([]string, 0, len(batch))
	for _, c := range batch {
		chunkIDs = append(chunkIDs, c.ID)
	}

	if err := s.bus.Publish(ctx, eventbus.TopicChunksCreated, job.DocumentID, eventbus.ChunksCreatedData{
		DocumentID: job.DocumentID,
		UserID:     job.UserID,
		ChunkCount: len(chunkIDs),
		ChunkIDs:   chunkIDs,
	}); err != nil {
		s.log.Warn("failed to publish chunks.created", logger.Error(err))
	}

	return JSON{"chunk_count": len(chunkIDs)}, nil
}

func (s *Stages) runEmbed(ctx context.Context, job *ProcessingJob) (JSON, error) {
	ctx, span := tracing.Start(ctx, "pipeline.embed",
		attribute.String("quarry.document.id", job.DocumentID))
	defer span.End()

	source := ""
	if fp := job.Parameters.String("file_path"); fp != "" {
		source = filepath.Base(fp)
	}

	var embeddingIDs []string
	for {
		pending, err := s.loadEmbedBatch(ctx, job)
		if err != nil {
			return nil, err
		}
		if len(pending) == 0 {
			break
		}

		ids, err := s.embedBatch(ctx, job, pending, source)
		if err != nil {
			return nil, err
		}
		embeddingIDs = append(embeddingIDs, ids...)

		// Explicit chunk_ids are a single bounded batch.
		if _, fixed := job.Parameters["chunk_ids"]; fixed {
			break
		}
	}

	if err := s.bus.Publish(ctx, eventbus.TopicEmbeddingsGenerated, job.DocumentID, eventbus.EmbeddingsGeneratedData{
		DocumentID:     job.DocumentID,
		UserID:         job.UserID,
		EmbeddingCount: len(embeddingIDs),
		EmbeddingIDs:   embeddingIDs,
	}); err != nil {
		s.log.Warn("failed to publish embeddings.generated", logger.Error(err))
	}

	return JSON{
		"embedding_count": len(embeddingIDs),
		"model":           s.embedder.Model(),
		"dimension":       s.embedder.Dimension(),
	}, nil
}

// loadEmbedBatch returns the next bounded batch of chunks to embed: either
// the job's explicit chunk_ids (deduped, capped) or the document's chunks
// without an embedding.
func (s *Stages) loadEmbedBatch(ctx context.Context, job *ProcessingJob) ([]*chunks.TextChunk, error) {
	raw, fixed := job.Parameters["chunk_ids"]
	if !fixed {
		return s.chunks.ListWithoutEmbedding(ctx, job.DocumentID, embedBatchLimit)
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, apperror.NewValidation("chunk_ids must be a list of chunk ids")
	}
	ids := make([]string, 0, len(list))
	seen := map[string]bool{}
	for _, item := range list {
		id, ok := item.(string)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		if len(ids) == embedBatchLimit {
			break
		}
	}

	all, err := s.chunks.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	var pending []*chunks.TextChunk
	for _, c := range all {
		if c.EmbeddingID == nil {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

// embedBatch embeds one batch of chunks and indexes the vectors. Either all
// vectors of the batch are indexed and all chunks updated, or none are.
func (s *Stages) embedBatch(ctx context.Context, job *ProcessingJob, batch []*chunks.TextChunk, source string) ([]string, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	points := make([]vectorindex.Point, len(batch))
	embeddingIDs := make([]string, len(batch))
	for i, c := range batch {
		pointID := uuid.New()
		embeddingIDs[i] = pointID.String()
		points[i] = vectorindex.Point{
			ID:     pointID,
			Vector: vectors[i].Vector,
			Payload: vectorindex.Payload{
				DocumentID:   c.DocumentID,
				ChunkID:      c.ID,
				UserID:       c.UserID,
				Content:      c.Content,
				Source:       source,
				ChunkIndex:   c.SequenceNumber,
				CreatedAt:    now,
				UserMetadata: map[string]any(c.Metadata),
			},
		}
		if vectors[i].Truncated {
			points[i].Payload.UserMetadata = withTruncated(points[i].Payload.UserMetadata, vectors[i].Usage.OriginalTokens)
		}
	}

	tx, err := database.BeginSafeTx(ctx, s.db)
	if err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to begin embed transaction").WithInternal(err)
	}
	defer tx.Rollback()

	if err := s.index.WithTx(tx).Upsert(ctx, points); err != nil {
		return nil, err
	}
	chunkRepo := s.chunks.WithTx(tx)
	for i, c := range batch {
		if err := chunkRepo.SetEmbeddingID(ctx, c.ID, embeddingIDs[i]); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to commit embed transaction").WithInternal(err)
	}

	s.log.Debug("embedded chunk batch",
		slog.String("document_id", job.DocumentID),
		slog.Int("count", len(batch)))
	return embeddingIDs, nil
}

func withTruncated(meta map[string]any, originalTokens int) map[string]any {
	out := map[string]any{"truncated": true, "original_tokens": originalTokens}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func (s *Stages) runDedup(ctx context.Context, job *ProcessingJob) (JSON, error) {
	ctx, span := tracing.Start(ctx, "pipeline.dedup",
		attribute.String("quarry.document.id", job.DocumentID))
	defer span.End()

	opts := dedup.DefaultOptions(s.cfg)
	if v, ok := job.Parameters["use_semantic_similarity"].(bool); ok {
		opts.UseSemantic = v
	}

	result, err := s.dedup.Run(ctx, job.DocumentID, opts)
	if err != nil {
		return nil, err
	}
	return JSON{
		"removed_count": result.RemovedCount,
		"groups_count":  result.GroupsCount,
	}, nil
}

// runIndex closes the pipeline: it verifies every surviving chunk has an
// indexed vector and records the collection summary.
func (s *Stages) runIndex(ctx context.Context, job *ProcessingJob) (JSON, error) {
	ctx, span := tracing.Start(ctx, "pipeline.index",
		attribute.String("quarry.document.id", job.DocumentID))
	defer span.End()

	unembedded, err := s.chunks.ListWithoutEmbedding(ctx, job.DocumentID, 1)
	if err != nil {
		return nil, err
	}
	if len(unembedded) > 0 {
		return nil, apperror.NewInternal(
			fmt.Sprintf("document %s still has chunks without embeddings", job.DocumentID), nil)
	}

	total, err := s.chunks.CountByDocument(ctx, job.DocumentID)
	if err != nil {
		return nil, err
	}

	return JSON{
		"collection":  job.Parameters.String("collection_name"),
		"chunk_count": total,
	}, nil
}
