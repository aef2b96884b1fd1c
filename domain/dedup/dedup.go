// Package dedup collapses effectively duplicate chunks within a document so
// retrieval does not return n copies of the same paragraph.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/quarry-ai/quarry/domain/chunks"
	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/internal/database"
	"github.com/quarry-ai/quarry/internal/eventbus"
	"github.com/quarry-ai/quarry/internal/vectorindex"
	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/logger"
)

// Options tune one dedup run.
type Options struct {
	UseContentHash      bool
	UseSemantic         bool
	SimilarityThreshold float32
}

// DefaultOptions returns the configured dedup behaviour.
func DefaultOptions(cfg *config.Config) Options {
	return Options{
		UseContentHash:      true,
		UseSemantic:         cfg.Processing.DedupUseSemantic,
		SimilarityThreshold: float32(cfg.Processing.DedupSimilarityThreshold),
	}
}

// Result summarises one dedup run.
type Result struct {
	RemovedCount int
	GroupsCount  int
}

// Engine finds and removes duplicate chunks for a document.
type Engine struct {
	db     bun.IDB
	chunks *chunks.Repository
	index  *vectorindex.Index
	bus    *eventbus.Bus
	log    *slog.Logger
}

// NewEngine creates a new dedup engine
func NewEngine(db bun.IDB, repo *chunks.Repository, index *vectorindex.Index, bus *eventbus.Bus, log *slog.Logger) *Engine {
	return &Engine{
		db:     db,
		chunks: repo,
		index:  index,
		bus:    bus,
		log:    log.With(logger.Scope("dedup")),
	}
}

// auditRow preserves a removed chunk for replay, stored in kb.dedup_audit.
type auditRow struct {
	bun.BaseModel `bun:"table:kb.dedup_audit,alias:da"`

	ID             string    `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	DocumentID     string    `bun:"document_id,notnull,type:uuid"`
	ChunkID        string    `bun:"chunk_id,notnull,type:uuid"`
	KeptChunkID    string    `bun:"kept_chunk_id,notnull,type:uuid"`
	Content        string    `bun:"content,notnull"`
	SequenceNumber int       `bun:"sequence_number,notnull"`
	RemovedAt      time.Time `bun:"removed_at,notnull,default:now()"`
}

// Run deduplicates one document's chunks and emits chunks.deduplicated.
// Repeated runs on the same document are idempotent: once duplicates are
// gone, every group has size 1 and nothing is removed.
func (e *Engine) Run(ctx context.Context, documentID string, opts Options) (*Result, error) {
	all, err := e.chunks.ListByDocument(ctx, documentID, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(all) < 2 {
		return e.finish(ctx, documentID, &Result{})
	}

	var groups [][]*chunks.TextChunk
	grouped := map[string]bool{}

	if opts.UseContentHash {
		for _, g := range groupByHash(all) {
			groups = append(groups, g)
			for _, c := range g {
				grouped[c.ID] = true
			}
		}
	}

	if opts.UseSemantic {
		var remaining []*chunks.TextChunk
		for _, c := range all {
			if !grouped[c.ID] {
				remaining = append(remaining, c)
			}
		}
		vectors, err := e.loadVectors(ctx, remaining)
		if err != nil {
			return nil, err
		}
		groups = append(groups, groupBySimilarity(remaining, vectors, opts.SimilarityThreshold)...)
	}

	result := &Result{GroupsCount: len(groups)}
	for _, group := range groups {
		removed, err := e.collapseGroup(ctx, documentID, group)
		if err != nil {
			return nil, err
		}
		result.RemovedCount += removed
	}

	return e.finish(ctx, documentID, result)
}

// collapseGroup keeps the group's representative and removes the rest from
// both the vector index and the chunk store. Vectors go first: if the chunk
// delete then fails, re-running dedup regroups the survivors and deletes the
// now orphaned vectors again.
func (e *Engine) collapseGroup(ctx context.Context, documentID string, group []*chunks.TextChunk) (int, error) {
	keep := representative(group)

	var duplicates []*chunks.TextChunk
	var pointIDs []uuid.UUID
	for _, c := range group {
		if c.ID == keep.ID {
			continue
		}
		duplicates = append(duplicates, c)
		if c.EmbeddingID != nil {
			if id, err := uuid.Parse(*c.EmbeddingID); err == nil {
				pointIDs = append(pointIDs, id)
			}
		}
	}
	if len(duplicates) == 0 {
		return 0, nil
	}

	if err := e.index.Delete(ctx, pointIDs); err != nil {
		return 0, err
	}

	tx, err := database.BeginSafeTx(ctx, e.db)
	if err != nil {
		return 0, apperror.ErrDatabase.WithMessage("failed to begin dedup transaction").WithInternal(err)
	}
	defer tx.Rollback()

	audits := make([]*auditRow, 0, len(duplicates))
	ids := make([]string, 0, len(duplicates))
	for _, c := range duplicates {
		ids = append(ids, c.ID)
		audits = append(audits, &auditRow{
			DocumentID:     documentID,
			ChunkID:        c.ID,
			KeptChunkID:    keep.ID,
			Content:        c.Content,
			SequenceNumber: c.SequenceNumber,
		})
	}

	if _, err := tx.NewInsert().Model(&audits).Exec(ctx); err != nil {
		return 0, apperror.ErrDatabase.WithMessage("failed to write dedup audit").WithInternal(err)
	}
	removed, err := e.chunks.WithTx(tx).DeleteBatch(ctx, ids)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, apperror.ErrDatabase.WithMessage("failed to commit dedup transaction").WithInternal(err)
	}

	e.log.Debug("collapsed duplicate group",
		slog.String("document_id", documentID),
		slog.String("kept_chunk_id", keep.ID),
		slog.Int("removed", removed))

	return removed, nil
}

func (e *Engine) loadVectors(ctx context.Context, list []*chunks.TextChunk) (map[string][]float32, error) {
	var pointIDs []uuid.UUID
	byPoint := map[uuid.UUID]string{}
	for _, c := range list {
		if c.EmbeddingID == nil {
			continue
		}
		id, err := uuid.Parse(*c.EmbeddingID)
		if err != nil {
			continue
		}
		pointIDs = append(pointIDs, id)
		byPoint[id] = c.ID
	}

	points, err := e.index.Get(ctx, pointIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]float32, len(points))
	for _, p := range points {
		if chunkID, ok := byPoint[p.ID]; ok {
			out[chunkID] = p.Vector
		}
	}
	return out, nil
}

func (e *Engine) finish(ctx context.Context, documentID string, result *Result) (*Result, error) {
	err := e.bus.Publish(ctx, eventbus.TopicChunksDeduplicated, documentID, eventbus.ChunksDeduplicatedData{
		DocumentID:   documentID,
		RemovedCount: result.RemovedCount,
		GroupsCount:  result.GroupsCount,
	})
	if err != nil {
		e.log.Warn("failed to publish dedup event",
			slog.String("document_id", documentID), logger.Error(err))
	}

	e.log.Info("dedup run finished",
		slog.String("document_id", documentID),
		slog.Int("removed", result.RemovedCount),
		slog.Int("groups", result.GroupsCount))

	return result, nil
}
