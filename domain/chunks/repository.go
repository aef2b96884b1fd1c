package chunks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/quarry-ai/quarry/internal/database"
	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/logger"
)

// Repository handles database operations for text chunks
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new chunks repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("chunks.repo")),
	}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *Repository) WithTx(tx bun.IDB) *Repository {
	return &Repository{db: tx, log: r.log}
}

// Save inserts a single chunk.
func (r *Repository) Save(ctx context.Context, chunk *TextChunk) error {
	return r.SaveBatch(ctx, []*TextChunk{chunk})
}

// insertBatchSize bounds one chunk insert statement.
const insertBatchSize = 500

// ReplaceDocument swaps a document's chunks for batch in one transaction.
// A retried chunk stage rebuilds sequence numbers from zero, so rows left by
// an earlier partial attempt are removed first; otherwise the insert trips
// the unique (document_id, sequence_number) constraint.
func (r *Repository) ReplaceDocument(ctx context.Context, documentID string, batch []*TextChunk) error {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return apperror.ErrDatabase.WithMessage("failed to begin chunk transaction").WithInternal(err)
	}
	defer tx.Rollback()

	txRepo := r.WithTx(tx)
	if _, err := txRepo.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}
	for start := 0; start < len(batch); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(batch) {
			end = len(batch)
		}
		if err := txRepo.SaveBatch(ctx, batch[start:end]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return apperror.ErrDatabase.WithMessage("failed to commit chunk transaction").WithInternal(err)
	}
	return nil
}

// SaveBatch inserts chunks and fills in generated ids and timestamps.
func (r *Repository) SaveBatch(ctx context.Context, batch []*TextChunk) error {
	if len(batch) == 0 {
		return nil
	}

	for _, c := range batch {
		if c.ContentHash == "" {
			c.ContentHash = HashContent(c.Content)
		}
	}

	_, err := r.db.NewInsert().
		Model(&batch).
		Returning("id, created_at").
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithMessage("failed to save chunks").WithInternal(err)
	}

	r.log.Debug("saved chunk batch",
		slog.Int("count", len(batch)),
		slog.String("document_id", batch[0].DocumentID))
	return nil
}

// FindByID returns a chunk or a not-found error.
func (r *Repository) FindByID(ctx context.Context, id string) (*TextChunk, error) {
	chunk := &TextChunk{}
	err := r.db.NewSelect().
		Model(chunk).
		Where("tc.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrNotFound.WithMessage(fmt.Sprintf("chunk %s not found", id))
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to load chunk").WithInternal(err)
	}
	return chunk, nil
}

// FindByIDs returns the chunks for the given ids; missing ids are absent.
func (r *Repository) FindByIDs(ctx context.Context, ids []string) ([]*TextChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var out []*TextChunk
	err := r.db.NewSelect().
		Model(&out).
		Where("tc.id IN (?)", bun.In(ids)).
		Order("tc.sequence_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to load chunks").WithInternal(err)
	}
	return out, nil
}

// ListByDocument returns one page of a document's chunks in sequence order.
// A limit of 0 returns all chunks.
func (r *Repository) ListByDocument(ctx context.Context, documentID string, offset, limit int) ([]*TextChunk, error) {
	var out []*TextChunk
	q := r.db.NewSelect().
		Model(&out).
		Where("tc.document_id = ?", documentID).
		Order("tc.sequence_number ASC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to list chunks").WithInternal(err)
	}
	return out, nil
}

// ListWithoutEmbedding returns up to limit chunks of a document that have no
// embedding yet, in sequence order.
func (r *Repository) ListWithoutEmbedding(ctx context.Context, documentID string, limit int) ([]*TextChunk, error) {
	var out []*TextChunk
	q := r.db.NewSelect().
		Model(&out).
		Where("tc.document_id = ?", documentID).
		Where("tc.embedding_id IS NULL").
		Order("tc.sequence_number ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to list unembedded chunks").WithInternal(err)
	}
	return out, nil
}

// CountByDocument returns the number of chunks a document has.
func (r *Repository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	count, err := r.db.NewSelect().
		Model((*TextChunk)(nil)).
		Where("tc.document_id = ?", documentID).
		Count(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithMessage("failed to count chunks").WithInternal(err)
	}
	return count, nil
}

// SetEmbeddingID records the indexed embedding for a chunk. The update only
// applies when embedding_id is still unset; a second write is rejected.
func (r *Repository) SetEmbeddingID(ctx context.Context, chunkID, embeddingID string) error {
	res, err := r.db.NewUpdate().
		Model((*TextChunk)(nil)).
		Set("embedding_id = ?", embeddingID).
		Where("id = ?", chunkID).
		Where("embedding_id IS NULL").
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithMessage("failed to set embedding id").WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrConflict.WithMessage(
			fmt.Sprintf("chunk %s already has an embedding or does not exist", chunkID))
	}
	return nil
}

// DeleteBatch removes chunks by id and returns how many rows were deleted.
func (r *Repository) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := r.db.NewDelete().
		Model((*TextChunk)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithMessage("failed to delete chunks").WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteByDocument removes all chunks of a document.
func (r *Repository) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := r.db.NewDelete().
		Model((*TextChunk)(nil)).
		Where("document_id = ?", documentID).
		Exec(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithMessage("failed to delete document chunks").WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
