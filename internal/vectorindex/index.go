// Package vectorindex stores (id, vector, payload) points in pgvector and
// serves k-nearest and payload-filtered scans for the retrieval engine.
package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/logger"
	"github.com/quarry-ai/quarry/pkg/pgutils"
)

var Module = fx.Module("vectorindex",
	fx.Provide(NewIndex),
)

// Payload is the scalar metadata stored alongside each vector.
type Payload struct {
	DocumentID   string         `json:"document_id"`
	ChunkID      string         `json:"chunk_id"`
	UserID       string         `json:"user_id"`
	Content      string         `json:"content"`
	Source       string         `json:"source,omitempty"`
	Page         int            `json:"page,omitempty"`
	ChunkIndex   int            `json:"chunk_index"`
	CreatedAt    time.Time      `json:"created_at"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Point is one stored vector with its payload.
type Point struct {
	ID      uuid.UUID
	Vector  []float32
	Payload Payload
}

// ScoredPoint is a search hit. Score is cosine similarity clamped to [0, 1].
type ScoredPoint struct {
	Point
	Score float32
}

// ScrollPage is one keyset page from Scroll.
type ScrollPage struct {
	Points     []Point
	NextCursor *uuid.UUID
}

type pointRow struct {
	bun.BaseModel `bun:"table:kb.vector_points,alias:vp"`

	ID        uuid.UUID       `bun:"id,pk,type:uuid"`
	Vector    string          `bun:"vector,type:vector,notnull"`
	Payload   json.RawMessage `bun:"payload,type:jsonb,notnull"`
	CreatedAt time.Time       `bun:"created_at,notnull,default:now()"`
}

// Index is the pgvector-backed point store. One collection per deployment,
// cosine distance, dimension fixed by configuration.
type Index struct {
	db        bun.IDB
	dimension int
	log       *slog.Logger
}

// NewIndex creates the vector index bound to the configured dimension.
func NewIndex(db bun.IDB, cfg *config.Config, log *slog.Logger) *Index {
	return &Index{
		db:        db,
		dimension: cfg.Vector.Size,
		log:       log.With(logger.Scope("vectorindex")),
	}
}

// WithTx returns a copy of the index bound to the given transaction.
func (ix *Index) WithTx(tx bun.IDB) *Index {
	return &Index{db: tx, dimension: ix.dimension, log: ix.log}
}

// Dimension returns the fixed vector dimension of the collection.
func (ix *Index) Dimension() int {
	return ix.dimension
}

// Upsert writes points, replacing vector and payload on id conflict.
func (ix *Index) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	rows := make([]*pointRow, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != ix.dimension {
			return apperror.NewValidation(
				fmt.Sprintf("vector dimension %d does not match collection dimension %d", len(p.Vector), ix.dimension))
		}
		raw, err := json.Marshal(p.Payload)
		if err != nil {
			return apperror.NewInternal("encode point payload", err)
		}
		rows = append(rows, &pointRow{
			ID:        p.ID,
			Vector:    pgutils.FormatVector(p.Vector),
			Payload:   raw,
			CreatedAt: p.Payload.CreatedAt,
		})
	}

	_, err := ix.db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("vector = EXCLUDED.vector").
		Set("payload = EXCLUDED.payload").
		Exec(ctx)
	if err != nil {
		ix.log.Error("upsert failed", slog.Int("points", len(points)), logger.Error(err))
		return apperror.ErrDatabase.WithMessage("failed to upsert vectors").WithInternal(err)
	}

	return nil
}

// Search returns the k nearest points to vector, filtered by payload
// conditions, with scores at or above threshold.
func (ix *Index) Search(ctx context.Context, vector []float32, k int, threshold float32, filter *Filter) ([]ScoredPoint, error) {
	if len(vector) != ix.dimension {
		return nil, apperror.NewValidation(
			fmt.Sprintf("query vector dimension %d does not match collection dimension %d", len(vector), ix.dimension))
	}
	if k <= 0 {
		return nil, apperror.NewValidation("k must be positive")
	}

	vec := pgutils.FormatVector(vector)

	q := ix.db.NewSelect().
		Model((*pointRow)(nil)).
		ColumnExpr("vp.id, vp.vector::text AS vector, vp.payload, vp.created_at").
		ColumnExpr("GREATEST(0, 1 - (vp.vector <=> ?::vector)) AS score", vec)

	if err := applyFilter(q, filter); err != nil {
		return nil, err
	}

	q = q.Where("GREATEST(0, 1 - (vp.vector <=> ?::vector)) >= ?", vec, threshold).
		OrderExpr("vp.vector <=> ?::vector ASC", vec).
		Limit(k)

	var rows []struct {
		pointRow
		Score float32 `bun:"score"`
	}
	if err := q.Scan(ctx, &rows); err != nil {
		ix.log.Error("search failed", logger.Error(err))
		return nil, apperror.ErrDatabase.WithMessage("vector search failed").WithInternal(err)
	}

	out := make([]ScoredPoint, 0, len(rows))
	for _, r := range rows {
		p, err := decodeRow(&r.pointRow)
		if err != nil {
			return nil, err
		}
		out = append(out, ScoredPoint{Point: p, Score: r.Score})
	}
	return out, nil
}

// Scroll pages through points matching filter in id order. Pass a nil cursor
// for the first page; a nil NextCursor marks the last page.
func (ix *Index) Scroll(ctx context.Context, filter *Filter, pageSize int, cursor *uuid.UUID) (*ScrollPage, error) {
	if pageSize <= 0 {
		pageSize = 256
	}

	q := ix.db.NewSelect().
		Model((*pointRow)(nil)).
		ColumnExpr("vp.id, vp.vector::text AS vector, vp.payload, vp.created_at")

	if err := applyFilter(q, filter); err != nil {
		return nil, err
	}
	if cursor != nil {
		q = q.Where("vp.id > ?", *cursor)
	}

	var rows []*pointRow
	if err := q.Order("id ASC").Limit(pageSize + 1).Scan(ctx, &rows); err != nil {
		ix.log.Error("scroll failed", logger.Error(err))
		return nil, apperror.ErrDatabase.WithMessage("vector scroll failed").WithInternal(err)
	}

	page := &ScrollPage{}
	hasMore := len(rows) > pageSize
	if hasMore {
		rows = rows[:pageSize]
	}

	for _, r := range rows {
		p, err := decodeRow(r)
		if err != nil {
			return nil, err
		}
		page.Points = append(page.Points, p)
	}

	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1].ID
		page.NextCursor = &last
	}
	return page, nil
}

// Get fetches points by id. Missing ids are silently absent from the result.
func (ix *Index) Get(ctx context.Context, ids []uuid.UUID) ([]Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []*pointRow
	err := ix.db.NewSelect().
		Model(&rows).
		ColumnExpr("vp.id, vp.vector::text AS vector, vp.payload, vp.created_at").
		Where("vp.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithMessage("vector get failed").WithInternal(err)
	}

	out := make([]Point, 0, len(rows))
	for _, r := range rows {
		p, err := decodeRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Delete removes points by id. Deleting an absent id is not an error.
func (ix *Index) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := ix.db.NewDelete().
		Model((*pointRow)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		ix.log.Error("delete failed", slog.Int("ids", len(ids)), logger.Error(err))
		return apperror.ErrDatabase.WithMessage("vector delete failed").WithInternal(err)
	}
	return nil
}

// DeleteByFilter removes all points matching the filter; used by cascade
// deletes and the orphan sweep.
func (ix *Index) DeleteByFilter(ctx context.Context, filter *Filter) (int, error) {
	q := ix.db.NewDelete().Model((*pointRow)(nil))

	clause, args, err := filter.SQL()
	if err != nil {
		return 0, apperror.NewValidation(err.Error())
	}
	if clause == "" {
		return 0, apperror.NewValidation("refusing to delete without a filter")
	}

	res, err := q.Where(clause, args...).Exec(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithMessage("vector delete failed").WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count returns the number of points in the collection; used by health checks.
func (ix *Index) Count(ctx context.Context) (int, error) {
	count, err := ix.db.NewSelect().Model((*pointRow)(nil)).Count(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithMessage("vector count failed").WithInternal(err)
	}
	return count, nil
}

func applyFilter(q *bun.SelectQuery, filter *Filter) error {
	clause, args, err := filter.SQL()
	if err != nil {
		return apperror.NewValidation(err.Error())
	}
	if clause != "" {
		q.Where(clause, args...)
	}
	return nil
}

func decodeRow(r *pointRow) (Point, error) {
	var payload Payload
	if err := json.Unmarshal(r.Payload, &payload); err != nil {
		return Point{}, apperror.NewInternal("decode point payload", err)
	}

	vec, err := pgutils.ParseVector(r.Vector)
	if err != nil {
		return Point{}, apperror.NewInternal("decode point vector", err)
	}

	return Point{ID: r.ID, Vector: vec, Payload: payload}, nil
}
