package documents

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/logger"
)

// Repository handles database operations for documents
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new documents repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("documents.repo")),
	}
}

// Insert persists a new document and fills in generated fields.
func (r *Repository) Insert(ctx context.Context, doc *Document) error {
	_, err := r.db.NewInsert().
		Model(doc).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithMessage("failed to create document").WithInternal(err)
	}
	return nil
}

// FindByID returns a document or a not-found error.
func (r *Repository) FindByID(ctx context.Context, id string) (*Document, error) {
	doc := &Document{}
	err := r.db.NewSelect().
		Model(doc).
		Where("d.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("document", id)
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to load document").WithInternal(err)
	}
	return doc, nil
}

// FindByUser returns a user's documents, newest first.
func (r *Repository) FindByUser(ctx context.Context, userID string) ([]*Document, error) {
	var out []*Document
	err := r.db.NewSelect().
		Model(&out).
		Where("d.user_id = ?", userID).
		Order("d.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithMessage("failed to list documents").WithInternal(err)
	}
	return out, nil
}

// UpdateStatus moves a document to the given pipeline status.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status DocumentStatus) error {
	res, err := r.db.NewUpdate().
		Model((*Document)(nil)).
		Set("status = ?", status).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithMessage("failed to update document status").WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("document", id)
	}
	return nil
}

// Delete removes a document row.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*Document)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithMessage("failed to delete document").WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("document", id)
	}
	return nil
}
