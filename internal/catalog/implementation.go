// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"libman/internal/fault"
	"libman/internal/platform/storage"
)

// service implements the Service interface.
type service struct {
	db    *storage.DB
	store Store
	log   *zap.Logger
}

// NewService creates a new catalog service instance.
func NewService(db *storage.DB, log *zap.Logger) Service {
	return &service{db: db, log: log}
}

// AddDocument validates and persists a new document. The id is assigned
// here; any id supplied by the caller is ignored.
func (s *service) AddDocument(ctx context.Context, doc Document) (*Document, error) {
	doc.ID = uuid.New()
	doc.Available = true
	if err := doc.Validate(); err != nil {
		return nil, fault.Invalid(err)
	}

	err := s.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		return s.store.Insert(ctx, tx, &doc)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("document added",
		zap.String("document_id", doc.ID.String()),
		zap.String("kind", string(doc.Kind)),
		zap.String("title", doc.Title))
	return &doc, nil
}

// GetDocument retrieves a document by its id.
func (s *service) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.store.Get(ctx, s.db.DB, id)
}

// ListDocuments returns the whole catalog.
func (s *service) ListDocuments(ctx context.Context) ([]*Document, error) {
	return s.store.List(ctx, s.db.DB)
}

// UpdateDocument applies a partial attribute edit.
func (s *service) UpdateDocument(ctx context.Context, id uuid.UUID, upd Update) (*Document, error) {
	var updated *Document
	err := s.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		doc, err := s.store.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := upd.apply(doc); err != nil {
			return fault.Invalid(err)
		}
		if err := s.store.Save(ctx, tx, doc); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteDocument removes a document and its kind payload atomically.
// Documents referenced by any loan, open or historical, cannot be deleted.
func (s *service) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.store.Get(ctx, tx, id); err != nil {
			return err
		}
		var refs int
		if err := sqlx.GetContext(ctx, tx, &refs, tx.Rebind(
			`SELECT COUNT(*) FROM loans WHERE document_id = ?`), id.String()); err != nil {
			return fmt.Errorf("count loan references: %w", err)
		}
		if refs > 0 {
			return fault.Conflict(fault.CodeDocumentOnRecord,
				fmt.Sprintf("document %s is referenced by %d loan(s)", id, refs))
		}
		return s.store.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("document deleted", zap.String("document_id", id.String()))
	return nil
}
