// internal/catalog/store.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"libman/internal/fault"
	"libman/internal/platform/storage"
)

// Store is the persistence contract for documents. Methods take an
// sqlx.ExtContext so they compose into a caller-owned transaction; the
// circulation engine reuses them inside its lifecycle transactions.
type Store struct{}

type documentRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Author      string         `db:"author"`
	Genre       string         `db:"genre"`
	Kind        string         `db:"kind"`
	Available   bool           `db:"available"`
	ISBN        sql.NullString `db:"isbn"`
	PageCount   sql.NullInt64  `db:"page_count"`
	IssueNumber sql.NullInt64  `db:"issue_number"`
	Periodicity sql.NullString `db:"periodicity"`
}

func (r documentRow) toDomain() (*Document, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse document id %q: %w", r.ID, err)
	}
	doc := &Document{
		ID:        id,
		Title:     r.Title,
		Author:    r.Author,
		Genre:     r.Genre,
		Kind:      Kind(r.Kind),
		Available: r.Available,
	}
	switch doc.Kind {
	case KindBook:
		doc.Book = &BookDetails{
			ISBN:      r.ISBN.String,
			PageCount: int(r.PageCount.Int64),
		}
	case KindMagazine:
		doc.Magazine = &MagazineDetails{
			IssueNumber: int(r.IssueNumber.Int64),
			Periodicity: Periodicity(r.Periodicity.String),
		}
	}
	return doc, nil
}

const selectDocument = `
	SELECT d.id, d.title, d.author, d.genre, d.kind, d.available,
	       b.isbn, b.page_count, m.issue_number, m.periodicity
	  FROM documents d
	  LEFT JOIN books b ON b.document_id = d.id
	  LEFT JOIN magazines m ON m.document_id = d.id`

// Get fetches one document with its kind payload.
func (Store) Get(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Document, error) {
	var row documentRow
	query := ext.Rebind(selectDocument + ` WHERE d.id = ?`)
	if err := sqlx.GetContext(ctx, ext, &row, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.NotFound("document", id.String())
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return row.toDomain()
}

// List returns every document ordered by title.
func (Store) List(ctx context.Context, ext sqlx.ExtContext) ([]*Document, error) {
	var rows []documentRow
	query := selectDocument + ` ORDER BY d.title, d.id`
	if err := sqlx.SelectContext(ctx, ext, &rows, query); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs := make([]*Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Insert writes the base row and the kind-specific row.
func (Store) Insert(ctx context.Context, ext sqlx.ExtContext, doc *Document) error {
	_, err := ext.ExecContext(ctx, ext.Rebind(
		`INSERT INTO documents (id, title, author, genre, kind, available)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		doc.ID.String(), doc.Title, doc.Author, doc.Genre, string(doc.Kind), doc.Available)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	switch doc.Kind {
	case KindBook:
		_, err = ext.ExecContext(ctx, ext.Rebind(
			`INSERT INTO books (document_id, isbn, page_count) VALUES (?, ?, ?)`),
			doc.ID.String(), doc.Book.ISBN, doc.Book.PageCount)
		if err != nil {
			if storage.IsUniqueViolation(err) {
				return fault.Conflict(fault.CodeDuplicateISBN,
					fmt.Sprintf("a book with isbn %s already exists", doc.Book.ISBN))
			}
			return fmt.Errorf("insert book payload: %w", err)
		}
	case KindMagazine:
		_, err = ext.ExecContext(ctx, ext.Rebind(
			`INSERT INTO magazines (document_id, issue_number, periodicity) VALUES (?, ?, ?)`),
			doc.ID.String(), doc.Magazine.IssueNumber, string(doc.Magazine.Periodicity))
		if err != nil {
			return fmt.Errorf("insert magazine payload: %w", err)
		}
	}
	return nil
}

// Save persists the mutable attributes of an existing document.
func (s Store) Save(ctx context.Context, ext sqlx.ExtContext, doc *Document) error {
	res, err := ext.ExecContext(ctx, ext.Rebind(
		`UPDATE documents SET title = ?, author = ?, genre = ? WHERE id = ?`),
		doc.Title, doc.Author, doc.Genre, doc.ID.String())
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fault.NotFound("document", doc.ID.String())
	}

	switch doc.Kind {
	case KindBook:
		_, err = ext.ExecContext(ctx, ext.Rebind(
			`UPDATE books SET isbn = ?, page_count = ? WHERE document_id = ?`),
			doc.Book.ISBN, doc.Book.PageCount, doc.ID.String())
		if err != nil {
			if storage.IsUniqueViolation(err) {
				return fault.Conflict(fault.CodeDuplicateISBN,
					fmt.Sprintf("a book with isbn %s already exists", doc.Book.ISBN))
			}
			return fmt.Errorf("update book payload: %w", err)
		}
	case KindMagazine:
		_, err = ext.ExecContext(ctx, ext.Rebind(
			`UPDATE magazines SET issue_number = ?, periodicity = ? WHERE document_id = ?`),
			doc.Magazine.IssueNumber, string(doc.Magazine.Periodicity), doc.ID.String())
		if err != nil {
			return fmt.Errorf("update magazine payload: %w", err)
		}
	}
	return nil
}

// SetAvailability refreshes the cached availability flag. Callers must run
// this in the same transaction as the loan mutation that changed it.
func (Store) SetAvailability(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, available bool) error {
	res, err := ext.ExecContext(ctx, ext.Rebind(
		`UPDATE documents SET available = ? WHERE id = ?`),
		available, id.String())
	if err != nil {
		return fmt.Errorf("set availability: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fault.NotFound("document", id.String())
	}
	return nil
}

// Delete removes the kind-specific row and the base row. The caller is
// responsible for verifying no loan references the document.
func (Store) Delete(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) error {
	if _, err := ext.ExecContext(ctx, ext.Rebind(
		`DELETE FROM books WHERE document_id = ?`), id.String()); err != nil {
		return fmt.Errorf("delete book payload: %w", err)
	}
	if _, err := ext.ExecContext(ctx, ext.Rebind(
		`DELETE FROM magazines WHERE document_id = ?`), id.String()); err != nil {
		return fmt.Errorf("delete magazine payload: %w", err)
	}
	res, err := ext.ExecContext(ctx, ext.Rebind(
		`DELETE FROM documents WHERE id = ?`), id.String())
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fault.NotFound("document", id.String())
	}
	return nil
}
