// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddDocument(ctx context.Context, doc Document) (*Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	UpdateDocument(ctx context.Context, id uuid.UUID, upd Update) (*Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
}
