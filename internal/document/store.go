package document

import (
	"context"

	id "docanchor/pkg/domain"
)

// Store persists the document projection.
type Store interface {
	// Create inserts a new document. A duplicate (uploader, hash) pair is
	// rejected with a duplicate coded error carrying the existing id.
	Create(ctx context.Context, doc *Document) error

	// Get returns the document or a not_found coded error.
	Get(ctx context.Context, docID id.DocumentID) (*Document, error)

	// FindByHash looks up a document by uploader-scoped content hash.
	// Returns nil, nil when no match exists.
	FindByHash(ctx context.Context, uploaderID id.UserID, hash id.ContentHash) (*Document, error)

	// Update overwrites the mutable fields of an existing document.
	Update(ctx context.Context, doc *Document) error
}
