package repository

import (
	"context"
	"time"

	"docvault/internal/model"
)

// DocumentRepository defines data access for documents using SQL queries only.
// No business logic here, strictly persistence operations.
// Lookups of a missing row return sql.ErrNoRows.
type DocumentRepository interface {
	// Create inserts a new document record and returns the stored row.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID regardless of status.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// List returns a page of all documents, newest first.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Document], error)

	// ListByOwner returns a page of the owner's documents, newest first.
	ListByOwner(ctx context.Context, owner model.Owner, pq PageQuery) (*PageResult[model.Document], error)

	// MarkDeleting records intent to delete and returns the row as it now stands.
	MarkDeleting(ctx context.Context, id string) (*model.Document, error)

	// MarkUndeletable flags a row whose object could not be removed.
	MarkUndeletable(ctx context.Context, id, reason string) error

	// Delete removes a document row. It returns nil if the row did not exist.
	Delete(ctx context.Context, id string) error

	// ListStale returns up to limit rows in status whose status changed before olderThan.
	ListStale(ctx context.Context, status model.Status, olderThan time.Time, limit int) ([]model.Document, error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
