package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db, now: time.Now}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

// IsNoRowsError reports whether err means the row does not exist.
func IsNoRowsError(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

const documentColumns = `id, employee_id, location_id, document_type, file_name,
		storage_type, storage_key, file_size, mime_type, uploaded_date,
		signed_date, expiration_date, is_verified, verified_by, verification_date,
		notes, etag, version_id, status, status_reason, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		d                      model.Document
		employeeID, locationID *string
	)
	if err := row.Scan(
		&d.ID,
		&employeeID,
		&locationID,
		&d.DocumentType,
		&d.FileName,
		&d.StorageType,
		&d.StorageKey,
		&d.FileSize,
		&d.MimeType,
		&d.UploadedDate,
		&d.SignedDate,
		&d.ExpirationDate,
		&d.IsVerified,
		&d.VerifiedBy,
		&d.VerificationDate,
		&d.Notes,
		&d.ETag,
		&d.VersionID,
		&d.Status,
		&d.StatusReason,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	d.Owner = model.OwnerFromColumns(employeeID, locationID)
	d.CheckIntegrity()
	return &d, nil
}

// Create inserts a new document row and returns the stored record.
// Verification columns are left to their defaults.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (id, employee_id, location_id, document_type, file_name,
			storage_type, storage_key, file_size, mime_type, uploaded_date,
			signed_date, expiration_date, notes, etag, version_id,
			status, status_changed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING ` + documentColumns
	status := doc.Status
	if status == "" {
		status = model.StatusActive
	}
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.Owner.EmployeeID(),
		doc.Owner.LocationID(),
		doc.DocumentType,
		doc.FileName,
		doc.StorageType,
		doc.StorageKey,
		doc.FileSize,
		doc.MimeType,
		doc.UploadedDate,
		doc.SignedDate,
		doc.ExpirationDate,
		doc.Notes,
		doc.ETag,
		doc.VersionID,
		status,
		doc.CreatedAt,
		doc.CreatedAt,
	)
	return scanDocument(row)
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.db.QueryRowContext(ctx, q, id))
}

// List returns documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	const qCount = `SELECT COUNT(*) FROM documents`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	qList := `SELECT ` + documentColumns + ` FROM documents
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`
	items, err := r.query(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

// ListByOwner returns the owner's documents using LIMIT/OFFSET pagination.
func (r *DocumentPostgres) ListByOwner(ctx context.Context, owner model.Owner, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	column := "employee_id"
	if owner.Kind == model.OwnerLocation {
		column = "location_id"
	}

	qCount := `SELECT COUNT(*) FROM documents WHERE ` + column + ` = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, owner.ID).Scan(&total); err != nil {
		return nil, err
	}

	qList := `SELECT ` + documentColumns + ` FROM documents WHERE ` + column + ` = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	items, err := r.query(ctx, qList, owner.ID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

// MarkDeleting moves a row into the deleting state and returns it.
func (r *DocumentPostgres) MarkDeleting(ctx context.Context, id string) (*model.Document, error) {
	q := `
		UPDATE documents
		SET status = $2, status_reason = NULL, status_changed_at = $3
		WHERE id = $1
		RETURNING ` + documentColumns
	return scanDocument(r.db.QueryRowContext(ctx, q, id, model.StatusDeleting, r.now().UTC()))
}

// MarkUndeletable flags a row whose object deletion failed.
func (r *DocumentPostgres) MarkUndeletable(ctx context.Context, id, reason string) error {
	const q = `
		UPDATE documents
		SET status = $2, status_reason = $3, status_changed_at = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q, id, model.StatusUndeletable, reason, r.now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a document by ID. It does not return an error if the row does not exist.
func (r *DocumentPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// ListStale returns rows stuck in status since before olderThan, oldest first.
func (r *DocumentPostgres) ListStale(ctx context.Context, status model.Status, olderThan time.Time, limit int) ([]model.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents
		WHERE status = $1 AND status_changed_at < $2
		ORDER BY status_changed_at ASC
		LIMIT $3`
	return r.query(ctx, q, status, olderThan, limit)
}

func (r *DocumentPostgres) query(ctx context.Context, q string, args ...any) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
