package model

import "time"

// StorageType names the backend that holds a document's bytes.
type StorageType string

const (
	StorageRemote StorageType = "remote"
	StorageLocal  StorageType = "local"
)

// Valid reports whether t is a known storage type.
func (t StorageType) Valid() bool {
	return t == StorageRemote || t == StorageLocal
}

// Status is the lifecycle state of a document record.
type Status string

const (
	// StatusActive records point at an object that is fully present.
	StatusActive Status = "active"
	// StatusDeleting marks intent to delete before the object is removed.
	StatusDeleting Status = "deleting"
	// StatusUndeletable records are retained because object deletion failed.
	StatusUndeletable Status = "undeletable"
)

// Document represents a stored compliance file.
// This is a pure domain model with no database-specific dependencies or tags.
// StorageType and StorageKey are set once at creation and never updated.
type Document struct {
	ID           string       `json:"id"`
	Owner        Owner        `json:"owner"`
	DocumentType DocumentType `json:"document_type"`
	FileName     string       `json:"file_name"`
	StorageType  StorageType  `json:"storage_type"`
	StorageKey   string       `json:"storage_key"`
	FileSize     int64        `json:"file_size"`
	MimeType     string       `json:"mime_type"`
	UploadedDate time.Time    `json:"uploaded_date"`

	SignedDate     *time.Time `json:"signed_date,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`

	// Verification is owned by a separate workflow; upload never sets it.
	IsVerified       bool       `json:"is_verified"`
	VerifiedBy       *string    `json:"verified_by,omitempty"`
	VerificationDate *time.Time `json:"verification_date,omitempty"`

	Notes *string `json:"notes,omitempty"`

	// Integrity tokens reported by the remote backend.
	ETag      *string `json:"etag,omitempty"`
	VersionID *string `json:"version_id,omitempty"`

	Status       Status    `json:"status"`
	StatusReason *string   `json:"status_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	// Degraded is true for remote documents stored without integrity tokens.
	Degraded bool `json:"degraded"`
}

// CheckIntegrity recomputes the Degraded flag from the stored fields.
func (d *Document) CheckIntegrity() {
	d.Degraded = d.StorageType == StorageRemote && (d.ETag == nil || *d.ETag == "")
}

// IsImage reports whether the document's MIME type is an image type.
func (d *Document) IsImage() bool {
	return IsImageMIME(d.MimeType)
}
