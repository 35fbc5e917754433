// Package storage holds the object storage backends used for document bytes:
// a remote S3-compatible backend and a local filesystem backend sharing one
// interface and one error taxonomy.
package storage

import (
	"context"
	"io"
	"time"

	"docvault/internal/model"
)

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	VersionID    string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// PresignedURL is a time-limited read-only URL for a single object.
type PresignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthStatus is the coarse health of a backend.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
)

// Health is the result of a backend health check.
type Health struct {
	Status    HealthStatus `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	CheckedAt time.Time    `json:"checked_at"`
}

// Healthy reports whether the backend can currently accept work.
func (h Health) Healthy() bool { return h.Status == HealthHealthy }

func healthy(now time.Time) Health {
	return Health{Status: HealthHealthy, CheckedAt: now}
}

func degraded(now time.Time, reason string) Health {
	return Health{Status: HealthDegraded, Reason: reason, CheckedAt: now}
}

// Backend is the capability set every storage backend exposes.
// Implementations are safe for concurrent use.
type Backend interface {
	// Type reports which storage type records written here carry.
	Type() model.StorageType
	// Put stores r under key. The object is either fully present or absent.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get streams the object. Callers must close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes the object. A missing object reports ErrNotFound.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a read-only URL valid for ttl.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (PresignedURL, error)
	// HealthCheck checks that the backend is reachable.
	HealthCheck(ctx context.Context) Health
}
