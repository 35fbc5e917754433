package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"docvault/internal/cache"
	"docvault/internal/model"
	"docvault/internal/storage"
)

// DownloadMode selects between streaming bytes and redirecting to a URL.
type DownloadMode string

const (
	// DownloadAuto redirects remote images and streams everything else.
	DownloadAuto     DownloadMode = "auto"
	DownloadStream   DownloadMode = "stream"
	DownloadRedirect DownloadMode = "redirect"
)

// ParseDownloadMode maps a query value to a mode. Empty means auto.
func ParseDownloadMode(s string) (DownloadMode, bool) {
	switch m := DownloadMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return DownloadAuto, true
	case DownloadAuto, DownloadStream, DownloadRedirect:
		return m, true
	}
	return "", false
}

// Download is either an open body or a presigned URL, never both.
// Callers must close Body when it is set.
type Download struct {
	Document *model.Document
	Body     io.ReadCloser
	URL      *storage.PresignedURL
}

// DeleteOutcome reports how a delete converged.
type DeleteOutcome string

const (
	DeleteDeleted DeleteOutcome = "deleted"
	// DeleteObjectMissing means the record was removed but its object was already gone.
	DeleteObjectMissing DeleteOutcome = "object_missing"
	// DeleteNotFound means there was no record. It is not an error.
	DeleteNotFound DeleteOutcome = "not_found"
)

// ReconcileReport summarizes one recovery sweep.
type ReconcileReport struct {
	Scanned       int `json:"scanned"`
	Deleted       int `json:"deleted"`
	ObjectMissing int `json:"object_missing"`
	Failed        int `json:"failed"`
}

// Download dispatches on the record's storage type, never on current backend health.
func (s *documentService) Download(ctx context.Context, id string, mode DownloadMode) (*Download, error) {
	ctx, span := tracer.Start(ctx, "document.download")
	defer span.End()

	doc, err := s.active(ctx, id)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("document.storage_type", string(doc.StorageType)),
		attribute.String("download.mode", string(mode)),
	)

	backend, err := s.backendFor(doc.StorageType)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", doc.StorageType, err)
	}

	redirect := mode == DownloadRedirect ||
		(mode == DownloadAuto && doc.StorageType == model.StorageRemote && doc.IsImage())
	if redirect {
		if doc.StorageType != model.StorageRemote {
			return nil, fmt.Errorf("redirect download: %w", storage.ErrUnsupported)
		}
		u, err := s.presign(ctx, backend, doc, s.opts.PresignDefaultTTL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "presign")
			return nil, err
		}
		return &Download{Document: doc, URL: &u}, nil
	}

	body, info, err := backend.Get(ctx, doc.StorageKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get object")
		if errors.Is(err, storage.ErrNotFound) {
			// A concurrent delete removes the object after marking the row.
			if _, aerr := s.active(ctx, id); aerr != nil {
				return nil, aerr
			}
			return nil, s.diverged(doc, "missing_object", fmt.Sprintf("object %s is missing", doc.StorageKey))
		}
		return nil, fmt.Errorf("download: %w", err)
	}
	if info.Size >= 0 && info.Size != doc.FileSize {
		closeQuietly(body)
		return nil, s.diverged(doc, "size_mismatch",
			fmt.Sprintf("object holds %d bytes, record says %d", info.Size, doc.FileSize))
	}
	return &Download{Document: doc, Body: body}, nil
}

func (s *documentService) diverged(doc *model.Document, kind, detail string) error {
	s.opts.Metrics.Reconciliation(kind)
	s.log.Error().
		Str("event", "reconciliation_required").
		Str("kind", kind).
		Str("document_id", doc.ID).
		Str("storage_type", string(doc.StorageType)).
		Str("storage_key", doc.StorageKey).
		Msg(detail)
	return fmt.Errorf("%w: document %s: %s", ErrReconciliationRequired, doc.ID, detail)
}

// Presign returns a URL for a remote document. A zero ttl means the default;
// longer requests are capped at the configured maximum.
func (s *documentService) Presign(ctx context.Context, id string, ttl time.Duration) (storage.PresignedURL, error) {
	switch {
	case ttl < 0:
		return storage.PresignedURL{}, invalid("ttl", CodeOutOfRange, "ttl must be positive")
	case ttl == 0:
		ttl = s.opts.PresignDefaultTTL
	case ttl > s.opts.PresignMaxTTL:
		ttl = s.opts.PresignMaxTTL
	}

	doc, err := s.active(ctx, id)
	if err != nil {
		return storage.PresignedURL{}, err
	}
	if doc.StorageType != model.StorageRemote {
		return storage.PresignedURL{}, fmt.Errorf("presign %s document: %w", doc.StorageType, storage.ErrUnsupported)
	}
	backend, err := s.backendFor(doc.StorageType)
	if err != nil {
		return storage.PresignedURL{}, fmt.Errorf("presign: %w", err)
	}
	return s.presign(ctx, backend, doc, ttl)
}

// presign serves a cached URL only when it was issued for the same ttl. The
// cache holds entries for half their ttl so a served URL keeps at least half
// of its validity.
func (s *documentService) presign(ctx context.Context, backend storage.Backend, doc *model.Document, ttl time.Duration) (storage.PresignedURL, error) {
	sign := func(ctx context.Context) (PresignEntry, time.Duration, error) {
		u, err := backend.PresignGet(ctx, doc.StorageKey, ttl)
		if err != nil {
			return PresignEntry{}, 0, err
		}
		return PresignEntry{URL: u.URL, ExpiresAt: u.ExpiresAt, TTL: ttl}, ttl / 2, nil
	}

	if s.opts.URLCache == nil {
		e, _, err := sign(ctx)
		if err != nil {
			return storage.PresignedURL{}, fmt.Errorf("presign: %w", err)
		}
		return storage.PresignedURL{URL: e.URL, ExpiresAt: e.ExpiresAt}, nil
	}

	e, err := cache.GetOrSet(ctx, s.opts.URLCache, doc.ID, sign)
	if err == nil && e.TTL != ttl {
		var cacheTTL time.Duration
		if e, cacheTTL, err = sign(ctx); err == nil {
			_ = s.opts.URLCache.Set(ctx, doc.ID, e, cacheTTL)
		}
	}
	if err != nil {
		return storage.PresignedURL{}, fmt.Errorf("presign: %w", err)
	}
	return storage.PresignedURL{URL: e.URL, ExpiresAt: e.ExpiresAt}, nil
}

// Delete marks the record deleting, removes the object, then the record.
func (s *documentService) Delete(ctx context.Context, id string) (DeleteOutcome, error) {
	ctx, span := tracer.Start(ctx, "document.delete")
	defer span.End()

	if id == "" {
		return "", invalid("id", CodeRequired, "id is required")
	}
	doc, err := s.repo.MarkDeleting(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DeleteNotFound, nil
		}
		return "", fmt.Errorf("mark deleting: %w", err)
	}
	span.SetAttributes(attribute.String("document.storage_type", string(doc.StorageType)))

	outcome, err := s.purge(ctx, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purge")
	}
	return outcome, err
}

// purge finishes a delete for a record already in the deleting state.
func (s *documentService) purge(ctx context.Context, doc *model.Document) (DeleteOutcome, error) {
	if s.opts.URLCache != nil {
		if err := s.opts.URLCache.Delete(ctx, doc.ID); err != nil {
			s.log.Warn().Str("event", "presign_cache_invalidate_failed").Str("document_id", doc.ID).Err(err).Send()
		}
	}

	outcome := DeleteDeleted
	backend, err := s.backendFor(doc.StorageType)
	if err == nil {
		err = backend.Delete(ctx, doc.StorageKey)
	}
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		outcome = DeleteObjectMissing
		s.opts.Metrics.Reconciliation("object_missing")
		s.log.Warn().
			Str("event", "delete_object_missing").
			Str("document_id", doc.ID).
			Str("storage_key", doc.StorageKey).
			Msg("object already absent, removing record")
	default:
		if merr := s.repo.MarkUndeletable(context.WithoutCancel(ctx), doc.ID, err.Error()); merr != nil {
			s.log.Error().Str("event", "mark_undeletable_failed").Str("document_id", doc.ID).Err(merr).Send()
		}
		s.log.Error().
			Str("event", "delete_object_failed").
			Str("document_id", doc.ID).
			Str("storage_type", string(doc.StorageType)).
			Str("storage_key", doc.StorageKey).
			Err(err).
			Msg("record retained as undeletable")
		return "", fmt.Errorf("delete object: %w", err)
	}

	if err := s.repo.Delete(context.WithoutCancel(ctx), doc.ID); err != nil {
		s.opts.Metrics.Reconciliation("orphan_row")
		s.log.Error().
			Str("event", "delete_record_failed").
			Str("document_id", doc.ID).
			Err(err).
			Msg("object removed but record remains")
		return "", fmt.Errorf("%w: object for document %s removed but record remains: %v",
			ErrReconciliationRequired, doc.ID, err)
	}
	return outcome, nil
}

// Reconcile re-drives deletes that stayed in the deleting state past the
// grace period, typically because the process stopped mid-delete.
func (s *documentService) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	cutoff := s.opts.Now().UTC().Add(-s.opts.ReconcileGrace)

	stale, err := s.repo.ListStale(ctx, model.StatusDeleting, cutoff, s.opts.ReconcileBatch)
	if err != nil {
		return report, fmt.Errorf("list stale deletes: %w", err)
	}
	for i := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Scanned++
		outcome, err := s.purge(ctx, &stale[i])
		switch {
		case err != nil:
			report.Failed++
		case outcome == DeleteObjectMissing:
			report.ObjectMissing++
		default:
			report.Deleted++
		}
	}

	if report.Scanned > 0 {
		s.log.Info().
			Str("event", "reconcile_completed").
			Int("scanned", report.Scanned).
			Int("deleted", report.Deleted).
			Int("object_missing", report.ObjectMissing).
			Int("failed", report.Failed).
			Send()
	}
	return report, nil
}
