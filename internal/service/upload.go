package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"docvault/internal/model"
	"docvault/internal/storage"
)

const (
	maxFileNameLen = 255
	sniffLen       = 512
)

// UploadInput carries one already-authenticated upload. Body must be
// seekable so the bytes can be replayed on the local backend after a
// failed remote attempt.
type UploadInput struct {
	Owner            model.Owner
	DocumentType     model.DocumentType
	Body             io.ReadSeeker
	Size             int64
	DeclaredMimeType string
	FileName         string
	Notes            *string
	SignedDate       *time.Time
	ExpirationDate   *time.Time
}

// Upload stores the bytes and records the document. The record always names
// the backend that accepted the bytes.
func (s *documentService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	ctx, span := tracer.Start(ctx, "document.upload")
	defer span.End()

	fileName, mimeType, err := s.validateUpload(&in)
	if err != nil {
		span.SetStatus(codes.Error, "invalid input")
		return nil, err
	}

	key := storage.NewKey(in.Owner, fileName, mimeType)
	opt := storage.PutObjectOptions{
		Size:        in.Size,
		ContentType: mimeType,
		Metadata: map[string]string{
			"original-filename": fileName,
			"document-type":     string(in.DocumentType),
		},
	}

	backend, info, err := s.put(ctx, key, in.Body, opt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store object")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("document.storage_type", string(backend.Type())),
		attribute.Int64("document.size", info.Size),
	)

	now := s.opts.Now().UTC()
	doc := &model.Document{
		ID:             s.opts.NewID(),
		Owner:          in.Owner,
		DocumentType:   in.DocumentType,
		FileName:       fileName,
		StorageType:    backend.Type(),
		StorageKey:     key,
		FileSize:       info.Size,
		MimeType:       mimeType,
		UploadedDate:   now,
		SignedDate:     in.SignedDate,
		ExpirationDate: in.ExpirationDate,
		Notes:          in.Notes,
		ETag:           nonEmpty(info.ETag),
		VersionID:      nonEmpty(info.VersionID),
		Status:         model.StatusActive,
		CreatedAt:      now,
	}
	doc.CheckIntegrity()
	if doc.Degraded {
		s.log.Warn().
			Str("event", "degraded_document").
			Str("document_id", doc.ID).
			Str("storage_key", key).
			Msg("remote object stored without an etag")
	}

	stored, err := s.repo.Create(ctx, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save metadata")
		return nil, s.rollback(ctx, backend, key, err)
	}
	stored.CheckIntegrity()

	s.log.Info().
		Str("event", "document_uploaded").
		Str("document_id", stored.ID).
		Str("storage_type", string(stored.StorageType)).
		Int64("file_size", stored.FileSize).
		Send()
	return stored, nil
}

// put writes to remote when it is configured and healthy, and falls back to
// local for the failures local can absorb.
func (s *documentService) put(ctx context.Context, key string, body io.ReadSeeker, opt storage.PutObjectOptions) (storage.Backend, storage.ObjectInfo, error) {
	start, err := body.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("upload body: %w", err)
	}

	if s.remote != nil {
		var reason string
		if h := s.remote.HealthCheck(ctx); !h.Healthy() {
			reason = "remote_degraded"
		} else {
			info, err := s.remote.Put(ctx, key, body, opt)
			if err == nil {
				return s.remote, info, nil
			}
			var ok bool
			if reason, ok = s.fallbackReason(err); !ok {
				return nil, storage.ObjectInfo{}, fmt.Errorf("upload to storage: %w", err)
			}
			if _, serr := body.Seek(start, io.SeekStart); serr != nil {
				return nil, storage.ObjectInfo{}, fmt.Errorf("upload to storage: %w (rewind for fallback: %v)", err, serr)
			}
			s.log.Warn().
				Str("event", "upload_fallback").
				Str("reason", reason).
				Str("storage_key", key).
				Err(err).
				Msg("remote upload failed, storing on local disk")
		}
		if reason == "remote_degraded" {
			s.log.Warn().
				Str("event", "upload_fallback").
				Str("reason", reason).
				Str("storage_key", key).
				Msg("remote backend degraded, storing on local disk")
		}
		s.opts.Metrics.Fallback(reason)
	}

	info, err := s.local.Put(ctx, key, body, opt)
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("upload to storage: %w", err)
	}
	return s.local, info, nil
}

func (s *documentService) fallbackReason(err error) (string, bool) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "", false
	case errors.Is(err, storage.ErrUnsupported):
		return "unsupported", true
	case errors.Is(err, storage.ErrTransient):
		return "transient", true
	case errors.Is(err, storage.ErrAccessDenied) && s.opts.FallbackOnAccessDenied:
		return "access_denied", true
	}
	return "", false
}

// rollback removes the object written for a record that could not be saved.
func (s *documentService) rollback(ctx context.Context, backend storage.Backend, key string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	err := backend.Delete(ctx, key)
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("db save failed: %w", cause)
	}

	s.opts.Metrics.Reconciliation("orphan_object")
	s.log.Error().
		Str("event", "rollback_failed").
		Str("storage_type", string(backend.Type())).
		Str("storage_key", key).
		AnErr("cause", cause).
		Err(err).
		Msg("object left without a metadata record")
	return fmt.Errorf("%w: object %s/%s has no record: db save failed: %v; rollback delete failed: %v",
		ErrReconciliationRequired, backend.Type(), key, cause, err)
}

// validateUpload normalizes in and returns the stored file name and MIME type.
func (s *documentService) validateUpload(in *UploadInput) (string, string, error) {
	if in.Body == nil {
		return "", "", invalid("file", CodeRequired, "file is required")
	}
	if !in.DocumentType.Valid() {
		return "", "", invalid("document_type", CodeInvalid, fmt.Sprintf("unknown document type %q", in.DocumentType))
	}
	if err := in.Owner.Validate(); err != nil {
		code := CodeInvalid
		if in.Owner.Kind == "" {
			code = CodeRequired
		}
		return "", "", invalid("owner", code, err.Error())
	}

	fileName := cleanFileName(in.FileName)
	if fileName == "" {
		return "", "", invalid("file_name", CodeRequired, "file name is required")
	}
	if len(fileName) > maxFileNameLen {
		return "", "", invalid("file_name", CodeTooLarge, fmt.Sprintf("file name exceeds %d bytes", maxFileNameLen))
	}

	switch {
	case in.Size == 0:
		return "", "", invalid("file", CodeEmpty, "file is empty")
	case in.Size < 0:
		return "", "", invalid("file", CodeInvalid, "file size is unknown")
	case in.Size > s.opts.MaxUploadSize:
		return "", "", invalid("file", CodeTooLarge, fmt.Sprintf("file exceeds %d bytes", s.opts.MaxUploadSize))
	}

	mimeType, err := detectMIME(in.Body, in.DeclaredMimeType)
	if err != nil {
		return "", "", fmt.Errorf("read upload: %w", err)
	}
	if !model.MatchesMIME(mimeType, s.opts.AllowedMIMETypes) {
		return "", "", invalid("file", CodeUnsupportedType, fmt.Sprintf("content type %s is not accepted", mimeType))
	}

	if in.SignedDate != nil && in.ExpirationDate != nil && in.ExpirationDate.Before(*in.SignedDate) {
		return "", "", invalid("expiration_date", CodeOutOfRange, "expiration date is before signed date")
	}
	return fileName, mimeType, nil
}

// detectMIME trusts a specific declared type and sniffs the first bytes
// otherwise. The body is left at its starting offset.
func detectMIME(body io.ReadSeeker, declared string) (string, error) {
	mt := model.NormalizeMIME(declared)
	if mt != "" && mt != model.MIMEOctetStream {
		return mt, nil
	}

	start, err := body.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", err
	}
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(body, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	if _, err := body.Seek(start, io.SeekStart); err != nil {
		return "", err
	}
	return model.NormalizeMIME(http.DetectContentType(buf[:n])), nil
}

func cleanFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = filepath.Base(filepath.FromSlash(name))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
