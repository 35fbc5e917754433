package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"docvault/internal/cache"
	"docvault/internal/config"
	"docvault/internal/metrics"
	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/storage"
)

var tracer = otel.Tracer("docvault/internal/service")

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// ListFilter narrows a listing to one owner when Owner is set.
type ListFilter struct {
	Owner  *model.Owner
	Limit  int
	Offset int
}

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Upload validates the input, writes the bytes to the remote backend or,
	// when that is unavailable, to local disk, then records the metadata.
	Upload(ctx context.Context, in UploadInput) (*model.Document, error)

	// List returns documents using limit/offset and a total count.
	List(ctx context.Context, f ListFilter) (*DocumentListResult, error)

	// Get returns a single document by its ID.
	Get(ctx context.Context, id string) (*model.Document, error)

	// Download opens the document's bytes or returns a presigned URL for them.
	Download(ctx context.Context, id string, mode DownloadMode) (*Download, error)

	// Presign returns a time-limited URL for a remote document.
	Presign(ctx context.Context, id string, ttl time.Duration) (storage.PresignedURL, error)

	// Delete removes the object and then its record.
	Delete(ctx context.Context, id string) (DeleteOutcome, error)

	// Reconcile finishes deletes left behind by a crash.
	Reconcile(ctx context.Context) (ReconcileReport, error)

	// Health reports the state of every configured backend.
	Health(ctx context.Context) HealthReport
}

// PresignEntry is the cached form of a presigned URL.
type PresignEntry struct {
	URL       string        `json:"url"`
	ExpiresAt time.Time     `json:"expires_at"`
	TTL       time.Duration `json:"ttl"`
}

// Options tune the document service. Zero values fall back to defaults.
type Options struct {
	MaxUploadSize          int64
	AllowedMIMETypes       []string
	FallbackOnAccessDenied bool
	PresignDefaultTTL      time.Duration
	PresignMaxTTL          time.Duration
	ReconcileGrace         time.Duration
	ReconcileBatch         int
	URLCache               cache.Cache[PresignEntry]
	Logger                 *zerolog.Logger
	Metrics                *metrics.Storage
	Now                    func() time.Time
	NewID                  func() string
}

// OptionsFromConfig maps storage configuration onto service options.
func OptionsFromConfig(cfg config.StorageConfig) Options {
	return Options{
		MaxUploadSize:          cfg.MaxUploadSize,
		AllowedMIMETypes:       cfg.AllowedMIMETypes,
		FallbackOnAccessDenied: cfg.FallbackOnAccessDenied,
		PresignDefaultTTL:      cfg.PresignDefaultTTL,
		PresignMaxTTL:          cfg.PresignMaxTTL,
		ReconcileGrace:         cfg.ReconcileGrace,
	}
}

func (o *Options) applyDefaults() {
	if o.MaxUploadSize <= 0 {
		o.MaxUploadSize = 10 << 20
	}
	if len(o.AllowedMIMETypes) == 0 {
		o.AllowedMIMETypes = config.DefaultAllowedMIMETypes
	}
	if o.PresignMaxTTL <= 0 || o.PresignMaxTTL > storage.MaxPresignTTL {
		o.PresignMaxTTL = time.Hour
	}
	if o.PresignDefaultTTL <= 0 {
		o.PresignDefaultTTL = 5 * time.Minute
	}
	if o.PresignDefaultTTL > o.PresignMaxTTL {
		o.PresignDefaultTTL = o.PresignMaxTTL
	}
	if o.ReconcileGrace <= 0 {
		o.ReconcileGrace = time.Minute
	}
	if o.ReconcileBatch <= 0 {
		o.ReconcileBatch = 100
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	repo   repository.DocumentRepository
	local  storage.Backend
	remote storage.Backend
	opts   Options
	log    zerolog.Logger
}

// NewDocumentService constructs a new DocumentService. remote may be nil, in
// which case every upload goes to local.
func NewDocumentService(repo repository.DocumentRepository, local, remote storage.Backend, opts Options) DocumentService {
	opts.applyDefaults()
	return &documentService{
		repo:   repo,
		local:  local,
		remote: remote,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "document_service").Logger(),
	}
}

// backendFor dispatches strictly on the record's storage type.
func (s *documentService) backendFor(t model.StorageType) (storage.Backend, error) {
	switch t {
	case model.StorageLocal:
		return s.local, nil
	case model.StorageRemote:
		if s.remote != nil {
			return s.remote, nil
		}
	}
	return nil, ErrStorageUnavailable
}

// List returns paginated documents without exposing repository types.
func (s *documentService) List(ctx context.Context, f ListFilter) (*DocumentListResult, error) {
	if f.Limit <= 0 {
		f.Limit = 10
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	pq := repository.PageQuery{Limit: f.Limit, Offset: f.Offset}

	var (
		res *repository.PageResult[model.Document]
		err error
	)
	if f.Owner != nil {
		if verr := f.Owner.Validate(); verr != nil {
			return nil, invalid("owner", CodeInvalid, verr.Error())
		}
		res, err = s.repo.ListByOwner(ctx, *f.Owner, pq)
	} else {
		res, err = s.repo.List(ctx, pq)
	}
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

// Get returns a document by ID.
func (s *documentService) Get(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, invalid("id", CodeRequired, "id is required")
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// active returns the record only while it is servable.
func (s *documentService) active(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != model.StatusActive {
		return nil, ErrNotFound
	}
	return doc, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
