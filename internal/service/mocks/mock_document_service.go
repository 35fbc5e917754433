package mocks

import (
	"context"
	"time"

	"docvault/internal/model"
	"docvault/internal/service"
	"docvault/internal/storage"
	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Upload(ctx context.Context, in service.UploadInput) (*model.Document, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, f service.ListFilter) (*service.DocumentListResult, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Download(ctx context.Context, id string, mode service.DownloadMode) (*service.Download, error) {
	args := m.Called(ctx, id, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Download), args.Error(1)
}

func (m *MockDocumentService) Presign(ctx context.Context, id string, ttl time.Duration) (storage.PresignedURL, error) {
	args := m.Called(ctx, id, ttl)
	return args.Get(0).(storage.PresignedURL), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, id string) (service.DeleteOutcome, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.DeleteOutcome), args.Error(1)
}

func (m *MockDocumentService) Reconcile(ctx context.Context) (service.ReconcileReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.ReconcileReport), args.Error(1)
}

func (m *MockDocumentService) Health(ctx context.Context) service.HealthReport {
	args := m.Called(ctx)
	return args.Get(0).(service.HealthReport)
}

var _ service.DocumentService = (*MockDocumentService)(nil)
