package mocks

import (
	"context"
	"io"
	"time"

	"docvault/internal/model"
	"docvault/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Type() model.StorageType {
	args := m.Called()
	return args.Get(0).(model.StorageType)
}

func (m *MockBackend) Put(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) (storage.ObjectInfo, error) {
	args := m.Called(ctx, key, r, opt)
	if f, ok := args.Get(0).(func(context.Context, string, io.Reader, storage.PutObjectOptions) storage.ObjectInfo); ok {
		return f(ctx, key, r, opt), args.Error(1)
	}
	return args.Get(0).(storage.ObjectInfo), args.Error(1)
}

func (m *MockBackend) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, key)
	var rc io.ReadCloser
	if v := args.Get(0); v != nil {
		rc = v.(io.ReadCloser)
	}
	return rc, args.Get(1).(storage.ObjectInfo), args.Error(2)
}

func (m *MockBackend) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockBackend) PresignGet(ctx context.Context, key string, ttl time.Duration) (storage.PresignedURL, error) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(storage.PresignedURL), args.Error(1)
}

func (m *MockBackend) HealthCheck(ctx context.Context) storage.Health {
	args := m.Called(ctx)
	return args.Get(0).(storage.Health)
}

var _ storage.Backend = (*MockBackend)(nil)
