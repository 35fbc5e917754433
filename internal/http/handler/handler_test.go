package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docvault/internal/model"
	"docvault/internal/service"
	serviceMocks "docvault/internal/service/mocks"
	"docvault/internal/storage"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	t.Run("healthy without service", func(t *testing.T) {
		app := fiber.New()
		app.Get("/health", HealthCheck(db, nil))
		dbMock.ExpectPing().WillReturnError(nil)

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("database down", func(t *testing.T) {
		app := fiber.New()
		app.Get("/health", HealthCheck(db, nil))
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})

	t.Run("remote degraded still serves", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockDocumentService)
		app := fiber.New()
		app.Get("/health", HealthCheck(db, mockSvc))
		dbMock.ExpectPing().WillReturnError(nil)
		mockSvc.On("Health", mock.Anything).Return(service.HealthReport{
			Status: storage.HealthDegraded,
			Backends: map[model.StorageType]storage.Health{
				model.StorageLocal:  {Status: storage.HealthHealthy},
				model.StorageRemote: {Status: storage.HealthDegraded, Reason: "transient"},
			},
		}).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "degraded", body["status"])
		assert.Contains(t, body["backends"], "remote")
		mockSvc.AssertExpectations(t)
	})

	t.Run("all backends degraded", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockDocumentService)
		app := fiber.New()
		app.Get("/health", HealthCheck(db, mockSvc))
		dbMock.ExpectPing().WillReturnError(nil)
		mockSvc.On("Health", mock.Anything).Return(service.HealthReport{
			Status: storage.HealthDegraded,
			Backends: map[model.StorageType]storage.Health{
				model.StorageLocal: {Status: storage.HealthDegraded, Reason: "read_only"},
			},
		}).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestLiveness(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", Liveness())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListDocuments(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Get("/documents", ListDocuments(mockSvc))

	t.Run("success", func(t *testing.T) {
		expectedRes := &service.DocumentListResult{
			Items: []model.Document{{ID: uuid.New().String(), FileName: "test.pdf"}},
			Total: 1,
		}
		mockSvc.On("List", mock.Anything, service.ListFilter{Limit: 10, Offset: 0}).Return(expectedRes, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents?limit=10&offset=0", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.DocumentListResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, 1, result.Total)
		mockSvc.AssertExpectations(t)
	})

	t.Run("filter by employee", func(t *testing.T) {
		owner := model.Owner{Kind: model.OwnerEmployee, ID: "emp-7"}
		mockSvc.On("List", mock.Anything, service.ListFilter{Owner: &owner, Limit: 10}).
			Return(&service.DocumentListResult{}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents?employee_id=emp-7", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("both owners", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents?employee_id=a&location_id=b", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "owner", decodeError(t, resp).Error.Field)
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/documents?limit=abc", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "INVALID_INPUT", body.Error.Code)
		assert.Equal(t, "limit", body.Error.Field)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, service.ListFilter{Limit: 10}).Return(nil, errors.New("service error")).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

type uploadForm struct {
	fields   map[string]string
	fileName string
	content  []byte
}

func (f uploadForm) request(t *testing.T) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range f.fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if f.fileName != "" {
		part, err := writer.CreateFormFile("file", f.fileName)
		require.NoError(t, err)
		part.Write(f.content)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Post("/documents", UploadDocument(mockSvc))

	valid := func() uploadForm {
		return uploadForm{
			fields: map[string]string{
				"document_type": "Medical License",
				"employee_id":   "emp-1",
				"signed_date":   "2026-01-02",
			},
			fileName: "license.pdf",
			content:  []byte("%PDF-1.4 test"),
		}
	}

	t.Run("success", func(t *testing.T) {
		expectedDoc := &model.Document{ID: uuid.New().String(), FileName: "license.pdf"}
		mockSvc.On("Upload", mock.Anything, mock.MatchedBy(func(in service.UploadInput) bool {
			return in.FileName == "license.pdf" &&
				in.DocumentType == model.DocMedicalLicense &&
				in.Owner == model.Owner{Kind: model.OwnerEmployee, ID: "emp-1"} &&
				in.Size == 13 &&
				in.SignedDate != nil && in.SignedDate.Day() == 2 &&
				in.ExpirationDate == nil && in.Notes == nil
		})).Return(expectedDoc, nil).Once()

		resp, _ := app.Test(valid().request(t))

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var result model.Document
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, expectedDoc.ID, result.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("no file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "file", body.Error.Field)
		assert.Equal(t, service.CodeRequired, body.Error.Reason)
	})

	cases := []struct {
		name   string
		mutate func(*uploadForm)
		field  string
		reason string
	}{
		{"missing type", func(f *uploadForm) { delete(f.fields, "document_type") }, "document_type", service.CodeRequired},
		{"unknown type", func(f *uploadForm) { f.fields["document_type"] = "passport" }, "document_type", service.CodeInvalid},
		{"no owner", func(f *uploadForm) { delete(f.fields, "employee_id") }, "owner", service.CodeRequired},
		{"two owners", func(f *uploadForm) { f.fields["location_id"] = "loc-1" }, "owner", service.CodeRequired},
		{"bad date", func(f *uploadForm) { f.fields["expiration_date"] = "02/01/2026" }, "expiration_date", service.CodeInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := valid()
			tc.mutate(&form)

			resp, _ := app.Test(form.request(t))

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decodeError(t, resp)
			assert.Equal(t, "INVALID_INPUT", body.Error.Code)
			assert.Equal(t, tc.field, body.Error.Field)
			assert.Equal(t, tc.reason, body.Error.Reason)
		})
	}

	t.Run("service validation error", func(t *testing.T) {
		mockSvc.On("Upload", mock.Anything, mock.Anything).Return(nil, &service.ValidationError{
			Field: "file", Code: service.CodeTooLarge, Message: "file exceeds limit",
		}).Once()

		resp, _ := app.Test(valid().request(t))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, service.CodeTooLarge, decodeError(t, resp).Error.Reason)
		mockSvc.AssertExpectations(t)
	})

	t.Run("storage unavailable", func(t *testing.T) {
		mockSvc.On("Upload", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("upload to storage: %w", storage.ErrTransient)).Once()

		resp, _ := app.Test(valid().request(t))

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "STORAGE_UNAVAILABLE", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("orphaned object", func(t *testing.T) {
		mockSvc.On("Upload", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: rollback failed", service.ErrReconciliationRequired)).Once()

		resp, _ := app.Test(valid().request(t))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "RECONCILIATION_REQUIRED", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestGetDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Get("/documents/:id", GetDocument(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.New().String()
		expectedDoc := &model.Document{ID: id, FileName: "test.txt"}
		mockSvc.On("Get", mock.Anything, id).Return(expectedDoc, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result model.Document
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, id, result.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Get", mock.Anything, id).Return(nil, service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/documents/invalid-uuid", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "id", decodeError(t, resp).Error.Field)
	})

	t.Run("service error", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Get", mock.Anything, id).Return(nil, errors.New("db error")).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "INTERNAL_ERROR", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestDownloadDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Get("/documents/:id/download", DownloadDocument(mockSvc))

	t.Run("stream", func(t *testing.T) {
		id := uuid.New().String()
		doc := &model.Document{ID: id, FileName: "report.pdf", MimeType: "application/pdf", FileSize: 5}
		mockSvc.On("Download", mock.Anything, id, service.DownloadAuto).Return(&service.Download{
			Document: doc,
			Body:     io.NopCloser(strings.NewReader("hello")),
		}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/download", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
		assert.Equal(t, "attachment; filename=report.pdf", resp.Header.Get("Content-Disposition"))
		data, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "hello", string(data))
		mockSvc.AssertExpectations(t)
	})

	t.Run("inline image", func(t *testing.T) {
		id := uuid.New().String()
		doc := &model.Document{ID: id, FileName: "badge.png", MimeType: "image/png", FileSize: 3}
		mockSvc.On("Download", mock.Anything, id, service.DownloadStream).Return(&service.Download{
			Document: doc,
			Body:     io.NopCloser(strings.NewReader("png")),
		}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/download?mode=stream", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Disposition"), "inline"))
		mockSvc.AssertExpectations(t)
	})

	t.Run("redirect", func(t *testing.T) {
		id := uuid.New().String()
		u := &storage.PresignedURL{URL: "https://bucket.example.com/k?sig=1", ExpiresAt: time.Now().Add(time.Minute)}
		mockSvc.On("Download", mock.Anything, id, service.DownloadAuto).Return(&service.Download{
			Document: &model.Document{ID: id, MimeType: "image/jpeg"},
			URL:      u,
		}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/download", nil))

		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, u.URL, resp.Header.Get("Location"))
		mockSvc.AssertExpectations(t)
	})

	t.Run("unknown mode", func(t *testing.T) {
		id := uuid.New().String()
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/download?mode=fax", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "mode", decodeError(t, resp).Error.Field)
	})

	t.Run("diverged", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Download", mock.Anything, id, service.DownloadAuto).
			Return(nil, fmt.Errorf("%w: missing_object", service.ErrReconciliationRequired)).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/download", nil))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "RECONCILIATION_REQUIRED", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestDocumentURL(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Get("/documents/:id/url", DocumentURL(mockSvc))

	t.Run("explicit ttl", func(t *testing.T) {
		id := uuid.New().String()
		expires := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
		mockSvc.On("Presign", mock.Anything, id, time.Minute).
			Return(storage.PresignedURL{URL: "https://signed", ExpiresAt: expires}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/url?ttl=60", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body storage.PresignedURL
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "https://signed", body.URL)
		assert.True(t, expires.Equal(body.ExpiresAt))
		mockSvc.AssertExpectations(t)
	})

	t.Run("default ttl", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Presign", mock.Anything, id, time.Duration(0)).
			Return(storage.PresignedURL{URL: "https://signed"}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/url", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("bad ttl", func(t *testing.T) {
		id := uuid.New().String()
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/url?ttl=soon", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "ttl", decodeError(t, resp).Error.Field)
	})

	t.Run("local document", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Presign", mock.Anything, id, time.Duration(0)).
			Return(storage.PresignedURL{}, fmt.Errorf("presign: %w", storage.ErrUnsupported)).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/url", nil))

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "PRESIGN_UNSUPPORTED", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestDeleteDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Delete("/documents/:id", DeleteDocument(mockSvc))

	for _, outcome := range []service.DeleteOutcome{service.DeleteDeleted, service.DeleteObjectMissing} {
		t.Run(string(outcome), func(t *testing.T) {
			id := uuid.New().String()
			mockSvc.On("Delete", mock.Anything, id).Return(outcome, nil).Once()

			req := httptest.NewRequest(http.MethodDelete, "/documents/"+id, nil)
			resp, _ := app.Test(req)

			assert.Equal(t, http.StatusNoContent, resp.StatusCode)
			mockSvc.AssertExpectations(t)
		})
	}

	t.Run("not found", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Delete", mock.Anything, id).Return(service.DeleteNotFound, nil).Once()

		req := httptest.NewRequest(http.MethodDelete, "/documents/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("backend refused", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Delete", mock.Anything, id).
			Return(service.DeleteOutcome(""), fmt.Errorf("delete object: %w", storage.ErrAccessDenied)).Once()

		req := httptest.NewRequest(http.MethodDelete, "/documents/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestRouting(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
	})

	mockSvc := new(serviceMocks.MockDocumentService)
	RegisterRoutes(app, nil, mockSvc)

	t.Run("not found route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/non-existent", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, resp).Error.Code)
	})
}
