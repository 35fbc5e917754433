package handler

import (
	"errors"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docvault/internal/model"
	"docvault/internal/service"
)

const dateLayout = "2006-01-02"

// ListDocuments godoc
// @Summary List documents
// @Description Lists documents, optionally for one employee or location.
// @Tags documents
// @Produce json
// @Param employee_id query string false "Employee owner"
// @Param location_id query string false "Location owner"
// @Param limit query int false "Page size" default(10)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {object} service.DocumentListResult
// @Failure 400 {object} errorPayload
// @Router /documents [get]
func ListDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return invalidInput(c, "limit", service.CodeInvalid, "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return invalidInput(c, "offset", service.CodeInvalid, "invalid offset")
		}

		f := service.ListFilter{Limit: limit, Offset: offset}
		if c.Query("employee_id") != "" || c.Query("location_id") != "" {
			owner, err := model.NewOwner(c.Query("employee_id"), c.Query("location_id"))
			if err != nil {
				return invalidInput(c, "owner", service.CodeInvalid, err.Error())
			}
			f.Owner = &owner
		}

		res, err := docSvc.List(c.UserContext(), f)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// UploadDocument godoc
// @Summary Upload a document
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document file"
// @Param document_type formData string true "Document type code or label"
// @Param employee_id formData string false "Employee owner"
// @Param location_id formData string false "Location owner"
// @Param notes formData string false "Notes"
// @Param signed_date formData string false "YYYY-MM-DD"
// @Param expiration_date formData string false "YYYY-MM-DD"
// @Success 201 {object} model.Document
// @Failure 400 {object} errorPayload
// @Failure 503 {object} errorPayload
// @Router /documents [post]
func UploadDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return invalidInput(c, "file", service.CodeRequired, "file is required")
		}

		rawType := strings.TrimSpace(c.FormValue("document_type"))
		if rawType == "" {
			return invalidInput(c, "document_type", service.CodeRequired, "document_type is required")
		}
		docType, ok := model.ParseDocumentType(rawType)
		if !ok {
			return invalidInput(c, "document_type", service.CodeInvalid, "unknown document type")
		}

		owner, err := model.NewOwner(c.FormValue("employee_id"), c.FormValue("location_id"))
		if err != nil {
			code := service.CodeInvalid
			if errors.Is(err, model.ErrOwnerRequired) {
				code = service.CodeRequired
			}
			return invalidInput(c, "owner", code, err.Error())
		}

		signed, err := parseDate(c.FormValue("signed_date"))
		if err != nil {
			return invalidInput(c, "signed_date", service.CodeInvalid, "signed_date must be YYYY-MM-DD")
		}
		expires, err := parseDate(c.FormValue("expiration_date"))
		if err != nil {
			return invalidInput(c, "expiration_date", service.CodeInvalid, "expiration_date must be YYYY-MM-DD")
		}

		var notes *string
		if n := strings.TrimSpace(c.FormValue("notes")); n != "" {
			notes = &n
		}

		f, err := fh.Open()
		if err != nil {
			return invalidInput(c, "file", service.CodeInvalid, "cannot open uploaded file")
		}
		defer f.Close()

		doc, err := docSvc.Upload(c.UserContext(), service.UploadInput{
			Owner:            owner,
			DocumentType:     docType,
			Body:             f,
			Size:             fh.Size,
			DeclaredMimeType: fh.Header.Get("Content-Type"),
			FileName:         fh.Filename,
			Notes:            notes,
			SignedDate:       signed,
			ExpirationDate:   expires,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// GetDocument godoc
// @Summary Get document metadata
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} model.Document
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [get]
func GetDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return invalidInput(c, "id", service.CodeInvalid, "invalid id format")
		}
		doc, err := docSvc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// DownloadDocument godoc
// @Summary Download document bytes
// @Description Streams the file, or redirects to a presigned URL for remote images in auto mode.
// @Tags documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param mode query string false "auto, stream or redirect" default(auto)
// @Success 200 {file} binary
// @Success 302
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /documents/{id}/download [get]
func DownloadDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return invalidInput(c, "id", service.CodeInvalid, "invalid id format")
		}
		mode, ok := service.ParseDownloadMode(c.Query("mode"))
		if !ok {
			return invalidInput(c, "mode", service.CodeInvalid, "mode must be auto, stream or redirect")
		}

		dl, err := docSvc.Download(c.UserContext(), id, mode)
		if err != nil {
			return writeServiceError(c, err)
		}
		if dl.URL != nil {
			c.Set(fiber.HeaderCacheControl, "no-store")
			return c.Redirect(dl.URL.URL, fiber.StatusFound)
		}

		disposition := "attachment"
		if dl.Document.IsImage() {
			disposition = "inline"
		}
		c.Set(fiber.HeaderContentType, dl.Document.MimeType)
		c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType(disposition, map[string]string{
			"filename": dl.Document.FileName,
		}))
		// The body is closed by the server once it has been written.
		return c.SendStream(dl.Body, int(dl.Document.FileSize))
	}
}

// DocumentURL godoc
// @Summary Issue a presigned URL
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Param ttl query int false "Validity in seconds"
// @Success 200 {object} storage.PresignedURL
// @Failure 409 {object} errorPayload
// @Router /documents/{id}/url [get]
func DocumentURL(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return invalidInput(c, "id", service.CodeInvalid, "invalid id format")
		}
		var ttl time.Duration
		if raw := c.Query("ttl"); raw != "" {
			secs, err := strconv.Atoi(raw)
			if err != nil {
				return invalidInput(c, "ttl", service.CodeInvalid, "ttl must be a number of seconds")
			}
			ttl = time.Duration(secs) * time.Second
		}

		u, err := docSvc.Presign(c.UserContext(), id, ttl)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.JSON(u)
	}
}

// DeleteDocument godoc
// @Summary Delete a document
// @Tags documents
// @Param id path string true "Document ID"
// @Success 204
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [delete]
func DeleteDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return invalidInput(c, "id", service.CodeInvalid, "invalid id format")
		}
		outcome, err := docSvc.Delete(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		if outcome == service.DeleteNotFound {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
