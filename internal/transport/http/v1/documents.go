package v1

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
	"github.com/xiaot623/gogo/ragrouter/internal/ingestion"
)

// UploadDocument ingests the multipart field "file".
// POST /v1/documents/upload
func (h *Handler) UploadDocument(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return writeError(c, domain.NewValidationError("file is required", err))
	}
	maxBytes := h.service.MaxUploadBytes()
	if maxBytes > 0 && fh.Size > maxBytes {
		return writeError(c, domain.NewTooLargeError(fmt.Sprintf("File size (%d bytes) exceeds maximum (%d bytes)", fh.Size, maxBytes)))
	}

	f, err := fh.Open()
	if err != nil {
		return writeError(c, fmt.Errorf("open upload: %w", err))
	}
	defer f.Close()
	var r io.Reader = f
	if maxBytes > 0 {
		// One byte past the limit is enough for the size check downstream.
		r = io.LimitReader(f, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return writeError(c, fmt.Errorf("read upload: %w", err))
	}

	contentType := ingestion.ResolveContentType(fh.Header.Get(echo.HeaderContentType), fh.Filename)
	doc, err := h.service.UploadDocument(c.Request().Context(), fh.Filename, contentType, data)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, domain.UploadResponse{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     doc.Status,
		Message:    fmt.Sprintf("Document processed: %d chunks created", doc.ChunkCount),
	})
}

// ListDocuments lists uploaded documents, newest first.
// GET /v1/documents
func (h *Handler) ListDocuments(c echo.Context) error {
	docs, err := h.service.ListDocuments(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, domain.DocumentListResponse{Documents: docs, Total: len(docs)})
}

// GET /v1/documents/:document_id
func (h *Handler) GetDocument(c echo.Context) error {
	doc, err := h.service.GetDocument(c.Request().Context(), c.Param("document_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

// DeleteDocument removes a document and its vectors.
// DELETE /v1/documents/:document_id
func (h *Handler) DeleteDocument(c echo.Context) error {
	documentID := c.Param("document_id")
	if err := h.service.DeleteDocument(c.Request().Context(), documentID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": fmt.Sprintf("Document %s deleted", documentID)})
}
