// Package v1 provides the public HTTP handlers of the router.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
	"github.com/xiaot623/gogo/ragrouter/internal/service"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "ragrouter"

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the /v1 API on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/chat", h.Chat)
	g.GET("/sessions/:session_id/messages", h.GetSessionMessages)

	g.GET("/runs/:run_id", h.GetRun)
	g.GET("/runs/:run_id/events", h.GetRunEvents)

	g.POST("/documents/upload", h.UploadDocument)
	g.GET("/documents", h.ListDocuments)
	g.GET("/documents/:document_id", h.GetDocument)
	g.DELETE("/documents/:document_id", h.DeleteDocument)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.service.Version(),
		"service": ServiceName,
	})
}

// RequestValidator plugs struct-tag validation into echo's c.Validate.
type RequestValidator struct{}

func (RequestValidator) Validate(i interface{}) error {
	return domain.ValidateStruct(i)
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps a fault to its HTTP status.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch domain.CodeOf(err) {
	case domain.ErrorValidation:
		status = http.StatusBadRequest
	case domain.ErrorNotFound:
		status = http.StatusNotFound
	case domain.ErrorTooLarge:
		status = http.StatusRequestEntityTooLarge
	case domain.ErrorUpstream:
		status = http.StatusBadGateway
	}
	return writeErrorStatus(c, status, err)
}

func writeErrorStatus(c echo.Context, status int, err error) error {
	code := string(domain.CodeOf(err))
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
	}
	return c.JSON(status, errorResponse{Error: code, Message: err.Error()})
}
