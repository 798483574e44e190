package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

const (
	// HeaderSessionID carries the resolved session of a streamed chat.
	HeaderSessionID = "X-Session-ID"

	mimeNDJSON = "application/x-ndjson"
)

// Chat answers a message, streamed as NDJSON or as a single JSON body.
// POST /v1/chat
func (h *Handler) Chat(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, domain.NewValidationError("invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	// Resolved up front so the header can carry it. On failure the turn
	// re-resolves and reports the fault in-stream.
	resolved := false
	if session, err := h.service.ResolveSession(ctx, req.SessionID); err == nil {
		req.SessionID = session.SessionID
		resolved = true
	}

	if !req.Streaming() {
		return h.chatJSON(c, req)
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, mimeNDJSON)
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("X-Accel-Buffering", "no")
	if resolved {
		resp.Header().Set(HeaderSessionID, req.SessionID)
	}
	resp.WriteHeader(http.StatusOK)

	emit := func(e domain.StreamEvent) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := e.Line()
		if err != nil {
			return err
		}
		if _, err := resp.Write(line); err != nil {
			return err
		}
		resp.Flush()
		return nil
	}

	// Faults were already delivered as the error event.
	_, _ = h.service.ProcessMessage(ctx, req, emit)
	return nil
}

// chatJSON drains the turn and returns the persisted assistant message.
func (h *Handler) chatJSON(c echo.Context, req domain.ChatRequest) error {
	msg, err := h.service.ProcessMessage(c.Request().Context(), req, func(domain.StreamEvent) error { return nil })
	if msg == nil {
		return writeErrorStatus(c, http.StatusBadGateway, err)
	}
	c.Response().Header().Set(HeaderSessionID, msg.SessionID)
	return c.JSON(http.StatusOK, msg)
}
