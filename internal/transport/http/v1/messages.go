package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// GetSessionMessages retrieves messages for a session.
// GET /v1/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	sessionID := c.Param("session_id")
	limit := 0
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}

	resp, err := h.service.GetMessages(c.Request().Context(), sessionID, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetRun retrieves the audit record of a chat turn.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// GetRunEvents retrieves events for a run.
// GET /v1/runs/:run_id/events
func (h *Handler) GetRunEvents(c echo.Context) error {
	runID := c.Param("run_id")
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}

	events, err := h.service.GetRunEvents(c.Request().Context(), runID, afterTs, limit)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events":   events,
		"has_more": limit > 0 && len(events) == limit,
	})
}
