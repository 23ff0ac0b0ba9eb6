package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/siegzhong-maker/knowledge/internal/service"
)

type testAPIRequest struct {
	APIKey string `json:"apiKey"`
}

// GetSettings returns the masked settings.
// GET /api/settings
func (h *Handler) GetSettings(c echo.Context) error {
	view, err := h.service.Settings(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, view)
}

// UpdateSettings stores a new default key and/or model.
// PUT /api/settings
func (h *Handler) UpdateSettings(c echo.Context) error {
	var req service.SettingsUpdate
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if err := h.service.UpdateSettings(c.Request().Context(), req); err != nil {
		return writeError(c, err)
	}
	return h.GetSettings(c)
}

// TestAPI checks a key, or the stored default when none is given.
// POST /api/settings/test-api
func (h *Handler) TestAPI(c echo.Context) error {
	var req testAPIRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	result, err := h.service.TestConnection(c.Request().Context(), req.APIKey)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// APIStatus reports whether a default key is stored and reachable.
// GET /api/settings/api-status
func (h *Handler) APIStatus(c echo.Context) error {
	status, err := h.service.APIStatus(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, status)
}
