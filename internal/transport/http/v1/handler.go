// Package v1 provides the JSON and SSE handlers of the consultant API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/siegzhong-maker/knowledge/internal/domain"
	"github.com/siegzhong-maker/knowledge/internal/observability"
	"github.com/siegzhong-maker/knowledge/internal/service"
)

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

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Streaming
	e.POST("/api/ai/consult", h.Consult)
	e.POST("/api/ai/chat", h.Chat)

	// Post-processing and one-shot completions
	e.POST("/api/ai/citations", h.ExtractCitations)
	e.POST("/api/ai/match", h.MatchDocument)
	e.POST("/api/ai/welcome", h.Welcome)
	e.POST("/api/ai/summary", h.Summary)
	e.POST("/api/ai/suggest-tags", h.SuggestTags)
	e.POST("/api/ai/analyze", h.Analyze)
	e.GET("/api/ai/calls", h.RecentCalls)

	// Settings
	e.GET("/api/settings", h.GetSettings)
	e.PUT("/api/settings", h.UpdateSettings)
	e.POST("/api/settings/test-api", h.TestAPI)
	e.GET("/api/settings/api-status", h.APIStatus)
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, envelope{Success: false, Message: message})
}

// writeError maps a domain error kind to a status code.
func writeError(c echo.Context, err error) error {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(c.Request().Context()).Error("request failed", "error", err)
	}
	return fail(c, status, err.Error())
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindConfiguration:
		return http.StatusInternalServerError
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthentication:
		return http.StatusUnauthorized
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}
