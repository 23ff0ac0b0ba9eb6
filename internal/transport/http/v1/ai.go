package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

type citationsRequest struct {
	Text     string `json:"text"`
	DocID    string `json:"docId"`
	DocTitle string `json:"docTitle"`
}

type matchRequest struct {
	Question  string                   `json:"question"`
	Documents []domain.DocumentSummary `json:"documents"`
	APIKey    string                   `json:"userApiKey"`
}

type welcomeRequest struct {
	DocInfo domain.DocInfo `json:"docInfo"`
	APIKey  string         `json:"userApiKey"`
}

type contentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	APIKey  string `json:"userApiKey"`
}

// ExtractCitations parses page references out of a finished answer.
// POST /api/ai/citations
func (h *Handler) ExtractCitations(c echo.Context) error {
	var req citationsRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	citations := h.service.ExtractCitations(req.Text, req.DocID, req.DocTitle)
	return ok(c, map[string]any{"citations": citations})
}

// MatchDocument picks the candidate document best suited to a question.
// POST /api/ai/match
func (h *Handler) MatchDocument(c echo.Context) error {
	var req matchRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return fail(c, http.StatusBadRequest, "question is required")
	}
	result := h.service.MatchDocument(c.Request().Context(), req.Question, req.Documents, req.APIKey)
	return ok(c, result)
}

// Welcome generates a greeting for a document persona. It always succeeds.
// POST /api/ai/welcome
func (h *Handler) Welcome(c echo.Context) error {
	var req welcomeRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	message := h.service.WelcomeMessage(c.Request().Context(), req.DocInfo, req.APIKey)
	return ok(c, map[string]string{"message": message})
}

// Summary returns a short summary of content.
// POST /api/ai/summary
func (h *Handler) Summary(c echo.Context) error {
	var req contentRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	summary, err := h.service.Summarize(c.Request().Context(), req.Content, req.APIKey)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]string{"summary": summary})
}

// SuggestTags proposes up to five tags for content.
// POST /api/ai/suggest-tags
func (h *Handler) SuggestTags(c echo.Context) error {
	var req contentRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	tags, err := h.service.SuggestTags(c.Request().Context(), req.Content, req.APIKey)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"tags": tags})
}

// Analyze classifies a document. Failures degrade to a default analysis.
// POST /api/ai/analyze
func (h *Handler) Analyze(c echo.Context) error {
	var req contentRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return fail(c, http.StatusBadRequest, "content is required")
	}
	return ok(c, h.service.AnalyzeDocument(c.Request().Context(), req.Title, req.Content, req.APIKey))
}

// RecentCalls lists upstream call audit rows, newest first.
// GET /api/ai/calls?limit=N
func (h *Handler) RecentCalls(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fail(c, http.StatusBadRequest, "limit must be a number")
		}
		limit = n
	}
	calls, err := h.service.RecentCalls(c.Request().Context(), limit)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, map[string]any{"calls": calls})
}
