package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/siegzhong-maker/knowledge/internal/domain"
	"github.com/siegzhong-maker/knowledge/internal/observability"
	"github.com/siegzhong-maker/knowledge/internal/service"
)

// Consult streams a consultation answer as SSE.
// POST /api/ai/consult
func (h *Handler) Consult(c echo.Context) error {
	var req service.ConsultRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if len(req.Messages) == 0 {
		return fail(c, http.StatusBadRequest, "messages is required")
	}

	relay, err := h.service.Consult(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return h.stream(c, relay)
}

// Chat streams a reading-assistant answer as SSE.
// POST /api/ai/chat
func (h *Handler) Chat(c echo.Context) error {
	var req service.ChatRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if len(req.Messages) == 0 {
		return fail(c, http.StatusBadRequest, "messages is required")
	}

	relay, err := h.service.Chat(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return h.stream(c, relay)
}

// stream re-frames relay deltas as data: {"content":...} records, ending with
// data: [DONE] or, on a mid-stream failure, a single data: {"error":...}.
func (h *Handler) stream(c echo.Context, relay *service.Relay) error {
	defer relay.Close()
	logger := observability.LoggerFromContext(c.Request().Context())

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return fail(c, http.StatusInternalServerError, "streaming not supported")
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		delta, err := relay.Next()
		if errors.Is(err, io.EOF) {
			if _, err := io.WriteString(c.Response(), "data: [DONE]\n\n"); err == nil {
				flusher.Flush()
			}
			return nil
		}
		if err != nil {
			// Headers are sent; the failure can only travel in-band.
			logger.Warn("stream failed", "error", err)
			_ = writeRecord(c.Response(), domain.StreamChunk{Error: err.Error()})
			flusher.Flush()
			return nil
		}
		if err := writeRecord(c.Response(), domain.StreamChunk{Content: delta}); err != nil {
			logger.Info("client went away", "error", err)
			return nil
		}
		flusher.Flush()
	}
}

func writeRecord(w io.Writer, chunk domain.StreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
