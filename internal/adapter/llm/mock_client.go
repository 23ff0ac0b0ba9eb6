package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

// MockClient is an offline ChatClient that answers from the request itself.
type MockClient struct{}

// NewMockClient creates a new mock chat client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements ChatClient interface.
var _ ChatClient = (*MockClient)(nil)

// CreateChatCompletion returns a mock answer.
func (m *MockClient) CreateChatCompletion(ctx context.Context, apiKey string, req *ChatCompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.NewUpstreamError("upstream request failed", err)
	}
	return m.generateMockResponse(req), nil
}

// OpenStream renders the mock answer as an upstream SSE body and parses it
// with the same Stream reader real responses go through.
func (m *MockClient) OpenStream(ctx context.Context, apiKey string, req *ChatCompletionRequest) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewUpstreamError("upstream request failed", err)
	}

	id := fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano())
	var body strings.Builder
	writeChunk := func(delta ChatMessage, finish string) {
		chunk := StreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: time.Now().Unix(),
			Model:   req.Model,
			Choices: []Choice{{Index: 0, Delta: &delta, FinishReason: finish}},
		}
		data, _ := json.Marshal(chunk)
		body.WriteString(dataPrefix)
		body.Write(data)
		body.WriteString("\n\n")
	}

	writeChunk(ChatMessage{Role: string(domain.RoleAssistant)}, "")
	for _, piece := range splitRunes(m.generateMockResponse(req), 8) {
		writeChunk(ChatMessage{Content: piece}, "")
	}
	writeChunk(ChatMessage{}, "stop")
	body.WriteString(dataPrefix + doneSentinel + "\n\n")

	return NewStream(ctx, io.NopCloser(strings.NewReader(body.String()))), nil
}

// ListModels returns a list of mock models.
func (m *MockClient) ListModels(ctx context.Context, apiKey string) ([]Model, error) {
	return []Model{
		{ID: domain.DefaultModel, Object: "model", OwnedBy: "mock"},
		{ID: "deepseek-reasoner", Object: "model", OwnedBy: "mock"},
	}, nil
}

// generateMockResponse produces a JSON object for classification prompts and
// a cited echo of the last user message otherwise.
func (m *MockClient) generateMockResponse(req *ChatCompletionRequest) string {
	if len(req.Messages) > 0 && req.Messages[0].Role == domain.RoleSystem &&
		strings.Contains(req.Messages[0].Content, `"index"`) {
		return `{"index": 1, "relevance": 50, "reason": "mock match"}`
	}

	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == domain.RoleUser {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}
	if lastUserMessage == "" {
		return "[MOCK] This is a mock response from the chat client."
	}

	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response [Page 1]", truncate(lastUserMessage, 100))
}

// splitRunes splits s into pieces of at most n runes.
func splitRunes(s string, n int) []string {
	runes := []rune(s)
	var pieces []string
	for i := 0; i < len(runes); i += n {
		end := min(i+n, len(runes))
		pieces = append(pieces, string(runes[i:end]))
	}
	return pieces
}

// truncate truncates a string to the given number of runes.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
