// Package llm provides the OpenAI-compatible chat-completion client used for
// every upstream call.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// Client is the upstream chat-completion client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new upstream client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ChatCompletionRequest is the body sent to /v1/chat/completions.
type ChatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Stream      bool             `json:"stream"`
}

// ChatMessage is a message as returned by the upstream API.
type ChatMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChatCompletionResponse is the non-streaming response.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice represents a completion choice.
type Choice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is a single upstream SSE record.
type StreamChunk struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError represents the error details.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code,omitempty"`
}

// Model represents a model from the models list.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// ModelsResponse represents the response from /v1/models.
type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// CreateChatCompletion sends a non-streaming request and returns the first
// choice's message text.
func (c *Client) CreateChatCompletion(ctx context.Context, apiKey string, req *ChatCompletionRequest) (string, error) {
	req.Stream = false

	resp, err := c.post(ctx, apiKey, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewUpstreamError("failed to read upstream response", err)
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", domain.NewUpstreamError("invalid upstream response", err)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message == nil {
		return "", domain.NewUpstreamError("upstream response has no choices", nil)
	}

	return result.Choices[0].Message.Content, nil
}

// OpenStream sends a streaming request. The status is checked before the body
// is handed to the returned Stream, which the caller must Close.
func (c *Client) OpenStream(ctx context.Context, apiKey string, req *ChatCompletionRequest) (*Stream, error) {
	req.Stream = true

	resp, err := c.post(ctx, apiKey, req)
	if err != nil {
		return nil, err
	}

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return NewStream(ctx, resp.Body), nil
}

// ListModels retrieves the list of available models. It doubles as the
// cheapest authenticated call for connection tests.
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, domain.NewUpstreamError("failed to create request", err)
	}
	setHeaders(httpReq, apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.NewUpstreamError("upstream request failed", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, domain.NewUpstreamError("invalid upstream response", err)
	}

	return result.Data, nil
}

func (c *Client) post(ctx context.Context, apiKey string, req *ChatCompletionRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.NewUpstreamError("failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewUpstreamError("failed to create request", err)
	}
	setHeaders(httpReq, apiKey)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.NewUpstreamError("upstream request failed", err)
	}
	return resp, nil
}

// checkStatus maps non-2xx responses onto the error taxonomy.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return domain.NewAuthenticationError("API key invalid, please reconfigure it")
	case http.StatusTooManyRequests:
		return domain.NewRateLimitError("rate limited by upstream, retry later")
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var errResp ErrorResponse
	if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil && errResp.Error.Message != "" {
		return domain.NewUpstreamError(errResp.Error.Message, nil)
	}
	return domain.NewUpstreamError(fmt.Sprintf("upstream request failed: %d", resp.StatusCode), nil)
}

// setHeaders sets common request headers.
func setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}
