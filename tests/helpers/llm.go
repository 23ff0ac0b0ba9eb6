package helpers

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/siegzhong-maker/knowledge/internal/adapter/llm"
)

// FakeChatClient is a scriptable llm.ChatClient that records what it was
// asked.
type FakeChatClient struct {
	mu sync.Mutex

	// Answer is returned by CreateChatCompletion.
	Answer string
	// Deltas are streamed by OpenStream, one record each.
	Deltas []string
	// Err, when set, fails every call.
	Err error
	// StreamErr, when set, breaks the stream body after Deltas instead of
	// ending it with [DONE].
	StreamErr error

	Keys     []string
	Requests []*llm.ChatCompletionRequest
	Pings    int
}

var _ llm.ChatClient = (*FakeChatClient)(nil)

func (f *FakeChatClient) record(apiKey string, req *llm.ChatCompletionRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys = append(f.Keys, apiKey)
	f.Requests = append(f.Requests, req)
}

// Calls returns the number of completion and stream requests made.
func (f *FakeChatClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

// LastRequest returns the most recent request, or nil.
func (f *FakeChatClient) LastRequest() *llm.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Requests) == 0 {
		return nil
	}
	return f.Requests[len(f.Requests)-1]
}

func (f *FakeChatClient) CreateChatCompletion(ctx context.Context, apiKey string, req *llm.ChatCompletionRequest) (string, error) {
	f.record(apiKey, req)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Answer, nil
}

func (f *FakeChatClient) OpenStream(ctx context.Context, apiKey string, req *llm.ChatCompletionRequest) (*llm.Stream, error) {
	f.record(apiKey, req)
	if f.Err != nil {
		return nil, f.Err
	}
	if f.StreamErr != nil {
		body := strings.TrimSuffix(SSEBody(f.Deltas...), "data: [DONE]\n\n")
		r := io.MultiReader(strings.NewReader(body), failingReader{f.StreamErr})
		return llm.NewStream(ctx, io.NopCloser(r)), nil
	}
	return llm.NewStream(ctx, io.NopCloser(strings.NewReader(SSEBody(f.Deltas...)))), nil
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func (f *FakeChatClient) ListModels(ctx context.Context, apiKey string) ([]llm.Model, error) {
	f.mu.Lock()
	f.Keys = append(f.Keys, apiKey)
	f.Pings++
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return []llm.Model{{ID: "deepseek-chat", Object: "model"}}, nil
}

// SSEBody renders deltas as an upstream event stream ending in [DONE].
func SSEBody(deltas ...string) string {
	var b strings.Builder
	for _, d := range deltas {
		chunk := llm.StreamChunk{
			Object:  "chat.completion.chunk",
			Choices: []llm.Choice{{Delta: &llm.ChatMessage{Content: d}}},
		}
		data, _ := json.Marshal(chunk)
		b.WriteString("data: ")
		b.Write(data)
		b.WriteString("\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}
