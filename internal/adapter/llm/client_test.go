package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

func userRequest(content string) *ChatCompletionRequest {
	return &ChatCompletionRequest{
		Model:       "deepseek-chat",
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: content}},
		Temperature: 0.5,
		MaxTokens:   100,
	}
}

func TestClientCreateChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected authorization: %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["stream"] != false || body["max_tokens"] != float64(100) {
			t.Fatalf("unexpected body: %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"deepseek-chat","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	text, err := client.CreateChatCompletion(context.Background(), "sk-test", userRequest("hello"))
	if err != nil {
		t.Fatalf("CreateChatCompletion failed: %v", err)
	}
	if text != "hi" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestClientStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    domain.ErrorKind
		message string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, domain.KindAuthentication, "API key invalid"},
		{"rate limited", http.StatusTooManyRequests, ``, domain.KindRateLimit, "rate limited"},
		{"upstream message", http.StatusBadRequest, `{"error":{"message":"context too long","type":"invalid_request_error"}}`, domain.KindUpstream, "context too long"},
		{"bare status", http.StatusBadGateway, `bad`, domain.KindUpstream, "upstream request failed: 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()
			client := NewClient(server.URL, time.Second)

			_, err := client.CreateChatCompletion(context.Background(), "sk-test", userRequest("hello"))
			assertKind(t, err, tt.kind, tt.message)

			stream, err := client.OpenStream(context.Background(), "sk-test", userRequest("hello"))
			if stream != nil {
				t.Fatalf("expected nil stream on error")
			}
			assertKind(t, err, tt.kind, tt.message)
		})
	}
}

func assertKind(t *testing.T, err error, kind domain.ErrorKind, message string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, got, err)
	}
	if message != "" && !strings.Contains(err.Error(), message) {
		t.Fatalf("expected message containing %q, got %q", message, err.Error())
	}
}

func TestClientTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, time.Second)
	_, err := client.CreateChatCompletion(context.Background(), "sk-test", userRequest("hello"))
	assertKind(t, err, domain.KindUpstream, "upstream request failed")
}

func TestClientOpenStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Fatalf("missing event-stream accept header")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["stream"] != true {
			t.Fatalf("expected stream=true, got %+v", body["stream"])
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	stream, err := client.OpenStream(context.Background(), "sk-test", userRequest("hello"))
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}

	var deltas []string
	for delta, err := range stream.Deltas() {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		deltas = append(deltas, delta)
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Fatalf("unexpected deltas: %q", deltas)
	}
}

func TestClientListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"deepseek-chat","object":"model","owned_by":"deepseek"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", time.Second)
	models, err := client.ListModels(context.Background(), "sk-test")
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 1 || models[0].ID != "deepseek-chat" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestClientListModelsUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.ListModels(context.Background(), "sk-test")
	assertKind(t, err, domain.KindAuthentication, "")
}

func TestMockClient(t *testing.T) {
	client := NewChatClient("mock", "", time.Second)

	text, err := client.CreateChatCompletion(context.Background(), "", userRequest("hello"))
	if err != nil {
		t.Fatalf("CreateChatCompletion failed: %v", err)
	}
	if !strings.Contains(text, "hello") {
		t.Fatalf("expected echo, got %q", text)
	}

	stream, err := client.OpenStream(context.Background(), "", userRequest("合伙人怎么分股"))
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	var joined string
	for delta, err := range stream.Deltas() {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		joined += delta
	}
	if joined != NewMockClient().generateMockResponse(userRequest("合伙人怎么分股")) {
		t.Fatalf("stream does not reassemble mock answer: %q", joined)
	}

	models, err := client.ListModels(context.Background(), "")
	if err != nil || len(models) == 0 {
		t.Fatalf("ListModels failed: %v %+v", err, models)
	}
}
