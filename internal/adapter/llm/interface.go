package llm

import "context"

// ChatClient defines the upstream operations the consultation core uses.
type ChatClient interface {
	// CreateChatCompletion sends a non-streaming request and returns the answer text.
	CreateChatCompletion(ctx context.Context, apiKey string, req *ChatCompletionRequest) (string, error)

	// OpenStream sends a streaming request. The caller must Close the stream.
	OpenStream(ctx context.Context, apiKey string, req *ChatCompletionRequest) (*Stream, error)

	// ListModels retrieves the list of available models.
	ListModels(ctx context.Context, apiKey string) ([]Model, error)
}

// Ensure Client implements ChatClient interface.
var _ ChatClient = (*Client)(nil)
