package llm

import (
	"strings"
	"time"

	"github.com/siegzhong-maker/knowledge/internal/observability"
)

// ModeMock selects the offline mock client.
const ModeMock = "MOCK"

// NewChatClient creates the client selected by mode: MOCK returns a
// MockClient, anything else a real Client.
func NewChatClient(mode, baseURL string, timeout time.Duration) ChatClient {
	if strings.EqualFold(mode, ModeMock) {
		observability.Logger().Info("llm mode MOCK, using mock chat client")
		return NewMockClient()
	}
	return NewClient(baseURL, timeout)
}
