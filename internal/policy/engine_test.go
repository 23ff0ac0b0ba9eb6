package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), DefaultPolicy)
	require.NoError(t, err)
	return e
}

func TestDefaultPolicy(t *testing.T) {
	e := newTestEngine(t)
	user := domain.Message{Role: domain.RoleUser, Content: "怎么找合伙人"}
	assistant := domain.Message{Role: domain.RoleAssistant, Content: "先明确分工"}

	tests := []struct {
		name     string
		messages []domain.Message
		allow    bool
		reason   string
	}{
		{"single user message", []domain.Message{user}, true, ""},
		{"conversation", []domain.Message{user, assistant, user}, true, ""},
		{"empty", nil, false, "messages must not be empty"},
		{"bad role", []domain.Message{{Role: "tool", Content: "x"}, user}, false, "invalid message role"},
		{"ends with assistant", []domain.Message{user, assistant}, false, "last message must come from the user"},
		{"too long", []domain.Message{{Role: domain.RoleUser, Content: strings.Repeat("字", 20001)}}, false, "message too long"},
		{"too many", repeat(user, 101), false, "too many messages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewInput(domain.CallOpConsult, "deepseek-chat", tt.messages, "", false)
			d, err := e.Evaluate(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, tt.allow, d.Allow)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func repeat(m domain.Message, n int) []domain.Message {
	out := make([]domain.Message, n)
	for i := range out {
		out[i] = m
	}
	return out
}

func TestCheckReturnsValidationError(t *testing.T) {
	e := newTestEngine(t)
	err := e.Check(context.Background(), NewInput(domain.CallOpChat, "", nil, "", false))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	ok := e.Check(context.Background(), NewInput(domain.CallOpChat, "", []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, "", false))
	assert.NoError(t, ok)
}

func TestNewInput(t *testing.T) {
	in := NewInput(domain.CallOpConsult, "m", []domain.Message{
		{Role: domain.RoleUser, Content: "创业"},
		{Role: domain.RoleAssistant, Content: "abc"},
	}, "文档内容", true)

	assert.Equal(t, 2, in.MessageCount)
	assert.Equal(t, []string{"user", "assistant"}, in.Roles)
	assert.Equal(t, "assistant", in.LastRole)
	assert.Equal(t, 3, in.LongestChars)
	assert.Equal(t, 4, in.DocumentChars)
	assert.True(t, in.PerCallKey)
}

func TestLoadEngineFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.rego")
	content := `
package consult_policy

default decision = {"allow": false, "reason": "closed"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	e, err := LoadEngine(context.Background(), path)
	require.NoError(t, err)
	d, err := e.Evaluate(context.Background(), NewInput(domain.CallOpConsult, "", nil, "", false))
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Equal(t, "closed", d.Reason)

	_, err = LoadEngine(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)
}

func TestNewEngineRejectsBadPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package consult_policy\n\ndecision = {")
	assert.Error(t, err)
}
