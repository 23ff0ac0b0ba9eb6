package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siegzhong-maker/knowledge/internal/config"
	"github.com/siegzhong-maker/knowledge/internal/keyring"
	"github.com/siegzhong-maker/knowledge/internal/policy"
	"github.com/siegzhong-maker/knowledge/internal/service"
	"github.com/siegzhong-maker/knowledge/tests/helpers"
)

type frame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Content   string `json:"content"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Citations []struct {
		Page    int    `json:"page"`
		DocName string `json:"docName"`
	} `json:"citations"`
}

func newTestWS(t *testing.T) (*websocket.Conn, *helpers.FakeChatClient, *Hub) {
	t.Helper()
	ctx := context.Background()

	st := helpers.NewTestSQLiteStore(t)
	cipher, err := keyring.NewCipher("test-secret")
	require.NoError(t, err)
	require.NoError(t, keyring.SaveKey(ctx, st, cipher, "sk-stored-000000"))
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)

	client := &helpers.FakeChatClient{}
	svc := service.New(st, cipher, client, engine, nil, nil)

	hub := NewHub()
	cfg := config.ServerConfig{
		WSReadTimeout:  5 * time.Second,
		WSWriteTimeout: 5 * time.Second,
		WSPingInterval: time.Minute,
		WSMaxMessage:   1 << 20,
	}
	srv := httptest.NewServer(NewServer(cfg, hub, svc))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, client, hub
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestConsultStreamsDeltasThenDone(t *testing.T) {
	conn, client, hub := newTestWS(t)
	client.Deltas = []string{"建议先访谈用户", "[创业手册 - 第3页]", "，再做原型。"}

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":       "consult",
		"request_id": "r1",
		"messages":   []map[string]string{{"role": "user", "content": "怎么找用户"}},
		"pdfContent": "正文",
		"docId":      "doc-1",
		"docInfo":    map[string]string{"title": "创业手册"},
	}))

	var got []string
	for range client.Deltas {
		f := readFrame(t, conn)
		require.Equal(t, TypeDelta, f.Type)
		assert.Equal(t, "r1", f.RequestID)
		got = append(got, f.Content)
	}
	assert.Equal(t, client.Deltas, got)

	done := readFrame(t, conn)
	require.Equal(t, TypeDone, done.Type)
	require.Len(t, done.Citations, 1)
	assert.Equal(t, 3, done.Citations[0].Page)
	assert.Equal(t, "创业手册", done.Citations[0].DocName)
	assert.Equal(t, 1, hub.Count())
}

func TestConsultRejectedIsErrorFrame(t *testing.T) {
	conn, client, _ := newTestWS(t)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":       "consult",
		"request_id": "r2",
		"messages":   []map[string]string{},
	}))

	f := readFrame(t, conn)
	assert.Equal(t, TypeError, f.Type)
	assert.Equal(t, "r2", f.RequestID)
	assert.Equal(t, "validation", f.Code)
	assert.Zero(t, client.Calls())
}

func TestInvalidMessages(t *testing.T) {
	conn, _, _ := newTestWS(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := readFrame(t, conn)
	assert.Equal(t, ErrorCodeInvalidMessage, f.Code)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe"}))
	f = readFrame(t, conn)
	assert.Equal(t, ErrorCodeInvalidMessage, f.Code)
	assert.Contains(t, f.Message, "subscribe")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "cancel", "request_id": "nope"}))
	f = readFrame(t, conn)
	assert.Equal(t, ErrorCodeInvalidMessage, f.Code)
}

func TestHubUnregisterOnClientClose(t *testing.T) {
	conn, _, hub := newTestWS(t)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
