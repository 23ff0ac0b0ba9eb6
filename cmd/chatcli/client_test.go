package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siegzhong-maker/knowledge/internal/config"
	"github.com/siegzhong-maker/knowledge/internal/domain"
	"github.com/siegzhong-maker/knowledge/internal/keyring"
	"github.com/siegzhong-maker/knowledge/internal/service"
	"github.com/siegzhong-maker/knowledge/internal/transport/ws"
	"github.com/siegzhong-maker/knowledge/tests/helpers"
)

func startServer(t *testing.T) (string, *helpers.FakeChatClient) {
	t.Helper()
	st := helpers.NewTestSQLiteStore(t)
	cipher, err := keyring.NewCipher("test-secret")
	require.NoError(t, err)
	require.NoError(t, keyring.SaveKey(context.Background(), st, cipher, "sk-stored-000000"))

	fake := &helpers.FakeChatClient{}
	svc := service.New(st, cipher, fake, nil, nil, nil)
	cfg := config.ServerConfig{
		WSReadTimeout:  5 * time.Second,
		WSWriteTimeout: 5 * time.Second,
		WSPingInterval: time.Minute,
		WSMaxMessage:   1 << 20,
	}
	srv := httptest.NewServer(ws.NewServer(cfg, ws.NewHub(), svc))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), fake
}

func TestAskKeepsHistory(t *testing.T) {
	addr, fake := startServer(t)
	fake.Deltas = []string{"先做", "用户访谈[手册 - 第2页]，理解真实需求。"}

	client, err := NewClient(addr, service.ConsultRequest{
		DocumentText: "正文",
		DocInfo:      &domain.DocInfo{Title: "手册"},
	})
	require.NoError(t, err)
	defer client.Close()

	var out strings.Builder
	citations, err := client.Ask("怎么找用户", &out)
	require.NoError(t, err)
	assert.Equal(t, "先做用户访谈[手册 - 第2页]，理解真实需求。", out.String())
	require.Len(t, citations, 1)
	assert.Equal(t, 2, citations[0].Page)

	_, err = client.Ask("然后呢", &strings.Builder{})
	require.NoError(t, err)

	req := fake.LastRequest()
	require.NotNil(t, req)
	// system + user + assistant + user
	require.Len(t, req.Messages, 4)
	assert.Equal(t, domain.RoleAssistant, req.Messages[2].Role)
	assert.Equal(t, "然后呢", req.Messages[3].Content)

	client.Reset()
	_, err = client.Ask("重新开始", &strings.Builder{})
	require.NoError(t, err)
	assert.Len(t, fake.LastRequest().Messages, 2)
}

func TestAskReportsServerError(t *testing.T) {
	addr, fake := startServer(t)
	fake.Err = domain.NewAuthenticationError("invalid API key")

	client, err := NewClient(addr, service.ConsultRequest{})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Ask("hi", &strings.Builder{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication")
}
