package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/siegzhong-maker/knowledge/internal/domain"
	"github.com/siegzhong-maker/knowledge/internal/service"
	"github.com/siegzhong-maker/knowledge/internal/transport/ws"
)

// Client is a WebSocket consultation client that keeps the conversation.
type Client struct {
	conn    *websocket.Conn
	base    service.ConsultRequest
	history []domain.Message
}

// NewClient connects to the server. base supplies the document, persona and
// key sent with every question.
func NewClient(addr string, base service.ConsultRequest) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Client{conn: conn, base: base}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// Reset forgets the conversation so far.
func (c *Client) Reset() {
	c.history = nil
}

// Ask sends question with the conversation so far and copies the streamed
// answer to out. The answer joins the history only when the stream completes.
func (c *Client) Ask(question string, out io.Writer) ([]domain.Citation, error) {
	requestID := "req_" + uuid.New().String()[:8]
	messages := append(append([]domain.Message(nil), c.history...), domain.Message{Role: domain.RoleUser, Content: question})

	req := c.base
	req.Messages = messages
	msg := ws.ConsultMessage{
		BaseMessage:    ws.BaseMessage{Type: ws.TypeConsult, Ts: time.Now().UnixMilli(), RequestID: requestID},
		ConsultRequest: req,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("write consult: %w", err)
	}

	var answer []byte
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}

		var frame struct {
			ws.BaseMessage
			Content   string            `json:"content"`
			Code      string            `json:"code"`
			Message   string            `json:"message"`
			Citations []domain.Citation `json:"citations"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("unmarshal frame: %w", err)
		}
		if frame.RequestID != requestID {
			continue
		}

		switch frame.Type {
		case ws.TypeDelta:
			answer = append(answer, frame.Content...)
			io.WriteString(out, frame.Content)
		case ws.TypeDone:
			c.history = append(messages, domain.Message{Role: domain.RoleAssistant, Content: string(answer)})
			return frame.Citations, nil
		case ws.TypeError:
			return nil, fmt.Errorf("%s: %s", frame.Code, frame.Message)
		}
	}
}
