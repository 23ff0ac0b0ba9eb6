package ws

import (
	"github.com/siegzhong-maker/knowledge/internal/domain"
	"github.com/siegzhong-maker/knowledge/internal/service"
)

// Message types from client to server
const (
	TypeConsult = "consult"
	TypeChat    = "chat"
	TypeCancel  = "cancel"
)

// Message types from server to client
const (
	TypeDelta = "delta"
	TypeDone  = "done"
	TypeError = "error"
)

// Error codes not derived from a domain error kind
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeDuplicate      = "duplicate_request"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
}

// ConsultMessage asks for a streamed consultation. Its body is the same as
// POST /api/ai/consult.
type ConsultMessage struct {
	BaseMessage
	service.ConsultRequest
}

// ChatMessage asks for a streamed reading-assistant answer.
type ChatMessage struct {
	BaseMessage
	service.ChatRequest
}

// DeltaMessage carries one content delta.
type DeltaMessage struct {
	BaseMessage
	Content string `json:"content"`
}

// DoneMessage ends a successful stream.
type DoneMessage struct {
	BaseMessage
	Citations []domain.Citation `json:"citations"`
}

// ErrorMessage ends a failed stream or rejects a message.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}
