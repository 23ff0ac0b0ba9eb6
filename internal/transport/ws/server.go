// Package ws streams consultations to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/siegzhong-maker/knowledge/internal/config"
	"github.com/siegzhong-maker/knowledge/internal/domain"
	"github.com/siegzhong-maker/knowledge/internal/observability"
	"github.com/siegzhong-maker/knowledge/internal/service"
)

// Server handles WebSocket connections.
type Server struct {
	cfg      config.ServerConfig
	hub      *Hub
	service  *service.Service
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg config.ServerConfig, h *Hub, svc *service.Service) *Server {
	return &Server{
		cfg:     cfg,
		hub:     h,
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// No end-user auth; same policy as the CORS-open HTTP API.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and starts the connection pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.Logger().Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)
	ws.SetReadLimit(s.cfg.WSMaxMessage)

	go s.writePump(conn)
	go s.readPump(conn)
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *Connection) {
	defer s.hub.Unregister(conn)

	conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				observability.Logger().Warn("websocket read failed", "conn_id", conn.ID, "error", err)
			}
			return
		}
		s.handleMessage(conn, message)
	}
}

// writePump writes queued messages and keeps the connection alive.
func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.cfg.WSPingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				observability.Logger().Warn("websocket write failed", "conn_id", conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-conn.Done():
			return
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *Connection, data []byte) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(context.Background(), conn, "", ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch base.Type {
	case TypeConsult:
		var msg ConsultMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(context.Background(), conn, base.RequestID, ErrorCodeInvalidMessage, "invalid consult message")
			return
		}
		s.start(conn, msg.RequestID, func(ctx context.Context) (*service.Relay, error) {
			return s.service.Consult(ctx, msg.ConsultRequest)
		}, func(answer string) []domain.Citation {
			title := ""
			if msg.DocInfo != nil {
				title = msg.DocInfo.Title
			}
			return s.service.ExtractCitations(answer, msg.DocID, title)
		})
	case TypeChat:
		var msg ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(context.Background(), conn, base.RequestID, ErrorCodeInvalidMessage, "invalid chat message")
			return
		}
		s.start(conn, msg.RequestID, func(ctx context.Context) (*service.Relay, error) {
			return s.service.Chat(ctx, msg.ChatRequest)
		}, nil)
	case TypeCancel:
		if !conn.cancel(base.RequestID) {
			s.sendError(context.Background(), conn, base.RequestID, ErrorCodeInvalidMessage, "no such request in flight")
		}
	default:
		s.sendError(context.Background(), conn, base.RequestID, ErrorCodeInvalidMessage, "unknown message type: "+base.Type)
	}
}

// start runs one streamed request in its own goroutine so the read pump
// stays free for cancel messages.
func (s *Server) start(conn *Connection, requestID string, open func(context.Context) (*service.Relay, error), cite func(string) []domain.Citation) {
	if requestID == "" {
		requestID = "req_" + uuid.New().String()[:8]
	}
	ctx, cancel := context.WithCancel(observability.WithRequestID(context.Background(), requestID))
	if !conn.track(requestID, cancel) {
		cancel()
		s.sendError(context.Background(), conn, requestID, ErrorCodeDuplicate, "request_id already in flight")
		return
	}

	go func() {
		defer conn.untrack(requestID)
		defer cancel()

		relay, err := open(ctx)
		if err != nil {
			s.sendError(ctx, conn, requestID, string(domain.KindOf(err)), err.Error())
			return
		}
		defer relay.Close()

		for {
			delta, err := relay.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				s.sendError(ctx, conn, requestID, string(domain.KindOf(err)), err.Error())
				return
			}
			if err := conn.SendJSON(ctx, DeltaMessage{BaseMessage: header(TypeDelta, requestID), Content: delta}); err != nil {
				return
			}
		}

		citations := []domain.Citation{}
		if cite != nil {
			citations = cite(relay.Answer())
		}
		_ = conn.SendJSON(ctx, DoneMessage{BaseMessage: header(TypeDone, requestID), Citations: citations})
	}()
}

func (s *Server) sendError(ctx context.Context, conn *Connection, requestID, code, message string) {
	// A cancelled request still gets its error frame.
	ctx = context.WithoutCancel(ctx)
	err := conn.SendJSON(ctx, ErrorMessage{BaseMessage: header(TypeError, requestID), Code: code, Message: message})
	if err != nil {
		observability.LoggerFromContext(ctx).Debug("error frame dropped", "conn_id", conn.ID, "error", err)
	}
}

func header(typ, requestID string) BaseMessage {
	return BaseMessage{Type: typ, Ts: time.Now().UnixMilli(), RequestID: requestID}
}
